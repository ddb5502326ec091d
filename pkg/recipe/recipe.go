// Package recipe runs Starlark scripts that turn a course page into a list
// of resources.
//
// A recipe defines a function list(page). page has the fields url and
// body; list returns a list of values built with resource(title=, url=)
// or dicts with the same keys. The builtins html, jq, json and download
// are available to the script.
package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// maxSteps bounds the work a single list() call may do.
const maxSteps = 50_000_000

// Fetcher retrieves the body of an auxiliary page for the download builtin.
type Fetcher func(url string) (string, error)

// Entry is one resource as declared by a recipe, before numbering.
// Immutable
type Entry struct {
	Title string
	URL   string
}

// Script is a loaded recipe.
// Immutable
type Script struct {
	Name    string
	print   func(string)
	globals starlark.StringDict
}

// LoadFile reads and loads a recipe from path.
func LoadFile(path string, printFunc func(string)) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Load(name, string(src), printFunc)
}

// Load executes the top level of source and checks that it defines list.
func Load(name, source string, printFunc func(string)) (*Script, error) {
	s := &Script{Name: name, print: printFunc}

	globals, err := starlark.ExecFile(s.newThread(), name+".star", source, builtins())
	if err != nil {
		return nil, mungeEvalError(name, err)
	}
	if _, ok := globals["list"].(starlark.Callable); !ok {
		return nil, fmt.Errorf("recipe %s does not define a list(page) function", name)
	}
	s.globals = globals
	return s, nil
}

func (s *Script) newThread() *starlark.Thread {
	thread := &starlark.Thread{
		Name: s.Name,
		Print: func(thread *starlark.Thread, msg string) {
			if s.print != nil {
				s.print(msg)
			}
		},
	}
	thread.SetMaxExecutionSteps(maxSteps)
	return thread
}

// List calls the recipe's list function for a fetched page. fetch may be
// nil, in which case download fails inside the script.
func (s *Script) List(pageURL string, body []byte, fetch Fetcher) ([]Entry, error) {
	thread := s.newThread()
	if fetch != nil {
		thread.SetLocal(keyFetcher, fetch)
	}

	page := starlarkstruct.FromStringDict(starlark.String("page"), starlark.StringDict{
		"url":  starlark.String(pageURL),
		"body": starlark.String(body),
	})

	res, err := starlark.Call(thread, s.globals["list"], starlark.Tuple{page}, nil)
	if err != nil {
		return nil, mungeEvalError(s.Name, err)
	}

	iter, ok := res.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("recipe %s: list must return a list, got %s", s.Name, res.Type())
	}

	var entries []Entry
	it := iter.Iterate()
	defer it.Done()
	var item starlark.Value
	for it.Next(&item) {
		e, err := toEntry(item)
		if err != nil {
			return nil, fmt.Errorf("recipe %s: entry %d: %w", s.Name, len(entries)+1, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func toEntry(v starlark.Value) (Entry, error) {
	switch x := v.(type) {
	case *starlarkstruct.Struct:
		title, _ := x.Attr("title")
		url, _ := x.Attr("url")
		return Entry{Title: asString(title), URL: asString(url)}, nil
	case *starlark.Dict:
		title, _, _ := x.Get(starlark.String("title"))
		url, _, _ := x.Get(starlark.String("url"))
		return Entry{Title: asString(title), URL: asString(url)}, nil
	default:
		return Entry{}, fmt.Errorf("expected resource(), got %s", v.Type())
	}
}

func mungeEvalError(name string, err error) error {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		return fmt.Errorf("recipe %s failed:\n%s", name, evalErr.Backtrace())
	}
	return fmt.Errorf("recipe %s failed: %w", name, err)
}
