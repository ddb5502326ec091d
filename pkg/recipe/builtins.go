package recipe

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/itchyny/gojq"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"golang.org/x/net/html"
)

const keyFetcher = "coursedl.fetcher"

// builtins returns the predeclared names every recipe can use.
func builtins() starlark.StringDict {
	return starlark.StringDict{
		"struct":   starlark.NewBuiltin("struct", starlarkstruct.Make),
		"resource": resourceBuiltin(),
		"download": downloadBuiltin(),
		"json":     starlarkstruct.FromStringDict(starlark.String("json"), jsonBuiltins()),
		"html":     starlarkstruct.FromStringDict(starlark.String("html"), htmlBuiltins()),
		"jq":       starlarkstruct.FromStringDict(starlark.String("jq"), jqBuiltins()),
	}
}

func resourceBuiltin() *starlark.Builtin {
	return NewStrictBuiltin(CommandDef{
		Name: "resource",
		Desc: "Declares one downloadable resource. Relative URLs resolve against the page URL.",
		Params: []ParamDef{
			{Name: "title", Type: "string", Desc: "Human readable title, used in the file name"},
			{Name: "url", Type: "string", Desc: "Location of the archive"},
		},
	}, func(_ *starlark.Thread, kwargs map[string]starlark.Value) (starlark.Value, error) {
		return starlarkstruct.FromStringDict(starlark.String("resource"), starlark.StringDict{
			"title": starlark.String(asString(kwargs["title"])),
			"url":   starlark.String(asString(kwargs["url"])),
		}), nil
	})
}

func downloadBuiltin() *starlark.Builtin {
	return NewStrictBuiltin(CommandDef{
		Name: "download",
		Desc: "Fetches another page and returns its body as a string.",
		Params: []ParamDef{
			{Name: "url", Type: "string", Desc: "The URL to fetch"},
		},
	}, func(thread *starlark.Thread, kwargs map[string]starlark.Value) (starlark.Value, error) {
		fetch, ok := thread.Local(keyFetcher).(Fetcher)
		if !ok || fetch == nil {
			return nil, fmt.Errorf("download is not available in this context")
		}
		data, err := fetch(asString(kwargs["url"]))
		if err != nil {
			return nil, err
		}
		return starlark.String(data), nil
	})
}

func jsonBuiltins() starlark.StringDict {
	return starlark.StringDict{
		"decode": NewStrictBuiltin(CommandDef{
			Name: "json.decode",
			Desc: "Decodes a JSON string into Starlark values.",
			Params: []ParamDef{
				{Name: "data", Type: "string", Desc: "The JSON string to decode"},
			},
		}, func(_ *starlark.Thread, kwargs map[string]starlark.Value) (starlark.Value, error) {
			var data any
			if err := json.Unmarshal([]byte(asString(kwargs["data"])), &data); err != nil {
				return nil, err
			}
			return toStarlark(data), nil
		}),
		"encode": NewStrictBuiltin(CommandDef{
			Name: "json.encode",
			Desc: "Encodes a Starlark value into a JSON string.",
			Params: []ParamDef{
				{Name: "value", Type: "any", Desc: "The value to encode"},
			},
		}, func(_ *starlark.Thread, kwargs map[string]starlark.Value) (starlark.Value, error) {
			data, err := fromStarlark(kwargs["value"])
			if err != nil {
				return nil, err
			}
			b, err := json.Marshal(data)
			if err != nil {
				return nil, err
			}
			return starlark.String(b), nil
		}),
	}
}

func jqBuiltins() starlark.StringDict {
	return starlark.StringDict{
		"query": NewStrictBuiltin(CommandDef{
			Name: "jq.query",
			Desc: "Runs a jq filter over a value and returns the list of results.",
			Params: []ParamDef{
				{Name: "query", Type: "string", Desc: "The jq filter"},
				{Name: "value", Type: "any", Desc: "The value to query"},
			},
		}, func(_ *starlark.Thread, kwargs map[string]starlark.Value) (starlark.Value, error) {
			data, err := fromStarlark(kwargs["value"])
			if err != nil {
				return nil, err
			}
			results, err := RunJQ(asString(kwargs["query"]), data)
			if err != nil {
				return nil, err
			}
			list := make([]starlark.Value, 0, len(results))
			for _, r := range results {
				list = append(list, toStarlark(r))
			}
			return starlark.NewList(list), nil
		}),
	}
}

// RunJQ evaluates query against data and collects every result.
func RunJQ(query string, data any) ([]any, error) {
	q, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid jq query: %w", err)
	}

	var results []any
	iter := q.Run(data)
	for {
		v, ok := iter.Next()
		if !ok {
			return results, nil
		}
		if err, ok := v.(error); ok {
			if halt, ok := err.(*gojq.HaltError); ok && halt.Value() == nil {
				return results, nil
			}
			return nil, err
		}
		results = append(results, v)
	}
}

func htmlBuiltins() starlark.StringDict {
	return starlark.StringDict{
		"parse": NewStrictBuiltin(CommandDef{
			Name: "html.parse",
			Desc: "Parses an HTML string into a queryable selection.",
			Params: []ParamDef{
				{Name: "data", Type: "string", Desc: "The HTML string to parse"},
			},
		}, func(_ *starlark.Thread, kwargs map[string]starlark.Value) (starlark.Value, error) {
			root, err := html.Parse(strings.NewReader(asString(kwargs["data"])))
			if err != nil {
				return nil, err
			}
			return &Selection{sel: goquery.NewDocumentFromNode(root).Selection}, nil
		}),
		"to_json": NewStrictBuiltin(CommandDef{
			Name: "html.to_json",
			Desc: "Converts an HTML string into nested dicts of tag, attr, text and children.",
			Params: []ParamDef{
				{Name: "data", Type: "string", Desc: "The HTML string to convert"},
			},
		}, func(_ *starlark.Thread, kwargs map[string]starlark.Value) (starlark.Value, error) {
			root, err := html.Parse(strings.NewReader(asString(kwargs["data"])))
			if err != nil {
				return nil, err
			}
			return toStarlark(nodeToMap(root)), nil
		}),
	}
}

// Selection exposes a goquery selection to recipes.
// Immutable
type Selection struct {
	sel *goquery.Selection
}

func (s *Selection) String() string        { return fmt.Sprintf("html.selection(%d)", s.sel.Length()) }
func (s *Selection) Type() string          { return "html.selection" }
func (s *Selection) Freeze()               {}
func (s *Selection) Truth() starlark.Bool  { return s.sel.Length() > 0 }
func (s *Selection) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", s.Type()) }

func (s *Selection) Attr(name string) (starlark.Value, error) {
	switch name {
	case "text":
		return starlark.NewBuiltin("text", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs("text", args, kwargs); err != nil {
				return nil, err
			}
			return starlark.String(strings.TrimSpace(s.sel.Text())), nil
		}), nil
	case "attr":
		return starlark.NewBuiltin("attr", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name string
			if err := starlark.UnpackArgs("attr", args, kwargs, "name", &name); err != nil {
				return nil, err
			}
			val, _ := s.sel.Attr(name)
			return starlark.String(val), nil
		}), nil
	case "find":
		return starlark.NewBuiltin("find", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var selector string
			if err := starlark.UnpackArgs("find", args, kwargs, "selector", &selector); err != nil {
				return nil, err
			}
			return &Selection{sel: s.sel.Find(selector)}, nil
		}), nil
	case "each":
		return starlark.NewBuiltin("each", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs("each", args, kwargs); err != nil {
				return nil, err
			}
			var list []starlark.Value
			s.sel.Each(func(_ int, gs *goquery.Selection) {
				list = append(list, &Selection{sel: gs})
			})
			return starlark.NewList(list), nil
		}), nil
	}
	return nil, nil
}

func (s *Selection) AttrNames() []string {
	return []string{"attr", "each", "find", "text"}
}
