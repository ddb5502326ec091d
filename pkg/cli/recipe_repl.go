package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"coursedl/pkg/common"
	"coursedl/pkg/config"
	"coursedl/pkg/lister"
	"coursedl/pkg/recipe"
)

const (
	replPrompt    = "recipe> "
	replListLimit = 20
)

type recipeRepl struct {
	in      *bufio.Reader
	out     io.Writer
	err     io.Writer
	opts    lister.Options
	path    string
	pageURL string

	script *recipe.Script
}

// Recipe opens an interactive shell that runs a listing recipe against a
// page without downloading anything.
func (h *Handlers) Recipe(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	timeout := config.Default().Timeout
	if v := inv.String("timeout"); v != "" {
		d, err := config.ParseSeconds(v)
		if err != nil {
			return &ExecutionResult{ExitCode: ExitUsage}, err
		}
		timeout = d
	}
	pageURL := inv.String("url")
	if pageURL == "" {
		pageURL = config.Default().URL
	}

	repl := &recipeRepl{
		in:      bufio.NewReader(h.Stdin),
		out:     h.Stdout,
		err:     h.Stderr,
		opts:    lister.Options{Timeout: timeout, Logger: newLogger(h.Stderr, true)},
		path:    inv.Args["file"],
		pageURL: pageURL,
	}

	if err := repl.Run(ctx); err != nil {
		return &ExecutionResult{ExitCode: ExitError}, err
	}
	return &ExecutionResult{ExitCode: ExitOK}, nil
}

func (r *recipeRepl) Run(ctx context.Context) error {
	if err := r.reload(); err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Recipe REPL: %s\n", r.path)
	r.printSummary()
	r.printHelp()

	for {
		if _, err := fmt.Fprint(r.out, replPrompt); err != nil {
			return err
		}
		line, err := r.in.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := r.handleLine(ctx, line); err != nil {
			if err == io.EOF {
				return nil
			}
			fmt.Fprintf(r.err, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *recipeRepl) reload() error {
	absPath, err := filepath.Abs(r.path)
	if err != nil {
		return err
	}
	script, err := recipe.LoadFile(absPath, func(msg string) {
		fmt.Fprintf(r.out, "[starlark] %s\n", msg)
	})
	if err != nil {
		return err
	}
	r.path = absPath
	r.script = script
	return nil
}

func (r *recipeRepl) handleLine(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case "help", "?":
		r.printHelp()
		return nil
	case "reload":
		if err := r.reload(); err != nil {
			return err
		}
		r.printSummary()
		return nil
	case "url":
		if len(fields) < 2 {
			fmt.Fprintf(r.out, "Page: %s\n", r.pageURL)
			return nil
		}
		r.pageURL = fields[1]
		return nil
	case "exit", "quit":
		return io.EOF
	case "run":
		pageURL := r.pageURL
		if len(fields) > 1 {
			pageURL = fields[1]
		}
		return r.runRecipe(ctx, pageURL)
	default:
		return fmt.Errorf("unknown command: %s (try 'help')", cmd)
	}
}

func (r *recipeRepl) runRecipe(ctx context.Context, pageURL string) error {
	resources := lister.NewRecipe(r.script, r.opts).List(ctx, pageURL)
	if len(resources) == 0 {
		return fmt.Errorf("no resources returned for %s", pageURL)
	}
	fmt.Fprintln(r.out, "")
	fmt.Fprintf(r.out, "Page: %s\n", pageURL)
	fmt.Fprintf(r.out, "Resources returned: %d\n", len(resources))
	printResourceSample(r.out, resources, replListLimit)
	fmt.Fprintln(r.out, "")
	return nil
}

func (r *recipeRepl) printSummary() {
	fmt.Fprintf(r.out, "Recipe: %s\n", r.script.Name)
	fmt.Fprintf(r.out, "Page: %s\n", r.pageURL)
}

func (r *recipeRepl) printHelp() {
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  run [url]               Call list(page) and show the resources")
	fmt.Fprintln(r.out, "  url [url]               Show or set the default page")
	fmt.Fprintln(r.out, "  reload                  Reload recipe file")
	fmt.Fprintln(r.out, "  exit | quit             Exit the REPL")
}

func printResourceSample(w io.Writer, resources []common.Resource, limit int) {
	if limit <= 0 || len(resources) < limit {
		limit = len(resources)
	}
	fmt.Fprintf(w, "%-4s %-30s %s\n", "SEQ", "TITLE", "URL")
	for _, res := range resources[:limit] {
		fmt.Fprintf(w, "%-4d %-30s %s\n", res.Seq, res.Title, res.URL)
	}
	if len(resources) > limit {
		fmt.Fprintf(w, "... (%d more)\n", len(resources)-limit)
	}
}
