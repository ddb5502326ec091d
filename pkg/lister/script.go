package lister

import (
	"context"

	"coursedl/pkg/common"
	"coursedl/pkg/recipe"
)

// scriptLister delegates parsing to a Starlark recipe.
// Immutable
type scriptLister struct {
	script *recipe.Script
	opts   Options
}

// NewRecipe returns a Lister driven by script. The script may fetch extra
// pages through its download builtin, using the same client and context.
func NewRecipe(script *recipe.Script, opts Options) Lister {
	return &scriptLister{script: script, opts: opts.normalized()}
}

func (l *scriptLister) List(ctx context.Context, pageURL string) []common.Resource {
	log := l.opts.Logger.With("url", pageURL, "recipe", l.script.Name)

	body, err := fetchPage(ctx, l.opts.Client, pageURL)
	if err != nil {
		log.Error("Could not fetch course list", "error", err)
		return nil
	}

	fetch := func(u string) (string, error) {
		log.Debug("Recipe fetching page", "page", u)
		b, err := fetchPage(ctx, l.opts.Client, u)
		return string(b), err
	}

	entries, err := l.script.List(pageURL, body, fetch)
	if err != nil {
		log.Error("Recipe failed", "error", err)
		return nil
	}
	return number(pageURL, entries)
}
