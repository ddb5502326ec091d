package lister

import (
	"context"
	"encoding/json"
	"fmt"

	"coursedl/pkg/common"
	"coursedl/pkg/recipe"
)

// jqLister reads entries from a JSON document. The query must produce
// objects with "title" and "url" string fields.
// Immutable
type jqLister struct {
	query string
	opts  Options
}

// NewJQ returns a Lister that runs query over a JSON page.
func NewJQ(query string, opts Options) Lister {
	return &jqLister{query: query, opts: opts.normalized()}
}

func (l *jqLister) List(ctx context.Context, pageURL string) []common.Resource {
	log := l.opts.Logger.With("url", pageURL)

	body, err := fetchPage(ctx, l.opts.Client, pageURL)
	if err != nil {
		log.Error("Could not fetch course list", "error", err)
		return nil
	}

	entries, err := ParseJSON(body, l.query)
	if err != nil {
		log.Error("Could not parse course list", "query", l.query, "error", err)
		return nil
	}
	return number(pageURL, entries)
}

// ParseJSON runs query over the JSON body and converts each result to an
// entry.
func ParseJSON(body []byte, query string) ([]recipe.Entry, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	results, err := recipe.RunJQ(query, data)
	if err != nil {
		return nil, err
	}

	entries := make([]recipe.Entry, 0, len(results))
	for i, r := range results {
		obj, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("result %d is %T, expected an object with title and url", i+1, r)
		}
		title, _ := obj["title"].(string)
		url, _ := obj["url"].(string)
		entries = append(entries, recipe.Entry{Title: title, URL: url})
	}
	return entries, nil
}
