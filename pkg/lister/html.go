package lister

import (
	"bytes"
	"context"

	"coursedl/pkg/common"
	"coursedl/pkg/recipe"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DefaultSelector matches one course entry on the stock course page.
const DefaultSelector = "body > div > ul > li"

// htmlLister reads entries from an HTML page with a CSS selector. Each
// matched element contributes the text and href of its first link.
// Immutable
type htmlLister struct {
	selector string
	opts     Options
}

// NewHTML returns a Lister that selects entries with selector.
func NewHTML(selector string, opts Options) Lister {
	if selector == "" {
		selector = DefaultSelector
	}
	return &htmlLister{selector: selector, opts: opts.normalized()}
}

func (l *htmlLister) List(ctx context.Context, pageURL string) []common.Resource {
	log := l.opts.Logger.With("url", pageURL)

	body, err := fetchPage(ctx, l.opts.Client, pageURL)
	if err != nil {
		log.Error("Could not fetch course list", "error", err)
		return nil
	}

	entries, err := ParseHTML(body, l.selector)
	if err != nil {
		log.Error("Could not parse course list", "error", err)
		return nil
	}
	resources := number(pageURL, entries)
	log.Debug("Parsed course list", "selector", l.selector, "matched", len(entries), "kept", len(resources))
	return resources
}

// ParseHTML extracts the link title and href of every element matching
// selector. Elements without a link yield an entry with an empty URL.
func ParseHTML(body []byte, selector string) ([]recipe.Entry, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	doc := goquery.NewDocumentFromNode(root)

	var entries []recipe.Entry
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		a := s.Find("a").First()
		href, _ := a.Attr("href")
		entries = append(entries, recipe.Entry{Title: a.Text(), URL: href})
	})
	return entries, nil
}
