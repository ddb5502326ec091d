// Package lister discovers the resources offered by a course page.
//
// Listers never fail: when the page cannot be fetched or parsed they log
// the reason and return an empty list, leaving the decision to the caller.
package lister

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coursedl/pkg/common"
	"coursedl/pkg/recipe"
)

// maxPageSize caps the bytes read from a listing page.
const maxPageSize = 32 << 20

// Lister turns a page URL into an ordered list of resources.
type Lister interface {
	// List returns the resources found at pageURL, numbered from 1 in page
	// order. It returns an empty slice if the page is unreachable or
	// unparseable.
	List(ctx context.Context, pageURL string) []common.Resource
}

// Options are shared by every lister.
// Immutable
type Options struct {
	// Timeout bounds the whole page request. Zero means no limit.
	Timeout time.Duration
	// Logger receives the reasons for empty listings. Nil discards them.
	Logger *slog.Logger
	// Client overrides the HTTP client used to fetch pages.
	Client *http.Client
}

func (o Options) normalized() Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}
	return o
}

// fetchPage downloads the body of pageURL.
func fetchPage(ctx context.Context, client *http.Client, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	return body, nil
}

// number resolves entry URLs against pageURL and drops entries without a
// link. Sequence numbers are page positions, counted before the drop, so a
// link-less entry never shifts the names of the ones after it.
func number(pageURL string, entries []recipe.Entry) []common.Resource {
	base, _ := url.Parse(pageURL)

	resources := make([]common.Resource, 0, len(entries))
	for i, e := range entries {
		href := strings.TrimSpace(e.URL)
		if href == "" {
			continue
		}
		if base != nil {
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
		}
		resources = append(resources, common.Resource{
			Seq:   i + 1,
			Title: strings.TrimSpace(e.Title),
			URL:   href,
		})
	}
	return resources
}
