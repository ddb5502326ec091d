package lister

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"coursedl/pkg/common"
)

// CacheFile is the name of the listing cache inside the cache directory.
const CacheFile = "listings.json"

type cachedListing struct {
	FetchedAt time.Time         `json:"fetched_at"`
	Resources []common.Resource `json:"resources"`
}

type listingFile struct {
	Listings map[string]cachedListing `json:"listings"`
}

// listingStore is a JSON file of the last good listing per page URL. It is
// read on first use and written atomically.
// Mutable
type listingStore struct {
	path   string
	mu     sync.Mutex
	data   listingFile
	loaded bool
}

func newListingStore(path string) *listingStore {
	return &listingStore{path: path}
}

// loadLocked reads the file once. A missing file is an empty cache.
func (s *listingStore) loadLocked() error {
	if s.loaded {
		return nil
	}
	s.data = listingFile{Listings: map[string]cachedListing{}}

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read listing cache: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return fmt.Errorf("failed to decode listing cache: %w", err)
	}
	if s.data.Listings == nil {
		s.data.Listings = map[string]cachedListing{}
	}
	s.loaded = true
	return nil
}

func (s *listingStore) Get(pageURL string) (cachedListing, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return cachedListing{}, false, err
	}
	l, ok := s.data.Listings[pageURL]
	return l, ok, nil
}

func (s *listingStore) Put(pageURL string, resources []common.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		// A corrupt cache is replaced rather than kept forever.
		s.data = listingFile{Listings: map[string]cachedListing{}}
		s.loaded = true
	}
	s.data.Listings[pageURL] = cachedListing{FetchedAt: time.Now().UTC(), Resources: resources}
	return s.saveLocked()
}

// saveLocked writes to a temporary file in the same directory and renames
// it over the cache.
func (s *listingStore) saveLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode listing cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, CacheFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace listing cache: %w", err)
	}
	return nil
}

// cachedLister remembers the last non-empty listing of every page and
// serves it when the page yields nothing.
// Immutable
type cachedLister struct {
	inner Lister
	store *listingStore
	log   *slog.Logger
}

// WithCache wraps inner with a listing cache stored in dir.
func WithCache(inner Lister, dir string, log *slog.Logger) Lister {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &cachedLister{
		inner: inner,
		store: newListingStore(filepath.Join(dir, CacheFile)),
		log:   log,
	}
}

func (c *cachedLister) List(ctx context.Context, pageURL string) []common.Resource {
	resources := c.inner.List(ctx, pageURL)
	if len(resources) > 0 {
		if err := c.store.Put(pageURL, resources); err != nil {
			c.log.Warn("Could not update listing cache", "error", err)
		}
		return resources
	}

	cached, ok, err := c.store.Get(pageURL)
	if err != nil {
		c.log.Warn("Could not read listing cache", "error", err)
		return nil
	}
	if !ok || len(cached.Resources) == 0 {
		return nil
	}
	c.log.Warn("Using cached course list", "url", pageURL, "fetched", cached.FetchedAt.Local().Format(time.DateTime), "count", len(cached.Resources))
	return cached.Resources
}
