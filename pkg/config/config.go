// Package config manages the settings of a coursedl run.
//
// Values are layered: Default, then an optional YAML file (by default
// $XDG_CONFIG_HOME/coursedl/config.yaml), then COURSEDL_* environment
// variables, then command-line flags merged on top. Validate must pass
// before any network activity starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// AppName names the xdg subdirectories used by coursedl.
const AppName = "coursedl"

// UI modes for progress rendering.
const (
	UIAuto  = "auto"
	UITUI   = "tui"
	UIPlain = "plain"
	UINone  = "none"
)

// Config holds every setting of a run. It is passed by value and never
// modified once validated.
// Immutable
type Config struct {
	// URL is the page the resource list is read from.
	URL string
	// DownloadDir is the destination directory for downloaded files.
	DownloadDir string
	// Workers is the maximum number of simultaneous downloads.
	Workers int
	// Timeout bounds connection setup, response headers and each body read.
	Timeout time.Duration
	// ChunkSize is the I/O buffer size used when streaming a body to disk.
	ChunkSize int64
	// Retry controls how failed downloads are attempted again.
	Retry RetryConfig
	// Listing controls how the resource list is extracted from the page.
	Listing ListingConfig
	// UI selects the progress display (auto, tui, plain, none).
	UI string
	// Extract unpacks each archive after it is downloaded.
	Extract bool
	// StrictResume truncates partial files that do not line up with the server's answer.
	StrictResume bool
	// Verbose enables debug logging.
	Verbose bool
	// CacheDir holds the listing cache.
	CacheDir string
}

// RetryConfig defines retry behavior. Attempts is the total number of
// requests made for one resource before it is reported as exhausted.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// ListingConfig selects the lister. Recipe wins over JQ, JQ wins over Selector.
type ListingConfig struct {
	Selector string
	JQ       string
	Recipe   string
	NoCache  bool
}

// Default returns a Config with the stock settings.
func Default() Config {
	return Config{
		URL:         "https://class.devsamurai.com.br/",
		DownloadDir: "downloads",
		Workers:     5,
		Timeout:     30 * time.Second,
		ChunkSize:   8192,
		Retry: RetryConfig{
			Attempts: 3,
			Delay:    5 * time.Second,
		},
		Listing: ListingConfig{
			Selector: "body > div > ul > li",
		},
		UI:       UIAuto,
		CacheDir: filepath.Join(xdg.CacheHome, AppName),
	}
}

// DefaultConfigFile returns the path of the per-user config file.
func DefaultConfigFile() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Error reports an invalid configuration value.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// fileConfig mirrors the YAML layout. Durations and sizes are strings so
// that "30s", "30" and "8KiB" are all accepted.
type fileConfig struct {
	URL          string `yaml:"url"`
	DownloadPath string `yaml:"download_path"`
	Threads      int    `yaml:"threads"`
	Timeout      string `yaml:"timeout"`
	ChunkSize    string `yaml:"chunk_size"`
	MaxRetries   int    `yaml:"max_retries"`
	RetryDelay   string `yaml:"retry_delay"`
	Selector     string `yaml:"selector"`
	JQ           string `yaml:"jq"`
	Recipe       string `yaml:"recipe"`
	NoCache      bool   `yaml:"no_cache"`
	UI           string `yaml:"ui"`
	Extract      bool   `yaml:"extract"`
	StrictResume bool   `yaml:"strict_resume"`
}

// LoadFromFile applies the YAML file at path on top of c.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.URL != "" {
		c.URL = fc.URL
	}
	if fc.DownloadPath != "" {
		c.DownloadDir = fc.DownloadPath
	}
	if fc.Threads != 0 {
		c.Workers = fc.Threads
	}
	if fc.Timeout != "" {
		d, err := ParseSeconds(fc.Timeout)
		if err != nil {
			return fmt.Errorf("parse timeout: %w", err)
		}
		c.Timeout = d
	}
	if fc.ChunkSize != "" {
		n, err := ParseSize(fc.ChunkSize)
		if err != nil {
			return fmt.Errorf("parse chunk_size: %w", err)
		}
		c.ChunkSize = n
	}
	if fc.MaxRetries != 0 {
		c.Retry.Attempts = fc.MaxRetries
	}
	if fc.RetryDelay != "" {
		d, err := ParseSeconds(fc.RetryDelay)
		if err != nil {
			return fmt.Errorf("parse retry_delay: %w", err)
		}
		c.Retry.Delay = d
	}
	if fc.Selector != "" {
		c.Listing.Selector = fc.Selector
	}
	if fc.JQ != "" {
		c.Listing.JQ = fc.JQ
	}
	if fc.Recipe != "" {
		c.Listing.Recipe = fc.Recipe
	}
	if fc.UI != "" {
		c.UI = fc.UI
	}
	c.Listing.NoCache = c.Listing.NoCache || fc.NoCache
	c.Extract = c.Extract || fc.Extract
	c.StrictResume = c.StrictResume || fc.StrictResume

	return nil
}

// LoadDefaultFile applies DefaultConfigFile if it exists.
func (c *Config) LoadDefaultFile() error {
	path := DefaultConfigFile()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return c.LoadFromFile(path)
}

// LoadFromEnv applies COURSEDL_* environment variables on top of c.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("COURSEDL_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("COURSEDL_DOWNLOAD_PATH"); v != "" {
		c.DownloadDir = v
	}
	if v := os.Getenv("COURSEDL_THREADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse COURSEDL_THREADS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("COURSEDL_TIMEOUT"); v != "" {
		d, err := ParseSeconds(v)
		if err != nil {
			return fmt.Errorf("parse COURSEDL_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("COURSEDL_CHUNK_SIZE"); v != "" {
		n, err := ParseSize(v)
		if err != nil {
			return fmt.Errorf("parse COURSEDL_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = n
	}
	if v := os.Getenv("COURSEDL_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse COURSEDL_MAX_RETRIES: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("COURSEDL_RETRY_DELAY"); v != "" {
		d, err := ParseSeconds(v)
		if err != nil {
			return fmt.Errorf("parse COURSEDL_RETRY_DELAY: %w", err)
		}
		c.Retry.Delay = d
	}
	if v := os.Getenv("COURSEDL_SELECTOR"); v != "" {
		c.Listing.Selector = v
	}
	if v := os.Getenv("COURSEDL_UI"); v != "" {
		c.UI = v
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored; booleans can only be switched on.
func (c Config) Merge(override Config) Config {
	if override.URL != "" {
		c.URL = override.URL
	}
	if override.DownloadDir != "" {
		c.DownloadDir = override.DownloadDir
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Delay != 0 {
		c.Retry.Delay = override.Retry.Delay
	}
	if override.Listing.Selector != "" {
		c.Listing.Selector = override.Listing.Selector
	}
	if override.Listing.JQ != "" {
		c.Listing.JQ = override.Listing.JQ
	}
	if override.Listing.Recipe != "" {
		c.Listing.Recipe = override.Listing.Recipe
	}
	if override.UI != "" {
		c.UI = override.UI
	}
	if override.CacheDir != "" {
		c.CacheDir = override.CacheDir
	}
	c.Listing.NoCache = c.Listing.NoCache || override.Listing.NoCache
	c.Extract = c.Extract || override.Extract
	c.StrictResume = c.StrictResume || override.StrictResume
	c.Verbose = c.Verbose || override.Verbose
	return c
}

// Validate reports the first invalid value as an *Error.
func (c *Config) Validate() error {
	if c.URL == "" {
		return &Error{Field: "url", Reason: "is required"}
	}
	if c.DownloadDir == "" {
		return &Error{Field: "download_path", Reason: "is required"}
	}
	if c.Workers <= 0 {
		return &Error{Field: "threads", Reason: "must be positive"}
	}
	if c.Timeout <= 0 {
		return &Error{Field: "timeout", Reason: "must be positive"}
	}
	if c.ChunkSize <= 0 {
		return &Error{Field: "chunk_size", Reason: "must be positive"}
	}
	if c.Retry.Attempts <= 0 {
		return &Error{Field: "max_retries", Reason: "must be at least 1"}
	}
	if c.Retry.Delay < 0 {
		return &Error{Field: "retry_delay", Reason: "must not be negative"}
	}
	switch c.UI {
	case UIAuto, UITUI, UIPlain, UINone:
	default:
		return &Error{Field: "ui", Reason: fmt.Sprintf("must be one of auto, tui, plain, none (got %q)", c.UI)}
	}
	if c.Listing.Recipe == "" && c.Listing.JQ == "" && c.Listing.Selector == "" {
		return &Error{Field: "selector", Reason: "is required when no jq or recipe is set"}
	}
	return nil
}

// ParseSeconds parses a duration given either as whole seconds ("30") or
// as a Go duration string ("1m30s").
func ParseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %s", s)
	}
	return d, nil
}

// ParseSize parses a byte count such as "8192", "8KiB" or "1MB".
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size: %s", s)
	}
	return int64(n), nil
}
