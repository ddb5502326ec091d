// Package common provides shared types used across the coursedl tool.
// It includes the Resource value produced by listers and consumed by the
// download engine, and the structured Output rendered by the display.
package common

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Resource is one downloadable item discovered on a page.
// Immutable
type Resource struct {
	// Seq is the 1-based position of the resource on the page.
	Seq int `json:"seq" yaml:"seq"`
	// Title is the human readable name, used for the output file name.
	Title string `json:"title" yaml:"title"`
	// URL is the remote location of the resource.
	URL string `json:"url" yaml:"url"`
}

// String returns the display label of the resource ("1 - Intro").
func (r Resource) String() string {
	return fmt.Sprintf("%d - %s", r.Seq, r.Title)
}

// archiveExtensions lists the URL suffixes kept as-is in output file names.
// Longer suffixes come first so ".tar.gz" wins over ".gz".
var archiveExtensions = []string{".tar.gz", ".tar.zst", ".tgz", ".tar", ".zip"}

// DefaultExtension is used when the URL does not end in a known archive extension.
const DefaultExtension = ".zip"

// Extension returns the file extension (with leading dot) used for the
// resource's local file.
func (r Resource) Extension() string {
	p := r.URL
	if u, err := url.Parse(r.URL); err == nil {
		p = u.Path
	}
	base := strings.ToLower(path.Base(p))
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(base, ext) {
			return ext
		}
	}
	return DefaultExtension
}

// FileStem returns "<seq padded to 2 digits> - <title>" with the title made
// safe for use as a single path element.
func (r Resource) FileStem() string {
	return fmt.Sprintf("%02d - %s", r.Seq, SanitizeTitle(r.Title))
}

// FileName returns the local file name of the resource, e.g. "01 - Intro.zip".
func (r Resource) FileName() string {
	return r.FileStem() + r.Extension()
}

// SanitizeTitle replaces characters that cannot appear in a file name.
func SanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, title)
	if title == "" || title == "." || title == ".." {
		return "untitled"
	}
	return title
}

// KV is a labelled value shown in key/value output blocks.
type KV struct {
	Key   string
	Value string
}

// Table is a simple column-aligned table.
type Table struct {
	Header []string
	Rows   [][]string
}

// Output is structured command output rendered by the display.
type Output struct {
	Message string
	KV      []KV
	Table   *Table
}
