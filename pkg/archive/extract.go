// Package archive unpacks downloaded course archives.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"coursedl/pkg/filelock"

	"github.com/klauspost/compress/zstd"
)

// SupportedExtensions returns the archive extensions Extract understands.
func SupportedExtensions() []string {
	return []string{".zip", ".tar", ".tar.gz", ".tgz", ".tar.zst"}
}

// IsSupported reports whether filename has an extension Extract handles.
func IsSupported(filename string) bool {
	name := strings.ToLower(filename)
	for _, ext := range SupportedExtensions() {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// Unpack extracts src into the directory dest unless dest already exists.
// The archive is unpacked into a temporary sibling directory that is
// renamed into place, so dest never holds a partial extraction.
func Unpack(ctx context.Context, src, dest string) error {
	return filelock.Ensure(ctx, dest, func() error {
		tmp, err := os.MkdirTemp(filepath.Dir(dest), ".extract-*")
		if err != nil {
			return fmt.Errorf("failed to create temporary directory: %w", err)
		}
		if err := Extract(src, tmp); err != nil {
			os.RemoveAll(tmp)
			return err
		}
		if err := os.Rename(tmp, dest); err != nil {
			os.RemoveAll(tmp)
			return fmt.Errorf("failed to move extracted files into place: %w", err)
		}
		return nil
	})
}

// Extract extracts the archive at src into the directory dest. The format
// is chosen from the extension of src.
func Extract(src string, dest string) error {
	name := strings.ToLower(src)
	if strings.HasSuffix(name, ".zip") {
		return extractZip(src, dest)
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzr.Close()
		r = gzr
	case strings.HasSuffix(name, ".tar.zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(name, ".tar"):
	default:
		return fmt.Errorf("unsupported archive format: %s", src)
	}

	return extractTar(r, dest)
}

func extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		err := extractFile(f.Name, f.FileInfo(), dest, func() (io.ReadCloser, error) {
			return f.Open()
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}

		err = extractFile(header.Name, header.FileInfo(), dest, func() (io.ReadCloser, error) {
			return io.NopCloser(tr), nil
		})
		if err != nil {
			return err
		}
	}
}

// extractFile writes one archive entry below dest. Entries escaping dest
// are rejected; links and other special files are skipped.
func extractFile(name string, info os.FileInfo, dest string, opener func() (io.ReadCloser, error)) error {
	target := filepath.Join(dest, name)
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("illegal file path in archive: %s", name)
	}

	if info.IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", target, err)
		}
		return nil
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", target, err)
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()|0200)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}
	defer f.Close()

	rc, err := opener()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", name, err)
	}
	defer rc.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("failed to write file %s: %w", target, err)
	}
	return nil
}
