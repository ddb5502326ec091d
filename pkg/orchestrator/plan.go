package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"

	"coursedl/pkg/archive"
	"coursedl/pkg/common"
	"coursedl/pkg/display"
	"coursedl/pkg/downloader"
)

// Plan holds the local paths for one resource.
type Plan struct {
	// Resource is the item being downloaded.
	Resource common.Resource
	// DownloadPath is where the archive is written.
	DownloadPath string
	// ExtractPath is the directory the archive unpacks into when extraction
	// is enabled.
	ExtractPath string
	// Task receives byte progress for the download.
	Task display.Task
}

// DestPath returns the local file for res inside dir, e.g.
// "downloads/01 - Intro.zip".
func DestPath(dir string, res common.Resource) string {
	return filepath.Join(dir, res.FileName())
}

// NewPlan computes the paths for res inside dir.
func NewPlan(dir string, res common.Resource) *Plan {
	return &Plan{
		Resource:     res,
		DownloadPath: DestPath(dir, res),
		ExtractPath:  filepath.Join(dir, res.FileStem()),
		Task:         display.NopTask(),
	}
}

// Stage is one step of the per-resource pipeline.
type Stage func(ctx context.Context, plan *Plan) error

// FetchStage downloads the resource, resuming any partial file.
func FetchStage(f downloader.Fetcher) Stage {
	return func(ctx context.Context, plan *Plan) error {
		return f.Fetch(ctx, plan.Resource, plan.DownloadPath, plan.Task)
	}
}

// ExtractStage unpacks the downloaded archive next to it. Resources that
// are not archives are left alone.
func ExtractStage() Stage {
	return func(ctx context.Context, plan *Plan) error {
		if !archive.IsSupported(plan.DownloadPath) {
			return nil
		}
		if err := archive.Unpack(ctx, plan.DownloadPath, plan.ExtractPath); err != nil {
			return fmt.Errorf("extract stage failed: %w", err)
		}
		return nil
	}
}
