// Package orchestrator downloads a list of resources with a bounded pool of
// workers and reports one outcome per resource.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"coursedl/pkg/common"
	"coursedl/pkg/display"
	"coursedl/pkg/downloader"

	"golang.org/x/sync/errgroup"
)

// Options configures a run.
// Immutable
type Options struct {
	// Dir is the destination directory, created if missing.
	Dir string
	// Workers is the maximum number of resources processed at once.
	Workers int
	// Extract adds the extract stage after each successful download.
	Extract bool
	// Display receives one task per resource plus an overall task.
	Display display.Display
	// Logger receives per-resource outcomes.
	Logger *slog.Logger
}

// Orchestrator runs the per-resource pipeline on a worker pool.
// Immutable
type Orchestrator struct {
	opts   Options
	stages []Stage
}

// New creates an Orchestrator that downloads with f.
func New(f downloader.Fetcher, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Display == nil {
		opts.Display = display.Discard()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	stages := []Stage{FetchStage(f)}
	if opts.Extract {
		stages = append(stages, ExtractStage())
	}
	return &Orchestrator{opts: opts, stages: stages}
}

// Run downloads every resource and returns when all of them have finished.
// Individual failures never stop the run; they are reported in the Summary.
// Once ctx is cancelled, resources not yet started are reported failed
// with the context error.
func (o *Orchestrator) Run(ctx context.Context, resources []common.Resource) *Summary {
	log := o.opts.Logger
	results := newCollector()
	plans := o.plan(resources, results)

	if err := os.MkdirAll(o.opts.Dir, 0755); err != nil {
		err = fmt.Errorf("failed to create download directory: %w", err)
		log.Error("Cannot prepare destination", "dir", o.opts.Dir, "error", err)
		for _, plan := range plans {
			results.record(plan.Resource.Seq, err)
		}
		return results.summary()
	}

	overall := o.opts.Display.StartTask("Overall", int64(len(resources)), display.UnitItems)
	defer overall.Done()
	overall.Advance(int64(len(resources) - len(plans)))

	jobs := make(chan *Plan)
	var g errgroup.Group
	for range min(o.opts.Workers, len(plans)) {
		g.Go(func() error {
			for plan := range jobs {
				results.record(plan.Resource.Seq, o.process(ctx, plan))
				overall.Advance(1)
			}
			return nil
		})
	}

	for i, plan := range plans {
		select {
		case jobs <- plan:
			continue
		case <-ctx.Done():
		}
		for _, rest := range plans[i:] {
			results.record(rest.Resource.Seq, fmt.Errorf("not started: %w", ctx.Err()))
			overall.Advance(1)
		}
		break
	}
	close(jobs)
	g.Wait()

	return results.summary()
}

// plan computes destinations. A resource whose sequence number or path was
// claimed by an earlier one is set aside as a duplicate and never fetched,
// so every seq in the Summary belongs to exactly one resource.
func (o *Orchestrator) plan(resources []common.Resource, results *collector) []*Plan {
	bySeq := make(map[int]common.Resource, len(resources))
	byPath := make(map[string]common.Resource, len(resources))
	plans := make([]*Plan, 0, len(resources))
	for _, res := range resources {
		p := NewPlan(o.opts.Dir, res)
		first, taken := bySeq[res.Seq]
		if !taken {
			first, taken = byPath[p.DownloadPath]
		}
		if taken {
			o.opts.Logger.Error("Skipping duplicate resource", "resource", res.String(), "first", first.String())
			results.reject(res)
			continue
		}
		bySeq[res.Seq] = res
		byPath[p.DownloadPath] = res
		plans = append(plans, p)
	}
	return plans
}

// process runs every stage for one resource.
func (o *Orchestrator) process(ctx context.Context, plan *Plan) error {
	log := o.opts.Logger.With("resource", plan.Resource.String())
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("not started: %w", err)
	}

	task := o.opts.Display.StartTask(plan.Resource.String(), 0, display.UnitBytes)
	defer task.Done()
	plan.Task = task

	log.Info("Downloading", "url", plan.Resource.URL, "path", plan.DownloadPath)
	for _, stage := range o.stages {
		if err := stage(ctx, plan); err != nil {
			log.Error("Download failed", "error", err)
			return err
		}
	}
	log.Info("Download complete", "path", plan.DownloadPath)
	return nil
}
