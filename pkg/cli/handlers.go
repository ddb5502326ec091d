package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"coursedl/pkg/common"
	"coursedl/pkg/config"
	"coursedl/pkg/display"
	"coursedl/pkg/downloader"
	"coursedl/pkg/lister"
	"coursedl/pkg/orchestrator"
	"coursedl/pkg/recipe"
)

// Handlers implements the coursedl commands.
// Immutable
type Handlers struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Theme  *Theme
}

func NewHandlers() *Handlers {
	return &Handlers{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Theme:  DefaultTheme(),
	}
}

func (h *Handlers) Version(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	fmt.Fprintln(h.Stdout, config.GetBuildInfo())
	return &ExecutionResult{ExitCode: ExitOK}, nil
}

// Download lists the page and downloads every resource on it.
func (h *Handlers) Download(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	cfg, err := loadConfig(inv)
	if err != nil {
		return &ExecutionResult{ExitCode: ExitUsage}, err
	}

	disp, err := display.New(cfg.UI, h.Stdout)
	if err != nil {
		return &ExecutionResult{ExitCode: ExitUsage}, err
	}
	defer disp.Close()
	log := newLogger(disp.LogWriter(), cfg.Verbose)

	l, err := newLister(cfg, log, func(msg string) {
		log.Info("Recipe output", "message", msg)
	})
	if err != nil {
		return &ExecutionResult{ExitCode: ExitUsage}, err
	}

	resources := l.List(ctx, cfg.URL)
	if len(resources) == 0 {
		return &ExecutionResult{ExitCode: ExitNothing}, fmt.Errorf("no resources found at %s", cfg.URL)
	}
	log.Debug("Resources listed", "url", cfg.URL, "count", len(resources))

	t := h.Theme
	disp.Print(t.Header(fmt.Sprintf("%s Downloading %d resources to %s", t.IconDownload, len(resources), cfg.DownloadDir)))

	fetcher := downloader.New(downloader.Options{
		Timeout:      cfg.Timeout,
		Attempts:     cfg.Retry.Attempts,
		Delay:        cfg.Retry.Delay,
		ChunkSize:    cfg.ChunkSize,
		StrictResume: cfg.StrictResume,
		Logger:       log,
	})
	o := orchestrator.New(fetcher, orchestrator.Options{
		Dir:     cfg.DownloadDir,
		Workers: cfg.Workers,
		Extract: cfg.Extract,
		Display: disp,
		Logger:  log,
	})
	summary := o.Run(ctx, resources)
	disp.RenderOutput(summary.Report(resources))

	if err := ctx.Err(); err != nil {
		return &ExecutionResult{ExitCode: ExitFailed}, fmt.Errorf("download interrupted: %w", err)
	}
	if !summary.OK() {
		return &ExecutionResult{ExitCode: ExitFailed}, nil
	}
	return &ExecutionResult{ExitCode: ExitOK}, nil
}

// List prints the resources found on the page and where each would be
// stored.
func (h *Handlers) List(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	cfg, err := loadConfig(inv)
	if err != nil {
		return &ExecutionResult{ExitCode: ExitUsage}, err
	}
	log := newLogger(h.Stderr, cfg.Verbose)

	l, err := newLister(cfg, log, func(msg string) {
		fmt.Fprintln(h.Stderr, msg)
	})
	if err != nil {
		return &ExecutionResult{ExitCode: ExitUsage}, err
	}

	resources := l.List(ctx, cfg.URL)
	if len(resources) == 0 {
		return &ExecutionResult{ExitCode: ExitNothing}, fmt.Errorf("no resources found at %s", cfg.URL)
	}

	fmt.Fprint(h.Stdout, display.FormatOutput(listingOutput(cfg, resources)))
	return &ExecutionResult{ExitCode: ExitOK}, nil
}

func listingOutput(cfg config.Config, resources []common.Resource) *common.Output {
	table := &common.Table{Header: []string{"#", "Title", "URL", "Destination"}}
	for _, res := range resources {
		table.Rows = append(table.Rows, []string{
			strconv.Itoa(res.Seq),
			res.Title,
			res.URL,
			orchestrator.DestPath(cfg.DownloadDir, res),
		})
	}
	return &common.Output{
		Message: fmt.Sprintf("%d resources at %s", len(resources), cfg.URL),
		Table:   table,
	}
}

// loadConfig layers defaults, the config file, the environment and the
// command line, then validates the result.
func loadConfig(inv *Invocation) (config.Config, error) {
	cfg := config.Default()
	if path := inv.String("config"); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return cfg, err
		}
	} else if err := cfg.LoadDefaultFile(); err != nil {
		return cfg, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return cfg, err
	}

	override, err := flagOverrides(inv)
	if err != nil {
		return cfg, err
	}
	cfg = cfg.Merge(override)
	// Merge skips zero values, but a zero retry delay is valid.
	if inv.String("retry-delay") != "" {
		cfg.Retry.Delay = override.Retry.Delay
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// flagOverrides converts command line flags into a Config for Merge.
func flagOverrides(inv *Invocation) (config.Config, error) {
	c := config.Config{
		URL:          inv.String("url"),
		DownloadDir:  inv.String("download-path"),
		UI:           inv.String("ui"),
		Extract:      inv.Bool("extract"),
		StrictResume: inv.Bool("strict-resume"),
		Verbose:      inv.Bool("verbose"),
		Listing: config.ListingConfig{
			Selector: inv.String("selector"),
			JQ:       inv.String("jq"),
			Recipe:   inv.String("recipe"),
			NoCache:  inv.Bool("no-cache"),
		},
	}

	var err error
	if c.Workers, err = positiveInt(inv, "threads", "threads"); err != nil {
		return c, err
	}
	if c.Retry.Attempts, err = positiveInt(inv, "max-retries", "max_retries"); err != nil {
		return c, err
	}
	if v := inv.String("timeout"); v != "" {
		if c.Timeout, err = config.ParseSeconds(v); err != nil || c.Timeout <= 0 {
			return c, &config.Error{Field: "timeout", Reason: "must be a positive number of seconds"}
		}
	}
	if v := inv.String("retry-delay"); v != "" {
		if c.Retry.Delay, err = config.ParseSeconds(v); err != nil {
			return c, &config.Error{Field: "retry_delay", Reason: "must be a number of seconds"}
		}
	}
	if v := inv.String("chunk-size"); v != "" {
		if c.ChunkSize, err = config.ParseSize(v); err != nil || c.ChunkSize <= 0 {
			return c, &config.Error{Field: "chunk_size", Reason: "must be a positive size"}
		}
	}
	return c, nil
}

func positiveInt(inv *Invocation, flag, field string) (int, error) {
	v := inv.String(flag)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, &config.Error{Field: field, Reason: "must be a positive integer"}
	}
	return n, nil
}

// newLister picks the lister for cfg: recipe, then jq, then CSS selector.
func newLister(cfg config.Config, log *slog.Logger, printFunc func(string)) (lister.Lister, error) {
	opts := lister.Options{Timeout: cfg.Timeout, Logger: log}

	var l lister.Lister
	switch {
	case cfg.Listing.Recipe != "":
		script, err := recipe.LoadFile(cfg.Listing.Recipe, printFunc)
		if err != nil {
			return nil, err
		}
		l = lister.NewRecipe(script, opts)
	case cfg.Listing.JQ != "":
		l = lister.NewJQ(cfg.Listing.JQ, opts)
	default:
		l = lister.NewHTML(cfg.Listing.Selector, opts)
	}

	if !cfg.Listing.NoCache {
		l = lister.WithCache(l, cfg.CacheDir, log)
	}
	return l, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
