// Package evovis is the public entry point for loading ENAS run directories
// and keeping an index of the runs a session has seen.
package evovis

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"evovis/internal/ingest"
	"evovis/internal/metrics"
	"evovis/internal/model"
	"evovis/internal/run"
	"evovis/internal/runerr"
	"evovis/internal/session"
	"evovis/internal/storage"
)

const defaultDBPath = "evovis.db"

type (
	Run             = run.Run
	GenerationStats = run.GenerationStats
	LoadOptions     = ingest.Options
	RunSummary      = model.RunSummary
	RunSnapshot     = model.RunSnapshot
	ErrorKind       = runerr.Kind
)

// LoadRun loads a single run directory without publishing or persisting it.
func LoadRun(ctx context.Context, path string, opts LoadOptions) (*Run, error) {
	return ingest.LoadRun(ctx, path, opts)
}

// KindOf reports the load error category carried by err.
func KindOf(err error) (ErrorKind, bool) {
	return runerr.KindOf(err)
}

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *zap.Logger
	Metrics   *metrics.Collectors
}

// Client publishes loaded runs to an in-process registry and records each
// successful load in the run index store.
type Client struct {
	store    storage.Store
	registry *session.Registry
	logger   *zap.Logger
	metrics  *metrics.Collectors
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string   `json:"run_id"`
	Dir          string   `json:"dir"`
	LoadedAtUTC  string   `json:"loaded_at_utc"`
	Generations  int      `json:"generations"`
	Individuals  int      `json:"individuals"`
	Unhealthy    int      `json:"unhealthy"`
	Objectives   []string `json:"objectives"`
	Warnings     int      `json:"warnings"`
	Loaded       bool     `json:"loaded"`
	LoadDuration int64    `json:"load_duration_ms"`
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, fmt.Errorf("init run index: %w", err)
	}

	return &Client{
		store:    store,
		registry: session.NewRegistry(),
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Registry exposes the session registry, for callers that drive a watcher.
func (c *Client) Registry() *session.Registry {
	return c.registry
}

// LoadRun loads path, publishes the run under its id and records it in the
// run index. A failed load leaves both the registry and the index untouched.
func (c *Client) LoadRun(ctx context.Context, path string, opts LoadOptions) (*Run, error) {
	opts = c.withDefaults(opts)
	loaded, err := ingest.LoadRun(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	if err := c.Index(ctx, loaded); err != nil {
		return nil, err
	}
	c.registry.Publish(loaded)
	return loaded, nil
}

// LoadRuns loads several directories concurrently. Nothing is published
// unless every load succeeds.
func (c *Client) LoadRuns(ctx context.Context, paths []string, opts LoadOptions, workers int) ([]*Run, error) {
	opts = c.withDefaults(opts)
	runs, err := ingest.LoadMany(ctx, paths, opts, workers)
	if err != nil {
		return nil, err
	}
	for _, loaded := range runs {
		if err := c.Index(ctx, loaded); err != nil {
			return nil, err
		}
	}
	for _, loaded := range runs {
		c.registry.Publish(loaded)
	}
	return runs, nil
}

func (c *Client) Run(id string) (*Run, bool) {
	return c.registry.Get(id)
}

func (c *Client) RunIDs() []string {
	return c.registry.IDs()
}

// Runs lists indexed runs newest first. Loaded marks runs that are published
// in this client's registry.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	summaries, err := c.store.ListRuns(ctx, req.Limit)
	if err != nil {
		return nil, err
	}

	out := make([]RunItem, 0, len(summaries))
	for _, s := range summaries {
		_, loaded := c.registry.Get(s.RunID)
		out = append(out, RunItem{
			RunID:        s.RunID,
			Dir:          s.Dir,
			LoadedAtUTC:  s.LoadedAtUTC,
			Generations:  s.Generations,
			Individuals:  s.Individuals,
			Unhealthy:    s.Unhealthy,
			Objectives:   append([]string(nil), s.Objectives...),
			Warnings:     s.Warnings,
			Loaded:       loaded,
			LoadDuration: s.LoadDurationMS,
		})
	}
	return out, nil
}

// Snapshot returns the persisted structural snapshot of an indexed run.
func (c *Client) Snapshot(ctx context.Context, runID string) (RunSnapshot, error) {
	if runID == "" {
		return RunSnapshot{}, errors.New("snapshot requires run id")
	}
	snapshot, ok, err := c.store.GetRunSnapshot(ctx, runID)
	if err != nil {
		return RunSnapshot{}, err
	}
	if !ok {
		return RunSnapshot{}, fmt.Errorf("snapshot not found for run id: %s", runID)
	}
	return snapshot, nil
}

// Forget drops a run from the registry and the index.
func (c *Client) Forget(ctx context.Context, runID string) error {
	c.registry.Remove(runID)
	return c.store.DeleteRun(ctx, runID)
}

// Index records a run loaded elsewhere, such as by a watcher, in the run
// index.
func (c *Client) Index(ctx context.Context, loaded *Run) error {
	if err := c.store.SaveRun(ctx, loaded.Summary(), loaded.Snapshot()); err != nil {
		return fmt.Errorf("index run %s: %w", loaded.ID(), err)
	}
	c.logger.Debug("run indexed", zap.String("run_id", loaded.ID()), zap.String("load_id", loaded.LoadID()))
	return nil
}

func (c *Client) withDefaults(opts LoadOptions) LoadOptions {
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	if opts.Metrics == nil {
		opts.Metrics = c.metrics
	}
	return opts
}
