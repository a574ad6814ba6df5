// Package ingest runs the load pipeline: schema validation, gene pool,
// generations, lineage and aggregation into an immutable run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"evovis/internal/codec"
	"evovis/internal/genepool"
	"evovis/internal/generation"
	"evovis/internal/lineage"
	"evovis/internal/run"
	"evovis/internal/runerr"
	"evovis/internal/schema"
	"evovis/internal/source"
)

// LoadRun validates and loads the run directory at path. No partial run is
// returned on failure.
func LoadRun(ctx context.Context, path string, opts Options) (*run.Run, error) {
	return execute(ctx, path, opts, func(ctx context.Context) (source.Source, error) {
		manifest, err := schema.Validate(ctx, path)
		if err != nil {
			return nil, err
		}
		return source.NewDir(manifest), nil
	})
}

// Load runs the pipeline over an adapter that is not a run directory.
func Load(ctx context.Context, src source.Source, opts Options) (*run.Run, error) {
	return execute(ctx, src.Location(), opts, func(context.Context) (source.Source, error) {
		return src, nil
	})
}

// LoadMany loads several run directories with at most workers loads in
// flight. The first failure cancels the remaining loads. Results keep the
// order of paths.
func LoadMany(ctx context.Context, paths []string, opts Options, workers int) ([]*run.Run, error) {
	if opts.RunID != "" && len(paths) > 1 {
		return nil, fmt.Errorf("run id override applies to a single run, got %d paths", len(paths))
	}
	if workers <= 0 {
		workers = 1
	}

	runs := make([]*run.Run, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			r, err := LoadRun(gctx, path, opts)
			if err != nil {
				return err
			}
			runs[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}

type openFunc func(ctx context.Context) (source.Source, error)

func execute(parent context.Context, location string, opts Options, open openFunc) (*run.Run, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := opts.logger().With(zap.String("run_dir", location))
	start := time.Now()

	ctx := parent
	timeout, bounded := opts.Timeout()
	if bounded {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	r, err := pipeline(ctx, open, opts, logger, start)
	elapsed := time.Since(start)
	if err != nil {
		if bounded && errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			err = runerr.Timeout(location, err)
		}
		status := "canceled"
		if kind, ok := runerr.KindOf(err); ok {
			status = string(kind)
		}
		opts.Metrics.ObserveLoad(status, elapsed)
		logger.Warn("run load failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, err
	}

	summary := r.Summary()
	opts.Metrics.ObserveLoad("ok", elapsed)
	opts.Metrics.ObserveRun(r.ID(), summary.Individuals, summary.Warnings)
	logger.Info("run loaded",
		zap.String("run_id", r.ID()),
		zap.String("load_id", r.LoadID()),
		zap.Int("generations", summary.Generations),
		zap.Int("individuals", summary.Individuals),
		zap.Int("warnings", summary.Warnings),
		zap.Duration("elapsed", elapsed))
	return r, nil
}

func pipeline(ctx context.Context, open openFunc, opts Options, logger *zap.Logger, start time.Time) (*run.Run, error) {
	src, err := open(ctx)
	if err != nil {
		return nil, err
	}
	spacePath, logPath := artifactPaths(src)

	cfg, err := src.Hyperparameters(ctx)
	if err != nil {
		return nil, err
	}
	space, err := src.SearchSpace(ctx)
	if err != nil {
		return nil, err
	}
	graph, err := genepool.Build(space, spacePath)
	if err != nil {
		return nil, err
	}
	var warnings []string
	for _, gene := range graph.Unreachable() {
		warnings = append(warnings, fmt.Sprintf("gene %s is not reachable from %s", gene, codec.StartNode))
		logger.Debug("unreachable gene", zap.String("layer", gene))
	}

	loader := generation.Loader{
		Config:    cfg,
		Validator: graph,
		Strict:    opts.StrictChromosomeValidation,
		Logger:    logger,
	}
	loaded, err := loader.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, loaded.Warnings...)

	records, err := src.CrossoverLog(ctx)
	if err != nil {
		return nil, err
	}
	lin, err := lineage.Resolve(records, loaded.Generations, logPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := opts.RunID
	if id == "" {
		id = filepath.Base(filepath.Clean(src.Location()))
	}
	return run.New(run.Params{
		ID:           id,
		Dir:          src.Location(),
		Config:       cfg,
		Generations:  loaded.Generations,
		Lineage:      lin,
		GenePool:     graph,
		Warnings:     warnings,
		LoadedAt:     time.Now(),
		LoadDuration: time.Since(start),
	}), nil
}

func artifactPaths(src source.Source) (string, string) {
	if dir, ok := src.(*source.Dir); ok {
		manifest := dir.Manifest()
		return manifest.SearchSpacePath, manifest.CrossoverLogPath
	}
	return src.Location(), src.Location()
}
