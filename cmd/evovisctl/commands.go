package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"evovis/internal/codec"
	"evovis/internal/genepool"
	"evovis/internal/metrics"
	"evovis/internal/runwriter"
	"evovis/internal/watch"
	"evovis/pkg/evovis"
)

func (c *cli) load(ctx context.Context, dir string) (*evovis.Run, error) {
	return evovis.LoadRun(ctx, dir, c.loadOptions())
}

func newValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <run-dir>",
		Short: "Load a run directory and report whether it is consistent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.writeJSON(struct {
					Valid    bool     `json:"valid"`
					RunID    string   `json:"run_id"`
					Warnings []string `json:"warnings"`
				}{Valid: true, RunID: r.ID(), Warnings: r.Warnings()})
			}
			c.printf("valid run_id=%s generations=%d individuals=%d warnings=%d\n",
				r.ID(), len(r.GenerationIndices()), r.IndividualCount(), len(r.Warnings()))
			for _, warning := range r.Warnings() {
				c.printf("warning: %s\n", warning)
			}
			return nil
		},
	}
}

func newInspectCmd(c *cli) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "inspect <run-dir>",
		Short: "Print the summary of a run and its generations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := c.loadOptions()
			opts.RunID = runID
			r, err := evovis.LoadRun(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			summary := r.Summary()
			if c.jsonOut {
				return c.writeJSON(summary)
			}
			c.printf("run_id=%s load_id=%s dir=%s generations=%d individuals=%d unhealthy=%d lineage_edges=%d gene_pool_nodes=%d objectives=%s\n",
				summary.RunID,
				summary.LoadID,
				summary.Dir,
				summary.Generations,
				summary.Individuals,
				summary.Unhealthy,
				summary.LineageEdges,
				summary.GenePoolNodes,
				strings.Join(summary.Objectives, ","),
			)
			for _, index := range r.GenerationIndices() {
				gen, _ := r.Generation(index)
				unhealthy := 0
				for _, individual := range gen.Individuals {
					if !individual.Healthy {
						unhealthy++
					}
				}
				c.printf("gen=%d individuals=%d unhealthy=%d\n", index, len(gen.Individuals), unhealthy)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "override the run id derived from the directory name")
	return cmd
}

func newLineageCmd(c *cli) *cobra.Command {
	var (
		individualID string
		descendants  bool
	)
	cmd := &cobra.Command{
		Use:   "lineage <run-dir>",
		Short: "Print lineage edges, or the ancestry of one individual",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if descendants && individualID == "" {
				return errors.New("--descendants requires --id")
			}
			r, err := c.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if individualID == "" {
				edges := r.LineageEdges()
				if c.jsonOut {
					return c.writeJSON(edges)
				}
				if len(edges) == 0 {
					c.printf("no lineage records\n")
					return nil
				}
				for _, edge := range edges {
					c.printf("child=%s parent=%s op=%s logged_gen=%d\n",
						edge.Child, edge.Parent, edge.Operation, edge.LoggedGeneration)
				}
				return nil
			}

			if _, ok := r.Individual(individualID); !ok {
				return fmt.Errorf("individual not found: %s", individualID)
			}
			related := r.Ancestors(individualID)
			relation := "ancestors"
			if descendants {
				related = r.Descendants(individualID)
				relation = "descendants"
			}
			if c.jsonOut {
				return c.writeJSON(map[string][]string{
					"parents":  r.Parents(individualID),
					"children": r.Children(individualID),
					relation:   related,
				})
			}
			c.printf("id=%s parents=%s children=%s %s=%s\n",
				individualID,
				strings.Join(r.Parents(individualID), ","),
				strings.Join(r.Children(individualID), ","),
				relation,
				strings.Join(related, ","),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&individualID, "id", "", "individual id")
	cmd.Flags().BoolVar(&descendants, "descendants", false, "walk descendants instead of ancestors")
	return cmd
}

func newBestCmd(c *cli) *cobra.Command {
	var objective string
	cmd := &cobra.Command{
		Use:   "best <run-dir>",
		Short: "Print the best healthy individual of each generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			objectives, err := selectObjectives(r, objective)
			if err != nil {
				return err
			}

			type bestItem struct {
				Objective  string  `json:"objective"`
				Generation int     `json:"generation"`
				ID         string  `json:"id"`
				Value      float64 `json:"value"`
			}
			var items []bestItem
			for _, name := range objectives {
				best, err := r.BestPerGeneration(name)
				if err != nil {
					return err
				}
				for _, index := range r.GenerationIndices() {
					id, ok := best[index]
					if !ok {
						continue
					}
					individual, _ := r.Individual(id)
					items = append(items, bestItem{Objective: name, Generation: index, ID: id, Value: individual.Fitness[name]})
				}
			}
			if c.jsonOut {
				return c.writeJSON(items)
			}
			for _, item := range items {
				c.printf("objective=%s gen=%d best=%s value=%.6f\n", item.Objective, item.Generation, item.ID, item.Value)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&objective, "objective", "", "objective name (default: all objectives)")
	return cmd
}

func newStatsCmd(c *cli) *cobra.Command {
	var objective string
	cmd := &cobra.Command{
		Use:   "stats <run-dir>",
		Short: "Print per-generation statistics of an objective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			objectives, err := selectObjectives(r, objective)
			if err != nil {
				return err
			}

			out := make(map[string][]evovis.GenerationStats, len(objectives))
			for _, name := range objectives {
				stats, err := r.ObjectiveStats(name)
				if err != nil {
					return err
				}
				out[name] = stats
			}
			if c.jsonOut {
				return c.writeJSON(out)
			}
			for _, name := range objectives {
				for _, s := range out[name] {
					c.printf("objective=%s gen=%d count=%d mean=%.6f std=%.6f min=%.6f max=%.6f\n",
						name, s.Generation, s.Count, s.Mean, s.Std, s.Min, s.Max)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&objective, "objective", "", "objective name (default: all objectives)")
	return cmd
}

func selectObjectives(r *evovis.Run, name string) ([]string, error) {
	if name != "" {
		if _, ok := r.Objective(name); !ok {
			return nil, fmt.Errorf("unknown objective: %s", name)
		}
		return []string{name}, nil
	}
	return r.Hyperparameters().ObjectiveNames(), nil
}

func newGenePoolCmd(c *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "genepool <run-dir>",
		Short: "Print the gene pool as search space JSON or Graphviz dot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "dot" {
				return fmt.Errorf("unsupported format: %s", format)
			}
			r, err := c.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if format == "dot" {
				return genepool.WriteDOT(c.out, r.GenePool())
			}
			data, err := codec.EncodeSearchSpace(genepool.Encode(r.GenePool()))
			if err != nil {
				return err
			}
			_, err = c.out.Write(append(data, '\n'))
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json|dot")
	return cmd
}

func newIngestCmd(c *cli) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "ingest <run-dir>...",
		Short: "Load run directories concurrently and record them in the run index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("workers") {
				workers = c.cfg.Workers
			}
			if workers < 0 {
				return errors.New("workers must be >= 0")
			}
			client, err := c.newClient(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			runs, err := client.LoadRuns(cmd.Context(), args, c.loadOptions(), workers)
			if err != nil {
				return err
			}
			summaries := make([]evovis.RunSummary, 0, len(runs))
			for _, r := range runs {
				summaries = append(summaries, r.Summary())
			}
			if c.jsonOut {
				return c.writeJSON(summaries)
			}
			for _, s := range summaries {
				c.printf("ingested run_id=%s generations=%d individuals=%d warnings=%d store=%s\n",
					s.RunID, s.Generations, s.Individuals, s.Warnings, c.cfg.Store)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent loads")
	return cmd
}

func newRunsCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List indexed runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			client, err := c.newClient(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			items, err := client.Runs(cmd.Context(), evovis.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.writeJSON(items)
			}
			if len(items) == 0 {
				c.printf("no runs found\n")
				return nil
			}
			for _, item := range items {
				c.printf("run_id=%s loaded_at=%s dir=%s gens=%d individuals=%d unhealthy=%d warnings=%d\n",
					item.RunID,
					item.LoadedAtUTC,
					item.Dir,
					item.Generations,
					item.Individuals,
					item.Unhealthy,
					item.Warnings,
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	return cmd
}

func newWatchCmd(c *cli) *cobra.Command {
	var (
		debounce    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch <run-dir>",
		Short: "Reload a run directory whenever the ENAS job writes to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("debounce") {
				debounce = c.cfg.debounce()
			}
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = c.cfg.Watch.MetricsAddr
			}

			reg := prometheus.NewRegistry()
			collectors := metrics.NewCollectors(reg)
			client, err := c.newClient(ctx, collectors)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			if metricsAddr != "" {
				stop := serveMetrics(metricsAddr, reg, c.logger)
				defer stop()
			}

			opts := c.loadOptions()
			opts.Metrics = collectors
			w, err := watch.New(args[0], client.Registry(), watch.Options{
				Debounce: debounce,
				Load:     opts,
				Logger:   c.logger,
				Metrics:  collectors,
				OnReload: func(r *evovis.Run, err error) {
					if err != nil {
						c.printf("reload failed: %v\n", err)
						return
					}
					if err := client.Index(ctx, r); err != nil {
						c.logger.Warn("indexing reloaded run failed", zap.Error(err))
					}
					c.printf("reloaded run_id=%s load_id=%s generations=%d individuals=%d\n",
						r.ID(), r.LoadID(), len(r.GenerationIndices()), r.IndividualCount())
				},
			})
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a reload")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func newSampleCmd(c *cli) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "sample <base-dir>",
		Short: "Write a small example run directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir, err := runwriter.WriteRun(args[0], runwriter.Sample(runID))
			if err != nil {
				return err
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				abs = dir
			}
			c.printf("wrote sample run_id=%s dir=%s\n", runID, abs)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "sample-run", "name of the run directory")
	return cmd
}
