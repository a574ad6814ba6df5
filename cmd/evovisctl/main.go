package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"evovis/internal/ingest"
	"evovis/internal/metrics"
	"evovis/pkg/evovis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if kind, ok := evovis.KindOf(err); ok {
			fmt.Fprintf(os.Stderr, "kind=%s\n", kind)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(&cli{out: stdout})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// cli carries the state shared by all subcommands once the persistent flags
// and the config file are resolved.
type cli struct {
	out io.Writer

	configPath string
	verbose    bool
	storeKind  string
	dbPath     string
	strict     bool
	timeout    float64
	jsonOut    bool

	cfg    fileConfig
	logger *zap.Logger
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "evovisctl",
		Short:         "Load, check and inspect ENAS run directories",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML config file")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
	flags.StringVar(&c.storeKind, "store", "", "run index backend: memory|sqlite")
	flags.StringVar(&c.dbPath, "db-path", "", "sqlite database path")
	flags.BoolVar(&c.strict, "strict", false, "fail the load on chromosomes that do not follow the gene pool")
	flags.Float64Var(&c.timeout, "timeout", 0, "load timeout in seconds")
	flags.BoolVar(&c.jsonOut, "json", false, "emit JSON")

	root.AddCommand(
		newValidateCmd(c),
		newInspectCmd(c),
		newLineageCmd(c),
		newBestCmd(c),
		newStatsCmd(c),
		newGenePoolCmd(c),
		newIngestCmd(c),
		newRunsCmd(c),
		newWatchCmd(c),
		newSampleCmd(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store = c.storeKind
	}
	if flags.Changed("db-path") {
		cfg.DBPath = c.dbPath
	}
	if flags.Changed("strict") {
		cfg.Load.StrictChromosomeValidation = c.strict
	}
	if flags.Changed("timeout") {
		cfg.Load.TimeoutSeconds = ingest.Seconds(c.timeout)
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	c.cfg = cfg

	config := zap.NewProductionConfig()
	if c.verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	c.logger, err = config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func (c *cli) loadOptions() evovis.LoadOptions {
	opts := c.cfg.Load
	opts.Logger = c.logger
	return opts
}

func (c *cli) newClient(ctx context.Context, collectors *metrics.Collectors) (*evovis.Client, error) {
	return evovis.NewClient(ctx, evovis.Options{
		StoreKind: c.cfg.Store,
		DBPath:    c.cfg.DBPath,
		Logger:    c.logger,
		Metrics:   collectors,
	})
}

func (c *cli) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *cli) writeJSON(value any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
