package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"mercator-hq/conduit/pkg/app"
	"mercator-hq/conduit/pkg/cli"
	"mercator-hq/conduit/pkg/gateway"
	"mercator-hq/conduit/pkg/providers"
)

var warmFlags struct {
	file        string
	concurrency int
	forceFresh  bool
}

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Pre-populate the response cache",
	Long: `Run a list of queries through the gateway so their answers are cached.

This is useful with the sqlite and redis cache backends, which a running
server shares. Queries go through the normal cascade and respect every
provider's rate limit.

The query file is YAML:

  queries:
    - capability: quote
      params: {symbol: AAPL}
    - capability: economic_series
      params: {series_id: GDP}

Examples:
  conduit warm --file queries.yaml
  conduit warm --file queries.yaml --concurrency 2 --force-fresh`,
	Args: cobra.NoArgs,
	RunE: runWarm,
}

func init() {
	rootCmd.AddCommand(warmCmd)

	warmCmd.Flags().StringVarP(&warmFlags.file, "file", "f", "", "query file (required)")
	warmCmd.Flags().IntVar(&warmFlags.concurrency, "concurrency", 4, "queries in flight at once")
	warmCmd.Flags().BoolVar(&warmFlags.forceFresh, "force-fresh", false, "refresh entries that are still fresh")
	_ = warmCmd.MarkFlagRequired("file")
}

// warmQuery is one entry of a warm file.
type warmQuery struct {
	Capability string           `yaml:"capability"`
	Params     providers.Params `yaml:"params"`
}

type warmFile struct {
	Queries []warmQuery `yaml:"queries"`
}

func loadWarmQueries(path string) ([]warmQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var f warmFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for i, q := range f.Queries {
		if q.Capability == "" {
			return nil, fmt.Errorf("%s: query %d has no capability", path, i+1)
		}
	}
	return f.Queries, nil
}

// Querier is the part of the gateway warm needs.
type Querier interface {
	Query(ctx context.Context, capability string, params providers.Params, opts gateway.Options) (*gateway.Result, error)
}

// warm runs queries with at most concurrency in flight and returns how many
// failed. Failures do not stop the batch.
func warm(ctx context.Context, q Querier, queries []warmQuery, concurrency int, opts gateway.Options, progress cli.ProgressReporter) int64 {
	if concurrency < 1 {
		concurrency = 1
	}
	var failed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	progress.Start(int64(len(queries)))
	for _, wq := range queries {
		g.Go(func() error {
			_, err := q.Query(ctx, wq.Capability, wq.Params, opts)
			if err != nil {
				failed.Add(1)
			}
			progress.Done(err != nil)
			return nil
		})
	}
	_ = g.Wait()
	progress.Finish()
	return failed.Load()
}

func runWarm(cmd *cobra.Command, args []string) error {
	queries, err := loadWarmQueries(warmFlags.file)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr, true)
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := app.New(ctx, cfg, app.WithLogger(logger), app.WithVersion(Version))
	if err != nil {
		return cli.NewCommandError("warm", err)
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	failed := warm(ctx, a.Gateway, queries, warmFlags.concurrency,
		gateway.Options{ForceFresh: warmFlags.forceFresh},
		cli.NewProgressReporter(cmd.ErrOrStderr()))

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Warmed %d of %d queries\n", int64(len(queries))-failed, len(queries))
	if failed > 0 {
		return cli.NewUnavailableError("warm", fmt.Errorf("%d queries failed", failed))
	}
	return nil
}
