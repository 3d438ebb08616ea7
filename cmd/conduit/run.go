package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/conduit/pkg/app"
	"mercator-hq/conduit/pkg/cli"
	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/server"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	watch         bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Conduit gateway server",
	Long: `Start the Conduit gateway server with the specified configuration.

The server answers capability queries on /v1/query/{capability} and exposes
/health, /ready, /health/providers and /metrics.

The configuration file is watched for changes and also reloaded on SIGHUP.
Cache TTLs, the stale window and capability chains take effect immediately;
changes to provider definitions require a restart.

Examples:
  # Start with default config
  conduit run

  # Start with custom config
  conduit run --config /etc/conduit/conduit.yaml

  # Override listen address
  conduit run --listen 0.0.0.0:8080

  # Validate config and assemble the gateway without serving
  conduit run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "assemble the gateway without starting the server")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", true, "reload the config file when it changes")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := newLogger(cfg, os.Stdout, false)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

	a, err := app.New(ctx, cfg, app.WithLogger(logger), app.WithVersion(Version))
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Error("shutdown cleanup failed", "error", err)
		}
	}()

	if runFlags.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration valid (%d providers, %d capabilities)\n",
			a.Providers.Len(), len(a.Cascade.Capabilities()))
		return nil
	}

	config.Subscribe(func(next *config.Config) {
		if runFlags.listenAddress != "" {
			next.Server.ListenAddress = runFlags.listenAddress
		}
		if err := a.Apply(next); err != nil {
			logger.Error("config reload rejected, keeping previous configuration", "error", err)
		}
	})

	if runFlags.watch {
		w, err := config.NewWatcher(cfgFile, 0, logger, config.Replace)
		if err != nil {
			logger.Warn("config watching disabled", "error", err)
		} else {
			go func() {
				if err := w.Run(ctx); err != nil {
					logger.Error("config watcher stopped", "error", err)
				}
			}()
		}
	}

	reload, stopReload := cli.WaitForReload()
	defer stopReload()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reload:
				logger.Info("SIGHUP received, reloading configuration", "path", cfgFile)
				if err := config.ReloadConfig(cfgFile); err != nil {
					logger.Error("config reload failed, keeping previous configuration", "error", err)
				}
			}
		}
	}()

	a.Sweeper.Start()

	srv := server.New(cfg.Server, server.NewHandler(a, server.BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
	}), logger)

	printBanner(cmd, cfg)
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

func printBanner(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	addr := dialAddress(cfg.Server.ListenAddress)
	fmt.Fprintf(out, "Conduit v%s\n", Version)
	fmt.Fprintf(out, "✓ Configuration loaded from %s\n", cfgFile)
	fmt.Fprintf(out, "✓ Query endpoint: http://%s/v1/query/{capability}\n", addr)
	fmt.Fprintf(out, "✓ Health endpoint: http://%s/health/providers\n", addr)
	if cfg.Telemetry.MetricsEnabled() {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", addr, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}
