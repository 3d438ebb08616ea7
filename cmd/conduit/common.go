package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"mercator-hq/conduit/pkg/cli"
	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/telemetry/logging"
)

// loadConfig reads path with environment overrides applied.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load %s: %v", path, err))
	}
	return cfg, nil
}

// newLogger builds the process logger. Client commands log at warn unless
// --verbose is set, so their stdout stays clean.
func newLogger(cfg *config.Config, w io.Writer, client bool) (*slog.Logger, error) {
	lc := logging.FromConfig(cfg.Telemetry.Logging, w)
	if client {
		lc.Level = "warn"
		if verbose {
			lc.Level = "debug"
		}
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return logger, nil
}

// serverURL resolves the base URL of a running gateway: the --server flag
// when set, otherwise the configured listen address.
func serverURL(flag string) (string, error) {
	if flag != "" {
		return strings.TrimRight(flag, "/"), nil
	}
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return "", err
	}
	return "http://" + dialAddress(cfg.Server.ListenAddress), nil
}

// dialAddress turns a listen address such as ":8080" or "0.0.0.0:8080" into
// one a client can connect to.
func dialAddress(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
