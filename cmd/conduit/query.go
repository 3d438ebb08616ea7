package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/conduit/pkg/app"
	"mercator-hq/conduit/pkg/cli"
	"mercator-hq/conduit/pkg/fallback"
	"mercator-hq/conduit/pkg/gateway"
	"mercator-hq/conduit/pkg/limits/ratelimit"
	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/server"
)

var queryFlags struct {
	params     []string
	forceFresh bool
	timeout    time.Duration
	server     string
	output     string
}

var queryCmd = &cobra.Command{
	Use:   "query <capability>",
	Short: "Query a capability",
	Long: `Query a capability and print the result.

Without --server the gateway is assembled in-process from the config file,
so the configured cache backend is shared with a running server when it is
sqlite or redis. With --server the query is sent to a running gateway.

Examples:
  conduit query quote -p symbol=AAPL
  conduit query economic_series -p series_id=UNRATE --force-fresh
  conduit query filings -p cik=0000320193 --server http://localhost:8080 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringArrayVarP(&queryFlags.params, "param", "p", nil, "query parameter as key=value (repeatable)")
	queryCmd.Flags().BoolVar(&queryFlags.forceFresh, "force-fresh", false, "skip the initial cache read")
	queryCmd.Flags().DurationVar(&queryFlags.timeout, "timeout", 0, "query deadline (default from config)")
	queryCmd.Flags().StringVar(&queryFlags.server, "server", "", "base URL of a running gateway")
	queryCmd.Flags().StringVarP(&queryFlags.output, "output", "o", "text", "output format: text, json")
}

func runQuery(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(queryFlags.output)
	if err != nil {
		return err
	}
	params, err := parseParams(queryFlags.params)
	if err != nil {
		return err
	}
	opts := gateway.Options{ForceFresh: queryFlags.forceFresh, Timeout: queryFlags.timeout}

	var res *gateway.Result
	if queryFlags.server != "" {
		res, err = remoteQuery(cmd.Context(), http.DefaultClient, queryFlags.server, args[0], params, opts)
	} else {
		res, err = localQuery(cmd.Context(), args[0], params, opts)
	}
	if err != nil {
		if isUnavailable(err) {
			return cli.NewUnavailableError("query", err)
		}
		return cli.NewCommandError("query", err)
	}
	return printResult(cmd.OutOrStdout(), format, res)
}

// parseParams turns key=value flags into query parameters.
func parseParams(pairs []string) (providers.Params, error) {
	params := make(providers.Params, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", pair)
		}
		params[key] = value
	}
	return params, nil
}

func localQuery(ctx context.Context, capability string, params providers.Params, opts gateway.Options) (*gateway.Result, error) {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, os.Stderr, true)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, app.WithLogger(logger), app.WithVersion(Version))
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	return a.Gateway.Query(ctx, capability, params, opts)
}

// remoteError is a non-2xx gateway response.
type remoteError struct {
	Status int
	Body   *server.ErrorBody
}

func (e *remoteError) Error() string {
	if e.Body == nil {
		return fmt.Sprintf("gateway returned %d", e.Status)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Body.Type, e.Body.Message)
	for _, a := range e.Body.Attempts {
		fmt.Fprintf(&b, "\n  %s: %s", a.Provider, a.Reason)
	}
	return b.String()
}

func remoteQuery(ctx context.Context, client *http.Client, base, capability string, params providers.Params, opts gateway.Options) (*gateway.Result, error) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	if opts.ForceFresh {
		q.Set("force_fresh", strconv.FormatBool(true))
	}
	if opts.Timeout > 0 {
		q.Set("timeout", opts.Timeout.String())
	}
	target := strings.TrimRight(base, "/") + "/v1/query/" + url.PathEscape(capability)
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var envelope server.ErrorResponse
		_ = json.Unmarshal(body, &envelope)
		return nil, &remoteError{Status: resp.StatusCode, Body: envelope.Error}
	}

	var res gateway.Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("invalid gateway response: %w", err)
	}
	return &res, nil
}

func isUnavailable(err error) bool {
	var re *remoteError
	if errors.As(err, &re) {
		return re.Status == http.StatusServiceUnavailable || re.Status == http.StatusTooManyRequests
	}
	return errors.Is(err, fallback.ErrAllProvidersUnavailable) || errors.Is(err, ratelimit.ErrRateLimitExceeded)
}

func printResult(w io.Writer, format cli.OutputFormat, res *gateway.Result) error {
	if format == cli.FormatJSON {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(w, res)
	}

	status := "fresh"
	switch {
	case res.Stale:
		status = "stale"
	case res.Cached:
		status = "cached"
	}
	table := cli.Table{Records: [][]string{
		{"source:", res.Source},
		{"fetched:", res.FetchedAt.Format(time.RFC3339)},
		{"status:", status},
		{"request:", res.RequestID},
	}}
	if err := cli.NewFormatter(cli.FormatText).FormatTo(w, table); err != nil {
		return err
	}

	var pretty any
	if err := json.Unmarshal(res.Data, &pretty); err != nil {
		_, err = fmt.Fprintf(w, "\n%s\n", res.Data)
		return err
	}
	fmt.Fprintln(w)
	return cli.NewFormatter(cli.FormatJSON).FormatTo(w, pretty)
}
