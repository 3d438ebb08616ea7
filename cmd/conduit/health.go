package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/conduit/pkg/cli"
	"mercator-hq/conduit/pkg/telemetry/health"
)

var healthFlags struct {
	server  string
	output  string
	timeout time.Duration
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show provider health of a running gateway",
	Long: `Fetch /health/providers from a running gateway and print the circuit
state, remaining rate limit tokens and last outcome of every provider.

The gateway address defaults to the listen address in the config file.

Examples:
  conduit health
  conduit health --server http://gateway.internal:8080 -o json`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().StringVar(&healthFlags.server, "server", "", "base URL of a running gateway")
	healthCmd.Flags().StringVarP(&healthFlags.output, "output", "o", "text", "output format: text, json, csv")
	healthCmd.Flags().DurationVar(&healthFlags.timeout, "timeout", 5*time.Second, "request timeout")
}

func runHealth(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(healthFlags.output)
	if err != nil {
		return err
	}
	base, err := serverURL(healthFlags.server)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), healthFlags.timeout)
	defer cancel()
	snap, err := fetchHealth(ctx, http.DefaultClient, base)
	if err != nil {
		return cli.NewCommandError("health", err)
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), snap)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), healthTable(snap))
}

func fetchHealth(ctx context.Context, client *http.Client, base string) (health.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health/providers", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %s", resp.Status)
	}
	var snap health.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("invalid health response: %w", err)
	}
	return snap, nil
}

// healthTable renders snap sorted by provider id.
func healthTable(snap health.Snapshot) cli.Table {
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	t := cli.Table{Header: []string{"PROVIDER", "CIRCUIT", "TOKENS", "SUCCESSES", "FAILURES", "LAST SUCCESS", "LAST ERROR"}}
	for _, name := range names {
		h := snap[name]
		lastSuccess, lastError := "-", "-"
		if h.LastSuccessAt != nil {
			lastSuccess = h.LastSuccessAt.Format(time.RFC3339)
		}
		if h.LastError != nil {
			lastError = *h.LastError
		}
		t.Records = append(t.Records, []string{
			name,
			h.CircuitState.String(),
			strconv.FormatFloat(h.TokensRemaining, 'f', 1, 64),
			strconv.FormatInt(h.Successes, 10),
			strconv.FormatInt(h.Failures, 10),
			lastSuccess,
			lastError,
		})
	}
	return t
}
