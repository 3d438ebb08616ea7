package main

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/conduit/pkg/app"
	"mercator-hq/conduit/pkg/cli"
	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/providerfactory"
)

var validateFlags struct {
	output string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file with environment overrides, validate it and
check that every provider in every capability chain can serve that
capability. Nothing is contacted: no upstream requests are made and the
cache backend is not opened.

Examples:
  conduit validate --config conduit.yaml
  conduit validate -o json`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.output, "output", "o", "text", "output format: text, json, csv")
}

// chainReport describes one capability of a validated configuration.
type chainReport struct {
	Capability string   `json:"capability"`
	Chain      []string `json:"chain"`
	TTL        string   `json:"ttl"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.output)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if err := checkChains(cfg); err != nil {
		return cli.NewConfigError("capabilities", err.Error())
	}

	reports := chainReports(cfg)
	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(out, reports)
	}

	t := cli.Table{Header: []string{"CAPABILITY", "CHAIN", "TTL"}}
	for _, r := range reports {
		t.Records = append(t.Records, []string{r.Capability, strings.Join(r.Chain, " → "), r.TTL})
	}
	if format == cli.FormatText {
		fmt.Fprintf(out, "✓ Configuration valid: %s (%d providers, %d capabilities)\n\n",
			cfgFile, len(cfg.Providers), len(cfg.Capabilities))
	}
	return cli.NewFormatter(format).FormatTo(out, t)
}

// checkChains builds each configured adapter and reports chain entries
// naming a provider that does not implement the capability.
func checkChains(cfg *config.Config) error {
	served := make(map[string][]string, len(cfg.Providers))
	for _, d := range app.Descriptors(cfg) {
		adapter, err := providerfactory.New(d.Provider)
		if err != nil {
			return fmt.Errorf("provider %q: %w", d.Provider.Name, err)
		}
		served[d.Provider.Name] = adapter.Capabilities()
		_ = adapter.Close()
	}

	var problems []string
	for _, r := range chainReports(cfg) {
		for _, name := range r.Chain {
			if !slices.Contains(served[name], r.Capability) {
				problems = append(problems, fmt.Sprintf("%s: provider %q does not serve it", r.Capability, name))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func chainReports(cfg *config.Config) []chainReport {
	ttls := app.TTLs(cfg)
	reports := make([]chainReport, 0, len(cfg.Capabilities))
	for name, c := range cfg.Capabilities {
		ttl := cfg.Cache.DefaultTTL
		if v, ok := ttls[name]; ok {
			ttl = v
		}
		reports = append(reports, chainReport{Capability: name, Chain: c.Chain, TTL: ttl.String()})
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Capability < reports[j].Capability })
	return reports
}
