package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// options shared by every subcommand.
type globalOpts struct {
	server    string
	apiKeyEnv string
	keyHeader string
	principal string
	timeout   time.Duration
	rng       string
}

func (g *globalOpts) client() *client {
	return newClient(g.server, os.Getenv(g.apiKeyEnv), g.keyHeader, g.principal, g.timeout)
}

func (g *globalOpts) rangeQuery() url.Values {
	if g.rng == "" {
		return nil
	}
	return url.Values{"range": []string{g.rng}}
}

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globalOpts{}

	root := &cobra.Command{
		Use:           "flowbenchctl",
		Short:         "Query workflow analytics and run benchmarks on a flowbench-server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	pf := root.PersistentFlags()
	pf.StringVar(&g.server, "server", "http://localhost:8080", "flowbench-server base URL")
	pf.StringVar(&g.apiKeyEnv, "api-key-env", "FLOWBENCH_API_KEY", "environment variable holding the API key")
	pf.StringVar(&g.keyHeader, "api-key-header", "x-api-key", "header carrying the API key")
	pf.StringVar(&g.principal, "principal", "", "principal id sent as X-Principal-ID")
	pf.DurationVar(&g.timeout, "timeout", 60*time.Second, "HTTP client timeout")

	// get builds a read-only subcommand for GET /api/v1/workflows/{id}/<suffix>.
	get := func(use, short, suffix string, ranged bool) *cobra.Command {
		cmd := &cobra.Command{
			Use:   use + " <workflow-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var q url.Values
				if ranged {
					q = g.rangeQuery()
				}
				raw, err := g.client().do(cmd.Context(), http.MethodGet,
					"/api/v1/workflows/"+url.PathEscape(args[0])+suffix, q, nil)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), raw)
			},
		}
		if ranged {
			cmd.Flags().StringVar(&g.rng, "range", "", "time range: 1h|24h|7d|30d|90d (default 24h)")
		}
		return cmd
	}

	root.AddCommand(
		get("analytics", "Show the aggregate analytics snapshot", "/analytics", true),
		get("trends", "Show per-day trends", "/trends", true),
		get("bottlenecks", "List slow or unreliable nodes", "/bottlenecks", true),
		get("efficiency", "Show the 24h efficiency score", "/efficiency", false),
		get("counters", "Show this server's rolling counters for a workflow", "/counters", false),
		get("history", "Show historical benchmark trends", "/benchmarks/trends", true),
		newBenchmarkCmd(g),
		newRankCmd(g),
		newClearCacheCmd(g),
	)
	return root
}

func newBenchmarkCmd(g *globalOpts) *cobra.Command {
	var (
		noComparison      bool
		noTrends          bool
		noRecommendations bool
		runTimeout        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "benchmark <workflow-id>",
		Short: "Run and persist a benchmark report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			include := func(skip bool) *bool { v := !skip; return &v }
			body := map[string]interface{}{
				"include_comparison":      include(noComparison),
				"include_trends":          include(noTrends),
				"include_recommendations": include(noRecommendations),
			}
			if g.rng != "" {
				body["time_range"] = g.rng
			}
			if runTimeout > 0 {
				body["timeout"] = runTimeout.String()
			}
			raw, err := g.client().do(cmd.Context(), http.MethodPost,
				"/api/v1/workflows/"+url.PathEscape(args[0])+"/benchmarks", nil, body)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	f := cmd.Flags()
	f.StringVar(&g.rng, "range", "", "time range: 1h|24h|7d|30d|90d (default 24h)")
	f.BoolVar(&noComparison, "no-comparison", false, "skip the industry standard comparison")
	f.BoolVar(&noTrends, "no-trends", false, "skip the trend series")
	f.BoolVar(&noRecommendations, "no-recommendations", false, "skip recommendations")
	f.DurationVar(&runTimeout, "run-timeout", 0, "server-side benchmark deadline (default server setting)")
	return cmd
}

func newRankCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "rank <principal-id>",
		Short: "Rank a principal's workflows by latest benchmark score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := g.client().do(cmd.Context(), http.MethodGet,
				"/api/v1/principals/"+url.PathEscape(args[0])+"/rankings", nil, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func newClearCacheCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Drop every analytics and benchmark cache entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := g.client().do(cmd.Context(), http.MethodDelete, "/api/v1/cache", nil, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

// printJSON re-indents raw for the terminal.
func printJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
