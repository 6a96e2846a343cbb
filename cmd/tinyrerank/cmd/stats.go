package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tinyrerank/internal/output"
	"github.com/Aman-CERP/tinyrerank/internal/telemetry"
)

func newStatsCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool
	var days int
	var limit int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stage latency and recent searches",
		Long: `Display the search history recorded when telemetry.enabled is true:
  - Retrieval, rerank and total latency distribution
  - Most frequent query terms
  - Recent searches`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, g, jsonOutput, days, limit)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days of latency history to include")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of recent searches to show")

	return cmd
}

// statsOutput is the JSON output format for stats.
type statsOutput struct {
	Path      string                  `json:"path"`
	Days      int                     `json:"days"`
	Latency   telemetry.Histogram     `json:"latency"`
	MeanTotal float64                 `json:"mean_total_seconds"`
	TopTerms  []telemetry.TermCount   `json:"top_terms"`
	Recent    []telemetry.SearchEvent `json:"recent"`
}

func runStats(ctx context.Context, cmd *cobra.Command, g *globalOptions, jsonOutput bool, days, limit int) error {
	cfg, err := g.config(cmd)
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())

	path := cfg.Telemetry.Path
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if jsonOutput {
			return out.JSON(statsOutput{Path: path, Days: days, Latency: telemetry.Histogram{}})
		}
		out.Warningf("No search history at %s", path)
		out.Status("", "Set telemetry.enabled: true (or TINYRERANK_TELEMETRY_ENABLED=true) to record searches.")
		return nil
	}

	stats, err := loadStats(ctx, path, days, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return out.JSON(stats)
	}
	printStats(out, stats)
	return nil
}

func loadStats(ctx context.Context, path string, days, limit int) (*statsOutput, error) {
	if days <= 0 {
		days = 1
	}
	store, err := telemetry.OpenStore(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	now := time.Now()
	from := now.AddDate(0, 0, -(days - 1)).Format(time.DateOnly)
	latency, err := store.LatencyCounts(ctx, from, now.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}

	recent, err := store.RecentSearches(ctx, limit)
	if err != nil {
		return nil, err
	}

	// Replay oldest first so term counts and the mean cover the same window.
	m := telemetry.NewMetrics(nil, telemetry.Config{RecentCapacity: max(limit, 1)})
	for i := len(recent) - 1; i >= 0; i-- {
		_ = m.RecordSearch(ctx, recent[i])
	}
	snap := m.Snapshot()

	topTerms := snap.TopTerms
	if len(topTerms) > 10 {
		topTerms = topTerms[:10]
	}

	return &statsOutput{
		Path:      path,
		Days:      days,
		Latency:   latency,
		MeanTotal: snap.MeanTotal.Seconds(),
		TopTerms:  topTerms,
		Recent:    recent,
	}, nil
}

func printStats(out *output.Writer, s *statsOutput) {
	out.Header(fmt.Sprintf("Stage latency (last %d days)", s.Days))
	for _, stage := range telemetry.Stages {
		var peak int64
		for _, b := range telemetry.Buckets {
			peak = max(peak, s.Latency[stage][b])
		}
		out.Newline()
		out.KeyValue("Stage", stage)
		for _, b := range telemetry.Buckets {
			out.Bar(string(b), s.Latency[stage][b], peak, 30)
		}
	}

	out.Newline()
	out.Header("Recent searches")
	if len(s.Recent) == 0 {
		out.Status("", "none")
		return
	}
	out.KeyValue("Mean total", fmt.Sprintf("%.4fs", s.MeanTotal))
	if len(s.TopTerms) > 0 {
		terms := ""
		for i, tc := range s.TopTerms {
			if i > 0 {
				terms += ", "
			}
			terms += fmt.Sprintf("%s (%d)", tc.Term, tc.Count)
		}
		out.KeyValue("Top terms", terms)
	}

	rows := make([][]string, len(s.Recent))
	for i, ev := range s.Recent {
		rows[i] = []string{
			ev.Timestamp.Local().Format(time.DateTime),
			truncate(ev.Query, 40),
			strconv.Itoa(ev.NumCandidates),
			strconv.Itoa(ev.NumResults),
			fmt.Sprintf("%.4f", ev.Retrieval.Seconds()),
			fmt.Sprintf("%.4f", ev.Rerank.Seconds()),
			fmt.Sprintf("%.4f", ev.Total.Seconds()),
		}
	}
	out.Table([]string{"time", "query", "candidates", "results", "retrieval_s", "rerank_s", "total_s"}, rows)
}
