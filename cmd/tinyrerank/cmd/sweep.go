package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tinyrerank/internal/eval"
	"github.com/Aman-CERP/tinyrerank/internal/output"
)

// sweepOptions holds CLI flags for sweep.
type sweepOptions struct {
	query      string
	candidates []int
	jsonOutput bool
}

func newSweepCmd(g *globalOptions) *cobra.Command {
	var opts sweepOptions

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Time retrieval and rerank across candidate counts",
		Long: `Run one query at several candidate counts, reranking every candidate, and
report the retrieval, rerank and total time for each.

Examples:
  tinyrerank --root ./docs sweep --query "backups"
  tinyrerank --root ./docs --scorer http sweep --query "backups" --candidates 10,100,500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd.Context(), cmd, g, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "Query text (required)")
	cmd.Flags().IntSliceVar(&opts.candidates, "candidates", []int{25, 50, 100}, "Candidate counts to time")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

func runSweep(ctx context.Context, cmd *cobra.Command, g *globalOptions, opts sweepOptions) error {
	if err := requireQuery(opts.query); err != nil {
		return err
	}

	cfg, err := g.config(cmd)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("candidates") {
		opts.candidates = cfg.Eval.SweepCandidates
	}

	a, err := newApp(ctx, cfg, g.root)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	rows, err := eval.Sweep(ctx, a.engine, opts.query, cfg.Search.ColumnsToRerank, opts.candidates)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		return out.JSON(rows)
	}

	table := make([][]string, len(rows))
	for i, r := range rows {
		table[i] = []string{
			strconv.Itoa(r.NumCandidates),
			fmt.Sprintf("%.4f", r.Timing.RetrievalSeconds()),
			fmt.Sprintf("%.4f", r.Timing.RerankSeconds()),
			fmt.Sprintf("%.4f", r.Timing.TotalSeconds()),
		}
	}
	out.Table([]string{"num_candidates", "retrieval_s", "rerank_s", "total_s"}, table)
	return nil
}
