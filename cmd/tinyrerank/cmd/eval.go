package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tinyrerank/internal/eval"
	"github.com/Aman-CERP/tinyrerank/internal/output"
)

// evalOptions holds CLI flags for eval.
type evalOptions struct {
	qrels         string
	numCandidates int
	ks            []int
	jsonOutput    bool
}

func newEvalCmd(g *globalOptions) *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Measure Recall@K against relevance judgments",
		Long: `Run every query in a judgment file through retrieval and a full rerank of
the candidates, and report per-query Recall@K.

The judgment file maps each query to its relevant document ids, as JSON or
YAML:

  "rotate api keys": [security/keys, ops/rotation]

Recall@K is 1 when any relevant id is in the top K, else 0. Invalid entries
are reported as error rows and do not stop the run. A query none of whose
relevant ids exist under --root is also an error row, not a 0. Error rows
are excluded from the mean, and the footer counts them.

Examples:
  tinyrerank --root ./docs eval --qrels judgments.json
  tinyrerank --root ./docs eval --qrels judgments.yaml --k 1,5,10 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEval(cmd.Context(), cmd, g, opts)
		},
	}

	cmd.Flags().StringVar(&opts.qrels, "qrels", "", "Judgment file (.json, .yaml or .yml)")
	cmd.Flags().IntVar(&opts.numCandidates, "num-candidates", 50, "Candidates retrieved and reranked per query")
	cmd.Flags().IntSliceVar(&opts.ks, "k", []int{5, 10}, "Recall@K cutoffs")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("qrels")

	return cmd
}

func runEval(ctx context.Context, cmd *cobra.Command, g *globalOptions, opts evalOptions) error {
	cfg, err := g.config(cmd)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("num-candidates") {
		opts.numCandidates = cfg.Search.NumCandidates
	}
	if !cmd.Flags().Changed("k") {
		opts.ks = cfg.Eval.Ks
	}

	judgments, err := eval.LoadJudgments(opts.qrels)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, g.root)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	harness := eval.NewHarness(a.engine,
		eval.WithKs(opts.ks...),
		eval.WithNumCandidates(opts.numCandidates),
		eval.WithColumns(cfg.Search.ColumnsToRerank),
	)
	report, err := harness.Run(ctx, judgments)
	if err != nil {
		return err
	}

	mean, valid := meanRecall(report)
	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		return out.JSON(struct {
			*eval.Report
			MeanRecall   []float64 `json:"mean_recall"`
			ValidQueries int       `json:"valid_queries"`
		}{report, mean, valid})
	}
	printEval(out, report, mean, valid)
	return nil
}

// meanRecall averages Recall@K over rows without errors. With no valid
// rows every mean is 0.
func meanRecall(report *eval.Report) ([]float64, int) {
	sums := make([]float64, len(report.Ks))
	valid := 0
	for _, row := range report.Rows {
		if row.Err != nil || len(row.Recall) != len(report.Ks) {
			continue
		}
		valid++
		for i, r := range row.Recall {
			sums[i] += r
		}
	}
	if valid > 0 {
		for i := range sums {
			sums[i] /= float64(valid)
		}
	}
	return sums, valid
}

func printEval(out *output.Writer, report *eval.Report, mean []float64, valid int) {
	headers := []string{"query"}
	for _, k := range report.Ks {
		headers = append(headers, "recall@"+strconv.Itoa(k))
	}
	headers = append(headers, "note")

	rows := make([][]string, 0, len(report.Rows))
	for _, r := range report.Rows {
		row := []string{truncate(r.Query, 50)}
		for i := range report.Ks {
			if r.Err != nil || i >= len(r.Recall) {
				row = append(row, "-")
				continue
			}
			row = append(row, fmt.Sprintf("%.2f", r.Recall[i]))
		}
		note := ""
		if r.Err != nil {
			note = "error: " + r.Err.Error()
		}
		rows = append(rows, append(row, note))
	}

	footer := []string{fmt.Sprintf("mean (%d queries)", valid)}
	for _, m := range mean {
		footer = append(footer, fmt.Sprintf("%.4f", m))
	}
	footer = append(footer, "")

	out.Table(headers, rows, footer)
	if skipped := len(report.Rows) - valid; skipped > 0 {
		out.Warningf("%d of %d judgments skipped", skipped, len(report.Rows))
	}
	out.Statusf("", "run %s, %d candidates per query, %s", report.RunID, report.NumCandidates, report.Duration.Round(time.Millisecond))
}
