package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tinyrerank/internal/config"
	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
	"github.com/Aman-CERP/tinyrerank/internal/output"
	"github.com/Aman-CERP/tinyrerank/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	query         string
	numCandidates int
	numResults    int
	columns       []string
	jsonOutput    bool
	explain       bool
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Retrieve and rerank documents for a query",
		Long: `Retrieve the top --num-candidates documents by embedding similarity,
rerank all of them with the relevance scorer, and print the best
--num-results.

Examples:
  tinyrerank --root ./docs search --query "rotate api keys"
  tinyrerank --root ./docs search --query "backups" --num-results 3 --columns id,title
  tinyrerank --root ./docs search --query "backups" --json --explain`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd.Context(), cmd, g, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "Query text (required)")
	cmd.Flags().IntVar(&opts.numCandidates, "num-candidates", 50, "Candidates retrieved and reranked")
	cmd.Flags().IntVarP(&opts.numResults, "num-results", "n", 10, "Results printed after reranking")
	cmd.Flags().StringSliceVar(&opts.columns, "columns", []string{"id", "title", "url"}, "Record fields to display")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show retrieval rank and similarity per result")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, g *globalOptions, opts searchOptions) error {
	if err := requireQuery(opts.query); err != nil {
		return err
	}

	cfg, err := g.config(cmd)
	if err != nil {
		return err
	}
	applySearchDefaults(cmd, cfg, &opts)
	if err := config.ValidateColumns("--columns", opts.columns); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, g.root)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resp, err := a.engine.Search(ctx, search.Request{
		Query:         opts.query,
		Columns:       cfg.Search.ColumnsToRerank,
		NumCandidates: opts.numCandidates,
		NumResults:    opts.numResults,
		Explain:       opts.explain,
	})
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		return out.JSON(searchJSON(resp, opts.columns))
	}
	printSearch(out, resp, opts)
	return nil
}

// applySearchDefaults fills flags the user did not set from config.
func applySearchDefaults(cmd *cobra.Command, cfg *config.Config, opts *searchOptions) {
	if !cmd.Flags().Changed("num-candidates") {
		opts.numCandidates = cfg.Search.NumCandidates
	}
	if !cmd.Flags().Changed("num-results") {
		opts.numResults = cfg.Search.NumResults
	}
	if !cmd.Flags().Changed("columns") {
		opts.columns = cfg.Search.DisplayColumns
	}
}

// searchResultJSON is one result: the display columns plus scores.
type searchResultJSON map[string]any

type searchResponseJSON struct {
	Results       []searchResultJSON `json:"results"`
	Timing        search.Timing      `json:"timing"`
	NumCandidates int                `json:"num_candidates"`
	NumResults    int                `json:"num_results"`
}

func searchJSON(resp *search.Response, columns []string) searchResponseJSON {
	results := make([]searchResultJSON, len(resp.Results))
	for i, rec := range resp.Results {
		r := searchResultJSON{"score": resp.Scores[i]}
		for _, col := range columns {
			r[col] = rec.Field(col)
		}
		if i < len(resp.Explain) {
			r["retrieval_rank"] = resp.Explain[i].RetrievalRank
			r["similarity"] = resp.Explain[i].Similarity
		}
		results[i] = r
	}
	return searchResponseJSON{
		Results:       results,
		Timing:        resp.Timing,
		NumCandidates: resp.NumCandidates,
		NumResults:    resp.NumResults,
	}
}

func printSearch(out *output.Writer, resp *search.Response, opts searchOptions) {
	if len(resp.Results) == 0 {
		out.Warningf("No results for %q", opts.query)
		return
	}

	headers := append([]string{"#"}, opts.columns...)
	headers = append(headers, "score")
	if opts.explain {
		headers = append(headers, "retrieval rank", "similarity")
	}

	rows := make([][]string, len(resp.Results))
	for i, rec := range resp.Results {
		row := []string{strconv.Itoa(i + 1)}
		for _, col := range opts.columns {
			row = append(row, truncate(rec.Field(col), 60))
		}
		row = append(row, fmt.Sprintf("%.4f", resp.Scores[i]))
		if opts.explain && i < len(resp.Explain) {
			ex := resp.Explain[i]
			row = append(row, strconv.Itoa(ex.RetrievalRank), fmt.Sprintf("%.4f", ex.Similarity))
		}
		rows[i] = row
	}

	out.Table(headers, rows)
	out.Statusf("", "%d of %d candidates in %.4fs (retrieval %.4fs, rerank %.4fs)",
		resp.NumResults, resp.NumCandidates,
		resp.Timing.TotalSeconds(), resp.Timing.RetrievalSeconds(), resp.Timing.RerankSeconds())
}

// truncate shortens s to max runes on one line.
func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// requireQuery rejects blank --query values before any capability is built.
func requireQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return rerrors.New(rerrors.ErrCodeQueryEmpty, "query must not be empty", nil).
			WithSuggestion("pass --query with the text to search for")
	}
	return nil
}
