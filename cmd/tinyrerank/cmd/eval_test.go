package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/tinyrerank/internal/eval"
)

func writeQrels(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEvalCmd_JSON(t *testing.T) {
	// Given: one valid judgment and two invalid ones
	isolate(t)
	root := writeCorpus(t)
	qrels := writeQrels(t, "qrels.json",
		`{"cosine similarity": ["vectors.md"], "empty": [], "ghost": ["nope.md"]}`)

	// When: evaluating at the default cutoffs
	stdout, stderr, code := run(t, "--root", root, "eval", "--qrels", qrels, "--json")

	// Then: the run completes with error rows kept in order
	require.Equal(t, ExitOK, code, stderr)
	var got struct {
		RunID        string            `json:"run_id"`
		Ks           []int             `json:"ks"`
		Rows         []json.RawMessage `json:"rows"`
		MeanRecall   []float64         `json:"mean_recall"`
		ValidQueries int               `json:"valid_queries"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.NotEmpty(t, got.RunID)
	assert.Equal(t, []int{5, 10}, got.Ks)
	require.Len(t, got.Rows, 3)
	assert.Equal(t, 1, got.ValidQueries)
	assert.Equal(t, []float64{1, 1}, got.MeanRecall)

	var second map[string]any
	require.NoError(t, json.Unmarshal(got.Rows[1], &second))
	assert.Equal(t, "empty", second["query"])
	assert.Contains(t, second["error"], "invalid judgment")
	assert.Equal(t, "ERR_407_INVALID_JUDGMENT", second["code"])

	// Then: a query whose ids are all unknown is an error row, not a zero
	var third map[string]any
	require.NoError(t, json.Unmarshal(got.Rows[2], &third))
	assert.Equal(t, "ghost", third["query"])
	assert.Equal(t, "ERR_407_INVALID_JUDGMENT", third["code"])
	assert.NotContains(t, third, "recall")
}

func TestEvalCmd_HelpExplainsMeanExclusion(t *testing.T) {
	isolate(t)

	stdout, _, code := run(t, "eval", "--help")

	require.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "relevant ids exist under --root")
	assert.Contains(t, stdout, "excluded from the mean")
}

func TestEvalCmd_TableWithFooter(t *testing.T) {
	isolate(t)
	root := writeCorpus(t)
	qrels := writeQrels(t, "qrels.yaml", "bread yeast:\n  - bread.md\nmissing ids:\n  - nowhere.md\n")

	stdout, stderr, code := run(t, "--root", root, "eval", "--qrels", qrels, "--k", "1")

	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "recall@1")
	assert.Contains(t, stdout, "bread yeast")
	assert.Contains(t, stdout, "error:")
	assert.Contains(t, stdout, "mean (1 queries)")
	assert.Contains(t, stdout, "1.0000")
	assert.Contains(t, stdout, "1 of 2 judgments skipped")
}

func TestEvalCmd_NotAMapping(t *testing.T) {
	isolate(t)
	root := writeCorpus(t)
	qrels := writeQrels(t, "qrels.json", `["a", "b"]`)

	_, stderr, code := run(t, "--root", root, "eval", "--qrels", qrels)

	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "ERR_206_FILE_CORRUPT")
}

func TestEvalCmd_RequiresQrels(t *testing.T) {
	isolate(t)
	root := writeCorpus(t)

	_, stderr, code := run(t, "--root", root, "eval")

	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "qrels")
}

func TestMeanRecall(t *testing.T) {
	report := &eval.Report{
		Ks: []int{5, 10},
		Rows: []eval.Row{
			{Query: "a", Recall: []float64{1, 1}},
			{Query: "b", Recall: []float64{0, 1}},
			{Query: "c", Err: assert.AnError},
		},
	}

	mean, valid := meanRecall(report)

	assert.Equal(t, 2, valid)
	assert.Equal(t, []float64{0.5, 1}, mean)
}

func TestMeanRecall_NoValidRows(t *testing.T) {
	mean, valid := meanRecall(&eval.Report{Ks: []int{5}, Rows: []eval.Row{{Query: "x", Err: assert.AnError}}})

	assert.Zero(t, valid)
	assert.Equal(t, []float64{0}, mean)
}
