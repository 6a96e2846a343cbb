package scorer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// BM25 parameters for the static scorer
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// StaticScorer is an offline lexical scorer. Each call treats the documents
// it receives as the collection: query terms are weighted by BM25 using
// document frequencies across the call, and documents are cut to MaxLength
// tokens first. The same input always yields the same scores.
type StaticScorer struct {
	maxLength int
}

// Verify interface implementation at compile time
var _ Scorer = (*StaticScorer)(nil)

// NewStaticScorer creates a static scorer. maxLength <= 0 means
// DefaultMaxLength.
func NewStaticScorer(maxLength int) *StaticScorer {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &StaticScorer{maxLength: maxLength}
}

// Score returns a BM25 score per pair.
func (s *StaticScorer) Score(ctx context.Context, pairs []Pair) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return []float64{}, nil
	}

	docs := make([]map[string]int, len(pairs))
	lengths := make([]int, len(pairs))
	df := make(map[string]int)
	total := 0

	for i, p := range pairs {
		toks := tokens(p.Document)
		if len(toks) > s.maxLength {
			toks = toks[:s.maxLength]
		}
		tf := make(map[string]int, len(toks))
		for _, t := range toks {
			tf[t]++
		}
		for t := range tf {
			df[t]++
		}
		docs[i] = tf
		lengths[i] = len(toks)
		total += len(toks)
	}

	avgLen := float64(total) / float64(len(pairs))
	if avgLen == 0 {
		avgLen = 1
	}
	n := float64(len(pairs))

	scores := make([]float64, len(pairs))
	for i, p := range pairs {
		var score float64
		for _, q := range uniqueTokens(p.Query) {
			tf := float64(docs[i][q])
			if tf == 0 {
				continue
			}
			d := float64(df[q])
			idf := math.Log(1 + (n-d+0.5)/(d+0.5))
			norm := bm25K1 * (1 - bm25B + bm25B*float64(lengths[i])/avgLen)
			score += idf * tf * (bm25K1 + 1) / (tf + norm)
		}
		scores[i] = score
	}
	return scores, nil
}

// ModelName returns the model identifier.
func (s *StaticScorer) ModelName() string {
	return fmt.Sprintf("static-bm25-%d", s.maxLength)
}

// Close is a no-op.
func (s *StaticScorer) Close() error {
	return nil
}

// tokens lowercases text and splits it on anything but letters and digits.
func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// uniqueTokens returns the distinct tokens of text in first-seen order.
func uniqueTokens(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range tokens(text) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
