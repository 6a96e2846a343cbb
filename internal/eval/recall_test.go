package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecallAtK(t *testing.T) {
	ranked := []string{"a", "b", "c", "d", "e", "f"}

	tests := []struct {
		name     string
		relevant []string
		k        int
		want     float64
	}{
		{"hit at first position", []string{"a"}, 5, 1.0},
		{"hit at cutoff", []string{"e"}, 5, 1.0},
		{"hit past cutoff", []string{"f"}, 5, 0.0},
		{"many relevant one found is still one", []string{"a", "x", "y", "z"}, 5, 1.0},
		{"no overlap", []string{"x"}, 10, 0.0},
		{"k zero", []string{"a"}, 0, 0.0},
		{"k negative", []string{"a"}, -3, 0.0},
		{"k beyond ranking", []string{"f"}, 100, 1.0},
		{"empty relevant", nil, 5, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecallAtK(ranked, tt.relevant, tt.k))
		})
	}
}

func TestRecallAtK_EmptyRanking(t *testing.T) {
	assert.Equal(t, 0.0, RecallAtK(nil, []string{"a"}, 5))
}
