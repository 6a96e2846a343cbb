package corpus

import (
	"fmt"

	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
)

// Corpus is an ordered collection of records. Position i is the index the
// retriever reports for corpus[i].
type Corpus []Record

// Len returns the number of records.
func (c Corpus) Len() int {
	return len(c)
}

// Resolve maps retriever indices back to records, preserving order.
func (c Corpus) Resolve(indices []int) ([]Record, error) {
	out := make([]Record, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(c) {
			return nil, rerrors.InternalError(
				fmt.Sprintf("index %d out of range for corpus of %d records", idx, len(c)), nil)
		}
		out[i] = c[idx]
	}
	return out, nil
}

// IDs returns record ids in corpus order.
func (c Corpus) IDs() []string {
	ids := make([]string, len(c))
	for i, r := range c {
		ids[i] = r.ID
	}
	return ids
}

// Has reports whether a record with the given id exists.
func (c Corpus) Has(id string) bool {
	for _, r := range c {
		if r.ID == id {
			return true
		}
	}
	return false
}

// IDSet returns the set of record ids, for repeated membership checks.
func (c Corpus) IDSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c))
	for _, r := range c {
		set[r.ID] = struct{}{}
	}
	return set
}
