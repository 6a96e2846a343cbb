// Package corpus holds the document records that tinyrerank retrieves and
// reranks, their text projections, and the markdown directory loader.
package corpus

import "strings"

// Column names accepted by Field and RerankText.
const (
	ColumnID      = "id"
	ColumnTitle   = "title"
	ColumnSummary = "summary"
	ColumnBody    = "body"
	ColumnURL     = "url"
)

// EmbeddingBodyLimit is the body cut, in characters, applied by EmbeddingText.
const EmbeddingBodyLimit = 2000

// DefaultRerankColumns are the columns the reranker sees unless configured.
var DefaultRerankColumns = []string{ColumnTitle, ColumnSummary, ColumnBody}

// DefaultDisplayColumns are the columns printed for search results.
var DefaultDisplayColumns = []string{ColumnID, ColumnTitle, ColumnURL}

// Record is one searchable document.
type Record struct {
	// ID is the join key between retrieval, reranking and relevance judgments.
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Body    string `json:"body"`
	// URL is display only.
	URL string `json:"url"`
}

// KnownColumn reports whether name is a column Field can resolve.
func KnownColumn(name string) bool {
	switch name {
	case ColumnID, ColumnTitle, ColumnSummary, ColumnBody, ColumnURL:
		return true
	}
	return false
}

// Field returns the value of the named column. Unknown names resolve to "".
func (r Record) Field(name string) string {
	switch name {
	case ColumnID:
		return r.ID
	case ColumnTitle:
		return r.Title
	case ColumnSummary:
		return r.Summary
	case ColumnBody:
		return r.Body
	case ColumnURL:
		return r.URL
	default:
		return ""
	}
}

// EmbeddingText is the projection embedded for retrieval. Labels are always
// present; the body is cut to EmbeddingBodyLimit characters.
func (r Record) EmbeddingText() string {
	return r.EmbeddingTextN(EmbeddingBodyLimit)
}

// EmbeddingTextN is EmbeddingText with an explicit body limit.
// max <= 0 disables truncation.
func (r Record) EmbeddingTextN(max int) string {
	body := r.Body
	if max > 0 {
		body = truncateRunes(body, max)
	}

	var sb strings.Builder
	sb.Grow(len(r.Title) + len(r.Summary) + len(body) + 24)
	sb.WriteString("title: ")
	sb.WriteString(r.Title)
	sb.WriteString("\nsummary: ")
	sb.WriteString(r.Summary)
	sb.WriteString("\nbody: ")
	sb.WriteString(body)
	return sb.String()
}

// RerankText is the projection scored against the query by the reranker.
// Columns are rendered in the given order as "<column>: <value>" lines;
// empty values are skipped.
func (r Record) RerankText(columns []string) string {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		v := r.Field(col)
		if v == "" {
			continue
		}
		parts = append(parts, col+": "+v)
	}
	return strings.Join(parts, "\n")
}

// truncateRunes returns the first n characters of s without splitting a
// UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
