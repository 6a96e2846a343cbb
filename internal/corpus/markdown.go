package corpus

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// summaryFallbackChars is how much of the file becomes the summary when
// every block is a heading.
const summaryFallbackChars = 200

var (
	markdownParser = goldmark.New().Parser()

	// blockSeparator splits a document on blank lines.
	blockSeparator = regexp.MustCompile(`\n\s*\n`)
)

// parseMarkdown derives a record's title and summary from its source.
// Title is the first level-1 heading, else the file name without extension.
// Summary is the first blank-line separated block that is not a heading,
// kept verbatim (lists, quotes and code included), else the head of the file.
func parseMarkdown(path string, src []byte) (title, summary string) {
	title = firstH1(src)
	if title == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	summary = firstBlock(string(src))
	if summary == "" {
		summary = strings.TrimSpace(truncateRunes(string(src), summaryFallbackChars))
	}
	return title, summary
}

// firstH1 returns the text of the first level-1 heading, ATX or setext.
func firstH1(src []byte) string {
	var title string
	doc := markdownParser.Parse(text.NewReader(src))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() == ast.KindDocument {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
			title = blockText(h, src)
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})
	return title
}

func firstBlock(src string) string {
	for _, block := range blockSeparator.Split(src, -1) {
		block = strings.TrimSpace(block)
		if block == "" || isHeading(block) {
			continue
		}
		return block
	}
	return ""
}

// isHeading reports whether a block opens with a heading.
func isHeading(block string) bool {
	if strings.HasPrefix(block, "#") {
		return true
	}
	doc := markdownParser.Parse(text.NewReader([]byte(block)))
	_, ok := doc.FirstChild().(*ast.Heading)
	return ok
}

// blockText joins the raw source lines of a block node.
func blockText(n ast.Node, src []byte) string {
	lines := n.Lines()
	var sb strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return strings.TrimSpace(sb.String())
}
