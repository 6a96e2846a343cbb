package eval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
)

// Judgment lists the relevant record ids for one query. Err is set when the
// entry is malformed; such entries are kept so they can be reported.
type Judgment struct {
	Query    string
	Relevant []string
	Err      error
}

// Judgments are in file order.
type Judgments []Judgment

// Valid returns the number of well-formed entries.
func (js Judgments) Valid() int {
	n := 0
	for _, j := range js {
		if j.Err == nil {
			n++
		}
	}
	return n
}

// LoadJudgments reads a query -> relevant ids mapping from a .json, .yaml
// or .yml file.
func LoadJudgments(path string) (Judgments, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rerrors.IOError("judgment file not found: "+path, err).
				WithDetail("path", path)
		}
		return nil, rerrors.New(rerrors.ErrCodeFilePermission, "cannot read judgment file: "+path, err).
			WithDetail("path", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(bytes.NewReader(data))
	}
}

func notMapping(format string, cause error) *rerrors.RankError {
	return rerrors.New(rerrors.ErrCodeFileCorrupt,
		fmt.Sprintf("judgment file must be a %s object mapping queries to lists of ids", format), cause)
}

// ParseJSON decodes a JSON object keeping key order.
func ParseJSON(r io.Reader) (Judgments, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, notMapping("JSON", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, notMapping("JSON", nil)
	}

	js := Judgments{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, notMapping("JSON", err)
		}
		query, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, notMapping("JSON", err)
		}
		js = append(js, jsonJudgment(query, raw))
	}

	if _, err := dec.Token(); err != nil {
		return nil, notMapping("JSON", err)
	}
	return js, nil
}

func jsonJudgment(query string, raw json.RawMessage) Judgment {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return invalid(query, "relevant ids must be a list")
	}
	ids := make([]string, 0, len(items))
	for i, item := range items {
		id, ok := item.(string)
		if !ok {
			return invalid(query, fmt.Sprintf("id at position %d is not a string", i))
		}
		ids = append(ids, id)
	}
	return judgment(query, ids)
}

// ParseYAML decodes a YAML mapping keeping key order.
func ParseYAML(data []byte) (Judgments, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, notMapping("YAML", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, notMapping("YAML", nil)
	}

	root := doc.Content[0]
	js := make(Judgments, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		js = append(js, yamlJudgment(key.Value, value))
	}
	return js, nil
}

func yamlJudgment(query string, value *yaml.Node) Judgment {
	if value.Kind != yaml.SequenceNode {
		return invalid(query, "relevant ids must be a list")
	}
	ids := make([]string, 0, len(value.Content))
	for i, item := range value.Content {
		if item.Kind != yaml.ScalarNode || item.ShortTag() != "!!str" {
			return invalid(query, fmt.Sprintf("id at position %d is not a string", i))
		}
		ids = append(ids, item.Value)
	}
	return judgment(query, ids)
}

func judgment(query string, ids []string) Judgment {
	switch {
	case strings.TrimSpace(query) == "":
		return invalid(query, "query is empty")
	case len(ids) == 0:
		return invalid(query, "no relevant ids")
	}
	for i, id := range ids {
		if id == "" {
			return invalid(query, fmt.Sprintf("id at position %d is empty", i))
		}
	}
	return Judgment{Query: query, Relevant: ids}
}

func invalid(query, reason string) Judgment {
	return Judgment{Query: query, Err: rerrors.InvalidJudgmentError(query, reason)}
}
