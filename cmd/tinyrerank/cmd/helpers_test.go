package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// isolate keeps user config, telemetry and logs inside a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("NO_COLOR", "1")
	return home
}

// writeCorpus creates a three-document markdown corpus.
func writeCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	docs := map[string]string{
		"bread.md":           "# Baking bread\n\nFlour, water and yeast make a simple loaf.\n",
		"vectors.md":         "# Vector search\n\nEmbeddings and cosine similarity rank documents.\n",
		"garden/tomatoes.md": "# Gardening\n\nTomatoes need sun and regular watering.\n",
	}
	for name, body := range docs {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return root
}

// run executes the CLI and returns stdout, stderr and the exit code.
func run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}
