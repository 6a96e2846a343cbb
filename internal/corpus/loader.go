package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
)

// DefaultMaxFileSize is the largest file the loader will read (1 MiB).
const DefaultMaxFileSize int64 = 1 << 20

// DefaultInclude selects markdown files anywhere under the root.
var DefaultInclude = []string{"**/*.md", "**/*.markdown"}

// DefaultExclude skips VCS metadata and vendored packages.
var DefaultExclude = []string{"**/.git/**", "**/node_modules/**"}

// LoaderOptions configures which files become records.
type LoaderOptions struct {
	// Include are doublestar patterns matched against slash-separated paths
	// relative to the root. Empty means DefaultInclude.
	Include []string

	// Exclude patterns win over Include.
	Exclude []string

	// MaxFileSize skips larger files with a warning (0 = DefaultMaxFileSize).
	MaxFileSize int64
}

// DefaultLoaderOptions returns the markdown defaults.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		Include:     append([]string(nil), DefaultInclude...),
		Exclude:     append([]string(nil), DefaultExclude...),
		MaxFileSize: DefaultMaxFileSize,
	}
}

// Loader turns a directory of markdown files into a Corpus.
type Loader struct {
	opts LoaderOptions
}

// NewLoader validates the patterns and returns a Loader.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if len(opts.Include) == 0 {
		opts.Include = DefaultInclude
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	for _, p := range append(append([]string(nil), opts.Include...), opts.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, rerrors.ConfigError(fmt.Sprintf("invalid corpus pattern %q", p), doublestar.ErrBadPattern)
		}
	}
	return &Loader{opts: opts}, nil
}

// Load walks root in lexical order and returns one record per selected
// file. A root with no matching files yields an empty corpus and no error.
func (l *Loader) Load(ctx context.Context, root string) (Corpus, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, rerrors.New(rerrors.ErrCodeInvalidPath, fmt.Sprintf("invalid corpus root %s", root), err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, rerrors.IOError(fmt.Sprintf("corpus root not accessible: %s", root), err)
	}
	if !info.IsDir() {
		return nil, rerrors.New(rerrors.ErrCodeInvalidPath, fmt.Sprintf("corpus root is not a directory: %s", root), nil)
	}

	var records Corpus
	skipped := 0

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if walkErr != nil {
			return walkErr
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if matchesAny(l.opts.Exclude, relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if matchesAny(l.opts.Exclude, relPath) || !matchesAny(l.opts.Include, relPath) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.Size() > l.opts.MaxFileSize {
			skipped++
			slog.Warn("corpus_file_skipped",
				slog.String("path", relPath),
				slog.Int64("size", fi.Size()),
				slog.Int64("max_size", l.opts.MaxFileSize))
			return nil
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		title, summary := parseMarkdown(path, src)
		records = append(records, Record{
			ID:      relPath,
			Title:   title,
			Summary: summary,
			Body:    string(src),
			URL:     path,
		})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, rerrors.IOError(fmt.Sprintf("failed to load corpus from %s", root), err)
	}

	slog.Debug("corpus_loaded",
		slog.String("root", absRoot),
		slog.Int("records", len(records)),
		slog.Int("skipped", skipped))

	return records, nil
}

func matchesAny(patterns []string, relPath string) bool {
	for _, p := range patterns {
		if doublestar.MatchUnvalidated(p, relPath) {
			return true
		}
	}
	return false
}
