// Package config loads tinyrerank configuration from defaults, user and
// project YAML files, a .env file and TINYRERANK_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/tinyrerank/internal/corpus"
	"github.com/Aman-CERP/tinyrerank/internal/embed"
	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
	"github.com/Aman-CERP/tinyrerank/internal/scorer"
)

// File names and prefixes.
const (
	ProjectConfigName    = ".tinyrerank.yaml"
	ProjectConfigNameAlt = ".tinyrerank.yml"
	DotEnvName           = ".env"
	EnvPrefix            = "TINYRERANK_"
)

// Config represents the complete tinyrerank configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Corpus    CorpusConfig    `yaml:"corpus" json:"corpus" envPrefix:"CORPUS_"`
	Embedder  EmbedderConfig  `yaml:"embedder" json:"embedder" envPrefix:"EMBEDDER_"`
	Scorer    ScorerConfig    `yaml:"scorer" json:"scorer" envPrefix:"SCORER_"`
	Search    SearchConfig    `yaml:"search" json:"search" envPrefix:"SEARCH_"`
	Eval      EvalConfig      `yaml:"eval" json:"eval" envPrefix:"EVAL_"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging" envPrefix:"LOG_"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry" envPrefix:"TELEMETRY_"`

	// Sources lists the files that contributed, in load order.
	Sources []string `yaml:"-" json:"-"`
}

// CorpusConfig selects which files under --root become records.
type CorpusConfig struct {
	Include     []string `yaml:"include" json:"include" env:"INCLUDE"`
	Exclude     []string `yaml:"exclude" json:"exclude" env:"EXCLUDE"`
	MaxFileSize int64    `yaml:"max_file_size" json:"max_file_size" env:"MAX_FILE_SIZE"`
}

// EmbedderConfig configures the retrieval embedding provider.
type EmbedderConfig struct {
	// Provider is static, ollama or openai.
	Provider string `yaml:"provider" json:"provider" env:"PROVIDER"`

	// Model is the provider model; empty uses the provider default.
	Model string `yaml:"model" json:"model" env:"MODEL"`

	// Host is the Ollama API endpoint.
	Host string `yaml:"host" json:"host" env:"HOST"`

	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string `yaml:"base_url" json:"base_url" env:"BASE_URL"`

	// APIKey is never written back out.
	APIKey string `yaml:"api_key,omitempty" json:"-" env:"API_KEY"`

	Dimensions  int           `yaml:"dimensions" json:"dimensions" env:"DIMENSIONS"`
	BatchSize   int           `yaml:"batch_size" json:"batch_size" env:"BATCH_SIZE"`
	Concurrency int           `yaml:"concurrency" json:"concurrency" env:"CONCURRENCY"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`

	// CacheSize is the query embedding cache size; negative disables it.
	CacheSize int `yaml:"cache_size" json:"cache_size" env:"CACHE_SIZE"`
}

// ScorerConfig configures the pairwise relevance provider.
type ScorerConfig struct {
	// Provider is static or http.
	Provider   string        `yaml:"provider" json:"provider" env:"PROVIDER"`
	Model      string        `yaml:"model" json:"model" env:"MODEL"`
	Endpoint   string        `yaml:"endpoint" json:"endpoint" env:"ENDPOINT"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size" env:"BATCH_SIZE"`
	MaxLength  int           `yaml:"max_length" json:"max_length" env:"MAX_LENGTH"`
	RawScores  bool          `yaml:"raw_scores" json:"raw_scores" env:"RAW_SCORES"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`
}

// SearchConfig holds search request defaults.
type SearchConfig struct {
	ColumnsToRerank []string `yaml:"columns_to_rerank" json:"columns_to_rerank" env:"COLUMNS_TO_RERANK"`
	DisplayColumns  []string `yaml:"display_columns" json:"display_columns" env:"DISPLAY_COLUMNS"`
	NumCandidates   int      `yaml:"num_candidates" json:"num_candidates" env:"NUM_CANDIDATES"`
	NumResults      int      `yaml:"num_results" json:"num_results" env:"NUM_RESULTS"`
}

// EvalConfig holds evaluation and sweep defaults.
type EvalConfig struct {
	Ks              []int `yaml:"ks" json:"ks" env:"KS"`
	SweepCandidates []int `yaml:"sweep_candidates" json:"sweep_candidates" env:"SWEEP_CANDIDATES"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" json:"level" env:"LEVEL"`

	// File enables the rotating log file.
	File bool `yaml:"file" json:"file" env:"FILE"`
}

// TelemetryConfig configures the local search history database.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" json:"path" env:"PATH"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Corpus: CorpusConfig{
			Include:     append([]string(nil), corpus.DefaultInclude...),
			Exclude:     append([]string(nil), corpus.DefaultExclude...),
			MaxFileSize: corpus.DefaultMaxFileSize,
		},
		Embedder: EmbedderConfig{
			Provider:    string(embed.ProviderStatic),
			BatchSize:   embed.DefaultBatchSize,
			Concurrency: embed.DefaultConcurrency,
			Timeout:     embed.DefaultTimeout,
			MaxRetries:  3,
		},
		Scorer: ScorerConfig{
			Provider:   string(scorer.ProviderStatic),
			Endpoint:   scorer.DefaultEndpoint,
			BatchSize:  scorer.DefaultBatchSize,
			MaxLength:  scorer.DefaultMaxLength,
			Timeout:    scorer.DefaultTimeout,
			MaxRetries: 3,
		},
		Search: SearchConfig{
			ColumnsToRerank: append([]string(nil), corpus.DefaultRerankColumns...),
			DisplayColumns:  append([]string(nil), corpus.DefaultDisplayColumns...),
			NumCandidates:   50,
			NumResults:      10,
		},
		Eval: EvalConfig{
			Ks:              []int{5, 10},
			SweepCandidates: []int{25, 50, 100},
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			Path:    DefaultTelemetryPath(),
		},
	}
}

// DataDir returns ~/.tinyrerank, or a temp-dir fallback without a home.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".tinyrerank")
	}
	return filepath.Join(home, ".tinyrerank")
}

// DefaultTelemetryPath returns the default search history database path.
func DefaultTelemetryPath() string {
	return filepath.Join(DataDir(), "telemetry.db")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/tinyrerank/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/tinyrerank/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tinyrerank", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "tinyrerank", "config.yaml")
	}
	return filepath.Join(home, ".config", "tinyrerank", "config.yaml")
}

// ProjectConfigPath returns the project config file in dir, preferring
// .yaml over .yml, or "" when neither exists.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{ProjectConfigName, ProjectConfigNameAlt} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// Load loads configuration for a corpus root.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/tinyrerank/config.yaml)
//  3. explicitPath if set, else project config (.tinyrerank.yaml in root)
//  4. .env in root
//  5. Environment variables (TINYRERANK_*)
//
// root may be empty, in which case steps 3 (project part) and 4 are skipped.
func Load(root, explicitPath string) (*Config, error) {
	return load(root, explicitPath, currentEnviron())
}

func load(root, explicitPath string, environ map[string]string) (*Config, error) {
	cfg := NewConfig()

	// Step 1: user config (if exists)
	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	// Step 2: explicit or project config
	switch {
	case explicitPath != "":
		if !fileExists(explicitPath) {
			return nil, rerrors.New(rerrors.ErrCodeConfigNotFound, "config file not found: "+explicitPath, nil)
		}
		if err := cfg.loadYAML(explicitPath); err != nil {
			return nil, err
		}
	case root != "":
		if path := ProjectConfigPath(root); path != "" {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
		}
	}

	// Step 3: .env values sit below the process environment
	if root != "" {
		dotenvPath := filepath.Join(root, DotEnvName)
		if fileExists(dotenvPath) {
			values, err := godotenv.Read(dotenvPath)
			if err != nil {
				return nil, rerrors.ConfigError("failed to parse "+dotenvPath, err)
			}
			merged := make(map[string]string, len(values)+len(environ))
			for k, v := range values {
				merged[k] = v
			}
			for k, v := range environ {
				merged[k] = v
			}
			environ = merged
			cfg.Sources = append(cfg.Sources, dotenvPath)
		}
	}

	// Step 4: environment overrides (highest precedence)
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return nil, rerrors.ConfigError("invalid "+EnvPrefix+"* environment variable", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func currentEnviron() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}

// loadYAML decodes path onto c. Only keys present in the file change;
// unknown keys are rejected.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return rerrors.IOError("failed to read config file "+path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return rerrors.ConfigError("failed to parse config file "+path, err).
			WithDetail("path", path)
	}
	c.Sources = append(c.Sources, path)
	return nil
}

// LoadFile loads a single YAML file over the defaults, without the user
// config, .env or environment layers.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if _, err := embed.ParseProvider(c.Embedder.Provider); err != nil {
		return err
	}
	if _, err := scorer.ParseProvider(c.Scorer.Provider); err != nil {
		return err
	}

	positive := []struct {
		name  string
		value int
	}{
		{"embedder.batch_size", c.Embedder.BatchSize},
		{"embedder.concurrency", c.Embedder.Concurrency},
		{"scorer.batch_size", c.Scorer.BatchSize},
		{"scorer.max_length", c.Scorer.MaxLength},
		{"search.num_candidates", c.Search.NumCandidates},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return rerrors.ConfigError(fmt.Sprintf("%s must be positive, got %d", p.name, p.value), nil)
		}
	}
	if c.Embedder.BatchSize > embed.MaxBatchSize {
		return rerrors.ConfigError(fmt.Sprintf("embedder.batch_size must be at most %d, got %d",
			embed.MaxBatchSize, c.Embedder.BatchSize), nil)
	}
	if c.Search.NumResults < 0 {
		return rerrors.ConfigError(fmt.Sprintf("search.num_results must be non-negative, got %d", c.Search.NumResults), nil)
	}
	if c.Embedder.MaxRetries < 0 || c.Scorer.MaxRetries < 0 {
		return rerrors.ConfigError("max_retries must be non-negative", nil)
	}

	if err := ValidateColumns("search.columns_to_rerank", c.Search.ColumnsToRerank); err != nil {
		return err
	}
	if err := ValidateColumns("search.display_columns", c.Search.DisplayColumns); err != nil {
		return err
	}

	if len(c.Eval.Ks) == 0 {
		return rerrors.ConfigError("eval.ks must list at least one K", nil)
	}
	for _, k := range c.Eval.Ks {
		if k <= 0 {
			return rerrors.ConfigError(fmt.Sprintf("eval.ks values must be positive, got %d", k), nil)
		}
	}
	for _, n := range c.Eval.SweepCandidates {
		if n <= 0 {
			return rerrors.ConfigError(fmt.Sprintf("eval.sweep_candidates values must be positive, got %d", n), nil)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return rerrors.ConfigError(fmt.Sprintf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level), nil)
	}

	return nil
}

// ValidateColumns rejects empty lists and unknown record columns.
func ValidateColumns(field string, columns []string) error {
	if len(columns) == 0 {
		return rerrors.ConfigError(field+" must list at least one column", nil)
	}
	for _, col := range columns {
		if !corpus.KnownColumn(col) {
			return rerrors.ConfigError(fmt.Sprintf("%s: unknown column %q (want id, title, summary, body or url)", field, col), nil)
		}
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	out := *c
	out.Embedder.APIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
