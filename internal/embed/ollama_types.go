package embed

import (
	"time"

	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
)

// Ollama API constants
const (
	// DefaultOllamaHost is the default Ollama API endpoint
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is a small general-purpose text embedding model
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaHealthTimeout bounds the model check at construction
	OllamaHealthTimeout = 30 * time.Second
)

// OllamaConfig configures the Ollama embedder
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434)
	Host string

	// Model is the embedding model to use
	Model string

	// Dimensions overrides auto-detection (0 = detect from first response)
	Dimensions int

	// BatchSize is the number of texts per /api/embed request
	BatchSize int

	// Concurrency bounds in-flight requests
	Concurrency int

	// Timeout is the per-request timeout
	Timeout time.Duration

	// Retry controls retries of transport failures
	Retry rerrors.RetryConfig

	// SkipHealthCheck skips the /api/tags model check (for testing)
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns sensible defaults
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:        DefaultOllamaHost,
		Model:       DefaultOllamaModel,
		BatchSize:   DefaultBatchSize,
		Concurrency: DefaultConcurrency,
		Timeout:     DefaultTimeout,
		Retry:       rerrors.DefaultRetryConfig(),
	}
}

// OllamaEmbedRequest is the Ollama /api/embed request
type OllamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// OllamaEmbedResponse is the Ollama /api/embed response
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaModelListResponse is the Ollama /api/tags response
type OllamaModelListResponse struct {
	Models []OllamaModelInfo `json:"models"`
}

// OllamaModelInfo describes an installed model
type OllamaModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}
