// Package config provides configuration loading for diffscribe.
//
// Configuration comes from a YAML file layered over built-in defaults, with
// environment variables taking precedence over both. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Config holds the complete diffscribe configuration.
type Config struct {
	GitHub      GitHubConfig      `koanf:"github"`
	Source      SourceConfig      `koanf:"source"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Qdrant      QdrantConfig      `koanf:"qdrant"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// GitHubConfig identifies the repository and how to reach the API.
type GitHubConfig struct {
	Owner   string `koanf:"owner"`
	Repo    string `koanf:"repo"`
	Token   Secret `koanf:"token"`
	BaseURL string `koanf:"base_url"` // GitHub Enterprise API root; empty for github.com

	// RequestsPerSecond caps outgoing API calls.
	RequestsPerSecond float64  `koanf:"requests_per_second"`
	MaxRetries        int      `koanf:"max_retries"`
	Timeout           Duration `koanf:"timeout"`
}

// SourceConfig selects where patches come from.
type SourceConfig struct {
	Kind     string `koanf:"kind"` // github or local
	RepoPath string `koanf:"repo_path"`
	BaseRef  string `koanf:"base_ref"`
	HeadRef  string `koanf:"head_ref"`
}

// VectorStoreConfig holds vector store selection and chromem settings.
type VectorStoreConfig struct {
	Provider   string `koanf:"provider"` // chromem or qdrant
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"` // derived from owner/repo when empty
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
	APIKey Secret `koanf:"api_key"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"` // ollama, openai or fastembed
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    Secret `koanf:"api_key"`
	Dimension int    `koanf:"dimension"`
	CacheDir  string `koanf:"cache_dir"`
}

// LLMConfig configures the summarization model.
type LLMConfig struct {
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url"`
	Temperature float64  `koanf:"temperature"`
	Timeout     Duration `koanf:"timeout"`
}

// IngestConfig controls the ingestion pipeline.
type IngestConfig struct {
	Workers         int    `koanf:"workers"`
	BatchSize       int    `koanf:"batch_size"`
	FailOnMalformed bool   `koanf:"fail_on_malformed"`
	Force           bool   `koanf:"force"`
	RedactSecrets   bool   `koanf:"redact_secrets"`
	AllowlistPath   string `koanf:"allowlist_path"`
	PushgatewayURL  string `koanf:"pushgateway_url"`
}

// RetrievalConfig controls digest retrieval.
type RetrievalConfig struct {
	Query   string `koanf:"query"`
	K       int    `koanf:"k"`
	Workers int    `koanf:"workers"`
}

// LoggingConfig holds the user-facing logging knobs.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds the user-facing OpenTelemetry knobs.
type TelemetryConfig struct {
	Enabled    bool    `koanf:"enabled"`
	Endpoint   string  `koanf:"endpoint"`
	Protocol   string  `koanf:"protocol"` // grpc or http/protobuf
	Insecure   bool    `koanf:"insecure"`
	SampleRate float64 `koanf:"sample_rate"`
}

// Default returns the built-in configuration. Loaded values are decoded on
// top of it, so any key absent from file and environment keeps its default.
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			RequestsPerSecond: 10,
			MaxRetries:        3,
			Timeout:           Duration(30 * time.Second),
		},
		Source: SourceConfig{
			Kind:    "github",
			HeadRef: "HEAD",
		},
		VectorStore: VectorStoreConfig{
			Provider: "chromem",
			Path:     "~/.config/diffscribe/vectorstore",
		},
		Qdrant: QdrantConfig{
			Host: "localhost",
			Port: 6334,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "ollama",
			Model:     "mxbai-embed-large",
			BaseURL:   "http://localhost:11434",
			Dimension: 1024,
		},
		LLM: LLMConfig{
			Model:       "qwen2.5-coder",
			BaseURL:     "http://localhost:11434",
			Temperature: 0.1,
			Timeout:     Duration(2 * time.Minute),
		},
		Ingest: IngestConfig{
			Workers:       4,
			BatchSize:     32,
			RedactSecrets: true,
		},
		Retrieval: RetrievalConfig{
			Query:   "GET RECENT CODE CHANGES",
			K:       4,
			Workers: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Endpoint:   "localhost:4317",
			Protocol:   "grpc",
			Insecure:   true,
			SampleRate: 1.0,
		},
	}
}

// ErrRepositoryRequired is returned when a command needs a repository but
// none is configured.
var ErrRepositoryRequired = errors.New("github owner and repo are required")

var collectionSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)

// CollectionName returns the configured collection, or one derived from the
// repository: lowercase, non-alphanumerics folded to '_', at most 64 chars.
// Without owner and repo, the base name of source.repo_path is used.
func (c *Config) CollectionName() string {
	if c.VectorStore.Collection != "" {
		return c.VectorStore.Collection
	}
	base := c.GitHub.Owner + "_" + c.GitHub.Repo
	if c.GitHub.Owner == "" && c.GitHub.Repo == "" && c.Source.RepoPath != "" {
		path := filepath.Clean(c.Source.RepoPath)
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		base = "local_" + filepath.Base(path)
	}
	name := strings.ToLower(base + "_changes")
	name = strings.Trim(collectionSanitizer.ReplaceAllString(name, "_"), "_")
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

// RequireRepository checks that a target repository is configured.
func (c *Config) RequireRepository() error {
	if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
		return ErrRepositoryRequired
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case "github":
	case "local":
		if c.Source.RepoPath == "" {
			return errors.New("source.repo_path is required for local sources")
		}
		if c.Source.BaseRef == "" {
			return errors.New("source.base_ref is required for local sources")
		}
	default:
		return fmt.Errorf("invalid source.kind %q (must be github or local)", c.Source.Kind)
	}

	if c.GitHub.RequestsPerSecond <= 0 {
		return fmt.Errorf("github.requests_per_second must be positive, got %v", c.GitHub.RequestsPerSecond)
	}
	if c.GitHub.MaxRetries < 0 {
		return fmt.Errorf("github.max_retries must be >= 0, got %d", c.GitHub.MaxRetries)
	}

	switch c.VectorStore.Provider {
	case "chromem":
		if c.VectorStore.Path == "" {
			return errors.New("vectorstore.path is required for chromem")
		}
	case "qdrant":
		if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant.port: %d (must be 1-65535)", c.Qdrant.Port)
		}
	default:
		return fmt.Errorf("invalid vectorstore.provider %q (must be chromem or qdrant)", c.VectorStore.Provider)
	}

	switch c.Embeddings.Provider {
	case "ollama", "openai", "fastembed":
	default:
		return fmt.Errorf("invalid embeddings.provider %q (must be ollama, openai or fastembed)", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embeddings.dimension must be positive, got %d", c.Embeddings.Dimension)
	}

	if c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature)
	}

	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be >= 1, got %d", c.Ingest.Workers)
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest.batch_size must be >= 1, got %d", c.Ingest.BatchSize)
	}
	if c.Retrieval.K < 1 {
		return fmt.Errorf("retrieval.k must be >= 1, got %d", c.Retrieval.K)
	}
	if c.Retrieval.Workers < 1 {
		return fmt.Errorf("retrieval.workers must be >= 1, got %d", c.Retrieval.Workers)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return errors.New("telemetry.endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
			return fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol)
		}
	}

	return nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
