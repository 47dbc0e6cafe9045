// Package config loads worker configuration from environment variables
// (matching the worker's .env file) with an optional YAML override file for
// the structured pieces (method list, OCR backend chains, custom backend
// commands) that don't fit naturally into flat env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Granularity is where a backend or custom-backend config operates.
type Granularity string

const (
	GranularityPage     Granularity = "page"
	GranularityDocument Granularity = "document"
)

// OcrEntry is a single backend or an ordered fallback chain, matching the
// configuration surface's `Entry = string | [string]`.
type OcrEntry struct {
	Names []string
}

// UnmarshalYAML accepts either a bare string or a sequence of strings.
func (e *OcrEntry) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		e.Names = []string{s}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		e.Names = names
		return nil
	default:
		return fmt.Errorf("ocr backend entry must be a string or a list of strings")
	}
}

// IsChain reports whether this entry names more than one fallback backend.
func (e OcrEntry) IsChain() bool {
	return len(e.Names) > 1
}

// CustomBackendConfig describes a subprocess-invoked backend registered
// under methods.<name> in the configuration surface.
type CustomBackendConfig struct {
	Command     string      `yaml:"command"`
	Args        []string    `yaml:"args"`
	Mimetypes   []string    `yaml:"mimetypes"`
	Granularity Granularity `yaml:"granularity"`
	Stdout      bool        `yaml:"stdout"`
	OutputFile  string      `yaml:"output_file"`
}

// fileOverrides is the shape of the optional YAML config file. The
// configuration surface describes custom backends under the dotted key
// "methods.<name>"; since YAML can't express both a flat "methods" list and
// a "methods.<name>" table under one key, custom backend entries live under
// the sibling "custom_backends" map instead.
type fileOverrides struct {
	Methods []string `yaml:"methods"`
	OCR     struct {
		Backends []OcrEntry `yaml:"backends"`
	} `yaml:"ocr"`
	CustomBackends map[string]CustomBackendConfig `yaml:"custom_backends"`
}

// Config holds worker configuration.
type Config struct {
	// Storage
	DatabaseURL  string
	DocumentsDir string

	// Trigger queue
	RedisURL string
	// TriggerCronSpec is a robfig/cron/v3 expression enqueuing a run on a
	// schedule, in addition to on-demand Enqueue calls. Empty disables the
	// periodic path; only WorkerMode "triggered" honours it.
	TriggerCronSpec string

	// Pipeline tuning
	Methods            []string
	Workers            int
	Limit              int
	ChunkSize          int
	RetryIntervalHours int
	OCRBackends        []OcrEntry
	CustomBackends     map[string]CustomBackendConfig

	// External tools
	TesseractPath string
	PdftotextPath string
	PdfinfoPath   string
	PdftoppmPath  string

	// Optional domain-stack integrations; each nil/empty value disables the
	// corresponding optional observer (internal/semantic, internal/archive,
	// internal/annotate's llm_summary annotator).
	QdrantURL        string
	QdrantCollection string
	VoyageAPIKey     string
	OpenRouterAPIKey string
	LLMModel         string
	ArtifactAPIURL   string
	GroqAPIKey       string
	GroqModel        string
	GeminiAPIKey     string
	GeminiModel      string

	TempDir string
	NodeEnv string

	// WorkerMode is "run-once" or "triggered" (default).
	WorkerMode string
}

// LoadConfig loads configuration from environment variables, then applies
// an optional YAML override file named by WORKER_CONFIG_FILE.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        getEnvOrThrow("DATABASE_URL"),
		DocumentsDir:       getEnvOrDefault("DOCUMENTS_DIR", "/data/documents"),
		RedisURL:           getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		TriggerCronSpec:    getEnvOrDefault("TRIGGER_CRON_SPEC", ""),
		Methods:            []string{"ocr"},
		Workers:            getEnvAsIntOrDefault("WORKER_CONCURRENCY", 8),
		Limit:              getEnvAsIntOrDefault("WORKER_LIMIT", 0),
		ChunkSize:          getEnvAsIntOrDefault("CHUNK_SIZE", 4096),
		RetryIntervalHours: getEnvAsIntOrDefault("RETRY_INTERVAL_HOURS", 12),
		OCRBackends:        []OcrEntry{{Names: []string{"ocr"}}},
		CustomBackends:     map[string]CustomBackendConfig{},
		TesseractPath:      getEnvOrDefault("TESSERACT_PATH", "/usr/bin/tesseract"),
		PdftotextPath:      getEnvOrDefault("PDFTOTEXT_PATH", "/usr/bin/pdftotext"),
		PdfinfoPath:        getEnvOrDefault("PDFINFO_PATH", "/usr/bin/pdfinfo"),
		PdftoppmPath:       getEnvOrDefault("PDFTOPPM_PATH", "/usr/bin/pdftoppm"),
		QdrantURL:          getEnvOrDefault("QDRANT_URL", ""),
		QdrantCollection:   getEnvOrDefault("QDRANT_COLLECTION", "documents"),
		VoyageAPIKey:       getEnvOrDefault("VOYAGE_API_KEY", ""),
		OpenRouterAPIKey:   getEnvOrDefault("OPENROUTER_API_KEY", ""),
		LLMModel:           getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		ArtifactAPIURL:     getEnvOrDefault("ARTIFACT_API_URL", ""),
		GroqAPIKey:         getEnvOrDefault("GROQ_API_KEY", ""),
		GroqModel:          getEnvOrDefault("GROQ_MODEL", "llama-3.2-90b-vision-preview"),
		GeminiAPIKey:       getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:        getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		TempDir:            getEnvOrDefault("TEMP_DIR", "/tmp/docpipeline"),
		NodeEnv:            getEnvOrDefault("NODE_ENV", "development"),
		WorkerMode:         getEnvOrDefault("WORKER_MODE", "triggered"),
	}

	if path := os.Getenv("WORKER_CONFIG_FILE"); path != "" {
		if err := applyFileOverrides(cfg, path); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyFileOverrides(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var over fileOverrides
	if err := yaml.Unmarshal(raw, &over); err != nil {
		return err
	}
	if len(over.Methods) > 0 {
		cfg.Methods = over.Methods
	}
	if len(over.OCR.Backends) > 0 {
		cfg.OCRBackends = over.OCR.Backends
	}
	for name, custom := range over.CustomBackends {
		if name == "ocr" || name == "whisper" {
			continue
		}
		cfg.CustomBackends[name] = custom
	}
	return nil
}

// Validate checks bounds on the pipeline tuning knobs.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Workers < 1 || c.Workers > 128 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 128, got %d", c.Workers)
	}
	if c.Limit < 0 {
		return fmt.Errorf("WORKER_LIMIT must be >= 0, got %d", c.Limit)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("CHUNK_SIZE must be >= 1, got %d", c.ChunkSize)
	}
	if c.RetryIntervalHours < 1 {
		return fmt.Errorf("RETRY_INTERVAL_HOURS must be >= 1, got %d", c.RetryIntervalHours)
	}
	if len(c.OCRBackends) == 0 {
		return fmt.Errorf("at least one ocr.backends entry is required")
	}
	if c.WorkerMode != "run-once" && c.WorkerMode != "triggered" {
		return fmt.Errorf("WORKER_MODE must be run-once or triggered, got %q", c.WorkerMode)
	}
	return nil
}

// SemanticIndexingEnabled reports whether enough configuration is present to
// run the optional semantic indexer.
func (c *Config) SemanticIndexingEnabled() bool {
	return c.QdrantURL != "" && c.VoyageAPIKey != ""
}

// ArtifactArchivingEnabled reports whether the optional artifact archiver
// has a target to upload to.
func (c *Config) ArtifactArchivingEnabled() bool {
	return strings.TrimSpace(c.ArtifactAPIURL) != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrThrow(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return value
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
