package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	// LLM provider configuration (primary + fallback)
	LLM LLMConfig `yaml:"llm"`

	// Embedding service configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Vector store configuration
	VectorDB VectorDBConfig `yaml:"vector_db"`

	// Semantic chunking settings
	Chunking ChunkingConfig `yaml:"chunking"`

	// Three-zone detection thresholds
	Zones ZoneConfig `yaml:"zones"`

	// Observability (tracing) settings
	Observability ObservabilityConfig `yaml:"observability"`

	// HTTP server settings
	Server ServerConfig `yaml:"server"`

	// Feedback store settings
	Feedback FeedbackConfig `yaml:"feedback"`

	// Job registry settings
	Jobs JobsConfig `yaml:"jobs"`
}

// LLMConfig configures the resilient model client. Both providers speak the
// OpenAI chat-completions dialect; only base URL, key and model tables differ.
type LLMConfig struct {
	// Primary provider (Groq by default - speed)
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// model_type -> ordered model list
	Models map[string][]string `yaml:"models"`

	// Fallback provider (OpenRouter by default - reliability)
	EnableFallback  bool                `yaml:"enable_fallback"`
	FallbackAPIKey  string              `yaml:"fallback_api_key"`
	FallbackBaseURL string              `yaml:"fallback_base_url"`
	FallbackModels  map[string][]string `yaml:"fallback_models"`

	MaxRetries       int           `yaml:"max_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	Timeout          time.Duration `yaml:"timeout"`
	AffordableTokens int           `yaml:"affordable_tokens"`
	RequestsPerSec   float64       `yaml:"requests_per_sec"`
}

// EmbeddingConfig points at an OpenAI-compatible /embeddings endpoint serving
// the MiniLM sentence model. The model identity is fixed: 384 dimensions.
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Dim     int    `yaml:"dim"`
}

// VectorDBConfig configures the reference corpus store.
type VectorDBConfig struct {
	Path                string   `yaml:"path"`
	GoldenCollection    string   `yaml:"golden_collection"`
	PrototypeCollection string   `yaml:"prototype_collection"`
	TargetCategories    []string `yaml:"target_categories"`
	// category -> prototype seed text, used to auto-initialize the
	// prototype collection when empty
	PrototypeSeeds map[string]string `yaml:"prototype_seeds"`
}

// ChunkingConfig controls semantic chunking.
type ChunkingConfig struct {
	MinChunkLength int `yaml:"min_chunk_length"`
	MaxChunkLength int `yaml:"max_chunk_length"`
	// Percentile fraction for breakpoint detection, not a cosine cutoff.
	// A consecutive-sentence similarity below the (SimilarityThreshold*100)th
	// percentile of all such similarities places a breakpoint.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	Overlap             int     `yaml:"overlap"`
}

// ZoneConfig holds the three-zone detection thresholds.
type ZoneConfig struct {
	NoiseThreshold float64 `yaml:"noise_threshold"`
	SafeThreshold  float64 `yaml:"safe_threshold"`
	// Hard gate for the safe zone: the nearest safe exemplar must exceed
	// this similarity, independent of SafeThreshold.
	SafeExemplarCutoff float64 `yaml:"safe_exemplar_cutoff"`
}

// ObservabilityConfig enables per-call tracing spans.
type ObservabilityConfig struct {
	Enabled   bool   `yaml:"enabled"`
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	UploadDir string `yaml:"upload_dir"`
	// Maximum upload size in bytes
	MaxFileSize int64 `yaml:"max_file_size"`
}

// FeedbackConfig configures the feedback store.
type FeedbackConfig struct {
	Driver string `yaml:"driver"` // "sqlite3" or "postgres"
	DSN    string `yaml:"dsn"`
}

// JobsConfig configures the background job registry.
type JobsConfig struct {
	Backend   string `yaml:"backend"` // "memory" or "redis"
	RedisAddr string `yaml:"redis_addr"`
	// Maximum analyses running concurrently
	MaxWorkers int `yaml:"max_workers"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL: "https://api.groq.com/openai/v1",
			Models: map[string][]string{
				"fast":       {"llama-3.1-8b-instant", "mixtral-8x7b-32768"},
				"smart":      {"llama-3.3-70b-versatile"},
				"structured": {"llama-3.1-8b-instant"},
			},
			EnableFallback:  true,
			FallbackBaseURL: "https://openrouter.ai/api/v1",
			FallbackModels: map[string][]string{
				"fast":       {"openai/gpt-4o-mini", "meta-llama/llama-3.1-8b-instruct"},
				"smart":      {"openai/gpt-4o-mini", "anthropic/claude-3.5-sonnet"},
				"structured": {"openai/gpt-4o-mini"},
			},
			MaxRetries:       3,
			RetryDelay:       time.Second,
			Timeout:          30 * time.Second,
			AffordableTokens: 10000,
			RequestsPerSec:   5,
		},
		Embedding: EmbeddingConfig{
			BaseURL: "http://localhost:8080/v1",
			Model:   "sentence-transformers/all-MiniLM-L6-v2",
			Dim:     384,
		},
		VectorDB: VectorDBConfig{
			Path:                "./corpus/gold.db",
			GoldenCollection:    "golden_standards",
			PrototypeCollection: "prototypes",
			TargetCategories: []string{
				"Unilateral Termination",
				"Unlimited Liability",
				"Non-Compete",
			},
			PrototypeSeeds: map[string]string{
				"Unilateral Termination": "Contract termination clauses. Covers ending agreement, notice periods, termination rights, cancellation. Keywords: terminate, cancel, end, notice.",
				"Unlimited Liability":    "Liability clauses without caps. Covers unlimited exposure, uncapped damages, indemnification without limits. Keywords: unlimited, uncapped, liable for all.",
				"Non-Compete":            "Post-contract competitive restrictions. Covers non-compete, customer solicitation, restrictive covenants. Keywords: compete, solicit, restrictive.",
			},
		},
		Chunking: ChunkingConfig{
			MinChunkLength:      100,
			MaxChunkLength:      800,
			SimilarityThreshold: 0.75,
			Overlap:             50,
		},
		Zones: ZoneConfig{
			NoiseThreshold:     0.44,
			SafeThreshold:      0.85,
			SafeExemplarCutoff: 0.90,
		},
		Observability: ObservabilityConfig{
			Host: "https://cloud.langfuse.com",
		},
		Server: ServerConfig{
			Addr:        ":8000",
			UploadDir:   "./uploads",
			MaxFileSize: 100 * 1024 * 1024, // 100 MB
		},
		Feedback: FeedbackConfig{
			Driver: "sqlite3",
			DSN:    "./feedback.db",
		},
		Jobs: JobsConfig{
			Backend:    "memory",
			MaxWorkers: 4,
		},
	}
}

// Load builds configuration from defaults, an optional .env file, and
// environment variable overrides.
func Load() (*Config, error) {
	// .env is optional; environment wins either way
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CLAUSEGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()

	// Provider keys come from the conventional variable names, matching
	// the provider dashboards, not the CLAUSEGUARD_ prefix.
	cfg.LLM.APIKey = os.Getenv("GROQ_API_KEY")
	cfg.LLM.FallbackAPIKey = os.Getenv("OPENROUTER_API_KEY")
	cfg.LLM.EnableFallback = cfg.LLM.FallbackAPIKey != ""

	if s := v.GetString("llm.base_url"); s != "" {
		cfg.LLM.BaseURL = s
	}
	if s := v.GetString("llm.fallback_base_url"); s != "" {
		cfg.LLM.FallbackBaseURL = s
	}
	if n := v.GetInt("llm.affordable_tokens"); n > 0 {
		cfg.LLM.AffordableTokens = n
	}
	if d := v.GetDuration("llm.timeout"); d > 0 {
		cfg.LLM.Timeout = d
	}
	if n := v.GetInt("llm.max_retries"); n > 0 {
		cfg.LLM.MaxRetries = n
	}

	if s := v.GetString("embedding.base_url"); s != "" {
		cfg.Embedding.BaseURL = s
	}
	if s := os.Getenv("EMBEDDING_API_KEY"); s != "" {
		cfg.Embedding.APIKey = s
	}

	if s := v.GetString("vector_db.path"); s != "" {
		cfg.VectorDB.Path = s
	}
	if s := v.GetString("server.addr"); s != "" {
		cfg.Server.Addr = s
	}
	if s := v.GetString("server.upload_dir"); s != "" {
		cfg.Server.UploadDir = s
	}
	if s := v.GetString("feedback.dsn"); s != "" {
		cfg.Feedback.DSN = s
	}
	if s := v.GetString("feedback.driver"); s != "" {
		cfg.Feedback.Driver = s
	}
	if s := v.GetString("jobs.backend"); s != "" {
		cfg.Jobs.Backend = s
	}
	if s := v.GetString("jobs.redis_addr"); s != "" {
		cfg.Jobs.RedisAddr = s
	}
	if n := v.GetInt("jobs.max_workers"); n > 0 {
		cfg.Jobs.MaxWorkers = n
	}

	cfg.Observability.Enabled = strings.EqualFold(os.Getenv("LANGFUSE_ENABLED"), "true")
	cfg.Observability.PublicKey = os.Getenv("LANGFUSE_PUBLIC_KEY")
	cfg.Observability.SecretKey = os.Getenv("LANGFUSE_SECRET_KEY")
	if h := os.Getenv("LANGFUSE_HOST"); h != "" {
		cfg.Observability.Host = h
	}

	return cfg, nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Chunking.MinChunkLength <= 0 || c.Chunking.MaxChunkLength <= c.Chunking.MinChunkLength {
		return errInvalidChunking
	}
	if c.Zones.NoiseThreshold >= c.Zones.SafeThreshold {
		return errInvalidZones
	}
	return nil
}
