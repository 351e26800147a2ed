package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the validated configuration object consumed by the core: the
// root dbPath/defaultScope plus one block per pluggable concern.
type Config struct {
	DBPath         string              `mapstructure:"db_path"`
	DefaultScope   string              `mapstructure:"default_scope"`
	Embedding      EmbeddingConfig     `mapstructure:"embedding"`
	LLM            LLMConfig           `mapstructure:"llm"`
	Retrieval      RetrievalConfig     `mapstructure:"retrieval"`
	Scoring        ScoringConfig       `mapstructure:"scoring"`
	Deduplication  DeduplicationConfig `mapstructure:"deduplication"`
	Capture        CaptureConfig       `mapstructure:"capture"`
	AutoRecall     bool                `mapstructure:"auto_recall"`
	RecallLimit    int                 `mapstructure:"recall_limit"`
	RecallMinScore float64             `mapstructure:"recall_min_score"`
	Debug          bool                `mapstructure:"debug"`
	Logging        LoggingConfig       `mapstructure:"logging"`
}

// EmbeddingConfig selects the embedding capability.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig selects the LLM capability.
type LLMConfig struct {
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// RetrievalConfig tunes the Retriever pipeline.
type RetrievalConfig struct {
	Limit               int     `mapstructure:"limit"`
	MinScore            float64 `mapstructure:"min_score"`
	Hybrid              bool    `mapstructure:"hybrid"`
	CandidateMultiplier int     `mapstructure:"candidate_multiplier"`
	Reranker            string  `mapstructure:"reranker"`
}

// ScoringConfig tunes the Scorer's weights and time penalties.
type ScoringConfig struct {
	VectorWeight       float64 `mapstructure:"vector_weight"`
	BM25Weight         float64 `mapstructure:"bm25_weight"`
	RerankerWeight     float64 `mapstructure:"reranker_weight"`
	RecencyBoostDays   float64 `mapstructure:"recency_boost_days"`
	RecencyBoostFactor float64 `mapstructure:"recency_boost_factor"`
	ImportanceWeight   float64 `mapstructure:"importance_weight"`
	TimePenaltyDays    float64 `mapstructure:"time_penalty_days"`
	TimePenaltyFactor  float64 `mapstructure:"time_penalty_factor"`
}

// DeduplicationConfig selects the Deduplicator's strategy and thresholds.
type DeduplicationConfig struct {
	Strategy            string  `mapstructure:"strategy"` // "llm", "vector", "both"
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	LLMThreshold        float64 `mapstructure:"llm_threshold"`
}

// CaptureConfig gates the Extractor.
type CaptureConfig struct {
	Auto             bool     `mapstructure:"auto"`
	SessionSummary   bool     `mapstructure:"session_summary"`
	NoiseFilter      bool     `mapstructure:"noise_filter"`
	MinContentLength int      `mapstructure:"min_content_length"`
	SkipPatterns     []string `mapstructure:"skip_patterns"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// DefaultConfig returns configuration with the values the core ships with.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".tinmem")

	return &Config{
		DBPath:       filepath.Join(configDir, "memories.db"),
		DefaultScope: "global",
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			BaseURL:    "http://localhost:11434",
			Dimensions: 768,
		},
		LLM: LLMConfig{
			Model:       "qwen2.5:3b",
			BaseURL:     "http://localhost:11434",
			MaxTokens:   2048,
			Temperature: 0.2,
		},
		Retrieval: RetrievalConfig{
			Limit:               8,
			MinScore:            0.15,
			Hybrid:              true,
			CandidateMultiplier: 3,
		},
		Scoring: ScoringConfig{
			VectorWeight:       0.5,
			BM25Weight:         0.3,
			RerankerWeight:     0.2,
			RecencyBoostDays:   3,
			RecencyBoostFactor: 0.05,
			ImportanceWeight:   0.1,
			TimePenaltyDays:    30,
			TimePenaltyFactor:  0.5,
		},
		Deduplication: DeduplicationConfig{
			Strategy:            "both",
			SimilarityThreshold: 0.85,
			LLMThreshold:        0.95,
		},
		Capture: CaptureConfig{
			Auto:             true,
			SessionSummary:   true,
			NoiseFilter:      true,
			MinContentLength: 10,
		},
		AutoRecall:     true,
		RecallLimit:    8,
		RecallMinScore: 0.15,
		Debug:          false,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file with fallback to defaults.
// Searches in multiple locations:
// 1. ./config.yaml (current directory)
// 2. ~/.tinmem/config.yaml (user home)
// 3. /etc/tinmem (system-wide)
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".tinmem"))
	v.AddConfigPath("/etc/tinmem")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("default_scope", d.DefaultScope)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.temperature", d.LLM.Temperature)

	v.SetDefault("retrieval.limit", d.Retrieval.Limit)
	v.SetDefault("retrieval.min_score", d.Retrieval.MinScore)
	v.SetDefault("retrieval.hybrid", d.Retrieval.Hybrid)
	v.SetDefault("retrieval.candidate_multiplier", d.Retrieval.CandidateMultiplier)

	v.SetDefault("scoring.vector_weight", d.Scoring.VectorWeight)
	v.SetDefault("scoring.bm25_weight", d.Scoring.BM25Weight)
	v.SetDefault("scoring.reranker_weight", d.Scoring.RerankerWeight)
	v.SetDefault("scoring.recency_boost_days", d.Scoring.RecencyBoostDays)
	v.SetDefault("scoring.recency_boost_factor", d.Scoring.RecencyBoostFactor)
	v.SetDefault("scoring.importance_weight", d.Scoring.ImportanceWeight)
	v.SetDefault("scoring.time_penalty_days", d.Scoring.TimePenaltyDays)
	v.SetDefault("scoring.time_penalty_factor", d.Scoring.TimePenaltyFactor)

	v.SetDefault("deduplication.strategy", d.Deduplication.Strategy)
	v.SetDefault("deduplication.similarity_threshold", d.Deduplication.SimilarityThreshold)
	v.SetDefault("deduplication.llm_threshold", d.Deduplication.LLMThreshold)

	v.SetDefault("capture.auto", d.Capture.Auto)
	v.SetDefault("capture.session_summary", d.Capture.SessionSummary)
	v.SetDefault("capture.noise_filter", d.Capture.NoiseFilter)
	v.SetDefault("capture.min_content_length", d.Capture.MinContentLength)

	v.SetDefault("auto_recall", d.AutoRecall)
	v.SetDefault("recall_limit", d.RecallLimit)
	v.SetDefault("recall_min_score", d.RecallMinScore)
	v.SetDefault("debug", d.Debug)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}

	validStrategies := map[string]bool{"llm": true, "vector": true, "both": true}
	if !validStrategies[c.Deduplication.Strategy] {
		return fmt.Errorf("deduplication.strategy must be one of: llm, vector, both")
	}
	if c.Deduplication.SimilarityThreshold < 0 || c.Deduplication.SimilarityThreshold > 1 {
		return fmt.Errorf("deduplication.similarity_threshold must be between 0 and 1")
	}
	if c.Deduplication.LLMThreshold < 0 || c.Deduplication.LLMThreshold > 1 {
		return fmt.Errorf("deduplication.llm_threshold must be between 0 and 1")
	}

	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be > 0")
	}

	if c.Retrieval.Limit <= 0 {
		return fmt.Errorf("retrieval.limit must be > 0")
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("retrieval.min_score must be between 0 and 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	return nil
}

// EnsureConfigDir creates the directory holding the Store's database file.
func (c *Config) EnsureConfigDir() error {
	dir := filepath.Dir(c.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// ConfigPath returns the directory the core looks for config.yaml in.
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".tinmem")
}

// DatabasePath returns the default Store database path.
func DatabasePath() string {
	return filepath.Join(ConfigPath(), "memories.db")
}
