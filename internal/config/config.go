// Package config holds all tradeNERD configuration. Configuration is
// loaded once, validated at session creation, and threaded explicitly
// into every component; there is no ambient global lookup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tradenerd/internal/types"
)

// Config holds all tradeNERD configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration (deep-think for judges, quick-think for turns)
	LLM LLMConfig `yaml:"llm"`

	// Memory store configuration
	Memory MemoryConfig `yaml:"memory"`

	// Embedding engine configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Debate round limits
	Debate DebateConfig `yaml:"debate"`

	// Analyst team configuration
	Analysts AnalystsConfig `yaml:"analysts"`

	// MCP tool discovery, keyed by role name
	Discovery map[string]DiscoveryPolicy `yaml:"discovery"`

	// Market data vendor endpoints
	Dataflows DataflowsConfig `yaml:"dataflows"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the reasoning capability adapter.
type LLMConfig struct {
	Provider       string `yaml:"provider"` // openai-compatible endpoint
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	DeepThinkModel string `yaml:"deep_think_model"`  // judges, final decision
	QuickThinkModel string `yaml:"quick_think_model"` // analyst and debate turns
	Timeout        string `yaml:"timeout"`
}

// InvocationTimeout parses the per-invocation timeout, defaulting to 120s.
func (c LLMConfig) InvocationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// MemoryConfig configures the precedent memory store.
type MemoryConfig struct {
	DatabasePath string `yaml:"database_path"`

	// Alpha balances semantic vs keyword relevance: combined =
	// alpha*semantic + (1-alpha)*keyword. Overridable per collection.
	Alpha             float64            `yaml:"alpha"`
	AlphaByCollection map[string]float64 `yaml:"alpha_by_collection"`

	// Limit is the default top-K for retrieval.
	Limit int `yaml:"limit"`
}

// AlphaFor returns the effective alpha for a collection.
func (c MemoryConfig) AlphaFor(collection string) float64 {
	if a, ok := c.AlphaByCollection[collection]; ok {
		return a
	}
	return c.Alpha
}

// EmbeddingConfig configures the vector embedding engine.
// Supports Ollama (local) and GenAI (cloud) backends.
type EmbeddingConfig struct {
	// Provider: "ollama" or "genai"
	Provider string `yaml:"provider"`

	// Ollama Configuration (local embedding server)
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	// GenAI Configuration (Google cloud embedding)
	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`
}

// DebateConfig bounds the two debates. Caps are hard limits; reaching
// one forces the phase transition regardless of convergence.
type DebateConfig struct {
	MaxResearchRounds int `yaml:"max_research_rounds"`
	MaxRiskRounds     int `yaml:"max_risk_rounds"`
}

// AnalystsConfig selects which analyst roles run. A role absent from
// the map defaults to enabled.
type AnalystsConfig struct {
	Disabled []string `yaml:"disabled"`
}

// IsDisabled reports whether an analyst role is switched off.
func (c AnalystsConfig) IsDisabled(role types.Role) bool {
	for _, name := range c.Disabled {
		if name == string(role) {
			return true
		}
	}
	return false
}

// DiscoveryPolicy configures MCP tool discovery for one role.
// Absent or disabled means static tools only.
type DiscoveryPolicy struct {
	Enabled     bool                    `yaml:"enabled"`
	Description string                  `yaml:"description"`
	Servers     map[string]ServerConfig `yaml:"servers"`
}

// ServerConfig describes one MCP server endpoint.
type ServerConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Transport string `yaml:"transport"` // "http" or "stdio"
	Timeout   string `yaml:"timeout"`
}

// DataflowsConfig configures the market data vendor adapters backing
// the static tool set.
type DataflowsConfig struct {
	Prices       VendorConfig `yaml:"prices"`
	Fundamentals VendorConfig `yaml:"fundamentals"`
	News         VendorConfig `yaml:"news"`
	Social       VendorConfig `yaml:"social"`
}

// VendorConfig describes one market data vendor endpoint.
type VendorConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures the categorized debug logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "tradeNERD",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider:        "openai",
			BaseURL:         "https://api.openai.com/v1",
			DeepThinkModel:  "o4-mini",
			QuickThinkModel: "gpt-4o-mini",
			Timeout:         "120s",
		},

		Memory: MemoryConfig{
			DatabasePath: "data/tradenerd.db",
			Alpha:        0.5,
			Limit:        2,
		},

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
		},

		Debate: DebateConfig{
			MaxResearchRounds: 2,
			MaxRiskRounds:     1,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file, applies defaults for zero values and
// environment overrides, and returns the result unvalidated. Callers
// validate at session creation via Validate.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets environment variables supply credentials that
// should not live in config files.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("TRADENERD_API_KEY"); key != "" {
		c.LLM.APIKey = key
	} else if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if url := os.Getenv("TRADENERD_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.Embedding.GenAIAPIKey == "" {
		c.Embedding.GenAIAPIKey = key
	}
	if ep := os.Getenv("OLLAMA_HOST"); ep != "" && c.Embedding.Provider == "ollama" {
		c.Embedding.OllamaEndpoint = ep
	}
}
