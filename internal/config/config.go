// Package config provides configuration management for Quill. Settings load
// once at startup from environment variables with the QUILL_ prefix, with
// sensible defaults for every option; the route table loads from an optional
// YAML file.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the Quill backend.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	LLM     LLMConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 8080)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	Engine      string // Storage engine: sqlite, postgres (default: sqlite)
	DataPath    string // Path to data directory for sqlite (default: ./data)
	PostgresDSN string // PostgreSQL connection string
}

// LLMConfig contains generation backend configuration.
type LLMConfig struct {
	OllamaURL        string        // Ollama API URL (default: http://localhost:11434)
	OllamaModel      string        // Ollama model for generation (default: qwen2.5:7b)
	OllamaEmbedModel string        // Ollama model for embeddings (default: nomic-embed-text)
	OpenAIAPIKey     string        // OpenAI API key (empty: adapter unavailable)
	OpenAIModel      string        // OpenAI model (default: gpt-4o-mini)
	AnthropicAPIKey  string        // Anthropic API key (empty: adapter unavailable)
	AnthropicModel   string        // Anthropic model (default: claude-3-5-haiku-20241022)
	CallTimeout      time.Duration // per-call timeout for blocking generations (default: 5m)
	RoutesPath       string        // path to the YAML route table (default: config/routes.yaml)
}

// LoadConfig loads configuration from environment variables with defaults.
// All environment variables use the QUILL_ prefix.
func LoadConfig() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("QUILL_PORT", 8080),
			Host: getEnv("QUILL_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			Engine:      getEnv("QUILL_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("QUILL_DATA_PATH", "./data"),
			PostgresDSN: getEnv("QUILL_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			OllamaURL:        getEnv("QUILL_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:      getEnv("QUILL_OLLAMA_MODEL", "qwen2.5:7b"),
			OllamaEmbedModel: getEnv("QUILL_OLLAMA_EMBED_MODEL", "nomic-embed-text"),
			OpenAIAPIKey:     getEnv("QUILL_OPENAI_API_KEY", ""),
			OpenAIModel:      getEnv("QUILL_OPENAI_MODEL", "gpt-4o-mini"),
			AnthropicAPIKey:  getEnv("QUILL_ANTHROPIC_API_KEY", ""),
			AnthropicModel:   getEnv("QUILL_ANTHROPIC_MODEL", "claude-3-5-haiku-20241022"),
			CallTimeout:      getEnvDuration("QUILL_LLM_CALL_TIMEOUT", 5*time.Minute),
			RoutesPath:       getEnv("QUILL_ROUTES_PATH", "config/routes.yaml"),
		},
	}, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value when unset or unparseable.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable ("90s", "5m") or
// returns a default value when unset or unparseable.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
