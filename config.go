package fundgraph

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/fundgraph/ingest"
	"github.com/brunobiangulo/fundgraph/llm"
)

// Config holds all configuration for the fundgraph engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.fundgraph/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "fundgraph".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.fundgraph/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// GraphFile is a Turtle file imported at start when the store holds no
	// triples yet.
	GraphFile string `json:"graph_file" yaml:"graph_file"`

	// LLM provider
	Chat        LLMConfig `json:"chat" yaml:"chat"`
	Temperature float64   `json:"temperature" yaml:"temperature"`
	MaxTokens   int       `json:"max_tokens" yaml:"max_tokens"`

	// QueryTimeout bounds a single SPARQL evaluation. Zero means no bound
	// beyond the request context.
	QueryTimeout time.Duration `json:"query_timeout" yaml:"query_timeout"`

	// ExtraIndustryAliases maps lowercase phrases to canonical industry
	// labels, checked before the built-in table.
	ExtraIndustryAliases map[string]string `json:"extra_industry_aliases,omitempty" yaml:"extra_industry_aliases,omitempty"`

	// Commercial registry extracts
	RegistryDir  string            `json:"registry_dir" yaml:"registry_dir"`
	RegistryUIDs map[string]string `json:"registry_uids,omitempty" yaml:"registry_uids,omitempty"`

	// Spreadsheet sheet names; empty means the first sheet.
	Ingest ingest.Config `json:"ingest" yaml:"ingest"`

	LogLevel   string `json:"log_level" yaml:"log_level"` // debug, info, warn, error
	LogQueries bool   `json:"log_queries" yaml:"log_queries"`
}

// LLMConfig configures the chat provider endpoint.
type LLMConfig struct {
	Provider string        `json:"provider" yaml:"provider"` // googleai, ollama, lmstudio, openrouter, openai, groq, xai, gemini, custom
	Model    string        `json:"model" yaml:"model"`
	BaseURL  string        `json:"base_url" yaml:"base_url"`
	APIKey   string        `json:"api_key" yaml:"api_key"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

func (c LLMConfig) provider() llm.Config {
	return llm.Config{
		Provider: c.Provider,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
		APIKey:   c.APIKey,
		Timeout:  c.Timeout,
	}
}

// DefaultConfig returns a Config with sensible defaults for local inference.
// Database is stored in ~/.fundgraph/fundgraph.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "fundgraph",
		StorageDir: "home",
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
			Timeout:  llm.DefaultTimeout,
		},
		Temperature:  0.1,
		MaxTokens:    2048,
		QueryTimeout: 30 * time.Second,
		RegistryDir:  "registry",
		LogLevel:     "info",
		LogQueries:   true,
	}
}

// LoadConfig reads a YAML (or JSON) config file over the defaults and
// applies FUNDGRAPH_* environment overrides. A missing file yields the
// defaults; an empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return cfg, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		"FUNDGRAPH_DB_PATH":       &c.DBPath,
		"FUNDGRAPH_GRAPH_FILE":    &c.GraphFile,
		"FUNDGRAPH_CHAT_PROVIDER": &c.Chat.Provider,
		"FUNDGRAPH_CHAT_MODEL":    &c.Chat.Model,
		"FUNDGRAPH_CHAT_BASE_URL": &c.Chat.BaseURL,
		"FUNDGRAPH_CHAT_API_KEY":  &c.Chat.APIKey,
		"FUNDGRAPH_REGISTRY_DIR":  &c.RegistryDir,
		"FUNDGRAPH_LOG_LEVEL":     &c.LogLevel,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("FUNDGRAPH_CHAT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: FUNDGRAPH_CHAT_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		c.Chat.Timeout = d
	}
	if v := os.Getenv("FUNDGRAPH_LOG_QUERIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: FUNDGRAPH_LOG_QUERIES: %v", ErrInvalidConfig, err)
		}
		c.LogQueries = b
	}

	// Fallback: well-known provider env vars for API keys.
	if c.Chat.APIKey == "" {
		switch c.Chat.Provider {
		case "openai":
			c.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
		case "groq":
			c.Chat.APIKey = os.Getenv("GROQ_API_KEY")
		case "xai":
			c.Chat.APIKey = os.Getenv("XAI_API_KEY")
		case "googleai", "gemini":
			c.Chat.APIKey = os.Getenv("GEMINI_API_KEY")
		case "openrouter":
			c.Chat.APIKey = os.Getenv("OPENROUTER_API_KEY")
		}
	}
	return nil
}

// Validate reports configuration values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Chat.Provider == "" {
		return fmt.Errorf("%w: chat provider not set", ErrInvalidConfig)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature %.2f out of range [0, 2]", ErrInvalidConfig, c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens must not be negative", ErrInvalidConfig)
	}
	if c.QueryTimeout < 0 || c.Chat.Timeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "fundgraph"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".fundgraph", name+".db")
	}
}
