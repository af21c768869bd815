package kgchat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/kgchat/agent"
	"github.com/brunobiangulo/kgchat/chunker"
	"github.com/brunobiangulo/kgchat/kg"
	"github.com/brunobiangulo/kgchat/llm"
)

// Config holds all configuration for the kgchat engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.kgchat/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "kgchat".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.kgchat/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// LLM providers
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"` // optional: enables node search

	Temperature float64 `json:"temperature" yaml:"temperature"`

	// Agent
	MaxSteps       int  `json:"max_steps" yaml:"max_steps"`               // explore round trips per chunk before giving up
	MaxChunkTokens int  `json:"max_chunk_tokens" yaml:"max_chunk_tokens"` // estimated tokens per chunk
	NativeTools    bool `json:"native_tools" yaml:"native_tools"`         // advertise the explore tool via function calling

	// Embedding dimensions (must match model)
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// Ontology given to new conversations
	Ontology OntologyConfig `json:"ontology" yaml:"ontology"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // openai, ollama, lmstudio, openrouter, groq, xai, gemini, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

func (c LLMConfig) llm() llm.Config {
	return llm.Config{Provider: c.Provider, Model: c.Model, BaseURL: c.BaseURL, APIKey: c.APIKey}
}

// OntologyConfig is the file form of an ontology. Labels are either bare
// names or one-key {name: description} mappings.
type OntologyConfig struct {
	Labels        []kg.Label `json:"labels" yaml:"labels"`
	Relationships []string   `json:"relationships" yaml:"relationships"`
}

// Ontology converts the config into a kg.Ontology.
func (c OntologyConfig) Ontology() kg.Ontology {
	return kg.NewOntology(c.Labels, c.Relationships)
}

// DefaultConfig returns a Config with the defaults of the hosted setup:
// gpt-3.5-turbo at temperature 0 and no embedding provider.
// Database is stored in ~/.kgchat/kgchat.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "kgchat",
		StorageDir: "home",
		Chat: LLMConfig{
			Provider: "openai",
			Model:    "gpt-3.5-turbo",
		},
		Temperature:    0,
		MaxSteps:       agent.DefaultMaxSteps,
		MaxChunkTokens: chunker.DefaultMaxTokens,
		NativeTools:    true,
		EmbeddingDim:   1536,
		Ontology: OntologyConfig{
			Labels:        kg.BareLabels("Person", "Place"),
			Relationships: []string{"Any relationship between two entities"},
		},
	}
}

// LoadConfig reads a JSON or YAML config file on top of DefaultConfig.
// The format is chosen by extension; anything but .json is read as YAML.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides config fields from KGCHAT_* environment variables.
// Missing API keys fall back to OPENAI_API_KEY or GROQ_API_KEY depending
// on the provider.
func (c *Config) ApplyEnv() error {
	strs := []struct {
		env  string
		dest *string
	}{
		{"KGCHAT_DB_PATH", &c.DBPath},
		{"KGCHAT_CHAT_PROVIDER", &c.Chat.Provider},
		{"KGCHAT_CHAT_MODEL", &c.Chat.Model},
		{"KGCHAT_CHAT_BASE_URL", &c.Chat.BaseURL},
		{"KGCHAT_CHAT_API_KEY", &c.Chat.APIKey},
		{"KGCHAT_EMBED_PROVIDER", &c.Embedding.Provider},
		{"KGCHAT_EMBED_MODEL", &c.Embedding.Model},
		{"KGCHAT_EMBED_BASE_URL", &c.Embedding.BaseURL},
		{"KGCHAT_EMBED_API_KEY", &c.Embedding.APIKey},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dest = v
		}
	}

	ints := []struct {
		env  string
		dest *int
	}{
		{"KGCHAT_MAX_STEPS", &c.MaxSteps},
		{"KGCHAT_MAX_CHUNK_TOKENS", &c.MaxChunkTokens},
		{"KGCHAT_EMBEDDING_DIM", &c.EmbeddingDim},
	}
	for _, i := range ints {
		v := os.Getenv(i.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, i.env, v)
		}
		*i.dest = n
	}
	if v := os.Getenv("KGCHAT_NATIVE_TOOLS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: KGCHAT_NATIVE_TOOLS=%q is not a boolean", ErrInvalidConfig, v)
		}
		c.NativeTools = b
	}

	c.Chat.APIKey = fallbackKey(c.Chat)
	if c.Embedding.Provider != "" {
		c.Embedding.APIKey = fallbackKey(c.Embedding)
	}
	return nil
}

func fallbackKey(c LLMConfig) string {
	if c.APIKey != "" {
		return c.APIKey
	}
	switch c.Provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "groq":
		return os.Getenv("GROQ_API_KEY")
	}
	return ""
}

// Validate reports configuration values the engine cannot run with.
func (c Config) Validate() error {
	return c.validate(false)
}

// validate skips the chat provider check when the provider is injected.
func (c Config) validate(injectedChat bool) error {
	switch {
	case c.Chat.Provider == "" && !injectedChat:
		return fmt.Errorf("%w: chat provider not set", ErrInvalidConfig)
	case c.Chat.Model == "" && !injectedChat:
		return fmt.Errorf("%w: chat model not set", ErrInvalidConfig)
	case c.MaxSteps < 0:
		return fmt.Errorf("%w: max_steps must not be negative", ErrInvalidConfig)
	case c.MaxChunkTokens < 0:
		return fmt.Errorf("%w: max_chunk_tokens must not be negative", ErrInvalidConfig)
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("%w: temperature %.2f out of range [0, 2]", ErrInvalidConfig, c.Temperature)
	case c.Embedding.Provider != "" && c.EmbeddingDim <= 0:
		return fmt.Errorf("%w: embedding_dim must be positive when an embedding provider is set", ErrInvalidConfig)
	}
	for _, l := range c.Ontology.Labels {
		if strings.TrimSpace(l.Name) == "" {
			return fmt.Errorf("%w: ontology label with an empty name", ErrInvalidConfig)
		}
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "kgchat"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".kgchat", name+".db")
	}
}
