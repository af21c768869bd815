package kgchat

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Chat.Provider != "openai" || cfg.Chat.Model != "gpt-3.5-turbo" || cfg.Temperature != 0 {
		t.Errorf("chat defaults = %+v, temperature %v", cfg.Chat, cfg.Temperature)
	}
	if cfg.MaxSteps != 4 || cfg.MaxChunkTokens != 1000 || !cfg.NativeTools {
		t.Errorf("agent defaults = %d %d %v", cfg.MaxSteps, cfg.MaxChunkTokens, cfg.NativeTools)
	}
	o := cfg.Ontology.Ontology()
	if !o.HasLabel("Person") || !o.HasLabel("Place") || len(o.Relationships()) != 1 {
		t.Errorf("default ontology = %v", o.Serialize())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kgchat.yaml")
	data := `
db_path: /tmp/x.db
chat:
  provider: groq
  model: llama-3.1-8b-instant
max_steps: 6
ontology:
  labels:
    - Persona: Persone fisiche
    - Luogo
  relationships: []
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Chat.Provider != "groq" || cfg.MaxSteps != 6 || cfg.DBPath != "/tmp/x.db" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.MaxChunkTokens != 1000 {
		t.Errorf("unset fields should keep defaults, MaxChunkTokens = %d", cfg.MaxChunkTokens)
	}
	labels := cfg.Ontology.Labels
	if len(labels) != 2 || labels[0].Name != "Persona" || labels[0].Description != "Persone fisiche" || labels[1].Name != "Luogo" {
		t.Errorf("labels = %+v", labels)
	}
}

func TestLoadConfigJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kgchat.json")
	os.WriteFile(path, []byte(`{"native_tools": false, "ontology": {"labels": ["Company"]}}`), 0644)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.NativeTools || !cfg.Ontology.Ontology().HasLabel("Company") {
		t.Errorf("cfg = %+v", cfg)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(bad, []byte(`{`), 0644)
	if _, err := LoadConfig(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("malformed config err = %v", err)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("KGCHAT_CHAT_MODEL", "gpt-4o-mini")
	t.Setenv("KGCHAT_MAX_STEPS", "4")
	t.Setenv("KGCHAT_NATIVE_TOOLS", "false")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Chat.Model != "gpt-4o-mini" || cfg.MaxSteps != 4 || cfg.NativeTools {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Chat.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want OPENAI_API_KEY fallback", cfg.Chat.APIKey)
	}

	t.Setenv("KGCHAT_MAX_STEPS", "ten")
	if err := cfg.ApplyEnv(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad number err = %v", err)
	}
}

func TestApplyEnvGroqKey(t *testing.T) {
	t.Setenv("KGCHAT_CHAT_PROVIDER", "groq")
	t.Setenv("GROQ_API_KEY", "gsk-test")
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Chat.APIKey != "gsk-test" {
		t.Errorf("APIKey = %q", cfg.Chat.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no chat provider", func(c *Config) { c.Chat.Provider = "" }},
		{"no chat model", func(c *Config) { c.Chat.Model = "" }},
		{"negative steps", func(c *Config) { c.MaxSteps = -1 }},
		{"negative chunk tokens", func(c *Config) { c.MaxChunkTokens = -5 }},
		{"temperature", func(c *Config) { c.Temperature = 3 }},
		{"embedding dim", func(c *Config) { c.Embedding.Provider = "ollama"; c.EmbeddingDim = 0 }},
		{"blank label", func(c *Config) { c.Ontology.Labels[0].Name = " " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestResolveDBPath(t *testing.T) {
	cfg := Config{DBPath: "/data/kg.db"}
	if got := cfg.resolveDBPath(); got != "/data/kg.db" {
		t.Errorf("explicit path = %q", got)
	}
	cfg = Config{DBName: "work", StorageDir: "local"}
	if got := cfg.resolveDBPath(); got != "work.db" {
		t.Errorf("local path = %q", got)
	}
	cfg = Config{}
	if got := cfg.resolveDBPath(); !strings.HasSuffix(got, filepath.Join(".kgchat", "kgchat.db")) && got != "kgchat.db" {
		t.Errorf("home path = %q", got)
	}
}
