package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider is the interface for LLM interactions.
type Provider interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Embed generates embeddings for a batch of texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// ResponseFormat can be set to "json_object" for JSON mode.
	ResponseFormat string `json:"response_format,omitempty"`
	// Tools advertised to the model as callable functions.
	Tools []Tool `json:"tools,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a function the model may call. Parameters is a JSON
// schema object.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is a function invocation requested by the model. Arguments is
// the raw JSON argument object as produced by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string     `json:"content"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	Model            string     `json:"model"`
	FinishReason     string     `json:"finish_reason"`
	PromptTokens     int        `json:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens"`
	TotalTokens      int        `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, lmstudio, openrouter, openai, groq, xai, gemini, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// compatEndpoints holds the default base URL and API path prefix of every
// OpenAI-compatible provider served by compatProvider.
var compatEndpoints = map[string]struct {
	baseURL string
	prefix  string
}{
	"lmstudio":   {"http://localhost:1234", "/v1"},
	"openrouter": {"https://openrouter.ai/api", "/v1"},
	"groq":       {"https://api.groq.com/openai", "/v1"},
	"xai":        {"https://api.x.ai", "/v1"},
	"gemini":     {"https://generativelanguage.googleapis.com/v1beta/openai", ""},
	"custom":     {"", "/v1"},
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg), nil
	case "openai":
		return NewOpenAI(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	}
	ep, ok := compatEndpoints[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ep.baseURL
	}
	return &compatProvider{name: cfg.Provider, base: newOpenAICompatClientPrefix(cfg, ep.prefix)}, nil
}

// NewOpenAICompat creates a generic OpenAI-compatible provider for an
// endpoint that serves the API under /v1.
func NewOpenAICompat(cfg Config) Provider {
	return &compatProvider{name: "custom", base: newOpenAICompatClient(cfg)}
}

// compatProvider serves every provider that speaks the OpenAI wire format
// over plain HTTP.
type compatProvider struct {
	name string
	base openAICompatClient
}

func (p *compatProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

func (p *compatProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.base.embed(ctx, texts)
}
