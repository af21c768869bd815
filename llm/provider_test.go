package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantType string
	}{
		{"ollama", "*llm.ollamaProvider"},
		{"openai", "*llm.openAIProvider"},
		{"lmstudio", "*llm.compatProvider"},
		{"openrouter", "*llm.compatProvider"},
		{"groq", "*llm.compatProvider"},
		{"xai", "*llm.compatProvider"},
		{"gemini", "*llm.compatProvider"},
		{"custom", "*llm.compatProvider"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := Config{
				Provider: tt.provider,
				Model:    "test-model",
			}
			p, err := NewProvider(cfg)
			if err != nil {
				t.Fatalf("NewProvider(%q) returned error: %v", tt.provider, err)
			}
			gotType := fmt.Sprintf("%T", p)
			if gotType != tt.wantType {
				t.Errorf("NewProvider(%q) type = %s, want %s", tt.provider, gotType, tt.wantType)
			}
		})
	}
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(Config{Provider: "doesnotexist", Model: "test-model"})
	if err == nil {
		t.Fatal("expected error for unknown provider, got nil")
	}
	want := "unknown llm provider: doesnotexist"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestNewProviderEmpty(t *testing.T) {
	_, err := NewProvider(Config{Model: "test-model"})
	if err == nil {
		t.Fatal("expected error for empty provider, got nil")
	}
	want := "llm provider not specified"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

// baseConfig reaches base.cfg inside an HTTP-backed provider.
func baseConfig(t *testing.T, p Provider) Config {
	t.Helper()
	v := reflect.ValueOf(p).Elem()
	cfg := v.FieldByName("base").FieldByName("cfg")
	return Config{
		Provider: cfg.FieldByName("Provider").String(),
		Model:    cfg.FieldByName("Model").String(),
		BaseURL:  cfg.FieldByName("BaseURL").String(),
		APIKey:   cfg.FieldByName("APIKey").String(),
	}
}

// TestDefaultBaseURLs verifies that when BaseURL is empty in the config,
// each provider gets the correct default.
func TestDefaultBaseURLs(t *testing.T) {
	tests := []struct {
		provider string
		wantURL  string
	}{
		{"ollama", "http://localhost:11434"},
		{"lmstudio", "http://localhost:1234"},
		{"openrouter", "https://openrouter.ai/api"},
		{"groq", "https://api.groq.com/openai"},
		{"xai", "https://api.x.ai"},
		{"custom", ""},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider, Model: "test-model"})
			if err != nil {
				t.Fatalf("NewProvider(%q): %v", tt.provider, err)
			}
			if got := baseConfig(t, p).BaseURL; got != tt.wantURL {
				t.Errorf("default BaseURL for %q = %q, want %q", tt.provider, got, tt.wantURL)
			}
		})
	}
}

// TestExplicitBaseURLPreserved verifies that a user-supplied BaseURL
// is not overwritten by the default.
func TestExplicitBaseURLPreserved(t *testing.T) {
	customURL := "http://my-server:9999"

	for _, provider := range []string{"ollama", "lmstudio", "openrouter", "xai", "custom"} {
		t.Run(provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: provider, Model: "test-model", BaseURL: customURL})
			if err != nil {
				t.Fatalf("NewProvider(%q): %v", provider, err)
			}
			if got := baseConfig(t, p).BaseURL; got != customURL {
				t.Errorf("provider %q BaseURL = %q, want %q", provider, got, customURL)
			}
		})
	}
}

func TestModelAndKeyPassedThrough(t *testing.T) {
	p, err := NewProvider(Config{Provider: "openrouter", Model: "llama3:latest", APIKey: "sk-test-key-123"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	cfg := baseConfig(t, p)
	if cfg.Model != "llama3:latest" {
		t.Errorf("model = %q, want %q", cfg.Model, "llama3:latest")
	}
	if cfg.APIKey != "sk-test-key-123" {
		t.Errorf("api key = %q, want %q", cfg.APIKey, "sk-test-key-123")
	}
}

var exploreTool = Tool{
	Name:        "explore_graph",
	Description: "Explore a node",
	Parameters:  json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`),
}

const toolCallResponse = `{
	"model": "test-model",
	"choices": [{
		"message": {
			"content": "",
			"tool_calls": [{
				"id": "call_1",
				"type": "function",
				"function": {"name": "explore_graph", "arguments": "{\"name\":\"Alice\"}"}
			}]
		},
		"finish_reason": "tool_calls"
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func TestCompatChatTools(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("Authorization = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("request body: %v", err)
		}
		io.WriteString(w, toolCallResponse)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{Model: "test-model", BaseURL: srv.URL, APIKey: "key"})
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "who is Alice?"}},
		Tools:    []Tool{exploreTool},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if got["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v, want auto", got["tool_choice"])
	}
	tools, _ := got["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("tools sent = %v", got["tools"])
	}
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "explore_graph" {
		t.Errorf("tool name = %v", fn["name"])
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %v", resp.ToolCalls)
	}
	call := resp.ToolCalls[0]
	if call.ID != "call_1" || call.Name != "explore_graph" || call.Arguments != `{"name":"Alice"}` {
		t.Errorf("tool call = %+v", call)
	}
	if resp.TotalTokens != 15 || resp.FinishReason != "tool_calls" {
		t.Errorf("response = %+v", resp)
	}
}

func TestCompatRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c := newOpenAICompatClient(Config{BaseURL: srv.URL, Model: "m"})
	c.retryDelay = time.Millisecond
	resp, err := c.chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q", resp.Content)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("server calls = %d, want 3", n)
	}
}

func TestCompatNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newOpenAICompatClient(Config{BaseURL: srv.URL, Model: "m"})
	c.retryDelay = time.Millisecond
	if _, err := c.chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error for 400")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server calls = %d, want 1", n)
	}
}

func TestOpenAIProviderChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, toolCallResponse)
	}))
	defer srv.Close()

	p := NewOpenAI(Config{Model: "gpt-test", BaseURL: srv.URL, APIKey: "key"})
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "who is Alice?"}},
		Tools:    []Tool{exploreTool},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "explore_graph" {
		t.Errorf("ToolCalls = %+v", resp.ToolCalls)
	}
}

func TestOpenAIProviderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","model":"m","data":[
			{"object":"embedding","index":1,"embedding":[0.3,0.4]},
			{"object":"embedding","index":0,"embedding":[0.1,0.2]}
		]}`)
	}))
	defer srv.Close()

	p := NewOpenAI(Config{Model: "m", BaseURL: srv.URL})
	got, err := p.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	want := [][]float32{{0.1, 0.2}, {0.3, 0.4}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Embed = %v, want %v", got, want)
	}
}

func TestOpenAIProviderModelDefaults(t *testing.T) {
	var embedModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected request to %s", r.URL.Path)
			return
		}
		var body struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		embedModel = body.Model
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1]}]}`)
	}))
	defer srv.Close()

	p := NewOpenAI(Config{BaseURL: srv.URL})
	if _, err := p.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if embedModel != defaultEmbeddingModel {
		t.Errorf("embedding model = %q, want %q", embedModel, defaultEmbeddingModel)
	}

	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err == nil || !strings.Contains(err.Error(), "no model") {
		t.Errorf("Chat without a model: err = %v", err)
	}
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"embeddings":[[0.5,0.25]]}`)
	}))
	defer srv.Close()

	p := NewOllama(Config{Model: "nomic", BaseURL: srv.URL})
	got, err := p.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if !reflect.DeepEqual(got, [][]float32{{0.5, 0.25}}) {
		t.Errorf("Embed = %v", got)
	}
}

func TestOllamaEmbedRetriesAndChecksCount(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"embeddings":[[0.5,0.25]]}`)
	}))
	defer srv.Close()

	p := NewOllama(Config{Model: "nomic", BaseURL: srv.URL}).(*ollamaProvider)
	p.base.retryDelay = time.Millisecond

	if _, err := p.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("server calls = %d, want 2", n)
	}

	if _, err := p.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected an error when fewer embeddings than texts come back")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", `{"edges":[]}`, `{"edges":[]}`, false},
		{"fenced", "```json\n{\"edges\":[]}\n```", `{"edges":[]}`, false},
		{"prose around", `Here you go: {"a":1} hope it helps`, `{"a":1}`, false},
		{"no object", "nothing here", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}
