// Package reasoning implements the chat-model services of the agent that do
// not build the graph: query routing, graph investigation and direct
// answers.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/kgchat/agent"
	"github.com/brunobiangulo/kgchat/llm"
)

// Config holds the configuration shared by the reasoning services.
type Config struct {
	Model       string
	Temperature float64
	// NativeTools advertises the explore tool through function calling.
	NativeTools bool
}

// Router is an agent.Router backed by a chat model.
type Router struct {
	chat llm.Provider
	cfg  Config
}

// NewRouter creates a router.
func NewRouter(chat llm.Provider, cfg Config) *Router {
	return &Router{chat: chat, cfg: cfg}
}

// Route asks the model for a route label. The label is returned verbatim;
// validating it is left to the state machine.
func (r *Router) Route(ctx context.Context, query string) (string, error) {
	resp, err := r.chat.Chat(ctx, llm.ChatRequest{
		Model: r.cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: routerPrompt},
			{Role: llm.RoleUser, Content: query},
		},
		Temperature:    r.cfg.Temperature,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return "", fmt.Errorf("router call: %w", err)
	}

	label := strings.TrimSpace(resp.Content)
	if raw, err := llm.ExtractJSON(resp.Content); err == nil {
		var out struct {
			Route string `json:"route"`
		}
		if json.Unmarshal([]byte(raw), &out) == nil && out.Route != "" {
			label = out.Route
		}
	}
	slog.Debug("reasoning: router replied", "label", label, "tokens", resp.TotalTokens)
	return label, nil
}

// Investigator is an agent.Investigator backed by a chat model.
type Investigator struct {
	chat llm.Provider
	cfg  Config
}

// NewInvestigator creates an investigator.
func NewInvestigator(chat llm.Provider, cfg Config) *Investigator {
	return &Investigator{chat: chat, cfg: cfg}
}

// Investigate runs one investigation call: the model either explores
// nodes or answers.
func (iv *Investigator) Investigate(ctx context.Context, in agent.InvestigateInput) (agent.InvestigateOutcome, error) {
	hint := textExploreHint
	var tools []llm.Tool
	if iv.cfg.NativeTools {
		hint = nativeExploreHint
		tools = []llm.Tool{agent.ExploreToolDefinition}
	}
	explorations := "None yet."
	if len(in.Explorations) > 0 {
		explorations = strings.Join(in.Explorations, "\n\n")
	}
	system := fmt.Sprintf(investigatePrompt, strings.Join(in.KnownNodes, "\n"), hint, explorations)

	start := time.Now()
	resp, err := iv.chat.Chat(ctx, llm.ChatRequest{
		Model: iv.cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: in.Query},
		},
		Temperature: iv.cfg.Temperature,
		Tools:       tools,
	})
	if err != nil {
		return nil, fmt.Errorf("investigation call: %w", err)
	}
	slog.Info("reasoning: investigation replied",
		"tokens", resp.TotalTokens,
		"tool_calls", len(resp.ToolCalls),
		"elapsed", time.Since(start).Round(time.Millisecond))

	if len(resp.ToolCalls) > 0 {
		req, err := agent.ToolRequestFromCalls(resp.ToolCalls)
		if err != nil {
			return nil, err
		}
		return req, nil
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: investigation reply is empty", agent.ErrContractViolation)
	}
	if nodes, ok := textualExplore(content); ok {
		return agent.ExploreRequest(nodes...), nil
	}
	return &agent.AnswerText{Text: content}, nil
}

// textualExplore recognises a {"explore": [...]} reply.
func textualExplore(content string) ([]string, bool) {
	if !strings.HasPrefix(content, "{") && !strings.HasPrefix(content, "```") {
		return nil, false
	}
	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, false
	}
	var out struct {
		Explore []string `json:"explore"`
	}
	if json.Unmarshal([]byte(raw), &out) != nil || len(out.Explore) == 0 {
		return nil, false
	}
	var nodes []string
	for _, n := range out.Explore {
		if n = strings.TrimSpace(n); n != "" {
			nodes = append(nodes, n)
		}
	}
	return nodes, len(nodes) > 0
}

// Responder is an agent.Responder backed by a chat model.
type Responder struct {
	chat llm.Provider
	cfg  Config
}

// NewResponder creates a responder.
func NewResponder(chat llm.Provider, cfg Config) *Responder {
	return &Responder{chat: chat, cfg: cfg}
}

// Answer replies to the query without looking at the graph.
func (r *Responder) Answer(ctx context.Context, query string) (string, error) {
	resp, err := r.chat.Chat(ctx, llm.ChatRequest{
		Model: r.cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: directPrompt},
			{Role: llm.RoleUser, Content: query},
		},
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("direct answer call: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

var (
	_ agent.Router       = (*Router)(nil)
	_ agent.Investigator = (*Investigator)(nil)
	_ agent.Responder    = (*Responder)(nil)
)
