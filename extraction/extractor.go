// Package extraction implements the graph-building service: an LLM reads a
// piece of text under an ontology and answers with new edges, or asks to
// explore existing nodes first.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/kgchat/agent"
	"github.com/brunobiangulo/kgchat/kg"
	"github.com/brunobiangulo/kgchat/llm"
)

// Config holds extractor configuration.
type Config struct {
	Model       string
	Temperature float64
	// NativeTools advertises the explore tool through function calling.
	// When false the model requests explorations in its JSON reply.
	NativeTools bool
}

// Extractor is an agent.Extractor backed by a chat model.
type Extractor struct {
	chat llm.Provider
	cfg  Config
}

// New creates an extractor.
func New(chat llm.Provider, cfg Config) *Extractor {
	return &Extractor{chat: chat, cfg: cfg}
}

var _ agent.Extractor = (*Extractor)(nil)

// reply is the JSON shape of an extraction answer. Edges is a pointer so
// that a missing key can be told apart from an empty list.
type reply struct {
	Edges   *[]kg.Edge `json:"edges"`
	Explore []string   `json:"explore"`
}

// Extract runs one extraction call.
func (e *Extractor) Extract(ctx context.Context, in agent.ExtractInput) (agent.BuildOutcome, error) {
	hint := textExploreHint
	var tools []llm.Tool
	if e.cfg.NativeTools {
		hint = nativeExploreHint
		tools = []llm.Tool{agent.ExploreToolDefinition}
	}

	explorations := "None yet."
	if len(in.Explorations) > 0 {
		explorations = strings.Join(in.Explorations, "\n\n")
	}
	system := fmt.Sprintf(buildGraphPrompt,
		in.Ontology.PromptString(),
		strings.Join(in.KnownNodes, "\n"),
		hint,
		explorations,
	)

	start := time.Now()
	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Model: e.cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: in.Text},
		},
		Temperature: e.cfg.Temperature,
		Tools:       tools,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}
	slog.Info("extraction: model replied",
		"tokens", resp.TotalTokens,
		"tool_calls", len(resp.ToolCalls),
		"elapsed", time.Since(start).Round(time.Millisecond))
	slog.Debug("extraction: raw reply", "content", resp.Content)

	if len(resp.ToolCalls) > 0 {
		req, err := agent.ToolRequestFromCalls(resp.ToolCalls)
		if err != nil {
			return nil, err
		}
		return req, nil
	}
	return parseReply(resp.Content)
}

// parseReply decodes a textual extraction answer into exactly one outcome.
func parseReply(content string) (agent.BuildOutcome, error) {
	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", agent.ErrContractViolation, err)
	}

	var r reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("%w: decoding extraction reply: %v", agent.ErrContractViolation, err)
	}

	switch {
	case len(r.Explore) > 0 && r.Edges != nil:
		return nil, fmt.Errorf("%w: reply has both edges and an explore request", agent.ErrContractViolation)
	case len(r.Explore) > 0:
		for _, name := range r.Explore {
			if strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("%w: explore request with an empty node name", agent.ErrContractViolation)
			}
		}
		return agent.ExploreRequest(r.Explore...), nil
	case r.Edges == nil:
		return nil, fmt.Errorf("%w: reply has neither edges nor an explore request", agent.ErrContractViolation)
	}

	edges := *r.Edges
	if err := kg.NewGraph(edges...).Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", agent.ErrContractViolation, err)
	}
	return &agent.GraphFragment{Edges: edges}, nil
}
