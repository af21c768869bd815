// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/brunobiangulo/kgchat/llm"
)

// Provider replays scripted chat responses in order, repeating the last
// one, and records every request it receives.
type Provider struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	requests  []llm.ChatRequest

	// Err, when set, is returned by every Chat call.
	Err error
	// Dim is the size of the vectors returned by Embed. Embed fails when
	// it is zero.
	Dim int
}

// New returns a provider that answers with the given responses.
func New(responses ...*llm.ChatResponse) *Provider {
	return &Provider{responses: responses}
}

// Text is a plain content response.
func Text(content string) *llm.ChatResponse {
	return &llm.ChatResponse{Content: content, FinishReason: "stop", TotalTokens: 1}
}

// Explore is a response calling the explore tool once per node.
func Explore(nodes ...string) *llm.ChatResponse {
	resp := &llm.ChatResponse{FinishReason: "tool_calls"}
	for i, n := range nodes {
		resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
			ID:        "call_" + string(rune('a'+i)),
			Name:      "explore_graph",
			Arguments: `{"name":"` + n + `"}`,
		})
	}
	return resp
}

// Push appends responses to the script.
func (p *Provider) Push(responses ...*llm.ChatResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, responses...)
}

// Requests returns the chat requests received so far.
func (p *Provider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.ChatRequest(nil), p.requests...)
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.responses) == 0 {
		return nil, errors.New("llmtest: no scripted response")
	}
	i := min(len(p.requests)-1, len(p.responses)-1)
	return p.responses[i], nil
}

// Embed returns a deterministic pseudo-random vector per text; equal texts
// get equal vectors.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p.Dim == 0 {
		return nil, errors.New("llmtest: embeddings disabled")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		h := fnv.New64a()
		h.Write([]byte(t))
		seed := h.Sum64()
		v := make([]float32, p.Dim)
		for j := range v {
			seed = seed*6364136223846793005 + 1442695040888963407
			v[j] = float32(seed>>40) / float32(1<<24)
		}
		out[i] = v
	}
	return out, nil
}
