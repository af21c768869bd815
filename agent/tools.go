package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brunobiangulo/kgchat/kg"
	"github.com/brunobiangulo/kgchat/llm"
)

// ExploreToolName is the only tool extraction and investigation may call.
const ExploreToolName = "explore_graph"

// ExploreToolDefinition advertises the explore tool to a model.
var ExploreToolDefinition = llm.Tool{
	Name:        ExploreToolName,
	Description: "Return every relationship of a single node of the knowledge graph.",
	Parameters: json.RawMessage(`{"type":"object","properties":{"name":{"type":"string",` +
		`"description":"The exact name of the node"}},"required":["name"]}`),
}

// Explore returns the relationships of the named node in g. A missing node
// yields the not-present sentinel.
func Explore(g *kg.Graph, name string) []string {
	return g.RelationshipsOf(name)
}

// Exploration is the recorded result of one explore call.
type Exploration struct {
	Node    string   `json:"node"`
	Results []string `json:"results"`
}

// String renders the exploration for inclusion in a prompt.
func (e Exploration) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Relationships of %q:", e.Node)
	for _, r := range e.Results {
		b.WriteString("\n- ")
		b.WriteString(r)
	}
	return b.String()
}

// ParseExploreArguments decodes the JSON arguments of an explore call.
func ParseExploreArguments(raw string) (string, error) {
	var args struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return "", fmt.Errorf("%w: explore arguments %q: %v", ErrContractViolation, raw, err)
	}
	if strings.TrimSpace(args.Name) == "" {
		return "", fmt.Errorf("%w: explore call without a node name", ErrContractViolation)
	}
	return args.Name, nil
}

func formatExplorations(ex []Exploration) []string {
	if len(ex) == 0 {
		return nil
	}
	out := make([]string, len(ex))
	for i, e := range ex {
		out[i] = e.String()
	}
	return out
}

// ExploreRequest builds a request exploring the given nodes in order.
func ExploreRequest(nodes ...string) *ToolRequest {
	req := &ToolRequest{}
	for _, n := range nodes {
		req.Calls = append(req.Calls, ToolCall{Tool: ExploreToolName, Node: n})
	}
	return req
}

// ToolRequestFromCalls converts the tool calls of a model reply into a
// ToolRequest. Any call other than a well-formed explore call is a
// contract violation.
func ToolRequestFromCalls(calls []llm.ToolCall) (*ToolRequest, error) {
	req := &ToolRequest{}
	for _, c := range calls {
		if c.Name != ExploreToolName {
			return nil, fmt.Errorf("%w: unknown tool %q", ErrContractViolation, c.Name)
		}
		node, err := ParseExploreArguments(c.Arguments)
		if err != nil {
			return nil, err
		}
		req.Calls = append(req.Calls, ToolCall{ID: c.ID, Tool: c.Name, Node: node})
	}
	return req, nil
}
