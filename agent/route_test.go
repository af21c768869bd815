package agent

import (
	"errors"
	"strings"
	"testing"

	"github.com/brunobiangulo/kgchat/llm"
)

func TestParseRoute(t *testing.T) {
	tests := []struct {
		label   string
		want    Route
		wantErr bool
	}{
		{"build_graph", RouteBuildGraph, false},
		{"investigate_graph", RouteInvestigateGraph, false},
		{" direct_answer\n", RouteDirectAnswer, false},
		{"Build_Graph", 0, true},
		{"generate_kg", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseRoute(tt.label)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownRoute) {
					t.Errorf("err = %v, want ErrUnknownRoute", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseRoute(%q) = %v, %v; want %v", tt.label, got, err, tt.want)
			}
		})
	}
}

func TestRouteStringRoundTrip(t *testing.T) {
	for _, r := range Routes() {
		got, err := ParseRoute(r.String())
		if err != nil || got != r {
			t.Errorf("ParseRoute(%s) = %v, %v", r, got, err)
		}
	}
}

func TestMermaid(t *testing.T) {
	d := Mermaid()
	for _, want := range []string{
		"stateDiagram-v2",
		"[*] --> route",
		"route --> build_graph",
		"explore_tool --> investigate_graph",
		"direct_answer --> [*]",
	} {
		if !strings.Contains(d, want) {
			t.Errorf("diagram missing %q:\n%s", want, d)
		}
	}
	if strings.Contains(d, "direct_answer --> explore_tool") {
		t.Error("direct answer must not reach the explore tool")
	}
}

func TestParseExploreArguments(t *testing.T) {
	name, err := ParseExploreArguments(`{"name":"Alice"}`)
	if err != nil || name != "Alice" {
		t.Errorf("ParseExploreArguments = %q, %v", name, err)
	}
	for _, raw := range []string{`{"name":""}`, `not json`, `{}`} {
		if _, err := ParseExploreArguments(raw); !errors.Is(err, ErrContractViolation) {
			t.Errorf("ParseExploreArguments(%s) err = %v", raw, err)
		}
	}
}

func TestExplorationString(t *testing.T) {
	e := Exploration{Node: "Alice", Results: []string{"a", "b"}}
	want := "Relationships of \"Alice\":\n- a\n- b"
	if got := e.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestToolRequestFromCalls(t *testing.T) {
	req, err := ToolRequestFromCalls([]llm.ToolCall{
		{ID: "1", Name: ExploreToolName, Arguments: `{"name":"Alice"}`},
		{ID: "2", Name: ExploreToolName, Arguments: `{"name":"Rome"}`},
	})
	if err != nil {
		t.Fatalf("ToolRequestFromCalls: %v", err)
	}
	if len(req.Calls) != 2 || req.Calls[1].Node != "Rome" || req.Calls[0].ID != "1" {
		t.Errorf("Calls = %+v", req.Calls)
	}

	if _, err := ToolRequestFromCalls([]llm.ToolCall{{Name: "delete_graph", Arguments: `{}`}}); !errors.Is(err, ErrContractViolation) {
		t.Errorf("unknown tool err = %v", err)
	}
}
