package agent

import "github.com/brunobiangulo/kgchat/kg"

// State is a node of the agent state machine.
type State int

const (
	StateRoute State = iota + 1
	StateBuildGraph
	StateInvestigateGraph
	StateDirectAnswer
	StateExploreTool
	StateDone
)

var stateNames = map[State]string{
	StateRoute:            "route",
	StateBuildGraph:       "build_graph",
	StateInvestigateGraph: "investigate_graph",
	StateDirectAnswer:     "direct_answer",
	StateExploreTool:      "explore_tool",
	StateDone:             "done",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// transitions is the full edge set of the state machine, in the order
// the diagram lists them.
var transitions = []struct{ from, to State }{
	{StateRoute, StateBuildGraph},
	{StateRoute, StateInvestigateGraph},
	{StateRoute, StateDirectAnswer},
	{StateBuildGraph, StateExploreTool},
	{StateExploreTool, StateBuildGraph},
	{StateInvestigateGraph, StateExploreTool},
	{StateExploreTool, StateInvestigateGraph},
	{StateBuildGraph, StateDone},
	{StateInvestigateGraph, StateDone},
	{StateDirectAnswer, StateDone},
}

func allowed(from, to State) bool {
	for _, t := range transitions {
		if t.from == from && t.to == to {
			return true
		}
	}
	return false
}

// Session is the state carried from step to step while one chunk is
// processed. Graph is shared with the caller and with later chunks.
type Session struct {
	Query    string
	Ontology kg.Ontology
	Graph    *kg.Graph

	Route        Route
	PendingCalls []ToolCall
	Origin       State // state that issued PendingCalls
	Explorations []Exploration

	Generation string
	EdgesAdded int
	Steps      int // executed states
	Rounds     int // executed explore round trips
	Trace      []State
}
