package agent

import "github.com/brunobiangulo/kgchat/kg"

// BuildOutcome is the result of one extraction call: a *ToolRequest or a
// *GraphFragment.
type BuildOutcome interface {
	buildOutcome()
}

// InvestigateOutcome is the result of one investigation call: a
// *ToolRequest or an *AnswerText.
type InvestigateOutcome interface {
	investigateOutcome()
}

// ToolCall is one requested invocation of a tool.
type ToolCall struct {
	ID   string `json:"id,omitempty"`
	Tool string `json:"tool"`
	Node string `json:"node"` // the "name" argument of the explore tool
}

// ToolRequest asks the state machine to run tools before calling the
// requesting service again.
type ToolRequest struct {
	Calls []ToolCall
}

// GraphFragment carries the new edges produced by one extraction call.
// Zero edges is a valid fragment.
type GraphFragment struct {
	Edges []kg.Edge
}

// AnswerText is the final answer of an investigation.
type AnswerText struct {
	Text string
}

func (*ToolRequest) buildOutcome()       {}
func (*ToolRequest) investigateOutcome() {}
func (*GraphFragment) buildOutcome()     {}
func (*AnswerText) investigateOutcome()  {}
