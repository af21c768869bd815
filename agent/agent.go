// Package agent implements the knowledge-graph chat state machine: a query
// is routed to graph building, graph investigation or a direct answer, the
// reasoning states may loop through the explore tool, and long input is
// processed chunk by chunk against one accumulating graph.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/kgchat/chunker"
	"github.com/brunobiangulo/kgchat/kg"
)

// GraphBuiltMessage is the generation of a successful build step.
const GraphBuiltMessage = "Knowledge graph updated."

// DefaultMaxSteps bounds the explore round trips of one chunk. A ceiling
// of 1 allows a single exploration before the service must answer.
const DefaultMaxSteps = 4

// Router classifies a query into a route label.
type Router interface {
	Route(ctx context.Context, query string) (string, error)
}

// ExtractInput is the context handed to the extraction service.
type ExtractInput struct {
	Ontology     kg.Ontology
	Text         string
	KnownNodes   []string
	Explorations []string
}

// Extractor turns text into new edges or asks to explore the graph first.
type Extractor interface {
	Extract(ctx context.Context, in ExtractInput) (BuildOutcome, error)
}

// InvestigateInput is the context handed to the investigation service.
type InvestigateInput struct {
	Query        string
	KnownNodes   []string
	Explorations []string
}

// Investigator answers questions about the graph, exploring it as needed.
type Investigator interface {
	Investigate(ctx context.Context, in InvestigateInput) (InvestigateOutcome, error)
}

// Responder answers a query without touching the graph.
type Responder interface {
	Answer(ctx context.Context, query string) (string, error)
}

// Services bundles the collaborators of the state machine.
type Services struct {
	Router       Router
	Extractor    Extractor
	Investigator Investigator
	Responder    Responder
}

// Splitter segments input before it enters the state machine.
type Splitter interface {
	Split(text string) []string
}

// Config holds agent configuration.
type Config struct {
	MaxSteps       int
	MaxChunkTokens int
	Splitter       Splitter // overrides MaxChunkTokens when set
}

// Agent runs queries through the state machine.
type Agent struct {
	svc      Services
	splitter Splitter
	maxSteps int
}

// New creates an agent. Zero config values get defaults.
func New(svc Services, cfg Config) *Agent {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	splitter := cfg.Splitter
	if splitter == nil {
		splitter = chunker.New(chunker.Config{MaxTokens: cfg.MaxChunkTokens})
	}
	return &Agent{svc: svc, splitter: splitter, maxSteps: cfg.MaxSteps}
}

// RunInput is the input of one top-level run.
type RunInput struct {
	Query    string
	Ontology kg.Ontology
	Graph    *kg.Graph // grown in place; a new graph is used when nil
	MaxSteps int       // explore rounds per chunk; the agent default when zero
}

// StepEvent describes one executed state.
type StepEvent struct {
	Chunk   int
	State   State
	Next    State
	Session *Session
	Elapsed time.Duration
	Err     error
}

// RunOption customises a single Run.
type RunOption func(*runOptions)

type runOptions struct {
	onStep func(StepEvent)
	forced Route
}

// OnStep registers a hook called after every executed state.
func OnStep(fn func(StepEvent)) RunOption {
	return func(o *runOptions) { o.onStep = fn }
}

// WithForcedRoute skips the router and enters the given route directly.
func WithForcedRoute(r Route) RunOption {
	return func(o *runOptions) { o.forced = r }
}

// Run splits the query into chunks and runs the state machine once per
// chunk, in order, on the same graph. It returns the session of the last
// chunk. On error it returns the session of the failing chunk together
// with the error; edges merged by earlier chunks stay in the graph.
func (a *Agent) Run(ctx context.Context, in RunInput, opts ...RunOption) (*Session, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.forced != 0 {
		if _, ok := routeLabels[ro.forced]; !ok {
			return nil, fmt.Errorf("%w: forced %s", ErrUnknownRoute, ro.forced)
		}
	}
	if in.Graph == nil {
		in.Graph = kg.NewGraph()
	}
	maxSteps := in.MaxSteps
	if maxSteps <= 0 {
		maxSteps = a.maxSteps
	}

	chunks := a.splitter.Split(in.Query)
	if len(chunks) == 0 {
		chunks = []string{in.Query}
	}

	var last *Session
	for i, chunk := range chunks {
		s := &Session{Query: chunk, Ontology: in.Ontology, Graph: in.Graph}
		slog.Info("agent: running chunk", "chunk", i+1, "chunks", len(chunks), "query_len", len(chunk))
		if err := a.runChunk(ctx, s, i, maxSteps, ro); err != nil {
			if len(chunks) > 1 {
				err = fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
			}
			return s, err
		}
		last = s
	}
	return last, nil
}

func (a *Agent) runChunk(ctx context.Context, s *Session, chunk, maxSteps int, ro runOptions) error {
	state := StateRoute
	if ro.forced != 0 {
		s.Route = ro.forced
		state = ro.forced.state()
	}

	for state != StateDone {
		if err := ctx.Err(); err != nil {
			return err
		}
		if state == StateExploreTool {
			if s.Rounds >= maxSteps {
				return fmt.Errorf("%w: %s requested exploration round %d with a ceiling of %d",
					ErrStepLimit, s.Origin, s.Rounds+1, maxSteps)
			}
			s.Rounds++
		}
		s.Steps++
		s.Trace = append(s.Trace, state)

		start := time.Now()
		next, err := a.step(ctx, s, state)
		if err == nil && !allowed(state, next) {
			err = fmt.Errorf("agent: illegal transition %s -> %s", state, next)
		}
		if ro.onStep != nil {
			ro.onStep(StepEvent{Chunk: chunk, State: state, Next: next, Session: s, Elapsed: time.Since(start), Err: err})
		}
		if err != nil {
			return err
		}
		slog.Debug("agent: transition", "from", state, "to", next, "step", s.Steps)
		state = next
	}
	return nil
}

func (a *Agent) step(ctx context.Context, s *Session, state State) (State, error) {
	switch state {
	case StateRoute:
		return a.route(ctx, s)
	case StateBuildGraph:
		return a.buildGraph(ctx, s)
	case StateInvestigateGraph:
		return a.investigateGraph(ctx, s)
	case StateDirectAnswer:
		return a.directAnswer(ctx, s)
	case StateExploreTool:
		return a.exploreTool(s)
	}
	return StateDone, fmt.Errorf("agent: no handler for state %s", state)
}

func (a *Agent) route(ctx context.Context, s *Session) (State, error) {
	label, err := a.svc.Router.Route(ctx, s.Query)
	if err != nil {
		return StateDone, fmt.Errorf("routing: %w", err)
	}
	r, err := ParseRoute(label)
	if err != nil {
		return StateDone, err
	}
	s.Route = r
	slog.Info("agent: routed", "route", r)
	return r.state(), nil
}

func (a *Agent) buildGraph(ctx context.Context, s *Session) (State, error) {
	out, err := a.svc.Extractor.Extract(ctx, ExtractInput{
		Ontology:     s.Ontology,
		Text:         s.Query,
		KnownNodes:   s.Graph.NodeNames(),
		Explorations: formatExplorations(s.Explorations),
	})
	if err != nil {
		return StateDone, fmt.Errorf("extraction: %w", err)
	}

	switch o := out.(type) {
	case *ToolRequest:
		return s.requestTools(o, StateBuildGraph)
	case *GraphFragment:
		if o == nil {
			break
		}
		s.Graph.Merge(kg.NewGraph(o.Edges...))
		s.EdgesAdded += len(o.Edges)
		s.Generation = GraphBuiltMessage
		slog.Info("agent: graph merged", "edges_added", len(o.Edges), "edges_total", s.Graph.Len())
		return StateDone, nil
	}
	return StateDone, fmt.Errorf("%w: extraction returned %T", ErrContractViolation, out)
}

func (a *Agent) investigateGraph(ctx context.Context, s *Session) (State, error) {
	out, err := a.svc.Investigator.Investigate(ctx, InvestigateInput{
		Query:        s.Query,
		KnownNodes:   s.Graph.NodeNames(),
		Explorations: formatExplorations(s.Explorations),
	})
	if err != nil {
		return StateDone, fmt.Errorf("investigation: %w", err)
	}

	switch o := out.(type) {
	case *ToolRequest:
		return s.requestTools(o, StateInvestigateGraph)
	case *AnswerText:
		if o == nil {
			break
		}
		s.Generation = o.Text
		return StateDone, nil
	}
	return StateDone, fmt.Errorf("%w: investigation returned %T", ErrContractViolation, out)
}

func (a *Agent) directAnswer(ctx context.Context, s *Session) (State, error) {
	text, err := a.svc.Responder.Answer(ctx, s.Query)
	if err != nil {
		return StateDone, fmt.Errorf("direct answer: %w", err)
	}
	s.Generation = text
	return StateDone, nil
}

func (a *Agent) exploreTool(s *Session) (State, error) {
	for _, call := range s.PendingCalls {
		results := Explore(s.Graph, call.Node)
		s.Explorations = append(s.Explorations, Exploration{Node: call.Node, Results: results})
		slog.Info("agent: explored node", "node", call.Node, "results", len(results))
	}
	s.PendingCalls = nil
	return s.Origin, nil
}

// requestTools validates a tool request and schedules it.
func (s *Session) requestTools(req *ToolRequest, origin State) (State, error) {
	if req == nil || len(req.Calls) == 0 {
		return StateDone, fmt.Errorf("%w: empty tool request", ErrContractViolation)
	}
	for _, c := range req.Calls {
		if c.Tool != ExploreToolName {
			return StateDone, fmt.Errorf("%w: unknown tool %q", ErrContractViolation, c.Tool)
		}
	}
	s.PendingCalls = append([]ToolCall(nil), req.Calls...)
	s.Origin = origin
	return StateExploreTool, nil
}
