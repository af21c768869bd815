// Package kgchat is a conversational knowledge-graph builder. Each
// conversation owns an ontology, a graph and a message history; queries are
// routed by an agent to graph extraction, graph investigation or a direct
// answer, and the resulting edges are persisted in SQLite.
package kgchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/kgchat/agent"
	"github.com/brunobiangulo/kgchat/extraction"
	"github.com/brunobiangulo/kgchat/kg"
	"github.com/brunobiangulo/kgchat/llm"
	"github.com/brunobiangulo/kgchat/parser"
	"github.com/brunobiangulo/kgchat/reasoning"
	"github.com/brunobiangulo/kgchat/retrieval"
	"github.com/brunobiangulo/kgchat/store"
)

// Greeting is the first assistant message of every conversation.
const Greeting = "Hello, can I help you to create a Knowledge Graph?"

// Engine is the main entry point for knowledge-graph conversations.
type Engine interface {
	// NewConversation creates a conversation. A nil ontology uses the
	// configured default.
	NewConversation(ctx context.Context, name string, ontology *kg.Ontology) (*Conversation, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	Conversation(ctx context.Context, id string) (*Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	// Chat runs a query through the agent and persists the grown graph.
	// A failed run records the error in the history and leaves the
	// stored graph untouched.
	Chat(ctx context.Context, id, query string) (*Reply, error)

	// BuildGraph extracts edges from each text without routing.
	BuildGraph(ctx context.Context, id string, texts []string) (*Reply, error)

	// Ingest parses a document and chats its text.
	Ingest(ctx context.Context, id, path string) (*Reply, error)

	Messages(ctx context.Context, id string) ([]Message, error)

	// Ontology edits return the updated ontology.
	Ontology(ctx context.Context, id string) (kg.Ontology, error)
	AddLabel(ctx context.Context, id string, label kg.Label) (kg.Ontology, error)
	RemoveLabel(ctx context.Context, id, name string) (kg.Ontology, error)
	AddRelationship(ctx context.Context, id, rel string) (kg.Ontology, error)
	RemoveRelationship(ctx context.Context, id, rel string) (kg.Ontology, error)

	Graph(ctx context.Context, id string) (*kg.Graph, error)
	ExportGraph(ctx context.Context, id string) ([]byte, error)
	// ImportGraph replaces the conversation graph with a JSON artifact.
	ImportGraph(ctx context.Context, id string, data []byte) (*kg.Graph, error)
	RenderGraph(ctx context.Context, id string) (string, error)
	ExploreNode(ctx context.Context, id, name string) ([]string, error)

	// SearchNodes returns the k nodes closest to query, fusing embedding
	// similarity with name matches. It needs an embedding provider.
	SearchNodes(ctx context.Context, id, query string, k int) ([]NodeMatch, error)

	RunLogs(ctx context.Context, id string, limit int) ([]store.RunLog, error)
	Stats(ctx context.Context) (*store.DBStats, error)

	// Close cleanly shuts down the engine.
	Close() error
}

// Conversation is a chat session with its own ontology and graph.
type Conversation struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Ontology  kg.Ontology `json:"ontology"`
	EdgeCount int         `json:"edge_count"`
	CreatedAt string      `json:"created_at"`
	UpdatedAt string      `json:"updated_at"`
}

// Message is an entry of a conversation history.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
	CreatedAt string `json:"created_at"`
}

// NodeMatch is a node returned by SearchNodes.
type NodeMatch struct {
	Label   string   `json:"label"`
	Name    string   `json:"name"`
	Score   float64  `json:"score"`
	Methods []string `json:"methods,omitempty"`
}

// Reply is the result of a chat run.
type Reply struct {
	Generation string   `json:"generation"`
	Route      string   `json:"route,omitempty"`
	Chunks     int      `json:"chunks"`
	Steps      int      `json:"steps"`
	EdgesAdded int      `json:"edges_added"`
	Trace      []string `json:"trace,omitempty"`
	ElapsedMs  int64    `json:"elapsed_ms"`
}

// Option configures engine construction.
type Option func(*engineOptions)

type engineOptions struct {
	chat  llm.Provider
	embed llm.Provider
}

// WithChatProvider uses p instead of building one from Config.Chat.
func WithChatProvider(p llm.Provider) Option {
	return func(o *engineOptions) { o.chat = p }
}

// WithEmbeddingProvider uses p instead of building one from Config.Embedding.
func WithEmbeddingProvider(p llm.Provider) Option {
	return func(o *engineOptions) { o.embed = p }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg      Config
	store    *store.Store
	chatLLM  llm.Provider
	embedLLM llm.Provider // nil disables node search
	parsers  *parser.Registry
	agent    *agent.Agent

	locks sync.Map // conversation ID -> *sync.Mutex
}

// New creates a new engine with the given configuration.
func New(cfg Config, opts ...Option) (Engine, error) {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	// Apply defaults for zero values
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = DefaultConfig().EmbeddingDim
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = agent.DefaultMaxSteps
	}
	if err := cfg.validate(o.chat != nil); err != nil {
		return nil, err
	}

	chatLLM := o.chat
	if chatLLM == nil {
		p, err := llm.NewProvider(cfg.Chat.llm())
		if err != nil {
			return nil, fmt.Errorf("creating chat provider: %w", err)
		}
		chatLLM = p
	}

	embedLLM := o.embed
	if embedLLM == nil && cfg.Embedding.Provider != "" {
		p, err := llm.NewProvider(cfg.Embedding.llm())
		if err != nil {
			return nil, fmt.Errorf("creating embedding provider: %w", err)
		}
		embedLLM = p
	}

	s, err := store.New(cfg.resolveDBPath(), cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	svcCfg := reasoning.Config{Model: cfg.Chat.Model, Temperature: cfg.Temperature, NativeTools: cfg.NativeTools}
	a := agent.New(agent.Services{
		Router: reasoning.NewRouter(chatLLM, svcCfg),
		Extractor: extraction.New(chatLLM, extraction.Config{
			Model:       cfg.Chat.Model,
			Temperature: cfg.Temperature,
			NativeTools: cfg.NativeTools,
		}),
		Investigator: reasoning.NewInvestigator(chatLLM, svcCfg),
		Responder:    reasoning.NewResponder(chatLLM, svcCfg),
	}, agent.Config{
		MaxSteps:       cfg.MaxSteps,
		MaxChunkTokens: cfg.MaxChunkTokens,
	})

	return &engine{
		cfg:      cfg,
		store:    s,
		chatLLM:  chatLLM,
		embedLLM: embedLLM,
		parsers:  parser.NewRegistry(),
		agent:    a,
	}, nil
}

// lock serializes work on one conversation.
func (e *engine) lock(id string) func() {
	m, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrConversationNotFound, err)
	}
	return err
}

func toConversation(c *store.Conversation) *Conversation {
	return &Conversation{
		ID:        c.ID,
		Name:      c.Name,
		Ontology:  c.Ontology,
		EdgeCount: c.EdgeCount,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// --- Conversations ---

func (e *engine) NewConversation(ctx context.Context, name string, ontology *kg.Ontology) (*Conversation, error) {
	ont := e.cfg.Ontology.Ontology()
	if ontology != nil {
		ont = *ontology
	}
	id := uuid.NewString()
	if strings.TrimSpace(name) == "" {
		name = "Conversation " + id[:8]
	}
	if err := e.store.CreateConversation(ctx, id, name, ont); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	if _, err := e.store.AddMessage(ctx, store.Message{
		ConversationID: id,
		Role:           llm.RoleAssistant,
		Content:        Greeting,
	}); err != nil {
		return nil, fmt.Errorf("storing greeting: %w", err)
	}
	slog.Info("conversation created", "id", id, "name", name)
	return e.Conversation(ctx, id)
}

func (e *engine) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := e.store.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Conversation, len(rows))
	for i := range rows {
		out[i] = *toConversation(&rows[i])
	}
	return out, nil
}

func (e *engine) Conversation(ctx context.Context, id string) (*Conversation, error) {
	c, err := e.store.GetConversation(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return toConversation(c), nil
}

func (e *engine) DeleteConversation(ctx context.Context, id string) error {
	unlock := e.lock(id)
	defer unlock()
	if err := e.store.DeleteConversation(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	e.locks.Delete(id)
	slog.Info("conversation deleted", "id", id)
	return nil
}

func (e *engine) Messages(ctx context.Context, id string) ([]Message, error) {
	if _, err := e.Conversation(ctx, id); err != nil {
		return nil, err
	}
	rows, err := e.store.Messages(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]Message, len(rows))
	for i, m := range rows {
		out[i] = Message{Role: m.Role, Content: m.Content, IsError: m.IsError, CreatedAt: m.CreatedAt}
	}
	return out, nil
}

// --- Chat ---

// runRequest describes one engine-level run over a conversation.
type runRequest struct {
	texts       []string // each text is one agent.Run
	userMessage string   // stored in history when non-empty
	opts        []agent.RunOption
}

func (e *engine) Chat(ctx context.Context, id, query string) (*Reply, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	return e.run(ctx, id, runRequest{texts: []string{query}, userMessage: query})
}

func (e *engine) BuildGraph(ctx context.Context, id string, texts []string) (*Reply, error) {
	var nonEmpty []string
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	if len(nonEmpty) == 0 {
		return nil, ErrEmptyQuery
	}
	return e.run(ctx, id, runRequest{
		texts: nonEmpty,
		opts:  []agent.RunOption{agent.WithForcedRoute(agent.RouteBuildGraph)},
	})
}

func (e *engine) Ingest(ctx context.Context, id, path string) (*Reply, error) {
	res, err := e.parsers.ParseFile(ctx, path)
	if err != nil {
		if errors.Is(err, parser.ErrNoParser) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
		}
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	text := res.Text()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s has no text", ErrParsingFailed, filepath.Base(path))
	}
	slog.Info("ingest: document parsed",
		"file", filepath.Base(path), "method", res.Method, "sections", len(res.Sections), "chars", len(text))
	return e.run(ctx, id, runRequest{
		texts:       []string{text},
		userMessage: fmt.Sprintf("Ingested document %s", filepath.Base(path)),
	})
}

// run executes the agent over a clone of the stored graph and persists the
// new edges only when every text succeeded.
func (e *engine) run(ctx context.Context, id string, req runRequest) (*Reply, error) {
	unlock := e.lock(id)
	defer unlock()

	conv, err := e.store.GetConversation(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	stored, err := e.store.Edges(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading graph: %w", err)
	}
	work := kg.NewGraph(stored...)

	if req.userMessage != "" {
		if _, err := e.store.AddMessage(ctx, store.Message{ConversationID: id, Role: llm.RoleUser, Content: req.userMessage}); err != nil {
			return nil, fmt.Errorf("storing message: %w", err)
		}
	}

	start := time.Now()
	reply := &Reply{}
	var textChunks int
	opts := append([]agent.RunOption{agent.OnStep(func(ev agent.StepEvent) {
		StepsTotal.WithLabelValues(ev.State.String()).Inc()
		textChunks = max(textChunks, ev.Chunk+1)
	})}, req.opts...)

	var runErr error
	for _, text := range req.texts {
		var s *agent.Session
		textChunks = 0
		s, runErr = e.agent.Run(ctx, agent.RunInput{Query: text, Ontology: conv.Ontology, Graph: work}, opts...)
		reply.Chunks += textChunks
		if s != nil {
			if s.Route != 0 {
				reply.Route = s.Route.String()
			}
			reply.Steps = s.Steps
			reply.Generation = s.Generation
			reply.Trace = reply.Trace[:0]
			for _, st := range s.Trace {
				reply.Trace = append(reply.Trace, st.String())
			}
		}
		if runErr != nil {
			break
		}
	}
	elapsed := time.Since(start)
	reply.ElapsedMs = elapsed.Milliseconds()
	RunDuration.Observe(elapsed.Seconds())
	RunSteps.Observe(float64(reply.Steps))

	logEntry := store.RunLog{
		ConversationID: id,
		Query:          strings.Join(req.texts, "\n\n"),
		Route:          reply.Route,
		Chunks:         reply.Chunks,
		Steps:          reply.Steps,
		ElapsedMs:      reply.ElapsedMs,
	}

	if runErr != nil {
		RunsTotal.WithLabelValues(routeLabel(reply.Route), "error").Inc()
		logEntry.Error = runErr.Error()
		e.logRun(ctx, logEntry)
		if req.userMessage != "" {
			if _, err := e.store.AddMessage(ctx, store.Message{
				ConversationID: id,
				Role:           llm.RoleAssistant,
				Content:        runErr.Error(),
				IsError:        true,
			}); err != nil {
				slog.Warn("storing error message failed", "conversation", id, "error", err)
			}
		}
		slog.Warn("chat run failed", "conversation", id, "route", reply.Route, "steps", reply.Steps, "error", runErr)
		return nil, fmt.Errorf("running agent: %w", runErr)
	}

	added := work.Edges()[len(stored):]
	reply.EdgesAdded = len(added)
	if len(added) > 0 {
		created, err := e.store.AppendEdges(ctx, id, added)
		if err != nil {
			return nil, fmt.Errorf("storing edges: %w", err)
		}
		e.embedNodes(ctx, created)
		EdgesAdded.Add(float64(len(added)))
	}
	RunsTotal.WithLabelValues(routeLabel(reply.Route), "ok").Inc()

	logEntry.EdgesAdded = reply.EdgesAdded
	logEntry.Generation = reply.Generation
	e.logRun(ctx, logEntry)

	if req.userMessage != "" {
		if _, err := e.store.AddMessage(ctx, store.Message{
			ConversationID: id,
			Role:           llm.RoleAssistant,
			Content:        reply.Generation,
		}); err != nil {
			return nil, fmt.Errorf("storing reply: %w", err)
		}
	}

	slog.Info("chat run complete",
		"conversation", id,
		"route", reply.Route,
		"chunks", reply.Chunks,
		"steps", reply.Steps,
		"edges_added", reply.EdgesAdded,
		"elapsed", elapsed.Round(time.Millisecond))
	return reply, nil
}

func routeLabel(r string) string {
	if r == "" {
		return "none"
	}
	return r
}

func (e *engine) logRun(ctx context.Context, r store.RunLog) {
	if err := e.store.LogRun(ctx, r); err != nil {
		slog.Warn("run log failed (non-fatal)", "conversation", r.ConversationID, "error", err)
	}
}

// embedNodes stores name embeddings for new nodes. Failures only degrade
// node search, so they are logged and swallowed.
func (e *engine) embedNodes(ctx context.Context, nodes []store.NodeRef) {
	if e.embedLLM == nil || len(nodes) == 0 {
		return
	}
	const batchSize = 32
	var failed int
	for i := 0; i < len(nodes); i += batchSize {
		batch := nodes[i:min(i+batchSize, len(nodes))]
		texts := make([]string, len(batch))
		for j, n := range batch {
			texts[j] = nodeText(n.Label, n.Name)
		}
		vecs, err := e.embedLLM.Embed(ctx, texts)
		if err != nil || len(vecs) != len(batch) {
			slog.Warn("node embedding batch failed", "batch_start", i, "size", len(batch), "error", err)
			failed += len(batch)
			continue
		}
		for j, v := range vecs {
			if err := e.store.InsertNodeEmbedding(ctx, batch[j].ID, v); err != nil {
				slog.Warn("storing node embedding failed", "node", batch[j].Name, "error", err)
				failed++
			}
		}
	}
	if failed > 0 {
		slog.Warn("some node embeddings failed", "failed", failed, "total", len(nodes))
	}
}

func nodeText(label, name string) string {
	if label == "" {
		return name
	}
	return name + " (" + label + ")"
}

// --- Ontology ---

func (e *engine) Ontology(ctx context.Context, id string) (kg.Ontology, error) {
	c, err := e.Conversation(ctx, id)
	if err != nil {
		return kg.Ontology{}, err
	}
	return c.Ontology, nil
}

func (e *engine) editOntology(ctx context.Context, id string, edit func(kg.Ontology) kg.Ontology) (kg.Ontology, error) {
	unlock := e.lock(id)
	defer unlock()
	c, err := e.store.GetConversation(ctx, id)
	if err != nil {
		return kg.Ontology{}, mapStoreErr(err)
	}
	updated := edit(c.Ontology)
	if err := e.store.UpdateOntology(ctx, id, updated); err != nil {
		return kg.Ontology{}, mapStoreErr(err)
	}
	return updated, nil
}

func (e *engine) AddLabel(ctx context.Context, id string, label kg.Label) (kg.Ontology, error) {
	label.Name = strings.TrimSpace(label.Name)
	if label.Name == "" {
		return kg.Ontology{}, fmt.Errorf("%w: label name is empty", ErrInvalidConfig)
	}
	return e.editOntology(ctx, id, func(o kg.Ontology) kg.Ontology { return o.WithLabel(label) })
}

func (e *engine) RemoveLabel(ctx context.Context, id, name string) (kg.Ontology, error) {
	return e.editOntology(ctx, id, func(o kg.Ontology) kg.Ontology { return o.WithoutLabel(name) })
}

func (e *engine) AddRelationship(ctx context.Context, id, rel string) (kg.Ontology, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return kg.Ontology{}, fmt.Errorf("%w: relationship is empty", ErrInvalidConfig)
	}
	return e.editOntology(ctx, id, func(o kg.Ontology) kg.Ontology { return o.WithRelationship(rel) })
}

func (e *engine) RemoveRelationship(ctx context.Context, id, rel string) (kg.Ontology, error) {
	return e.editOntology(ctx, id, func(o kg.Ontology) kg.Ontology { return o.WithoutRelationship(rel) })
}

// --- Graph ---

func (e *engine) Graph(ctx context.Context, id string) (*kg.Graph, error) {
	if _, err := e.Conversation(ctx, id); err != nil {
		return nil, err
	}
	edges, err := e.store.Edges(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading graph: %w", err)
	}
	return kg.NewGraph(edges...), nil
}

func (e *engine) ExportGraph(ctx context.Context, id string) ([]byte, error) {
	g, err := e.Graph(ctx, id)
	if err != nil {
		return nil, err
	}
	return g.MarshalJSON()
}

func (e *engine) ImportGraph(ctx context.Context, id string, data []byte) (*kg.Graph, error) {
	g, err := kg.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}
	unlock := e.lock(id)
	defer unlock()
	if _, err := e.store.GetConversation(ctx, id); err != nil {
		return nil, mapStoreErr(err)
	}
	nodes, err := e.store.ReplaceEdges(ctx, id, g.Edges())
	if err != nil {
		return nil, mapStoreErr(err)
	}
	e.embedNodes(ctx, nodes)
	slog.Info("graph imported", "conversation", id, "edges", g.Len(), "nodes", len(nodes))
	return g, nil
}

func (e *engine) RenderGraph(ctx context.Context, id string) (string, error) {
	g, err := e.Graph(ctx, id)
	if err != nil {
		return "", err
	}
	return g.RenderHTML()
}

func (e *engine) ExploreNode(ctx context.Context, id, name string) ([]string, error) {
	g, err := e.Graph(ctx, id)
	if err != nil {
		return nil, err
	}
	return agent.Explore(g, name), nil
}

func (e *engine) SearchNodes(ctx context.Context, id, query string, k int) ([]NodeMatch, error) {
	if e.embedLLM == nil {
		return nil, ErrEmbeddingUnavailable
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if _, err := e.Conversation(ctx, id); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 5
	}
	vecs, err := e.embedLLM.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedding query: empty response")
	}
	vec, err := e.store.SearchNodes(ctx, id, vecs[0], 2*k)
	if err != nil {
		return nil, fmt.Errorf("searching nodes: %w", err)
	}
	lex, err := e.store.MatchNodeNames(ctx, id, query, 2*k)
	if err != nil {
		return nil, fmt.Errorf("matching node names: %w", err)
	}
	fused := retrieval.Fuse(k,
		retrieval.Ranking{Method: retrieval.MethodVector, Weight: 1.0, Results: vec},
		retrieval.Ranking{Method: retrieval.MethodLexical, Weight: 1.0, Results: lex},
	)
	out := make([]NodeMatch, len(fused))
	for i, r := range fused {
		out[i] = NodeMatch{Label: r.Label, Name: r.Name, Score: r.Score, Methods: r.Methods}
	}
	return out, nil
}

// --- Diagnostics ---

func (e *engine) RunLogs(ctx context.Context, id string, limit int) ([]store.RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	return e.store.RunLogs(ctx, id, limit)
}

func (e *engine) Stats(ctx context.Context) (*store.DBStats, error) {
	return e.store.DBStats(ctx)
}

// Close shuts down the engine.
func (e *engine) Close() error {
	return e.store.Close()
}
