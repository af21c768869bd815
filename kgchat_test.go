//go:build cgo

package kgchat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/kgchat/agent"
	"github.com/brunobiangulo/kgchat/kg"
	"github.com/brunobiangulo/kgchat/llm/llmtest"
)

const aliceEdges = `{"edges":[{"node_1":{"label":"Person","name":"Alice"},"node_2":{"label":"Place","name":"Rome"},"relationship":"lives in"}]}`

func newTestEngine(t *testing.T, chat *llmtest.Provider, embedDim int) Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "kgchat.db")
	cfg.EmbeddingDim = 4
	opts := []Option{WithChatProvider(chat)}
	if embedDim > 0 {
		opts = append(opts, WithEmbeddingProvider(&llmtest.Provider{Dim: embedDim}))
	}
	e, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func newConv(t *testing.T, e Engine) *Conversation {
	t.Helper()
	c, err := e.NewConversation(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	return c
}

func TestNewConversationDefaults(t *testing.T) {
	e := newTestEngine(t, llmtest.New(), 0)
	ctx := context.Background()
	c := newConv(t, e)

	if !c.Ontology.HasLabel("Person") || !c.Ontology.HasLabel("Place") {
		t.Errorf("ontology = %v, want default labels", c.Ontology.Serialize())
	}
	if !strings.HasPrefix(c.Name, "Conversation ") {
		t.Errorf("Name = %q", c.Name)
	}
	msgs, err := e.Messages(ctx, c.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != Greeting || msgs[0].Role != "assistant" {
		t.Errorf("messages = %+v, want the greeting", msgs)
	}

	custom := kg.NewOntology(kg.BareLabels("Persona"), nil)
	c2, err := e.NewConversation(ctx, "legal", &custom)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if c2.Name != "legal" || c2.Ontology.HasLabel("Person") {
		t.Errorf("custom conversation = %+v", c2)
	}
	list, _ := e.ListConversations(ctx)
	if len(list) != 2 {
		t.Errorf("ListConversations = %d, want 2", len(list))
	}
}

func TestChatBuildsGraph(t *testing.T) {
	chat := llmtest.New(llmtest.Text(`{"route":"build_graph"}`), llmtest.Text(aliceEdges))
	e := newTestEngine(t, chat, 0)
	ctx := context.Background()
	c := newConv(t, e)

	reply, err := e.Chat(ctx, c.ID, "Alice lives in Rome")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Route != "build_graph" || reply.EdgesAdded != 1 || reply.Generation != agent.GraphBuiltMessage {
		t.Errorf("reply = %+v", reply)
	}
	if reply.Steps != 2 || reply.Chunks != 1 {
		t.Errorf("steps = %d chunks = %d, want 2 and 1", reply.Steps, reply.Chunks)
	}

	g, err := e.Graph(ctx, c.ID)
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if g.Len() != 1 || g.Edges()[0].Node1.Name != "Alice" {
		t.Errorf("graph = %+v", g.Edges())
	}

	msgs, _ := e.Messages(ctx, c.ID)
	if len(msgs) != 3 || msgs[1].Content != "Alice lives in Rome" || msgs[2].Content != agent.GraphBuiltMessage {
		t.Errorf("messages = %+v", msgs)
	}

	logs, _ := e.RunLogs(ctx, c.ID, 10)
	if len(logs) != 1 || logs[0].EdgesAdded != 1 || logs[0].Route != "build_graph" {
		t.Errorf("run logs = %+v", logs)
	}
}

func TestChatFailureLeavesGraph(t *testing.T) {
	chat := llmtest.New(llmtest.Text(`{"route":"build_graph"}`), llmtest.Text(aliceEdges))
	e := newTestEngine(t, chat, 0)
	ctx := context.Background()
	c := newConv(t, e)
	if _, err := e.Chat(ctx, c.ID, "Alice lives in Rome"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	chat.Push(llmtest.Text(`{"route":"build_graph"}`), llmtest.Text("no json here"))
	_, err := e.Chat(ctx, c.ID, "Bob lives in Paris")
	if !errors.Is(err, agent.ErrContractViolation) {
		t.Fatalf("err = %v, want ErrContractViolation", err)
	}

	g, _ := e.Graph(ctx, c.ID)
	if g.Len() != 1 {
		t.Errorf("graph has %d edges after a failed run, want 1", g.Len())
	}
	msgs, _ := e.Messages(ctx, c.ID)
	last := msgs[len(msgs)-1]
	if len(msgs) != 5 || !last.IsError || msgs[3].Content != "Bob lives in Paris" {
		t.Errorf("messages = %+v", msgs)
	}
	logs, _ := e.RunLogs(ctx, c.ID, 1)
	if len(logs) != 1 || logs[0].Error == "" {
		t.Errorf("run logs = %+v", logs)
	}
}

func TestChatStepLimit(t *testing.T) {
	chat := llmtest.New(llmtest.Text(`{"route":"build_graph"}`), llmtest.Explore("Alice"))
	e := newTestEngine(t, chat, 0)
	c := newConv(t, e)

	_, err := e.Chat(context.Background(), c.ID, "Alice lives in Rome")
	if !errors.Is(err, agent.ErrStepLimit) {
		t.Fatalf("err = %v, want ErrStepLimit", err)
	}
	g, _ := e.Graph(context.Background(), c.ID)
	if !g.IsEmpty() {
		t.Errorf("graph = %+v, want empty", g.Edges())
	}
}

func TestChatInvestigatesGraph(t *testing.T) {
	chat := llmtest.New(
		llmtest.Text(`{"route":"investigate_graph"}`),
		llmtest.Explore("Alice"),
		llmtest.Text("Alice lives in Rome."),
	)
	e := newTestEngine(t, chat, 0)
	ctx := context.Background()
	c := newConv(t, e)
	if _, err := e.ImportGraph(ctx, c.ID, []byte(aliceEdges)); err != nil {
		t.Fatalf("ImportGraph: %v", err)
	}

	reply, err := e.Chat(ctx, c.ID, "Where does Alice live?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Generation != "Alice lives in Rome." || reply.EdgesAdded != 0 {
		t.Errorf("reply = %+v", reply)
	}
	want := []string{"route", "investigate_graph", "explore_tool", "investigate_graph"}
	if strings.Join(reply.Trace, ",") != strings.Join(want, ",") {
		t.Errorf("trace = %v, want %v", reply.Trace, want)
	}

	reqs := chat.Requests()
	final := reqs[len(reqs)-1].Messages[0].Content
	if !strings.Contains(final, "Alice (Person) - Rome (Place) -> lives in") {
		t.Errorf("exploration missing from final prompt:\n%s", final)
	}
}

func TestChatDirectAnswer(t *testing.T) {
	chat := llmtest.New(llmtest.Text(`{"route":"direct_answer"}`), llmtest.Text("I build knowledge graphs."))
	e := newTestEngine(t, chat, 0)
	c := newConv(t, e)
	reply, err := e.Chat(context.Background(), c.ID, "What can you do?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Route != "direct_answer" || reply.Generation != "I build knowledge graphs." {
		t.Errorf("reply = %+v", reply)
	}
}

func TestChatErrors(t *testing.T) {
	e := newTestEngine(t, llmtest.New(llmtest.Text(`{"route":"direct_answer"}`)), 0)
	ctx := context.Background()
	if _, err := e.Chat(ctx, "missing", "hi"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("missing conversation err = %v", err)
	}
	c := newConv(t, e)
	if _, err := e.Chat(ctx, c.ID, "  "); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("empty query err = %v", err)
	}
}

func TestBuildGraphSkipsRouter(t *testing.T) {
	chat := llmtest.New(llmtest.Text(aliceEdges))
	e := newTestEngine(t, chat, 0)
	ctx := context.Background()
	c := newConv(t, e)

	reply, err := e.BuildGraph(ctx, c.ID, []string{"Alice lives in Rome", "", "Alice still lives in Rome"})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if reply.EdgesAdded != 2 || reply.Chunks != 2 {
		t.Errorf("reply = %+v", reply)
	}
	if n := len(chat.Requests()); n != 2 {
		t.Errorf("chat requests = %d, want 2 (no routing)", n)
	}
	msgs, _ := e.Messages(ctx, c.ID)
	if len(msgs) != 1 {
		t.Errorf("BuildGraph should not touch history, got %d messages", len(msgs))
	}
}

func TestIngest(t *testing.T) {
	chat := llmtest.New(llmtest.Text(`{"route":"build_graph"}`), llmtest.Text(aliceEdges))
	e := newTestEngine(t, chat, 0)
	ctx := context.Background()
	c := newConv(t, e)

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("Alice lives in Rome."), 0644); err != nil {
		t.Fatal(err)
	}
	reply, err := e.Ingest(ctx, c.ID, path)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if reply.EdgesAdded != 1 {
		t.Errorf("reply = %+v", reply)
	}

	bad := filepath.Join(dir, "notes.docx")
	os.WriteFile(bad, []byte("x"), 0644)
	if _, err := e.Ingest(ctx, c.ID, bad); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("docx err = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := e.Ingest(ctx, c.ID, filepath.Join(dir, "missing.txt")); !errors.Is(err, ErrParsingFailed) {
		t.Errorf("missing file err = %v, want ErrParsingFailed", err)
	}
}

func TestOntologyEdits(t *testing.T) {
	e := newTestEngine(t, llmtest.New(), 0)
	ctx := context.Background()
	c := newConv(t, e)

	o, err := e.AddLabel(ctx, c.ID, kg.Label{Name: "Organization", Description: "Companies"})
	if err != nil || !o.HasLabel("Organization") {
		t.Fatalf("AddLabel = %v, %v", o.Serialize(), err)
	}
	if _, err := e.RemoveLabel(ctx, c.ID, "Person"); err != nil {
		t.Fatalf("RemoveLabel: %v", err)
	}
	if _, err := e.AddRelationship(ctx, c.ID, "works for"); err != nil {
		t.Fatalf("AddRelationship: %v", err)
	}
	o, err = e.RemoveRelationship(ctx, c.ID, "Any relationship between two entities")
	if err != nil {
		t.Fatalf("RemoveRelationship: %v", err)
	}

	stored, _ := e.Ontology(ctx, c.ID)
	if stored.HasLabel("Person") || !stored.HasLabel("Organization") {
		t.Errorf("labels = %v", stored.Labels())
	}
	if rels := stored.Relationships(); len(rels) != 1 || rels[0] != "works for" || len(o.Relationships()) != 1 {
		t.Errorf("relationships = %v", rels)
	}

	if _, err := e.AddLabel(ctx, c.ID, kg.Label{Name: " "}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("blank label err = %v", err)
	}
	if _, err := e.AddLabel(ctx, "missing", kg.Label{Name: "X"}); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("missing conversation err = %v", err)
	}
}

func TestImportExportRender(t *testing.T) {
	e := newTestEngine(t, llmtest.New(), 0)
	ctx := context.Background()
	c := newConv(t, e)

	if _, err := e.ImportGraph(ctx, c.ID, []byte(`{"edges":[{"node_1":{"name":""}}]}`)); !errors.Is(err, ErrInvalidGraph) {
		t.Errorf("invalid import err = %v", err)
	}
	if _, err := e.ImportGraph(ctx, c.ID, []byte(aliceEdges)); err != nil {
		t.Fatalf("ImportGraph: %v", err)
	}

	data, err := e.ExportGraph(ctx, c.ID)
	if err != nil {
		t.Fatalf("ExportGraph: %v", err)
	}
	g, err := kg.Decode(data)
	if err != nil || g.Len() != 1 {
		t.Fatalf("decoded export = %v, %v", g, err)
	}

	html, err := e.RenderGraph(ctx, c.ID)
	if err != nil || !strings.Contains(html, "Alice") {
		t.Errorf("RenderGraph = %d bytes, %v", len(html), err)
	}

	rels, err := e.ExploreNode(ctx, c.ID, "Rome")
	if err != nil || len(rels) != 1 || !strings.Contains(rels[0], "lives in") {
		t.Errorf("ExploreNode = %v, %v", rels, err)
	}
	rels, _ = e.ExploreNode(ctx, c.ID, "Bob")
	if rels[0] != kg.NotPresentMessage("Bob") {
		t.Errorf("ExploreNode(Bob) = %v", rels)
	}

	if _, err := e.ImportGraph(ctx, "missing", []byte(aliceEdges)); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("import into missing conversation err = %v", err)
	}
}

func TestSearchNodes(t *testing.T) {
	chat := llmtest.New(llmtest.Text(`{"route":"build_graph"}`), llmtest.Text(aliceEdges))
	e := newTestEngine(t, chat, 4)
	ctx := context.Background()
	c := newConv(t, e)
	if _, err := e.Chat(ctx, c.ID, "Alice lives in Rome"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	matches, err := e.SearchNodes(ctx, c.ID, "Alice (Person)", 2)
	if err != nil {
		t.Fatalf("SearchNodes: %v", err)
	}
	if len(matches) != 2 || matches[0].Name != "Alice" {
		t.Errorf("matches = %+v, want Alice first", matches)
	}

	stats, _ := e.Stats(ctx)
	if stats.Embeddings != 2 || stats.Edges != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSearchNodesWithoutEmbeddings(t *testing.T) {
	e := newTestEngine(t, llmtest.New(), 0)
	c := newConv(t, e)
	if _, err := e.SearchNodes(context.Background(), c.ID, "Alice", 3); !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("err = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestDeleteConversation(t *testing.T) {
	e := newTestEngine(t, llmtest.New(), 0)
	ctx := context.Background()
	c := newConv(t, e)
	if err := e.DeleteConversation(ctx, c.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if _, err := e.Conversation(ctx, c.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("err = %v", err)
	}
	if err := e.DeleteConversation(ctx, c.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}
