//go:build cgo

package kgchat

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/brunobiangulo/kgchat/llm/llmtest"
)

func TestRunMetrics(t *testing.T) {
	chat := llmtest.New(llmtest.Text(`{"route":"build_graph"}`), llmtest.Text(aliceEdges))
	e := newTestEngine(t, chat, 0)
	c := newConv(t, e)

	okBefore := testutil.ToFloat64(RunsTotal.WithLabelValues("build_graph", "ok"))
	edgesBefore := testutil.ToFloat64(EdgesAdded)

	if _, err := e.Chat(context.Background(), c.ID, "Alice lives in Rome"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("build_graph", "ok")) - okBefore; got != 1 {
		t.Errorf("ok runs delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(EdgesAdded) - edgesBefore; got != 1 {
		t.Errorf("edges added delta = %v, want 1", got)
	}
	if testutil.ToFloat64(StepsTotal.WithLabelValues("build_graph")) < 1 {
		t.Error("build_graph steps not counted")
	}
}
