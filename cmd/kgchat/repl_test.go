//go:build cgo

package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/kgchat"
	"github.com/brunobiangulo/kgchat/llm/llmtest"
)

func TestREPL(t *testing.T) {
	chat := llmtest.New(
		llmtest.Text(`{"route":"direct_answer"}`),
		llmtest.Text("Hello there."),
	)
	cfg := kgchat.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "kgchat.db")
	e, err := kgchat.New(cfg, kgchat.WithChatProvider(chat))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	ctx := context.Background()
	conv, err := e.NewConversation(ctx, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	in := strings.NewReader("/graph\n\nhi\n/bogus\n/quit\nnever sent\n")
	if err := repl(ctx, e, conv.ID, in, false); err != nil {
		t.Fatalf("repl: %v", err)
	}

	msgs, err := e.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	// greeting, query, reply
	if len(msgs) != 3 {
		t.Fatalf("messages = %+v, want 3", msgs)
	}
	if msgs[1].Content != "hi" || msgs[2].Content != "Hello there." {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestREPLContinuesAfterError(t *testing.T) {
	chat := llmtest.New(llmtest.Text(`{"route":"nowhere"}`))
	cfg := kgchat.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "kgchat.db")
	e, err := kgchat.New(cfg, kgchat.WithChatProvider(chat))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	ctx := context.Background()
	conv, _ := e.NewConversation(ctx, "", nil)
	if err := repl(ctx, e, conv.ID, strings.NewReader("first\n"), false); err != nil {
		t.Fatalf("repl: %v", err)
	}
	msgs, _ := e.Messages(ctx, conv.ID)
	if len(msgs) != 3 || !msgs[2].IsError {
		t.Errorf("messages = %+v, want an error reply", msgs)
	}
}
