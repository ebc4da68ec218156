package chatlog

import (
	"context"
	"testing"
)

func TestInMemoryStoreAppendAndAll(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Append(ctx, Message{SessionID: "s1", Text: "question", IsUser: true}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append(ctx, Message{SessionID: "s1", Text: "answer", Source: "Source: One, Page 1, Paragraph 1"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	msgs, err := s.All(ctx, "s1")
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Text != "question" || msgs[1].Text != "answer" {
		t.Fatalf("messages out of order: %+v", msgs)
	}
	if msgs[0].ID == "" || msgs[0].CreatedAt.IsZero() {
		t.Fatalf("Append() did not fill ID/CreatedAt: %+v", msgs[0])
	}
}

func TestInMemoryStoreSessionIsolation(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	_ = s.Append(ctx, Message{SessionID: "s1", Text: "one"})
	_ = s.Append(ctx, Message{SessionID: "s2", Text: "two"})

	msgs, _ := s.All(ctx, "s2")
	if len(msgs) != 1 || msgs[0].Text != "two" {
		t.Fatalf("All(s2) = %+v, want only s2's message", msgs)
	}
}

func TestInMemoryStoreClear(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	_ = s.Append(ctx, Message{SessionID: "s1", Text: "one"})
	_ = s.Append(ctx, Message{SessionID: "s2", Text: "two"})

	if err := s.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	msgs, _ := s.All(ctx, "s1")
	if len(msgs) != 0 {
		t.Fatalf("All(s1) after clear = %+v, want empty", msgs)
	}
	other, _ := s.All(ctx, "s2")
	if len(other) != 1 {
		t.Fatalf("Clear(s1) touched s2: %+v", other)
	}
}
