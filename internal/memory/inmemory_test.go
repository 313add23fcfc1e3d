package memory

import (
	"context"
	"testing"
)

func TestInMemoryArchiveAndRecent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	err := s.Archive(ctx, []Record{
		{SessionID: "s1", MessageID: "m1", Role: "user", Content: "hi"},
		{SessionID: "s1", MessageID: "m2", Role: "assistant", Content: "hello"},
		{SessionID: "s2", MessageID: "m1", Role: "user", Content: "again"},
	})
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Recent) = %d, want 2", len(got))
	}
	if got[0].Content != "hello" || got[1].Content != "again" {
		t.Fatalf("Recent() = %+v, want last two in order", got)
	}
	if got[0].ID == "" || got[0].ArchivedAt.IsZero() || got[0].CreatedAt.IsZero() {
		t.Fatalf("record not normalized: %+v", got[0])
	}
}

func TestInMemoryArchiveSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	rec := Record{SessionID: "s1", MessageID: "m1", Role: "user", Content: "hi"}
	_ = s.Archive(ctx, []Record{rec})
	_ = s.Archive(ctx, []Record{rec})

	got, _ := s.Recent(ctx, 0)
	if len(got) != 1 {
		t.Fatalf("len(Recent) = %d, want 1", len(got))
	}
}

func TestNewStoreDefaultsToInMemory(t *testing.T) {
	s, err := NewStore(context.Background(), "  ")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("NewStore() = %T, want *InMemoryStore", s)
	}
}
