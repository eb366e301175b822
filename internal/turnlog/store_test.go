package turnlog

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/voxalabs/voxa-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.TurnLogConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.AppendTurn(context.Background(), "turn-1", "session-1"); err != nil {
		t.Fatalf("ephemeral append should be a no-op, got %v", err)
	}
	entries, err := s.ListTurnEntries(context.Background(), "turn-1", 10)
	if err != nil || entries != nil {
		t.Fatalf("expected no entries from ephemeral store, got %v, %v", entries, err)
	}
}

func TestAppendAndList(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.TurnLogConfig{Path: filepath.Join(tmp, "turns.db"), RetentionMode: "session"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open turn log: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	turnID := "turn-123"
	if err := s.AppendTurn(context.Background(), turnID, "session-1"); err != nil {
		t.Fatalf("append turn: %v", err)
	}
	if err := s.AppendEntry(context.Background(), Entry{TurnID: turnID, Type: EntrySentence, SentenceIndex: 0, Detail: "Hello world."}); err != nil {
		t.Fatalf("append sentence entry: %v", err)
	}
	if err := s.AppendEntry(context.Background(), Entry{TurnID: turnID, Type: EntryClipPlayed, SentenceIndex: 0}); err != nil {
		t.Fatalf("append clip entry: %v", err)
	}
	if err := s.AppendEntry(context.Background(), Entry{TurnID: turnID, Type: EntryTurnDone}); err != nil {
		t.Fatalf("append done entry: %v", err)
	}

	entries, err := s.ListTurnEntries(context.Background(), turnID, 10)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Type != EntrySentence || entries[0].Detail != "Hello world." {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[2].Type != EntryTurnDone {
		t.Fatalf("unexpected last entry: %+v", entries[2])
	}
}

func TestPruneMaxTurns(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.TurnLogConfig{Path: filepath.Join(tmp, "turns.db"), RetentionMode: "persistent", MaxTurns: 1}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open turn log: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for _, id := range []string{"turn-a", "turn-b", "turn-c"} {
		if err := s.AppendTurn(context.Background(), id, "session-1"); err != nil {
			t.Fatalf("append turn %s: %v", id, err)
		}
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	var count int
	row := sqlCount(s)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count turns: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 turn after prune, got %d", count)
	}
}

func sqlCount(s *Store) interface{ Scan(...any) error } {
	return s.db.QueryRow(`SELECT COUNT(*) FROM turns`)
}
