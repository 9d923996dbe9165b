package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/marketd/internal/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db
}

func TestAppendAndRecent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 24, 9, 15, 0, 0, time.UTC)
	for i, outcome := range []string{"converged", "skipped", "failed"} {
		rec := store.Record{
			Time:    base.Add(time.Duration(i) * time.Minute),
			Trigger: "open-engine",
			Target:  "engine",
			Action:  "start",
			Outcome: outcome,
			Detail:  "attempt",
		}
		if err := db.Append(ctx, rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	got, err := db.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("recent len = %d, want 2", len(got))
	}
	// newest first
	if got[0].Outcome != "failed" || got[1].Outcome != "skipped" {
		t.Fatalf("unexpected order: %s, %s", got[0].Outcome, got[1].Outcome)
	}
	if got[0].Trigger != "open-engine" || got[0].Target != "engine" {
		t.Fatalf("record fields lost: %+v", got[0])
	}
}

func TestRecentDefaultLimit(t *testing.T) {
	db := openTestDB(t)
	if err := db.Append(context.Background(), store.Record{Trigger: "recovery", Target: "api", Action: "start", Outcome: "converged"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := db.Recent(context.Background(), 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("recent with zero limit: %v, len=%d", err, len(got))
	}
}

func TestNewEmptyPath(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
