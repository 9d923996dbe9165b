package store

import (
	"context"
	"time"
)

// Record is one persisted audit entry. Entries are append-only: once
// written they are never mutated; retention belongs to whoever owns the
// database, not to the supervisor.
type Record struct {
	ID      int64
	Time    time.Time // UTC
	Trigger string    // trigger name, or "recovery"
	Target  string
	Action  string
	Outcome string
	Detail  string
}

// Store persists audit records. Implementations must be safe for
// concurrent use.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, rec Record) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
