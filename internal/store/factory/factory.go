// Package factory selects the audit store backing the supervisor from a
// single DSN string in the [audit] config section.
package factory

import (
	"errors"
	"strings"

	"github.com/loykin/marketd/internal/store"
	pg "github.com/loykin/marketd/internal/store/postgres"
	sq "github.com/loykin/marketd/internal/store/sqlite"
)

// NewFromDSN builds the audit store a DSN names:
//
//	postgres://user:pw@host/db   PostgreSQL
//	sqlite:///var/lib/marketd.db SQLite at the given path
//	/var/lib/marketd.db          bare path, treated as SQLite
//
// SQLite is the zero-dependency default for a single-host supervisor;
// Postgres fits deployments where several hosts share one audit trail.
// The caller owns EnsureSchema and Close.
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, errors.New("audit store: empty DSN")
	}
	switch ld := strings.ToLower(d); {
	case strings.HasPrefix(ld, "postgres://"), strings.HasPrefix(ld, "postgresql://"):
		return pg.New(d)
	case strings.HasPrefix(ld, "sqlite://"):
		return sq.New(strings.TrimPrefix(d, "sqlite://"))
	default:
		return sq.New(d)
	}
}
