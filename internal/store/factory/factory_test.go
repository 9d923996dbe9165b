package factory

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNewFromDSNSqlite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	for _, dsn := range []string{path, "sqlite://" + path} {
		st, err := NewFromDSN(dsn)
		if err != nil {
			t.Fatalf("dsn %q: %v", dsn, err)
		}
		if err := st.EnsureSchema(context.Background()); err != nil {
			t.Fatalf("ensure schema: %v", err)
		}
		_ = st.Close()
	}
}

func TestNewFromDSNPostgres(t *testing.T) {
	// pgx defers connecting, so constructing the store succeeds offline.
	st, err := NewFromDSN("postgres://user:pw@localhost:5432/audit")
	if err != nil {
		t.Fatalf("postgres dsn: %v", err)
	}
	_ = st.Close()
}

func TestNewFromDSNEmpty(t *testing.T) {
	if _, err := NewFromDSN("   "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
