package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/marketd/internal/store"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_log(
			id BIGSERIAL PRIMARY KEY,
			at TIMESTAMPTZ NOT NULL,
			trigger_id TEXT NOT NULL,
			target TEXT NOT NULL,
			action TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_at ON audit_log(at);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_target ON audit_log(target);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Append(ctx context.Context, rec store.Record) error {
	at := rec.Time
	if at.IsZero() {
		at = time.Now()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_log(at, trigger_id, target, action, outcome, detail)
		VALUES($1, $2, $3, $4, $5, $6);`,
		at.UTC(), rec.Trigger, rec.Target, rec.Action, rec.Outcome, rec.Detail)
	return err
}

func (p *DB) Recent(ctx context.Context, limit int) ([]store.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, at, trigger_id, target, action, outcome, detail
		FROM audit_log ORDER BY id DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.Record, 0, limit)
	for rows.Next() {
		var rec store.Record
		if err := rows.Scan(&rec.ID, &rec.Time, &rec.Trigger, &rec.Target, &rec.Action, &rec.Outcome, &rec.Detail); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *DB) Close() error { return p.db.Close() }
