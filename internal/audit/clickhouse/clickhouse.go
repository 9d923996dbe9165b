package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/loykin/marketd/internal/audit"
)

// Sink exports audit entries to ClickHouse using the official client.
// Intended for long-horizon analytics; delivery is best-effort and the
// Recorder swallows failures.
type Sink struct {
	conn  driver.Conn
	table string
}

// Config holds ClickHouse connection settings.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

func New(cfg Config) (*Sink, error) {
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	if cfg.Table == "" {
		cfg.Table = "marketd_audit"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return &Sink{conn: conn, table: cfg.Table}, nil
}

// EnsureSchema creates the audit table if missing.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts DateTime64(3, 'UTC'),
		trigger_id String,
		target String,
		action String,
		outcome String,
		detail String
	) ENGINE = MergeTree() ORDER BY ts`, s.table)
	return s.conn.Exec(ctx, query)
}

func (s *Sink) Send(ctx context.Context, e audit.Entry) error {
	query := fmt.Sprintf(`INSERT INTO %s (ts, trigger_id, target, action, outcome, detail) VALUES (?, ?, ?, ?, ?, ?)`, s.table)
	return s.conn.Exec(ctx, query,
		e.Time,
		e.Trigger,
		e.Target,
		e.Action,
		e.Outcome,
		e.Detail,
	)
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
