// Package marketd supervises trading-session processes: it evaluates a
// market calendar, fires scheduled start/stop/restart triggers through a
// process-manager backend, and reconciles observed process state with
// the state the calendar implies.
package marketd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/marketd/internal/audit"
	chsink "github.com/loykin/marketd/internal/audit/clickhouse"
	"github.com/loykin/marketd/internal/calendar"
	"github.com/loykin/marketd/internal/config"
	"github.com/loykin/marketd/internal/logger"
	"github.com/loykin/marketd/internal/metrics"
	"github.com/loykin/marketd/internal/procmgr"
	"github.com/loykin/marketd/internal/reconcile"
	"github.com/loykin/marketd/internal/schedule"
	"github.com/loykin/marketd/internal/server"
	"github.com/loykin/marketd/internal/store"
	storefactory "github.com/loykin/marketd/internal/store/factory"
)

type Phase = calendar.Phase

type State = procmgr.State

type Action = procmgr.Action

type Config = config.Config

type Trigger = schedule.Trigger

type ProcessPolicy = schedule.ProcessPolicy

type AuditEntry = audit.Entry

// LoadConfig reads and validates a TOML configuration file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Supervisor owns the wired runtime: process-manager client, reconciler,
// audit recorder, and the dispatcher loop.
type Supervisor struct {
	cfg     *config.Config
	client  procmgr.Client
	rec     *reconcile.Reconciler
	auditor *audit.Recorder
	disp    *schedule.Dispatcher
	st      store.Store
	chs     *chsink.Sink
	logger  *slog.Logger
}

// NewSupervisor wires every component the configuration enables. The
// returned Supervisor owns the audit store and sink connections; call
// Close when done.
func NewSupervisor(cfg *config.Config, log *slog.Logger) (*Supervisor, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := cfg.File.Manager.NewClient(log)
	if err != nil {
		return nil, err
	}
	rec := reconcile.New(client, reconcile.Config{
		MaxAttempts: cfg.File.Manager.MaxAttempts,
		Backoff:     cfg.File.Manager.Backoff,
	}, log)

	s := &Supervisor{cfg: cfg, client: client, rec: rec, logger: log}
	s.auditor = audit.NewRecorder(log)
	if err := s.wireAuditSinks(); err != nil {
		s.Close()
		return nil, err
	}

	disp, err := schedule.NewDispatcher(cfg.Calendar, cfg.Triggers, cfg.Policies, rec, s.auditor, log, schedule.Options{
		Granularity:  cfg.File.Manager.Granularity,
		CycleTimeout: cfg.File.Manager.CycleTimeout,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.disp = disp
	return s, nil
}

func (s *Supervisor) wireAuditSinks() error {
	ac := s.cfg.File.Audit
	if ac.File != "" {
		w := logger.FileConfig{
			Path:       ac.File,
			MaxSizeMB:  ac.MaxSizeMB,
			MaxBackups: ac.MaxBackups,
			MaxAgeDays: ac.MaxAgeDays,
			Compress:   ac.Compress,
		}.Writer()
		s.auditor.AddSink(audit.NewFileSink(w))
	}
	if ac.Store != "" {
		st, err := storefactory.NewFromDSN(ac.Store)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		if err := st.EnsureSchema(context.Background()); err != nil {
			_ = st.Close()
			return fmt.Errorf("audit store schema: %w", err)
		}
		s.st = st
		s.auditor.AddSink(audit.NewStoreSink(st))
	}
	if ac.ClickHouse != nil && ac.ClickHouse.Addr != "" {
		sink, err := chsink.New(chsink.Config{
			Addr:     ac.ClickHouse.Addr,
			Database: ac.ClickHouse.Database,
			Username: ac.ClickHouse.Username,
			Password: ac.ClickHouse.Password,
			Table:    ac.ClickHouse.Table,
		})
		if err != nil {
			return fmt.Errorf("clickhouse sink: %w", err)
		}
		if err := sink.EnsureSchema(context.Background()); err != nil {
			_ = sink.Close()
			return fmt.Errorf("clickhouse schema: %w", err)
		}
		s.chs = sink
		s.auditor.AddSink(sink)
	}
	return nil
}

// Validate checks that every configured process is known to the process
// manager. Transport errors are tolerated; an unknown process is fatal.
func (s *Supervisor) Validate(ctx context.Context) error {
	return procmgr.Validate(ctx, s.client, s.cfg.ProcessNames())
}

// Recover converges every process to the state the current calendar
// phase implies. Run at startup before the dispatcher loop, and on
// operator demand.
func (s *Supervisor) Recover(ctx context.Context) {
	s.disp.RunRecovery(ctx, time.Now())
}

// Run blocks in the dispatcher loop until ctx is done.
func (s *Supervisor) Run(ctx context.Context) { s.disp.Run(ctx) }

// Phase reports the calendar phase for now.
func (s *Supervisor) Phase() Phase { return s.disp.Phase(time.Now()) }

// Router builds the operational HTTP router for this supervisor.
func (s *Supervisor) Router() *server.Router {
	return server.NewRouter(s.disp, s.client, s.st, s.cfg.File.Calendar, s.cfg.File.Server.BasePath)
}

// Close releases audit store and sink connections.
func (s *Supervisor) Close() {
	if s.st != nil {
		_ = s.st.Close()
		s.st = nil
	}
	if s.chs != nil {
		_ = s.chs.Close()
		s.chs = nil
	}
}

// NewHTTPServer starts the operational HTTP server for s on addr.
func NewHTTPServer(addr string, s *Supervisor) *http.Server {
	return server.NewServer(addr, s.Router())
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It returns any immediate listen error; otherwise it
// runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
