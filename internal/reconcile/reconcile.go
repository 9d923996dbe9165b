package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/marketd/internal/metrics"
	"github.com/loykin/marketd/internal/procmgr"
)

// Outcome is the terminal result of a Converge call.
type Outcome string

const (
	OutcomeConverged Outcome = "converged"
	OutcomeSkipped   Outcome = "skipped_already_correct"
	OutcomeFailed    Outcome = "failed"
)

// Result is the ephemeral record of one reconciliation attempt. It lives
// for a single dispatch cycle; only its terminal outcome reaches the
// audit log.
type Result struct {
	Target  string
	Action  procmgr.Action
	Outcome Outcome
	Before  procmgr.State
	After   procmgr.State
	Retries int // Apply retries consumed beyond the first attempt
	Err     error
}

// Detail renders a one-line summary for the audit trail.
func (r Result) Detail() string {
	if r.Err != nil {
		return fmt.Sprintf("before=%s after=%s retries=%d err=%v", r.Before, r.After, r.Retries, r.Err)
	}
	return fmt.Sprintf("before=%s after=%s retries=%d", r.Before, r.After, r.Retries)
}

// Config bounds the convergence loop.
type Config struct {
	MaxAttempts int           // Apply attempts per Converge (default 3)
	Backoff     time.Duration // fixed sleep between attempts (default 2s)
}

// Reconciler drives a managed process from its observed state to the
// state a desired action implies, verifying the transition.
type Reconciler struct {
	client procmgr.Client
	cfg    Config
	logger *slog.Logger
}

func New(client procmgr.Client, cfg Config, logger *slog.Logger) *Reconciler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{client: client, cfg: cfg, logger: logger}
}

// Converge applies the action idempotently. Start on a running process
// and Stop on a stopped one return OutcomeSkipped without calling Apply.
// Restart always applies, but still verifies post-state Running. A ctx
// deadline ends the loop immediately with OutcomeFailed; retrying is the
// next cycle's or the recovery run's job.
func (r *Reconciler) Converge(ctx context.Context, name string, action procmgr.Action) Result {
	res := Result{Target: name, Action: action, Before: procmgr.StateUnknown, After: procmgr.StateUnknown}
	target := action.Target()

	before, err := r.client.Status(ctx, name)
	res.Before = before
	if err == nil && action != procmgr.ActionRestart && before == target {
		res.Outcome = OutcomeSkipped
		res.After = before
		r.finish(res)
		return res
	}

	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		if attempt > 0 {
			res.Retries++
			if !sleepCtx(ctx, r.cfg.Backoff) {
				lastErr = ctx.Err()
				break
			}
		}
		if err := r.client.Apply(ctx, name, action); err != nil {
			lastErr = err
			r.logger.Warn("apply failed", "name", name, "action", action, "attempt", attempt+1, "error", err)
			continue
		}
		after, err := r.client.Status(ctx, name)
		res.After = after
		if err != nil {
			lastErr = err
			continue
		}
		if after == target {
			res.Outcome = OutcomeConverged
			r.finish(res)
			return res
		}
		lastErr = fmt.Errorf("observed %s, want %s", after, target)
	}

	res.Outcome = OutcomeFailed
	res.Err = lastErr
	r.finish(res)
	return res
}

func (r *Reconciler) finish(res Result) {
	metrics.IncConverge(res.Target, string(res.Outcome))
	metrics.AddConvergeRetries(res.Target, res.Retries)
	metrics.SetObservedRunning(res.Target, res.After == procmgr.StateRunning)
	if res.Outcome == OutcomeFailed {
		r.logger.Error("converge failed", "name", res.Target, "action", res.Action, "detail", res.Detail())
	} else {
		r.logger.Debug("converge done", "name", res.Target, "action", res.Action, "outcome", res.Outcome)
	}
}

// sleepCtx sleeps d or returns false when ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
