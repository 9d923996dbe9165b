package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/loykin/marketd/internal/audit"
	"github.com/loykin/marketd/internal/calendar"
	"github.com/loykin/marketd/internal/metrics"
	"github.com/loykin/marketd/internal/reconcile"
)

var allPhases = []string{
	string(calendar.PhasePreOpen),
	string(calendar.PhaseOpen),
	string(calendar.PhaseClosed),
	string(calendar.PhaseNonTradingDay),
}

// Options tunes the dispatcher loop.
type Options struct {
	// Granularity is the wake-up cadence and the width of the trigger
	// matching window. Default 1m; time-of-day triggers assume minute
	// resolution.
	Granularity time.Duration
	// CycleTimeout bounds one whole dispatch cycle so an unresponsive
	// process manager cannot stall the supervisor. Default: Granularity.
	CycleTimeout time.Duration
}

// Dispatcher is the single scheduler loop: it wakes on a fixed cadence,
// gates each matching trigger through the trading calendar, and drives
// actions through the reconciler. Cycles never overlap; a tick that
// arrives while a cycle is still running is queued and served next.
type Dispatcher struct {
	cal      *calendar.Calendar
	triggers []Trigger
	policies []ProcessPolicy
	rec      *reconcile.Reconciler
	auditor  *audit.Recorder
	logger   *slog.Logger
	opts     Options
}

func NewDispatcher(cal *calendar.Calendar, triggers []Trigger, policies []ProcessPolicy,
	rec *reconcile.Reconciler, auditor *audit.Recorder, logger *slog.Logger, opts Options) (*Dispatcher, error) {
	if cal == nil {
		return nil, errors.New("dispatcher requires a calendar")
	}
	if rec == nil {
		return nil, errors.New("dispatcher requires a reconciler")
	}
	if auditor == nil {
		auditor = audit.NewRecorder(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Granularity <= 0 {
		opts.Granularity = time.Minute
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = opts.Granularity
	}
	return &Dispatcher{
		cal:      cal,
		triggers: triggers,
		policies: policies,
		rec:      rec,
		auditor:  auditor,
		logger:   logger,
		opts:     opts,
	}, nil
}

// Run blocks until ctx is done. A cycle that is in flight when ctx ends
// is allowed to complete; its process-manager calls are bounded by the
// cycle deadline, not by ctx, so shutdown never leaves a target process
// mid-transition.
func (d *Dispatcher) Run(ctx context.Context) {
	ticks := make(chan time.Time, 1)
	go func() {
		t := time.NewTicker(d.opts.Granularity)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				close(ticks)
				return
			case tm := <-t.C:
				select {
				case ticks <- tm:
				default:
					// a tick is already queued behind the running cycle
				}
			}
		}
	}()
	for tm := range ticks {
		d.RunCycle(tm)
	}
}

// RunCycle evaluates every trigger whose firing instant falls in the
// wake-up window containing now. Triggers are processed sequentially in
// declared order; one failed convergence never prevents the rest.
func (d *Dispatcher) RunCycle(now time.Time) {
	local := now.In(d.cal.Location())
	windowStart := local.Truncate(d.opts.Granularity)
	phase := d.cal.Evaluate(local)
	metrics.SetPhase(string(phase), allPhases)
	d.exportDesired(phase)

	cctx, cancel := context.WithTimeout(context.Background(), d.opts.CycleTimeout)
	defer cancel()

	for _, trig := range d.triggers {
		if !trig.Matches(windowStart, d.opts.Granularity) {
			continue
		}
		if phase == calendar.PhaseNonTradingDay {
			metrics.IncTriggerEvaluation(trig.Name, "gated")
			d.auditor.Record(cctx, audit.Entry{
				Trigger: trig.Name,
				Target:  trig.Target,
				Action:  string(trig.Action),
				Outcome: "skipped",
				Detail:  "skipped — non-trading day",
			})
			continue
		}
		metrics.IncTriggerEvaluation(trig.Name, "fired")
		res := d.rec.Converge(cctx, trig.Target, trig.Action)
		d.auditor.Record(cctx, audit.Entry{
			Trigger: trig.Name,
			Target:  trig.Target,
			Action:  string(trig.Action),
			Outcome: string(res.Outcome),
			Detail:  res.Detail(),
		})
	}
}

// RunRecovery derives each process's desired state from the current
// calendar phase and converges all of them in declared order. Run at
// supervisor startup and on operator demand, it supersedes any triggers
// missed while the host or the supervisor was down.
func (d *Dispatcher) RunRecovery(ctx context.Context, now time.Time) {
	phase := d.cal.Evaluate(now)
	metrics.IncRecoveryRun()
	metrics.SetPhase(string(phase), allPhases)
	d.exportDesired(phase)
	d.logger.Info("recovery run", "phase", phase, "processes", len(d.policies))
	for _, p := range d.policies {
		action := p.DesiredAction(phase)
		res := d.rec.Converge(ctx, p.Name, action)
		d.auditor.Record(ctx, audit.Entry{
			Trigger: audit.TriggerRecovery,
			Target:  p.Name,
			Action:  string(action),
			Outcome: string(res.Outcome),
			Detail:  res.Detail(),
		})
	}
}

func (d *Dispatcher) exportDesired(phase calendar.Phase) {
	for _, p := range d.policies {
		metrics.SetDesiredRunning(p.Name, p.RunWhen[phase])
	}
}

// Phase reports the calendar phase for now; used by the status API.
func (d *Dispatcher) Phase(now time.Time) calendar.Phase { return d.cal.Evaluate(now) }

// Policies exposes the read-only process policies; used by the status API.
func (d *Dispatcher) Policies() []ProcessPolicy { return d.policies }
