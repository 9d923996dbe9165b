package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loykin/marketd/internal/calendar"
	"github.com/loykin/marketd/internal/procmgr"
)

// Trigger is one row of the declarative schedule: fire an action against
// a target process at a recurring instant. Recurrence is either a
// time-of-day plus weekday set, or a five-field cron expression. Both
// forms are gated by the trading calendar at dispatch time.
//
// Triggers are static configuration, loaded once and shared read-only
// across dispatch cycles.
type Trigger struct {
	Name     string
	Action   procmgr.Action
	Target   string
	At       calendar.ClockTime
	Weekdays map[time.Weekday]bool // empty means every weekday
	Schedule cron.Schedule         // set for the cron form; At/Weekdays unused then
}

// TriggerConfig is the raw configuration shape for one trigger.
type TriggerConfig struct {
	Name     string
	At       string // "HH:MM", mutually exclusive with Schedule
	Schedule string // cron expression, e.g. "0 0 * * mon-fri"
	Weekdays []string
	Action   string
	Target   string
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseTrigger validates and builds a Trigger from its config form.
func ParseTrigger(cfg TriggerConfig) (Trigger, error) {
	if cfg.Name == "" {
		return Trigger{}, errors.New("trigger requires a name")
	}
	if cfg.Target == "" {
		return Trigger{}, fmt.Errorf("trigger %s requires a target", cfg.Name)
	}
	action, err := procmgr.ParseAction(cfg.Action)
	if err != nil {
		return Trigger{}, fmt.Errorf("trigger %s: %w", cfg.Name, err)
	}
	t := Trigger{Name: cfg.Name, Action: action, Target: cfg.Target}

	switch {
	case cfg.At != "" && cfg.Schedule != "":
		return Trigger{}, fmt.Errorf("trigger %s: at and schedule are mutually exclusive", cfg.Name)
	case cfg.Schedule != "":
		sched, err := cronParser.Parse(cfg.Schedule)
		if err != nil {
			return Trigger{}, fmt.Errorf("trigger %s: invalid schedule %q: %w", cfg.Name, cfg.Schedule, err)
		}
		if len(cfg.Weekdays) > 0 {
			return Trigger{}, fmt.Errorf("trigger %s: weekdays belong in the cron expression", cfg.Name)
		}
		t.Schedule = sched
	case cfg.At != "":
		at, err := calendar.ParseClockTime(cfg.At)
		if err != nil {
			return Trigger{}, fmt.Errorf("trigger %s: %w", cfg.Name, err)
		}
		t.At = at
		if len(cfg.Weekdays) > 0 {
			t.Weekdays = make(map[time.Weekday]bool, len(cfg.Weekdays))
			for _, d := range cfg.Weekdays {
				w, err := calendar.ParseWeekday(d)
				if err != nil {
					return Trigger{}, fmt.Errorf("trigger %s: %w", cfg.Name, err)
				}
				t.Weekdays[w] = true
			}
		}
	default:
		return Trigger{}, fmt.Errorf("trigger %s requires at or schedule", cfg.Name)
	}
	return t, nil
}

// Matches reports whether the trigger fires inside the wake-up window
// [windowStart, windowStart+granularity). windowStart must already be in
// the calendar's reference timezone.
func (t Trigger) Matches(windowStart time.Time, granularity time.Duration) bool {
	windowEnd := windowStart.Add(granularity)
	if t.Schedule != nil {
		// Next is strictly after its argument, so back off one second to
		// include an instant exactly at windowStart.
		next := t.Schedule.Next(windowStart.Add(-time.Second))
		return !next.Before(windowStart) && next.Before(windowEnd)
	}
	if t.Weekdays != nil && !t.Weekdays[windowStart.Weekday()] {
		return false
	}
	fire := time.Date(windowStart.Year(), windowStart.Month(), windowStart.Day(),
		t.At.Hour, t.At.Minute, 0, 0, windowStart.Location())
	return !fire.Before(windowStart) && fire.Before(windowEnd)
}

// ProcessPolicy maps calendar phases to the state a managed process
// should be in. Defined at configuration load and never mutated.
type ProcessPolicy struct {
	Name    string
	RunWhen map[calendar.Phase]bool
}

// Desired returns the state the process should be in for the phase.
func (p ProcessPolicy) Desired(ph calendar.Phase) procmgr.State {
	if p.RunWhen[ph] {
		return procmgr.StateRunning
	}
	return procmgr.StateStopped
}

// DesiredAction returns the action that drives the process toward its
// desired state for the phase.
func (p ProcessPolicy) DesiredAction(ph calendar.Phase) procmgr.Action {
	if p.RunWhen[ph] {
		return procmgr.ActionStart
	}
	return procmgr.ActionStop
}
