package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Phase is the trading-session phase for a given wall-clock instant.
type Phase string

const (
	PhasePreOpen       Phase = "pre_open"
	PhaseOpen          Phase = "open"
	PhaseClosed        Phase = "closed"
	PhaseNonTradingDay Phase = "non_trading_day"
)

// ParsePhase maps a config string to a Phase.
func ParsePhase(s string) (Phase, error) {
	switch Phase(strings.ToLower(strings.TrimSpace(s))) {
	case PhasePreOpen:
		return PhasePreOpen, nil
	case PhaseOpen:
		return PhaseOpen, nil
	case PhaseClosed:
		return PhaseClosed, nil
	case PhaseNonTradingDay:
		return PhaseNonTradingDay, nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// ClockTime is a minute-resolution time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM" (24h). The whole string must be the
// time: trailing seconds, am/pm suffixes, or any other text is an error
// rather than a silently truncated schedule.
func ParseClockTime(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || !isDigits(hh) || !isDigits(mm) || len(hh) < 1 || len(hh) > 2 || len(mm) != 2 {
		return ClockTime{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	if h > 23 || m > 59 {
		return ClockTime{}, fmt.Errorf("invalid time %q: out of range", s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Minutes returns minutes since midnight.
func (c ClockTime) Minutes() int { return c.Hour*60 + c.Minute }

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// ParseWeekday accepts full names and three-letter abbreviations, case-insensitive.
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sun", "sunday":
		return time.Sunday, nil
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// Config describes a weekly trading calendar in a fixed reference timezone.
type Config struct {
	Timezone     string
	Weekdays     []string
	SessionOpen  string
	SessionClose string
	Holidays     []string // dates as YYYY-MM-DD, interpreted in the reference timezone
}

// Calendar evaluates trading phases. Immutable after New; safe for
// concurrent use.
type Calendar struct {
	loc      *time.Location
	weekdays map[time.Weekday]bool
	open     ClockTime
	close    ClockTime
	holidays map[string]bool
}

// New validates cfg and builds a Calendar. Empty Weekdays defaults to
// Monday through Friday.
func New(cfg Config) (*Calendar, error) {
	if cfg.Timezone == "" {
		return nil, errors.New("calendar: timezone is required")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("calendar: load timezone %q: %w", cfg.Timezone, err)
	}
	open, err := ParseClockTime(cfg.SessionOpen)
	if err != nil {
		return nil, fmt.Errorf("calendar: session_open: %w", err)
	}
	cl, err := ParseClockTime(cfg.SessionClose)
	if err != nil {
		return nil, fmt.Errorf("calendar: session_close: %w", err)
	}
	if open.Minutes() >= cl.Minutes() {
		return nil, fmt.Errorf("calendar: session_open %s must be before session_close %s", open, cl)
	}
	days := cfg.Weekdays
	if len(days) == 0 {
		days = []string{"mon", "tue", "wed", "thu", "fri"}
	}
	wd := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		w, err := ParseWeekday(d)
		if err != nil {
			return nil, fmt.Errorf("calendar: weekdays: %w", err)
		}
		wd[w] = true
	}
	hol := make(map[string]bool, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		if _, err := time.ParseInLocation("2006-01-02", h, loc); err != nil {
			return nil, fmt.Errorf("calendar: holiday %q: want YYYY-MM-DD: %w", h, err)
		}
		hol[h] = true
	}
	return &Calendar{loc: loc, weekdays: wd, open: open, close: cl, holidays: hol}, nil
}

// Location returns the reference timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Evaluate returns the session phase for now. The conversion into the
// reference timezone happens here; all comparisons use local wall time.
// A timestamp exactly at session-open is Open; exactly at session-close
// is Closed. Holidays override weekday membership.
func (c *Calendar) Evaluate(now time.Time) Phase {
	local := now.In(c.loc)
	if c.holidays[local.Format("2006-01-02")] {
		return PhaseNonTradingDay
	}
	if !c.weekdays[local.Weekday()] {
		return PhaseNonTradingDay
	}
	mins := local.Hour()*60 + local.Minute()
	switch {
	case mins < c.open.Minutes():
		return PhasePreOpen
	case mins < c.close.Minutes():
		return PhaseOpen
	default:
		return PhaseClosed
	}
}

// TradingWeekdays returns the configured trading weekdays in Sunday-first order.
func (c *Calendar) TradingWeekdays() []time.Weekday {
	out := make([]time.Weekday, 0, len(c.weekdays))
	for d := range c.weekdays {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
