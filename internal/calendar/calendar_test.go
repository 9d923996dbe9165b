package calendar

import (
	"testing"
	"time"
)

func mustCal(t *testing.T, cfg Config) *Calendar {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new calendar: %v", err)
	}
	return c
}

func istCfg() Config {
	return Config{
		Timezone:     "Asia/Kolkata",
		Weekdays:     []string{"mon", "tue", "wed", "thu", "fri"},
		SessionOpen:  "09:15",
		SessionClose: "15:30",
	}
}

func TestEvaluatePhases(t *testing.T) {
	c := mustCal(t, istCfg())
	loc := c.Location()
	// 2026-08-24 is a Monday.
	cases := []struct {
		at   time.Time
		want Phase
	}{
		{time.Date(2026, 8, 24, 8, 0, 0, 0, loc), PhasePreOpen},
		{time.Date(2026, 8, 24, 9, 14, 59, 0, loc), PhasePreOpen},
		{time.Date(2026, 8, 24, 9, 15, 0, 0, loc), PhaseOpen}, // exactly at open
		{time.Date(2026, 8, 24, 12, 0, 0, 0, loc), PhaseOpen},
		{time.Date(2026, 8, 24, 15, 29, 59, 0, loc), PhaseOpen},
		{time.Date(2026, 8, 24, 15, 30, 0, 0, loc), PhaseClosed}, // exactly at close
		{time.Date(2026, 8, 24, 22, 0, 0, 0, loc), PhaseClosed},
		{time.Date(2026, 8, 29, 12, 0, 0, 0, loc), PhaseNonTradingDay}, // Saturday
		{time.Date(2026, 8, 30, 12, 0, 0, 0, loc), PhaseNonTradingDay}, // Sunday
	}
	for _, tc := range cases {
		if got := c.Evaluate(tc.at); got != tc.want {
			t.Fatalf("Evaluate(%s) = %s, want %s", tc.at, got, tc.want)
		}
	}
}

func TestEvaluateConvertsTimezone(t *testing.T) {
	c := mustCal(t, istCfg())
	// 06:00 UTC on a Monday is 11:30 IST, mid-session.
	at := time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)
	if got := c.Evaluate(at); got != PhaseOpen {
		t.Fatalf("Evaluate(06:00 UTC) = %s, want %s", got, PhaseOpen)
	}
}

func TestHolidayOverridesWeekday(t *testing.T) {
	cfg := istCfg()
	cfg.Holidays = []string{"2026-08-24"} // a Monday
	c := mustCal(t, cfg)
	at := time.Date(2026, 8, 24, 12, 0, 0, 0, c.Location())
	if got := c.Evaluate(at); got != PhaseNonTradingDay {
		t.Fatalf("Evaluate(holiday) = %s, want %s", got, PhaseNonTradingDay)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	bad := []Config{
		{Timezone: "", SessionOpen: "09:15", SessionClose: "15:30"},
		{Timezone: "Mars/Olympus", SessionOpen: "09:15", SessionClose: "15:30"},
		{Timezone: "UTC", SessionOpen: "25:00", SessionClose: "15:30"},
		{Timezone: "UTC", SessionOpen: "09:15", SessionClose: "nope"},
		{Timezone: "UTC", SessionOpen: "15:30", SessionClose: "09:15"}, // open after close
		{Timezone: "UTC", SessionOpen: "09:15", SessionClose: "09:15"}, // zero-length session
		{Timezone: "UTC", SessionOpen: "09:15", SessionClose: "15:30", Weekdays: []string{"payday"}},
		{Timezone: "UTC", SessionOpen: "09:15", SessionClose: "15:30", Holidays: []string{"24-08-2026"}},
	}
	for i, cfg := range bad {
		if _, err := New(cfg); err == nil {
			t.Fatalf("case %d: expected error for %+v", i, cfg)
		}
	}
}

func TestDefaultWeekdays(t *testing.T) {
	cfg := istCfg()
	cfg.Weekdays = nil
	c := mustCal(t, cfg)
	if got := len(c.TradingWeekdays()); got != 5 {
		t.Fatalf("default weekdays = %d, want 5", got)
	}
	sat := time.Date(2026, 8, 29, 12, 0, 0, 0, c.Location())
	if c.Evaluate(sat) != PhaseNonTradingDay {
		t.Fatalf("Saturday should be non-trading with default weekdays")
	}
}

func TestParseClockTime(t *testing.T) {
	good := map[string]ClockTime{
		"09:15":   {Hour: 9, Minute: 15},
		"9:15":    {Hour: 9, Minute: 15},
		"00:00":   {Hour: 0, Minute: 0},
		"23:59":   {Hour: 23, Minute: 59},
		" 15:30 ": {Hour: 15, Minute: 30},
	}
	for in, want := range good {
		got, err := ParseClockTime(in)
		if err != nil || got != want {
			t.Fatalf("ParseClockTime(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	bad := []string{
		"9h15", "24:00", "09:60", "",
		// The whole string must be consumed: trailing text silently
		// dropped would run a schedule the operator never wrote.
		"09:15pm", "09:15:30", "9:15 banana",
		"09:5", "9:155", "+9:15", "-1:15", ":15", "09:",
	}
	for _, s := range bad {
		if _, err := ParseClockTime(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}
