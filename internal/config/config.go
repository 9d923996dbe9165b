package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/marketd/internal/calendar"
	"github.com/loykin/marketd/internal/procmgr"
	"github.com/loykin/marketd/internal/schedule"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	LogLevel  string          `toml:"log_level" mapstructure:"log_level"`
	Calendar  CalendarConfig  `toml:"calendar" mapstructure:"calendar"`
	Processes []ProcessConfig `toml:"process" mapstructure:"process"`
	Triggers  []TriggerConfig `toml:"trigger" mapstructure:"trigger"`
	Manager   ManagerConfig   `toml:"manager" mapstructure:"manager"`
	Audit     AuditConfig     `toml:"audit" mapstructure:"audit"`
	Server    ServerConfig    `toml:"server" mapstructure:"server"`
	Metrics   MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
}

type CalendarConfig struct {
	Timezone     string   `toml:"timezone" mapstructure:"timezone"`
	Weekdays     []string `toml:"weekdays" mapstructure:"weekdays"`
	SessionOpen  string   `toml:"session_open" mapstructure:"session_open"`
	SessionClose string   `toml:"session_close" mapstructure:"session_close"`
	Holidays     []string `toml:"holidays" mapstructure:"holidays"`
}

// ProcessConfig declares one managed process and the phases it should
// run in. run_when accepts phase names or the single keyword "always".
type ProcessConfig struct {
	Name    string   `toml:"name" mapstructure:"name"`
	RunWhen []string `toml:"run_when" mapstructure:"run_when"`
}

type TriggerConfig struct {
	Name     string   `toml:"name" mapstructure:"name"`
	At       string   `toml:"at" mapstructure:"at"`
	Schedule string   `toml:"schedule" mapstructure:"schedule"`
	Weekdays []string `toml:"weekdays" mapstructure:"weekdays"`
	Action   string   `toml:"action" mapstructure:"action"`
	Target   string   `toml:"target" mapstructure:"target"`
}

// ManagerConfig selects and tunes the process-manager backend plus the
// convergence and dispatch budgets.
type ManagerConfig struct {
	Type    string        `toml:"type" mapstructure:"type"` // "http" or "exec"
	BaseURL string        `toml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`

	StartCmd   string `toml:"start_cmd" mapstructure:"start_cmd"`
	StopCmd    string `toml:"stop_cmd" mapstructure:"stop_cmd"`
	RestartCmd string `toml:"restart_cmd" mapstructure:"restart_cmd"`
	StatusCmd  string `toml:"status_cmd" mapstructure:"status_cmd"`

	MaxAttempts  int           `toml:"max_attempts" mapstructure:"max_attempts"`
	Backoff      time.Duration `toml:"backoff" mapstructure:"backoff"`
	Granularity  time.Duration `toml:"granularity" mapstructure:"granularity"`
	CycleTimeout time.Duration `toml:"cycle_timeout" mapstructure:"cycle_timeout"`
}

type AuditConfig struct {
	File       string            `toml:"file" mapstructure:"file"`
	MaxSizeMB  int               `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int               `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int               `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool              `toml:"compress" mapstructure:"compress"`
	Store      string            `toml:"store" mapstructure:"store"` // DSN: sqlite path or postgres URL
	ClickHouse *ClickHouseConfig `toml:"clickhouse" mapstructure:"clickhouse"`
}

type ClickHouseConfig struct {
	Addr     string `toml:"addr" mapstructure:"addr"`
	Database string `toml:"database" mapstructure:"database"`
	Username string `toml:"username" mapstructure:"username"`
	Password string `toml:"password" mapstructure:"password"`
	Table    string `toml:"table" mapstructure:"table"`
}

type ServerConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// Config is the validated runtime configuration: domain objects built
// from the file, ready to wire into the supervisor.
type Config struct {
	File     FileConfig
	Calendar *calendar.Calendar
	Triggers []schedule.Trigger
	Policies []schedule.ProcessPolicy
}

// Load reads a TOML file and validates the whole configuration. Any
// error is fatal for the caller: a partially valid schedule must never
// run.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return Build(fc)
}

// Build validates fc and constructs the runtime configuration.
func Build(fc FileConfig) (*Config, error) {
	cal, err := calendar.New(calendar.Config{
		Timezone:     fc.Calendar.Timezone,
		Weekdays:     fc.Calendar.Weekdays,
		SessionOpen:  fc.Calendar.SessionOpen,
		SessionClose: fc.Calendar.SessionClose,
		Holidays:     fc.Calendar.Holidays,
	})
	if err != nil {
		return nil, err
	}

	if len(fc.Processes) == 0 {
		return nil, fmt.Errorf("config: at least one [[process]] is required")
	}
	policies := make([]schedule.ProcessPolicy, 0, len(fc.Processes))
	known := make(map[string]bool, len(fc.Processes))
	for _, pc := range fc.Processes {
		if pc.Name == "" {
			return nil, fmt.Errorf("config: process requires a name")
		}
		if known[pc.Name] {
			return nil, fmt.Errorf("config: duplicate process %q", pc.Name)
		}
		known[pc.Name] = true
		rw, err := parseRunWhen(pc.Name, pc.RunWhen)
		if err != nil {
			return nil, err
		}
		policies = append(policies, schedule.ProcessPolicy{Name: pc.Name, RunWhen: rw})
	}

	triggers := make([]schedule.Trigger, 0, len(fc.Triggers))
	seen := make(map[string]bool, len(fc.Triggers))
	for _, tc := range fc.Triggers {
		trig, err := schedule.ParseTrigger(schedule.TriggerConfig{
			Name:     tc.Name,
			At:       tc.At,
			Schedule: tc.Schedule,
			Weekdays: tc.Weekdays,
			Action:   tc.Action,
			Target:   tc.Target,
		})
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if seen[trig.Name] {
			return nil, fmt.Errorf("config: duplicate trigger %q", trig.Name)
		}
		seen[trig.Name] = true
		if !known[trig.Target] {
			return nil, fmt.Errorf("config: trigger %q targets undeclared process %q", trig.Name, trig.Target)
		}
		triggers = append(triggers, trig)
	}

	if err := validateManager(fc.Manager); err != nil {
		return nil, err
	}
	return &Config{File: fc, Calendar: cal, Triggers: triggers, Policies: policies}, nil
}

// parseRunWhen expands the run_when list into a phase set. "always"
// covers every phase except non-trading days and must stand alone.
func parseRunWhen(name string, entries []string) (map[calendar.Phase]bool, error) {
	rw := make(map[calendar.Phase]bool, len(entries))
	for _, e := range entries {
		if strings.EqualFold(strings.TrimSpace(e), "always") {
			if len(entries) > 1 {
				return nil, fmt.Errorf("config: process %q: \"always\" cannot combine with phases", name)
			}
			rw[calendar.PhasePreOpen] = true
			rw[calendar.PhaseOpen] = true
			rw[calendar.PhaseClosed] = true
			return rw, nil
		}
		ph, err := calendar.ParsePhase(e)
		if err != nil {
			return nil, fmt.Errorf("config: process %q: %w", name, err)
		}
		rw[ph] = true
	}
	return rw, nil
}

func validateManager(mc ManagerConfig) error {
	switch mc.Type {
	case "", "http":
		if mc.BaseURL == "" {
			return fmt.Errorf("config: manager type http requires base_url")
		}
	case "exec":
		for _, tc := range []struct{ field, v string }{
			{"start_cmd", mc.StartCmd},
			{"stop_cmd", mc.StopCmd},
			{"restart_cmd", mc.RestartCmd},
			{"status_cmd", mc.StatusCmd},
		} {
			if strings.TrimSpace(tc.v) == "" {
				return fmt.Errorf("config: manager type exec requires %s", tc.field)
			}
		}
	default:
		return fmt.Errorf("config: unknown manager type %q", mc.Type)
	}
	return nil
}

// NewClient builds the process-manager backend the manager section selects.
func (m ManagerConfig) NewClient(logger *slog.Logger) (procmgr.Client, error) {
	switch m.Type {
	case "", "http":
		return procmgr.NewHTTP(procmgr.HTTPConfig{BaseURL: m.BaseURL, Timeout: m.Timeout, Logger: logger})
	case "exec":
		return procmgr.NewExec(procmgr.ExecConfig{
			StartCmd:   m.StartCmd,
			StopCmd:    m.StopCmd,
			RestartCmd: m.RestartCmd,
			StatusCmd:  m.StatusCmd,
			Timeout:    m.Timeout,
			Logger:     logger,
		})
	}
	return nil, fmt.Errorf("config: unknown manager type %q", m.Type)
}

// ProcessNames returns the declared process names in declaration order.
func (c *Config) ProcessNames() []string {
	out := make([]string, 0, len(c.Policies))
	for _, p := range c.Policies {
		out = append(out, p.Name)
	}
	return out
}
