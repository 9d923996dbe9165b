package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/marketd/internal/calendar"
	"github.com/loykin/marketd/internal/procmgr"
)

const sampleTOML = `
log_level = "debug"

[calendar]
timezone = "Asia/Kolkata"
session_open = "09:15"
session_close = "15:30"
holidays = ["2026-01-26", "2026-08-15"]

[[process]]
name = "engine"
run_when = ["pre_open", "open"]

[[process]]
name = "monitor"
run_when = ["always"]

[[trigger]]
name = "open-engine"
at = "09:10"
weekdays = ["mon", "tue", "wed", "thu", "fri"]
action = "start"
target = "engine"

[[trigger]]
name = "nightly-restart"
schedule = "0 0 * * *"
action = "restart"
target = "monitor"

[manager]
type = "http"
base_url = "http://127.0.0.1:9615/api"
timeout = "3s"
max_attempts = 5
backoff = "500ms"

[audit]
file = "/tmp/marketd-audit.log"
store = "sqlite:///tmp/marketd-audit.db"

[server]
enabled = true
listen = ":9650"

[metrics]
enabled = true
listen = ":9651"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketd.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Calendar == nil {
		t.Fatalf("calendar not built")
	}
	if got := len(cfg.Policies); got != 2 {
		t.Fatalf("policies = %d, want 2", got)
	}
	if got := len(cfg.Triggers); got != 2 {
		t.Fatalf("triggers = %d, want 2", got)
	}
	if cfg.Triggers[0].Name != "open-engine" || cfg.Triggers[1].Name != "nightly-restart" {
		t.Fatalf("trigger order must follow declaration: %v, %v", cfg.Triggers[0].Name, cfg.Triggers[1].Name)
	}
	if cfg.File.Manager.Timeout != 3*time.Second {
		t.Fatalf("timeout = %v, want 3s", cfg.File.Manager.Timeout)
	}
	if cfg.File.Manager.Backoff != 500*time.Millisecond {
		t.Fatalf("backoff = %v, want 500ms", cfg.File.Manager.Backoff)
	}
	if cfg.File.LogLevel != "debug" {
		t.Fatalf("log_level = %q", cfg.File.LogLevel)
	}
	names := cfg.ProcessNames()
	if len(names) != 2 || names[0] != "engine" || names[1] != "monitor" {
		t.Fatalf("process names = %v", names)
	}
}

func TestAlwaysKeywordExpandsPhases(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	found := false
	for _, p := range cfg.Policies {
		if p.Name != "monitor" {
			continue
		}
		found = true
		for _, ph := range []calendar.Phase{calendar.PhasePreOpen, calendar.PhaseOpen, calendar.PhaseClosed} {
			if !p.RunWhen[ph] {
				t.Fatalf("always must cover %s", ph)
			}
		}
		if p.RunWhen[calendar.PhaseNonTradingDay] {
			t.Fatalf("always must not cover non-trading days")
		}
	}
	if !found {
		t.Fatalf("monitor policy missing")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(string) string
		wantSub string
	}{
		{"unknown trigger target",
			func(s string) string { return strings.Replace(s, `target = "engine"`, `target = "ghost"`, 1) },
			"undeclared process"},
		{"duplicate process",
			func(s string) string { return strings.Replace(s, `name = "monitor"`, `name = "engine"`, 1) },
			"duplicate process"},
		{"duplicate trigger",
			func(s string) string { return strings.Replace(s, `name = "nightly-restart"`, `name = "open-engine"`, 1) },
			"duplicate trigger"},
		{"malformed session time",
			func(s string) string { return strings.Replace(s, `session_open = "09:15"`, `session_open = "9am"`, 1) },
			"invalid time"},
		{"session time with trailing seconds",
			func(s string) string { return strings.Replace(s, `session_close = "15:30"`, `session_close = "15:30:00"`, 1) },
			"invalid time"},
		{"unknown phase",
			func(s string) string { return strings.Replace(s, `run_when = ["pre_open", "open"]`, `run_when = ["lunch"]`, 1) },
			"unknown phase"},
		{"unknown action",
			func(s string) string { return strings.Replace(s, `action = "start"`, `action = "reload"`, 1) },
			"unknown action"},
		{"always combined with phase",
			func(s string) string { return strings.Replace(s, `run_when = ["always"]`, `run_when = ["always", "open"]`, 1) },
			"cannot combine"},
		{"unknown manager type",
			func(s string) string { return strings.Replace(s, `type = "http"`, `type = "dbus"`, 1) },
			"unknown manager type"},
		{"http without base_url",
			func(s string) string { return strings.Replace(s, `base_url = "http://127.0.0.1:9615/api"`, "", 1) },
			"requires base_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.mutate(sampleTOML)))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestExecManagerValidation(t *testing.T) {
	execTOML := strings.Replace(sampleTOML,
		`type = "http"
base_url = "http://127.0.0.1:9615/api"`,
		`type = "exec"
start_cmd = "pm2 start {name}"
stop_cmd = "pm2 stop {name}"
restart_cmd = "pm2 restart {name}"
status_cmd = "pm2 pid {name}"`, 1)
	cfg, err := Load(writeConfig(t, execTOML))
	if err != nil {
		t.Fatalf("load exec config: %v", err)
	}
	c, err := cfg.File.Manager.NewClient(nil)
	if err != nil {
		t.Fatalf("build exec client: %v", err)
	}
	if _, ok := c.(*procmgr.ExecClient); !ok {
		t.Fatalf("client type = %T, want *procmgr.ExecClient", c)
	}

	// Missing a command template is fatal.
	broken := strings.Replace(execTOML, `status_cmd = "pm2 pid {name}"`, "", 1)
	if _, err := Load(writeConfig(t, broken)); err == nil {
		t.Fatalf("expected error for missing status_cmd")
	}
}

func TestNewClientHTTP(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c, err := cfg.File.Manager.NewClient(nil)
	if err != nil {
		t.Fatalf("build http client: %v", err)
	}
	if _, ok := c.(*procmgr.HTTPClient); !ok {
		t.Fatalf("client type = %T, want *procmgr.HTTPClient", c)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
