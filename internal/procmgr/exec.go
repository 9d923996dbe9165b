package procmgr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ExecConfig configures the command backend. Each template is a shell
// command with "{name}" substituted by the target process name, e.g.
//
//	start_cmd   = "pm2 start {name}"
//	stop_cmd    = "pm2 stop {name}"
//	restart_cmd = "pm2 restart {name}"
//	status_cmd  = "pm2 pid {name}"
//
// StatusCmd must print the PID of the process (empty or 0 when stopped).
type ExecConfig struct {
	StartCmd   string
	StopCmd    string
	RestartCmd string
	StatusCmd  string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// ExecClient shells out to a process-manager CLI. The PID printed by
// StatusCmd is cross-checked for liveness so a stale manager answer does
// not count as Running.
type ExecClient struct {
	cfg    ExecConfig
	logger *slog.Logger
}

// NewExec validates the templates and builds an ExecClient.
func NewExec(cfg ExecConfig) (*ExecClient, error) {
	for _, tc := range []struct{ field, v string }{
		{"start_cmd", cfg.StartCmd},
		{"stop_cmd", cfg.StopCmd},
		{"restart_cmd", cfg.RestartCmd},
		{"status_cmd", cfg.StatusCmd},
	} {
		if strings.TrimSpace(tc.v) == "" {
			return nil, fmt.Errorf("procmgr: exec backend requires %s", tc.field)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecClient{cfg: cfg, logger: logger}, nil
}

func (c *ExecClient) Status(ctx context.Context, name string) (State, error) {
	out, err := c.run(ctx, c.cfg.StatusCmd, name)
	if err != nil {
		return StateUnknown, fmt.Errorf("%w: status command: %v", ErrUnreachable, err)
	}
	s := strings.TrimSpace(out)
	if s == "" || s == "0" {
		return StateStopped, nil
	}
	pid, err := strconv.Atoi(s)
	if err != nil {
		return StateUnknown, fmt.Errorf("status command for %s printed %q, want a pid", name, s)
	}
	if pid <= 0 {
		return StateStopped, nil
	}
	alive, err := gopsproc.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return StateUnknown, fmt.Errorf("check pid %d for %s: %w", pid, name, err)
	}
	if !alive {
		return StateStopped, nil
	}
	return StateRunning, nil
}

func (c *ExecClient) Apply(ctx context.Context, name string, action Action) error {
	var tmpl string
	switch action {
	case ActionStart:
		tmpl = c.cfg.StartCmd
	case ActionStop:
		tmpl = c.cfg.StopCmd
	case ActionRestart:
		tmpl = c.cfg.RestartCmd
	default:
		return fmt.Errorf("unsupported action %q", action)
	}
	c.logger.Debug("running manager command", "name", name, "action", action)
	out, err := c.run(ctx, tmpl, name)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s timed out", ErrUnreachable, action)
		}
		return fmt.Errorf("%w: %v (output: %s)", ErrRejected, err, strings.TrimSpace(out))
	}
	return nil
}

// run executes the template through the shell with a bounded deadline.
func (c *ExecClient) run(ctx context.Context, tmpl, name string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	cmdline := strings.ReplaceAll(tmpl, "{name}", name)
	cmd := exec.CommandContext(cctx, "/bin/sh", "-c", cmdline)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}
