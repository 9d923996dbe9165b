package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/marketd"
	"github.com/loykin/marketd/internal/logger"
	"github.com/loykin/marketd/pkg/client"
)

type command struct{}

// Serve loads the configuration, runs startup recovery, and blocks in
// the dispatcher loop until SIGINT/SIGTERM.
func (command) Serve(flags ServeFlags, args []string) error {
	path := configPath(flags.ConfigPath, args)
	cfg, err := marketd.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	log := logger.NewConsole(logger.ParseLevel(cfg.File.LogLevel))

	sup, err := marketd.NewSupervisor(cfg, log)
	if err != nil {
		return err
	}
	defer sup.Close()

	if cfg.File.Metrics.Enabled {
		if err := marketd.RegisterMetricsDefault(); err != nil {
			fmt.Printf("Warning: failed to register metrics: %v\n", err)
		}
		if cfg.File.Metrics.Listen != "" {
			go func() {
				if err := marketd.ServeMetrics(cfg.File.Metrics.Listen); err != nil {
					fmt.Printf("Metrics server error: %v\n", err)
				}
			}()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Validate(ctx); err != nil {
		return fmt.Errorf("validate processes: %w", err)
	}

	// Recovery first: the host may have been down across trigger times,
	// so desired state is derived from the calendar, not replayed.
	if !flags.SkipRecover {
		sup.Recover(ctx)
	}

	var srv interface{ Close() error }
	if cfg.File.Server.Enabled {
		if cfg.File.Server.Listen == "" {
			return fmt.Errorf("server enabled but no listen address configured")
		}
		srv = marketd.NewHTTPServer(cfg.File.Server.Listen, sup)
		fmt.Printf("Starting marketd server on %s%s\n", cfg.File.Server.Listen, cfg.File.Server.BasePath)
	}

	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	cancel()
	<-done
	if srv != nil {
		return srv.Close()
	}
	return nil
}

// Recover runs a recovery pass, remotely when an API URL is given,
// locally from the configuration otherwise.
func (command) Recover(flags RecoverFlags, args []string) error {
	if flags.APIUrl != "" {
		c := client.New(client.Config{BaseURL: flags.APIUrl, Timeout: flags.APITimeout})
		ctx, cancel := context.WithTimeout(context.Background(), flags.APITimeout)
		defer cancel()
		if err := c.Recover(ctx); err != nil {
			return fmt.Errorf("remote recovery: %w", err)
		}
		fmt.Println("Recovery completed")
		return nil
	}

	path := configPath(flags.ConfigPath, args)
	cfg, err := marketd.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	log := logger.NewConsole(logger.ParseLevel(cfg.File.LogLevel))
	sup, err := marketd.NewSupervisor(cfg, log)
	if err != nil {
		return err
	}
	defer sup.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	sup.Recover(ctx)
	fmt.Println("Recovery completed")
	return nil
}

// Status prints the supervisor's phase and per-process state.
func (command) Status(flags StatusFlags) error {
	c := client.New(client.Config{BaseURL: flags.APIUrl, Timeout: flags.APITimeout})
	ctx, cancel := context.WithTimeout(context.Background(), flags.APITimeout)
	defer cancel()
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("phase: %s\n", st.Phase)
	for _, p := range st.Processes {
		mark := "ok"
		if !p.InSync {
			mark = "DRIFT"
		}
		fmt.Printf("  %-16s desired=%-8s observed=%-8s %s\n", p.Name, p.Desired, p.Observed, mark)
	}
	return nil
}

// Audit prints recent audit records, newest first.
func (command) Audit(flags AuditFlags) error {
	c := client.New(client.Config{BaseURL: flags.APIUrl, Timeout: flags.APITimeout})
	ctx, cancel := context.WithTimeout(context.Background(), flags.APITimeout)
	defer cancel()
	recs, err := c.AuditRecent(ctx, flags.Limit)
	if err != nil {
		return err
	}
	for _, r := range recs {
		fmt.Printf("%s  %-20s %-12s %-8s %-24s %s\n",
			r.Time.Format(time.RFC3339), r.Trigger, r.Target, r.Action, r.Outcome, r.Detail)
	}
	return nil
}

// Validate checks the configuration file and exits non-zero on error.
func (command) Validate(flags ValidateFlags, args []string) error {
	path := configPath(flags.ConfigPath, args)
	cfg, err := marketd.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	fmt.Printf("config valid: %d process(es), %d trigger(s)\n", len(cfg.Policies), len(cfg.Triggers))

	if flags.CheckNames {
		log := logger.NewConsole(logger.ParseLevel(cfg.File.LogLevel))
		sup, err := marketd.NewSupervisor(cfg, log)
		if err != nil {
			return err
		}
		defer sup.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sup.Validate(ctx); err != nil {
			return fmt.Errorf("process validation: %w", err)
		}
		fmt.Println("all processes known to the manager")
	}
	return nil
}

// configPath resolves the config file from the positional arg or flag.
func configPath(flag string, args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	if flag != "" {
		return flag
	}
	return "marketd.toml"
}
