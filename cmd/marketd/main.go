package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	cmd := command{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(cmd, globalFlags),
		createRecoverCommand(cmd, globalFlags),
		createStatusCommand(cmd),
		createAuditCommand(cmd),
		createValidateCommand(cmd, globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "marketd",
		Short: "Market-calendar process lifecycle supervisor",
		Long: `Marketd supervises trading-session processes: it evaluates a market
calendar, fires scheduled start/stop/restart triggers through a process
manager, and reconciles process state with what the calendar implies.

Examples:
  marketd serve marketd.toml        # Run the supervisor
  marketd validate marketd.toml     # Check a config without running
  marketd recover --api-url=http://host:9650/api
  marketd status --api-url=http://host:9650/api`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createServeCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the supervisor",
		Long: `Run the supervisor: a startup recovery pass converges every process
to its calendar-derived state, then the dispatcher loop takes over.

Examples:
  marketd serve marketd.toml
  marketd serve --config=marketd.toml --skip-recover`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return c.Serve(*serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.SkipRecover, "skip-recover", false, "skip the startup recovery run")
	return cmd
}

func createRecoverCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	recoverFlags := &RecoverFlags{}
	cmd := &cobra.Command{
		Use:   "recover [config.toml]",
		Short: "Converge every process to its calendar-derived state",
		Long: `Run one recovery pass. With --api-url the request goes to a running
supervisor; otherwise the pass runs locally from the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			recoverFlags.ConfigPath = globalFlags.ConfigPath
			return c.Recover(*recoverFlags, args)
		},
	}
	cmd.Flags().StringVar(&recoverFlags.APIUrl, "api-url", "", "running supervisor URL (e.g. http://host:9650/api)")
	cmd.Flags().DurationVar(&recoverFlags.APITimeout, "api-timeout", 2*time.Minute, "request timeout")
	return cmd
}

func createStatusCommand(c command) *cobra.Command {
	statusFlags := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show phase and desired-vs-observed process state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(*statusFlags)
		},
	}
	cmd.Flags().StringVar(&statusFlags.APIUrl, "api-url", "http://localhost:9650/api", "supervisor URL")
	cmd.Flags().DurationVar(&statusFlags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return cmd
}

func createAuditCommand(c command) *cobra.Command {
	auditFlags := &AuditFlags{}
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Audit(*auditFlags)
		},
	}
	cmd.Flags().StringVar(&auditFlags.APIUrl, "api-url", "http://localhost:9650/api", "supervisor URL")
	cmd.Flags().DurationVar(&auditFlags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().IntVar(&auditFlags.Limit, "limit", 50, "max records to fetch")
	return cmd
}

func createValidateCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	validateFlags := &ValidateFlags{}
	cmd := &cobra.Command{
		Use:   "validate [config.toml]",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file without running the supervisor.
With --check-names each configured process is also looked up in the
process manager; an unknown name fails validation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			validateFlags.ConfigPath = globalFlags.ConfigPath
			return c.Validate(*validateFlags, args)
		},
	}
	cmd.Flags().BoolVar(&validateFlags.CheckNames, "check-names", false, "verify process names with the manager")
	return cmd
}
