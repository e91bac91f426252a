package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := buildRoot(newCommand(os.Stdout, os.Stderr))
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// buildRoot creates the root command. Without a subcommand it starts the
// fleet, or runs the action selected by --stop, --restart or --status.
func buildRoot(c *command) *cobra.Command {
	flags := &RootFlags{}

	root := &cobra.Command{
		Use:   "nexus",
		Short: "Queue worker fleet supervisor",
		Long: `Nexus starts and supervises a fleet of "php artisan queue:work" processes,
relaunches crashed workers and restarts the fleet when the restart signal file
is touched or, in watch mode, when application sources change.

Examples:
  nexus init --template=redis # write a starter nexus.toml
  nexus                       # start all configured workers
  nexus --log                 # start and stream worker output
  nexus --watch               # stream output and reload on source changes
  nexus --worker=emails       # start only the "emails" worker
  nexus status --output=json
  nexus status --api-url=https://host:9090 --api-token=...
  nexus stop`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case flags.Stop:
				return c.Stop(cmd.Context(), *flags)
			case flags.Status:
				return c.Status(cmd.Context(), *flags)
			case flags.Restart:
				return c.Restart(cmd.Context(), *flags)
			default:
				return c.Start(cmd.Context(), *flags)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "path to config file (default $NEXUS_CONFIG or ./nexus.toml)")
	pf.StringVar(&flags.Worker, "worker", "", "only run the named worker")
	pf.BoolVar(&flags.NoColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	pf.StringVarP(&flags.Output, "output", "o", "table", "status output format: table, json or yaml")

	startFlags := func(cmd *cobra.Command) {
		cmd.Flags().BoolVar(&flags.Log, "log", false, "stream worker output")
		cmd.Flags().BoolVar(&flags.Watch, "watch", false, "stream worker output and restart on file changes")
		cmd.Flags().BoolVar(&flags.Detailed, "detailed", false, "stream worker output with job details")
	}
	startFlags(root)
	root.Flags().BoolVar(&flags.Stop, "stop", false, "stop running workers")
	root.Flags().BoolVar(&flags.Restart, "restart", false, "restart workers")
	root.Flags().BoolVar(&flags.Status, "status", false, "show worker status")
	root.MarkFlagsMutuallyExclusive("stop", "restart", "status")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the worker fleet and supervise it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Start(cmd.Context(), *flags)
		},
	}
	startFlags(startCmd)

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop running workers, then start the fleet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Restart(cmd.Context(), *flags)
		},
	}
	startFlags(restartCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show worker status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Status(cmd.Context(), *flags)
		},
	}
	sf := statusCmd.Flags()
	sf.StringVar(&flags.APIURL, "api-url", "", "query a status server (e.g. https://host:9090) instead of the local registry")
	sf.StringVar(&flags.APIToken, "api-token", "", "bearer token for --api-url (default http.auth.token / $NEXUS_HTTP_TOKEN)")
	sf.DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout for --api-url")
	sf.BoolVar(&flags.Insecure, "insecure", false, "skip TLS verification for --api-url")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.Init(*flags)
		},
	}
	inf := initCmd.Flags()
	inf.StringVar(&flags.Template, "template", "basic", "starter layout: basic, redis, database, sqs or multi")
	inf.StringVar(&flags.Format, "format", "toml", "file format: toml, yaml or json")
	inf.BoolVar(&flags.Force, "force", false, "overwrite an existing file")

	root.AddCommand(
		initCmd,
		startCmd,
		restartCmd,
		&cobra.Command{
			Use:   "stop",
			Short: "Stop running workers",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.Stop(cmd.Context(), *flags)
			},
		},
		statusCmd,
	)
	return root
}
