// Command propsync is a terminal client for the property-management API. It
// reads through the same synchronization store an interactive frontend uses,
// so repeated and concurrent reads share cached results.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/propmanage/propsync/internal/transport"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		msg, code := transport.Describe(err)
		if code != 0 {
			fmt.Fprintf(os.Stderr, "propsync: %s (HTTP %d)\n", msg, code)
		} else {
			fmt.Fprintf(os.Stderr, "propsync: %s\n", msg)
		}
		stop()
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	baseURL    string
	tokenFile  string
	logLevel   string
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var a *app

	root := &cobra.Command{
		Use:   "propsync",
		Short: "Property-management API client",
		Long: `propsync lists and updates properties, tenants, payments, maintenance
tickets and notifications on a PropManage API server.

Examples:
  # Sign in and remember the session
  propsync login --email alex.morgan@propmanage.dev

  # Urgent open tickets, as JSON
  propsync tickets --status OPEN --priority URGENT -o json

  # Follow the portfolio dashboard
  propsync watch`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = newApp(opts, cmd.OutOrStdout())
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a != nil {
				a.close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv("PROPSYNC_CONFIG"), "path to a YAML config file")
	flags.StringVar(&opts.baseURL, "base-url", "", "API base URL (overrides client.base_url)")
	flags.StringVar(&opts.tokenFile, "token-file", "", "session token file (overrides client.token_file)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVarP(&opts.output, "output", "o", "table", "output format: table or json")

	current := func() *app { return a }
	root.AddCommand(
		newLoginCmd(current),
		newLogoutCmd(current),
		newPropertiesCmd(current),
		newTenantsCmd(current),
		newPaymentsCmd(current),
		newTicketsCmd(current),
		newNotificationsCmd(current),
		newDashboardCmd(current),
		newWatchCmd(current),
	)
	return root
}
