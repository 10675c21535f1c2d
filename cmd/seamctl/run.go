package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-seamctl/machine"
)

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the control core until interrupted",
		Long: `Run opens the fieldbus and the LWM connection named by the configuration and
drives cycles until SIGINT or SIGTERM.

Example:
  seamctl run -c /etc/seamctl/seamctl.ini`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMachine(rootOpts, cmd)
		},
	}

	return cmd
}

func runMachine(opts *rootOptions, cmd *cobra.Command) error {
	store, l, err := loadConfig(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := machine.New(ctx, store, machine.WithLogger(l))
	if err != nil {
		return err
	}

	return m.Run(ctx)
}
