package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-seamctl/machine"
)

type pingOptions struct {
	*rootOptions
	Host    string
	Port    int
	Timeout time.Duration
}

func newPingCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &pingOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lwm-ping",
		Short: "Connect to the LWM device and check the watchdog round trip",
		Long: `lwm-ping connects to the LWM device of the [lwm] section, waits for one
acknowledged watchdog and signs off again.

Example:
  seamctl lwm-ping --host 192.168.10.20 --timeout 3s`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "", "override the [lwm] host")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "override the [lwm] port")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "time allowed for connect and watchdog")

	return cmd
}

func runPing(opts *pingOptions, cmd *cobra.Command) error {
	store, l, err := loadConfig(opts.rootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	lc := store.Snapshot().LWM
	if opts.Host != "" {
		lc.Host = opts.Host
	}
	if opts.Port != 0 {
		lc.Port = opts.Port
	}
	if lc.Host == "" {
		return errors.New("no LWM host configured")
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.Timeout)
	defer cancel()

	client, err := machine.NewLWMClient(parent, lc, l)
	if err != nil {
		return err
	}
	defer client.Close()

	start := time.Now()
	if err := client.Open(); err != nil {
		return err
	}
	if err := client.WaitConnected(ctx); err != nil {
		return fmt.Errorf("connect %s:%d: %w", lc.Host, lc.Port, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "connected to %s:%d in %s\n", lc.Host, lc.Port, time.Since(start).Round(time.Millisecond))

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for client.Metrics().WatchdogAckCount.Load() == 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no watchdog acknowledge: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "watchdog acknowledged after %s\n", time.Since(start).Round(time.Millisecond))

	return nil
}
