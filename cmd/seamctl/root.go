package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-seamctl/config"
	"github.com/arloliu/go-seamctl/logger"
)

// rootOptions holds the global flags of all commands.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "seamctl",
		Short: "seamctl - laser-processing control core",
		Long: `seamctl drives welding cycles from fieldbus triggers, coordinates the LWM
monitoring device and archives the inspection results.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.LogLevel == "" {
				return nil
			}
			if _, err := logger.ParseLevel(opts.LogLevel); err != nil {
				return err
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "seamctl.ini", "path to the machine configuration")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override the [log] level")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))
	cmd.AddCommand(newPingCommand(opts))
	cmd.AddCommand(newArchiveCommand(opts))

	return cmd
}

// loadConfig reads the configuration file and builds the logger it describes. Configuration
// errors found while loading are logged to w with the bootstrap logger.
func loadConfig(opts *rootOptions, w io.Writer) (*config.Store, logger.Logger, error) {
	boot := logger.NewSlog(logger.InfoLevel, false, logger.WithOutput(w))

	store, err := config.Load(opts.ConfigPath, boot)
	if err != nil {
		return nil, nil, err
	}

	lc := store.Snapshot().Log
	name := lc.Level
	if opts.LogLevel != "" {
		name = opts.LogLevel
	}
	level, err := logger.ParseLevel(name)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	l := logger.NewSlog(level, false, logger.WithOutput(w), logger.WithConsole(lc.Format == "console"))
	logger.SetLogger(l)

	return store, l, nil
}
