package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-seamctl/archive"
)

type archiveOptions struct {
	*rootOptions
	Database string
	Limit    int
}

func newArchiveCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &archiveOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect the result archive",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "override the [archive] path")

	list := &cobra.Command{
		Use:          "list",
		Short:        "List the most recent cycles",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchiveList(opts, cmd)
		},
	}
	list.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of cycles to list")
	cmd.AddCommand(list)

	return cmd
}

func runArchiveList(opts *archiveOptions, cmd *cobra.Command) error {
	path := opts.Database
	if path == "" {
		store, _, err := loadConfig(opts.rootOptions, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		path = store.Snapshot().Archive.Path
	}

	st, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cycles, err := st.Cycles(ctx, opts.Limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tNUMBER\tSTARTED\tSTOPPED\tOK\tERRORS\tFAILED SEAMS")
	for _, c := range cycles {
		stopped := "-"
		if !c.Stopped.IsZero() {
			stopped = c.Stopped.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%v\t%#x\t%d\n",
			c.ID, c.ProductType, c.ProductNumber, c.Started.Format(time.RFC3339), stopped, c.InspectionOK, c.Errors, c.FailedSeams)
	}

	return w.Flush()
}
