package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-seamctl/config"
	"github.com/arloliu/go-seamctl/fieldbus"
	"github.com/arloliu/go-seamctl/recipe"
)

func newCheckCommand(rootOpts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration, the signal map and the recipes",
		Long: `Check loads the machine configuration and the recipe directory without opening
any device. Every option that falls back to its default, every signal descriptor that does
not fit its register and every recipe that fails to load is reported.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}

	return cmd
}

func runCheck(opts *rootOptions, cmd *cobra.Command) error {
	store, _, err := loadConfig(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	snap := store.Snapshot()

	problems := len(store.Issues())
	for _, issue := range store.Issues() {
		fmt.Fprintln(out, "config:", issue)
	}

	problems += checkDescriptors(out, snap.Fieldbus)

	book, err := recipe.LoadDir(snap.Machine.RecipeDir)
	if err != nil {
		problems++
		fmt.Fprintln(out, "recipes:", err)
	} else {
		for _, t := range book.Types() {
			p, _ := book.Product(t)
			fmt.Fprintf(out, "recipe: product %d %q, %d seam-series\n", p.Type, p.Name, len(p.SeamSeries))
		}
	}

	if problems > 0 {
		return fmt.Errorf("%d configuration problems found", problems)
	}
	fmt.Fprintln(out, "configuration OK")

	return nil
}

// checkDescriptors reports descriptors that do not fit their device and lists the cataloged
// signals without a descriptor.
func checkDescriptors(w io.Writer, c config.Fieldbus) int {
	devices := make(map[fieldbus.DeviceID]fieldbus.Device, len(c.Devices))
	for _, dev := range c.Devices {
		devices[dev.ID] = dev
	}

	problems := 0
	mapped := make(map[fieldbus.Signal]bool, len(c.Descriptors))
	for _, d := range c.Descriptors {
		mapped[d.Signal] = true

		dev := devices[d.Device]
		size := dev.InputSize
		if d.Direction == fieldbus.Output {
			size = dev.OutputSize
		}
		if err := d.Validate(size); err != nil {
			problems++
			fmt.Fprintf(w, "signal %s: %v\n", d.Signal, err)
		}
	}

	for _, sig := range fieldbus.Signals() {
		if !mapped[sig] {
			fmt.Fprintf(w, "signal %s: not mapped, disabled\n", sig)
		}
	}
	fmt.Fprintf(w, "fieldbus: %s transport, %d devices, %d signals mapped\n", c.Transport, len(c.Devices), len(mapped))

	return problems
}
