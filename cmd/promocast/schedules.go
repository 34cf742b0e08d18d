package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"promocast/internal/scheduler"
)

func newSchedulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Inspect and trigger scheduled batches",
	}
	cmd.AddCommand(newSchedulesListCmd())
	cmd.AddCommand(newSchedulesRunCmd())
	return cmd
}

func newSchedulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tSCHEDULE\tBATCH\tSTATE")
			for _, j := range a.Config().Schedules {
				kind := "invalid"
				if s, err := scheduler.Parse(j.Schedule); err == nil {
					kind = s.Kind.String()
				}
				state := "enabled"
				if j.Disabled {
					state = "disabled"
				}
				if j.DryMode {
					state += ",dry"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.Name, kind, j.Schedule, j.Batch, state)
			}
			return tw.Flush()
		},
	}
}

func newSchedulesRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <name>",
		Short: "Run one schedule now and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Scheduler().Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("schedule %q: %d platform(s) failed", args[0], len(res.Failed()))
			}
			return nil
		},
	}
}
