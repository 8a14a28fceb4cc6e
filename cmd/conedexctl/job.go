package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/conedex/conedex/internal/cli"
)

func newJobCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and run the server's scheduled jobs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			tw := tabwriter.NewWriter(opts.out.Writer(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSCHEDULE\tTIMEOUT")
			for _, j := range rt.App().Scheduler.Jobs() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", j.Name, j.Schedule, j.Timeout)
			}
			return tw.Flush()
		},
	}

	run := &cobra.Command{
		Use:   "run <job-name>",
		Short: "Run one scheduled job immediately",
		Example: `  conedexctl job run analytics-rollup
  conedexctl job run quest-expiry`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			started := time.Now()
			if err := rt.App().Scheduler.RunNow(cmd.Context(), args[0]); err != nil {
				return err
			}
			opts.out.Success("%s finished in %s", args[0], cli.FormatDuration(time.Since(started)))
			return nil
		},
	}

	cmd.AddCommand(list, run)
	return cmd
}
