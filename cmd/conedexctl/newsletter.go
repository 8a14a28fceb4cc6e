package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newNewsletterCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newsletter",
		Short: "Send newsletters",
	}

	send := &cobra.Command{
		Use:   "send <newsletter-id>",
		Short: "Send a draft or scheduled newsletter now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.App().Newsletters.Send(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			opts.out.Success("newsletter %s: %s, %d recipients", n.ID, n.Status, n.RecipientCount)
			return nil
		},
	}

	dispatch := &cobra.Command{
		Use:   "dispatch",
		Short: "Send every scheduled newsletter that is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			sent, err := rt.App().Newsletters.DispatchDue(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}
			opts.out.Success("dispatched %d newsletters", sent)
			return nil
		},
	}

	cmd.AddCommand(send, dispatch)
	return cmd
}
