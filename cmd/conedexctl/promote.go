package main

import (
	"github.com/spf13/cobra"

	"github.com/conedex/conedex/internal/app/domain/profile"
)

// The first admin cannot be created through the API, which requires an admin
// caller, so operators bootstrap it here.
func newPromoteCmd(opts *rootOptions) *cobra.Command {
	var (
		email string
		role  string
	)
	cmd := &cobra.Command{
		Use:   "promote <user-id>",
		Short: "Set a user's role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			profiles := rt.App().Profiles
			if email != "" {
				if _, err := profiles.Ensure(cmd.Context(), args[0], email); err != nil {
					return err
				}
			}
			operator := profile.Actor{ID: "conedexctl", Role: profile.RoleAdmin}
			p, err := profiles.SetRole(cmd.Context(), operator, args[0], profile.Role(role))
			if err != nil {
				return err
			}
			opts.out.Success("%s is now %s", p.ID, p.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "create the profile with this email if it does not exist")
	cmd.Flags().StringVar(&role, "role", string(profile.RoleAdmin), "role to assign")
	return cmd
}
