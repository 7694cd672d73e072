package main

import (
	"github.com/spf13/cobra"

	"github.com/Cruz1122/thingsboard/internal/output"
)

func newTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token",
		Long: `Print an access token that stays valid for at least the request margin.
The token is suitable for scripting, e.g. curl -H "Authorization: Bearer $(tbtoken token)".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			token, err := s.guard.EnsureValidToken(cmd.Context())
			if err != nil {
				return err
			}
			return output.PrintToken(cmd.OutOrStdout(), token, s.guard.Status(), s.format)
		},
	}
}

func newStatusCommand() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the token pair after obtaining a valid token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := s.guard.EnsureValidToken(cmd.Context()); err != nil {
				return err
			}
			if refresh {
				if err := s.guard.Refresh(cmd.Context()); err != nil {
					return err
				}
			}
			return output.PrintStatus(cmd.OutOrStdout(), s.guard.Status(), s.format)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Exchange the refresh token for a new pair before reporting")
	return cmd
}
