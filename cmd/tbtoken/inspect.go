package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Cruz1122/thingsboard/internal/auth"
	"github.com/Cruz1122/thingsboard/internal/output"
)

// maxTokenBytes bounds what inspect reads from stdin.
const maxTokenBytes = 64 * 1024

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <token|->",
		Short: "Decode the timestamps of a JWT without contacting the server",
		Long: `Decode the issued-at and expiry claims of a JWT. The signature is not
verified. Pass - to read the token from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			token := args[0]
			if token == "-" {
				raw, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxTokenBytes))
				if err != nil {
					return fmt.Errorf("read token: %w", err)
				}
				token = string(raw)
			}
			token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
			if token == "" {
				return errors.New("token is empty")
			}

			issuedAt, expiresAt, err := auth.Claims(token)
			if err != nil {
				return err
			}
			return output.PrintClaims(cmd.OutOrStdout(), output.NewTokenClaims(issuedAt, expiresAt, time.Now()), format)
		},
	}
}
