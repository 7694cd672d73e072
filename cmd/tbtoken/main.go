package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Cruz1122/thingsboard/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "tbtoken",
		Short: "Obtain and reuse ThingsBoard API tokens",
		Long: `tbtoken logs in to a ThingsBoard-style API, caches the issued JWT pair
and refreshes it before it expires. Commands share one token guard, so the
call command can drive many concurrent requests over a single login.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	config.RegisterFlags(root)
	root.PersistentFlags().StringP("output", "o", "text", "Output format: text, json or yaml")

	root.AddCommand(
		newTokenCommand(),
		newStatusCommand(),
		newInspectCommand(),
		newCallCommand(),
	)
	return root
}
