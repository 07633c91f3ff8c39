package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/wpplink/internal/api"
	"github.com/matheus3301/wpplink/internal/session"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "linkctl",
		Short:         "Control a wpplink daemon: backups and device linking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("session", "", "session name (overrides config default)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")
	cmd.PersistentFlags().Duration("timeout", 5*time.Minute, "request timeout")

	cmd.AddCommand(
		newExportCmd(),
		newImportCmd(),
		newLinkCmd(),
		newStatusCmd(),
		newConfigCmd(),
	)
	return cmd
}

// connect resolves the session and dials its daemon. The returned cleanup
// closes the connection and cancels the context.
func connect(cmd *cobra.Command) (context.Context, *api.Client, func(), error) {
	flag, _ := cmd.Flags().GetString("session")
	sessionName, err := session.Resolve(flag)
	if err != nil {
		return nil, nil, nil, err
	}
	conn, err := api.Dial(session.SocketPath(sessionName))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("cannot connect to daemon for session %q: %w", sessionName, err)
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return ctx, api.NewClient(conn), func() {
		cancel()
		_ = conn.Close()
	}, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func outputJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
