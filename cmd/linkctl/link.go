package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/wpplink/internal/api"
	"github.com/matheus3301/wpplink/internal/status"
	"github.com/spf13/cobra"
)

func newLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Move history to a newly linked device",
	}
	cmd.AddCommand(newLinkPrimaryCmd(), newLinkSecondaryCmd())
	return cmd
}

func newLinkPrimaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "primary",
		Short: "Wait for a device to link with --token, then upload a backup for it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				return errors.New("--token is required")
			}
			ctx, c, done, err := connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			key, sessionID, err := c.StartPrimaryLink(ctx, token)
			if err != nil {
				return err
			}
			link := provisioningLink(token, key)
			w := cmd.OutOrStdout()
			if noQR, _ := cmd.Flags().GetBool("no-qr"); !noQR {
				qr, err := renderQR(link)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "Scan on the new device:")
				fmt.Fprint(w, qr)
			}
			fmt.Fprintf(w, "Provisioning link: %s\n", link)

			if wait, _ := cmd.Flags().GetBool("wait"); wait {
				return waitForSession(ctx, cmd, c, status.Primary, sessionID)
			}
			return nil
		},
	}
	cmd.Flags().String("token", "", "provisioning token of the device being linked")
	cmd.Flags().Bool("wait", false, "wait until the session finishes")
	cmd.Flags().Bool("no-qr", false, "print only the provisioning link")
	return cmd
}

func newLinkSecondaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secondary",
		Short: "Wait for the primary's backup and restore it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := secondaryKey(cmd)
			if err != nil {
				return err
			}
			ctx, c, done, err := connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			sessionID, err := c.StartSecondaryRestore(ctx, key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Waiting for backup from primary device...")
			if wait, _ := cmd.Flags().GetBool("wait"); wait {
				return waitForSession(ctx, cmd, c, status.Secondary, sessionID)
			}
			return nil
		},
	}
	cmd.Flags().String("key", "", "base64 ephemeral backup key from the primary")
	cmd.Flags().String("link", "", "provisioning link printed by 'link primary'")
	cmd.Flags().Bool("wait", true, "wait until the restore finishes")
	return cmd
}

func secondaryKey(cmd *cobra.Command) ([]byte, error) {
	if raw, _ := cmd.Flags().GetString("link"); raw != "" {
		_, key, err := parseProvisioningLink(raw)
		return key, err
	}
	raw, _ := cmd.Flags().GetString("key")
	if raw == "" {
		return nil, errors.New("--key or --link is required")
	}
	return base64.StdEncoding.DecodeString(raw)
}

// waitForSession polls the daemon until session sessionID of role is
// terminal.
func waitForSession(ctx context.Context, cmd *cobra.Command, c *api.Client, role status.Role, sessionID string) error {
	w := cmd.OutOrStdout()
	var last status.State
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		st, err := c.GetLinkStatus(ctx)
		if err != nil {
			return err
		}
		state, failure := sessionState(st, role, sessionID)
		if state != last && state != "" {
			fmt.Fprintf(w, "  %s\n", state)
			last = state
		}
		switch state {
		case status.Done:
			return nil
		case status.Failed:
			return fmt.Errorf("link failed: %v", failure)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sessionState reads the state of session sessionID from a GetLinkStatus
// reply. A snapshot of any other session reads as empty.
func sessionState(st map[string]any, role status.Role, sessionID string) (status.State, any) {
	snap, _ := st[string(role)].(map[string]any)
	if id, _ := snap["sessionId"].(string); id != sessionID {
		return "", nil
	}
	state, _ := snap["state"].(string)
	return status.State(state), snap["failure"]
}
