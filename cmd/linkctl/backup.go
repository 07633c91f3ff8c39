package main

import (
	"encoding/base64"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Write a backup of the message store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keyFlag(cmd)
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				if path, err = filepath.Abs(args[0]); err != nil {
					return err
				}
			}
			ctx, c, done, err := connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			out, err := c.ExportBackup(ctx, path, key)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return outputJSON(cmd, out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Wrote %s\n", out["path"])
			fmt.Fprintf(w, "Outcome: %s, %v frames\n", out["outcome"], out["frames"])
			printErrors(cmd, out["errors"])
			return nil
		},
	}
	cmd.Flags().String("key", "", "base64 32-byte key to seal the backup with")
	return cmd
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Restore a backup into the message store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keyFlag(cmd)
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			ctx, c, done, err := connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			out, err := c.ImportBackup(ctx, path, key)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return outputJSON(cmd, out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Outcome: %s\n", out["outcome"])
			fmt.Fprintf(w, "Restored %v recipients, %v chats, %v chat items\n", out["recipients"], out["chats"], out["chatItems"])
			fmt.Fprintf(w, "Partial: %v  Failed: %v  Skipped: %v\n", out["partial"], out["failed"], out["skipped"])
			printErrors(cmd, out["errors"])
			return nil
		},
	}
	cmd.Flags().String("key", "", "base64 32-byte key the backup was sealed with")
	return cmd
}

func keyFlag(cmd *cobra.Command) ([]byte, error) {
	raw, _ := cmd.Flags().GetString("key")
	if raw == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("--key: %w", err)
	}
	return key, nil
}

func printErrors(cmd *cobra.Command, v any) {
	errs, _ := v.([]any)
	if len(errs) == 0 {
		return
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%d item errors:\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(w, "  %v\n", e)
	}
}
