package main

import (
	"fmt"
	"time"

	"github.com/matheus3301/wpplink/internal/status"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show link sessions, backup checkpoints and recent history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, c, done, err := connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			st, err := c.GetLinkStatus(ctx)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return outputJSON(cmd, st)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Session: %v\n", st["session"])
			for _, role := range []status.Role{status.Primary, status.Secondary} {
				snap, ok := st[string(role)].(map[string]any)
				if !ok {
					continue
				}
				fmt.Fprintf(w, "%-10s %v (%v)", string(role)+":", snap["state"], snap["sessionId"])
				if f, ok := snap["failure"]; ok {
					fmt.Fprintf(w, " %v", f)
				}
				fmt.Fprintln(w)
			}
			if v, ok := st["lastExport"]; ok {
				fmt.Fprintf(w, "Last export: %v\n", v)
			}
			if v, ok := st["lastImport"]; ok {
				fmt.Fprintf(w, "Last import: %v\n", v)
			}
			if history, ok := st["history"].([]any); ok {
				fmt.Fprintln(w, "History:")
				for _, h := range history {
					e, _ := h.(map[string]any)
					at, _ := e["at"].(float64)
					fmt.Fprintf(w, "  %s  %-20v %-10v %v\n",
						time.UnixMilli(int64(at)).Format(time.DateTime), e["kind"], e["outcome"], e["detail"])
				}
			}
			return nil
		},
	}
}
