package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/codebench/internal/version"
)

func newVersionCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintln(out, info.String()); err != nil {
				return err
			}
			if !verbose {
				return nil
			}
			if info.Revision != "" {
				fmt.Fprintf(out, "revision: %s (modified: %t)\n", info.Revision, info.Modified)
			}
			if !info.Committed.IsZero() {
				fmt.Fprintf(out, "committed: %s\n", info.Committed.Format(time.RFC3339))
			}
			if info.GoVersion != "" {
				fmt.Fprintf(out, "go: %s\n", info.GoVersion)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include build details")
	return cmd
}
