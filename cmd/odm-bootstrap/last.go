package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/odm-bootstrap/internal/logbook"
)

func newLastCmd(opts *rootOptions) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "last",
		Short: "Show the journal of the most recent run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			journal, err := logbook.New(cfg.JournalPath())
			if err != nil {
				return err
			}

			var entries []string
			if lines > 0 {
				var total int
				entries, total = journal.Tail(lines)
				if total > len(entries) {
					fmt.Fprintf(cmd.OutOrStdout(), "... %d earlier entries\n", total-len(entries))
				}
			} else {
				entries, err = journal.LastRun()
				if err != nil {
					return fmt.Errorf("read journal: %w", err)
				}
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(entries, "\n"))
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 0, "show the last n journal entries across runs instead of the last run")
	return cmd
}
