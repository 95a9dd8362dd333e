package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kingrea/odm-bootstrap/internal/config"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the state directory and a default " + config.FileName,
		Long: `init creates .odm-bootstrap/{logs,state} in the workspace and writes a
commented default config file. An existing config file is left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			workspace, err := config.ResolveWorkspace(opts.workspace)
			if err != nil {
				return err
			}
			if err := config.InitStateDir(workspace); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", filepath.Join(workspace, config.StateDir))
			fmt.Fprintf(cmd.OutOrStdout(), "Config: %s\n", filepath.Join(workspace, config.FileName))
			return nil
		},
	}
}
