package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kingrea/odm-bootstrap/internal/config"
	"github.com/kingrea/odm-bootstrap/internal/logging"
	"github.com/kingrea/odm-bootstrap/internal/runner"
)

// rootOptions carries the persistent flags plus the seams tests replace.
type rootOptions struct {
	configFile string
	workspace  string
	logLevel   string
	sets       keyValueFlag

	// newRunner builds the runner for real (non dry-run) invocations.
	newRunner func(stdout, stderr io.Writer, logger *slog.Logger) runner.Runner
}

func defaultOptions() *rootOptions {
	return &rootOptions{
		logLevel: "info",
		newRunner: func(stdout, stderr io.Writer, logger *slog.Logger) runner.Runner {
			return runner.NewExecRunner(stdout, stderr, logger)
		},
	}
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "odm-bootstrap",
		Short: "Bootstrap ODM connections, credentials, tools and agents into orchestrate",
		Long: `odm-bootstrap installs the tool requirements, then imports connections,
sets the ODM credentials, imports one tool and one agent per domain.

Run it from the workspace root (or pass --workspace). Without a subcommand it
behaves like "odm-bootstrap run".`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBootstrap(cmd, opts, flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "config file (default <workspace>/"+config.FileName+")")
	pf.StringVarP(&opts.workspace, "workspace", "w", "", "workspace directory (default current directory)")
	pf.StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level for "+config.StateDir+"/logs/bootstrap.log (debug|info|warn|error)")
	pf.Var(&opts.sets, "set", "override a config key (repeatable), e.g. --set credentials.env=live")

	addRunFlags(cmd, &flags)

	cmd.AddCommand(
		newRunCmd(opts),
		newPlanCmd(opts),
		newInitCmd(opts),
		newLastCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(config.LoadOptions{
		ConfigFile: o.configFile,
		Workspace:  o.workspace,
		Overrides:  o.sets,
	})
}

// openLogger falls back to a discarding logger so an unwritable state
// directory never blocks a run.
func (o *rootOptions) openLogger(cfg *config.Config, stderr io.Writer) *logging.Logger {
	logger, err := logging.New(cfg.Workspace, o.logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "warning: %v (continuing without a log file)\n", err)
		return logging.Discard()
	}
	return logger
}
