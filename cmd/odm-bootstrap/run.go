package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/odm-bootstrap/internal/bootstrap"
	"github.com/kingrea/odm-bootstrap/internal/config"
	"github.com/kingrea/odm-bootstrap/internal/logbook"
	"github.com/kingrea/odm-bootstrap/internal/logging"
	"github.com/kingrea/odm-bootstrap/internal/orchestrate"
	"github.com/kingrea/odm-bootstrap/internal/pip"
	"github.com/kingrea/odm-bootstrap/internal/runner"
	"github.com/kingrea/odm-bootstrap/internal/tui"
)

// commandsLog receives child process output while the progress view owns the
// terminal.
const commandsLog = "commands.log"

type runFlags struct {
	dryRun bool
	asJSON bool
	tui    bool
	skip   []string
	only   string
}

func addRunFlags(cmd *cobra.Command, flags *runFlags) {
	f := cmd.Flags()
	f.BoolVar(&flags.dryRun, "dry-run", false, "print the commands instead of running them")
	f.BoolVar(&flags.asJSON, "json", false, "print the run result as JSON on stdout")
	f.BoolVar(&flags.tui, "tui", false, "show an interactive progress view")
	f.StringSliceVar(&flags.skip, "skip", nil, "steps to skip ("+strings.Join(bootstrap.StepNames(), ", ")+")")
	f.StringVar(&flags.only, "only", "", "run a single step")
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bootstrap sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBootstrap(cmd, opts, flags)
		},
	}
	addRunFlags(cmd, &flags)
	return cmd
}

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the commands a run would execute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.dryRun = true
			return runBootstrap(cmd, opts, flags)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&flags.skip, "skip", nil, "steps to leave out of the plan")
	f.StringVar(&flags.only, "only", "", "plan a single step")
	return cmd
}

func (f runFlags) validate() error {
	switch {
	case f.tui && f.dryRun:
		return errors.New("--tui cannot be combined with --dry-run")
	case f.tui && f.asJSON:
		return errors.New("--tui cannot be combined with --json")
	case f.only != "" && len(f.skip) > 0:
		return errors.New("--only and --skip are mutually exclusive")
	}
	return nil
}

func (f runFlags) stepOptions() ([]bootstrap.Option, error) {
	var opts []bootstrap.Option
	if f.only != "" {
		id, err := bootstrap.ParseStep(f.only)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bootstrap.WithOnly(id))
	}
	for _, name := range f.skip {
		id, err := bootstrap.ParseStep(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bootstrap.WithSkip(id))
	}
	return opts, nil
}

func runBootstrap(cmd *cobra.Command, opts *rootOptions, flags runFlags) error {
	if err := flags.validate(); err != nil {
		return err
	}
	stepOpts, err := flags.stepOptions()
	if err != nil {
		return err
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()
	progress := stdout
	if flags.asJSON {
		progress = stderr
	}

	logger := opts.openLogger(cfg, stderr)
	defer logger.Close()

	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		logger.Warn("journal.unavailable", "path", cfg.JournalPath(), "err", err)
	}

	r, closeRunner, err := opts.buildRunner(cfg, flags, progress, stderr, logger)
	if err != nil {
		return err
	}
	defer closeRunner()

	stepOpts = append(stepOpts,
		bootstrap.WithLogger(logger.Logger),
		bootstrap.WithJournal(journal),
		bootstrap.WithDryRun(flags.dryRun),
	)
	installer := pip.New(cfg.Binaries.Pip, cfg.Workspace, r)
	platform := orchestrate.New(cfg.Binaries.Orchestrate, cfg.Workspace, r)
	sequence := func(ctx context.Context, obs bootstrap.Observer) (*bootstrap.Result, error) {
		seq := bootstrap.New(cfg, installer, platform, append(stepOpts, bootstrap.WithObserver(obs))...)
		return seq.Run(ctx)
	}

	var (
		res    *bootstrap.Result
		runErr error
	)
	if flags.tui {
		res, runErr = tui.Run(cmd.Context(), sequence, journal)
	} else {
		console := tui.NewConsole(progress)
		if flags.dryRun {
			fmt.Fprintf(progress, "# workspace: %s\n", cfg.Workspace)
		}
		res, runErr = sequence(cmd.Context(), console)
		console.Summary(res)
	}

	if flags.asJSON && res != nil {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}
	return runErr
}

// buildRunner picks how commands are executed: printed for dry runs, or run
// for real with output going to the terminal or, under the progress view, to
// the commands log.
func (o *rootOptions) buildRunner(cfg *config.Config, flags runFlags, progress, stderr io.Writer, logger *logging.Logger) (runner.Runner, func(), error) {
	switch {
	case flags.dryRun:
		return runner.DryRun{Out: progress, Workdir: cfg.Workspace}, func() {}, nil
	case flags.tui:
		path := filepath.Join(cfg.LogsDir(), commandsLog)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("ensure logs dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", path, err)
		}
		return o.newRunner(f, f, logger.Logger), func() { _ = f.Close() }, nil
	default:
		return o.newRunner(progress, stderr, logger.Logger), func() {}, nil
	}
}
