// Package bootstrap sequences the setup of connections, credentials, tools and
// agents on the orchestration platform.
//
// The sequence is strictly linear. Each step runs to completion before the
// next one starts, and the first failure stops the run: later steps are
// reported as skipped and never touch the platform. Nothing is retried or
// rolled back.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/odm-bootstrap/internal/config"
	"github.com/kingrea/odm-bootstrap/internal/logbook"
	"github.com/kingrea/odm-bootstrap/internal/orchestrate"
	"github.com/kingrea/odm-bootstrap/internal/yamlquery"
)

// Installer is satisfied by *pip.Installer.
type Installer interface {
	Install(ctx context.Context, requirements string) error
}

// Platform is satisfied by *orchestrate.Client.
type Platform interface {
	ImportConnection(ctx context.Context, file string) error
	SetCredentials(ctx context.Context, appID, env string, creds orchestrate.Credentials) error
	ImportTool(ctx context.Context, t orchestrate.ToolImport) error
	ImportAgent(ctx context.Context, file string) error
}

// Sequencer runs the bootstrap steps against one workspace.
type Sequencer struct {
	cfg       *config.Config
	installer Installer
	platform  Platform
	observer  Observer
	logger    *slog.Logger
	journal   *logbook.Logbook
	skip      map[StepID]string
	dryRun    bool
	now       func() time.Time
	newID     func() string
}

// Option customizes a Sequencer.
type Option func(*Sequencer)

// WithObserver routes progress events to obs.
func WithObserver(obs Observer) Option {
	return func(s *Sequencer) {
		if obs != nil {
			s.observer = obs
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithJournal records step transitions in the run journal.
func WithJournal(j *logbook.Logbook) Option {
	return func(s *Sequencer) {
		s.journal = j
	}
}

// WithSkip marks steps that must not run.
func WithSkip(ids ...StepID) Option {
	return func(s *Sequencer) {
		for _, id := range ids {
			s.skip[id] = "skipped by request"
		}
	}
}

// WithOnly skips every step except id.
func WithOnly(id StepID) Option {
	return func(s *Sequencer) {
		for _, other := range Order {
			if other != id {
				s.skip[other] = fmt.Sprintf("only %s requested", id)
			}
		}
	}
}

// WithDryRun flags the result as a dry run. Commands are rendered by the
// runner the platform and installer were built with.
func WithDryRun(dry bool) Option {
	return func(s *Sequencer) {
		s.dryRun = dry
	}
}

// New builds a sequencer for cfg.
func New(cfg *config.Config, installer Installer, platform Platform, opts ...Option) *Sequencer {
	s := &Sequencer{
		cfg:       cfg,
		installer: installer,
		platform:  platform,
		observer:  nopObserver{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		skip:      make(map[StepID]string),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes every step in Order. The returned Result is never nil; the
// error is a *StepError for the step that aborted the run.
func (s *Sequencer) Run(ctx context.Context) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	runID := s.newID()
	base := s.logger
	s.logger = base.With("run_id", runID)
	defer func() { s.logger = base }()

	result := &Result{RunID: runID, Status: StatusOK, DryRun: s.dryRun, Steps: make([]StepResult, 0, len(Order))}
	s.journal.BeginRun(fmt.Sprintf("%s workspace=%s dry-run=%t", runID, s.cfg.Workspace, s.dryRun))
	s.logger.InfoContext(ctx, "bootstrap.start", "workspace", s.cfg.Workspace, "domains", s.cfg.Domains, "dry_run", s.dryRun)

	var failure *StepError
	for idx, id := range Order {
		res := StepResult{ID: id, Title: id.Title()}

		if reason, skipped := s.skip[id]; skipped {
			res.Status, res.Reason = StatusSkipped, reason
			s.finish(ctx, res)
			result.Steps = append(result.Steps, res)
			continue
		}
		if failure != nil {
			res.Status, res.Reason = StatusSkipped, fmt.Sprintf("%s failed", failure.Step)
			s.finish(ctx, res)
			result.Steps = append(result.Steps, res)
			continue
		}

		s.observer.StepStarted(StepInfo{ID: id, Title: res.Title, Index: idx, Total: len(Order)})
		s.logger.InfoContext(ctx, "step.start", "step", id)

		started := s.now()
		calls, err := s.runStep(ctx, id)
		res.Duration = s.now().Sub(started)
		res.DurationMs = res.Duration.Milliseconds()
		res.Calls = calls
		if err != nil {
			res.Status, res.Error = StatusError, err.Error()
			failure = &StepError{Step: id, Err: err}
			result.Status = StatusError
		} else {
			res.Status = StatusOK
		}
		s.finish(ctx, res)
		result.Steps = append(result.Steps, res)
	}

	if failure != nil {
		s.logger.ErrorContext(ctx, "bootstrap.failed", "step", failure.Step, "err", failure.Err)
		return result, failure
	}
	s.logger.InfoContext(ctx, "bootstrap.done", "calls", result.Calls())
	return result, nil
}

func (s *Sequencer) finish(ctx context.Context, res StepResult) {
	switch res.Status {
	case StatusOK:
		s.logger.InfoContext(ctx, "step.done", "step", res.ID, "calls", res.Calls, "duration", res.Duration)
		s.journal.Info("%s ok (%d calls, %s)", res.ID, res.Calls, res.Duration.Round(time.Millisecond))
	case StatusError:
		s.logger.ErrorContext(ctx, "step.failed", "step", res.ID, "calls", res.Calls, "err", res.Error)
		s.journal.Error("%s error after %d calls: %s", res.ID, res.Calls, res.Error)
	case StatusSkipped:
		s.logger.InfoContext(ctx, "step.skipped", "step", res.ID, "reason", res.Reason)
		s.journal.Warn("%s skipped: %s", res.ID, res.Reason)
	}
	s.observer.StepFinished(res)
}

func (s *Sequencer) runStep(ctx context.Context, id StepID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	switch id {
	case StepInstallDeps:
		return s.installDeps(ctx)
	case StepConnections:
		return s.importConnections(ctx)
	case StepCredentials:
		return s.setCredentials(ctx)
	case StepTools:
		return s.importTools(ctx)
	case StepAgents:
		return s.importAgents(ctx)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStep, id)
	}
}

func (s *Sequencer) installDeps(ctx context.Context) (int, error) {
	if err := s.installer.Install(ctx, s.cfg.Requirements); err != nil {
		return 1, fmt.Errorf("install %s: %w", s.cfg.Requirements, err)
	}
	return 1, nil
}

func (s *Sequencer) importConnections(ctx context.Context) (int, error) {
	files, err := s.ConnectionFiles()
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		s.logger.WarnContext(ctx, "connections.none", "glob", s.cfg.Connections.Glob)
	}
	calls := 0
	for _, file := range files {
		calls++
		if err := s.platform.ImportConnection(ctx, file); err != nil {
			return calls, fmt.Errorf("import connection %s: %w", file, err)
		}
	}
	return calls, nil
}

// ConnectionFiles lists the connection definitions the connections step will
// import, workspace-relative when the glob is, in lexical order.
func (s *Sequencer) ConnectionFiles() ([]string, error) {
	pattern := s.cfg.Connections.Glob
	matches, err := filepath.Glob(s.cfg.Abs(pattern))
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", pattern, err)
	}
	// The shell never lets a wildcard match a leading dot; neither do we.
	hidden := strings.HasPrefix(filepath.Base(pattern), ".")
	files := make([]string, 0, len(matches))
	for _, match := range matches {
		if !hidden && strings.HasPrefix(filepath.Base(match), ".") {
			continue
		}
		info, err := os.Stat(match)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if !filepath.IsAbs(pattern) {
			if rel, err := filepath.Rel(s.cfg.Workspace, match); err == nil {
				match = rel
			}
		}
		files = append(files, match)
	}
	return files, nil
}

func (s *Sequencer) setCredentials(ctx context.Context) (int, error) {
	creds, err := s.Credentials()
	if err != nil {
		return 0, err
	}
	c := s.cfg.Credentials
	if err := s.platform.SetCredentials(ctx, c.AppID, c.Env, creds); err != nil {
		return 1, fmt.Errorf("set credentials on %s: %w", c.AppID, err)
	}
	return 1, nil
}

// Credentials reads the username/password pair from the credentials file.
// Absent fields come back as empty strings.
func (s *Sequencer) Credentials() (orchestrate.Credentials, error) {
	c := s.cfg.Credentials
	doc, err := yamlquery.Load(s.cfg.Abs(c.File))
	if err != nil {
		return orchestrate.Credentials{}, err
	}
	username, err := doc.Scalar(c.UsernamePath)
	if err != nil {
		return orchestrate.Credentials{}, err
	}
	password, err := doc.Scalar(c.PasswordPath)
	if err != nil {
		return orchestrate.Credentials{}, err
	}
	return orchestrate.Credentials{Username: username, Password: password}, nil
}

func (s *Sequencer) importTools(ctx context.Context) (int, error) {
	calls := 0
	for _, domain := range s.cfg.Domains {
		file := s.cfg.ToolFile(domain)
		if err := s.requireFile("tool", file); err != nil {
			return calls, err
		}
		calls++
		err := s.platform.ImportTool(ctx, orchestrate.ToolImport{
			Kind:         s.cfg.Tools.Kind,
			Requirements: s.cfg.Requirements,
			AppID:        s.cfg.Tools.AppID,
			PackageRoot:  s.cfg.ToolDir(domain),
			File:         file,
		})
		if err != nil {
			return calls, fmt.Errorf("import tool %s: %w", domain, err)
		}
	}
	return calls, nil
}

func (s *Sequencer) importAgents(ctx context.Context) (int, error) {
	calls := 0
	for _, domain := range s.cfg.Domains {
		file := s.cfg.AgentFile(domain)
		if err := s.requireFile("agent", file); err != nil {
			return calls, err
		}
		calls++
		if err := s.platform.ImportAgent(ctx, file); err != nil {
			return calls, fmt.Errorf("import agent %s: %w", domain, err)
		}
	}
	return calls, nil
}

func (s *Sequencer) requireFile(kind, rel string) error {
	info, err := os.Stat(s.cfg.Abs(rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &MissingFileError{Kind: kind, Path: rel, Err: err}
		}
		return fmt.Errorf("stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s file %s is a directory", kind, rel)
	}
	return nil
}
