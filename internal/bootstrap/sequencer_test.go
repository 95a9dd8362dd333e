package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/odm-bootstrap/internal/config"
	"github.com/kingrea/odm-bootstrap/internal/logbook"
	"github.com/kingrea/odm-bootstrap/internal/orchestrate"
	"github.com/kingrea/odm-bootstrap/internal/pip"
	"github.com/kingrea/odm-bootstrap/internal/runner"
)

// --- helpers ---

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// newWorkspace lays out a complete workspace for the default config with the
// given domains.
func newWorkspace(t *testing.T, domains ...string) *config.Config {
	t.Helper()
	ws := t.TempDir()
	cfg := config.Default(ws)
	cfg.Domains = domains

	writeFile(t, ws, "Tools/CVSH_ODM/requirements.txt", "requests\n")
	writeFile(t, ws, "connections/a.yaml", "app_id: a\n")
	writeFile(t, ws, "connections/b.yaml", "app_id: b\n")
	writeFile(t, ws, "connections/notes.txt", "not a connection\n")
	writeFile(t, ws, "dev-config.yaml", "odm: {credentials: {USERNAME: \"u1\", PASSWORD: \"p1\"}}\n")
	for _, d := range domains {
		writeFile(t, ws, "Tools/CVSH_ODM/tools/"+d+"/"+d+"_tool.py", "# tool\n")
		writeFile(t, ws, "Agents/"+d+"_agent.yaml", "name: "+d+"\n")
	}
	return cfg
}

func newSequencer(cfg *config.Config, rec *runner.Recorder, opts ...Option) *Sequencer {
	inst := pip.New(cfg.Binaries.Pip, cfg.Workspace, rec)
	platform := orchestrate.New(cfg.Binaries.Orchestrate, cfg.Workspace, rec)
	return New(cfg, inst, platform, opts...)
}

func failOn(substr string, err error) func(runner.Command) error {
	return func(c runner.Command) error {
		if strings.Contains(strings.Join(append([]string{c.Name}, c.Args...), " "), substr) {
			return err
		}
		return nil
	}
}

// --- tests ---

func TestRunIssuesEveryCommandInOrder(t *testing.T) {
	cfg := newWorkspace(t, "contact_us", "plan_benefits", "provider_search")
	rec := &runner.Recorder{}

	res, err := newSequencer(cfg, rec).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)

	assert.Equal(t, []string{
		"pip install -r Tools/CVSH_ODM/requirements.txt",
		"orchestrate connections import -f connections/a.yaml",
		"orchestrate connections import -f connections/b.yaml",
		"orchestrate connections set-credentials -a odm --env draft -e USERNAME=u1 -e PASSWORD=p1",
		"orchestrate tools import -k python -r Tools/CVSH_ODM/requirements.txt -a odm -p Tools/CVSH_ODM/tools/contact_us -f Tools/CVSH_ODM/tools/contact_us/contact_us_tool.py",
		"orchestrate tools import -k python -r Tools/CVSH_ODM/requirements.txt -a odm -p Tools/CVSH_ODM/tools/plan_benefits -f Tools/CVSH_ODM/tools/plan_benefits/plan_benefits_tool.py",
		"orchestrate tools import -k python -r Tools/CVSH_ODM/requirements.txt -a odm -p Tools/CVSH_ODM/tools/provider_search -f Tools/CVSH_ODM/tools/provider_search/provider_search_tool.py",
		"orchestrate agents import -f Agents/contact_us_agent.yaml",
		"orchestrate agents import -f Agents/plan_benefits_agent.yaml",
		"orchestrate agents import -f Agents/provider_search_agent.yaml",
	}, rec.Lines())

	for _, call := range rec.Calls() {
		assert.Equal(t, cfg.Workspace, call.Dir)
	}
	require.Len(t, res.Steps, len(Order))
	wantCalls := map[StepID]int{StepInstallDeps: 1, StepConnections: 2, StepCredentials: 1, StepTools: 3, StepAgents: 3}
	for _, step := range res.Steps {
		assert.Equal(t, StatusOK, step.Status, step.ID)
		assert.Equal(t, wantCalls[step.ID], step.Calls, step.ID)
	}
	assert.Equal(t, 10, res.Calls())
}

func TestInstallFailureStopsEverything(t *testing.T) {
	cfg := newWorkspace(t, "contact_us")
	boom := errors.New("exit status 1")
	rec := &runner.Recorder{FailOn: failOn("pip install", boom)}

	res, err := newSequencer(cfg, rec).Run(context.Background())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepInstallDeps, stepErr.Step)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"pip install -r Tools/CVSH_ODM/requirements.txt"}, rec.Lines())

	assert.Equal(t, StatusError, res.Status)
	for _, step := range res.Steps[1:] {
		assert.Equal(t, StatusSkipped, step.Status, step.ID)
		assert.Equal(t, "install-deps failed", step.Reason)
		assert.Zero(t, step.Calls)
	}
}

func TestToolFailureLeavesEarlierStepsDone(t *testing.T) {
	cfg := newWorkspace(t, "a", "b", "c")
	rec := &runner.Recorder{FailOn: failOn("-f Tools/CVSH_ODM/tools/b/b_tool.py", errors.New("rejected"))}

	res, err := newSequencer(cfg, rec).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import tool b")

	tools, ok := res.Step(StepTools)
	require.True(t, ok)
	assert.Equal(t, StatusError, tools.Status)
	assert.Equal(t, 2, tools.Calls, "third tool is never attempted")

	agents, _ := res.Step(StepAgents)
	assert.Equal(t, StatusSkipped, agents.Status)
	for _, line := range rec.Lines() {
		assert.NotContains(t, line, "agents import")
		assert.NotContains(t, line, "c_tool.py")
	}
}

func TestCredentialsForwardEmptyValuesWhenAbsent(t *testing.T) {
	cfg := newWorkspace(t, "a")
	writeFile(t, cfg.Workspace, "dev-config.yaml", "odm:\n  other: true\n")
	rec := &runner.Recorder{}

	_, err := newSequencer(cfg, rec, WithOnly(StepCredentials)).Run(context.Background())
	require.NoError(t, err)

	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"-e", "USERNAME=", "-e", "PASSWORD="}, calls[0].Args[6:])
}

func TestCredentialsPassValuesVerbatim(t *testing.T) {
	cfg := newWorkspace(t, "a")
	writeFile(t, cfg.Workspace, "dev-config.yaml", "odm:\n  credentials:\n    USERNAME: \"svc user\"\n    PASSWORD: \"p=a:s s\"\n")
	rec := &runner.Recorder{}

	seq := newSequencer(cfg, rec, WithOnly(StepCredentials))
	creds, err := seq.Credentials()
	require.NoError(t, err)
	assert.Equal(t, orchestrate.Credentials{Username: "svc user", Password: "p=a:s s"}, creds)

	_, err = seq.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"-e", "USERNAME=svc user", "-e", "PASSWORD=p=a:s s"}, rec.Calls()[0].Args[6:])
}

func TestCredentialsKeepNumericLookingText(t *testing.T) {
	cfg := newWorkspace(t, "a")
	writeFile(t, cfg.Workspace, "dev-config.yaml", "odm:\n  credentials:\n    USERNAME: 007\n    PASSWORD: 0x1F\n")
	rec := &runner.Recorder{}

	_, err := newSequencer(cfg, rec, WithOnly(StepCredentials)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"-e", "USERNAME=007", "-e", "PASSWORD=0x1F"}, rec.Calls()[0].Args[6:])

	writeFile(t, cfg.Workspace, "dev-config.yaml", "odm:\n  credentials:\n    USERNAME: 1.10\n    PASSWORD: 12e3\n")
	creds, err := newSequencer(cfg, rec).Credentials()
	require.NoError(t, err)
	assert.Equal(t, orchestrate.Credentials{Username: "1.10", Password: "12e3"}, creds)
}

func TestMissingCredentialsFileFailsStep(t *testing.T) {
	cfg := newWorkspace(t, "a")
	require.NoError(t, os.Remove(cfg.Abs("dev-config.yaml")))
	rec := &runner.Recorder{}

	res, err := newSequencer(cfg, rec).Run(context.Background())
	require.Error(t, err)
	step, _ := res.Step(StepCredentials)
	assert.Equal(t, StatusError, step.Status)
	assert.Zero(t, step.Calls)
	for _, line := range rec.Lines() {
		assert.NotContains(t, line, "set-credentials")
	}
}

func TestMissingAgentFileStopsBeforeThatImport(t *testing.T) {
	cfg := newWorkspace(t, "a", "b")
	require.NoError(t, os.Remove(cfg.Abs("Agents/b_agent.yaml")))
	rec := &runner.Recorder{}

	_, err := newSequencer(cfg, rec).Run(context.Background())
	var missing *MissingFileError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "agent", missing.Kind)
	assert.Equal(t, filepath.FromSlash("Agents/b_agent.yaml"), missing.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	lines := rec.Lines()
	assert.Equal(t, "orchestrate agents import -f Agents/a_agent.yaml", lines[len(lines)-1])
}

func TestConnectionFilesOnlyMatchesGlob(t *testing.T) {
	cfg := newWorkspace(t, "a")
	require.NoError(t, os.MkdirAll(cfg.Abs("connections/dir.yaml"), 0o755))
	writeFile(t, cfg.Workspace, "other/c.yaml", "app_id: c\n")

	files, err := newSequencer(cfg, &runner.Recorder{}).ConnectionFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.FromSlash("connections/a.yaml"), filepath.FromSlash("connections/b.yaml")}, files)
}

func TestConnectionFilesSkipHiddenFiles(t *testing.T) {
	cfg := newWorkspace(t, "a")
	writeFile(t, cfg.Workspace, "connections/._a.yaml", "appledouble")
	writeFile(t, cfg.Workspace, "connections/.b.yaml.swp.yaml", "swap")

	files, err := newSequencer(cfg, &runner.Recorder{}).ConnectionFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.FromSlash("connections/a.yaml"), filepath.FromSlash("connections/b.yaml")}, files)

	cfg.Connections.Glob = filepath.FromSlash("connections/.*.yaml")
	files, err = newSequencer(cfg, &runner.Recorder{}).ConnectionFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.FromSlash("connections/._a.yaml"), filepath.FromSlash("connections/.b.yaml.swp.yaml")}, files)
}

func TestNoConnectionFilesIsNotAnError(t *testing.T) {
	cfg := newWorkspace(t, "a")
	require.NoError(t, os.RemoveAll(cfg.Abs("connections")))
	rec := &runner.Recorder{}

	res, err := newSequencer(cfg, rec, WithOnly(StepConnections)).Run(context.Background())
	require.NoError(t, err)
	step, _ := res.Step(StepConnections)
	assert.Equal(t, StatusOK, step.Status)
	assert.Zero(t, step.Calls)
	assert.Empty(t, rec.Calls())
}

func TestSkipAndOnly(t *testing.T) {
	cfg := newWorkspace(t, "a")

	rec := &runner.Recorder{}
	res, err := newSequencer(cfg, rec, WithSkip(StepInstallDeps, StepTools)).Run(context.Background())
	require.NoError(t, err)
	for _, line := range rec.Lines() {
		assert.False(t, strings.HasPrefix(line, "pip "), line)
		assert.NotContains(t, line, "tools import")
	}
	step, _ := res.Step(StepTools)
	assert.Equal(t, StatusSkipped, step.Status)
	assert.Equal(t, "skipped by request", step.Reason)

	rec = &runner.Recorder{}
	_, err = newSequencer(cfg, rec, WithOnly(StepAgents)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orchestrate agents import -f Agents/a_agent.yaml"}, rec.Lines())
}

func TestObserverSeesStepsInOrder(t *testing.T) {
	cfg := newWorkspace(t, "a")
	var events []string
	obs := ObserverFuncs{
		OnStart:  func(i StepInfo) { events = append(events, "start "+string(i.ID)) },
		OnFinish: func(r StepResult) { events = append(events, string(r.Status)+" "+string(r.ID)) },
	}
	rec := &runner.Recorder{FailOn: failOn("set-credentials", errors.New("denied"))}

	_, err := newSequencer(cfg, rec, WithObserver(obs), WithSkip(StepInstallDeps)).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{
		"skipped install-deps",
		"start connections",
		"ok connections",
		"start credentials",
		"error credentials",
		"skipped tools",
		"skipped agents",
	}, events)
}

func TestJournalRecordsRun(t *testing.T) {
	cfg := newWorkspace(t, "a")
	journal, err := logbook.New(cfg.JournalPath())
	require.NoError(t, err)

	rec := &runner.Recorder{FailOn: failOn("tools import", errors.New("nope"))}
	seq := newSequencer(cfg, rec, WithJournal(journal))
	seq.newID = func() string { return "run-1" }
	res, _ := seq.Run(context.Background())
	assert.Equal(t, "run-1", res.RunID)

	lines, err := journal.LastRun()
	require.NoError(t, err)
	require.Len(t, lines, 1+len(Order))
	assert.Contains(t, lines[0], logbook.RunMarker+" run-1 workspace=")
	assert.Contains(t, lines[1], "install-deps ok")
	assert.Contains(t, lines[4], "ERROR")
	assert.Contains(t, lines[4], "tools error after 1 calls")
	assert.Contains(t, lines[5], "agents skipped: tools failed")
}

func TestCancelledContextFailsFirstStep(t *testing.T) {
	cfg := newWorkspace(t, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &runner.Recorder{}

	res, err := newSequencer(cfg, rec).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.Calls())
	assert.Equal(t, StatusError, res.Steps[0].Status)
}

func TestParseStep(t *testing.T) {
	id, err := ParseStep(" Tools ")
	require.NoError(t, err)
	assert.Equal(t, StepTools, id)

	_, err = ParseStep("deploy")
	assert.ErrorIs(t, err, ErrUnknownStep)
	assert.Contains(t, err.Error(), "install-deps, connections, credentials, tools, agents")
}
