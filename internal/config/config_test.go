package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: t.Parallel() is intentionally omitted in this package.
// These tests share process-global environment variables.

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	ws := t.TempDir()
	cfg, err := Load(LoadOptions{Workspace: ws})
	require.NoError(t, err)

	assert.Equal(t, ws, cfg.Workspace)
	assert.Empty(t, cfg.Source)
	assert.Equal(t, "orchestrate", cfg.Binaries.Orchestrate)
	assert.Equal(t, "pip", cfg.Binaries.Pip)
	assert.Equal(t, filepath.FromSlash("Tools/CVSH_ODM/requirements.txt"), cfg.Requirements)
	assert.Equal(t, filepath.FromSlash("connections/*.yaml"), cfg.Connections.Glob)
	assert.Equal(t, "dev-config.yaml", cfg.Credentials.File)
	assert.Equal(t, "odm", cfg.Credentials.AppID)
	assert.Equal(t, "draft", cfg.Credentials.Env)
	assert.Equal(t, ".odm.credentials.USERNAME", cfg.Credentials.UsernamePath)
	assert.Equal(t, ".odm.credentials.PASSWORD", cfg.Credentials.PasswordPath)
	assert.Equal(t, "python", cfg.Tools.Kind)
	assert.Equal(t, []string{"contact_us", "plan_benefits", "provider_search"}, cfg.Domains)
}

func TestLoadPicksUpWorkspaceFile(t *testing.T) {
	ws := t.TempDir()
	body := strings.TrimSpace(`
credentials:
  env: live
tools:
  kind: python
domains:
  - claims
  - eligibility
`)
	require.NoError(t, os.WriteFile(filepath.Join(ws, FileName), []byte(body), 0o644))

	cfg, err := Load(LoadOptions{Workspace: ws})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(ws, FileName), cfg.Source)
	assert.Equal(t, "live", cfg.Credentials.Env)
	assert.Equal(t, "odm", cfg.Credentials.AppID, "unset keys keep their defaults")
	assert.Equal(t, []string{"claims", "eligibility"}, cfg.Domains)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ODM_BOOTSTRAP_BINARIES_PIP", "pip3")
	t.Setenv("ODM_BOOTSTRAP_CREDENTIALS_APP_ID", "odm-prod")

	cfg, err := Load(LoadOptions{Workspace: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, "pip3", cfg.Binaries.Pip)
	assert.Equal(t, "odm-prod", cfg.Credentials.AppID)
}

func TestLoadOverridesWin(t *testing.T) {
	t.Setenv("ODM_BOOTSTRAP_TOOLS_KIND", "openapi")

	cfg, err := Load(LoadOptions{
		Workspace: t.TempDir(),
		Overrides: map[string]string{
			"tools.kind": "python",
			"domains":    "a, b ,c",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "python", cfg.Tools.Kind)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Domains)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	_, err := Load(LoadOptions{Workspace: t.TempDir(), ConfigFile: "/nonexistent/odm-bootstrap.yaml"})
	assert.Error(t, err)
}

func TestLoadWorkspaceKeyRelativeToFile(t *testing.T) {
	root := t.TempDir()
	cfgDir := filepath.Join(root, "ops")
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	path := filepath.Join(cfgDir, "bootstrap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workspace: ..\n"), 0o644))

	cfg, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Workspace)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name      string
		overrides map[string]string
		want      string
	}{
		{"empty binary", map[string]string{"binaries.orchestrate": " "}, "binaries.orchestrate is required"},
		{"no domains", map[string]string{"domains": " , "}, "at least one domain"},
		{"duplicate domain", map[string]string{"domains": "a,a"}, "duplicate domain"},
		{"path in domain", map[string]string{"domains": "a/b"}, "not a plain name"},
		{"bad glob", map[string]string{"connections.glob": "connections/[.yaml"}, "connections.glob"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(LoadOptions{Workspace: t.TempDir(), Overrides: tc.overrides})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestInitStateDirWritesLoadableDefaults(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, InitStateDir(ws))

	for _, dir := range []string{"logs", "state"} {
		info, err := os.Stat(filepath.Join(ws, StateDir, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	cfg, err := Load(LoadOptions{Workspace: ws})
	require.NoError(t, err)
	want := Default(ws)
	want.Source = filepath.Join(ws, FileName)
	assert.Equal(t, want, cfg)
}

func TestInitStateDirKeepsExistingFile(t *testing.T) {
	ws := t.TempDir()
	path := filepath.Join(ws, FileName)
	require.NoError(t, os.WriteFile(path, []byte("domains: [x]\n"), 0o644))
	require.NoError(t, InitStateDir(ws))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "domains: [x]\n", string(data))
}

func TestPathHelpers(t *testing.T) {
	cfg := Default("/ws")
	assert.Equal(t, filepath.FromSlash("Tools/CVSH_ODM/tools/claims/claims_tool.py"), cfg.ToolFile("claims"))
	assert.Equal(t, filepath.FromSlash("Tools/CVSH_ODM/tools/claims"), cfg.ToolDir("claims"))
	assert.Equal(t, filepath.FromSlash("Agents/claims_agent.yaml"), cfg.AgentFile("claims"))
	assert.Equal(t, filepath.FromSlash("/ws/dev-config.yaml"), cfg.Abs("dev-config.yaml"))
	assert.Equal(t, filepath.FromSlash("/etc/odm.yaml"), cfg.Abs("/etc/odm.yaml"))
	assert.Equal(t, filepath.FromSlash("/ws/.odm-bootstrap/state/journal.log"), cfg.JournalPath())
}

func TestYAMLRendersEffectiveConfig(t *testing.T) {
	data, err := Default("/ws").YAML()
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "orchestrate: orchestrate")
	assert.Contains(t, out, "- provider_search")
	assert.NotContains(t, out, "source")
}
