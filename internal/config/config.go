// internal/config/config.go
//
// This package handles configuration and the .odm-bootstrap directory.
// Every workspace that is bootstrapped gets a .odm-bootstrap/ folder for logs
// and the run journal, and may carry an odm-bootstrap.yaml next to it.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// StateDir is the name of the directory we create in each workspace
	StateDir = ".odm-bootstrap"

	// FileName is the workspace-level config file picked up automatically.
	FileName = "odm-bootstrap.yaml"

	// EnvPrefix prefixes every environment override (ODM_BOOTSTRAP_TOOLS_KIND).
	EnvPrefix = "ODM_BOOTSTRAP"
)

const defaultConfigYAML = `# odm-bootstrap configuration
# Relative paths resolve against the workspace (the directory holding this file).

binaries:
  orchestrate: orchestrate
  pip: pip

# Requirements installed before anything is imported, and shipped with every tool.
requirements: Tools/CVSH_ODM/requirements.txt

connections:
  glob: connections/*.yaml

# Credentials are read from a local YAML file and set on one connection.
credentials:
  file: dev-config.yaml
  app_id: odm
  env: draft
  username_path: .odm.credentials.USERNAME
  password_path: .odm.credentials.PASSWORD

tools:
  dir: Tools/CVSH_ODM/tools
  kind: python
  app_id: odm

agents:
  dir: Agents

domains:
  - contact_us
  - plan_benefits
  - provider_search
`

// Binaries names the external programs the sequencer drives.
type Binaries struct {
	Orchestrate string `mapstructure:"orchestrate" yaml:"orchestrate"`
	Pip         string `mapstructure:"pip" yaml:"pip"`
}

// ConnectionsConfig locates the connection definitions to import.
type ConnectionsConfig struct {
	Glob string `mapstructure:"glob" yaml:"glob"`
}

// CredentialsConfig describes where the credential pair comes from and which
// connection receives it.
type CredentialsConfig struct {
	File         string `mapstructure:"file" yaml:"file"`
	AppID        string `mapstructure:"app_id" yaml:"app_id"`
	Env          string `mapstructure:"env" yaml:"env"`
	UsernamePath string `mapstructure:"username_path" yaml:"username_path"`
	PasswordPath string `mapstructure:"password_path" yaml:"password_path"`
}

// ToolsConfig captures the tool import convention.
type ToolsConfig struct {
	Dir   string `mapstructure:"dir" yaml:"dir"`
	Kind  string `mapstructure:"kind" yaml:"kind"`
	AppID string `mapstructure:"app_id" yaml:"app_id"`
}

// AgentsConfig captures the agent import convention.
type AgentsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Config holds the runtime configuration for a bootstrap run.
type Config struct {
	// Workspace is the directory every relative path resolves against. External
	// commands run with it as their working directory.
	Workspace string `mapstructure:"workspace" yaml:"workspace"`

	Binaries     Binaries          `mapstructure:"binaries" yaml:"binaries"`
	Requirements string            `mapstructure:"requirements" yaml:"requirements"`
	Connections  ConnectionsConfig `mapstructure:"connections" yaml:"connections"`
	Credentials  CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Tools        ToolsConfig       `mapstructure:"tools" yaml:"tools"`
	Agents       AgentsConfig      `mapstructure:"agents" yaml:"agents"`
	Domains      []string          `mapstructure:"domains" yaml:"domains"`

	// Source is the config file that was read, empty when only defaults apply.
	Source string `mapstructure:"-" yaml:"-"`
}

// LoadOptions controls where Load looks and what it layers on top.
type LoadOptions struct {
	// ConfigFile is an explicit config path. When empty, FileName inside the
	// workspace is used if it exists.
	ConfigFile string
	// Workspace overrides the workspace key. Defaults to the current directory.
	Workspace string
	// Overrides are dotted key=value pairs applied last (--set).
	Overrides map[string]string
}

// Load reads config from the optional YAML file, then overlays environment
// variables with the ODM_BOOTSTRAP_ prefix (e.g. ODM_BOOTSTRAP_TOOLS_KIND),
// then explicit overrides.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	workspace, err := resolveWorkspace(opts.Workspace, v.GetString("workspace"))
	if err != nil {
		return nil, err
	}

	source := strings.TrimSpace(opts.ConfigFile)
	if source == "" {
		candidate := filepath.Join(workspace, FileName)
		if _, err := os.Stat(candidate); err == nil {
			source = candidate
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: stat %s: %w", candidate, err)
		}
	}
	if source != "" {
		v.SetConfigFile(source)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", source, err)
		}
	}

	for key, value := range opts.Overrides {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "domains" {
			v.Set(key, splitList(value))
			continue
		}
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Source = source

	// An explicit --workspace beats anything the file says; otherwise a
	// workspace key in the file is relative to the file itself.
	switch {
	case strings.TrimSpace(opts.Workspace) != "":
		cfg.Workspace = workspace
	case strings.TrimSpace(cfg.Workspace) != "" && source != "":
		cfg.Workspace = resolvePath(filepath.Dir(source), cfg.Workspace)
	default:
		cfg.Workspace = workspace
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration rooted at workspace.
func Default(workspace string) *Config {
	cfg := &Config{
		Workspace:    workspace,
		Binaries:     Binaries{Orchestrate: "orchestrate", Pip: "pip"},
		Requirements: "Tools/CVSH_ODM/requirements.txt",
		Connections:  ConnectionsConfig{Glob: "connections/*.yaml"},
		Credentials: CredentialsConfig{
			File:         "dev-config.yaml",
			AppID:        "odm",
			Env:          "draft",
			UsernamePath: ".odm.credentials.USERNAME",
			PasswordPath: ".odm.credentials.PASSWORD",
		},
		Tools:   ToolsConfig{Dir: "Tools/CVSH_ODM/tools", Kind: "python", AppID: "odm"},
		Agents:  AgentsConfig{Dir: "Agents"},
		Domains: []string{"contact_us", "plan_benefits", "provider_search"},
	}
	cfg.normalize()
	return cfg
}

func setDefaults(v *viper.Viper) {
	def := Default("")
	v.SetDefault("workspace", "")
	v.SetDefault("binaries.orchestrate", def.Binaries.Orchestrate)
	v.SetDefault("binaries.pip", def.Binaries.Pip)
	v.SetDefault("requirements", def.Requirements)
	v.SetDefault("connections.glob", def.Connections.Glob)
	v.SetDefault("credentials.file", def.Credentials.File)
	v.SetDefault("credentials.app_id", def.Credentials.AppID)
	v.SetDefault("credentials.env", def.Credentials.Env)
	v.SetDefault("credentials.username_path", def.Credentials.UsernamePath)
	v.SetDefault("credentials.password_path", def.Credentials.PasswordPath)
	v.SetDefault("tools.dir", def.Tools.Dir)
	v.SetDefault("tools.kind", def.Tools.Kind)
	v.SetDefault("tools.app_id", def.Tools.AppID)
	v.SetDefault("agents.dir", def.Agents.Dir)
	v.SetDefault("domains", def.Domains)
}

// InitStateDir creates the .odm-bootstrap directory structure in the
// workspace and writes a default odm-bootstrap.yaml when none exists.
//
// Structure created:
// .odm-bootstrap/
// ├── logs/    <- structured run logs
// └── state/   <- run journal
func InitStateDir(workspace string) error {
	stateDir := filepath.Join(workspace, StateDir)
	for _, dir := range []string{
		filepath.Join(stateDir, "logs"),
		filepath.Join(stateDir, "state"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: ensure %s: %w", dir, err)
		}
	}
	return ensureConfigFile(filepath.Join(workspace, FileName))
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.Workspace, StateDir, "logs")
}

// JournalPath returns the path of the run journal.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Workspace, StateDir, "state", "journal.log")
}

// Abs resolves a workspace-relative path.
func (c *Config) Abs(path string) string {
	return resolvePath(c.Workspace, path)
}

// ToolDir returns the workspace-relative package root for one domain's tool.
func (c *Config) ToolDir(domain string) string {
	return filepath.Join(c.Tools.Dir, domain)
}

// ToolFile returns the workspace-relative path <tools.dir>/<d>/<d>_tool.py.
func (c *Config) ToolFile(domain string) string {
	return filepath.Join(c.ToolDir(domain), domain+"_tool.py")
}

// AgentFile returns the workspace-relative path <agents.dir>/<d>_agent.yaml.
func (c *Config) AgentFile(domain string) string {
	return filepath.Join(c.Agents.Dir, domain+"_agent.yaml")
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return data, nil
}

func (c *Config) normalize() {
	c.Workspace = filepath.Clean(strings.TrimSpace(c.Workspace))
	c.Binaries.Orchestrate = strings.TrimSpace(c.Binaries.Orchestrate)
	c.Binaries.Pip = strings.TrimSpace(c.Binaries.Pip)
	c.Requirements = cleanRel(c.Requirements)
	c.Connections.Glob = cleanRel(c.Connections.Glob)
	c.Credentials.File = cleanRel(c.Credentials.File)
	c.Credentials.AppID = strings.TrimSpace(c.Credentials.AppID)
	c.Credentials.Env = strings.TrimSpace(c.Credentials.Env)
	c.Credentials.UsernamePath = strings.TrimSpace(c.Credentials.UsernamePath)
	c.Credentials.PasswordPath = strings.TrimSpace(c.Credentials.PasswordPath)
	c.Tools.Dir = cleanRel(c.Tools.Dir)
	c.Tools.Kind = strings.TrimSpace(c.Tools.Kind)
	c.Tools.AppID = strings.TrimSpace(c.Tools.AppID)
	c.Agents.Dir = cleanRel(c.Agents.Dir)
	domains := make([]string, 0, len(c.Domains))
	for _, d := range c.Domains {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	c.Domains = domains
}

func (c *Config) validate() error {
	required := []struct {
		key, value string
	}{
		{"binaries.orchestrate", c.Binaries.Orchestrate},
		{"binaries.pip", c.Binaries.Pip},
		{"requirements", c.Requirements},
		{"connections.glob", c.Connections.Glob},
		{"credentials.file", c.Credentials.File},
		{"credentials.app_id", c.Credentials.AppID},
		{"credentials.env", c.Credentials.Env},
		{"credentials.username_path", c.Credentials.UsernamePath},
		{"credentials.password_path", c.Credentials.PasswordPath},
		{"tools.dir", c.Tools.Dir},
		{"tools.kind", c.Tools.Kind},
		{"tools.app_id", c.Tools.AppID},
		{"agents.dir", c.Agents.Dir},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}
	if _, err := filepath.Match(c.Connections.Glob, ""); err != nil {
		return fmt.Errorf("connections.glob %q: %w", c.Connections.Glob, err)
	}
	if len(c.Domains) == 0 {
		return fmt.Errorf("at least one domain is required")
	}
	seen := make(map[string]struct{}, len(c.Domains))
	for i, d := range c.Domains {
		if strings.ContainsAny(d, `/\`) || d == "." || d == ".." {
			return fmt.Errorf("domains[%d]: %q is not a plain name", i, d)
		}
		if _, dup := seen[d]; dup {
			return fmt.Errorf("domains[%d]: duplicate domain %q", i, d)
		}
		seen[d] = struct{}{}
	}
	return nil
}

// ResolveWorkspace returns the absolute workspace from an explicit value, the
// ODM_BOOTSTRAP_WORKSPACE variable or the current directory, in that order.
func ResolveWorkspace(flagValue string) (string, error) {
	return resolveWorkspace(flagValue, os.Getenv(EnvPrefix+"_WORKSPACE"))
}

func resolveWorkspace(flagValue, envValue string) (string, error) {
	candidate := strings.TrimSpace(flagValue)
	if candidate == "" {
		candidate = strings.TrimSpace(envValue)
	}
	if candidate == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("config: determine working directory: %w", err)
		}
		return cwd, nil
	}
	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("config: resolve workspace %s: %w", candidate, err)
	}
	return abs, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cleanRel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	return filepath.Clean(trimmed)
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
