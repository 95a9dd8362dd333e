// Package orchestrate wraps the subset of the orchestration platform CLI the
// bootstrap sequence needs. It only builds argument vectors and hands them to
// a runner; the platform owns every semantic behind them.
package orchestrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/kingrea/odm-bootstrap/internal/runner"
)

// Credential keys, in the order they are passed to set-credentials.
const (
	KeyUsername = "USERNAME"
	KeyPassword = "PASSWORD"
)

// Credentials is the key/value pair set on a connection.
type Credentials struct {
	Username string
	Password string
}

// ToolImport describes one `tools import` invocation.
type ToolImport struct {
	Kind         string
	Requirements string
	AppID        string
	PackageRoot  string
	File         string
}

// Client issues orchestrate subcommands through a runner.
type Client struct {
	bin    string
	dir    string
	runner runner.Runner
}

// New returns a client invoking bin with dir as its working directory.
func New(bin, dir string, r runner.Runner) *Client {
	return &Client{bin: bin, dir: dir, runner: r}
}

// ImportConnection runs `connections import -f <file>`.
func (c *Client) ImportConnection(ctx context.Context, file string) error {
	if strings.TrimSpace(file) == "" {
		return fmt.Errorf("orchestrate: connection file is required")
	}
	return c.run(ctx, nil, "connections", "import", "-f", file)
}

// SetCredentials runs `connections set-credentials -a <app> --env <env>
// -e USERNAME=<u> -e PASSWORD=<p>`. Empty values are forwarded as-is.
func (c *Client) SetCredentials(ctx context.Context, appID, env string, creds Credentials) error {
	if strings.TrimSpace(appID) == "" {
		return fmt.Errorf("orchestrate: connection app id is required")
	}
	if strings.TrimSpace(env) == "" {
		return fmt.Errorf("orchestrate: environment is required")
	}
	args := []string{
		"connections", "set-credentials",
		"-a", appID,
		"--env", env,
		"-e", KeyUsername + "=" + creds.Username,
		"-e", KeyPassword + "=" + creds.Password,
	}
	return c.run(ctx, []string{creds.Password}, args...)
}

// ImportTool runs `tools import -k <kind> -r <requirements> -a <app> -p <root> -f <file>`.
func (c *Client) ImportTool(ctx context.Context, t ToolImport) error {
	if strings.TrimSpace(t.File) == "" {
		return fmt.Errorf("orchestrate: tool file is required")
	}
	args := []string{"tools", "import", "-k", t.Kind, "-r", t.Requirements, "-a", t.AppID}
	if t.PackageRoot != "" {
		args = append(args, "-p", t.PackageRoot)
	}
	args = append(args, "-f", t.File)
	return c.run(ctx, nil, args...)
}

// ImportAgent runs `agents import -f <file>`.
func (c *Client) ImportAgent(ctx context.Context, file string) error {
	if strings.TrimSpace(file) == "" {
		return fmt.Errorf("orchestrate: agent file is required")
	}
	return c.run(ctx, nil, "agents", "import", "-f", file)
}

func (c *Client) run(ctx context.Context, secrets []string, args ...string) error {
	return c.runner.Run(ctx, runner.Command{
		Name:    c.bin,
		Args:    args,
		Dir:     c.dir,
		Secrets: secrets,
	})
}
