package pip

import (
	"context"
	"fmt"
	"strings"

	"github.com/kingrea/odm-bootstrap/internal/runner"
)

// Installer installs Python requirements with pip.
type Installer struct {
	bin    string
	dir    string
	runner runner.Runner
}

// New returns an installer invoking bin (usually "pip") from dir.
func New(bin, dir string, r runner.Runner) *Installer {
	return &Installer{bin: bin, dir: dir, runner: r}
}

// Install runs `<pip> install -r <requirements>`.
func (i *Installer) Install(ctx context.Context, requirements string) error {
	if strings.TrimSpace(requirements) == "" {
		return fmt.Errorf("pip: requirements file is required")
	}
	return i.runner.Run(ctx, runner.Command{
		Name: i.bin,
		Args: []string{"install", "-r", requirements},
		Dir:  i.dir,
	})
}
