package runner

import (
	"context"
	"fmt"
	"io"
)

// DryRun prints each command instead of running it.
type DryRun struct {
	Out io.Writer
	// Workdir is the directory the caller already announced; commands running
	// there are printed without a cd prefix.
	Workdir string
}

// Run writes "$ <command>" and reports success.
func (d DryRun) Run(_ context.Context, c Command) error {
	if d.Out == nil {
		return nil
	}
	prefix := "$ "
	if c.Dir != "" && c.Dir != d.Workdir {
		prefix = fmt.Sprintf("(cd %s) $ ", Quote(c.Dir))
	}
	_, err := fmt.Fprintln(d.Out, prefix+c.String())
	return err
}
