// Package runner executes the external programs the bootstrap sequence drives.
//
// Everything that leaves the process goes through the Runner interface so the
// sequence can be rendered without side effects (DryRun) or recorded in tests
// (Recorder).
package runner

import (
	"context"
	"fmt"
	"strings"
)

// Command is one external program invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env holds extra KEY=VALUE entries appended to the inherited environment.
	Env []string
	// Secrets are argument values that must never be printed or logged.
	Secrets []string
}

// Runner runs a command to completion.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Command) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

// String renders the command as a shell line with secrets masked.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, Quote(c.Name))
	for _, arg := range c.Redacted() {
		parts = append(parts, Quote(arg))
	}
	return strings.Join(parts, " ")
}

// Redacted returns the arguments with every secret value replaced by ***.
func (c Command) Redacted() []string {
	out := make([]string, len(c.Args))
	for i, arg := range c.Args {
		out[i] = redact(arg, c.Secrets)
	}
	return out
}

func redact(arg string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		arg = strings.ReplaceAll(arg, secret, "***")
	}
	return arg
}

// Quote single-quotes s for POSIX shells when it contains anything beyond a
// conservative safe set.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_./=:,+@%", r):
		default:
			safe = false
		}
		if !safe {
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
	Err     error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
