package runner

import (
	"context"
	"strings"
	"sync"
)

// Recorder captures every command it is asked to run. FailOn lets tests make
// a specific invocation fail.
type Recorder struct {
	mu    sync.Mutex
	calls []Command

	// FailOn is consulted for each command; a non-nil error is returned as the
	// command's result after it has been recorded.
	FailOn func(Command) error
}

// Run records cmd.
func (r *Recorder) Run(_ context.Context, cmd Command) error {
	r.mu.Lock()
	cp := cmd
	cp.Args = append([]string(nil), cmd.Args...)
	r.calls = append(r.calls, cp)
	fail := r.FailOn
	r.mu.Unlock()
	if fail != nil {
		return fail(cp)
	}
	return nil
}

// Calls returns a copy of the recorded commands in invocation order.
func (r *Recorder) Calls() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.calls...)
}

// Lines returns each recorded command as "name arg arg ..." without quoting.
func (r *Recorder) Lines() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = strings.Join(append([]string{c.Name}, c.Args...), " ")
	}
	return out
}
