package bootstrap

import (
	"fmt"
	"strings"
	"time"
)

// StepID identifies one stage of the bootstrap sequence.
type StepID string

const (
	StepInstallDeps StepID = "install-deps"
	StepConnections StepID = "connections"
	StepCredentials StepID = "credentials"
	StepTools       StepID = "tools"
	StepAgents      StepID = "agents"
)

// Order is the fixed execution order.
var Order = []StepID{StepInstallDeps, StepConnections, StepCredentials, StepTools, StepAgents}

var titles = map[StepID]string{
	StepInstallDeps: "Installing dependencies",
	StepConnections: "Importing connections",
	StepCredentials: "Setting credentials",
	StepTools:       "Importing tools",
	StepAgents:      "Importing agents",
}

// Title is the human progress message printed before the step runs.
func (id StepID) Title() string {
	if t, ok := titles[id]; ok {
		return t
	}
	return string(id)
}

// ParseStep maps a CLI value onto a step id.
func ParseStep(value string) (StepID, error) {
	v := StepID(strings.ToLower(strings.TrimSpace(value)))
	for _, id := range Order {
		if id == v {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of %s)", ErrUnknownStep, value, strings.Join(StepNames(), ", "))
}

// StepNames lists every step id in execution order.
func StepNames() []string {
	out := make([]string, len(Order))
	for i, id := range Order {
		out[i] = string(id)
	}
	return out
}

// Status values used across Result and StepResult.
type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// StepInfo is sent to observers when a step starts.
type StepInfo struct {
	ID    StepID
	Title string
	Index int
	Total int
}

// StepResult is the outcome of a single step.
type StepResult struct {
	ID         StepID        `json:"id"`
	Title      string        `json:"title"`
	Status     Status        `json:"status"`
	Calls      int           `json:"calls"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"durationMs"`
	Reason     string        `json:"reason,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Result is the aggregate outcome of a run.
type Result struct {
	RunID  string       `json:"runId"`
	Status Status       `json:"status"`
	DryRun bool         `json:"dryRun,omitempty"`
	Steps  []StepResult `json:"steps"`
}

// Step returns the result for id, if it was recorded.
func (r *Result) Step(id StepID) (StepResult, bool) {
	if r == nil {
		return StepResult{}, false
	}
	for _, s := range r.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepResult{}, false
}

// Calls totals the external invocations made across all steps.
func (r *Result) Calls() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, s := range r.Steps {
		n += s.Calls
	}
	return n
}

// Observer receives progress events. Calls happen on the goroutine running
// the sequence, strictly in order.
type Observer interface {
	StepStarted(StepInfo)
	StepFinished(StepResult)
}

type nopObserver struct{}

func (nopObserver) StepStarted(StepInfo)    {}
func (nopObserver) StepFinished(StepResult) {}

// ObserverFuncs adapts plain functions to Observer; nil fields are ignored.
type ObserverFuncs struct {
	OnStart  func(StepInfo)
	OnFinish func(StepResult)
}

func (o ObserverFuncs) StepStarted(info StepInfo) {
	if o.OnStart != nil {
		o.OnStart(info)
	}
}

func (o ObserverFuncs) StepFinished(res StepResult) {
	if o.OnFinish != nil {
		o.OnFinish(res)
	}
}
