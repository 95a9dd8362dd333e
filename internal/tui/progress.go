// internal/tui/progress.go
//
// Live progress view for a bootstrap run. It follows The Elm Architecture
// like every bubbletea program: the sequence runs on its own goroutine and
// reports through messages, Update folds them into the model, View renders.

package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/odm-bootstrap/internal/bootstrap"
	"github.com/kingrea/odm-bootstrap/internal/logbook"
)

const journalLines = 6

// rowState tracks one step in the view.
type rowState int

const (
	rowPending rowState = iota
	rowRunning
	rowDone
)

type row struct {
	id     bootstrap.StepID
	title  string
	state  rowState
	result bootstrap.StepResult
}

// Messages sent from the sequence goroutine.
type (
	stepStartedMsg  bootstrap.StepInfo
	stepFinishedMsg bootstrap.StepResult
	runDoneMsg      struct {
		result *bootstrap.Result
		err    error
	}
)

// Model is the bubbletea model for the progress view.
type Model struct {
	spinner     spinner.Model
	styles      Styles
	rows        []row
	journal     *logbook.Logbook
	cancel      context.CancelFunc
	started     time.Time
	elapsed     time.Duration
	done        bool
	interrupted bool
	result      *bootstrap.Result
	err         error
}

// NewModel builds the view with every step pending. cancel is called when the
// user aborts; journal, if set, is tailed under the summary once the run ends.
func NewModel(cancel context.CancelFunc, journal *logbook.Logbook) Model {
	rows := make([]row, len(bootstrap.Order))
	for i, id := range bootstrap.Order {
		rows[i] = row{id: id, title: id.Title()}
	}
	return Model{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		styles:  NewStyles(nil),
		rows:    rows,
		journal: journal,
		cancel:  cancel,
		started: time.Now(),
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update folds progress messages and key presses into the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.done {
				m.interrupted = true
				if m.cancel != nil {
					m.cancel()
				}
			}
			return m, tea.Quit
		}
	case stepStartedMsg:
		if r := m.row(msg.ID); r != nil {
			r.state = rowRunning
		}
	case stepFinishedMsg:
		if r := m.row(msg.ID); r != nil {
			r.state = rowDone
			r.result = bootstrap.StepResult(msg)
		}
	case runDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		m.elapsed = time.Since(m.started)
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) row(id bootstrap.StepID) *row {
	for i := range m.rows {
		if m.rows[i].id == id {
			return &m.rows[i]
		}
	}
	return nil
}

// View renders the step list, then either a key hint or the summary.
func (m Model) View() string {
	lines := []string{m.styles.Header.Render("⬡ ODM BOOTSTRAP")}
	for _, r := range m.rows {
		lines = append(lines, m.renderRow(r))
	}

	var footer string
	switch {
	case m.interrupted:
		footer = m.styles.Error.Render("Aborted. Waiting for the running command to stop...")
	case !m.done:
		footer = m.styles.Footer.Render("ctrl+c to abort")
	case m.err != nil:
		footer = m.styles.Footer.Render(m.styles.Error.Render("Bootstrap failed: ") + m.err.Error())
	default:
		footer = m.styles.Footer.Render(m.styles.OK.Render("Bootstrap complete") +
			fmt.Sprintf(" · %d external calls · %s", m.result.Calls(), m.elapsed.Round(time.Millisecond)))
	}
	lines = append(lines, footer)

	if m.done {
		if panel := m.renderJournal(); panel != "" {
			lines = append(lines, panel)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n"
}

func (m Model) renderRow(r row) string {
	switch r.state {
	case rowRunning:
		return fmt.Sprintf("%s %s...", m.spinner.View(), m.styles.Title.Render(r.title))
	case rowDone:
		res := r.result
		switch res.Status {
		case bootstrap.StatusOK:
			return m.styles.OK.Render("✓ "+r.title) + " " +
				m.styles.Detail.Render(fmt.Sprintf("%s · %s", callCount(res.Calls), res.Duration.Round(time.Millisecond)))
		case bootstrap.StatusError:
			return m.styles.Error.Render("✗ "+r.title) + " " + m.styles.Detail.Render(res.Error)
		default:
			return m.styles.Skipped.Render("- "+r.title) + " " + m.styles.Detail.Render(res.Reason)
		}
	default:
		return m.styles.Pending.Render("· " + r.title)
	}
}

func (m Model) renderJournal() string {
	if m.journal == nil {
		return ""
	}
	lines, _ := m.journal.Tail(journalLines)
	if len(lines) == 0 {
		return ""
	}
	name := filepath.Base(m.journal.Path())
	if name == "." || name == "" {
		name = "journal"
	}
	head := m.styles.LogHead.Render(fmt.Sprintf("LOG · %s", name))
	body := m.styles.LogBody.Render(strings.Join(lines, "\n"))
	return m.styles.LogBox.Render(head + "\n" + body)
}

// RunFunc executes the sequence, reporting progress to obs.
type RunFunc func(ctx context.Context, obs bootstrap.Observer) (*bootstrap.Result, error)

// Run drives run under the progress view and returns its outcome once both
// the sequence and the program have finished.
func Run(ctx context.Context, run RunFunc, journal *logbook.Logbook, opts ...tea.ProgramOption) (*bootstrap.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(cancel, journal), opts...)
	outcome := make(chan runDoneMsg, 1)
	go func() {
		res, err := run(ctx, programObserver{p: p})
		msg := runDoneMsg{result: res, err: err}
		outcome <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-outcome
		return nil, fmt.Errorf("tui: %w", err)
	}
	msg := <-outcome
	return msg.result, msg.err
}

// programObserver forwards sequencer events into the running program.
type programObserver struct {
	p *tea.Program
}

func (o programObserver) StepStarted(info bootstrap.StepInfo) {
	o.p.Send(stepStartedMsg(info))
}

func (o programObserver) StepFinished(res bootstrap.StepResult) {
	o.p.Send(stepFinishedMsg(res))
}
