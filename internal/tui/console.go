package tui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/odm-bootstrap/internal/bootstrap"
)

// Console prints one progress line before each step and one after, the
// non-interactive counterpart of the progress view.
type Console struct {
	out    io.Writer
	styles Styles
}

// NewConsole writes progress to w.
func NewConsole(w io.Writer) *Console {
	return &Console{out: w, styles: NewStyles(lipgloss.NewRenderer(w))}
}

// StepStarted prints "[i/n] <title>...".
func (c *Console) StepStarted(info bootstrap.StepInfo) {
	fmt.Fprintf(c.out, "%s %s\n",
		c.styles.Detail.Render(fmt.Sprintf("[%d/%d]", info.Index+1, info.Total)),
		c.styles.Title.Render(info.Title+"..."))
}

// StepFinished prints the step outcome.
func (c *Console) StepFinished(res bootstrap.StepResult) {
	fmt.Fprintln(c.out, "  "+c.line(res))
}

// Summary prints the overall outcome.
func (c *Console) Summary(res *bootstrap.Result) {
	if res == nil {
		return
	}
	var status string
	switch res.Status {
	case bootstrap.StatusOK:
		status = c.styles.OK.Render("Bootstrap complete")
	default:
		status = c.styles.Error.Render("Bootstrap failed")
	}
	suffix := ""
	if res.DryRun {
		suffix = " (dry run)"
	}
	fmt.Fprintf(c.out, "%s%s: %d external calls\n", status, suffix, res.Calls())
}

func (c *Console) line(res bootstrap.StepResult) string {
	switch res.Status {
	case bootstrap.StatusOK:
		return c.styles.OK.Render("✓ "+string(res.ID)) + " " +
			c.styles.Detail.Render(fmt.Sprintf("%s · %s", callCount(res.Calls), res.Duration.Round(time.Millisecond)))
	case bootstrap.StatusError:
		return c.styles.Error.Render("✗ "+string(res.ID)) + " " + res.Error
	default:
		return c.styles.Skipped.Render("- "+string(res.ID)+" skipped") + " " + c.styles.Detail.Render(res.Reason)
	}
}

func callCount(n int) string {
	if n == 1 {
		return "1 call"
	}
	return fmt.Sprintf("%d calls", n)
}
