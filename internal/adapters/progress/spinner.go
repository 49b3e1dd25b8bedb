package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// SpinnerProgressReporter shows a spinner for the running stage and prints a
// line with its duration when the stage changes
type SpinnerProgressReporter struct {
	mu      sync.Mutex
	spinner *spinner.Spinner
	out     io.Writer

	stage     string
	message   string
	startedAt time.Time
}

// NewSpinnerProgressReporter creates a new spinner-based progress reporter
func NewSpinnerProgressReporter() *SpinnerProgressReporter {
	return newSpinnerProgressReporter(os.Stderr)
}

func newSpinnerProgressReporter(out io.Writer) *SpinnerProgressReporter {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	s.HideCursor = false
	return &SpinnerProgressReporter{spinner: s, out: out}
}

// OnProgress handles progress events
func (r *SpinnerProgressReporter) OnProgress(ctx context.Context, event usecase.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.stage {
		r.completeStageLocked()
		r.stage = event.Stage
		r.startedAt = time.Now()
	}
	r.message = event.Message

	if event.Spinner {
		r.spinner.Suffix = " " + event.Message
		if !r.spinner.Active() {
			r.spinner.Start()
		}
		return
	}
	if r.spinner.Active() {
		r.spinner.Stop()
	}
}

// Info prints an info message
func (r *SpinnerProgressReporter) Info(message string) {
	r.println(color.New(color.FgCyan), message)
}

// Error prints an error message
func (r *SpinnerProgressReporter) Error(message string) {
	r.println(color.New(color.FgRed), message)
}

// Done stops the spinner and prints the last stage
func (r *SpinnerProgressReporter) Done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completeStageLocked()
	r.stage = ""
}

func (r *SpinnerProgressReporter) println(c *color.Color, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wasActive := r.spinner.Active()
	if wasActive {
		r.spinner.Stop()
	}
	c.Fprintln(r.out, message)
	if wasActive {
		r.spinner.Start()
	}
}

// completeStageLocked prints a summary line for the current stage
func (r *SpinnerProgressReporter) completeStageLocked() {
	if r.spinner.Active() {
		r.spinner.Stop()
	}
	if r.stage == "" {
		return
	}
	elapsed := time.Since(r.startedAt).Round(time.Millisecond)
	fmt.Fprintf(r.out, "%s %s %s\n",
		color.GreenString("✓"),
		strings.TrimSpace(r.message),
		color.New(color.Faint).Sprintf("(%s)", elapsed))
}

// Ensure SpinnerProgressReporter implements ProgressSink
var _ usecase.ProgressSink = (*SpinnerProgressReporter)(nil)
