package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

// Terminal renders a single self-overwriting progress line. It only redraws
// when the whole-number percentage changes.
type Terminal struct {
	mu      sync.Mutex
	w       io.Writer
	bar     progress.Model
	lastPct int
}

// Verify interface implementation at compile time.
var _ Reporter = (*Terminal)(nil)

// NewTerminal creates a renderer writing to w (normally stderr).
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{
		w:       w,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		lastPct: -1,
	}
}

// Report implements Reporter.
func (t *Terminal) Report(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	frac := e.Fraction()
	pct := int(frac * 100)
	if pct <= t.lastPct {
		return
	}
	t.lastPct = pct

	_, _ = fmt.Fprintf(t.w, "\r\033[2K%s %s %s",
		labelStyle.Render(fmt.Sprintf("segment %d/%d", e.Segment+1, e.Segments)),
		t.bar.ViewAs(frac),
		mutedStyle.Render(fmt.Sprintf("%d/%d frames", e.FramesDone, e.FramesTotal)),
	)
}

// Finish replaces the progress line with a final status line.
func (t *Terminal) Finish(ok bool, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	style := okStyle
	if !ok {
		style = errStyle
	}
	_, _ = fmt.Fprintf(t.w, "\r\033[2K%s\n", style.Render(msg))
}
