package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// SpinnerState is where a spinner is in its lifecycle.
type SpinnerState int

const (
	SpinnerPending SpinnerState = iota
	SpinnerInProgress
	SpinnerSuccess
	SpinnerFailed
)

const spinnerInterval = 80 * time.Millisecond

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Spinner animates one status line while a remote operation runs. It writes
// to its own writer, normally stderr, so stdout carries only the envelope.
type Spinner struct {
	out   io.Writer
	label string

	mu      sync.Mutex
	state   SpinnerState
	started time.Time
	width   int // runes on the line, for clearing
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSpinner creates a spinner writing to out.
func NewSpinner(out io.Writer, label string) *Spinner {
	return &Spinner{out: out, label: label}
}

// Start begins the animation. Calling it twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = SpinnerInProgress
	s.started = time.Now()
	s.drawLocked(0)

	go s.loop(ctx)
}

func (s *Spinner) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for frame := 1; ; frame++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.drawLocked(frame)
			s.mu.Unlock()
		}
	}
}

// Stop halts the animation and leaves the state as it is.
func (s *Spinner) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Success stops the spinner with a check mark and the elapsed time.
func (s *Spinner) Success() {
	s.finish(SpinnerSuccess)
}

// Fail stops the spinner with a cross and the elapsed time.
func (s *Spinner) Fail() {
	s.finish(SpinnerFailed)
}

// State returns the current state.
func (s *Spinner) State() SpinnerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Spinner) finish(state SpinnerState) {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state

	symbol, style := SymbolPending, MutedStyle()
	switch state {
	case SpinnerSuccess:
		symbol, style = SymbolSuccess, SuccessStyle()
	case SpinnerFailed:
		symbol, style = SymbolFail, ErrorStyle()
	}

	s.clearLocked()
	fmt.Fprintf(s.out, "%s %s %s\n",
		style.Render(symbol),
		s.label,
		MutedStyle().Render(formatDuration(time.Since(s.started))))
}

// drawLocked renders one animation frame. Caller holds mu.
func (s *Spinner) drawLocked(frame int) {
	color := spinnerColors[(frame/2)%len(spinnerColors)]
	glyph := spinnerFrames[frame%len(spinnerFrames)]
	line := fmt.Sprintf("%s %s...", glyph, s.label)

	s.clearLocked()
	fmt.Fprint(s.out, "\r"+lipgloss.NewStyle().Foreground(color).Render(glyph)+line[len(glyph):])
	s.width = len([]rune(line))
}

// clearLocked blanks the current line. Caller holds mu.
func (s *Spinner) clearLocked() {
	if s.width == 0 {
		return
	}
	fmt.Fprint(s.out, "\r"+strings.Repeat(" ", s.width)+"\r")
	s.width = 0
}

// formatDuration formats elapsed time for display, e.g. "0.05s" or "1.2s".
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	return fmt.Sprintf("%.1fs", secs)
}
