package ui

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/remoteops/internal/tools"
)

var exitCodeLine = regexp.MustCompile(`(?m)^exit_code: (-?\d+)$`)

// RenderEnvelope formats an envelope for a terminal: a status line, then the
// envelope text in a bordered box no wider than width.
func RenderEnvelope(op tools.Operation, env tools.Envelope, width int) string {
	text := strings.TrimRight(env.Text(), "\n")

	if env.IsError {
		return ErrorStyle().Render(SymbolFail+" "+text) + "\n"
	}

	status := SuccessStyle().Render(SymbolSuccess)
	title := HeaderStyle().Render(string(op))
	if code, ok := ExitCode(text); ok && code != 0 {
		status = lipgloss.NewStyle().Foreground(ColorWarning).Render(SymbolFail)
		title += MutedStyle().Render(fmt.Sprintf(" (exit %d)", code))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorMuted).
		Padding(0, 1)
	if width > 4 {
		box = box.MaxWidth(width)
	}

	return fmt.Sprintf("%s %s\n%s\n", status, title, box.Render(text))
}

// ExitCode extracts the exit status from command envelope text.
func ExitCode(text string) (int, bool) {
	m := exitCodeLine.FindAllStringSubmatch(text, -1)
	if len(m) == 0 {
		return 0, false
	}
	code, err := strconv.Atoi(m[len(m)-1][1])
	if err != nil {
		return 0, false
	}
	return code, true
}
