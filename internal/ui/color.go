package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	passedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

const timeFormat = "2006-01-02 15:04:05"

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "PASSED":
		return passedStyle
	case "FAILED", "ERROR":
		return failedStyle
	case "SKIPPED", "WARN":
		return skippedStyle
	}
	return faintStyle
}

// Status renders a status word in its color; an empty status reads as
// in progress.
func Status(status string) string {
	if status == "" {
		status = "IN_PROGRESS"
	}
	return statusStyle(status).Render(status)
}

func LaunchRow(w io.Writer, id, name, status string, start time.Time, nameWidth int) {
	fmt.Fprintf(w, "%s  %-*s  %s  %s\n",
		faintStyle.Render(shortID(id)), nameWidth, name, start.Local().Format(timeFormat), Status(status))
}

// TreeLine prints one item indented by depth.
func TreeLine(w io.Writer, depth int, name, itemType, status string) {
	fmt.Fprintf(w, "%s%s %s %s\n",
		strings.Repeat("  ", depth), Status(status), name, faintStyle.Render(strings.ToLower(itemType)))
}

func LaunchHeader(w io.Writer, id, name, status string) {
	fmt.Fprintf(w, "%s %s  %s\n", boldStyle.Render(name), faintStyle.Render(id), Status(status))
}

func CountLine(w io.Writer, status string, count int) {
	fmt.Fprintf(w, "  %s: %d\n", Status(status), count)
}

func LogLine(w io.Writer, id int64, at time.Time, level, message string) {
	fmt.Fprintf(w, "%s %s %s %s\n",
		faintStyle.Render(fmt.Sprintf("#%d", id)), at.Local().Format(timeFormat), statusStyle(level).Render(level), message)
}

func AttachmentLine(w io.Writer, name, mediaType string, size int) {
	if name == "" {
		name = "attachment"
	}
	fmt.Fprintf(w, "    %s %s (%s, %d bytes)\n", faintStyle.Render("+"), name, mediaType, size)
}

func SummaryLine(w io.Writer, launchID string, events int) {
	fmt.Fprintf(w, "reported %d events to launch %s\n", events, shortID(launchID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
