package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// StatusType represents different types of status messages.
type StatusType int

// StatusType values enumerate the kinds of status messages that can be rendered.
const (
	StatusInfo StatusType = iota
	StatusSuccess
	StatusWarning
	StatusError
)

// StatusMessage represents a status message with formatting.
type StatusMessage struct {
	Type      StatusType
	Message   string
	Timestamp time.Time
	Details   string
}

// StatusRenderer renders status lines for the serve and recv commands.
type StatusRenderer struct {
	out          io.Writer
	colorEnabled bool
	showTime     bool
}

// NewStatusRenderer creates a status renderer writing to stdout.
func NewStatusRenderer(colorEnabled, showTime bool) *StatusRenderer {
	return NewStatusRendererTo(os.Stdout, colorEnabled, showTime)
}

// NewStatusRendererTo creates a status renderer writing to out.
func NewStatusRendererTo(out io.Writer, colorEnabled, showTime bool) *StatusRenderer {
	return &StatusRenderer{
		out:          out,
		colorEnabled: colorEnabled,
		showTime:     showTime,
	}
}

// RenderStatus renders a status message with appropriate formatting.
func (sr *StatusRenderer) RenderStatus(status *StatusMessage) string {
	var parts []string

	if sr.showTime {
		timestamp := status.Timestamp.Format("15:04:05")
		parts = append(parts, sr.formatMessage(fmt.Sprintf("[%s]", timestamp), color.FgWhite))
	}

	message := fmt.Sprintf("%s %s", statusIcon(status.Type), status.Message)
	parts = append(parts, sr.formatMessage(message, statusColor(status.Type)))

	result := strings.Join(parts, " ")

	if status.Details != "" {
		result += "\n" + sr.formatDetails(status.Details)
	}

	return result
}

func (sr *StatusRenderer) print(statusType StatusType, message string, details []string) {
	status := &StatusMessage{
		Type:      statusType,
		Message:   message,
		Timestamp: time.Now(),
		Details:   strings.Join(details, "\n"),
	}

	fmt.Fprintln(sr.out, sr.RenderStatus(status))
}

// PrintInfo prints an info message.
func (sr *StatusRenderer) PrintInfo(message string, details ...string) {
	sr.print(StatusInfo, message, details)
}

// PrintSuccess prints a success message.
func (sr *StatusRenderer) PrintSuccess(message string, details ...string) {
	sr.print(StatusSuccess, message, details)
}

// PrintWarning prints a warning message.
func (sr *StatusRenderer) PrintWarning(message string, details ...string) {
	sr.print(StatusWarning, message, details)
}

// PrintError prints an error message.
func (sr *StatusRenderer) PrintError(message string, details ...string) {
	sr.print(StatusError, message, details)
}

func statusIcon(statusType StatusType) string {
	switch statusType {
	case StatusInfo:
		return "ℹ️"
	case StatusSuccess:
		return "✅"
	case StatusWarning:
		return "⚠️"
	case StatusError:
		return "❌"
	default:
		return "•"
	}
}

func statusColor(statusType StatusType) color.Attribute {
	switch statusType {
	case StatusInfo:
		return color.FgCyan
	case StatusSuccess:
		return color.FgGreen
	case StatusWarning:
		return color.FgYellow
	case StatusError:
		return color.FgRed
	default:
		return color.FgWhite
	}
}

// formatMessage applies color formatting if enabled.
func (sr *StatusRenderer) formatMessage(text string, colorAttr color.Attribute) string {
	return colorize(sr.colorEnabled, text, colorAttr)
}

// formatDetails formats detail text with indentation.
func (sr *StatusRenderer) formatDetails(details string) string {
	var formattedLines []string

	for _, line := range strings.Split(details, "\n") {
		if line != "" {
			formattedLines = append(formattedLines, "  "+sr.formatMessage(line, color.FgWhite))
		}
	}

	return strings.Join(formattedLines, "\n")
}

func colorize(enabled bool, text string, colorAttr color.Attribute) string {
	if !enabled {
		return text
	}

	return color.New(colorAttr).Sprint(text)
}

// CreateBanner creates a boxed title line.
func CreateBanner(title string, colorEnabled bool) string {
	width := 60
	if len(title)+4 > width {
		width = len(title) + 4
	}

	padding := (width - len(title) - 2) / 2
	leftPad := strings.Repeat(" ", padding)
	rightPad := strings.Repeat(" ", width-len(title)-padding-2)

	topBorder := "╭" + strings.Repeat("─", width-2) + "╮"
	bottomBorder := "╰" + strings.Repeat("─", width-2) + "╯"
	titleLine := "│" + leftPad + title + rightPad + "│"

	if colorEnabled {
		topBorder = color.New(color.FgCyan).Sprint(topBorder)
		bottomBorder = color.New(color.FgCyan).Sprint(bottomBorder)
		titleLine = color.New(color.FgCyan).Sprint("│") +
			color.New(color.FgWhite, color.Bold).Sprint(leftPad+title+rightPad) +
			color.New(color.FgCyan).Sprint("│")
	}

	return strings.Join([]string{topBorder, titleLine, bottomBorder}, "\n")
}
