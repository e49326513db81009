package display

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/howmanysmall/wirefile/src/internal/core"
	"golang.org/x/term"
)

// StatsSource is what the dashboard polls. *server.Server satisfies it.
type StatsSource interface {
	Stats() core.ServerStats
	Errors() *core.ErrorHandler
	Checksum() string
}

// Dashboard redraws serving statistics in place while serve runs.
type Dashboard struct {
	renderer     *ProgressRenderer
	source       StatsSource
	out          io.Writer
	title        string
	refreshRate  time.Duration
	colorEnabled bool
	termWidth    int
	lastLines    int
}

// NewDashboard creates a dashboard on stdout. Colors and in-place redraws
// are enabled only when stdout is a terminal.
func NewDashboard(source StatsSource, title string, refreshRate time.Duration) *Dashboard {
	colorEnabled := term.IsTerminal(int(os.Stdout.Fd()))

	termWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		termWidth = 80
	}

	if refreshRate <= 0 {
		refreshRate = time.Second
	}

	return &Dashboard{
		renderer:     NewProgressRenderer(colorEnabled, termWidth),
		source:       source,
		out:          os.Stdout,
		title:        title,
		refreshRate:  refreshRate,
		colorEnabled: colorEnabled,
		termWidth:    termWidth,
	}
}

// Interactive reports whether the dashboard redraws in place.
func (d *Dashboard) Interactive() bool {
	return d.colorEnabled
}

// Run redraws until ctx ends.
func (d *Dashboard) Run(ctx context.Context) {
	ticker := time.NewTicker(d.refreshRate)
	defer ticker.Stop()

	if d.colorEnabled {
		fmt.Fprint(d.out, "\033[?25l")
		defer fmt.Fprint(d.out, "\033[?25h")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.update()
		}
	}
}

func (d *Dashboard) update() {
	d.clearLines()

	output := d.Render()
	fmt.Fprint(d.out, output)

	d.lastLines = strings.Count(output, "\n") + 1
}

// Render returns the current dashboard text.
func (d *Dashboard) Render() string {
	var lines []string

	lines = append(lines, d.formatHeader(), "")

	if sum := d.source.Checksum(); sum != "" {
		lines = append(lines, fmt.Sprintf("🔑 Checksum: %s", d.formatMessage(sum, color.FgWhite)), "")
	}

	if statsLines := d.renderer.RenderServerStats(d.source.Stats()); statsLines != "" {
		lines = append(lines, statsLines, "")
	}

	if errorLines := d.renderer.RenderErrors(d.source.Errors().GetSummary()); errorLines != "" {
		lines = append(lines, errorLines, "")
	}

	return strings.Join(lines, "\n")
}

// ShowCompletion prints the final summary once serving stops.
func (d *Dashboard) ShowCompletion() {
	d.clearLines()

	stats := d.source.Stats()

	var lines []string

	if stats.TransfersFailed == 0 {
		lines = append(lines, d.formatMessage("🎉 Serving finished", color.FgGreen))
	} else {
		lines = append(lines, d.formatMessage("⚠️  Serving finished with failed transfers", color.FgYellow))
	}

	lines = append(lines, "")

	if statsLines := d.renderer.RenderServerStats(stats); statsLines != "" {
		lines = append(lines, statsLines, "")
	}

	if errorLines := d.renderer.RenderErrors(d.source.Errors().GetSummary()); errorLines != "" {
		lines = append(lines, errorLines, "")
	}

	fmt.Fprintln(d.out, strings.Join(lines, "\n"))
}

func (d *Dashboard) formatHeader() string {
	title := "📡 " + d.title
	if !d.colorEnabled {
		title = d.title
	}

	width := d.termWidth - 1
	if width < 1 {
		width = 1
	}

	return d.formatMessage(title, color.FgCyan) + "\n" +
		d.formatMessage(strings.Repeat("─", width), color.FgBlue)
}

func (d *Dashboard) clearLines() {
	if d.lastLines > 0 && d.colorEnabled {
		fmt.Fprintf(d.out, "\033[%dA", d.lastLines)

		for i := 0; i < d.lastLines; i++ {
			fmt.Fprint(d.out, "\033[2K\033[1B")
		}

		fmt.Fprintf(d.out, "\033[%dA", d.lastLines)
	}
}

func (d *Dashboard) formatMessage(text string, colorAttr color.Attribute) string {
	return d.renderer.formatMessage(text, colorAttr)
}
