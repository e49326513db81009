// Package display provides terminal output for wirefile.
package display

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/howmanysmall/wirefile/src/internal/core"
)

// ProgressRenderer renders receive progress and serving statistics.
type ProgressRenderer struct {
	colorEnabled bool
	width        int
}

// NewProgressRenderer creates a new progress renderer.
func NewProgressRenderer(colorEnabled bool, terminalWidth int) *ProgressRenderer {
	if terminalWidth <= 0 {
		terminalWidth = 80
	}

	return &ProgressRenderer{
		colorEnabled: colorEnabled,
		width:        terminalWidth,
	}
}

// RenderProgress renders a progress bar, or a byte counter when the size is unknown.
func (pr *ProgressRenderer) RenderProgress(progress core.Progress) string {
	speed := FormatSpeed(progress.Speed)

	if progress.Total <= 0 {
		return fmt.Sprintf("📥 %s received %s",
			pr.formatMessage(FormatBytes(progress.Current), color.FgCyan),
			speed,
		)
	}

	percentage := progress.Percentage
	if percentage > 100 {
		percentage = 100
	}

	barWidth := pr.width - 50
	if barWidth < 20 {
		barWidth = 20
	}

	filled := int(float64(barWidth) * percentage / 100)
	if filled > barWidth {
		filled = barWidth
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	return fmt.Sprintf("📥 %s %s %6.1f%% %s ETA: %s",
		bar,
		pr.formatMessage(fmt.Sprintf("%s/%s", FormatBytes(progress.Current), FormatBytes(progress.Total)), color.FgWhite),
		percentage,
		speed,
		FormatDuration(progress.ETA),
	)
}

// RenderServerStats renders the counters of a serving session.
func (pr *ProgressRenderer) RenderServerStats(stats core.ServerStats) string {
	if stats.StartTime.IsZero() {
		return ""
	}

	lines := []string{
		fmt.Sprintf("🔌 Connections: %s accepted | %s rejected",
			pr.formatMessage(fmt.Sprintf("%d", stats.ConnectionsAccepted), color.FgBlue),
			pr.formatMessage(fmt.Sprintf("%d", stats.ConnectionsRejected), color.FgYellow),
		),
		fmt.Sprintf("✅ Transfers: %s completed | ⚠️  %s failed",
			pr.formatMessage(fmt.Sprintf("%d", stats.TransfersCompleted), color.FgGreen),
			pr.formatMessage(fmt.Sprintf("%d", stats.TransfersFailed), color.FgRed),
		),
	}

	if stats.BytesTransferred > 0 {
		duration := stats.Duration
		if duration <= 0 {
			duration = time.Since(stats.StartTime)
		}

		var avg int64
		if duration > 0 {
			avg = int64(float64(stats.BytesTransferred) / duration.Seconds())
		}

		lines = append(lines, fmt.Sprintf("📊 Sent: %s in %s (avg: %s)",
			pr.formatMessage(FormatBytes(stats.BytesTransferred), color.FgCyan),
			pr.formatMessage(FormatDuration(duration), color.FgWhite),
			pr.formatMessage(FormatSpeed(avg), color.FgGreen),
		))
	}

	return strings.Join(lines, "\n")
}

// RenderErrors renders error counts per category, in category order.
func (pr *ProgressRenderer) RenderErrors(errorSummary map[core.ErrorCategory]int) string {
	if len(errorSummary) == 0 {
		return ""
	}

	categories := make([]core.ErrorCategory, 0, len(errorSummary))
	for category, count := range errorSummary {
		if count > 0 {
			categories = append(categories, category)
		}
	}

	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	lines := []string{pr.formatMessage("❌ Errors encountered:", color.FgRed)}

	for _, category := range categories {
		lines = append(lines, fmt.Sprintf("  %s %s: %s",
			errorIcon(category),
			category.String(),
			pr.formatMessage(fmt.Sprintf("%d", errorSummary[category]), color.FgWhite),
		))
	}

	return strings.Join(lines, "\n")
}

func (pr *ProgressRenderer) formatMessage(text string, colorAttr color.Attribute) string {
	return colorize(pr.colorEnabled, text, colorAttr)
}

// FormatSpeed formats transfer speed in human-readable format.
func FormatSpeed(bytesPerSecond int64) string {
	if bytesPerSecond <= 0 {
		return "-- B/s"
	}

	return humanize(bytesPerSecond, []string{"B/s", "KB/s", "MB/s", "GB/s"})
}

// FormatBytes formats byte count in human-readable format.
func FormatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}

	return humanize(bytes, []string{"B", "KB", "MB", "GB", "TB"})
}

func humanize(n int64, units []string) string {
	size := float64(n)
	unitIndex := 0

	for size >= 1024 && unitIndex < len(units)-1 {
		size /= 1024
		unitIndex++
	}

	if unitIndex == 0 {
		return fmt.Sprintf("%.0f %s", size, units[unitIndex])
	}

	return fmt.Sprintf("%.1f %s", size, units[unitIndex])
}

// FormatDuration formats duration in human-readable format.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "--"
	}

	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}

	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}

	return fmt.Sprintf("%.1fh", d.Hours())
}

func errorIcon(category core.ErrorCategory) string {
	switch category {
	case core.ErrorCategoryNetwork, core.ErrorCategoryConnectionAborted:
		return "🌐"
	case core.ErrorCategoryInvalidFile, core.ErrorCategoryFallbackReadFailure:
		return "💾"
	case core.ErrorCategoryZeroCopyLateFailure:
		return "⚠️"
	case core.ErrorCategoryConfiguration:
		return "⚙️"
	default:
		return "❓"
	}
}
