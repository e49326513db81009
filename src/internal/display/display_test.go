package display

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/howmanysmall/wirefile/src/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{in: 0, want: "0 B"},
		{in: 512, want: "512 B"},
		{in: 1536, want: "1.5 KB"},
		{in: 3 << 20, want: "3.0 MB"},
		{in: 5 << 40, want: "5.0 TB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}

	assert.Equal(t, "-- B/s", FormatSpeed(0))
	assert.Equal(t, "2.0 MB/s", FormatSpeed(2<<20))
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "--", FormatDuration(0))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "1.5m", FormatDuration(90*time.Second))
	assert.Equal(t, "2.0h", FormatDuration(2*time.Hour))
}

func TestRenderProgress(t *testing.T) {
	t.Parallel()

	pr := NewProgressRenderer(false, 80)

	unknown := pr.RenderProgress(core.Progress{Current: 2048})
	assert.Contains(t, unknown, "2.0 KB received")

	half := pr.RenderProgress(core.Progress{Current: 512, Total: 1024, Percentage: 50, Speed: 100})
	assert.Contains(t, half, "512 B/1.0 KB")
	assert.Contains(t, half, "50.0%")
	assert.Equal(t, 15, strings.Count(half, "█"))
	assert.Equal(t, 15, strings.Count(half, "░"))
}

func TestRenderErrorsOrdered(t *testing.T) {
	t.Parallel()

	pr := NewProgressRenderer(false, 80)

	assert.Empty(t, pr.RenderErrors(nil))

	out := pr.RenderErrors(map[core.ErrorCategory]int{
		core.ErrorCategoryNetwork:             2,
		core.ErrorCategoryInvalidFile:         1,
		core.ErrorCategoryZeroCopyLateFailure: 3,
		core.ErrorCategoryFallbackReadFailure: 0,
	})

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "InvalidFile: 1")
	assert.Contains(t, lines[2], "ZeroCopyLateFailure: 3")
	assert.Contains(t, lines[3], "Network: 2")
}

func TestStatusRendererPlain(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	sr := NewStatusRendererTo(&buf, false, false)
	sr.PrintSuccess("Received", "1.0 MB", "", "blake3 abc")
	sr.PrintError("Failed")

	assert.Equal(t, "✅ Received\n  1.0 MB\n  blake3 abc\n❌ Failed\n", buf.String())

	banner := CreateBanner("wirefile", false)
	assert.Len(t, strings.Split(banner, "\n"), 3)
	assert.Contains(t, banner, "wirefile")
}

type fakeSource struct {
	stats    core.ServerStats
	errors   *core.ErrorHandler
	checksum string
}

func (f *fakeSource) Stats() core.ServerStats    { return f.stats }
func (f *fakeSource) Errors() *core.ErrorHandler { return f.errors }
func (f *fakeSource) Checksum() string           { return f.checksum }

func TestDashboardRender(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		stats: core.ServerStats{
			StartTime:           time.Now().Add(-2 * time.Second),
			Duration:            2 * time.Second,
			ConnectionsAccepted: 3,
			ConnectionsRejected: 1,
			TransfersCompleted:  2,
			TransfersFailed:     1,
			BytesTransferred:    4 << 20,
		},
		errors:   core.NewErrorHandler(10),
		checksum: "deadbeef",
	}
	source.errors.AddError("transfer", core.NewAbortedError(errors.New("reset")))

	var buf bytes.Buffer

	d := &Dashboard{
		renderer:    NewProgressRenderer(false, 40),
		source:      source,
		out:         &buf,
		title:       "Serving payload.bin",
		refreshRate: time.Second,
		termWidth:   40,
	}

	assert.False(t, d.Interactive())

	out := d.Render()
	assert.Contains(t, out, "Serving payload.bin")
	assert.Contains(t, out, "Checksum: deadbeef")
	assert.Contains(t, out, "3 accepted | 1 rejected")
	assert.Contains(t, out, "Sent: 4.0 MB in 2s (avg: 2.0 MB/s)")
	assert.Contains(t, out, "ConnectionAborted: 1")

	d.ShowCompletion()
	assert.Contains(t, buf.String(), "Serving finished with failed transfers")
}
