package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/howmanysmall/wirefile/src/internal/core"
	"github.com/howmanysmall/wirefile/src/internal/display"
	"github.com/howmanysmall/wirefile/src/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	checksumAlgo string
	expectSize   int64
)

var recvCmd = &cobra.Command{
	Use:   "recv <address> <output>",
	Short: "Receive a served file",
	Long: `Recv connects to a wirefile server and writes everything it sends into the
output file, then prints the size and checksum of what arrived.

Examples:
  wirefile recv 127.0.0.1:7070 ./copy.iso                 # Receive a file
  wirefile recv host:7070 ./copy.iso --checksum sha256    # Use SHA-256
  wirefile recv host:7070 ./copy.iso --expect 734003200   # Show a progress bar`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfile()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		out, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("invalid output path: %w", err)
		}

		algo := p.Transfer.ChecksumAlgo
		if cmd.Flags().Changed("checksum") {
			algo = checksumAlgo
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		colorEnabled := term.IsTerminal(int(os.Stdout.Fd()))
		isInteractive := colorEnabled && !verbose
		statusRenderer := display.NewStatusRenderer(colorEnabled, false)
		renderer := display.NewProgressRenderer(colorEnabled, 80)

		statusRenderer.PrintInfo(fmt.Sprintf("Receiving from %s", args[0]))
		statusRenderer.PrintInfo(fmt.Sprintf("Output: %s", out))

		opts := server.ReceiveOptions{
			Retry:        p.Retry,
			ChecksumAlgo: algo,
			ExpectedSize: expectSize,
			Logger:       logrus.WithField("command", "recv"),
		}

		if isInteractive {
			opts.OnProgress = func(progress core.Progress) {
				fmt.Printf("\r\033[2K%s", renderer.RenderProgress(progress))
			}
		}

		result, err := server.Receive(ctx, args[0], out, opts)

		if isInteractive {
			fmt.Println()
		}

		if err != nil {
			statusRenderer.PrintError("Receive failed", err.Error())
			return fmt.Errorf("receive failed: %w", err)
		}

		statusRenderer.PrintSuccess("Receive completed",
			fmt.Sprintf("Bytes: %s (%d)", display.FormatBytes(result.Bytes), result.Bytes),
			fmt.Sprintf("Checksum (%s): %s", result.Algorithm, result.Checksum),
			fmt.Sprintf("Duration: %s", display.FormatDuration(result.Duration)),
		)

		if expectSize > 0 && result.Bytes != expectSize {
			statusRenderer.PrintWarning(fmt.Sprintf("Expected %d bytes, received %d", expectSize, result.Bytes))
		}

		return nil
	},
}

func init() {
	recvCmd.Flags().StringVar(&checksumAlgo, "checksum", "blake3", "checksum algorithm (blake3, sha256)")
	recvCmd.Flags().Int64Var(&expectSize, "expect", 0, "expected size in bytes, for progress display")

	rootCmd.AddCommand(recvCmd)
}
