//go:build unix

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/howmanysmall/wirefile/src/internal/display"
	"github.com/howmanysmall/wirefile/src/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	listenAddr string
	noZeroCopy bool
	watchFile  bool
	maxConns   int
	banner     string
)

var serveCmd = &cobra.Command{
	Use:   "serve [file]",
	Short: "Serve a file to every client that connects",
	Long: `Serve sends the whole file to each client that connects and then closes the
connection. Flags override the selected configuration profile.

Examples:
  wirefile serve ./image.iso                    # Serve on the default address
  wirefile serve ./image.iso --listen :9000     # Serve on all interfaces
  wirefile serve ./log.txt --watch              # Keep the checksum current
  wirefile serve ./data.bin --no-zero-copy      # Force buffered copies
  wirefile serve --profile production           # Take everything from config`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfile()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		path := p.File
		if len(args) == 1 {
			path = args[0]
		}

		if path == "" {
			return errors.New("no file to serve: pass one or set \"file\" in the profile")
		}

		path, err = filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("invalid file path: %w", err)
		}

		opts := server.Options{
			Listen:       p.Listen,
			Path:         path,
			ZeroCopy:     p.Transfer.ZeroCopyEnabled(),
			MaxConns:     p.Server.MaxConns,
			Watch:        p.Server.Watch,
			Banner:       []byte(p.Server.Banner),
			ChecksumAlgo: p.Transfer.ChecksumAlgo,
			Logger:       logrus.WithField("command", "serve"),
		}

		flags := cmd.Flags()
		if flags.Changed("listen") {
			opts.Listen = listenAddr
		}

		if noZeroCopy {
			opts.ZeroCopy = false
		}

		if flags.Changed("watch") {
			opts.Watch = watchFile
		}

		if flags.Changed("max-conns") {
			opts.MaxConns = maxConns
		}

		if flags.Changed("banner") {
			opts.Banner = []byte(banner)
		}

		return runServe(cmd.Context(), opts)
	},
}

func runServe(ctx context.Context, opts server.Options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	colorEnabled := term.IsTerminal(int(os.Stdout.Fd()))
	statusRenderer := display.NewStatusRenderer(colorEnabled, false)

	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	if err := srv.Listen(); err != nil {
		return err
	}

	fmt.Println(display.CreateBanner("Wirefile", colorEnabled))
	fmt.Println()

	mode := "zero-copy (sendfile)"
	if !opts.ZeroCopy {
		mode = "buffered copy"
	}

	statusRenderer.PrintInfo(fmt.Sprintf("File: %s", opts.Path))
	statusRenderer.PrintInfo(fmt.Sprintf("Listening: %s", srv.Addr()))
	statusRenderer.PrintInfo(fmt.Sprintf("Mode: %s", mode))

	if opts.MaxConns > 0 {
		statusRenderer.PrintInfo(fmt.Sprintf("Connection limit: %d", opts.MaxConns))
	}

	if opts.Watch {
		statusRenderer.PrintInfo("Watching the file for changes")
	}

	fmt.Println()

	dashboard := display.NewDashboard(srv, "Serving "+filepath.Base(opts.Path), time.Second)

	dashCtx, dashCancel := context.WithCancel(ctx)
	defer dashCancel()

	dashDone := make(chan struct{})

	if dashboard.Interactive() && !verbose {
		go func() {
			defer close(dashDone)
			dashboard.Run(dashCtx)
		}()
	} else {
		close(dashDone)
	}

	serveErr := srv.Serve(ctx)

	dashCancel()
	<-dashDone

	if serveErr != nil {
		statusRenderer.PrintError("Serving failed", serveErr.Error())
		return fmt.Errorf("serve failed: %w", serveErr)
	}

	dashboard.ShowCompletion()

	return nil
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "address to listen on (host:port)")
	serveCmd.Flags().BoolVar(&noZeroCopy, "no-zero-copy", false, "always use buffered copies")
	serveCmd.Flags().BoolVar(&watchFile, "watch", false, "re-checksum the file when it changes")
	serveCmd.Flags().IntVar(&maxConns, "max-conns", 0, "maximum concurrent connections (0 = unlimited)")
	serveCmd.Flags().StringVar(&banner, "banner", "", "bytes sent before the file on every connection")

	rootCmd.AddCommand(serveCmd)
}
