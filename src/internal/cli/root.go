// Package cli provides the cobra commands of the wirefile CLI: serve, recv and
// validate.
package cli

import (
	"fmt"

	"github.com/howmanysmall/wirefile/src/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
	profile    string
)

var rootCmd = &cobra.Command{
	Use:   "wirefile",
	Short: "Send a file over TCP with zero-copy sendfile",
	Long: `Wirefile serves a single file to every client that connects, moving the bytes
from the page cache to the socket with sendfile(2) and falling back to buffered
copies where zero-copy is unavailable.

Examples:
  wirefile serve ./image.iso --listen :7070   # Serve a file
  wirefile recv 127.0.0.1:7070 ./image.iso    # Receive it
  wirefile validate --config wirefile.jsonc   # Check a config file`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}
	},
}

// SetVersionInfo sets the version information for the CLI.
func SetVersionInfo(version, buildTime, commit string) {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf(`wirefile version %s
Build time: %s
Commit: %s
`, version, buildTime, commit))
}

// Execute runs the root command for the wirefile CLI.
func Execute() error {
	return rootCmd.Execute()
}

// loadProfile loads the configured file (or the defaults) and returns the
// selected profile.
func loadProfile() (*config.Profile, error) {
	cfg, err := config.NewLoader().Load(configFile)
	if err != nil {
		return nil, err
	}

	return cfg.Profile(profile)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is wirefile.jsonc)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "default", "configuration profile to use")
}
