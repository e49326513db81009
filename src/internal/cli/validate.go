package cli

import (
	"fmt"

	"github.com/howmanysmall/wirefile/src/internal/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration files",
	Long: `Validate the syntax and semantics of wirefile configuration files.
This command checks for proper JSON/JSONC/TOML syntax, resolves profile
inheritance, applies defaults and prints the resulting profile.

Examples:
  wirefile validate                            # Validate default config
  wirefile validate --config myproject.jsonc   # Validate specific config
  wirefile validate --profile production       # Validate specific profile`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.NewLoader().Load(configFile)
		if err != nil {
			return err
		}

		p, err := cfg.Profile(profile)
		if err != nil {
			return err
		}

		source := configFile
		if source == "" {
			source = "(search paths or built-in defaults)"
		}

		fmt.Printf("🔍 Wirefile Validate\n")
		fmt.Printf("Config:      %s\n", source)
		fmt.Printf("Version:     %s\n", cfg.Version)
		fmt.Printf("Profile:     %s\n", profile)
		fmt.Printf("Listen:      %s\n", p.Listen)
		fmt.Printf("File:        %s\n", p.File)
		fmt.Printf("Zero-copy:   %t\n", p.Transfer.ZeroCopyEnabled())
		fmt.Printf("Checksum:    %s\n", p.Transfer.ChecksumAlgo)
		fmt.Printf("Max conns:   %d\n", p.Server.MaxConns)
		fmt.Printf("Watch:       %t\n", p.Server.Watch)
		fmt.Printf("Retry:       %d attempts, %s backoff\n", p.Retry.MaxAttempts, p.Retry.Backoff)
		fmt.Println("✅ Configuration is valid")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
