package cli

import (
	"fmt"

	"github.com/getburrow/burrow/pkg/cli/internal/output"
	"github.com/getburrow/burrow/pkg/config"
	"github.com/spf13/cobra"
)

// CheckOutput represents JSON output format
type CheckOutput struct {
	File   string         `json:"file"`
	Valid  bool           `json:"valid"`
	Config *config.Config `json:"config"`
}

var checkCmd = &cobra.Command{
	Use:   "check [config-file]",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, apply environment overrides, and validate the
result without connecting anything. Prints the effective configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			path = config.Find()
		}
		if path == "" {
			return fmt.Errorf("no configuration file found (looked for %v)", config.ConfigFileNames)
		}

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		if jsonOutput {
			// Never echo the token back out.
			redacted := *cfg
			if redacted.Relay.Token != "" {
				redacted.Relay.Token = "(set)"
			}
			return output.JSON(CheckOutput{File: path, Valid: true, Config: &redacted})
		}

		fmt.Printf("Configuration OK: %s\n\n", path)
		fmt.Printf("  Relay:     %s\n", cfg.Relay.URL)
		fmt.Printf("  Backend:   %s\n", cfg.Backend.URL)
		tunnel := cfg.Relay.Tunnel
		if tunnel == "" {
			tunnel = "(auto-assigned)"
		}
		fmt.Printf("  Tunnel:    %s\n", tunnel)
		if cfg.Inspect.Enabled {
			addr := cfg.Inspect.Addr
			if addr == "" {
				addr = config.DefaultInspectAddr
			}
			fmt.Printf("  Inspector: %s\n", addr)
		} else {
			fmt.Printf("  Inspector: disabled\n")
		}
		fmt.Printf("  Logging:   %s, %s\n", cfg.Logging.Level, cfg.Logging.Format)

		if len(cfg.Rules) > 0 {
			fmt.Printf("\nRules (%d):\n", len(cfg.Rules))
			w := output.Table()
			fmt.Fprintln(w, "  NAME\tPATH\tWHEN")
			for _, rule := range cfg.Rules {
				name := rule.Name
				if name == "" {
					name = "(unnamed)"
				}
				path := rule.Path
				if path == "" {
					path = "**"
				}
				when := rule.When
				if when == "" {
					when = "-"
				}
				fmt.Fprintf(w, "  %s\t%s\t%s\n", name, path, when)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
