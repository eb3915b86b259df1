package cli

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/mcpforge/internal/config"
	"github.com/lucasnoah/mcpforge/internal/functions"
	"github.com/lucasnoah/mcpforge/internal/mcp"
	"github.com/lucasnoah/mcpforge/internal/mcpconfig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect MCP configs and settings",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <config.zip>",
	Short: "Check that every step of every side binds to a function",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		cfg, err := mcpconfig.LoadFile(args[0])
		if err != nil {
			return err
		}
		// Declared functions resolve their jar lazily, so binding them here
		// needs a resolver but no network.
		log := cmdLogger(cmd)
		deps := functions.Deps{Resolver: newResolver(s, newFetcher(s, log), log)}

		w := cmd.OutOrStdout()
		failed := 0
		for _, side := range cfg.Sides() {
			reg := mcp.NewRegistry()
			if err := functions.RegisterBuiltins(reg, deps); err != nil {
				return err
			}
			rc, err := mcp.Validate(cfg, side, reg)
			if err != nil {
				failed++
				fmt.Fprintf(w, "  - %s: %v\n", side, err)
				continue
			}
			fmt.Fprintf(w, "  %s: %d shared, %d src steps, %d function types\n",
				side, len(rc.Pipeline.Shared), len(rc.Pipeline.Src), rc.Types())
		}
		if failed > 0 {
			return fmt.Errorf("config has %d invalid side(s)", failed)
		}
		fmt.Fprintf(w, "Config %s (spec %d) is valid.\n", cfg.Version, cfg.Spec)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show <config.zip>",
	Short: "Show the parsed config, upgraded to the current format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := mcpconfig.LoadFile(args[0])
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "yaml":
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshalling config: %w", err)
			}
			cmd.Print(string(data))
		case "dump":
			spew.Fdump(cmd.OutOrStdout(), cfg)
		default:
			return fmt.Errorf("unknown format %q (want yaml or dump)", format)
		}
		return nil
	},
}

var configSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the resolved settings with defaults merged",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st *config.Settings
		var path string
		var err error
		if settingsFile != "" {
			st, err = config.Load(settingsFile)
			path = settingsFile
		} else {
			st, path, err = config.LoadDefault()
		}
		if err != nil {
			return err
		}

		if path == "" {
			path = "(defaults)"
		}
		cmd.Printf("# %s\n", path)
		data, err := yaml.Marshal(st)
		if err != nil {
			return fmt.Errorf("marshalling settings: %w", err)
		}
		cmd.Print(string(data))

		errs := config.Validate(st)
		if len(errs) == 0 {
			return nil
		}
		cmd.Println("Validation errors:")
		for _, e := range errs {
			cmd.Printf("  - %s\n", e)
		}
		return fmt.Errorf("settings have %d validation error(s)", len(errs))
	},
}

func init() {
	configShowCmd.Flags().String("format", "yaml", "Output format: yaml or dump")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSettingsCmd)
}
