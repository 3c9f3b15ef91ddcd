package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/valstream/am"
	"github.com/teranos/valstream/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.Config + " Show valstream configuration",
	Long: sym.Config + ` am: Show valstream configuration ("I am")

Configuration sources (in order of precedence):
1. Environment variables (VALSTREAM_* prefix)
2. Project config (./am.toml, searched upwards)
3. User config (~/.valstream/am.toml)
4. System config (/etc/valstream/config.toml)
5. Default values

Examples:
  valstream am show                # Show current configuration
  valstream am show --format json  # Show configuration as JSON
  valstream am validate            # Validate current configuration
  valstream am where               # List the files that were considered`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		fmt.Fprintf(out, "# valstream configuration\n%s", string(data))

	case "toml":
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "# valstream configuration\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	paths := am.ConfigPaths()
	if ConfigPath != "" {
		paths = []string{ConfigPath}
	}
	fmt.Fprintln(out, "Configuration files (lowest precedence first):")
	for _, p := range paths {
		fmt.Fprintf(out, "  %s\n", p)
	}
	return nil
}
