package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/bimview/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the configuration",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), cfgPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file, BIMVIEW_*
environment variables and flags have been applied.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return enc.Close()
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the config file",
	Long: `Set a dotted key in the config file, keeping its comments.

Examples:
  bimview config set api.base_url http://converter:8000
  bimview config set watch.debounce 1s
  bimview config set ui.show_counts false`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configPathCmd, configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// parseValue reads a command line value as a YAML scalar, so that
// "false" and "3" are stored as a bool and an int.
func parseValue(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	switch v.(type) {
	case bool, int, float64, string:
		return v
	default:
		return s
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], parseValue(args[1])
	if err := config.SetValue(cfgPath, key, value); err != nil {
		return err
	}

	updated, err := config.Load(viper.New(), cfgPath)
	if err != nil {
		return err
	}
	if err := updated.Validate(); err != nil {
		return fmt.Errorf("%s saved, but the configuration is now invalid: %w", key, err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s = %v (%s)\n", key, value, cfgPath)
	return nil
}
