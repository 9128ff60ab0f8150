package cli

import (
	"fmt"
	"os"

	"github.com/harun/hybridsolver/internal/config"
	"github.com/spf13/cobra"
)

var (
	configureInit  bool
	configureForce bool
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Show or initialize the configuration",
	Long: `Print the effective configuration, or write the defaults to the config
file with --init. Credentials come from the environment and are never
written or printed.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().BoolVar(&configureInit, "init", false, "write the default configuration file")
	configureCmd.Flags().BoolVar(&configureForce, "force", false, "overwrite an existing file with --init")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	if configureInit {
		path := loader.GetConfigPath()
		if _, err := os.Stat(path); err == nil && !configureForce {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
		if err := loader.Save(config.DefaultConfig()); err != nil {
			return fmt.Errorf("failed to save configuration: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to: %s\n", path)
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "\nWarning: %v\n", err)
	}
	return nil
}
