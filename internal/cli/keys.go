package cli

import (
	"fmt"
	"io"

	"github.com/harun/hybridsolver/internal/config"
	"github.com/harun/hybridsolver/pkg/keypool"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Show which provider credentials are loaded",
	Long: `Show the Gemini keys found in the environment and whether a secondary
provider is configured. Only the last four characters of each key are shown.`,
	Args: cobra.NoArgs,
	RunE: runKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	printKeys(cmd.OutOrStdout(), cfg)
	return nil
}

func printKeys(w io.Writer, cfg *config.Config) {
	keys := cfg.Keys.Values
	fmt.Fprintf(w, "Gemini: %s\n", enabled(cfg.Providers.UseGemini))
	fmt.Fprintf(w, "Keys (%s*): %d\n", cfg.Keys.EnvPrefix, len(keys))
	for i, k := range keys {
		fmt.Fprintf(w, "  %d. %s\n", i+1, keypool.Preview(k))
	}

	secondary := "not configured"
	if cfg.HasSecondary() {
		secondary = cfg.Providers.Secondary
	}
	fmt.Fprintf(w, "Secondary: %s\n", secondary)
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
