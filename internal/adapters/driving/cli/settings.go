package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/fieldsync/internal/config"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the effective configuration",
	Long: `Settings prints the configuration after defaults, config.toml, .env.local
and FIELDSYNC_* environment variables have been applied. The CRM token is
masked.`,
	Args: cobra.NoArgs,
	RunE: runSettings,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Change a setting in config.toml",
	Long: `Set writes one key to config.toml. Without a value, the value is read from
stdin; on a terminal the input is hidden, which keeps crm.token out of the
shell history.

Keys:
  ` + strings.Join(config.Keys(), "\n  "),
	Args: cobra.RangeArgs(1, 2),
	RunE: runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettings(cmd *cobra.Command, _ []string) error {
	if runtimeCfg == nil {
		return errors.New("configuration not loaded")
	}
	cfg := runtimeCfg

	if configStore != nil {
		cmd.Printf("Config file:  %s\n\n", configStore.Path())
	}

	cmd.Println("CRM")
	if cfg.DryRun() {
		cmd.Println("  base_url:          (not set, dry run)")
	} else {
		cmd.Printf("  base_url:          %s\n", cfg.CRM.BaseURL)
	}
	if cfg.CRM.Token != "" {
		cmd.Printf("  token:             %s\n", maskToken(cfg.CRM.Token))
	} else {
		cmd.Println("  token:             (not set)")
	}
	cmd.Printf("  timeout:           %s\n", cfg.CRM.Timeout)
	cmd.Printf("  rate_per_second:   %g\n", cfg.CRM.RatePerSecond)
	cmd.Printf("  burst:             %d\n", cfg.CRM.Burst)
	cmd.Printf("  breaker_failures:  %d\n", cfg.CRM.BreakerFailures)

	cmd.Println()
	cmd.Printf("data_dir:             %s\n", cfg.DataDir)
	cmd.Printf("spool_dir:            %s\n", cfg.SpoolDir)
	cmd.Printf("log.level:            %s\n", cfg.Log.Level)
	cmd.Printf("log.format:           %s\n", cfg.Log.Format)
	if cfg.Metrics.Addr != "" {
		cmd.Printf("metrics.addr:         %s\n", cfg.Metrics.Addr)
	} else {
		cmd.Println("metrics.addr:         (disabled)")
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	key := strings.ToLower(args[0])
	if !slices.Contains(config.Keys(), key) {
		return fmt.Errorf("unknown setting %q; run 'fieldsync settings set --help' for the list", args[0])
	}

	var value string
	if len(args) == 2 {
		value = args[1]
	} else {
		cmd.Printf("%s: ", key)
		value = readSecret(cmd.InOrStdin())
		cmd.Println()
	}

	if err := configStore.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	// Refuse to save a value that would stop the next run from starting.
	if _, err := config.Load(configStore); err != nil {
		return err
	}
	if err := configStore.Save(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	if envValue := os.Getenv(config.EnvName(key)); envValue != "" {
		cmd.Printf("Note: %s is set and overrides %s\n", config.EnvName(key), key)
	}
	cmd.Printf("Saved %s\n", key)
	return nil
}

// readSecret reads one line, without echo when in is a terminal.
func readSecret(in io.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(secret))
		}
	}
	reader := bufio.NewReader(in)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
