package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"authhub/internal/config"
	"authhub/pkg/oauth"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or write the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after applying config.yaml, environment
variables and flags. The API key is redacted.`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write config.yaml from the given flags",
	Long: `Write the effective configuration to config.yaml in the configuration
directory, so later commands need no flags.

Example:
  authhub config init --base-url https://id.example.com --app notes`,
	RunE: runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.APIKey != "" {
		cfg.APIKey = oauth.NewRedactedToken(cfg.APIKey).String()
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		var coll *config.ConfigurationErrorCollection
		if errors.As(err, &coll) {
			return errors.New(coll.DetailedReport())
		}
		return err
	}

	path := configPath
	if path == "" {
		if path, err = config.GetDefaultConfigPath(); err != nil {
			return err
		}
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote configuration to %s\n", path)
	return nil
}
