package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"authhub/internal/config"
	"authhub/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the login or refresh flow failed.
	ExitCodeAuthFailed = 3
)

// Global flags.
var (
	configPath  string
	logLevel    string
	logFormat   string
	baseURLFlag string
	appFlag     string
	storageFlag string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "authhub",
	Short: "Log in to an authhub identity service from the command line",
	Long: `authhub manages the session of a user against an authhub identity service.

It runs the browser login with PKCE, stores the resulting tokens, renews
them before they expire and reports who is logged in.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a semantic exit code on error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "authhub version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps an error onto the exit codes documented above.
func getExitCode(err error) int {
	var authRequired *AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var authExpired *AuthExpiredError
	if errors.As(err, &authExpired) {
		return ExitCodeAuthRequired
	}

	var authFailed *AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func setupLogging(cmd *cobra.Command, args []string) error {
	name := logLevel
	if name == "" {
		// A broken config surfaces later with a full report.
		if cfg, err := config.LoadConfig(configPath); err == nil {
			name = cfg.LogLevel
		}
	}
	if name == "" {
		name = config.DefaultLogLevel
	}
	level, err := logging.ParseLevel(name)
	if err != nil {
		return err
	}

	switch logging.Format(logFormat) {
	case logging.FormatJSON:
		logging.Init(level, os.Stderr, logging.FormatJSON)
	case logging.FormatText, "":
		logging.InitForCLI(level, os.Stderr)
	default:
		return fmt.Errorf("unknown log format %q, use text or json", logFormat)
	}
	return nil
}

// loadConfig reads config.yaml and the environment, then applies the global
// flags on top.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if baseURLFlag != "" {
		cfg.BaseURL = baseURLFlag
	}
	if appFlag != "" {
		cfg.App = appFlag
	}
	if storageFlag != "" {
		cfg.Storage.Mode = storageFlag
	}
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory (default ~/.config/authhub)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (env: AUTHHUB_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "Identity service URL (env: AUTHHUB_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&appFlag, "app", "", "Application identifier (env: AUTHHUB_APP)")
	rootCmd.PersistentFlags().StringVar(&storageFlag, "storage", "", "Token storage: durable, session, memory or cookie (env: AUTHHUB_STORAGE)")
}
