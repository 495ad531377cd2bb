// Package cli implements the armada command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tOgg1/armada/internal/config"
	"github.com/tOgg1/armada/internal/logging"
)

var (
	// Global flags
	cfgFile    string
	jsonOutput bool
	logLevel   string
	logFormat  string

	// Global config loader and config
	configLoader *config.Loader
	appConfig    *config.Config
	logger       zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "armada",
	Short: "Task orchestration engine for autonomous coding agents",
	Long: `Armada runs autonomous coding-agent sessions against a git repository,
giving each run an isolated worktree and a durable record of its
lifecycle, conversation and progress.

Typical flow:
  armada task create "fix the login flow"
  armada task start <run-id>
  armada task get <run-id>`,
}

// Execute runs the root command
func Execute(version, commit, date string) error {
	rootCmd.Version = formatVersion(version, commit, date)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/armada/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging format (json, console)")
}

// initConfig loads configuration with the usual precedence:
// defaults < config file < env vars < CLI flags
func initConfig() {
	configLoader = config.NewLoader()
	if cfgFile != "" {
		configLoader.SetConfigFile(cfgFile)
	}

	var err error
	appConfig, err = configLoader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevel != "" {
		appConfig.Logging.Level = logLevel
	}
	if logFormat != "" {
		appConfig.Logging.Format = logFormat
	}

	if err := logging.Setup(logging.Options{
		Level:        appConfig.Logging.Level,
		Format:       appConfig.Logging.Format,
		File:         appConfig.Logging.File,
		EnableCaller: appConfig.Logging.EnableCaller,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	logger = logging.Component("cli")

	if used := configLoader.ConfigFileUsed(); used != "" {
		logger.Debug().Str("config_file", used).Msg("loaded config file")
	}
}

func formatVersion(version, commit, date string) string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}
