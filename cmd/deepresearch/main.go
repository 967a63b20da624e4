package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Lin-Guanguo/my-deep-research/internal/observability"
	"github.com/Lin-Guanguo/my-deep-research/pkg/config"
)

var (
	// Global flags
	configPath string
	secretPath string
	verbose    bool

	cfg    *config.Config
	zlog   *zap.Logger
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "deepresearch",
	Short: "Plan, review, research and report on a question",
	Long: `deepresearch turns a research question into a reviewed plan, executes
the plan's steps against a web search provider and renders a markdown report.

Settings are read from config/settings.yaml; API keys come from the plain-text
secret file (KEY=VALUE per line).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath, secretPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		zlog, err = observability.NewZap(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = observability.NewLogger(zlog, cfg.Observability.LLMLogPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultSettingsPath, "Settings YAML file")
	rootCmd.PersistentFlags().StringVar(&secretPath, "secret", config.DefaultSecretPath, "Secret file with KEY=VALUE lines")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(fetchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
