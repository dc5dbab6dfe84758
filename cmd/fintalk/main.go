package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fintalk/fintalk/config"
	"github.com/fintalk/fintalk/logging"
)

var (
	configFlag   string
	logLevelFlag string
	logJSONFlag  bool

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:          "fintalk",
	Short:        "fintalk - conversational finance agent",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		var err error
		cfg, err = config.Load(configFlag)
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if logLevelFlag != "" {
			level = logLevelFlag
		}
		format := cfg.Logging.Format
		if logJSONFlag {
			format = "json"
		}
		logger = logging.Setup(level, format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSONFlag, "log-json", false, "log JSON instead of console output")

	askCmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "session name to load and save")
	askCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "approve every tool call without prompting")
	askCmd.Flags().BoolVar(&noStreamFlag, "no-stream", false, "disable streaming model calls")
	chatCmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "session name to load and save")
	chatCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "approve every tool call without prompting")
	chatCmd.Flags().BoolVar(&noStreamFlag, "no-stream", false, "disable streaming model calls")

	sessionsCmd.AddCommand(sessionsListCmd)
	rootCmd.AddCommand(askCmd, chatCmd, gatewayCmd, sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
