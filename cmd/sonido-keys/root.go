package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-keys/config"
)

var (
	configPath string
	logLevel   string
	logFile    string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sonido-keys",
	Short: "Piano note input and scoring engine",
	Long: `sonido-keys turns keyboard, microphone and touch input into note events
and scores them against authored exercises. The commands here run the
engine offline and diagnose input latency.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Default()
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if logFile == "" {
			cfg.ApplyLogging(nil)
			return nil
		}

		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		cfg.ApplyLogging(f)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "configuration file (JSON)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&logFile, "log-file", "", "write logs to this file instead of the terminal")
}

// Execute runs the root command
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
