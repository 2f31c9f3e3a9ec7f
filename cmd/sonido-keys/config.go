package main

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-keys/config"
	"github.com/RyanBlaney/sonido-keys/pipeline"
)

var configMode string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Prints the configuration in use as JSON. With --mode the defaults for
that audio mode are printed instead, as a starting point for a config file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cfg
		if configMode != "" {
			mode, err := pipeline.ParseMode(configMode)
			if err != nil {
				return err
			}
			c = config.ForMode(mode)
		}
		return c.Write(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().StringVarP(&configMode, "mode", "m", "", "print defaults for mono or poly")
}
