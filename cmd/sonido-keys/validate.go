package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-keys/content"
)

var validateCmd = &cobra.Command{
	Use:   "validate <exercise.json|dir>...",
	Short: "Validate exercise documents",
	Long: `Checks exercise files against the content rules. A directory is loaded
as a whole catalogue; files given together are validated as one set, so
their prerequisites may refer to each other.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var exercises []*content.Exercise
		for _, arg := range args {
			info, err := os.Stat(arg)
			if err != nil {
				return err
			}

			if info.IsDir() {
				loaded, err := content.LoadDir(arg)
				if err != nil {
					return err
				}
				exercises = append(exercises, loaded...)
				continue
			}

			ex, err := content.LoadFile(arg)
			if err != nil {
				return err
			}
			exercises = append(exercises, ex)
		}

		if err := content.ValidateSet(exercises); err != nil {
			return err
		}
		for _, ex := range exercises {
			fmt.Fprintf(cmd.OutOrStdout(), "ok  %-24s %d notes @ %g bpm\n", ex.ID, len(ex.Notes), ex.Tempo)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
