package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-keys/calibration"
	"github.com/RyanBlaney/sonido-keys/config"
	"github.com/RyanBlaney/sonido-keys/logging"
	"github.com/RyanBlaney/sonido-keys/tracker"
	"github.com/RyanBlaney/sonido-keys/transcode"
)

var calibrateWrite string

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <audio-file>",
	Short: "Derive detection thresholds from a recording of the quiet room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := transcode.NewDecoder(&cfg.Decoder).DecodeFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		res, calErr := calibration.Calibrate(cfg.Calibration, data.PCM)
		logger := logging.WithFields(logging.Fields{"component": "cli", "file": args[0]})
		if err := calibration.Apply(res, calErr, logger, configThresholds{cfg}); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "noise floor %.1f dBFS (rms %s) over %s blocks\n",
			res.NoiseFloorDB, humanize.FtoaWithDigits(res.NoiseFloorRMS, 6), humanize.Comma(int64(res.Blocks)))
		fmt.Fprintf(out, "onset %.3f  release %.3f  gate %s\n",
			res.Thresholds.Onset, res.Thresholds.Release, humanize.FtoaWithDigits(res.Thresholds.GateRMS, 6))

		if calibrateWrite == "" {
			return nil
		}
		f, err := os.Create(calibrateWrite)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := cfg.Write(f); err != nil {
			return err
		}
		fmt.Fprintf(out, "configuration written to %s\n", calibrateWrite)
		return nil
	},
}

// configThresholds installs calibrated thresholds into the loaded configuration
type configThresholds struct{ c *config.Config }

func (t configThresholds) SetThresholds(th tracker.Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	t.c.Audio.Thresholds = th
	return nil
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
	calibrateCmd.Flags().StringVarP(&calibrateWrite, "write", "w", "", "write the calibrated configuration to this file")
}
