package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-keys/content"
	"github.com/RyanBlaney/sonido-keys/note"
	"github.com/RyanBlaney/sonido-keys/pipeline"
	"github.com/RyanBlaney/sonido-keys/transcode"
)

var (
	analyzeMode     string
	analyzeExercise string
	analyzeStart    time.Duration
	analyzeQuiet    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <audio-file>",
	Short: "Detect notes in a recording and optionally score it",
	Long: `Decodes a recording with ffmpeg, runs it through the microphone pipeline
and prints every onset and release. With --exercise the events are scored
against the exercise, whose count-in starts at --start in the recording.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		audioCfg := cfg.Audio
		if cmd.Flags().Changed("mode") {
			mode, err := pipeline.ParseMode(analyzeMode)
			if err != nil {
				return err
			}
			audioCfg = pipeline.DefaultConfig(mode).WithSampleRate(cfg.Audio.Microphone.SampleRate)
			audioCfg.Thresholds = cfg.Audio.Thresholds
		}

		data, err := transcode.NewDecoder(&cfg.Decoder).DecodeFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		events, err := pipeline.AnalyzeSamples(audioCfg, data.PCM)
		if err != nil {
			return err
		}

		// frames are stamped with their newest sample
		lag := time.Duration(audioCfg.Microphone.WindowSize/2) * time.Second / time.Duration(audioCfg.Microphone.SampleRate)
		for i := range events {
			events[i].Time = max(events[i].Time-lag, 0)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %s of audio (%s PCM), %s mode\n",
			args[0], data.Duration.Round(time.Millisecond), humanize.Bytes(uint64(len(data.PCM)*8)), audioCfg.Mode)

		onsets := 0
		for _, ev := range events {
			if ev.Kind == note.Onset {
				onsets++
			}
			if !analyzeQuiet {
				fmt.Fprintf(out, "  %10s  %-7s %s\n", ev.Time.Round(time.Millisecond), ev.Kind, ev.Pitch.Name())
			}
		}
		fmt.Fprintf(out, "%s notes detected\n", humanize.Comma(int64(onsets)))

		if analyzeExercise == "" {
			return nil
		}
		return scoreRecording(cmd, events, data.Duration)
	},
}

func scoreRecording(cmd *cobra.Command, events []note.Event, duration time.Duration) error {
	ex, err := content.LoadFile(analyzeExercise)
	if err != nil {
		return err
	}
	if err := content.Validate(ex, nil); err != nil {
		return err
	}

	engine, err := ex.NewEngine(cfg.Scoring)
	if err != nil {
		return err
	}
	res, err := engine.Replay(analyzeStart, events, duration)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s: overall %.1f, %d/3 stars, passed=%t\n", ex.ID, res.Overall, res.Stars, res.Passed)
	fmt.Fprintf(out, "  accuracy %.1f  timing %.1f  completeness %.1f\n", res.Accuracy, res.Timing, res.Completeness)
	fmt.Fprintf(out, "  matched %d of %d, missed %d, extra %d\n", res.Matched, res.TotalScripted, res.Missed, res.Extra)
	for _, pe := range res.PitchErrors {
		fmt.Fprintf(out, "  beat %-6s played %s instead of %s\n",
			humanize.Ftoa(pe.ScriptedBeat), pe.Played.Name(), pe.Expected.Name())
	}
	for _, te := range res.TimingErrors {
		fmt.Fprintf(out, "  beat %-6s %s off by %+.0f ms\n", humanize.Ftoa(te.ScriptedBeat), te.Pitch.Name(), te.OffsetMs)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&analyzeMode, "mode", "m", "mono", "estimator: mono or poly")
	analyzeCmd.Flags().StringVarP(&analyzeExercise, "exercise", "e", "", "exercise JSON to score against")
	analyzeCmd.Flags().DurationVar(&analyzeStart, "start", 0, "offset of the exercise count-in in the recording")
	analyzeCmd.Flags().BoolVarP(&analyzeQuiet, "quiet", "q", false, "only print totals")
}
