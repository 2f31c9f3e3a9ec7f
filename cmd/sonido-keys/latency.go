package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-keys/latency"
	"github.com/RyanBlaney/sonido-keys/source"
)

var latencyIterations int

var latencyCmd = &cobra.Command{
	Use:   "latency",
	Short: "Run the input latency self-test",
	Long: `Presses a key repeatedly through the touch and controller inputs and the
arbiter, and reports percentile latencies against the per-input budgets.
Each sample includes the input's declared device latency.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		hc := cfg.Latency
		if cmd.Flags().Changed("iterations") {
			hc.Iterations = latencyIterations
		}
		clock := source.NewSessionClock()
		h := latency.NewHarness(hc, clock)

		reports, err := h.RunAll(ctx,
			latency.NewTouchTarget(cfg.Touch, clock),
			latency.NewControllerTarget(cfg.Controller, clock),
		)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-11s %9s %9s %9s %9s %9s  %s\n", "input", "p50", "p95", "p99", "max", "budget", "result")
		failed := 0
		for _, r := range reports {
			verdict := "pass"
			if !r.Passed {
				verdict = "FAIL"
				failed++
			}
			fmt.Fprintf(out, "%-11s %9s %9s %9s %9s %9s  %s (%s samples)\n",
				r.Target, si(r.P50), si(r.P95), si(r.P99), si(r.Max), si(r.Budget), verdict, humanize.Comma(int64(r.Samples)))
		}
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d inputs over budget", failed, len(reports))
		}
		return nil
	},
}

func si(d time.Duration) string {
	return humanize.SIWithDigits(d.Seconds(), 2, "s")
}

func init() {
	rootCmd.AddCommand(latencyCmd)
	latencyCmd.Flags().IntVarP(&latencyIterations, "iterations", "n", 200, "presses per input")
}
