package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/richmond2010/DoRaeMi/internal/app"
	"github.com/richmond2010/DoRaeMi/pkg/audio/source"
	"github.com/richmond2010/DoRaeMi/pkg/logging"
	"github.com/richmond2010/DoRaeMi/pkg/output"
)

var (
	analyzeConcurrency int
	analyzeBufferSize  int
	analyzeWindow      string
	analyzeThreshold   float64
	analyzeTable       string
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE...",
	Short: "Track beats and pitches in WAV files",
	Long: `Run WAV files through the analysis pipeline frame by frame and report
every beat together with the note sounding on it.

Each file gets its own engine and is analysed at its own sample rate. Files
are processed concurrently; reports are printed in the order given.

Examples:
  # Analyse a recording with the default pitch table
  doraemi analyze song.wav

  # Label notes with a calibrated table
  doraemi analyze --table my-voice.yaml take1.wav take2.wav

  # Machine readable output
  doraemi analyze -o json song.wav`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().IntVarP(&analyzeConcurrency, "concurrency", "c", 4,
		"maximum number of files analysed at once")
	analyzeCmd.Flags().IntVar(&analyzeBufferSize, "buffer-size", 1024,
		"samples per frame (power of two)")
	analyzeCmd.Flags().StringVar(&analyzeWindow, "window", "blackman",
		"window function ("+strings.Join(source.WindowTypes(), ", ")+")")
	analyzeCmd.Flags().Float64Var(&analyzeThreshold, "threshold", 0.1,
		"beat tracker tempo-deviation penalty, scaled by 100 against log(interval/period)^2")
	analyzeCmd.Flags().StringVar(&analyzeTable, "table", "",
		"calibrated pitch table exported by the calibrate command")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	rt.logger.Debug("Analyzing files", logging.Fields{
		"files":       len(args),
		"concurrency": analyzeConcurrency,
	})

	reports, err := app.AnalyzeFiles(cmd.Context(), rt.config, rt.logger, args, analyzeConcurrency)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if strings.EqualFold(rt.config.Output.Format, string(output.FormatTable)) {
		views := make([]output.Tabular, len(reports))
		for i, r := range reports {
			views[i] = r
		}
		return rt.formatter.Format(cmd.OutOrStdout(), views)
	}
	return rt.formatter.Format(cmd.OutOrStdout(), reports)
}
