package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/richmond2010/DoRaeMi/internal/app"
	"github.com/richmond2010/DoRaeMi/pkg/audio/source"
	"github.com/richmond2010/DoRaeMi/pkg/logging"
	"github.com/richmond2010/DoRaeMi/pkg/output"
)

var (
	calibrateRefs       []string
	calibrateRefFiles   []string
	calibrateReferences []string
	calibrateOut        string
)

// calibrateCmd represents the calibrate command
var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Build a pitch table from reference notes",
	Long: `Capture the frequency of every reference note and derive a full C4..C6
pitch table from them.

References are given either as frequencies (--ref NOTE=HZ) or as WAV
recordings of the note (--ref-file NOTE=PATH). Recordings are run through the
analysis pipeline and the last detected pitch is kept. Every configured
reference note must be captured. Inverted references are corrected when
possible; otherwise calibration fails and must be repeated.

Examples:
  # Calibrate from known frequencies
  doraemi calibrate --ref C4=262 --ref F4=349 --ref A4=440 --ref C5=523

  # Calibrate from recordings and save the table for later analysis
  doraemi calibrate --ref-file C4=c4.wav --ref-file F4=f4.wav \
    --ref-file A4=a4.wav --ref-file C5=c5.wav --out my-voice.yaml`,
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)

	calibrateCmd.Flags().StringArrayVar(&calibrateRefs, "ref", nil,
		"reference frequency as NOTE=HZ (repeatable)")
	calibrateCmd.Flags().StringArrayVar(&calibrateRefFiles, "ref-file", nil,
		"reference recording as NOTE=PATH (repeatable)")
	calibrateCmd.Flags().StringSliceVar(&calibrateReferences, "references", []string{"C4", "F4", "A4", "C5"},
		"reference notes that must be captured")
	calibrateCmd.Flags().StringVar(&calibrateOut, "out", "",
		"write the calibrated table to this YAML file")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	if len(calibrateRefs) == 0 && len(calibrateRefFiles) == 0 {
		return fmt.Errorf("no references given, use --ref NOTE=HZ or --ref-file NOTE=PATH")
	}

	window, err := source.ParseWindowType(rt.config.Analysis.WindowFunction)
	if err != nil {
		return err
	}

	// Open recordings first so the engine can adopt their sample rate
	recordings, rate, err := openRecordings(calibrateRefFiles, rt.config.Analysis.BufferSize, window, rt.logger)
	defer func() {
		for _, r := range recordings {
			r.source.Close()
		}
	}()
	if err != nil {
		return err
	}

	cfg := *rt.config
	if rate > 0 {
		cfg.Analysis.SampleRate = rate
	}

	appCtx, err := app.NewContext(&cfg, rt.logger)
	if err != nil {
		return err
	}

	for _, assignment := range calibrateRefs {
		label, value, err := parseAssignment(assignment)
		if err != nil {
			return err
		}
		hz, err := strconv.ParseFloat(value, 64)
		if err != nil || hz <= 0 {
			return fmt.Errorf("reference %s: %q is not a positive frequency", label, value)
		}
		if err := appCtx.CaptureFrequency(label, int(hz+0.5)); err != nil {
			return fmt.Errorf("reference %s: %w", label, err)
		}
	}

	for _, r := range recordings {
		if err := appCtx.CaptureSource(cmd.Context(), r.label, r.source); err != nil {
			return fmt.Errorf("reference %s: %w", r.label, err)
		}
	}

	view, err := appCtx.Calibrate()
	if err != nil {
		fmt.Fprintln(stderr, output.ErrorStyle.Render("Calibration failed; capture every reference again."))
		return err
	}

	if calibrateOut != "" {
		if err := writeTable(appCtx, calibrateOut); err != nil {
			return err
		}
		rt.logger.Info("Pitch table written", logging.Fields{"path": calibrateOut})
	}

	return rt.formatter.Format(cmd.OutOrStdout(), view)
}

func writeTable(appCtx *app.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := appCtx.ActiveTable().WriteYAML(f, true); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// recording is a reference note captured from a WAV file
type recording struct {
	label  string
	path   string
	source *source.PCMSource
}

// openRecordings decodes every NOTE=PATH assignment in order. All files must
// share one sample rate, which is returned (0 when there are none). The
// recordings opened so far are returned even on error so they can be closed.
func openRecordings(assignments []string, bufferSize int, window source.WindowType, logger logging.Logger) ([]recording, int, error) {
	recordings := make([]recording, 0, len(assignments))
	rate := 0
	for _, assignment := range assignments {
		label, path, err := parseAssignment(assignment)
		if err != nil {
			return recordings, 0, err
		}
		src, err := source.OpenWAV(path, bufferSize, window, logger)
		if err != nil {
			return recordings, 0, err
		}
		recordings = append(recordings, recording{label: label, path: path, source: src})

		if rate == 0 {
			rate = src.SampleRate()
		} else if src.SampleRate() != rate {
			return recordings, 0, fmt.Errorf("reference recordings must share one sample rate: %s is %d Hz, %s is %d Hz",
				recordings[0].path, rate, path, src.SampleRate())
		}
	}
	return recordings, rate, nil
}

// parseAssignment splits NOTE=VALUE
func parseAssignment(s string) (string, string, error) {
	label, value, ok := strings.Cut(s, "=")
	label, value = strings.TrimSpace(label), strings.TrimSpace(value)
	if !ok || label == "" || value == "" {
		return "", "", fmt.Errorf("invalid reference %q, expected NOTE=VALUE", s)
	}
	return label, value, nil
}
