package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/richmond2010/DoRaeMi/internal/app"
	"github.com/richmond2010/DoRaeMi/pkg/audio/pitch"
	"github.com/richmond2010/DoRaeMi/pkg/audio/source"
	"github.com/richmond2010/DoRaeMi/pkg/logging"
)

var (
	notesTable      string
	notesRender     string
	notesOut        string
	notesDuration   time.Duration
	notesClickEvery int
)

// notesCmd represents the notes command
var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Show the pitch table or render a reference tone",
	Long: `Print the pitch table used to label notes: the ISO table, or a calibrated
table exported by the calibrate command.

With --render the frequency of one note is written to a 16-bit mono WAV file,
optionally with a click every few frames to give the beat tracker a pulse.

Examples:
  # Print the default table
  doraemi notes

  # Print a calibrated table
  doraemi notes --table my-voice.yaml

  # Render two seconds of A4 with a click every 20 frames
  doraemi notes --render A4 --duration 2s --click-every 20 --out a4.wav`,
	RunE: runNotes,
}

func init() {
	rootCmd.AddCommand(notesCmd)

	notesCmd.Flags().StringVar(&notesTable, "table", "",
		"calibrated pitch table exported by the calibrate command")
	notesCmd.Flags().StringVar(&notesRender, "render", "",
		"note to render as a WAV file")
	notesCmd.Flags().StringVar(&notesOut, "out", "",
		"WAV file written by --render (default NOTE.wav)")
	notesCmd.Flags().DurationVar(&notesDuration, "duration", 2*time.Second,
		"length of the rendered tone")
	notesCmd.Flags().IntVar(&notesClickEvery, "click-every", 0,
		"add a click every N frames to the rendered tone")
}

func runNotes(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	appCtx, err := app.NewContext(rt.config, rt.logger)
	if err != nil {
		return err
	}
	table := appCtx.ActiveTable()

	if notesRender == "" {
		heading := "Default pitch table (ISO)"
		if appCtx.Calibrated() {
			heading = "Calibrated pitch table"
		}
		view := app.NewTableView(heading, table, appCtx.Calibrated(), nil)
		return rt.formatter.Format(cmd.OutOrStdout(), view)
	}

	note, err := pitch.ParseNote(notesRender)
	if err != nil {
		return err
	}
	hz, err := table.Lookup(note.Name)
	if err != nil {
		return err
	}

	a := rt.config.Analysis
	frames := int(notesDuration.Seconds() * float64(a.SampleRate) / float64(a.BufferSize))
	if frames < 1 {
		return fmt.Errorf("duration %s is shorter than one frame", notesDuration)
	}

	tone, err := source.NewToneSource(source.ToneConfig{
		SampleRate:     a.SampleRate,
		BufferSize:     a.BufferSize,
		Frequency:      hz,
		Amplitude:      0.5,
		ClickEvery:     notesClickEvery,
		ClickAmplitude: 0.4,
		Frames:         frames,
	})
	if err != nil {
		return err
	}

	out := notesOut
	if out == "" {
		out = note.Name + ".wav"
	}
	if err := source.WriteWAV(out, tone.Render(frames), a.SampleRate); err != nil {
		return err
	}

	rt.logger.Info("Tone rendered", logging.Fields{
		"note":      note.Name,
		"frequency": hz,
		"frames":    frames,
		"path":      out,
	})
	fmt.Fprintf(cmd.OutOrStdout(), "%s %.0f Hz -> %s\n", note.Name, hz, out)
	return nil
}
