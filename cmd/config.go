package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/richmond2010/DoRaeMi/configs"
	"github.com/richmond2010/DoRaeMi/pkg/output"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the effective configuration",
	Long: `Load the configuration and display every value after defaults, the config
file, environment variables and flags have been applied.

Examples:
  # Show the effective configuration
  doraemi config

  # Check a specific config file
  doraemi --config /path/to/doraemi.yaml config

  # Dump the settings as YAML, ready to be saved as a config file
  doraemi config -o yaml`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	config, err := configs.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if config.Output.Format != string(output.FormatTable) {
		formatter, err := output.NewFormatter(config.Output.Format, output.Options{Precision: config.Output.Precision})
		if err != nil {
			return err
		}
		return formatter.Format(cmd.OutOrStdout(), viper.AllSettings())
	}

	printConfig(cmd.OutOrStdout(), config, viper.ConfigFileUsed())
	return nil
}

func printConfig(w io.Writer, config *configs.Config, configFile string) {
	fmt.Fprintln(w, output.TitleStyle.Render("DORAEMI CONFIGURATION"))

	printSection(w, "APPLICATION SETTINGS")
	if configFile == "" {
		configFile = "(none, using defaults)"
	}
	printKeyValue(w, "Config File", configFile)
	printKeyValue(w, "Verbose", fmt.Sprintf("%t", config.Verbose))
	printKeyValue(w, "Log Level", config.LogLevel)
	printKeyValue(w, "Log Format", config.LogFormat)

	printSection(w, "ANALYSIS")
	a := config.Analysis
	printKeyValue(w, "Sample Rate", fmt.Sprintf("%d Hz", a.SampleRate))
	printKeyValue(w, "Buffer Size", fmt.Sprintf("%d samples", a.BufferSize))
	printKeyValue(w, "Frame Period", fmt.Sprintf("%.2f ms", 1000*float64(a.BufferSize)/float64(a.SampleRate)))
	printKeyValue(w, "Window Function", a.WindowFunction)
	printKeyValue(w, "Min Magnitude", fmt.Sprintf("%g", a.MinMagnitude))
	printKeyValue(w, "Reference Level", fmt.Sprintf("%g", a.ReferenceLevel))
	printKeyValue(w, "Min Level", fmt.Sprintf("%g dB", a.MinDB))

	printSection(w, "TEMPO")
	t := config.Tempo
	printKeyValue(w, "Max Lag", fmt.Sprintf("%d frames", t.MaxLag))
	printKeyValue(w, "Decay", fmt.Sprintf("%g", t.Decay))
	printKeyValue(w, "History", fmt.Sprintf("%d frames", t.History))
	printKeyValue(w, "Tempo Deviation Penalty", fmt.Sprintf("%g (alpha %g)", t.Threshold, 100*t.Threshold))
	if t.OctaveWidth == 0 {
		width := float64(a.SampleRate) / float64(a.BufferSize)
		printKeyValue(w, "Tempo Prior Width", fmt.Sprintf("%.2f octaves (sample rate / buffer size)", width))
	} else {
		printKeyValue(w, "Tempo Prior Width", fmt.Sprintf("%g octaves", t.OctaveWidth))
	}

	printSection(w, "CALIBRATION")
	printKeyValue(w, "References", strings.Join(config.Calibration.References, ", "))
	table := config.Calibration.Table
	if table == "" {
		table = "(default ISO table)"
	}
	printKeyValue(w, "Pitch Table", table)

	printSection(w, "OUTPUT")
	printKeyValue(w, "Format", config.Output.Format)
	printKeyValue(w, "Precision", fmt.Sprintf("%d", config.Output.Precision))
	printKeyValue(w, "Colors", fmt.Sprintf("%t", config.Output.Colors))

	fmt.Fprintln(w)
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n", output.HeaderStyle.Render(title))
	fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

func printKeyValue(w io.Writer, key, value string) {
	if value == "" {
		fmt.Fprintf(w, "%-25s\n", key)
		return
	}
	fmt.Fprintf(w, "%s %s\n", output.KeyStyle.Render(fmt.Sprintf("%-25s", key+":")), value)
}
