package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/richmond2010/DoRaeMi/configs"
	"github.com/richmond2010/DoRaeMi/internal/app"
	"github.com/richmond2010/DoRaeMi/pkg/logging"
	"github.com/richmond2010/DoRaeMi/pkg/output"
)

const envPrefix = "DORAEMI"

// stderr receives notes that must not mix with formatted output
var stderr io.Writer = os.Stderr

var (
	configFile   string
	verbose      bool
	logLevel     string
	logFormat    string
	outputFormat string
	precision    int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "doraemi",
	Short: "Beat tracking and pitch calibration for sung and played notes",
	Long: `DoRaeMi analyses audio frame by frame: it finds the dominant pitch of
each frame, estimates the tempo from spectral onsets and reports the beats
together with the note sounding on each of them.

Key features:
- Dominant pitch and level per frame
- Octave band onset detection and tempo estimation
- Dynamic programming beat tracking
- Pitch table calibration from four reference notes (C4..C6)
- Table, JSON and YAML output`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", output.ErrorStyle.Render("error:"), err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default is $HOME/.config/doraemi/doraemi.yaml)")

	// Output and logging flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console",
		"log format (console, json)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table",
		"output format (table, json, yaml)")
	rootCmd.PersistentFlags().IntVar(&precision, "precision", 2,
		"decimal places in table output")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("output.format", rootCmd.PersistentFlags().Lookup("output"))
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if configFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(filepath.Join(home, ".config", "doraemi"))
		viper.AddConfigPath("/etc/doraemi")
		viper.AddConfigPath("./configs")
		viper.SetConfigName("doraemi")
		viper.SetConfigType("yaml")
	}

	// Environment variable support, e.g. DORAEMI_TEMPO_THRESHOLD
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}
}

// initializeConfig initializes configuration after flags are parsed
func initializeConfig(cmd *cobra.Command) error {
	return bindFlags(cmd, viper.GetViper())
}

// flagKeys maps command flags onto configuration keys
var flagKeys = map[string]string{
	"buffer-size": "analysis.buffer_size",
	"window":      "analysis.window_function",
	"threshold":   "tempo.threshold",
	"references":  "calibration.references",
	"table":       "calibration.table",
	"precision":   "output.precision",
}

// bindFlags binds each cobra flag to its associated viper configuration
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var lastErr error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}

		// Apply the config value to the flag when the flag is not set
		if !f.Changed && v.IsSet(key) {
			val := v.Get(key)
			if list, isList := val.([]any); isList {
				parts := make([]string, len(list))
				for i, item := range list {
					parts[i] = fmt.Sprint(item)
				}
				val = strings.Join(parts, ",")
			}
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				lastErr = err
			}
		}

		if err := v.BindPFlag(key, f); err != nil {
			lastErr = err
		}

		envVar := envPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		if err := v.BindEnv(key, envVar); err != nil {
			lastErr = err
		}
	})

	return lastErr
}

// runtime is what every command needs after configuration is loaded
type runtime struct {
	config    *configs.Config
	logger    logging.Logger
	formatter output.Formatter
}

func loadRuntime() (*runtime, error) {
	cfg, err := configs.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := app.SetupLogging(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	logging.SetDefaultLogger(logger)

	formatter, err := output.NewFormatter(cfg.Output.Format, output.Options{
		Precision: cfg.Output.Precision,
		Colors:    cfg.Output.Colors,
	})
	if err != nil {
		return nil, err
	}

	return &runtime{config: cfg, logger: logger, formatter: formatter}, nil
}
