package app

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/richmond2010/DoRaeMi/configs"
	"github.com/richmond2010/DoRaeMi/pkg/audio/analyzers"
	"github.com/richmond2010/DoRaeMi/pkg/audio/pipeline"
	"github.com/richmond2010/DoRaeMi/pkg/audio/pitch"
	"github.com/richmond2010/DoRaeMi/pkg/audio/source"
	"github.com/richmond2010/DoRaeMi/pkg/logging"
)

// Context holds the state shared by one analysis session: the engine, the
// calibrator and the pitch tables. Each session builds its own; nothing is
// process-wide.
type Context struct {
	Config     *configs.Config
	Logger     logging.Logger
	Engine     *pipeline.Engine
	Calibrator *pitch.Calibrator

	defaultTable *pitch.Table
	loadedTable  atomic.Pointer[pitch.Table]
}

// NewContext builds the engine and calibrator described by cfg
func NewContext(cfg *configs.Config, logger logging.Logger) (*Context, error) {
	if cfg == nil {
		cfg = configs.DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	engine, err := pipeline.NewEngine(EngineConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	calibrator, err := pitch.NewCalibrator(cfg.Calibration.References, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create calibrator: %w", err)
	}

	c := &Context{
		Config:       cfg,
		Logger:       logger,
		Engine:       engine,
		Calibrator:   calibrator,
		defaultTable: pitch.DefaultTable(),
	}

	if cfg.Calibration.Table != "" {
		if err := c.LoadTable(cfg.Calibration.Table); err != nil {
			return nil, err
		}
	}

	logger.Debug("Application context initialized", logging.Fields{
		"sample_rate": cfg.Analysis.SampleRate,
		"buffer_size": cfg.Analysis.BufferSize,
		"references":  strings.Join(cfg.Calibration.References, ","),
		"table":       cfg.Calibration.Table,
	})

	return c, nil
}

// SetupLogging builds the logger described by cfg
func SetupLogging(cfg *configs.Config) (logging.Logger, error) {
	level := cfg.LogLevel
	if cfg.Verbose {
		level = "debug"
	}
	return logging.NewLogger(logging.Options{Level: level, Format: cfg.LogFormat})
}

// EngineConfig converts the application configuration into engine parameters
func EngineConfig(cfg *configs.Config) pipeline.Config {
	return pipeline.Config{
		Spectral: analyzers.SpectralConfig{
			SampleRate:     cfg.Analysis.SampleRate,
			BufferSize:     cfg.Analysis.BufferSize,
			MinMagnitude:   cfg.Analysis.MinMagnitude,
			ReferenceLevel: cfg.Analysis.ReferenceLevel,
			MinDB:          cfg.Analysis.MinDB,
		},
		MaxLag:      cfg.Tempo.MaxLag,
		Decay:       cfg.Tempo.Decay,
		History:     cfg.Tempo.History,
		Threshold:   cfg.Tempo.Threshold,
		OctaveWidth: cfg.Tempo.OctaveWidth,
	}
}

// WindowType returns the configured window function
func (c *Context) WindowType() (source.WindowType, error) {
	return source.ParseWindowType(c.Config.Analysis.WindowFunction)
}

// LoadTable reads a table exported by the calibrate command and uses it
// until a calibration in this session succeeds
func (c *Context) LoadTable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open pitch table: %w", err)
	}
	defer f.Close()

	table, err := pitch.ReadTableYAML(f)
	if err != nil {
		return fmt.Errorf("failed to load pitch table %s: %w", path, err)
	}
	c.UseTable(table)
	return nil
}

// UseTable installs a previously calibrated table
func (c *Context) UseTable(table *pitch.Table) {
	c.loadedTable.Store(table)
}

// DefaultTable returns the ISO table
func (c *Context) DefaultTable() *pitch.Table {
	return c.defaultTable
}

// ActiveTable returns the table used for filtering and labelling: the
// table calibrated in this session, else a loaded table, else the default
func (c *Context) ActiveTable() *pitch.Table {
	if t := c.Calibrator.Table(); t != nil {
		return t
	}
	if t := c.loadedTable.Load(); t != nil {
		return t
	}
	return c.defaultTable
}

// Calibrated reports whether the active table came from a calibration
func (c *Context) Calibrated() bool {
	return c.Calibrator.Calibrated() || c.loadedTable.Load() != nil
}

// Tick runs one frame through the engine and feeds the detected pitch to
// the calibrator. The active table restricts the pitch search, except while
// a reference is being captured: references may lie outside any table.
func (c *Context) Tick(frame *analyzers.SpectralFrame) (pipeline.FrameResult, error) {
	if _, listening := c.Calibrator.Listening(); listening {
		c.Engine.SetFilter(nil)
	} else {
		c.Engine.SetFilter(c.ActiveTable())
	}

	res, err := c.Engine.Advance(frame)
	if err != nil {
		return res, err
	}

	if res.Frequency > 0 {
		c.Calibrator.Observe(int(res.Frequency))
	}
	return res, nil
}
