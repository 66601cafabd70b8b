package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sourcegraph/conc/pool"

	"github.com/richmond2010/DoRaeMi/configs"
	"github.com/richmond2010/DoRaeMi/pkg/audio/analyzers"
	"github.com/richmond2010/DoRaeMi/pkg/audio/pitch"
	"github.com/richmond2010/DoRaeMi/pkg/audio/source"
	"github.com/richmond2010/DoRaeMi/pkg/logging"
	"github.com/richmond2010/DoRaeMi/pkg/output"
)

// BeatEvent is one fired beat
type BeatEvent struct {
	Frame     uint64  `json:"frame" yaml:"frame"`
	Time      float64 `json:"time" yaml:"time"`
	Frequency int     `json:"frequency" yaml:"frequency"`
	Note      string  `json:"note" yaml:"note"`
	Match     string  `json:"match" yaml:"match"`
	Cents     float64 `json:"cents" yaml:"cents"`
	BPM       float64 `json:"bpm" yaml:"bpm"`
}

// Report summarises the analysis of one source
type Report struct {
	Source        string         `json:"source" yaml:"source"`
	SampleRate    int            `json:"sample_rate" yaml:"sample_rate"`
	Frames        int            `json:"frames" yaml:"frames"`
	SkippedFrames int            `json:"skipped_frames" yaml:"skipped_frames"`
	Duration      float64        `json:"duration" yaml:"duration"`
	TempoPeriod   int            `json:"tempo_period" yaml:"tempo_period"`
	TempoBPM      float64        `json:"tempo_bpm" yaml:"tempo_bpm"`
	Calibrated    bool           `json:"calibrated" yaml:"calibrated"`
	Notes         map[string]int `json:"notes" yaml:"notes"`
	Beats         []BeatEvent    `json:"beats" yaml:"beats"`
}

// DominantNote returns the note detected in the most frames
func (r *Report) DominantNote() (string, int) {
	names := make([]string, 0, len(r.Notes))
	for n := range r.Notes {
		names = append(names, n)
	}
	sort.Strings(names)

	best, count := "", 0
	for _, n := range names {
		if r.Notes[n] > count {
			best, count = n, r.Notes[n]
		}
	}
	return best, count
}

// Title implements output.Titled
func (r *Report) Title() string {
	return "Beats in " + filepath.Base(r.Source)
}

// Headers implements output.Tabular
func (r *Report) Headers() []string {
	return []string{"frame", "time_s", "frequency_hz", "note", "match", "cents", "bpm"}
}

// Rows implements output.Tabular
func (r *Report) Rows(precision int) [][]string {
	rows := make([][]string, 0, len(r.Beats))
	for _, b := range r.Beats {
		rows = append(rows, []string{
			strconv.FormatUint(b.Frame, 10),
			output.Float(b.Time, precision),
			strconv.Itoa(b.Frequency),
			b.Note,
			output.HeaderName(b.Match),
			output.Float(b.Cents, precision),
			output.Float(b.BPM, precision),
		})
	}
	return rows
}

// Summary implements output.Summarizer
func (r *Report) Summary(precision int) [][2]string {
	table := "default"
	if r.Calibrated {
		table = "calibrated"
	}
	note, frames := r.DominantNote()
	if note == "" {
		note = "none"
	}

	return [][2]string{
		{"Frames", strconv.Itoa(r.Frames)},
		{"Skipped frames", strconv.Itoa(r.SkippedFrames)},
		{"Duration (s)", output.Float(r.Duration, precision)},
		{"Tempo (BPM)", output.Float(r.TempoBPM, precision)},
		{"Beats", strconv.Itoa(len(r.Beats))},
		{"Dominant note", fmt.Sprintf("%s (%d frames)", note, frames)},
		{"Pitch table", table},
	}
}

// beatRecorder collects beat events from the engine's listener callback
type beatRecorder struct {
	ctx    *Context
	events []BeatEvent
}

func (r *beatRecorder) OnBeatDetected(frequencyHz int) {
	index := r.ctx.Engine.FrameIndex()
	_, bpm := r.ctx.Engine.Tempo()
	cls := r.ctx.ActiveTable().Classify(float64(frequencyHz))

	r.events = append(r.events, BeatEvent{
		Frame:     index,
		Time:      float64(index) * r.ctx.Engine.FramePeriod(),
		Frequency: frequencyHz,
		Note:      cls.Entry.Note.Name,
		Match:     cls.Kind.String(),
		Cents:     cls.Cents,
		BPM:       bpm,
	})
}

// Analyze runs src to exhaustion. Malformed frames are logged and skipped.
func (c *Context) Analyze(ctx context.Context, name string, src source.Source) (*Report, error) {
	spectral := c.Engine.Config().Spectral
	if src.SampleRate() != spectral.SampleRate || src.BufferSize() != spectral.BufferSize {
		return nil, fmt.Errorf("source %s delivers %d Hz frames of %d samples, engine expects %d Hz and %d",
			name, src.SampleRate(), src.BufferSize(), spectral.SampleRate, spectral.BufferSize)
	}

	rec := &beatRecorder{ctx: c}
	c.Engine.AddListener(rec)
	defer c.Engine.RemoveListener(rec)

	report := &Report{
		Source:     name,
		SampleRate: src.SampleRate(),
		Calibrated: c.Calibrated(),
		Notes:      make(map[string]int),
	}

	frame := analyzers.NewSpectralFrame(src.BufferSize(), src.SampleRate())
	for {
		err := src.Next(ctx, frame)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}

		res, err := c.Tick(frame)
		if err != nil {
			c.Logger.Warn("Skipping frame", logging.Fields{
				"source": name,
				"frame":  report.Frames + report.SkippedFrames,
				"error":  err.Error(),
			})
			report.SkippedFrames++
			continue
		}

		report.Frames++
		report.TempoPeriod, report.TempoBPM = res.TempoPeriod, res.BPM

		if res.SoundDetected {
			cls := c.ActiveTable().Classify(res.Frequency)
			if cls.Kind == pitch.MatchExact || cls.Kind == pitch.MatchNearest {
				report.Notes[cls.Entry.Note.Name]++
			}
		}
	}

	report.Duration = float64(report.Frames) * c.Engine.FramePeriod()
	report.Beats = rec.events

	c.Logger.Info("Analysis complete", logging.Fields{
		"source": name,
		"frames": report.Frames,
		"beats":  len(report.Beats),
		"bpm":    report.TempoBPM,
	})

	return report, nil
}

// AnalyzeFile analyzes a WAV file with its own context, adopting the file's
// sample rate
func AnalyzeFile(ctx context.Context, cfg *configs.Config, logger logging.Logger, path string) (*Report, error) {
	window, err := source.ParseWindowType(cfg.Analysis.WindowFunction)
	if err != nil {
		return nil, err
	}

	src, err := source.OpenWAV(path, cfg.Analysis.BufferSize, window, logger)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	fileCfg := *cfg
	fileCfg.Analysis.SampleRate = src.SampleRate()

	appCtx, err := NewContext(&fileCfg, logger.WithFields(logging.Fields{"file": filepath.Base(path)}))
	if err != nil {
		return nil, err
	}
	return appCtx.Analyze(ctx, path, src)
}

// AnalyzeFiles analyzes several files concurrently, one engine per file.
// Reports are returned in the order of paths.
func AnalyzeFiles(ctx context.Context, cfg *configs.Config, logger logging.Logger, paths []string, maxConcurrency int) ([]*Report, error) {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	reports := make([]*Report, len(paths))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(maxConcurrency)
	for i, path := range paths {
		p.Go(func(ctx context.Context) error {
			report, err := AnalyzeFile(ctx, cfg, logger, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			reports[i] = report
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}
