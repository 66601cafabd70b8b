// Package output renders command results as a styled table, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Format names an output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Tabular is implemented by results that can be shown as a table
type Tabular interface {
	Headers() []string
	Rows(precision int) [][]string
}

// Titled results get a heading above their table
type Titled interface {
	Title() string
}

// Highlighter marks rows to render in the highlight style
type Highlighter interface {
	Highlight(row int) bool
}

// Summarizer results print key/value lines under their table
type Summarizer interface {
	Summary(precision int) [][2]string
}

// Options configure a formatter
type Options struct {
	Precision int
	Colors    bool
}

// Formatter writes a result to w
type Formatter interface {
	Format(w io.Writer, v any) error
}

// NewFormatter returns the formatter for format
func NewFormatter(format string, opts Options) (Formatter, error) {
	switch Format(strings.ToLower(format)) {
	case FormatTable, "":
		return &TableFormatter{opts: opts}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// JSONFormatter writes indented JSON
type JSONFormatter struct{}

// Format encodes v as JSON
func (f *JSONFormatter) Format(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// YAMLFormatter writes YAML
type YAMLFormatter struct{}

// Format encodes v as YAML
func (f *YAMLFormatter) Format(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

// TableFormatter renders Tabular results with lipgloss. Values that are
// not Tabular fall back to YAML.
type TableFormatter struct {
	opts Options
}

var titleCaser = cases.Title(language.English)

// HeaderName turns a snake_case key into a title
func HeaderName(key string) string {
	return titleCaser.String(strings.ReplaceAll(key, "_", " "))
}

// Format renders v
func (f *TableFormatter) Format(w io.Writer, v any) error {
	if list, ok := v.([]Tabular); ok {
		for _, item := range list {
			if err := f.Format(w, item); err != nil {
				return err
			}
		}
		return nil
	}

	t, ok := v.(Tabular)
	if !ok {
		return (&YAMLFormatter{}).Format(w, v)
	}

	var b strings.Builder
	if titled, ok := v.(Titled); ok && titled.Title() != "" {
		b.WriteString(f.style(TitleStyle).Render(titled.Title()))
		b.WriteString("\n")
	}

	headers := make([]string, 0, len(t.Headers()))
	for _, h := range t.Headers() {
		headers = append(headers, HeaderName(h))
	}

	highlighter, _ := v.(Highlighter)
	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(f.style(KeyStyle)).
		Headers(headers...).
		Rows(t.Rows(f.opts.Precision)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.style(HeaderStyle)
			case highlighter != nil && highlighter.Highlight(row):
				return f.style(HighlightStyle)
			default:
				return CellStyle
			}
		})

	b.WriteString(tbl.String())
	b.WriteString("\n")

	if s, ok := v.(Summarizer); ok {
		for _, kv := range s.Summary(f.opts.Precision) {
			b.WriteString(f.style(KeyStyle).Render(kv[0] + ":"))
			b.WriteString(" ")
			b.WriteString(kv[1])
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// style drops colours when they are disabled, keeping layout
func (f *TableFormatter) style(s lipgloss.Style) lipgloss.Style {
	if f.opts.Colors {
		return s
	}
	return s.UnsetForeground().UnsetBold()
}

// Float formats v with precision decimals
func Float(v float64, precision int) string {
	return fmt.Sprintf("%.*f", precision, v)
}
