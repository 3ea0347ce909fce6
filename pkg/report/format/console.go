// Package format provides console rendering utilities for flight data reports.
// It adapts column widths to the terminal and colors the flight rules.
package format

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"github.com/HaDeSMonsta/get-flight-data/pkg/report"
)

// ConsoleFormatter renders a FlightDataReport as a two-column terminal table
// (departure | arrival) that adapts to the current console width.
type ConsoleFormatter struct {
	// MaxColWidth constrains each airport column. If 0, a dynamic width is
	// chosen based on terminal width. Long METARs wrap rather than truncate.
	MaxColWidth int

	// EnableColors toggles ANSI color output for the flight rules cells.
	EnableColors bool
}

// NewConsoleFormatter creates a formatter with sensible defaults.
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{
		MaxColWidth:  0,
		EnableColors: true,
	}
}

const labelColWidth = 14

// Render writes the formatted report to writer.
func (f *ConsoleFormatter) Render(rpt *report.FlightDataReport, writer io.Writer) error {
	if rpt == nil {
		return fmt.Errorf("nil report")
	}

	if _, err := fmt.Fprintf(writer, "%s\n", report.RequestTimeLine(rpt.FetchedAt)); err != nil {
		return fmt.Errorf("failed writing request time: %w", err)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(writer)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = true
	tw.Style().Options.DrawBorder = true

	tw.AppendHeader(table.Row{"", "Departure", "Arrival"})
	tw.AppendRow(table.Row{"ICAO", rpt.Departure.Code, rpt.Arrival.Code})
	tw.AppendRow(table.Row{"Vatsim ATIS", rpt.Departure.Atis.Text(), rpt.Arrival.Atis.Text()})
	tw.AppendRow(table.Row{"METAR", rpt.Departure.Weather.Raw, rpt.Arrival.Weather.Raw})
	tw.AppendRow(table.Row{
		"Flight rules",
		f.flightRulesCell(rpt.Departure.Weather.FlightRules),
		f.flightRulesCell(rpt.Arrival.Weather.FlightRules),
	})

	if colConfigs := f.buildColumnConfig(writer); len(colConfigs) > 0 {
		tw.SetColumnConfigs(colConfigs)
	}

	tw.Render()
	return nil
}

// flightRulesCell returns the category with optional color.
func (f *ConsoleFormatter) flightRulesCell(rules string) string {
	switch strings.ToUpper(strings.TrimSpace(rules)) {
	case "VFR":
		return f.color(rules, text.FgGreen)
	case "MVFR":
		return f.color(rules, text.FgBlue)
	case "IFR":
		return f.color(rules, text.FgRed)
	case "LIFR":
		return f.color(rules, text.FgMagenta)
	default:
		return rules
	}
}

// buildColumnConfig creates per-column sizing to fit the terminal.
func (f *ConsoleFormatter) buildColumnConfig(w io.Writer) []table.ColumnConfig {
	colWidth := f.MaxColWidth
	if colWidth <= 0 {
		termWidth := detectTerminalWidth(w)
		if termWidth <= 0 {
			// Fallback: do not constrain if width unknown
			return nil
		}
		if termWidth < 60 {
			termWidth = 60
		}
		// borders and padding: 4 separators + 2 spaces per column
		colWidth = (termWidth - labelColWidth - 10) / 2
		if colWidth < 20 {
			colWidth = 20
		}
	}

	configs := []table.ColumnConfig{
		{Number: 1, WidthMax: labelColWidth},
	}
	for i := 2; i <= 3; i++ {
		configs = append(configs, table.ColumnConfig{
			Number:           i,
			WidthMax:         colWidth,
			WidthMaxEnforcer: text.WrapSoft,
		})
	}
	return configs
}

// detectTerminalWidth attempts to get terminal width if writer is a file (stdout/stderr).
func detectTerminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			return width
		}
	}
	return -1
}

func (f *ConsoleFormatter) color(s string, c text.Color) string {
	if !f.EnableColors {
		return s
	}
	return text.Colors{c}.Sprint(s)
}

// PlainFormatter renders the classic text layout with a dashed separator.
type PlainFormatter struct{}

// Render writes rpt.Text() followed by a newline.
func (PlainFormatter) Render(rpt *report.FlightDataReport, w io.Writer) error {
	if rpt == nil {
		return fmt.Errorf("nil report")
	}
	if _, err := fmt.Fprintln(w, rpt.Text()); err != nil {
		return fmt.Errorf("failed writing report: %w", err)
	}
	return nil
}

// RenderConsole renders the provided report to the writer using the default console formatter.
func RenderConsole(rpt *report.FlightDataReport, w io.Writer) error {
	return NewConsoleFormatter().Render(rpt, w)
}
