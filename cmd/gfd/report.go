package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/HaDeSMonsta/get-flight-data/pkg/report"
	consolefmt "github.com/HaDeSMonsta/get-flight-data/pkg/report/format"
	"github.com/HaDeSMonsta/get-flight-data/pkg/state"
)

// report command flags
type reportFlags struct {
	outputFormat string
	outputFile   string
	noColor      bool
	colWidth     int
	timeout      time.Duration
	jsonIndent   bool
}

var rptFlags reportFlags

// newReportCmd creates the 'report' subcommand.
func newReportCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "report",
		Short: "Fetch and print the flight data report once",
		Long: strings.TrimSpace(`
Resolve the latest flight plan, fetch METAR and ATIS for the departure and
arrival airports and print the report.

Formats:
  console (default) - adaptive terminal table
  text              - the classic two-block layout
  json              - machine-readable JSON

Examples:
  gfd report
  gfd report --format json --json-indent
  gfd report --format console --no-color
`),
		Args: cobra.NoArgs,
		RunE: runReport,
	}

	c.Flags().StringVarP(&rptFlags.outputFormat, "format", "f", "console", "Output format: console|text|json")
	c.Flags().StringVarP(&rptFlags.outputFile, "out", "o", "", "Write output to file instead of stdout")
	c.Flags().BoolVar(&rptFlags.noColor, "no-color", false, "Disable ANSI colors (console format)")
	c.Flags().IntVar(&rptFlags.colWidth, "col-width", 0, "Max width of the airport columns (console format; 0=auto)")
	c.Flags().DurationVar(&rptFlags.timeout, "timeout", 2*time.Minute, "Timeout for generating the report")
	c.Flags().BoolVar(&rptFlags.jsonIndent, "json-indent", false, "Pretty-print JSON output")

	return c
}

// runReport executes the flight plan and data pipelines once.
func runReport(cmd *cobra.Command, args []string) error {
	start := time.Now()

	format := strings.ToLower(rptFlags.outputFormat)
	switch format {
	case "console", "text", "json":
	default:
		return fmt.Errorf("unsupported format: %s", rptFlags.outputFormat)
	}

	rt, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	slog.Info("Starting flight data report", "format", format, "provider", rt.cfg.WeatherProvider)

	weather, err := rt.factory.CreateWeatherResolver(rt.cfg.WeatherProvider)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rptFlags.timeout)
	defer cancel()

	accountName, err := state.ResolveCredential(state.FieldAccountName, rt.creds)
	if err != nil {
		return fmt.Errorf("failed to read account name: %w", err)
	}
	pair, err := rt.factory.FlightPlanResolver().Resolve(ctx, accountName)
	if err != nil {
		return fmt.Errorf("failed to load flight plan: %w", err)
	}

	apiKey, err := state.ResolveCredential(state.FieldAPIKey, rt.creds)
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}
	rpt, err := report.NewGenerator(weather, rt.factory.AtisResolver()).Generate(ctx, pair, apiKey)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	out, err := openOutput(rptFlags.outputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch format {
	case "console":
		err = renderConsole(rpt, out)
	case "text":
		err = consolefmt.PlainFormatter{}.Render(rpt, out)
	case "json":
		err = renderJSON(rpt, out)
	}
	if err != nil {
		return fmt.Errorf("failed to render %s output: %w", format, err)
	}

	slog.Info("Flight data report complete",
		"departure", pair.Departure,
		"arrival", pair.Arrival,
		"duration", time.Since(start).String())
	return nil
}

// openOutput returns stdout, or a created file when path is set.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopWriteCloser{w: os.Stdout}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// renderConsole renders the report using the console formatter.
func renderConsole(rpt *report.FlightDataReport, w io.Writer) error {
	formatter := newConsoleFormatter(!rptFlags.noColor)
	if rptFlags.colWidth > 0 {
		formatter.MaxColWidth = rptFlags.colWidth
	}
	return formatter.Render(rpt, w)
}

func newConsoleFormatter(colors bool) *consolefmt.ConsoleFormatter {
	formatter := consolefmt.NewConsoleFormatter()
	formatter.EnableColors = colors
	return formatter
}

// jsonOutput wraps the report with CLI metadata.
type jsonOutput struct {
	Version     string                   `json:"cliVersion"`
	GeneratedAt time.Time                `json:"generatedAt"`
	Report      *report.FlightDataReport `json:"report"`
}

// renderJSON marshals the report to JSON with additional metadata.
func renderJSON(rpt *report.FlightDataReport, w io.Writer) error {
	payload := jsonOutput{
		Version:     version,
		GeneratedAt: time.Now().UTC(),
		Report:      rpt,
	}

	var data []byte
	var err error
	if rptFlags.jsonIndent {
		data, err = json.MarshalIndent(payload, "", "  ")
	} else {
		data, err = json.Marshal(payload)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
	return nil
}

type nopWriteCloser struct {
	w io.Writer
}

func (n nopWriteCloser) Write(p []byte) (int, error) {
	return n.w.Write(p)
}

func (n nopWriteCloser) Close() error {
	// stdout should not be closed
	return nil
}
