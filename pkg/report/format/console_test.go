package format

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/HaDeSMonsta/get-flight-data/pkg/report"
	"github.com/HaDeSMonsta/get-flight-data/pkg/resolver"
)

// helper to build a sample report
func sampleReport() *report.FlightDataReport {
	return report.NewFlightDataReport(
		report.AirportData{
			Code:    "EDDB",
			Atis:    resolver.AtisReport{Lines: []string{"BERLIN INFORMATION ALPHA", "RWY 25R"}},
			Weather: resolver.WeatherReport{Raw: "EDDB 251820Z AUTO 24010KT 9999 SCT027 09/06 Q1005 NOSIG", FlightRules: "VFR"},
		},
		report.AirportData{
			Code:    "EHAM",
			Atis:    resolver.UnavailableAtis(),
			Weather: resolver.WeatherReport{Raw: "EHAM 251825Z 22012KT 1500 BR OVC003 12/11 Q1004", FlightRules: "IFR"},
		},
		time.Date(2024, 3, 25, 18, 20, 0, 0, time.Local),
	)
}

func TestConsoleFormatterBasicRender(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false // deterministic output for assertions

	if err := f.Render(sampleReport(), &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	out := buf.String()
	expectContains(t, out, "Request time: 18:20", "request time missing")
	expectContains(t, out, "DEPARTURE", "departure header missing")
	expectContains(t, out, "ARRIVAL", "arrival header missing")
	expectContains(t, out, "EDDB", "departure code missing")
	expectContains(t, out, "EHAM", "arrival code missing")
	expectContains(t, out, "BERLIN INFORMATION ALPHA", "atis line missing")
	expectContains(t, out, "RWY 25R", "second atis line missing")
	expectContains(t, out, "No vatsim ATIS available", "unavailable sentinel missing")
	expectContains(t, out, "VFR", "flight rules missing")

	if strings.Contains(out, "\x1b[") {
		t.Errorf("unexpected ANSI color sequences found when colors disabled")
	}
}

func TestConsoleFormatterColorsEnabled(t *testing.T) {
	var buf bytes.Buffer
	text.EnableColors()
	f := NewConsoleFormatter()
	f.EnableColors = true

	if err := f.Render(sampleReport(), &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("expected ANSI color sequences for flight rules")
	}
}

func TestConsoleFormatterWrapsLongMETAR(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false
	f.MaxColWidth = 20

	if err := f.Render(sampleReport(), &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	out := buf.String()
	// wrapped, not truncated: every METAR token is still present
	for _, tok := range []string{"EDDB", "251820Z", "Q1005", "NOSIG"} {
		expectContains(t, out, tok, "wrapped METAR lost token "+tok)
	}
	if strings.Contains(out, "…") {
		t.Errorf("expected wrapping, found truncation ellipsis")
	}
}

func TestConsoleFormatterNilReport(t *testing.T) {
	if err := NewConsoleFormatter().Render(nil, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for nil report")
	}
}

func TestPlainFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (PlainFormatter{}).Render(sampleReport(), &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	out := buf.String()
	expectContains(t, out, strings.Repeat("-", 100), "separator missing")
	expectContains(t, out, "ICAO: EDDB\n\nVatsim ATIS: BERLIN INFORMATION ALPHA\nRWY 25R\nMETAR:", "departure block mismatch")
	if !strings.HasSuffix(out, "Flight rules: IFR\n") {
		t.Errorf("expected output to end with arrival flight rules, got %q", out)
	}
}

func expectContains(t *testing.T, haystack, needle, msg string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Errorf("%s: expected to find %q in:\n%s", msg, needle, haystack)
	}
}
