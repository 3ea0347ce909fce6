package main

import (
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HaDeSMonsta/get-flight-data/pkg/logging"
	"github.com/HaDeSMonsta/get-flight-data/pkg/resolver"
	"github.com/HaDeSMonsta/get-flight-data/pkg/services"
	statepkg "github.com/HaDeSMonsta/get-flight-data/pkg/state"
)

func TestFilteredLogs(t *testing.T) {
	ring := logging.NewRingHandler(10, slog.LevelDebug)
	logger := slog.New(ring)
	logger.Debug("Request complete")
	logger.Info("Got departure METAR")
	logger.Error("Data refresh failed")

	if got := filteredLogs(ring, nil, "", "ALL", false, false); len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got := filteredLogs(ring, nil, "", "INFO", false, false); len(got) != 1 || got[0].Message != "Got departure METAR" {
		t.Fatalf("unexpected INFO filter result: %+v", got)
	}
	if got := filteredLogs(ring, nil, "", "ALL", true, false); len(got) != 1 || got[0].Level != slog.LevelError {
		t.Fatalf("unexpected errors-only result: %+v", got)
	}
	if got := filteredLogs(ring, nil, "metar", "", false, false); len(got) != 1 {
		t.Fatalf("expected substring match, got %+v", got)
	}

	recorded := []statepkg.ErrorLogEntry{{Time: time.Now(), Source: "refresh", Message: "boom"}}
	got := filteredLogs(ring, recorded, "", "ALL", false, true)
	if len(got) != 1 || !strings.Contains(got[0].Message, "[refresh] boom") {
		t.Fatalf("unexpected recorded errors: %+v", got)
	}

	if got := filteredLogs(nil, nil, "", "ALL", false, false); got != nil {
		t.Fatalf("expected nil without a ring, got %+v", got)
	}
}

func TestRuntimeRecordSnapshot(t *testing.T) {
	rt := &Runtime{state: statepkg.NewDefaultUIState()}

	if rt.recordSnapshot(services.Snapshot{}) {
		t.Fatal("empty snapshot must not change the UI state")
	}
	if !rt.recordSnapshot(services.Snapshot{LastError: "network down"}) {
		t.Fatal("new error must change the UI state")
	}
	if rt.recordSnapshot(services.Snapshot{LastError: "network down"}) {
		t.Fatal("repeated error must not be recorded twice")
	}
	if len(rt.state.ErrorLog) != 1 || rt.state.ErrorLog[0].Message != "network down" {
		t.Fatalf("unexpected error log: %+v", rt.state.ErrorLog)
	}

	pair := resolver.AirportPair{Departure: "EDDB", Arrival: "EHAM"}
	if !rt.recordSnapshot(services.Snapshot{Airports: pair}) {
		t.Fatal("new airports must change the UI state")
	}
	if rt.state.LastAirports == nil || rt.state.LastAirports.Departure != "EDDB" {
		t.Fatalf("unexpected airports: %+v", rt.state.LastAirports)
	}
	if rt.recordSnapshot(services.Snapshot{Airports: pair}) {
		t.Fatal("same airports must not change the UI state")
	}
}

func TestSaveStateDebounced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ui_state.yaml")
	st := statepkg.NewDefaultUIState()
	st.SuppressAutoUpdates = true
	rt := &Runtime{state: st, statePath: path}

	saveState(rt)
	saveState(rt)
	flushState(rt)

	loaded, err := statepkg.LoadUIState(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loaded.SuppressAutoUpdates {
		t.Error("expected suppress flag to persist")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
