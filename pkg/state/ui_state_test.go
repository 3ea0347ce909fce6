package state

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewDefaultUIState(t *testing.T) {
	st := NewDefaultUIState()
	if st == nil {
		t.Fatal("expected non-nil state")
	}
	if st.StateVersion != 1 {
		t.Errorf("expected StateVersion 1, got %d", st.StateVersion)
	}
	if st.Theme != "light" {
		t.Errorf("expected default theme 'light', got %s", st.Theme)
	}
	if st.SuppressAutoUpdates {
		t.Error("expected automatic updates enabled by default")
	}
}

func TestDefaultUIStatePath(t *testing.T) {
	path := DefaultUIStatePath()
	if !strings.Contains(path, "gfd") {
		t.Errorf("expected path to contain 'gfd', got %s", path)
	}
	if !strings.HasSuffix(path, ".yaml") {
		t.Errorf("expected path to end with .yaml, got %s", path)
	}
}

func TestSaveUIState_LoadUIState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ui_state.yaml")

	st := NewDefaultUIState()
	st.Theme = "dark"
	st.SuppressAutoUpdates = true
	st.LastAirports = &AirportsMeta{Departure: "EDDB", Arrival: "EHAM"}

	if err := SaveUIState(st, path); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}

	loaded, err := LoadUIState(path)
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	if loaded.Theme != "dark" {
		t.Errorf("expected theme 'dark', got %s", loaded.Theme)
	}
	if !loaded.SuppressAutoUpdates {
		t.Error("expected suppress flag to persist")
	}
	if loaded.LastAirports == nil || loaded.LastAirports.Departure != "EDDB" {
		t.Errorf("expected last airports to persist, got %+v", loaded.LastAirports)
	}
}

func TestLoadUIState_MissingFileReturnsDefaults(t *testing.T) {
	st, err := LoadUIState(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Window.Width != 720 {
		t.Errorf("expected default width, got %d", st.Window.Width)
	}
}

func TestLoadUIState_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("window: [unclosed"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := LoadUIState(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNormalizeUIState(t *testing.T) {
	st := &UIState{}
	normalizeUIState(st)
	if st.StateVersion != 1 || st.Theme != "light" || st.Logging.RingBufferSize != 2000 {
		t.Errorf("defaults not applied: %+v", st)
	}
	if st.ErrorLog == nil {
		t.Error("expected ErrorLog initialized")
	}
}

func TestUIState_AppendErrorTrims(t *testing.T) {
	st := NewDefaultUIState()
	for i := 0; i < 5; i++ {
		st.AppendError("data", string(rune('a'+i)), 3)
	}
	if len(st.ErrorLog) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(st.ErrorLog))
	}
	if st.ErrorLog[0].Message != "c" || st.ErrorLog[2].Message != "e" {
		t.Errorf("expected newest entries kept, got %+v", st.ErrorLog)
	}
}

func TestSaveUIState_Nil(t *testing.T) {
	if err := SaveUIState(nil, filepath.Join(t.TempDir(), "x.yaml")); err == nil {
		t.Fatal("expected error for nil state")
	}
}

func TestWatchFile_SeesAtomicSave(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(Credentials{AccountName: "first"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- WatchFile(ctx, store.Path(), 20*time.Millisecond, func() { calls.Add(1) })
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	if err := store.Save(Credentials{AccountName: "second"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if calls.Load() == 0 {
		t.Fatal("expected onChange to be called after save")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected watcher error: %v", err)
	}
}
