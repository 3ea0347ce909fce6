package state

// ui_state.go
//
// Persisted preferences for the desktop front-end. The model is kept in core
// so the GUI and any future front-end share one definition.
//
// Thread Safety: UIState is *not* synchronized. Callers guard concurrent
// access (the GUI runtime holds its own mutex).

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// UIState represents the persisted desktop UI state (YAML).
type UIState struct {
	StateVersion        int             `yaml:"stateVersion"`
	SavedAt             time.Time       `yaml:"savedAt"`
	Window              WindowGeometry  `yaml:"window"`
	Theme               string          `yaml:"theme"` // light | dark
	SuppressAutoUpdates bool            `yaml:"suppressAutoUpdates"`
	Logging             LoggingCfg      `yaml:"logging"`
	LastAirports        *AirportsMeta   `yaml:"lastAirports,omitempty"`
	ErrorLog            []ErrorLogEntry `yaml:"errorLog,omitempty"`
}

// WindowGeometry tracks last window geometry.
type WindowGeometry struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// LoggingCfg controls in-memory logging capture.
type LoggingCfg struct {
	RingBufferSize int    `yaml:"ringBufferSize"`
	Level          string `yaml:"level"` // info | debug | warn | error
}

// AirportsMeta remembers the last resolved flight plan.
type AirportsMeta struct {
	Departure  string    `yaml:"departure"`
	Arrival    string    `yaml:"arrival"`
	ResolvedAt time.Time `yaml:"resolvedAt"`
}

// ErrorLogEntry allows structured recent error display.
type ErrorLogEntry struct {
	Time    time.Time `yaml:"time"`
	Source  string    `yaml:"source"`
	Message string    `yaml:"message"`
}

// NewDefaultUIState creates a new initialized UIState with sane defaults.
func NewDefaultUIState() *UIState {
	return &UIState{
		StateVersion: 1,
		SavedAt:      time.Now().UTC(),
		Window:       WindowGeometry{Width: 720, Height: 560},
		Theme:        "light",
		Logging:      LoggingCfg{RingBufferSize: 2000, Level: "info"},
		ErrorLog:     []ErrorLogEntry{},
	}
}

// LoadUIState loads a UIState from disk, returning defaults if the file is missing.
func LoadUIState(path string) (*UIState, error) {
	if path == "" {
		path = DefaultUIStatePath()
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultUIState(), nil
		}
		return nil, fmt.Errorf("state: read failed: %w", err)
	}
	var st UIState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("state: parse failed: %w", err)
	}
	normalizeUIState(&st)
	return &st, nil
}

// SaveUIState persists the state atomically to disk.
func SaveUIState(st *UIState, path string) error {
	if st == nil {
		return errors.New("state: nil UIState")
	}
	if path == "" {
		path = DefaultUIStatePath()
	}
	st.SavedAt = time.Now().UTC()

	out, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("state: marshal failed: %w", err)
	}
	if err := writeFileAtomic(path, out); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	return nil
}

// DefaultUIStatePath returns the OS-specific default path for UI state.
func DefaultUIStatePath() string {
	return filepath.Join(UserConfigDir(), "gfd", "ui_state.yaml")
}

// UserConfigDir attempts to resolve a configuration directory in a portable way.
func UserConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config")
	}
	return "."
}

func normalizeUIState(st *UIState) {
	if st.StateVersion <= 0 {
		st.StateVersion = 1
	}
	if st.Theme == "" {
		st.Theme = "light"
	}
	if st.Window.Width <= 0 || st.Window.Height <= 0 {
		st.Window = WindowGeometry{Width: 720, Height: 560}
	}
	if st.Logging.RingBufferSize <= 0 {
		st.Logging.RingBufferSize = 2000
	}
	if st.Logging.Level == "" {
		st.Logging.Level = "info"
	}
	if st.ErrorLog == nil {
		st.ErrorLog = []ErrorLogEntry{}
	}
}

// AppendError records an error entry, keeping at most maxItems (newest last).
func (s *UIState) AppendError(source, message string, maxItems int) {
	s.ErrorLog = append(s.ErrorLog, ErrorLogEntry{
		Time:    time.Now().UTC(),
		Source:  source,
		Message: message,
	})
	if maxItems > 0 && len(s.ErrorLog) > maxItems {
		s.ErrorLog = s.ErrorLog[len(s.ErrorLog)-maxItems:]
	}
}
