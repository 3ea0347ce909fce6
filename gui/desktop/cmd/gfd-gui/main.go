// Package main implements the gfd desktop GUI.
package main

// gfd Desktop GUI
// ---------------
// Features:
//   - Departure and arrival blocks (ATIS, METAR, flight rules) side by side
//   - Background refresh every five minutes via services.Scheduler, with
//     "Reload data" / "Reload flight plan" buttons and a suppress toggle
//   - Credentials form; external edits of the credentials file are picked up
//   - Report history from the SQLite store
//   - Ring-buffer log capture with level filtering
//
// State Persistence:
//   Window size, theme, suppress flag and recent errors live in the YAML UI
//   state file (state.LoadUIState / state.SaveUIState). Mutations trigger a
//   debounced save.
//
// Configuration:
//   Loaded from $GFD_CONFIG, or the default config path when unset.

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	fapp "fyne.io/fyne/v2/app"

	"github.com/HaDeSMonsta/get-flight-data/pkg/config"
	"github.com/HaDeSMonsta/get-flight-data/pkg/fetch"
	"github.com/HaDeSMonsta/get-flight-data/pkg/history"
	"github.com/HaDeSMonsta/get-flight-data/pkg/logging"
	"github.com/HaDeSMonsta/get-flight-data/pkg/report"
	"github.com/HaDeSMonsta/get-flight-data/pkg/resolver"
	"github.com/HaDeSMonsta/get-flight-data/pkg/services"
	statepkg "github.com/HaDeSMonsta/get-flight-data/pkg/state"
)

// version override via -ldflags "-X main.version=..."
var version = "dev"

// maxErrorLog bounds the persisted error list.
const maxErrorLog = 50

// Runtime holds the live (non-persisted) GUI state: the scheduler, the
// stores it writes to and the persisted UI preferences.
type Runtime struct {
	mu sync.RWMutex

	state     *statepkg.UIState
	statePath string

	cfg     *config.Config
	sched   *services.Scheduler
	creds   *statepkg.FileCredentialStore
	history *history.Store
	logs    *logging.RingHandler

	lastError string
}

// NewRuntime wires the resolvers, the scheduler and the stores from cfg.
func NewRuntime(cfg *config.Config, st *statepkg.UIState, statePath string, logs *logging.RingHandler) (*Runtime, error) {
	factory := resolver.NewFactory(fetch.NewHTTPFetcher(cfg.FetchOptions()), cfg.ResolverEndpoints())
	weather, err := factory.CreateWeatherResolver(cfg.WeatherProvider)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		state:     st,
		statePath: statePath,
		cfg:       cfg,
		creds:     statepkg.NewFileCredentialStore(cfg.Credentials.File),
		logs:      logs,
	}

	opts := services.Options{
		Interval:   cfg.Refresh.Interval,
		Poll:       cfg.Refresh.Poll,
		Suppressed: st.SuppressAutoUpdates || cfg.Refresh.SuppressAutoUpdates,
	}
	if store, err := history.Open(cfg.Storage.HistoryDB); err != nil {
		slog.Warn("History disabled", "error", err)
	} else {
		rt.history = store
		opts.Recorder = store
	}

	generator := report.NewGenerator(weather, factory.AtisResolver())
	rt.sched = services.NewScheduler(factory.FlightPlanResolver(), generator, rt.creds, services.NewMemoryState(), opts)
	return rt, nil
}

// Start launches the scheduler and the credentials watcher.
func (rt *Runtime) Start(ctx context.Context) {
	rt.sched.Start(ctx)
	go func() {
		err := statepkg.WatchCredentials(ctx, rt.creds, func(c statepkg.Credentials) {
			if rt.sched.ApplyCredentials(c) {
				slog.Info("Credentials file changed")
			}
		})
		if err != nil {
			slog.Warn("Credentials watcher stopped", "error", err)
		}
	}()
}

// Close stops the scheduler and releases the history database.
func (rt *Runtime) Close() {
	rt.sched.Stop()
	if rt.history != nil {
		if err := rt.history.Close(); err != nil {
			slog.Warn("Failed to close history", "error", err)
		}
	}
}

// recordSnapshot keeps the persisted error log and airports in step with
// the scheduler. It reports whether the UI state changed.
func (rt *Runtime) recordSnapshot(snap services.Snapshot) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	changed := false
	if snap.LastError != rt.lastError {
		rt.lastError = snap.LastError
		if snap.LastError != "" {
			rt.state.AppendError("refresh", snap.LastError, maxErrorLog)
			changed = true
		}
	}
	if !snap.Airports.IsZero() {
		last := rt.state.LastAirports
		if last == nil || last.Departure != snap.Airports.Departure || last.Arrival != snap.Airports.Arrival {
			rt.state.LastAirports = &statepkg.AirportsMeta{
				Departure:  snap.Airports.Departure,
				Arrival:    snap.Airports.Arrival,
				ResolvedAt: time.Now().UTC(),
			}
			changed = true
		}
	}
	return changed
}

func main() {
	app := fapp.NewWithID("gfd.desktop")

	statePath := os.Getenv("GFD_UI_STATE")
	cfg, err := config.LoadOrDefault(os.Getenv("GFD_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if statePath == "" {
		statePath = cfg.Storage.UIState
	}
	if statePath == "" {
		statePath = statepkg.DefaultUIStatePath()
	}
	state, err := statepkg.LoadUIState(statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load UI state: %v\n", err)
		state = statepkg.NewDefaultUIState()
	}

	// Store the theme variant so Fyne applies it.
	switch strings.ToLower(state.Theme) {
	case "dark":
		app.Preferences().SetString("themeVariant", "dark")
	default:
		app.Preferences().SetString("themeVariant", "light")
		state.Theme = "light"
	}

	pipeline, err := logging.NewPipeline(logging.Options{
		Console:      os.Stdout,
		ConsoleLevel: parseLevel(state.Logging.Level),
		FilePath:     cfg.Logging.File,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		RingSize:     state.Logging.RingBufferSize,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer pipeline.Close()
	slog.SetDefault(pipeline.Logger())
	slog.Info("GUI starting", "version", version, "statePath", statePath)

	runtime, err := NewRuntime(cfg, state, statePath, pipeline.Ring)
	if err != nil {
		slog.Error("Failed to start", "error", err)
		os.Exit(1)
	}

	w := app.NewWindow("Flight data")
	w.Resize(fyne.NewSize(float32(state.Window.Width), float32(state.Window.Height)))

	ctx, cancel := context.WithCancel(context.Background())
	root := buildUI(ctx, app, w, runtime)
	w.SetContent(root)

	runtime.Start(ctx)

	w.SetCloseIntercept(func() {
		slog.Info("Window closing - saving state")
		size := w.Canvas().Size()
		runtime.mu.Lock()
		runtime.state.Window = statepkg.WindowGeometry{Width: int(size.Width), Height: int(size.Height)}
		runtime.mu.Unlock()
		flushState(runtime)
		cancel()
		runtime.Close()
		app.Quit()
	})

	w.ShowAndRun()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ----- State Saving (Debounced) -----

var saveMu sync.Mutex

var saveTimer *time.Timer

func saveState(rt *Runtime) {
	saveMu.Lock()
	defer saveMu.Unlock()

	if saveTimer != nil {
		saveTimer.Stop()
	}
	// Debounce writes (250ms)
	saveTimer = time.AfterFunc(250*time.Millisecond, func() {
		saveMu.Lock()
		defer saveMu.Unlock()
		writeState(rt)
	})
}

// flushState cancels a pending debounced save and writes immediately.
func flushState(rt *Runtime) {
	saveMu.Lock()
	defer saveMu.Unlock()
	if saveTimer != nil {
		saveTimer.Stop()
		saveTimer = nil
	}
	writeState(rt)
}

func writeState(rt *Runtime) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := statepkg.SaveUIState(rt.state, rt.statePath); err != nil {
		slog.Error("Failed to save state", "error", err)
	} else {
		slog.Debug("State saved", "path", rt.statePath)
	}
}
