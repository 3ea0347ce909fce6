package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HaDeSMonsta/get-flight-data/pkg/report"
	"github.com/HaDeSMonsta/get-flight-data/pkg/services"
	"github.com/HaDeSMonsta/get-flight-data/pkg/state"
)

var watchNoColor bool

// newWatchCmd creates the 'watch' subcommand.
func newWatchCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "watch",
		Short: "Keep the report on screen and refresh it periodically",
		Long: strings.TrimSpace(`
Run the refresh scheduler in the terminal. The report is re-rendered after
every refresh.

Commands (type and press enter):
  r  reload data now
  f  reload the flight plan
  s  toggle suppression of automatic updates
  q  quit
`),
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
	c.Flags().BoolVar(&watchNoColor, "no-color", false, "Disable ANSI colors")
	return c
}

// newScheduler wires the resolvers from rt into a scheduler.
func newScheduler(rt *appRuntime, recorder services.Recorder) (*services.Scheduler, error) {
	weather, err := rt.factory.CreateWeatherResolver(rt.cfg.WeatherProvider)
	if err != nil {
		return nil, err
	}
	generator := report.NewGenerator(weather, rt.factory.AtisResolver())
	return services.NewScheduler(rt.factory.FlightPlanResolver(), generator, rt.creds, services.NewMemoryState(), services.Options{
		Interval:   rt.cfg.Refresh.Interval,
		Poll:       rt.cfg.Refresh.Poll,
		Suppressed: rt.cfg.Refresh.SuppressAutoUpdates,
		Recorder:   recorder,
	}), nil
}

// watchCredentials feeds external edits of the credentials file to sched.
func watchCredentials(ctx context.Context, rt *appRuntime, sched *services.Scheduler) {
	if rt.fileCreds == nil {
		return
	}
	go func() {
		err := state.WatchCredentials(ctx, rt.fileCreds, func(c state.Credentials) {
			if sched.ApplyCredentials(c) {
				slog.Info("Credentials file changed")
			}
		})
		if err != nil {
			slog.Warn("Credentials watcher stopped", "error", err)
		}
	}()
}

func runWatch(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(true)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched, err := newScheduler(rt, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	defer sched.Stop()
	watchCredentials(ctx, rt, sched)

	commands := make(chan string)
	go readCommands(os.Stdin, commands)

	updates, cancel := sched.State().Subscribe()
	defer cancel()

	view := &watchView{out: os.Stdout, colors: !watchNoColor}
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-updates:
			view.update(snap)
		case line, ok := <-commands:
			if !ok {
				// stdin closed; keep refreshing until interrupted
				commands = nil
				continue
			}
			if quit := handleWatchCommand(sched, line, view.out); quit {
				return nil
			}
		}
	}
}

func readCommands(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- strings.TrimSpace(sc.Text())
	}
}

// handleWatchCommand applies one stdin command and reports whether to quit.
func handleWatchCommand(sched *services.Scheduler, line string, w io.Writer) bool {
	switch strings.ToLower(line) {
	case "":
	case "r":
		fmt.Fprintln(w, "Reloading data...")
		sched.ReloadData()
	case "f":
		fmt.Fprintln(w, "Reloading flight plan...")
		sched.ReloadFlightPlan()
	case "s":
		suppressed := !sched.Suppressed()
		sched.SetSuppressed(suppressed)
		if suppressed {
			fmt.Fprintln(w, "Automatic updates suppressed")
		} else {
			fmt.Fprintln(w, "Automatic updates enabled")
		}
	case "q":
		return true
	default:
		fmt.Fprintf(w, "Unknown command %q (r=reload, f=flight plan, s=suppress, q=quit)\n", line)
	}
	return false
}

// watchView prints only what changed between snapshots.
type watchView struct {
	out    io.Writer
	colors bool

	shown     *report.FlightDataReport
	lastPhase services.Phase
	lastError string
}

func (v *watchView) update(snap services.Snapshot) {
	if snap.Phase != v.lastPhase {
		v.lastPhase = snap.Phase
		if snap.Phase != services.PhaseIdle {
			fmt.Fprintf(v.out, "... %s\n", snap.Phase)
		}
	}
	if snap.LastError != v.lastError {
		v.lastError = snap.LastError
		if snap.LastError != "" {
			fmt.Fprintf(v.out, "Error: %s\n", snap.LastError)
		}
	}
	if snap.Report != nil && snap.Report != v.shown {
		v.shown = snap.Report
		formatter := newConsoleFormatter(v.colors)
		if err := formatter.Render(snap.Report, v.out); err != nil {
			slog.Error("Failed to render report", "error", err)
		}
	}
}
