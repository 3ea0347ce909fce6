package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HaDeSMonsta/get-flight-data/pkg/history"
	"github.com/HaDeSMonsta/get-flight-data/pkg/server"
	"github.com/HaDeSMonsta/get-flight-data/pkg/services"
)

// serve command flags
type serveFlags struct {
	addr      string
	noHistory bool
}

var srvFlags serveFlags

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the flight data display over HTTP",
		Long: strings.TrimSpace(`
Run the refresh scheduler and serve a web page that shows the report, with
a JSON API and a websocket that pushes every update. Published reports are
stored in the history database unless --no-history is given.

Examples:
  gfd serve
  gfd serve --addr :9090
`),
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	c.Flags().StringVar(&srvFlags.addr, "addr", "", "Listen address (default from config server.addr)")
	c.Flags().BoolVar(&srvFlags.noHistory, "no-history", false, "Do not store published reports")
	return c
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(true)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := server.Options{Credentials: rt.creds}
	if rt.logs.Ring != nil {
		opts.Logs = rt.logs.Ring
	}

	var recorder services.Recorder
	if !srvFlags.noHistory {
		store, err := history.Open(rt.cfg.Storage.HistoryDB)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer store.Close()
		opts.History = store
		recorder = store
	}

	sched, err := newScheduler(rt, recorder)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	defer sched.Stop()
	watchCredentials(ctx, rt, sched)

	addr := srvFlags.addr
	if addr == "" {
		addr = rt.cfg.Server.Addr
	}
	slog.Info("Starting web display", "addr", addr, "history", recorder != nil)
	fmt.Fprintf(os.Stderr, "Serving flight data on http://%s\n", addr)
	return server.New(sched, opts).ListenAndServe(ctx, addr)
}
