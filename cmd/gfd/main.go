package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HaDeSMonsta/get-flight-data/pkg/config"
	"github.com/HaDeSMonsta/get-flight-data/pkg/fetch"
	"github.com/HaDeSMonsta/get-flight-data/pkg/logging"
	"github.com/HaDeSMonsta/get-flight-data/pkg/resolver"
	"github.com/HaDeSMonsta/get-flight-data/pkg/state"
)

// build-time override (e.g. -ldflags "-X main.version=1.2.3")
var version = "dev"

// Global (root-level) flag variables
var (
	flagVerbose   bool
	flagDebug     bool
	flagConfig    string
	flagEphemeral bool
)

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		// If Execute() returns an error, logging may or may not be initialized yet.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root Cobra command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gfd",
		Short: "Flight data CLI",
		Long: strings.TrimSpace(`
gfd - departure and arrival weather for your current flight plan

Resolves the airports of the latest SimBrief flight plan, then fetches the
METAR and the VATSIM ATIS of both and shows them side by side. The one-shot
'report' command prints a single report; 'watch' and 'serve' keep it fresh
every five minutes.`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (info) logging")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging (overrides --verbose)")
	cmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Config file (.yaml or .toml; default "+config.DefaultPath()+")")
	cmd.PersistentFlags().BoolVar(&flagEphemeral, "ephemeral", false, "Keep credentials in memory only (environment variables still apply)")
	cmd.Version = version

	// Add subcommands
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCredentialsCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// newVersionCmd prints version info (simple helper).
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gfd version: %s\n", version)
		},
	}
}

func consoleLevel() slog.Level {
	switch {
	case flagDebug:
		return slog.LevelDebug
	case flagVerbose:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

func initLogging() {
	level := consoleLevel()
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging initialized", "level", level.String())
}

// appRuntime bundles what the long-running and one-shot commands share.
type appRuntime struct {
	cfg       *config.Config
	logs      *logging.Pipeline
	creds     state.CredentialStore
	fileCreds *state.FileCredentialStore
	factory   *resolver.Factory
}

// openRuntime loads the config and replaces the console-only logger with the
// full pipeline. echo mirrors log file lines to stdout when the config asks
// for it; commands that print machine-readable output pass false.
func openRuntime(echo bool) (*appRuntime, error) {
	cfg, err := config.LoadOrDefault(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logs, err := logging.NewPipeline(logging.Options{
		Console:      os.Stderr,
		ConsoleLevel: consoleLevel(),
		FilePath:     cfg.Logging.File,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Echo:         echo && cfg.Logging.Echo,
		RingSize:     cfg.Logging.RingSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logs.Logger())

	rt := &appRuntime{
		cfg:     cfg,
		logs:    logs,
		factory: resolver.NewFactory(fetch.NewHTTPFetcher(cfg.FetchOptions()), cfg.ResolverEndpoints()),
	}
	if flagEphemeral {
		slog.Debug("Using in-memory credentials")
		rt.creds = state.NewInMemoryCredentialStore(state.Credentials{})
	} else {
		rt.fileCreds = state.NewFileCredentialStore(cfg.Credentials.File)
		rt.creds = rt.fileCreds
	}
	return rt, nil
}

// Close flushes the log file and restores console-only logging.
func (rt *appRuntime) Close() {
	initLogging()
	if err := rt.logs.Close(); err != nil {
		slog.Warn("Failed to close log file", "error", err)
	}
}
