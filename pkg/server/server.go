// Package server exposes the refresh state over HTTP: a small embedded web
// page, a JSON API for the display controls and a websocket that pushes every
// snapshot.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/HaDeSMonsta/get-flight-data/pkg/history"
	"github.com/HaDeSMonsta/get-flight-data/pkg/logging"
	"github.com/HaDeSMonsta/get-flight-data/pkg/services"
	"github.com/HaDeSMonsta/get-flight-data/pkg/state"
)

//go:embed static
var staticFiles embed.FS

const (
	writeWait       = 10 * time.Second
	defaultLogLimit = 200
)

// Controller is the subset of the scheduler the HTTP surface drives.
type Controller interface {
	State() services.RefreshState
	ReloadData()
	ReloadFlightPlan()
	SetSuppressed(suppressed bool)
	SaveCredentials(ctx context.Context, c state.Credentials) error
}

// HistoryLister lists stored reports.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

// LogSource returns recent log records.
type LogSource interface {
	Tail(n int) []logging.Entry
}

// Options wires the optional collaborators.
type Options struct {
	Credentials state.CredentialStore
	History     HistoryLister
	Logs        LogSource
}

// Message is the websocket frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Server serves the web display surface.
type Server struct {
	ctrl     Controller
	opts     Options
	upgrader websocket.Upgrader
}

// New creates a server for ctrl.
func New(ctrl Controller, opts Options) *Server {
	return &Server{
		ctrl: ctrl,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/", s.handleIndex)
	r.Get("/ws", s.handleWebsocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/report", s.handleReport)
		r.Post("/reload", s.handleReload)
		r.Post("/reload-flight-plan", s.handleReloadFlightPlan)
		r.Put("/suppress", s.handleSuppress)
		r.Get("/credentials", s.handleGetCredentials)
		r.Put("/credentials", s.handlePutCredentials)
		r.Get("/history", s.handleHistory)
		r.Get("/logs", s.handleLogs)
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Web display listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := fs.ReadFile(staticFiles, "static/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "index page missing")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.State().Read())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.ctrl.ReloadData()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reload requested"})
}

func (s *Server) handleReloadFlightPlan(w http.ResponseWriter, r *http.Request) {
	s.ctrl.ReloadFlightPlan()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "flight plan reload requested"})
}

func (s *Server) handleSuppress(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Suppressed *bool `json:"suppressed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Suppressed == nil {
		writeError(w, http.StatusBadRequest, `expected {"suppressed": true|false}`)
		return
	}
	s.ctrl.SetSuppressed(*body.Suppressed)
	writeJSON(w, http.StatusOK, map[string]bool{"suppressed": *body.Suppressed})
}

type credentialsView struct {
	AccountName string `json:"accountName"`
	APIKey      string `json:"apiKey"`
	HasAPIKey   bool   `json:"hasApiKey"`
}

func (s *Server) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	if s.opts.Credentials == nil {
		writeError(w, http.StatusNotFound, "no credential store configured")
		return
	}
	c, err := s.opts.Credentials.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, credentialsView{
		AccountName: c.AccountName,
		APIKey:      state.RedactToken(c.APIKey),
		HasAPIKey:   c.APIKey != "",
	})
}

func (s *Server) handlePutCredentials(w http.ResponseWriter, r *http.Request) {
	if s.opts.Credentials == nil {
		writeError(w, http.StatusNotFound, "no credential store configured")
		return
	}
	var body struct {
		AccountName *string `json:"accountName"`
		APIKey      *string `json:"apiKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	current, err := s.opts.Credentials.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if body.AccountName != nil {
		current.AccountName = *body.AccountName
	}
	// an omitted key keeps the stored one
	if body.APIKey != nil {
		current.APIKey = *body.APIKey
	}

	if err := s.ctrl.SaveCredentials(r.Context(), current); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.handleGetCredentials(w, r)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeJSON(w, http.StatusOK, []history.Entry{})
		return
	}
	limit, err := queryInt(r, "limit", history.DefaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.opts.History.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.opts.Logs == nil {
		writeJSON(w, http.StatusOK, []logging.Entry{})
		return
	}
	limit, err := queryInt(r, "limit", defaultLogLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Logs.Tail(limit))
}

// handleWebsocket pushes the current snapshot and every later one.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Failed to upgrade websocket", "error", err, "remote_addr", r.RemoteAddr)
		return
	}
	defer conn.Close()

	updates, cancel := s.ctrl.State().Subscribe()
	defer cancel()

	// the reader only notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("Websocket read error", "error", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(Message{Type: "snapshot", Data: snap}); err != nil {
				slog.Debug("Websocket write failed", "error", err)
				return
			}
		}
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + key + " parameter")
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}
