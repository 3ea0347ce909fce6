// Package services runs the background refresh of flight data.
//
// A Scheduler owns two kinds of task: resolving the airport pair from the
// flight plan, and fetching METAR and ATIS for that pair. At most one task of
// each kind runs at a time. Results are published to a RefreshState that the
// display layers read.
//
// Usage:
//
//	sched := services.NewScheduler(planner, generator, store, state, services.Options{})
//	sched.Start(ctx)
//	defer sched.Stop()
//	sched.ReloadData()
package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/HaDeSMonsta/get-flight-data/pkg/report"
	"github.com/HaDeSMonsta/get-flight-data/pkg/resolver"
	"github.com/HaDeSMonsta/get-flight-data/pkg/state"
)

const (
	// DefaultInterval is the time between automatic data refreshes.
	DefaultInterval = 5 * time.Minute
	// DefaultPoll is how often the loop evaluates the transitions.
	DefaultPoll = time.Second
)

// FlightPlanSource resolves the airport pair for an account.
type FlightPlanSource interface {
	Resolve(ctx context.Context, accountName string) (resolver.AirportPair, error)
}

// ReportSource builds a report for an airport pair.
type ReportSource interface {
	Generate(ctx context.Context, pair resolver.AirportPair, apiKey string) (*report.FlightDataReport, error)
}

// Recorder persists published reports.
type Recorder interface {
	Record(ctx context.Context, rpt *report.FlightDataReport) error
}

// Options tunes the scheduler.
type Options struct {
	Interval   time.Duration
	Poll       time.Duration
	Suppressed bool
	Recorder   Recorder
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Scheduler drives the refresh state machine.
type Scheduler struct {
	planner   FlightPlanSource
	generator ReportSource
	creds     state.CredentialStore
	state     RefreshState
	recorder  Recorder
	interval  time.Duration
	poll      time.Duration
	now       func() time.Time

	taskCtx    context.Context
	cancelTask context.CancelFunc
	nudge      chan struct{}
	tasks      sync.WaitGroup
	loop       sync.WaitGroup

	mu          sync.Mutex
	suppressed  bool
	planPending bool
	manual      bool
	forceData   bool
	planRetryAt time.Time
	lastRefresh time.Time
	airports    resolver.AirportPair
	lastCreds   state.Credentials
	planTask    *TaskHandle
	dataTask    *TaskHandle
	stopLoop    context.CancelFunc
}

// NewScheduler creates a scheduler in the flight plan loading phase. The
// first Tick starts the initial flight plan load.
func NewScheduler(planner FlightPlanSource, generator ReportSource, creds state.CredentialStore, rs RefreshState, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Poll <= 0 {
		opts.Poll = DefaultPoll
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if rs == nil {
		rs = NewMemoryState()
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		planner:     planner,
		generator:   generator,
		creds:       creds,
		state:       rs,
		recorder:    opts.Recorder,
		interval:    opts.Interval,
		poll:        opts.Poll,
		now:         opts.Now,
		taskCtx:     taskCtx,
		cancelTask:  cancel,
		nudge:       make(chan struct{}, 1),
		suppressed:  opts.Suppressed,
		planPending: true,
	}
	if creds != nil {
		if c, err := creds.Load(); err == nil {
			s.lastCreds = c
		}
	}
	rs.SetSuppressed(opts.Suppressed)
	rs.SetPhase(PhaseFlightPlanLoading)
	return s
}

// State returns the shared refresh state.
func (s *Scheduler) State() RefreshState {
	return s.state
}

// Phase returns the current phase.
func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseLocked()
}

// Start runs the scheduling loop until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopLoop != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.stopLoop = cancel
	s.mu.Unlock()

	s.loop.Add(1)
	go s.run(loopCtx)
	slog.Info("Scheduler started", "interval", s.interval, "poll", s.poll)
}

// Stop ends the loop, cancels in-flight fetches and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop := s.stopLoop
	s.stopLoop = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.loop.Wait()
	s.cancelTask()
	s.tasks.Wait()
	slog.Info("Scheduler stopped")
}

// Wait blocks until all in-flight tasks have finished.
func (s *Scheduler) Wait() {
	s.tasks.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.loop.Done()
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	s.Tick(s.now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(s.now())
		case <-s.nudge:
			s.Tick(s.now())
		}
	}
}

// Tick evaluates the transitions once and returns the tasks it started.
func (s *Scheduler) Tick(now time.Time) []*TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	var started []*TaskHandle

	if s.planTask == nil && !s.planPending && s.airports.IsZero() &&
		!s.planRetryAt.IsZero() && !s.suppressed && !now.Before(s.planRetryAt) {
		s.planPending = true
	}
	if s.planPending && s.planTask == nil {
		s.planPending = false
		started = append(started, s.startPlanLocked(now))
	}
	if s.planTask != nil {
		// the completed load forces a data refresh
		s.syncPhaseLocked()
		return started
	}

	if s.dataTask == nil && !s.airports.IsZero() && s.dataDueLocked(now) {
		s.forceData = false
		s.manual = false
		started = append(started, s.startDataLocked(now))
	}
	s.syncPhaseLocked()
	return started
}

func (s *Scheduler) dataDueLocked(now time.Time) bool {
	if s.forceData || s.manual {
		return true
	}
	if s.suppressed {
		return false
	}
	return s.lastRefresh.IsZero() || now.Sub(s.lastRefresh) >= s.interval
}

// ReloadData requests a data refresh on the next tick, overriding suppression
// once. It is ignored while a data task is running.
func (s *Scheduler) ReloadData() {
	s.mu.Lock()
	if s.dataTask != nil {
		s.mu.Unlock()
		slog.Debug("Ignoring data reload; refresh already running")
		return
	}
	s.manual = true
	s.mu.Unlock()
	s.poke()
}

// ReloadFlightPlan requests a flight plan load on the next tick. It is
// ignored while a flight plan task is running.
func (s *Scheduler) ReloadFlightPlan() {
	s.mu.Lock()
	if s.planTask != nil {
		s.mu.Unlock()
		slog.Debug("Ignoring flight plan reload; load already running")
		return
	}
	s.planPending = true
	s.syncPhaseLocked()
	s.mu.Unlock()
	s.poke()
}

// SetSuppressed toggles automatic refreshes. Manual and forced refreshes still run.
func (s *Scheduler) SetSuppressed(suppressed bool) {
	s.mu.Lock()
	s.suppressed = suppressed
	s.mu.Unlock()
	s.state.SetSuppressed(suppressed)
	slog.Info("Automatic updates toggled", "suppressed", suppressed)
}

// Suppressed reports whether automatic refreshes are blocked.
func (s *Scheduler) Suppressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressed
}

// SaveCredentials writes c to the store. A new account name triggers a flight
// plan reload; otherwise a manual data reload follows.
func (s *Scheduler) SaveCredentials(ctx context.Context, c state.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.creds == nil {
		return errors.New("no credential store configured")
	}
	if err := s.creds.Save(c); err != nil {
		return err
	}
	saved, err := s.creds.Load()
	if err != nil {
		return err
	}
	slog.Info("Credentials saved", "account", saved.AccountName, "apiKey", state.RedactToken(saved.APIKey))
	if !s.ApplyCredentials(saved) {
		s.ReloadData()
	}
	return nil
}

// ApplyCredentials reacts to credentials that changed outside the scheduler,
// such as an edit of the credentials file. It returns false when c matches
// the last known values.
func (s *Scheduler) ApplyCredentials(c state.Credentials) bool {
	s.mu.Lock()
	prev := s.lastCreds
	s.lastCreds = c
	s.mu.Unlock()

	switch {
	case prev == c:
		return false
	case prev.AccountName != c.AccountName:
		slog.Info("Account name changed, reloading flight plan")
		s.ReloadFlightPlan()
	default:
		s.ReloadData()
	}
	return true
}

// Airports returns the current airport pair.
func (s *Scheduler) Airports() resolver.AirportPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.airports
}

func (s *Scheduler) startPlanLocked(now time.Time) *TaskHandle {
	h := newTaskHandle(TaskFlightPlan, now)
	s.planTask = h
	s.state.SetLoading(true)

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		pair, err := s.loadFlightPlan(s.taskCtx)
		s.finishPlan(h, pair, err)
	}()
	return h
}

func (s *Scheduler) loadFlightPlan(ctx context.Context) (resolver.AirportPair, error) {
	name, err := state.ResolveCredential(state.FieldAccountName, s.creds)
	if err != nil {
		return resolver.AirportPair{}, err
	}
	return s.planner.Resolve(ctx, name)
}

func (s *Scheduler) finishPlan(h *TaskHandle, pair resolver.AirportPair, err error) {
	s.mu.Lock()
	s.planTask = nil
	if err != nil {
		slog.Error("Flight plan load failed", "error", err)
		s.planRetryAt = s.now().Add(s.interval)
		s.state.SetError(err)
	} else {
		slog.Info("Flight plan loaded", "departure", pair.Departure, "arrival", pair.Arrival)
		s.airports = pair
		s.planRetryAt = time.Time{}
		s.forceData = true
		s.state.SetAirports(pair)
		s.state.SetError(nil)
	}
	s.state.SetLoading(s.dataTask != nil)
	s.syncPhaseLocked()
	s.mu.Unlock()

	h.complete(err)
	s.poke()
}

func (s *Scheduler) startDataLocked(now time.Time) *TaskHandle {
	h := newTaskHandle(TaskData, now)
	s.dataTask = h
	pair := s.airports
	s.state.SetLoading(true)

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		err := s.loadData(s.taskCtx, pair)
		s.finishData(h, err)
	}()
	return h
}

func (s *Scheduler) loadData(ctx context.Context, pair resolver.AirportPair) error {
	apiKey, err := state.ResolveCredential(state.FieldAPIKey, s.creds)
	if err != nil {
		return err
	}
	rpt, err := s.generator.Generate(ctx, pair, apiKey)
	if err != nil {
		return err
	}
	s.state.Publish(rpt)
	if s.recorder != nil {
		if err := s.recorder.Record(ctx, rpt); err != nil {
			slog.Warn("Failed to record report history", "error", err)
		}
	}
	return nil
}

func (s *Scheduler) finishData(h *TaskHandle, err error) {
	s.mu.Lock()
	s.dataTask = nil
	s.lastRefresh = s.now()
	if err != nil {
		slog.Error("Data refresh failed", "error", err)
		s.state.SetError(err)
	}
	s.state.SetLoading(s.planTask != nil)
	s.syncPhaseLocked()
	s.mu.Unlock()

	h.complete(err)
	s.poke()
}

func (s *Scheduler) phaseLocked() Phase {
	switch {
	case s.planTask != nil || s.planPending:
		return PhaseFlightPlanLoading
	case s.dataTask != nil:
		return PhaseDataLoading
	default:
		return PhaseIdle
	}
}

func (s *Scheduler) syncPhaseLocked() {
	s.state.SetPhase(s.phaseLocked())
}

func (s *Scheduler) poke() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}
