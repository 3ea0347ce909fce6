package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HaDeSMonsta/get-flight-data/pkg/report"
	"github.com/HaDeSMonsta/get-flight-data/pkg/resolver"
	"github.com/HaDeSMonsta/get-flight-data/pkg/state"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

type fakePlanner struct {
	mu    sync.Mutex
	pair  resolver.AirportPair
	err   error
	names []string
}

func (p *fakePlanner) Resolve(_ context.Context, name string) (resolver.AirportPair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, name)
	return p.pair, p.err
}

func (p *fakePlanner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.names)
}

type fakeGenerator struct {
	mu    sync.Mutex
	err   error
	block chan struct{}
	keys  []string
	count atomic.Int32
}

func (g *fakeGenerator) Generate(_ context.Context, pair resolver.AirportPair, apiKey string) (*report.FlightDataReport, error) {
	g.count.Add(1)
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	g.keys = append(g.keys, apiKey)
	err := g.err
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return report.NewFlightDataReport(
		report.AirportData{Code: pair.Departure, Atis: resolver.UnavailableAtis()},
		report.AirportData{Code: pair.Arrival, Atis: resolver.UnavailableAtis()},
		time.Now(),
	), nil
}

func (g *fakeGenerator) setErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

type fakeRecorder struct {
	mu   sync.Mutex
	rpts []*report.FlightDataReport
}

func (r *fakeRecorder) Record(_ context.Context, rpt *report.FlightDataReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rpts = append(r.rpts, rpt)
	return nil
}

type fixture struct {
	clock   *fakeClock
	planner *fakePlanner
	gen     *fakeGenerator
	store   *state.InMemoryCredentialStore
	sched   *Scheduler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	t.Setenv("GFD_SIMBRIEF_USERNAME", "")
	t.Setenv("GFD_API_TOKEN", "")

	f := &fixture{
		clock:   &fakeClock{t: time.Date(2024, 3, 25, 18, 0, 0, 0, time.UTC)},
		planner: &fakePlanner{pair: resolver.AirportPair{Departure: "EDDB", Arrival: "EHAM"}},
		gen:     &fakeGenerator{},
		store:   state.NewInMemoryCredentialStore(state.Credentials{AccountName: "pilot", APIKey: "key"}),
	}
	opts.Now = f.clock.Now
	f.sched = NewScheduler(f.planner, f.gen, f.store, NewMemoryState(), opts)
	t.Cleanup(f.sched.Stop)
	return f
}

// boot runs the startup flight plan load and the forced data refresh.
func (f *fixture) boot(t *testing.T) {
	t.Helper()
	tasks := f.sched.Tick(f.clock.Now())
	if len(tasks) != 1 || tasks[0].Kind() != TaskFlightPlan {
		t.Fatalf("expected initial flight plan task, got %v", kinds(tasks))
	}
	if err := tasks[0].Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tasks = f.sched.Tick(f.clock.Now())
	if len(tasks) != 1 || tasks[0].Kind() != TaskData {
		t.Fatalf("expected forced data task, got %v", kinds(tasks))
	}
	if err := tasks[0].Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func kinds(tasks []*TaskHandle) []TaskKind {
	out := make([]TaskKind, 0, len(tasks))
	for _, h := range tasks {
		out = append(out, h.Kind())
	}
	return out
}

func TestScheduler_StartupLoadsFlightPlanThenData(t *testing.T) {
	f := newFixture(t, Options{})

	if got := f.sched.Phase(); got != PhaseFlightPlanLoading {
		t.Fatalf("expected initial phase %v, got %v", PhaseFlightPlanLoading, got)
	}

	f.boot(t)

	snap := f.sched.State().Read()
	if snap.Report == nil {
		t.Fatal("expected published report")
	}
	if snap.Airports.Departure != "EDDB" || snap.Airports.Arrival != "EHAM" {
		t.Errorf("unexpected airports: %+v", snap.Airports)
	}
	if snap.Loading {
		t.Error("expected loading flag cleared")
	}
	if snap.Phase != PhaseIdle {
		t.Errorf("expected idle phase, got %v", snap.Phase)
	}
	if f.planner.names[0] != "pilot" {
		t.Errorf("expected account name from store, got %q", f.planner.names[0])
	}
	if f.gen.keys[0] != "key" {
		t.Errorf("expected api key from store, got %q", f.gen.keys[0])
	}
}

func TestScheduler_IntervalElapsed(t *testing.T) {
	f := newFixture(t, Options{Interval: 5 * time.Minute})
	f.boot(t)

	if tasks := f.sched.Tick(f.clock.Advance(4 * time.Minute)); len(tasks) != 0 {
		t.Fatalf("expected no task before interval, got %v", kinds(tasks))
	}
	tasks := f.sched.Tick(f.clock.Advance(time.Minute))
	if len(tasks) != 1 || tasks[0].Kind() != TaskData {
		t.Fatalf("expected data task after interval, got %v", kinds(tasks))
	}
	_ = tasks[0].Wait()
	if got := f.gen.count.Load(); got != 2 {
		t.Errorf("expected 2 data refreshes, got %d", got)
	}
}

func TestScheduler_ManualReloadIsDueImmediately(t *testing.T) {
	f := newFixture(t, Options{})
	f.boot(t)

	f.sched.ReloadData()
	tasks := f.sched.Tick(f.clock.Advance(time.Second))
	if len(tasks) != 1 || tasks[0].Kind() != TaskData {
		t.Fatalf("expected manual data task, got %v", kinds(tasks))
	}
	_ = tasks[0].Wait()
}

func TestScheduler_SuppressionBlocksAutomaticOnly(t *testing.T) {
	f := newFixture(t, Options{})
	f.boot(t)

	f.sched.SetSuppressed(true)
	if !f.sched.State().Read().Suppressed {
		t.Error("expected suppressed flag in snapshot")
	}
	if tasks := f.sched.Tick(f.clock.Advance(10 * time.Minute)); len(tasks) != 0 {
		t.Fatalf("expected suppressed tick to start nothing, got %v", kinds(tasks))
	}

	f.sched.ReloadData()
	tasks := f.sched.Tick(f.clock.Now())
	if len(tasks) != 1 {
		t.Fatalf("expected manual reload to override suppression, got %v", kinds(tasks))
	}
	_ = tasks[0].Wait()

	// the override applies exactly once
	if tasks := f.sched.Tick(f.clock.Advance(10 * time.Minute)); len(tasks) != 0 {
		t.Fatalf("expected suppression to hold again, got %v", kinds(tasks))
	}

	f.sched.SetSuppressed(false)
	if tasks := f.sched.Tick(f.clock.Now()); len(tasks) != 1 {
		t.Fatalf("expected automatic refresh after unsuppress, got %v", kinds(tasks))
	}
	f.sched.Wait()
}

func TestScheduler_TriggerIgnoredWhileBusy(t *testing.T) {
	f := newFixture(t, Options{})
	f.boot(t)

	f.gen.block = make(chan struct{})
	f.sched.ReloadData()
	tasks := f.sched.Tick(f.clock.Now())
	if len(tasks) != 1 {
		t.Fatalf("expected data task, got %v", kinds(tasks))
	}
	if got := f.sched.Phase(); got != PhaseDataLoading {
		t.Errorf("expected data loading phase, got %v", got)
	}
	if !f.sched.State().Read().Loading {
		t.Error("expected loading flag while task runs")
	}

	f.sched.ReloadData()
	if more := f.sched.Tick(f.clock.Now()); len(more) != 0 {
		t.Fatalf("expected no second data task, got %v", kinds(more))
	}

	close(f.gen.block)
	_ = tasks[0].Wait()

	if more := f.sched.Tick(f.clock.Now()); len(more) != 0 {
		t.Fatalf("expected ignored trigger not to be queued, got %v", kinds(more))
	}
}

func TestScheduler_ForcedRefreshWaitsForBusyDataTask(t *testing.T) {
	f := newFixture(t, Options{})
	f.boot(t)

	f.gen.block = make(chan struct{})
	f.sched.ReloadData()
	data := f.sched.Tick(f.clock.Now())
	if len(data) != 1 {
		t.Fatalf("expected data task, got %v", kinds(data))
	}

	f.planner.mu.Lock()
	f.planner.pair = resolver.AirportPair{Departure: "LOWW", Arrival: "LIRF"}
	f.planner.mu.Unlock()

	f.sched.ReloadFlightPlan()
	plan := f.sched.Tick(f.clock.Now())
	if len(plan) != 1 || plan[0].Kind() != TaskFlightPlan {
		t.Fatalf("expected flight plan task alongside data, got %v", kinds(plan))
	}
	_ = plan[0].Wait()

	if more := f.sched.Tick(f.clock.Now()); len(more) != 0 {
		t.Fatalf("expected forced refresh to wait, got %v", kinds(more))
	}

	close(f.gen.block)
	_ = data[0].Wait()

	forced := f.sched.Tick(f.clock.Now())
	if len(forced) != 1 || forced[0].Kind() != TaskData {
		t.Fatalf("expected forced data task, got %v", kinds(forced))
	}
	_ = forced[0].Wait()

	if got := f.sched.State().Read().Report.Airports.Departure; got != "LOWW" {
		t.Errorf("expected report for new flight plan, got %q", got)
	}
}

func TestScheduler_ForcedRefreshIgnoresSuppression(t *testing.T) {
	f := newFixture(t, Options{Suppressed: true})

	plan := f.sched.Tick(f.clock.Now())
	if len(plan) != 1 {
		t.Fatalf("expected startup flight plan even when suppressed, got %v", kinds(plan))
	}
	_ = plan[0].Wait()

	data := f.sched.Tick(f.clock.Now())
	if len(data) != 1 {
		t.Fatalf("expected forced data refresh when suppressed, got %v", kinds(data))
	}
	_ = data[0].Wait()
}

func TestScheduler_ErrorsAreRecoverable(t *testing.T) {
	f := newFixture(t, Options{})
	f.boot(t)
	previous := f.sched.State().Read().Report

	boom := errors.New("upstream down")
	f.gen.setErr(boom)
	f.sched.ReloadData()
	tasks := f.sched.Tick(f.clock.Now())
	if err := tasks[0].Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected task error, got %v", err)
	}

	snap := f.sched.State().Read()
	if snap.LastError != "upstream down" {
		t.Errorf("expected last error recorded, got %q", snap.LastError)
	}
	if snap.Report != previous {
		t.Error("expected previous report to stay visible")
	}
	if snap.Phase != PhaseIdle {
		t.Errorf("expected idle after failure, got %v", snap.Phase)
	}

	// next attempt follows the normal interval
	if more := f.sched.Tick(f.clock.Advance(time.Minute)); len(more) != 0 {
		t.Fatalf("expected no immediate retry, got %v", kinds(more))
	}

	f.gen.setErr(nil)
	tasks = f.sched.Tick(f.clock.Advance(5 * time.Minute))
	if len(tasks) != 1 {
		t.Fatalf("expected refresh after interval, got %v", kinds(tasks))
	}
	_ = tasks[0].Wait()
	if got := f.sched.State().Read().LastError; got != "" {
		t.Errorf("expected error cleared by successful publish, got %q", got)
	}
}

func TestScheduler_FlightPlanFailureRetriesAfterInterval(t *testing.T) {
	f := newFixture(t, Options{})
	f.planner.err = resolver.ErrUpstreamFormat

	tasks := f.sched.Tick(f.clock.Now())
	if err := tasks[0].Wait(); !errors.Is(err, resolver.ErrUpstreamFormat) {
		t.Fatalf("expected ErrUpstreamFormat, got %v", err)
	}
	if more := f.sched.Tick(f.clock.Now()); len(more) != 0 {
		t.Fatalf("expected no data task without airports, got %v", kinds(more))
	}

	f.planner.mu.Lock()
	f.planner.err = nil
	f.planner.mu.Unlock()

	retry := f.sched.Tick(f.clock.Advance(5 * time.Minute))
	if len(retry) != 1 || retry[0].Kind() != TaskFlightPlan {
		t.Fatalf("expected flight plan retry, got %v", kinds(retry))
	}
	_ = retry[0].Wait()
}

func TestScheduler_SaveCredentials(t *testing.T) {
	t.Run("account change reloads flight plan", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.boot(t)

		if err := f.sched.SaveCredentials(context.Background(), state.Credentials{AccountName: "other", APIKey: "key"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := f.sched.Phase(); got != PhaseFlightPlanLoading {
			t.Errorf("expected flight plan loading, got %v", got)
		}
		tasks := f.sched.Tick(f.clock.Now())
		if len(tasks) != 1 || tasks[0].Kind() != TaskFlightPlan {
			t.Fatalf("expected flight plan task, got %v", kinds(tasks))
		}
		_ = tasks[0].Wait()
		if got := f.planner.names[len(f.planner.names)-1]; got != "other" {
			t.Errorf("expected new account name, got %q", got)
		}
	})

	t.Run("key change reloads data", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.boot(t)

		if err := f.sched.SaveCredentials(context.Background(), state.Credentials{AccountName: "pilot", APIKey: "newkey"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tasks := f.sched.Tick(f.clock.Now())
		if len(tasks) != 1 || tasks[0].Kind() != TaskData {
			t.Fatalf("expected data task, got %v", kinds(tasks))
		}
		_ = tasks[0].Wait()
		if got := f.gen.keys[len(f.gen.keys)-1]; got != "newkey" {
			t.Errorf("expected new api key, got %q", got)
		}
	})

	t.Run("unchanged save still reloads data", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.boot(t)

		if err := f.sched.SaveCredentials(context.Background(), state.Credentials{AccountName: "pilot", APIKey: "key"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tasks := f.sched.Tick(f.clock.Now()); len(tasks) != 1 {
			t.Fatalf("expected data task, got %v", kinds(tasks))
		}
		f.sched.Wait()
	})

	t.Run("apply identical credentials is a no-op", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.boot(t)

		if f.sched.ApplyCredentials(state.Credentials{AccountName: "pilot", APIKey: "key"}) {
			t.Error("expected identical credentials to report no change")
		}
		if tasks := f.sched.Tick(f.clock.Now()); len(tasks) != 0 {
			t.Fatalf("expected no task, got %v", kinds(tasks))
		}
	})
}

func TestScheduler_RecordsPublishedReports(t *testing.T) {
	rec := &fakeRecorder{}
	f := newFixture(t, Options{Recorder: rec})
	f.boot(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.rpts) != 1 {
		t.Fatalf("expected 1 recorded report, got %d", len(rec.rpts))
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Setenv("GFD_SIMBRIEF_USERNAME", "")
	t.Setenv("GFD_API_TOKEN", "")

	planner := &fakePlanner{pair: resolver.AirportPair{Departure: "EDDB", Arrival: "EHAM"}}
	gen := &fakeGenerator{}
	store := state.NewInMemoryCredentialStore(state.Credentials{AccountName: "pilot"})
	sched := NewScheduler(planner, gen, store, nil, Options{Poll: 10 * time.Millisecond})

	updates, cancel := sched.State().Subscribe()
	defer cancel()

	sched.Start(context.Background())
	defer sched.Stop()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.Report != nil && snap.Phase == PhaseIdle {
				if planner.calls() != 1 {
					t.Errorf("expected one flight plan load, got %d", planner.calls())
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for first report")
		}
	}
}
