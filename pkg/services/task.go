package services

import (
	"sync"
	"time"
)

// TaskKind distinguishes the two background pipelines.
type TaskKind string

const (
	// TaskFlightPlan resolves the airport pair from the flight plan.
	TaskFlightPlan TaskKind = "flight-plan"
	// TaskData fetches METAR and ATIS and builds the report.
	TaskData TaskKind = "data"
)

// TaskHandle tracks one background task.
type TaskHandle struct {
	kind    TaskKind
	started time.Time

	mu   sync.RWMutex
	err  error
	done chan struct{}
}

func newTaskHandle(kind TaskKind, started time.Time) *TaskHandle {
	return &TaskHandle{
		kind:    kind,
		started: started,
		done:    make(chan struct{}),
	}
}

// Kind returns which pipeline the task runs.
func (h *TaskHandle) Kind() TaskKind {
	return h.kind
}

// Started returns the time the task was launched.
func (h *TaskHandle) Started() time.Time {
	return h.started
}

// Done returns a channel closed when the task finishes.
func (h *TaskHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the task's error, or nil while it is still running.
func (h *TaskHandle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Wait blocks until the task completes and returns its error.
func (h *TaskHandle) Wait() error {
	<-h.done
	return h.Err()
}

func (h *TaskHandle) complete(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}
