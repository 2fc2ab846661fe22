package engine

import (
	"context"
	"sync"
	"time"
)

// Config controls the worker pool that executes source ticks.
type Config struct {
	Workers   int
	QueueSize int

	// DefaultTimeout bounds a task run when Task.Timeout is 0.
	DefaultTimeout time.Duration

	// MaxQueueDelay drops tasks queued longer than this. 0 keeps them.
	MaxQueueDelay time.Duration

	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 2 * time.Minute
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// RunState gates overlapping runs of one source: a task holding it is
// queued or running, and a second submission is skipped.
type RunState struct {
	mu       sync.Mutex
	inflight bool
	idle     chan struct{} // closed when inflight clears
	lastRun  time.Time
	lastErr  string
}

func (s *RunState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight {
		return false
	}
	s.inflight = true
	s.idle = make(chan struct{})
	return true
}

// Acquire blocks until the gate is free and takes it. Release it with
// Release.
func (s *RunState) Acquire(ctx context.Context) error {
	for {
		if s.tryAcquire() {
			return nil
		}
		s.mu.Lock()
		idle := s.idle
		s.mu.Unlock()
		if idle == nil {
			continue
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release frees a gate taken with Acquire without recording a run.
func (s *RunState) Release() {
	s.release(time.Time{}, nil)
}

func (s *RunState) release(at time.Time, err error) {
	s.mu.Lock()
	s.inflight = false
	if s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
	if !at.IsZero() {
		s.lastRun = at
		s.lastErr = ""
		if err != nil {
			s.lastErr = err.Error()
		}
	}
	s.mu.Unlock()
}

// Running reports whether a run is queued or in progress.
func (s *RunState) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

// Last returns the finish time and error text of the previous run.
func (s *RunState) Last() (time.Time, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

type HistoryItem struct {
	ID         string
	Name       string
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Error      string
}

// TaskEvent is published on the bus for task lifecycle changes.
type TaskEvent struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Task is one unit of work. When State is set, a task whose State is
// already held is skipped with ErrOverlapSkip.
type Task struct {
	ID      string
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
	State   *RunState
}

type Snapshot struct {
	Running  bool
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int

	DroppedQueueFull uint64
	DroppedStale     uint64
	Skipped          uint64

	DefaultTimeout time.Duration
	History        []HistoryItem
}
