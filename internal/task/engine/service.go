package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"raidwatch/internal/eventbus"
	rtsup "raidwatch/internal/runtime/supervisor"
	logx "raidwatch/pkg/logx"
)

// Service is a bounded worker pool. Tasks never retry; a failed run is
// recorded and the next trigger starts fresh.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	q   chan queuedTask
	sup *rtsup.Supervisor

	inFlight         atomic.Int32
	droppedQueueFull atomic.Uint64
	droppedStale     atomic.Uint64
	skipped          atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

type queuedTask struct {
	task       Task
	enqueuedAt time.Time
	timeout    time.Duration
	held       bool
	done       chan error // nil for fire-and-forget
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	return &Service{cfg: cfg.withDefaults(), log: log, bus: bus}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	cfg := s.cfg
	s.q = make(chan queuedTask, cfg.QueueSize)
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	for i := 0; i < cfg.Workers; i++ {
		q := s.q
		s.sup.GoRestart(fmt.Sprintf("task.worker.%d", i), 0, 0, func(c context.Context) error {
			s.worker(c, q)
			return c.Err()
		})
	}
	s.log.Info("task engine started", logx.Int("workers", cfg.Workers), logx.Int("queue", cfg.QueueSize))
}

// Stop cancels running tasks and waits for workers until ctx expires.
// Queued tasks are released without running.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup, q := s.sup, s.q
	s.sup, s.q = nil, nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	for {
		select {
		case qt := <-q:
			s.finish(qt, time.Time{}, ErrStopped)
		default:
			s.log.Info("task engine stopped")
			return err
		}
	}
}

// Apply changes timeouts and history size. Pool and queue size changes
// take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

// Enqueue queues t without waiting for it to run.
func (s *Service) Enqueue(t Task) error {
	_, err := s.enqueue(t, false)
	return err
}

// Do queues t and waits for its result.
func (s *Service) Do(ctx context.Context, t Task) error {
	done, err := s.enqueue(t, true)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) enqueue(t Task, wait bool) (chan error, error) {
	if t.Run == nil {
		return nil, errors.New("task Run is nil")
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return nil, errors.New("task Name is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	s.mu.Lock()
	cfg, q := s.cfg, s.q
	s.mu.Unlock()
	if q == nil {
		return nil, ErrStopped
	}

	now := time.Now()
	held := false
	if t.State != nil {
		if !t.State.tryAcquire() {
			s.skipped.Add(1)
			s.emit(eventbus.TypeTaskSkipped, TaskEvent{ID: t.ID, Name: t.Name, Started: now, Error: ErrOverlapSkip.Error()})
			s.log.Debug("task skipped: overlap", logx.String("task", t.Name))
			return nil, ErrOverlapSkip
		}
		held = true
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}
	qt := queuedTask{task: t, enqueuedAt: now, timeout: timeout, held: held}
	if wait {
		qt.done = make(chan error, 1)
	}

	select {
	case q <- qt:
		return qt.done, nil
	default:
		if held {
			t.State.release(time.Time{}, nil)
		}
		s.droppedQueueFull.Add(1)
		s.log.Warn("task dropped: queue full", logx.String("task", t.Name), logx.Int("queue_cap", cap(q)))
		return nil, ErrQueueFull
	}
}

func (s *Service) emit(typ string, ev TaskEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
	}
}

func (s *Service) record(cfg Config, item HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > cfg.HistorySize {
		s.history = s.history[len(s.history)-cfg.HistorySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg, q, sup := s.cfg, s.q, s.sup
	s.mu.Unlock()

	snap := Snapshot{
		Running:          sup != nil,
		Workers:          cfg.Workers,
		InFlight:         int(s.inFlight.Load()),
		DroppedQueueFull: s.droppedQueueFull.Load(),
		DroppedStale:     s.droppedStale.Load(),
		Skipped:          s.skipped.Load(),
		DefaultTimeout:   cfg.DefaultTimeout,
	}
	if q != nil {
		snap.QueueLen, snap.QueueCap = len(q), cap(q)
	}
	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}
