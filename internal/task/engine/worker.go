package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"raidwatch/internal/eventbus"
	logx "raidwatch/pkg/logx"
)

func (s *Service) worker(ctx context.Context, q <-chan queuedTask) {
	for {
		select {
		case <-ctx.Done():
			return
		case qt := <-q:
			s.inFlight.Add(1)
			s.exec(ctx, qt)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) exec(ctx context.Context, qt queuedTask) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	start := time.Now()
	delay := start.Sub(qt.enqueuedAt)
	t := qt.task

	if cfg.MaxQueueDelay > 0 && delay > cfg.MaxQueueDelay {
		s.droppedStale.Add(1)
		s.log.Warn("task dropped: stale", logx.String("task", t.Name), logx.Duration("queue_delay", delay))
		s.record(cfg, HistoryItem{ID: t.ID, Name: t.Name, Started: start, QueueDelay: delay, Error: ErrStale.Error()})
		s.finish(qt, time.Time{}, ErrStale)
		return
	}

	s.emit(eventbus.TypeTaskStarted, TaskEvent{ID: t.ID, Name: t.Name, Started: start, QueueDelay: delay})

	runCtx, cancel := context.WithTimeout(ctx, qt.timeout)
	err := runSafe(runCtx, t, s.log)
	cancel()

	dur := time.Since(start)
	item := HistoryItem{ID: t.ID, Name: t.Name, Started: start, QueueDelay: delay, Duration: dur}
	ev := TaskEvent{ID: t.ID, Name: t.Name, Started: start, QueueDelay: delay, Duration: dur}
	if err != nil {
		item.Error, ev.Error = err.Error(), err.Error()
		s.log.Warn("task failed", logx.String("task", t.Name), logx.String("id", t.ID), logx.Duration("dur", dur), logx.Err(err))
	} else {
		s.log.Debug("task completed", logx.String("task", t.Name), logx.String("id", t.ID), logx.Duration("dur", dur))
	}
	s.record(cfg, item)
	s.emit(eventbus.TypeTaskFinished, ev)
	s.finish(qt, time.Now(), err)
}

// runSafe turns a panicking task into an error so one bad source cannot
// take a worker down.
func runSafe(ctx context.Context, t Task, log logx.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error("task panicked", logx.String("task", t.Name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return t.Run(ctx)
}

func (s *Service) finish(qt queuedTask, at time.Time, err error) {
	if qt.held {
		qt.task.State.release(at, err)
	}
	if qt.done != nil {
		qt.done <- err
	}
}
