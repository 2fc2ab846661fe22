package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"raidwatch/internal/task/engine"
	logx "raidwatch/pkg/logx"
)

var ErrNotFound = errors.New("schedule not registered")

const enqueueWarnEvery = 5 * time.Second

type Config struct {
	Timezone string // IANA name; empty means local time
}

// Job is the unit the scheduler triggers.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

type entry struct {
	job     Job
	spec    ParsedSpec
	state   *engine.RunState
	entryID cron.EntryID
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Next    time.Time
	Prev    time.Time
	Running bool
	LastRun time.Time
	LastErr string
}

type Service struct {
	mu     sync.Mutex
	cfg    Config
	loc    *time.Location
	log    logx.Logger
	engine *engine.Service

	c       *cron.Cron
	entries map[string]*entry
	order   []string

	warnMu   sync.Mutex
	lastWarn map[string]time.Time
}

func New(cfg Config, eng *engine.Service, log logx.Logger) *Service {
	return &Service{
		cfg:      cfg,
		log:      log,
		engine:   eng,
		entries:  map[string]*entry{},
		lastWarn: map[string]time.Time{},
	}
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("unknown timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Register adds a schedule, or replaces the one with the same name while
// keeping its run state.
func (s *Service) Register(j Job) error {
	ps, err := ParseSchedule(j.Schedule)
	if err != nil {
		return err
	}
	if j.Run == nil || strings.TrimSpace(j.Name) == "" {
		return errors.New("job name and run func required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[j.Name]; ok {
		s.disarmLocked(e)
		e.job, e.spec = j, ps
		return s.armLocked(e)
	}
	e := &entry{job: j, spec: ps, state: &engine.RunState{}}
	if err := s.armLocked(e); err != nil {
		return err
	}
	s.entries[j.Name] = e
	s.order = append(s.order, j.Name)
	return nil
}

// Reschedule swaps the job and schedule of an existing entry. The run
// state is kept so an in-flight run still blocks the next trigger.
func (s *Service) Reschedule(j Job) error {
	ps, err := ParseSchedule(j.Schedule)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[j.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, j.Name)
	}
	s.disarmLocked(e)
	e.job, e.spec = j, ps
	return s.armLocked(e)
}

// Unregister stops future triggers. A run already in flight finishes.
func (s *Service) Unregister(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return false
	}
	s.disarmLocked(e)
	delete(s.entries, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Service) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	return ok
}

// Names lists registered schedules in registration order.
func (s *Service) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *Service) armLocked(e *entry) error {
	if s.c == nil {
		return nil
	}
	name := e.job.Name
	id, err := s.c.AddFunc(e.spec.String(), func() { s.trigger(name) })
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	e.entryID = id
	return nil
}

func (s *Service) disarmLocked(e *entry) {
	if s.c != nil && e.entryID != 0 {
		s.c.Remove(e.entryID)
	}
	e.entryID = 0
}

func (s *Service) task(e *entry) engine.Task {
	return engine.Task{Name: e.job.Name, Timeout: e.job.Timeout, Run: e.job.Run, State: e.state}
}

func (s *Service) lookup(name string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	return e, ok
}

func (s *Service) trigger(name string) {
	e, ok := s.lookup(name)
	if !ok {
		return
	}
	s.report(name, s.engine.Enqueue(s.task(e)))
}

// RunNow runs one schedule immediately and waits for the result. It
// shares the overlap gate with the timer, so a manual run during a
// scheduled one returns engine.ErrOverlapSkip.
func (s *Service) RunNow(ctx context.Context, name string) error {
	e, ok := s.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.engine.Do(ctx, s.task(e))
}

// Exclusive runs fn on the engine while holding name's run gate, so it
// never overlaps a scheduled run of the same name.
func (s *Service) Exclusive(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	e, ok := s.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.engine.Do(ctx, engine.Task{Name: name + ".exclusive", Run: fn, State: e.state})
}

// Retire unregisters name, waits for a queued or running tick to finish
// and then runs fn on the caller's goroutine while holding the run gate.
// No run of name starts after Retire returns.
func (s *Service) Retire(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	e, ok := s.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s.Unregister(name)
	if err := e.state.Acquire(ctx); err != nil {
		return fmt.Errorf("wait for %s: %w", name, err)
	}
	defer e.state.Release()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// CatchUp runs every registered schedule once, one at a time, in
// registration order. Failures are logged and do not stop the pass.
func (s *Service) CatchUp(ctx context.Context) {
	for _, name := range s.Names() {
		if ctx.Err() != nil {
			return
		}
		if err := s.RunNow(ctx, name); err != nil {
			s.log.Warn("catch-up run failed", logx.String("source", name), logx.Err(err))
		}
	}
}

func (s *Service) report(name string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("trigger skipped; previous run still active", logx.String("source", name))
		return
	}
	now := time.Now()
	s.warnMu.Lock()
	last := s.lastWarn[name]
	throttle := !last.IsZero() && now.Sub(last) < enqueueWarnEvery
	if !throttle {
		s.lastWarn[name] = now
	}
	s.warnMu.Unlock()
	if !throttle {
		s.log.Warn("trigger not enqueued", logx.String("source", name), logx.Err(err))
	}
}

// Start begins firing timers for every registered schedule.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.loc = loadLocation(s.cfg.Timezone, s.log)
	s.c = cron.New(cron.WithParser(parser), cron.WithLocation(s.loc))
	for _, name := range s.order {
		if err := s.armLocked(s.entries[name]); err != nil {
			s.log.Error("schedule register failed", logx.String("source", name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.order)))
}

// Stop halts triggering. Registrations are kept for the next Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	for _, e := range s.entries {
		e.entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// Apply changes the timezone, re-arming timers when running.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	changed := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	running := s.c != nil
	s.mu.Unlock()
	if changed && running {
		s.Stop(ctx)
		s.Start()
	}
}

func (s *Service) Snapshot() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.order))
	for _, name := range s.order {
		e := s.entries[name]
		info := ScheduleInfo{Name: name, Spec: e.spec.String(), Running: e.state.Running()}
		info.LastRun, info.LastErr = e.state.Last()
		if s.c != nil && e.entryID != 0 {
			ce := s.c.Entry(e.entryID)
			info.Next, info.Prev = ce.Next, ce.Prev
		}
		out = append(out, info)
	}
	return out
}
