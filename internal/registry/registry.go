// Package registry owns the set of configured sources: it validates
// definitions, persists them through the config manager and keeps the
// scheduler in step.
package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"raidwatch/internal/config"
	"raidwatch/internal/source"
	"raidwatch/internal/storage"
	"raidwatch/internal/task/scheduler"
	logx "raidwatch/pkg/logx"
)

var ErrNotFound = errors.New("source not found")

type Scheduler interface {
	Register(j scheduler.Job) error
	Unregister(name string) bool
	RunNow(ctx context.Context, name string) error
	Exclusive(ctx context.Context, name string, fn func(ctx context.Context) error) error
	Retire(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// ConfigStore is the persisted config document.
type ConfigStore interface {
	Get() *config.Config
	Update(ctx context.Context, fn func(cfg *config.Config) error) (*config.Config, error)
}

// JobFunc builds the tick closure run for a source.
type JobFunc func(src source.Source) func(ctx context.Context) error

type entry struct {
	def config.SourceConfig
	src source.Source
}

type Registry struct {
	mu      sync.Mutex
	cfg     ConfigStore
	sched   Scheduler
	state   *storage.State
	job     JobFunc
	log     logx.Logger
	entries map[string]*entry
	order   []string
}

func New(cfg ConfigStore, sched Scheduler, state *storage.State, job JobFunc, log logx.Logger) *Registry {
	return &Registry{cfg: cfg, sched: sched, state: state, job: job, log: log, entries: map[string]*entry{}}
}

// Load registers every source of the current config. Sources that fail
// validation are logged and skipped.
func (r *Registry) Load() int {
	r.Sync(r.cfg.Get())
	return len(r.List())
}

func (r *Registry) register(src source.Source, def config.SourceConfig) error {
	if !def.Disabled {
		if err := r.sched.Register(scheduler.Job{Name: src.ID, Schedule: src.Schedule, Run: r.job(src)}); err != nil {
			return err
		}
	}
	if _, ok := r.entries[src.ID]; !ok {
		r.order = append(r.order, src.ID)
	}
	r.entries[src.ID] = &entry{def: def, src: src}
	return nil
}

func (r *Registry) drop(id string) {
	r.sched.Unregister(id)
	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Add validates def, persists it and starts its schedule.
func (r *Registry) Add(ctx context.Context, def config.SourceConfig) (source.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def.ID = strings.TrimSpace(def.ID)
	if _, ok := r.entries[def.ID]; ok {
		return source.Source{}, &source.ValidationError{Source: def.ID, Field: "id", Reason: "already exists"}
	}
	src, err := Compile(r.cfg.Get(), def)
	if err != nil {
		return source.Source{}, err
	}
	_, err = r.cfg.Update(ctx, func(c *config.Config) error {
		for _, s := range c.Sources {
			if s.ID == def.ID {
				return &source.ValidationError{Source: def.ID, Field: "id", Reason: "already exists"}
			}
		}
		c.Sources = append(c.Sources, def)
		return nil
	})
	if err != nil {
		return source.Source{}, fmt.Errorf("persist source %s: %w", def.ID, err)
	}
	if err := r.register(src, def); err != nil {
		return source.Source{}, err
	}
	r.log.Info("source added", logx.String("source", src.ID), logx.String("kind", string(src.Kind)))
	return src, nil
}

// Remove stops and deletes a source. With purge the timer is stopped
// first, an in-flight tick is waited for and the stored state is then
// cleared under the run gate. A failed purge is returned; the source is
// gone from the config either way.
func (r *Registry) Remove(ctx context.Context, id string, purge bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	_, err := r.cfg.Update(ctx, func(c *config.Config) error {
		out := c.Sources[:0]
		for _, s := range c.Sources {
			if s.ID != id {
				out = append(out, s)
			}
		}
		c.Sources = out
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist removal of %s: %w", id, err)
	}
	var perr error
	if purge {
		perr = r.purgeLocked(ctx, id)
	}
	r.drop(id)
	if perr != nil {
		r.log.Warn("purge failed", logx.String("source", id), logx.Err(perr))
		return fmt.Errorf("removed %s but purge failed: %w", id, perr)
	}
	r.log.Info("source removed", logx.String("source", id), logx.Bool("purge", purge))
	return nil
}

// List returns sources in registration order.
func (r *Registry) List() []source.Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]source.Source, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].src)
	}
	return out
}

func (r *Registry) Get(id string) (source.Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return source.Source{}, false
	}
	return e.src, true
}

// Disabled reports whether id is registered without a schedule.
func (r *Registry) Disabled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return ok && e.def.Disabled
}

// Sync makes the registry match cfg: missing sources are dropped, new
// ones registered and changed ones re-registered.
func (r *Registry) Sync(cfg *config.Config) config.SourceDiff {
	r.mu.Lock()
	defer r.mu.Unlock()

	var diff config.SourceDiff
	want := map[string]bool{}
	for _, def := range cfg.Sources {
		want[strings.TrimSpace(def.ID)] = true
	}
	for _, id := range append([]string(nil), r.order...) {
		if !want[id] {
			r.drop(id)
			diff.Removed = append(diff.Removed, id)
		}
	}

	for _, def := range cfg.Sources {
		id := strings.TrimSpace(def.ID)
		cur, exists := r.entries[id]
		if exists && reflect.DeepEqual(cur.def, def) {
			continue
		}
		src, err := Compile(cfg, def)
		if err != nil {
			r.log.Error("source skipped", logx.String("source", id), logx.Err(err))
			continue
		}
		if exists && def.Disabled {
			r.sched.Unregister(id)
		}
		if err := r.register(src, def); err != nil {
			r.log.Error("source not scheduled", logx.String("source", id), logx.Err(err))
			continue
		}
		if exists {
			diff.Changed = append(diff.Changed, id)
		} else {
			diff.Added = append(diff.Added, id)
		}
	}
	if !diff.Empty() {
		r.log.Info("sources synced", logx.Strings("added", diff.Added), logx.Strings("removed", diff.Removed), logx.Strings("changed", diff.Changed))
	}
	return diff
}

// Reset clears the stored state of id without racing its tick.
func (r *Registry) Reset(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.def.Disabled {
		return r.state.Reset(ctx, id)
	}
	var n int
	err := r.sched.Exclusive(ctx, id, func(ctx context.Context) error {
		var err error
		n, err = r.state.Reset(ctx, id)
		return err
	})
	return n, err
}

func (r *Registry) purgeLocked(ctx context.Context, id string) error {
	wipe := func(ctx context.Context) error {
		_, err := r.state.Reset(ctx, id)
		return err
	}
	if r.entries[id].def.Disabled {
		return wipe(ctx)
	}
	return r.sched.Retire(ctx, id, wipe)
}

// RunNow runs one tick of id and waits for it.
func (r *Registry) RunNow(ctx context.Context, id string) error {
	if _, ok := r.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if r.Disabled(id) {
		return fmt.Errorf("source %s is disabled", id)
	}
	return r.sched.RunNow(ctx, id)
}
