// Package watcher runs one tick of the fetch, detect, notify, persist
// pipeline for a source.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"raidwatch/internal/detector"
	"raidwatch/internal/eventbus"
	"raidwatch/internal/source"
	logx "raidwatch/pkg/logx"
)

type Fetcher interface {
	Fetch(ctx context.Context, src source.Source) (source.Snapshot, error)
}

type Notifier interface {
	AnnounceItem(ctx context.Context, src source.Source, it source.Item) error
	PublishStandings(ctx context.Context, src source.Source, table []detector.Standing, at time.Time) error
}

// State is the per-source persisted detector state.
type State interface {
	Seen(ctx context.Context, sourceID string) (source.SeenSet, error)
	PutSeen(ctx context.Context, sourceID string, seen source.SeenSet) error
	Ranks(ctx context.Context, sourceID string) (map[string]source.RankRecord, error)
	PutRanks(ctx context.Context, sourceID string, ranks map[string]source.RankRecord) error
}

type Watcher struct {
	fetch  Fetcher
	notify Notifier
	state  State
	log    logx.Logger
	bus    eventbus.Bus
	now    func() time.Time
}

func New(f Fetcher, n Notifier, st State, log logx.Logger, bus eventbus.Bus) *Watcher {
	return &Watcher{fetch: f, notify: n, state: st, log: log, bus: bus, now: time.Now}
}

// Result summarizes one tick.
type Result struct {
	Tick      string        `json:"tick"`
	Source    string        `json:"source"`
	Policy    source.Policy `json:"policy"`
	Fetched   int           `json:"fetched"`
	Fresh     int           `json:"fresh"`
	Announced int           `json:"announced"`
	Changed   bool          `json:"changed"`
	Took      time.Duration `json:"took"`
	Error     string        `json:"error,omitempty"`
}

// Job returns a scheduler-ready closure for src.
func (w *Watcher) Job(src source.Source) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := w.Tick(ctx, src)
		return err
	}
}

// Tick fetches src once and applies its change policy. A fetch failure
// leaves stored state untouched.
func (w *Watcher) Tick(ctx context.Context, src source.Source) (Result, error) {
	start := w.now()
	res := Result{Tick: tickID(), Source: src.ID, Policy: src.Policy}
	log := w.log.With(logx.String("source", src.ID), logx.String("tick", res.Tick))

	snap, err := w.fetch.Fetch(ctx, src)
	if err == nil {
		switch src.Policy {
		case source.PolicyRankedRecord:
			res.Fetched = len(snap.Ranking())
			err = w.ranked(ctx, log, src, snap.Ranking(), &res)
		default:
			res.Fetched = len(snap.Items())
			err = w.itemSet(ctx, log, src, snap.Items(), &res)
		}
	}

	res.Took = w.now().Sub(start)
	typ := eventbus.TypeWatchTick
	if err != nil {
		res.Error = err.Error()
		typ = eventbus.TypeWatchFailed
		log.Warn("tick failed", logx.Err(err), logx.Duration("took", res.Took))
	} else {
		log.Debug("tick done", logx.Int("fetched", res.Fetched), logx.Int("fresh", res.Fresh),
			logx.Int("announced", res.Announced), logx.Bool("changed", res.Changed), logx.Duration("took", res.Took))
	}
	if w.bus != nil {
		w.bus.Publish(eventbus.Event{Type: typ, Data: res})
	}
	return res, err
}

func (w *Watcher) itemSet(ctx context.Context, log logx.Logger, src source.Source, items []source.Item, res *Result) error {
	seen, err := w.state.Seen(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("load seen: %w", err)
	}
	fresh := detector.NewItems(items, seen)
	res.Fresh = len(fresh)
	if len(fresh) == 0 {
		return nil
	}
	for _, it := range fresh {
		if err := w.notify.AnnounceItem(ctx, src, it); err != nil {
			return err
		}
		seen = seen.Add(it.ID, src.Retention)
		if err := w.state.PutSeen(ctx, src.ID, seen); err != nil {
			return fmt.Errorf("commit seen %s: %w", it.ID, err)
		}
		res.Announced++
		log.Info("announced item", logx.String("item", it.ID))
	}
	return nil
}

func (w *Watcher) ranked(ctx context.Context, log logx.Logger, src source.Source, entities []source.RankedEntity, res *Result) error {
	prev, err := w.state.Ranks(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("load ranks: %w", err)
	}
	changed, next := detector.DiffRanks(prev, entities)
	res.Changed = changed
	if !changed {
		return nil
	}
	if err := w.state.PutRanks(ctx, src.ID, next); err != nil {
		return fmt.Errorf("commit ranks: %w", err)
	}

	shown := make([]source.RankedEntity, len(entities))
	for i, e := range entities {
		if e.Err != nil {
			log.Warn("entity fetch failed; showing last known record", logx.String("entity", e.Key), logx.Err(e.Err))
			e.Record = prev[e.Key]
		}
		shown[i] = e
	}
	if err := w.notify.PublishStandings(ctx, src, detector.SortStandings(shown), w.now()); err != nil {
		return fmt.Errorf("publish standings: %w", err)
	}
	log.Info("standings updated", logx.Int("entities", len(entities)))
	return nil
}

func tickID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
