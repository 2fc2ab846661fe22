package watcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"raidwatch/internal/detector"
	"raidwatch/internal/eventbus"
	"raidwatch/internal/fetcher"
	"raidwatch/internal/source"
	"raidwatch/internal/storage"
	logx "raidwatch/pkg/logx"
)

type scriptedFetcher struct {
	snap source.Snapshot
	err  error
}

func (f *scriptedFetcher) Fetch(context.Context, source.Source) (source.Snapshot, error) {
	return f.snap, f.err
}

type recordingNotifier struct {
	mu         sync.Mutex
	announced  []string
	failOn     map[string]bool
	tables     [][]detector.Standing
	publishErr error
}

func (n *recordingNotifier) AnnounceItem(_ context.Context, src source.Source, it source.Item) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failOn[it.ID] {
		return fmt.Errorf("notify %s: missing access", src.ID)
	}
	n.announced = append(n.announced, it.ID)
	return nil
}

func (n *recordingNotifier) PublishStandings(_ context.Context, _ source.Source, table []detector.Standing, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tables = append(n.tables, table)
	return n.publishErr
}

func newWatcher(f Fetcher, n Notifier) (*Watcher, *storage.State) {
	st := storage.NewState(storage.NewMemory())
	return New(f, n, st, logx.Nop(), eventbus.New()), st
}

func itemSource() source.Source {
	return source.Source{ID: "wcl", Kind: source.KindRSS, Policy: source.PolicyItemSet, Channels: []string{"logs"}}
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestItemSetAnnouncesOldestFirstOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := &scriptedFetcher{snap: source.ItemSetSnapshot([]source.Item{{ID: "x1", Timestamp: 100}, {ID: "x2", Timestamp: 50}})}
	n := &recordingNotifier{}
	w, st := newWatcher(f, n)
	src := itemSource()

	res, err := w.Tick(ctx, src)
	if err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if !equalIDs(n.announced, []string{"x2", "x1"}) || res.Announced != 2 || res.Tick == "" {
		t.Fatalf("tick 1 announced %v (result %+v), want [x2 x1]", n.announced, res)
	}
	seen, _ := st.Seen(ctx, "wcl")
	if !seen.Contains("x1") || !seen.Contains("x2") || len(seen) != 2 {
		t.Fatalf("seen = %v", seen)
	}

	if _, err := w.Tick(ctx, src); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if len(n.announced) != 2 {
		t.Fatalf("tick 2 announced again: %v", n.announced)
	}
}

func TestFetchErrorLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := &scriptedFetcher{snap: source.ItemSetSnapshot([]source.Item{{ID: "a", Timestamp: 1}})}
	n := &recordingNotifier{}
	w, st := newWatcher(f, n)
	src := itemSource()
	if _, err := w.Tick(ctx, src); err != nil {
		t.Fatalf("seed tick: %v", err)
	}
	before, _, _ := st.Store().Get(ctx, storage.SeenKey("wcl"))

	f.snap, f.err = source.Snapshot{}, &fetcher.FetchError{Source: "wcl", Op: "status", Status: 503, Err: errors.New("unavailable")}
	_, err := w.Tick(ctx, src)
	var fe *fetcher.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Tick = %v, want FetchError", err)
	}
	after, _, _ := st.Store().Get(ctx, storage.SeenKey("wcl"))
	if !bytes.Equal(before, after) {
		t.Fatalf("seen changed after fetch error: %s -> %s", before, after)
	}
	if len(n.announced) != 1 {
		t.Fatalf("announced = %v, want only the seed item", n.announced)
	}
}

func TestNotifyErrorGatesCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := &scriptedFetcher{snap: source.ItemSetSnapshot([]source.Item{{ID: "a", Timestamp: 1}, {ID: "b", Timestamp: 2}, {ID: "c", Timestamp: 3}})}
	n := &recordingNotifier{failOn: map[string]bool{"b": true}}
	w, st := newWatcher(f, n)
	src := itemSource()

	if _, err := w.Tick(ctx, src); err == nil {
		t.Fatalf("Tick = nil, want notify error")
	}
	seen, _ := st.Seen(ctx, "wcl")
	if !equalIDs(seen, []string{"a"}) {
		t.Fatalf("seen = %v, want [a]", seen)
	}

	n.failOn = nil
	if _, err := w.Tick(ctx, src); err != nil {
		t.Fatalf("retry tick: %v", err)
	}
	if !equalIDs(n.announced, []string{"a", "b", "c"}) {
		t.Fatalf("announced = %v, want [a b c]", n.announced)
	}
}

func TestRetentionKeepsNewest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var items []source.Item
	for i := 1; i <= 8; i++ {
		items = append(items, source.Item{ID: fmt.Sprintf("r%d", i), Timestamp: int64(i)})
	}
	f := &scriptedFetcher{snap: source.ItemSetSnapshot(items)}
	w, st := newWatcher(f, &recordingNotifier{})
	src := itemSource()
	src.Retention = 5

	if _, err := w.Tick(ctx, src); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	seen, _ := st.Seen(ctx, "wcl")
	if !equalIDs(seen, []string{"r4", "r5", "r6", "r7", "r8"}) {
		t.Fatalf("seen = %v, want newest five", seen)
	}
}

func TestRankedChangeDetection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := source.Source{ID: "rio", Kind: source.KindRaiderIO, Policy: source.PolicyRankedRecord, Channels: []string{"ranks"}}
	ents := []source.RankedEntity{
		{Key: "eu:a:g1", Name: "G1", Record: source.RankRecord{Mythic: 10, Summary: "5/8 M"}},
		{Key: "eu:a:g2", Name: "G2", Record: source.RankRecord{Heroic: 40, Summary: "8/8 H"}},
	}
	f := &scriptedFetcher{snap: source.RankingSnapshot(ents)}
	n := &recordingNotifier{publishErr: errors.New("forbidden")}
	w, st := newWatcher(f, n)

	res, err := w.Tick(ctx, src)
	if err == nil || !res.Changed {
		t.Fatalf("first tick = %+v, %v; want changed with publish error", res, err)
	}
	ranks, _ := st.Ranks(ctx, "rio")
	if len(ranks) != 2 {
		t.Fatalf("ranks not committed despite publish error: %v", ranks)
	}

	n.publishErr = nil
	if res, _ := w.Tick(ctx, src); res.Changed || len(n.tables) != 1 {
		t.Fatalf("unchanged tick published: %+v, tables=%d", res, len(n.tables))
	}

	failed := []source.RankedEntity{
		ents[0],
		{Key: "eu:a:g2", Name: "G2", Err: errors.New("timeout")},
		{Key: "eu:a:g3", Name: "G3", Record: source.RankRecord{Normal: 5, Summary: "2/8 N"}},
	}
	f.snap = source.RankingSnapshot(failed)
	res, err = w.Tick(ctx, src)
	if err != nil || !res.Changed {
		t.Fatalf("third tick = %+v, %v", res, err)
	}
	ranks, _ = st.Ranks(ctx, "rio")
	if ranks["eu:a:g2"].Heroic != 40 || len(ranks) != 3 {
		t.Fatalf("ranks = %v, want g2 carried forward", ranks)
	}
	table := n.tables[len(n.tables)-1]
	var g2 detector.Standing
	for _, s := range table {
		if s.Key == "eu:a:g2" {
			g2 = s
		}
	}
	if g2.Record.Heroic != 40 || g2.Err == nil {
		t.Fatalf("g2 standing = %+v, want last known record marked failed", g2)
	}
}

type countingStore struct {
	storage.Store
	mu   sync.Mutex
	puts int
}

func (s *countingStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return s.Store.Put(ctx, key, value)
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func TestTickWrites(t *testing.T) {
	t.Parallel()

	ranked := source.Source{ID: "rio", Kind: source.KindRaiderIO, Policy: source.PolicyRankedRecord, Channels: []string{"ranks"}}
	ents := []source.RankedEntity{{Key: "eu:a:g1", Name: "G1", Record: source.RankRecord{Mythic: 3, Summary: "3/8 M"}}}
	items := []source.Item{{ID: "a", Timestamp: 1}, {ID: "b", Timestamp: 2}, {ID: "c", Timestamp: 3}}

	cases := []struct {
		name   string
		src    source.Source
		seed   source.Snapshot
		snap   source.Snapshot
		writes int
	}{
		{"ranked unchanged", ranked, source.RankingSnapshot(ents), source.RankingSnapshot(ents), 0},
		{"item set empty", itemSource(), source.ItemSetSnapshot(nil), source.ItemSetSnapshot(nil), 0},
		{"item set nothing new", itemSource(), source.ItemSetSnapshot(items), source.ItemSetSnapshot(items), 0},
		{"item set one per announced", itemSource(), source.ItemSetSnapshot(items[:1]), source.ItemSetSnapshot(items), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := &countingStore{Store: storage.NewMemory()}
			f := &scriptedFetcher{snap: tc.seed}
			n := &recordingNotifier{}
			w := New(f, n, storage.NewState(store), logx.Nop(), nil)
			if _, err := w.Tick(ctx, tc.src); err != nil {
				t.Fatalf("seed tick: %v", err)
			}

			before := store.count()
			f.snap = tc.snap
			if _, err := w.Tick(ctx, tc.src); err != nil {
				t.Fatalf("tick: %v", err)
			}
			if got := store.count() - before; got != tc.writes {
				t.Fatalf("writes = %d, want %d", got, tc.writes)
			}
		})
	}
}
