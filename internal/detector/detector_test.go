package detector

import (
	"reflect"
	"testing"

	"raidwatch/internal/source"
)

func ids(items []source.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestNewItemsSetDifference(t *testing.T) {
	t.Parallel()

	items := []source.Item{
		{ID: "a", Timestamp: 30},
		{ID: "b", Timestamp: 10},
		{ID: "c", Timestamp: 20},
		{ID: "d", Timestamp: 10},
		{ID: "b", Timestamp: 10},
	}
	seen := source.SeenSet{"c", "zzz"}

	got := ids(NewItems(items, seen))
	want := []string{"b", "d", "a"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NewItems = %v, want %v", got, want)
	}
}

func TestNewItemsIdempotent(t *testing.T) {
	t.Parallel()

	items := []source.Item{{ID: "x1", Timestamp: 1}, {ID: "x2", Timestamp: 2}}
	var seen source.SeenSet
	for _, it := range NewItems(items, seen) {
		seen = seen.Add(it.ID, 0)
	}
	if got := NewItems(items, seen); len(got) != 0 {
		t.Fatalf("second pass NewItems = %v, want none", ids(got))
	}
}

func TestNewItemsEmpty(t *testing.T) {
	t.Parallel()

	if got := NewItems(nil, source.SeenSet{"a"}); len(got) != 0 {
		t.Fatalf("NewItems(nil) = %v", got)
	}
}

func TestProgressScore(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"8/8 M":   3008,
		"6/8 M":   3006,
		"8/8 H":   2008,
		"3/8 N":   1003,
		" 2/9 h ": 2002,
		"":        0,
		"8/8":     0,
		"eight M": 0,
		"8/8 X":   0,
	}
	for in, want := range cases {
		if got := ProgressScore(in); got != want {
			t.Fatalf("ProgressScore(%q) = %d, want %d", in, got, want)
		}
	}
}

func ent(key, summary string, m, h, n int) source.RankedEntity {
	return source.RankedEntity{Key: key, Name: key, Record: source.RankRecord{Mythic: m, Heroic: h, Normal: n, Summary: summary}}
}

func keys(st []Standing) []string {
	out := make([]string, 0, len(st))
	for _, s := range st {
		out = append(out, s.Key)
	}
	return out
}

func TestSortStandings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   []source.RankedEntity
		want []string
	}{
		{
			name: "score descending",
			in:   []source.RankedEntity{ent("C", "8/8 H", 0, 5, 9), ent("B", "6/8 M", 40, 2, 3), ent("A", "8/8 M", 10, 1, 1)},
			want: []string{"A", "B", "C"},
		},
		{
			name: "tie broken by mythic then heroic then normal",
			in: []source.RankedEntity{
				ent("n", "8/8 M", 5, 7, 9),
				ent("h", "8/8 M", 5, 7, 2),
				ent("m", "8/8 M", 5, 3, 100),
				ent("top", "8/8 M", 1, 900, 900),
			},
			want: []string{"top", "m", "h", "n"},
		},
		{
			name: "unranked tier is worse than any rank",
			in:   []source.RankedEntity{ent("x", "8/8 H", 0, 50, 1), ent("y", "8/8 H", 9000, 50, 1)},
			want: []string{"y", "x"},
		},
		{
			name: "ranked nowhere sorts last",
			in:   []source.RankedEntity{ent("none", "8/8 M", 0, 0, 0), ent("low", "1/8 N", 0, 0, 4000)},
			want: []string{"low", "none"},
		},
		{
			name: "malformed summary scores zero, stable on full tie",
			in:   []source.RankedEntity{ent("p", "??", 0, 0, 10), ent("q", "", 0, 0, 10), ent("r", "1/8 N", 0, 0, 500)},
			want: []string{"r", "p", "q"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := keys(SortStandings(tc.in)); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("SortStandings = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDiffRanks(t *testing.T) {
	t.Parallel()

	prev := map[string]source.RankRecord{
		"eu:r:a":    {Mythic: 10, Heroic: 1, Normal: 1, Summary: "8/8 M"},
		"eu:r:b":    {Mythic: 0, Heroic: 5, Normal: 2, Summary: "8/8 H"},
		"eu:r:gone": {Summary: "1/8 N"},
	}

	same := []source.RankedEntity{ent("eu:r:a", "8/8 M", 10, 1, 1), ent("eu:r:b", "8/8 H", 0, 5, 2)}
	changed, next := DiffRanks(prev, same)
	if changed {
		t.Fatalf("DiffRanks(identical) changed = true")
	}
	if _, ok := next["eu:r:gone"]; ok {
		t.Fatalf("next kept an entity no longer fetched")
	}

	for _, tc := range []struct {
		name string
		e    source.RankedEntity
	}{
		{"mythic", ent("eu:r:a", "8/8 M", 9, 1, 1)},
		{"heroic", ent("eu:r:a", "8/8 M", 10, 2, 1)},
		{"normal", ent("eu:r:a", "8/8 M", 10, 1, 3)},
		{"summary", ent("eu:r:a", "7/8 M", 10, 1, 1)},
		{"new entity", ent("eu:r:new", "1/8 N", 0, 0, 1)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			changed, next := DiffRanks(prev, []source.RankedEntity{tc.e})
			if !changed {
				t.Fatalf("changed = false, want true")
			}
			if next[tc.e.Key] != tc.e.Record {
				t.Fatalf("next[%s] = %+v", tc.e.Key, next[tc.e.Key])
			}
		})
	}
}

func TestDiffRanksCarriesFailedEntities(t *testing.T) {
	t.Parallel()

	prev := map[string]source.RankRecord{"k": {Mythic: 3, Summary: "8/8 M"}}
	failed := source.RankedEntity{Key: "k", Err: errTest}
	changed, next := DiffRanks(prev, []source.RankedEntity{failed})
	if changed {
		t.Fatalf("failed entity counted as changed")
	}
	if next["k"] != prev["k"] {
		t.Fatalf("failed entity record = %+v, want previous", next["k"])
	}
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("boom")
