package detector

import (
	"sort"

	"raidwatch/internal/source"
)

// NewItems returns the items whose id is not in seen, sorted by ascending
// timestamp. Ties keep snapshot order. Duplicate ids within one snapshot
// are reported once.
func NewItems(items []source.Item, seen source.SeenSet) []source.Item {
	idx := seen.Index()
	out := make([]source.Item, 0, len(items))
	for _, it := range items {
		if _, ok := idx[it.ID]; ok {
			continue
		}
		idx[it.ID] = struct{}{}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
