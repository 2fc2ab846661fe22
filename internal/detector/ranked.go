package detector

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"raidwatch/internal/source"
)

// DiffRanks reports whether any entity's record differs from prev and
// returns the full next state. Entities that failed to fetch carry their
// previous record forward and never count as changed; entities no longer
// in the snapshot are dropped.
func DiffRanks(prev map[string]source.RankRecord, entities []source.RankedEntity) (bool, map[string]source.RankRecord) {
	next := make(map[string]source.RankRecord, len(entities))
	changed := false
	for _, e := range entities {
		old, had := prev[e.Key]
		if e.Err != nil {
			if had {
				next[e.Key] = old
			}
			continue
		}
		next[e.Key] = e.Record
		if !had || old != e.Record {
			changed = true
		}
	}
	return changed, next
}

// Standing is one rendered row of a ranking table.
type Standing struct {
	source.RankedEntity
	Score int
}

// BestRank is the lowest positive rank, checked mythic, heroic, normal.
// The tier letter is "" when the entity is not ranked anywhere.
func (s Standing) BestRank() (tier string, rank int) {
	for _, t := range []struct {
		l string
		r int
	}{{"M", s.Record.Mythic}, {"H", s.Record.Heroic}, {"N", s.Record.Normal}} {
		if t.r > 0 {
			return t.l, t.r
		}
	}
	return "", 0
}

var summaryRe = regexp.MustCompile(`^\s*(\d+)\s*/\s*(\d+)\s*([MHNmhn])\s*$`)

var difficultyWeight = map[string]int{"M": 3000, "H": 2000, "N": 1000}

// ProgressScore parses "killed/total LETTER" into weight(LETTER)+killed.
// Anything else scores 0.
func ProgressScore(summary string) int {
	m := summaryRe.FindStringSubmatch(summary)
	if m == nil {
		return 0
	}
	killed, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return difficultyWeight[strings.ToUpper(m[3])] + killed
}

func rankKey(r int) int {
	if r <= 0 {
		return math.MaxInt
	}
	return r
}

// SortStandings orders entities for display. Entities ranked in no tier go
// after every ranked one. Within each group: progress score descending,
// then mythic, heroic and normal world rank ascending with unranked tiers
// last, then input order.
func SortStandings(entities []source.RankedEntity) []Standing {
	out := make([]Standing, len(entities))
	for i, e := range entities {
		out[i] = Standing{RankedEntity: e, Score: ProgressScore(e.Record.Summary)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		_, ra := a.BestRank()
		_, rb := b.BestRank()
		if (ra > 0) != (rb > 0) {
			return ra > 0
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if x, y := rankKey(a.Record.Mythic), rankKey(b.Record.Mythic); x != y {
			return x < y
		}
		if x, y := rankKey(a.Record.Heroic), rankKey(b.Record.Heroic); x != y {
			return x < y
		}
		return rankKey(a.Record.Normal) < rankKey(b.Record.Normal)
	})
	return out
}
