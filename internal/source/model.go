package source

// Item is one announceable entry of an item-set snapshot.
type Item struct {
	ID string
	// Kind distinguishes entries of one source, e.g. "submission" and
	// "comment" for reddit.
	Kind string
	// Timestamp is unix seconds.
	Timestamp int64
	Title     string
	Author    string
	Link      string
	Body      string
	Attrs     map[string]string
}

// RankRecord is the stored state of one ranked entity. A rank of 0 means
// not ranked.
type RankRecord struct {
	Mythic  int    `json:"mythic_rank"`
	Heroic  int    `json:"heroic_rank"`
	Normal  int    `json:"normal_rank"`
	Summary string `json:"summary"`
}

// RankedEntity is one row of a ranking snapshot. Err is set when the
// entity could not be fetched; Record is then zero.
type RankedEntity struct {
	Key        string
	Name       string
	Region     string
	Realm      string
	ProfileURL string
	Record     RankRecord
	Err        error
}

// Snapshot is the result of one fetch: either an item set or a ranking.
type Snapshot struct {
	policy  Policy
	items   []Item
	ranking []RankedEntity
}

func ItemSetSnapshot(items []Item) Snapshot {
	return Snapshot{policy: PolicyItemSet, items: items}
}

func RankingSnapshot(entities []RankedEntity) Snapshot {
	return Snapshot{policy: PolicyRankedRecord, ranking: entities}
}

func (s Snapshot) Policy() Policy          { return s.policy }
func (s Snapshot) Items() []Item           { return s.items }
func (s Snapshot) Ranking() []RankedEntity { return s.ranking }

// SeenSet is the ordered list of announced ids, oldest first.
type SeenSet []string

func (s SeenSet) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Index returns the ids as a set.
func (s SeenSet) Index() map[string]struct{} {
	m := make(map[string]struct{}, len(s))
	for _, v := range s {
		m[v] = struct{}{}
	}
	return m
}

// Add returns the set with id appended (moved to newest if present) and
// trimmed to the newest retention ids. retention <= 0 keeps everything.
func (s SeenSet) Add(id string, retention int) SeenSet {
	out := make(SeenSet, 0, len(s)+1)
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	out = append(out, id)
	if retention > 0 && len(out) > retention {
		out = out[len(out)-retention:]
	}
	return out
}

// TrackedMessage is the Discord message a ranked source edits in place.
type TrackedMessage struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}
