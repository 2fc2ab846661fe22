package source

import (
	"strings"
)

type Kind string

const (
	KindWarcraftLogs Kind = "warcraftlogs"
	KindRaiderIO     Kind = "raiderio"
	KindReddit       Kind = "reddit"
	KindRSS          Kind = "rss"
	KindJSON         Kind = "json"
)

// Kinds lists the supported kinds in display order.
var Kinds = []Kind{KindWarcraftLogs, KindRaiderIO, KindReddit, KindRSS, KindJSON}

// Policy selects how a snapshot is compared with stored state.
type Policy string

const (
	// PolicyItemSet announces every item whose id was never seen.
	PolicyItemSet Policy = "item-set"
	// PolicyRankedRecord keeps one record per entity and republishes a
	// ranked table when any record changes.
	PolicyRankedRecord Policy = "ranked-record"
)

// Source is a validated watched source.
type Source struct {
	ID         string
	Name       string
	Kind       Kind
	Policy     Policy
	URL        string
	Credential string
	Color      int
	Channels   []string
	Schedule   string
	// Retention bounds the seen set (item-set only). Zero is unbounded.
	Retention int
	// MaxItems keeps only the newest N items of each snapshot. Zero keeps all.
	MaxItems int

	Username string
	Streams  []string

	Raid   string
	Guilds []Guild

	Mapping *Mapping
}

// DisplayName is Name, falling back to ID.
func (s Source) DisplayName() string {
	if strings.TrimSpace(s.Name) != "" {
		return s.Name
	}
	return s.ID
}

type Guild struct {
	Region string
	Realm  string
	Name   string
}

// Key is the composite entity key region:realm:name, lowercased.
func (g Guild) Key() string {
	return strings.ToLower(g.Region + ":" + g.Realm + ":" + g.Name)
}

// Mapping selects items from a JSON document (kind json).
type Mapping struct {
	Items     string
	ID        string
	Title     string
	Link      string
	Author    string
	Body      string
	Timestamp string
}

type kindDefaults struct {
	policy    Policy
	schedule  string
	retention int
	maxItems  int
	color     int
}

var defaults = map[Kind]kindDefaults{
	KindWarcraftLogs: {policy: PolicyItemSet, schedule: "*/5 * * * *", retention: 5, maxItems: 1, color: 0xFF8000},
	KindRaiderIO:     {policy: PolicyRankedRecord, schedule: "*/15 * * * *", color: 0x0070FF},
	KindReddit:       {policy: PolicyItemSet, schedule: "*/5 * * * *", color: 0xFF4500},
	KindRSS:          {policy: PolicyItemSet, schedule: "*/15 * * * *", color: 0x5865F2},
	KindJSON:         {policy: PolicyItemSet, schedule: "*/10 * * * *", color: 0x5865F2},
}

// DefaultSchedule returns the schedule used when a source omits one.
func DefaultSchedule(k Kind) string { return defaults[k].schedule }

// DefaultRaid is the Raider.IO raid slug used when a source omits one.
const DefaultRaid = "liberation-of-undermine"
