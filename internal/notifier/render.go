package notifier

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"raidwatch/internal/detector"
	"raidwatch/internal/source"
	kit "raidwatch/internal/transport"
)

const (
	warcraftLogsThumbnail = "https://assets.rpglogs.com/img/warcraft/favicon.png"
	redditThumbnail       = "https://www.redditstatic.com/desktop2x/img/favicon/android-icon-192x192.png"

	maxTitle       = 256
	maxDescription = 4096
	maxFieldValue  = 1024
	maxStandings   = 24
)

// RelativeTime formats a unix timestamp as a Discord relative timestamp.
func RelativeTime(unix int64) string {
	return fmt.Sprintf("<t:%d:R>", unix)
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// RenderItem builds the announcement embed for one new item.
func RenderItem(src source.Source, it source.Item, now time.Time) kit.Embed {
	ts := it.Timestamp
	if ts <= 0 {
		ts = now.Unix()
	}
	e := kit.Embed{Color: src.Color, URL: it.Link}

	switch {
	case src.Kind == source.KindWarcraftLogs:
		e.Title = clip(src.DisplayName()+" has uploaded new Warcraft Logs", maxTitle)
		e.Thumbnail = warcraftLogsThumbnail
		end := ts
		if v, err := strconv.ParseInt(it.Attrs["end"], 10, 64); err == nil && v > 0 {
			end = v
		}
		e.Fields = []kit.EmbedField{
			{Name: "Title:", Value: clip(orNA(it.Title), maxFieldValue)},
			{Name: "Author:", Value: orNA(it.Author)},
			{Name: "Log source:", Value: src.DisplayName()},
			{Name: "Start time:", Value: RelativeTime(ts), Inline: true},
			{Name: "End time:", Value: RelativeTime(end), Inline: true},
			{Name: "Link:", Value: it.Link},
		}

	case src.Kind == source.KindReddit && it.Kind == "comment":
		e.Title = clip("New comment by u/"+orNA(it.Author), maxTitle)
		e.Thumbnail = redditThumbnail
		e.Description = clip(it.Body, maxFieldValue)
		e.Fields = []kit.EmbedField{
			{Name: "Subreddit", Value: "r/" + orNA(it.Attrs["subreddit"]), Inline: true},
			{Name: "Comment Link", Value: "[Open](" + it.Link + ")", Inline: true},
			{Name: "Posted", Value: RelativeTime(ts), Inline: true},
		}

	case src.Kind == source.KindReddit:
		e.Title = clip("New post by u/"+orNA(it.Author), maxTitle)
		e.Thumbnail = redditThumbnail
		e.Description = clip(it.Title, maxDescription)
		e.Fields = []kit.EmbedField{
			{Name: "Submission URL", Value: clip(orNA(it.Link), maxFieldValue)},
			{Name: "Reddit Link", Value: clip(orNA(it.Attrs["permalink"]), maxFieldValue)},
			{Name: "Posted", Value: RelativeTime(ts), Inline: true},
		}

	default:
		title := it.Title
		if strings.TrimSpace(title) == "" {
			title = "New entry from " + src.DisplayName()
		}
		e.Title = clip(title, maxTitle)
		e.Description = clip(stripTags(it.Body), 600)
		e.Fields = []kit.EmbedField{
			{Name: "Source", Value: src.DisplayName(), Inline: true},
			{Name: "Posted", Value: RelativeTime(ts), Inline: true},
		}
		if it.Author != "" {
			e.Fields = append(e.Fields, kit.EmbedField{Name: "Author", Value: clip(it.Author, maxFieldValue), Inline: true})
		}
		if it.Link != "" {
			e.Fields = append(e.Fields, kit.EmbedField{Name: "Link", Value: clip(it.Link, maxFieldValue)})
		}
	}
	return e
}

// RenderStandings builds the ranking table embed.
func RenderStandings(src source.Source, table []detector.Standing, at time.Time) kit.Embed {
	e := kit.Embed{
		Title: clip("Guild World Ranks - "+RaidTitle(src.Raid), maxTitle),
		Color: src.Color,
	}
	for i, st := range table {
		if i == maxStandings {
			e.Footer = fmt.Sprintf("%d more not shown", len(table)-maxStandings)
			break
		}
		rank := "N/A"
		if tier, r := st.BestRank(); r > 0 {
			rank = fmt.Sprintf("%s #%d", tier, r)
		}
		value := fmt.Sprintf("Progress: %s   -   [Profile Link](%s)", orNA(st.Record.Summary), st.ProfileURL)
		if st.Err != nil {
			value += " (stale)"
		}
		e.Fields = append(e.Fields, kit.EmbedField{
			Name:  clip(fmt.Sprintf("%s   -   World Rank %s", st.Name, rank), maxTitle),
			Value: clip(value, maxFieldValue),
		})
	}
	e.Fields = append(e.Fields, kit.EmbedField{Name: "Last Update", Value: RelativeTime(at.Unix())})
	return e
}

// RaidTitle turns a raid slug into a title: "liberation-of-undermine"
// becomes "Liberation Of Undermine".
func RaidTitle(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, w := range words {
		r, n := utf8.DecodeRuneInString(w)
		words[i] = strings.ToUpper(string(r)) + w[n:]
	}
	return strings.Join(words, " ")
}

func stripTags(s string) string {
	var b strings.Builder
	in := false
	for _, r := range s {
		switch {
		case r == '<':
			in = true
		case r == '>':
			in = false
		case !in:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
