package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"raidwatch/internal/transport/router"
	"raidwatch/pkg/card"
)

const statusHistory = 5

func (s *Service) statusCommands() []router.Command {
	return []router.Command{{
		Route:       "status",
		Description: "Show source schedules and recent runs",
		Handle:      s.cmdStatus,
	}}
}

func (s *Service) cmdStatus(ctx context.Context, req *router.Request) error {
	now := s.d.Now()
	b := card.New().Title("🧭", "Source Watcher status").Color(0x5865f2)

	if s.d.Engine != nil {
		snap := s.d.Engine()
		queue := fmt.Sprintf("%d/%d", snap.QueueLen, snap.QueueCap)
		b.KV("workers", fmt.Sprintf("%d (in flight %d)", snap.Workers, snap.InFlight)).
			KV("queue", queue)
		if n := snap.DroppedQueueFull + snap.Skipped; n > 0 {
			b.KV("skipped", fmt.Sprintf("%d overlap, %d queue full", snap.Skipped, snap.DroppedQueueFull))
		}

		hist := snap.History
		if len(hist) > statusHistory {
			hist = hist[len(hist)-statusHistory:]
		}
		if len(hist) > 0 {
			b.Blank().Section("Recent runs")
			for i := len(hist) - 1; i >= 0; i-- {
				it := hist[i]
				status := "ok"
				if it.Error != "" {
					status = "fail: " + card.TruncRunes(it.Error, 120)
				}
				b.Line(fmt.Sprintf("%s %s (%s ago, took %s)", it.Name, status, durRel(now.Sub(it.Started)), it.Duration.Round(time.Millisecond)))
			}
		}
	}

	if s.d.Schedules != nil {
		items := s.d.Schedules()
		sort.Slice(items, func(i, j int) bool {
			x, y := items[i].Next, items[j].Next
			if x.IsZero() != y.IsZero() {
				return y.IsZero()
			}
			if x.Equal(y) {
				return items[i].Name < items[j].Name
			}
			return x.Before(y)
		})
		for _, it := range items {
			next := "-"
			if !it.Next.IsZero() {
				next = "in " + durRel(it.Next.Sub(now))
			}
			last := "never"
			if !it.LastRun.IsZero() {
				last = durRel(now.Sub(it.LastRun)) + " ago"
				if it.LastErr != "" {
					last += " (failed)"
				}
			}
			if it.Running {
				last = "running now"
			}
			b.Field(it.Name, fmt.Sprintf("`%s`\nnext %s\nlast %s", it.Spec, next, last), true)
		}
		if len(items) == 0 {
			b.Blank().Line("No sources scheduled.")
		}
	}
	return req.Reply(ctx, b.Message(false))
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
