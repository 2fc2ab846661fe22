package commands

import (
	"context"
	"errors"
	"fmt"

	"raidwatch/internal/lookup"
	kit "raidwatch/internal/transport"
	"raidwatch/internal/transport/router"
	"raidwatch/pkg/card"
)

func (s *Service) lookupCommands() []router.Command {
	return []router.Command{
		{
			Route:       "rating",
			Description: "Sends the Lichess rating of the player",
			Options: []kit.CommandOption{
				{Name: "player", Description: "Name of the player", Type: kit.OptionString, Required: true},
			},
			Handle: s.cmdRating,
		},
		{
			Route:       "telemetry",
			Description: "Sends the latest telemetry reading",
			Handle:      s.cmdTelemetry,
		},
	}
}

func textMessage(text string) kit.Message { return kit.Message{Content: text} }

func perfValue(p *lookup.Perf, games string) string {
	if p == nil {
		return "unrated"
	}
	v := fmt.Sprintf("**Rating:** %d **%s:** %d", p.Rating, games, p.Games)
	if p.Prov {
		v += " (provisional)"
	}
	return v
}

func (s *Service) cmdRating(ctx context.Context, req *router.Request) error {
	if s.d.Lookup == nil {
		return router.Userf("Lookups are not configured.")
	}
	player := req.Arg("player")
	r, err := s.d.Lookup.Rating(ctx, player)
	if errors.Is(err, lookup.ErrNotFound) {
		return router.Userf("Player '%s' not found on Lichess.", player)
	}
	if err != nil {
		return err
	}
	b := card.New().Title("", fmt.Sprintf("Ratings of the player %s.", r.Player)).Color(0xbc0057).
		Field("Blitz:", perfValue(r.Blitz, "Games"), false).
		Field("Rapid:", perfValue(r.Rapid, "Games"), false).
		Field("Puzzle:", perfValue(r.Puzzle, "Puzzles"), false)
	return req.Reply(ctx, b.Message(false))
}

func (s *Service) cmdTelemetry(ctx context.Context, req *router.Request) error {
	cfg := s.d.Config.Get()
	if s.d.Lookup == nil || cfg.Lookups == nil || cfg.Lookups.Telemetry == nil {
		return router.Userf("Telemetry is not configured.")
	}
	tc := *cfg.Lookups.Telemetry
	token, err := cfg.ResolveCredential(tc.Credential)
	if err != nil {
		return err
	}
	t, err := s.d.Lookup.Telemetry(ctx, tc, token)
	if err != nil {
		return err
	}
	title := t.Title
	if title == "" {
		title = "Telemetry"
	}
	b := card.New().Title("", title).Color(0xbc0057)
	for _, r := range t.Readings {
		v := r.Value
		if r.Unit != "" && v != "N/A" {
			v += " " + r.Unit
		}
		b.Field(r.Name+":", v, true)
	}
	measured := "N/A"
	if !t.At.IsZero() {
		measured = fmt.Sprintf("<t:%d:R>", t.At.Unix())
	}
	b.Field("Time from measurement:", measured, false)
	return req.Reply(ctx, b.Message(false))
}
