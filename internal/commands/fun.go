package commands

import (
	"context"
	"strconv"

	"raidwatch/internal/transport/router"
	"raidwatch/pkg/card"
)

const defaultChessTV = "https://lichess.org/tv"

func (s *Service) funCommands() []router.Command {
	return []router.Command{
		{
			Route:       "ping",
			Description: "Check that the bot is alive",
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.ReplyText(ctx, "pong")
			},
		},
		{
			Route:       "pong",
			Description: "Responds with Ping!",
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.ReplyText(ctx, "Ping!")
			},
		},
		{
			Route:       "roll",
			Description: "Rolls a number between 1 and 999",
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, textMessage(strconv.Itoa(s.d.Roll())))
			},
		},
		{
			Route:       "chesstv",
			Description: "Lichess TV links of the major players",
			Handle:      s.cmdChessTV,
		},
	}
}

func (s *Service) cmdChessTV(ctx context.Context, req *router.Request) error {
	b := card.New().Title("", "Lichess TVs of the major players.").Color(0xEFDAB5)
	var links int
	if l := s.d.Config.Get().Lookups; l != nil {
		for _, link := range l.ChessTV {
			b.Field(link.Name, link.URL, false)
			links++
		}
	}
	if links == 0 {
		b.Field("Lichess TV", defaultChessTV, false)
	}
	return req.Reply(ctx, b.Message(false))
}
