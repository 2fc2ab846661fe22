// Package telegram delivers log lines to a Telegram chat. It is an
// optional sink for the logging service; the bot itself runs on Discord.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

const textLimit = 4000

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
}

// Sender posts plain text via the Bot API. It never polls for updates.
type Sender struct {
	cfg Config
	bot *tele.Bot
}

func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: true})
	if err != nil {
		return nil, err
	}
	return &Sender{cfg: cfg, bot: b}, nil
}

// ChatTarget resolves the log channel: a numeric chat id overrides the
// configured one.
func (s *Sender) ChatTarget(channel string) int64 {
	if id, err := strconv.ParseInt(strings.TrimSpace(channel), 10, 64); err == nil && id != 0 {
		return id
	}
	return s.cfg.ChatID
}

// SendLog implements logx.ChatSender.
func (s *Sender) SendLog(ctx context.Context, channel, text string) error {
	chat := &tele.Chat{ID: s.ChatTarget(channel)}
	if chat.ID == 0 {
		return errors.New("telegram chat id is not set")
	}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.bot.Send(chat, chunk, &tele.SendOptions{
			DisableWebPagePreview: true,
			ThreadID:              s.cfg.ThreadID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// splitText cuts s into chunks of at most limit runes, preferring a
// newline in the last two thirds of each window.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i-start >= limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
	}
	return out
}
