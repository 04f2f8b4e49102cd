package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"chatrecall/internal/chat"
	"chatrecall/internal/storage"
)

const (
	maxReplyRunes = 4000
	recallLimit   = 5
)

func (s *Service) help(b *gotgbot.Bot, ctx *ext.Context) error {
	text := strings.Join([]string{
		"Send any message to get an answer. Every exchange is logged when a database is configured.",
		"",
		"Commands:",
		"/history - last 5 exchanges",
		"/search <text> - up to 5 exchanges containing text",
	}, "\n")
	return s.reply(ctx, b, text)
}

func (s *Service) text(b *gotgbot.Bot, ctx *ext.Context) error {
	msg := ctx.EffectiveMessage
	if msg == nil || ctx.EffectiveChat == nil {
		return nil
	}
	question := strings.TrimSpace(msg.GetText())
	if question == "" {
		return nil
	}

	_, _ = b.SendChatAction(ctx.EffectiveChat.Id, "typing", nil)

	reqCtx, cancel := s.requestContext()
	defer cancel()
	session := sessionID(ctx.EffectiveChat.Id)
	resp, err := s.chat.Chat(reqCtx, chat.Request{Message: question, SessionID: &session})
	if err != nil {
		s.logger.Error().Err(err).Int64("chat_id", ctx.EffectiveChat.Id).Msg("telegram chat failed")
		return s.reply(ctx, b, "Error: "+err.Error())
	}
	answer := resp.Answer
	if strings.TrimSpace(answer) == "" {
		answer = "(empty answer)"
	}
	return s.reply(ctx, b, answer)
}

func (s *Service) history(b *gotgbot.Bot, ctx *ext.Context) error {
	return s.recall(ctx, b, "")
}

func (s *Service) search(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx.EffectiveMessage == nil {
		return nil
	}
	term := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	if term == "" {
		return s.reply(ctx, b, "Usage: /search <text>")
	}
	return s.recall(ctx, b, term)
}

func (s *Service) recall(ctx *ext.Context, b *gotgbot.Bot, term string) error {
	reqCtx, cancel := s.requestContext()
	defer cancel()
	logs, err := s.chat.History(reqCtx, chat.HistoryRequest{Search: term})
	if err != nil {
		s.logger.Error().Err(err).Msg("telegram history failed")
		return s.reply(ctx, b, "Log store is unavailable right now.")
	}
	return s.reply(ctx, b, formatRecords(logs, term))
}

func (s *Service) reply(ctx *ext.Context, b *gotgbot.Bot, text string) error {
	if ctx.EffectiveChat == nil {
		return nil
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, truncate(text, maxReplyRunes), nil)
	return err
}

func sessionID(chatID int64) string {
	return "telegram:" + strconv.FormatInt(chatID, 10)
}

func formatRecords(logs []storage.Record, term string) string {
	if len(logs) == 0 {
		if term != "" {
			return fmt.Sprintf("No exchanges matching %q.", term)
		}
		return "No exchanges logged yet."
	}
	if len(logs) > recallLimit {
		logs = logs[:recallLimit]
	}
	var sb strings.Builder
	for i, r := range logs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%s · %s\nQ: %s\nA: %s",
			r.CreatedAt.UTC().Format("2006-01-02 15:04"), r.Model,
			truncate(r.Question, 300), truncate(r.Answer, 500))
	}
	return sb.String()
}

func commandRemainder(text string) string {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
