// Package filters решает, какие апдейты бот вообще обрабатывает.
package filters

import (
	"context"
	"strings"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/bot/sender"
)

// ChatFilter пропускает только личные сообщения живых пользователей.
// На команду в группе отвечает подсказкой, остальное молча игнорирует.
type ChatFilter struct {
	msg sender.Messenger
}

// NewChatFilter создаёт фильтр чатов.
func NewChatFilter(msg sender.Messenger) *ChatFilter {
	return &ChatFilter{msg: msg}
}

// CheckAccess возвращает true, если сообщение нужно обработать.
func (f *ChatFilter) CheckAccess(ctx context.Context, message *telego.Message) bool {
	if message == nil {
		log.WithField("component", "ChatFilter").Warn("nil message")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Warn("nil message.From (service/channel message?)")
		return false
	}
	if message.From.IsBot {
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "ChatFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	if message.Chat.Type == telego.ChatTypePrivate {
		return true
	}

	if strings.HasPrefix(strings.TrimSpace(message.Text), "/") {
		logger.Debug("deny: command outside private chat")
		if _, err := f.msg.Send(ctx, message.Chat.ID, "🔒 Лоты и билеты — только в личных сообщениях с ботом", nil); err != nil {
			logger.WithError(err).Warn("failed to send deny message")
		}
		return false
	}

	logger.Debug("deny: not private")
	return false
}
