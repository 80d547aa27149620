// Package members — handlers.go отвечает на /start и /help.
package members

import (
	"context"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/bot/sender"
)

// HelpText — список команд бота.
const HelpText = `🎟 Бот лотов

/room [room_id] — живая карточка лота (без аргумента — последний открытый)
/join <room_id> <reveal_id> — войти в лот картой
/leave <room_id> <reveal_id> — вывести карту из лота
/verify <draw_id> — проверить честность розыгрыша

После оплаты бот сам покажет ваши билеты и откроет карточку лота.`

// Handler обрабатывает приветствие.
type Handler struct {
	service *Service
	msg     sender.Messenger
}

// NewHandler создаёт обработчик приветствия.
func NewHandler(service *Service, msg sender.Messenger) *Handler {
	return &Handler{service: service, msg: msg}
}

// HandleStart регистрирует пользователя и присылает список команд.
func (h *Handler) HandleStart(ctx context.Context, chatID int64, p Profile) {
	if err := h.service.EnsureMember(ctx, p); err != nil {
		log.WithError(err).WithField("user_id", p.UserID).Warn("EnsureMember failed")
	}
	if _, err := h.msg.Send(ctx, chatID, HelpText, nil); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
