// Package admin — handlers.go обрабатывает команды оператора в личных сообщениях.
// Поток: /login → пароль → сессия на сутки → /flows, /returnlink, /logout.
package admin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/bot/sender"
	"serotonyl.ru/lot-bot/internal/common"
	"serotonyl.ru/lot-bot/internal/features/checkout"
)

// Gauge — счётчик живых сценариев для /flows.
type Gauge struct {
	Name  string
	Value func() int
}

// ActiveCounter считает пользователей, заходивших за окно.
type ActiveCounter interface {
	ActiveSince(ctx context.Context, window time.Duration) (int, error)
}

// LinkConfig — всё, что нужно для подписанной ссылки возврата.
type LinkConfig struct {
	BaseURL string
	Secret  string
}

// Handler обрабатывает команды оператора.
type Handler struct {
	service    *Service
	msg        sender.Messenger
	isOperator func(userID int64) bool
	links      LinkConfig
	users      ActiveCounter
	gauges     []Gauge
}

// NewHandler создаёт обработчик консоли.
func NewHandler(service *Service, msg sender.Messenger, isOperator func(int64) bool,
	links LinkConfig, users ActiveCounter, gauges ...Gauge) *Handler {
	return &Handler{
		service:    service,
		msg:        msg,
		isOperator: isOperator,
		links:      links,
		users:      users,
		gauges:     gauges,
	}
}

// HandleAdminMessage обрабатывает сообщение оператора в DM.
// Возвращает true, если сообщение относилось к консоли.
func (h *Handler) HandleAdminMessage(ctx context.Context, chatID, userID int64, text string) bool {
	if !h.isOperator(userID) {
		return false
	}

	if state := h.service.GetState(userID); state != nil && state.State == StateAwaitingPassword {
		h.service.ClearState(userID)
		h.handlePasswordInput(ctx, chatID, userID, strings.TrimSpace(text))
		return true
	}

	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return false
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	args := fields[1:]

	switch cmd {
	case "login":
		if len(args) > 0 {
			h.handlePasswordInput(ctx, chatID, userID, args[0])
			return true
		}
		h.sendMessage(ctx, chatID, "🔐 Введите пароль оператора:")
		h.service.SetState(userID, StateAwaitingPassword)
		return true
	case "flows", "returnlink", "logout":
	default:
		return false
	}

	if !h.service.HasActiveSession(ctx, userID) {
		h.sendMessage(ctx, chatID, "🔐 Сначала войдите: /login <пароль>")
		return true
	}

	switch cmd {
	case "flows":
		h.handleFlows(ctx, chatID)
	case "returnlink":
		h.handleReturnLink(ctx, chatID, userID, args)
	case "logout":
		if err := h.service.Logout(ctx, userID); err != nil {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка завершения сессии")
		}
		h.sendMessage(ctx, chatID, "👋 Сессия завершена")
	}
	return true
}

// handlePasswordInput обрабатывает ввод пароля.
func (h *Handler) handlePasswordInput(ctx context.Context, chatID, userID int64, password string) {
	if err := h.service.VerifyPassword(ctx, userID, password); err != nil {
		h.sendMessage(ctx, chatID, fmt.Sprintf("❌ %s", err.Error()))
		return
	}
	log.WithField("user_id", userID).Info("Оператор вошёл в консоль")
	h.sendMessage(ctx, chatID, "✅ Аутентификация успешна!\n/flows — активные сценарии\n/returnlink <room_id> <session_id> [telegram_id] — ссылка возврата")
}

// handleFlows показывает, сколько сценариев сейчас живо.
func (h *Handler) handleFlows(ctx context.Context, chatID int64) {
	var sb strings.Builder
	sb.WriteString("📊 Активные сценарии\n\n")
	for _, g := range h.gauges {
		sb.WriteString(fmt.Sprintf("%s: %d\n", g.Name, g.Value()))
	}
	if h.users != nil {
		n, err := h.users.ActiveSince(ctx, 24*time.Hour)
		if err != nil {
			log.WithError(err).Warn("Не удалось посчитать активных пользователей")
			sb.WriteString("Пользователей за сутки: —\n")
		} else {
			sb.WriteString(fmt.Sprintf("Пользователей за сутки: %d\n", n))
		}
	}
	h.sendMessage(ctx, chatID, strings.TrimRight(sb.String(), "\n"))
}

// handleReturnLink выдаёт подписанную ссылку возврата из оплаты.
func (h *Handler) handleReturnLink(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 2 {
		h.sendMessage(ctx, chatID, "Использование: /returnlink <room_id> <session_id> [telegram_id]")
		return
	}
	roomID, err := common.ParseUUID(args[0], common.ErrInvalidRoomID)
	if err != nil {
		h.sendMessage(ctx, chatID, "❌ "+err.Error())
		return
	}
	target := userID
	if len(args) > 2 {
		target, err = strconv.ParseInt(args[2], 10, 64)
		if err != nil || target <= 0 {
			h.sendMessage(ctx, chatID, "❌ Некорректный telegram_id")
			return
		}
	}

	link, err := checkout.BuildReturnURL(h.links.BaseURL, h.links.Secret, target, roomID, args[1])
	if err != nil {
		log.WithError(err).Error("Не удалось собрать ссылку возврата")
		h.sendMessage(ctx, chatID, "❌ Адрес возврата настроен неверно")
		return
	}
	h.sendMessage(ctx, chatID, "🔗 "+link)
}

func (h *Handler) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := h.msg.Send(ctx, chatID, text, nil); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
