// Package sender отправляет и редактирует сообщения через telego.
// Редактирования ограничены по чату: Telegram не даёт менять сообщение
// чаще примерно раза в секунду, поэтому кадры анимаций могут пропускаться.
package sender

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Messenger — то, чем фичи показывают пользователю состояние.
type Messenger interface {
	// Send отправляет сообщение и возвращает его id.
	Send(ctx context.Context, chatID int64, text string, kb *telego.InlineKeyboardMarkup) (int, error)
	// Edit меняет сообщение, дожидаясь лимита.
	Edit(ctx context.Context, chatID int64, messageID int, text string, kb *telego.InlineKeyboardMarkup) error
	// EditFrame меняет сообщение, только если лимит позволяет прямо сейчас.
	EditFrame(ctx context.Context, chatID int64, messageID int, text string, kb *telego.InlineKeyboardMarkup) bool
	// Answer закрывает «часики» на inline-кнопке.
	Answer(ctx context.Context, callbackID, text string) error
}

type chatLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Sender — реализация Messenger поверх telego.Bot.
type Sender struct {
	api      *telego.Bot
	interval time.Duration

	mu       sync.Mutex
	limiters map[int64]*chatLimiter
}

// New создаёт отправителя с интервалом между редактированиями в одном чате.
func New(api *telego.Bot, editInterval time.Duration) *Sender {
	if editInterval <= 0 {
		editInterval = time.Second
	}
	return &Sender{
		api:      api,
		interval: editInterval,
		limiters: make(map[int64]*chatLimiter),
	}
}

func (s *Sender) limiter(chatID int64) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	cl, ok := s.limiters[chatID]
	if !ok {
		cl = &chatLimiter{limiter: rate.NewLimiter(rate.Every(s.interval), 1)}
		s.limiters[chatID] = cl
	}
	cl.lastUsed = time.Now()
	return cl.limiter
}

// Send отправляет сообщение.
func (s *Sender) Send(ctx context.Context, chatID int64, text string, kb *telego.InlineKeyboardMarkup) (int, error) {
	params := tu.Message(tu.ID(chatID), text)
	if kb != nil {
		params = params.WithReplyMarkup(kb)
	}
	msg, err := s.api.SendMessage(ctx, params)
	if err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
		return 0, err
	}
	// Новое сообщение тоже расходует лимит чата
	s.limiter(chatID).Allow()
	return msg.MessageID, nil
}

// Edit меняет сообщение. Ждёт, пока лимит чата освободится.
func (s *Sender) Edit(ctx context.Context, chatID int64, messageID int, text string, kb *telego.InlineKeyboardMarkup) error {
	if err := s.limiter(chatID).Wait(ctx); err != nil {
		return err
	}
	return s.edit(ctx, chatID, messageID, text, kb)
}

// EditFrame пропускает кадр, если лимит исчерпан.
func (s *Sender) EditFrame(ctx context.Context, chatID int64, messageID int, text string, kb *telego.InlineKeyboardMarkup) bool {
	if !s.limiter(chatID).Allow() {
		return false
	}
	return s.edit(ctx, chatID, messageID, text, kb) == nil
}

func (s *Sender) edit(ctx context.Context, chatID int64, messageID int, text string, kb *telego.InlineKeyboardMarkup) error {
	_, err := s.api.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:      tu.ID(chatID),
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: kb,
	})
	if err != nil && !IsNotModified(err) {
		log.WithError(err).WithFields(log.Fields{
			"chat_id":    chatID,
			"message_id": messageID,
		}).Warn("Ошибка редактирования сообщения")
		return err
	}
	return nil
}

// Answer отвечает на callback query.
func (s *Sender) Answer(ctx context.Context, callbackID, text string) error {
	params := tu.CallbackQuery(callbackID)
	if text != "" {
		params = params.WithText(text)
	}
	return s.api.AnswerCallbackQuery(ctx, params)
}

// PurgeIdle удаляет лимитеры чатов, неактивных дольше maxIdle.
// Возвращает число удалённых.
func (s *Sender) PurgeIdle(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for id, cl := range s.limiters {
		if cl.lastUsed.Before(cutoff) {
			delete(s.limiters, id)
			removed++
		}
	}
	return removed
}

// IsNotModified — Telegram ругается, если текст и клавиатура не изменились.
func IsNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
