// Package bot содержит главный модуль бота — приём апдейтов и маршрутизацию.
// bot.go читает long polling и раскладывает сообщения и кнопки по фичам.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/bot/filters"
	"serotonyl.ru/lot-bot/internal/bot/middleware"
	"serotonyl.ru/lot-bot/internal/bot/sender"
	"serotonyl.ru/lot-bot/internal/common"
	"serotonyl.ru/lot-bot/internal/config"
	"serotonyl.ru/lot-bot/internal/features/members"
	"serotonyl.ru/lot-bot/internal/features/reveal"
	"serotonyl.ru/lot-bot/internal/features/rooms"
	"serotonyl.ru/lot-bot/internal/metrics"
)

// Greeter отвечает на /start.
type Greeter interface {
	HandleStart(ctx context.Context, chatID int64, p members.Profile)
}

// MemberTracker отмечает визиты пользователей.
type MemberTracker interface {
	EnsureMember(ctx context.Context, p members.Profile) error
}

// RoomCommands — команды и кнопки карточки лота.
type RoomCommands interface {
	HandleRoom(ctx context.Context, chatID, userID int64, args []string)
	HandleJoin(ctx context.Context, chatID, userID int64, args []string)
	HandleLeave(ctx context.Context, chatID, userID int64, args []string)
	HandleCallback(ctx context.Context, callbackID string, chatID, userID int64, data string)
}

// RevealCallbacks — кнопки анимаций показа.
type RevealCallbacks interface {
	HandleCallback(ctx context.Context, callbackID string, chatID int64, data string)
}

// Verifier — команда /verify.
type Verifier interface {
	HandleVerify(ctx context.Context, chatID int64, args []string)
}

// AdminConsole — команды оператора.
type AdminConsole interface {
	HandleAdminMessage(ctx context.Context, chatID, userID int64, text string) bool
}

// Handlers — обработчики фич, между которыми бот раскладывает апдейты.
type Handlers struct {
	Greeter Greeter
	Members MemberTracker
	Rooms   RoomCommands
	Reveal  RevealCallbacks
	Verify  Verifier
	Admin   AdminConsole
}

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *telego.Bot
	cfg *config.Config
	msg sender.Messenger

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter
	handlers    Handlers
	metrics     *metrics.Metrics

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
	wg       sync.WaitGroup
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *telego.Bot,
	cfg *config.Config,
	msg sender.Messenger,
	handlers Handlers,
	chatFilter *filters.ChatFilter,
	rateLimiter *middleware.RateLimiter,
	m *metrics.Metrics,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:         api,
		cfg:         cfg,
		msg:         msg,
		chatFilter:  chatFilter,
		rateLimiter: rateLimiter,
		handlers:    handlers,
		metrics:     m,
		parser:      NewCommandParser(),
		inflight:    make(chan struct{}, maxInFlight),
	}
}

// Start запускает long polling и блокируется до отмены ctx.
// ctx передаётся обработчикам: живые карточки и анимации работают на нём.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        b.cfg.BotUpdateTimeoutSeconds,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return fmt.Errorf("не удалось запустить long polling: %w", err)
	}

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for update := range updates {
		// лимит параллелизма
		select {
		case b.inflight <- struct{}{}:
		case <-ctx.Done():
			continue
		}
		b.wg.Add(1)
		go func(upd telego.Update) {
			defer b.wg.Done()
			defer func() { <-b.inflight }()
			b.handleUpdate(ctx, upd)
		}(update)
	}

	b.wg.Wait()
	log.Info("Канал updates закрыт, бот остановлен")
	return nil
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	switch {
	case update.Message != nil:
		b.metrics.BotUpdate("message")
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.metrics.BotUpdate("callback")
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *telego.Message) {
	if message.Text == "" {
		return
	}

	middleware.LogMessage(message)

	if !b.chatFilter.CheckAccess(ctx, message) {
		return
	}

	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	profile := members.Profile{
		UserID:    userID,
		Username:  message.From.Username,
		FirstName: message.From.FirstName,
		LastName:  message.From.LastName,
	}
	// EnsureMember — ошибки нельзя игнорировать, иначе потом будет "оно не работает"
	if err := b.handlers.Members.EnsureMember(ctx, profile); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("EnsureMember failed")
	}

	if b.handlers.Admin.HandleAdminMessage(ctx, chatID, userID, message.Text) {
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	log.WithFields(log.Fields{
		"isCommand": isCommand,
		"cmd":       cmd,
		"args":      args,
	}).Debug("parsed command")

	if isCommand {
		b.routeCommand(ctx, chatID, profile, cmd, args)
	}
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID int64, p members.Profile, cmd string, args []string) {
	switch cmd {
	case "start", "help":
		b.handlers.Greeter.HandleStart(ctx, chatID, p)

	case "room", "лот":
		b.handlers.Rooms.HandleRoom(ctx, chatID, p.UserID, args)

	case "join", "войти":
		b.handlers.Rooms.HandleJoin(ctx, chatID, p.UserID, args)

	case "leave", "выйти":
		b.handlers.Rooms.HandleLeave(ctx, chatID, p.UserID, args)

	case "verify", "проверка":
		if b.cfg.FeatureVerifyEnabled {
			b.handlers.Verify.HandleVerify(ctx, chatID, args)
		} else {
			b.sendMessage(ctx, chatID, "🔍 Проверка розыгрышей временно отключена")
		}

	default:
		b.sendMessage(ctx, chatID, "Неизвестная команда. Список команд: /help")
	}
}

// handleCallback раскладывает нажатия кнопок по префиксу данных.
func (b *Bot) handleCallback(ctx context.Context, query *telego.CallbackQuery) {
	middleware.LogCallback(query)

	if query.Message == nil {
		b.answer(ctx, query.ID, common.ErrFlowNotFound.Error())
		return
	}
	chatID := query.Message.GetChat().ID
	userID := query.From.ID

	if !b.rateLimiter.Allow(userID) {
		b.answer(ctx, query.ID, "⏳ Слишком часто, подождите")
		return
	}

	prefix, _, _ := strings.Cut(query.Data, ":")
	switch prefix {
	case reveal.CallbackPrefix:
		b.handlers.Reveal.HandleCallback(ctx, query.ID, chatID, query.Data)
	case rooms.CallbackPrefix:
		b.handlers.Rooms.HandleCallback(ctx, query.ID, chatID, userID, query.Data)
	default:
		b.answer(ctx, query.ID, common.ErrFlowNotFound.Error())
	}
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := b.msg.Send(ctx, chatID, text, nil); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

func (b *Bot) answer(ctx context.Context, callbackID, text string) {
	if err := b.msg.Answer(ctx, callbackID, text); err != nil {
		log.WithError(err).Debug("Не удалось ответить на callback")
	}
}

// CommandParser парсит команды с префиксами /, ! и .
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/", "!", "."},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Суффикс @имя_бота у команды отбрасывается.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command, _, _ := strings.Cut(parts[0], "@")
	if command == "" {
		return "", nil, false
	}
	command = strings.ToLower(command)

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}
