package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/bot/sender"
	"serotonyl.ru/lot-bot/internal/common"
	"serotonyl.ru/lot-bot/internal/features/leaderboard"
	"serotonyl.ru/lot-bot/internal/features/reveal"
)

// DefaultViewTTL — через сколько без нажатий карточка перестаёт обновляться.
const DefaultViewTTL = 10 * time.Minute

// OutcomeStarter показывает исход розыгрыша.
type OutcomeStarter interface {
	StartOutcome(ctx context.Context, chatID int64, in reveal.OutcomeInput, cb reveal.OutcomeCallbacks) error
}

// RoomVerifier присылает отчёт о проверке розыгрыша лота.
type RoomVerifier interface {
	HandleRoomVerify(ctx context.Context, chatID int64, roomID string)
}

// LastRooms помнит последний открытый пользователем лот.
type LastRooms interface {
	SetLastRoom(ctx context.Context, userID int64, roomID string) error
	LastRoom(ctx context.Context, userID int64) (string, error)
}

// Options — настройки карточек.
type Options struct {
	ViewTTL        time.Duration
	Clock          clockwork.Clock
	VerifyEnabled  bool
	OutcomeEnabled bool
}

// roomView — открытая у пользователя карточка лота.
type roomView struct {
	chatID    int64
	userID    int64
	roomID    string
	messageID int

	watch *leaderboard.Watch
	idle  clockwork.Timer

	mu     sync.Mutex
	shown  string
	text   string
	closed bool
}

// Handler обрабатывает команды и кнопки лотов.
// ctx, переданный в методы, должен жить столько же, сколько бот:
// карточка продолжает обновляться после возврата из обработчика.
type Handler struct {
	service    *Service
	reconciler *leaderboard.Reconciler
	msg        sender.Messenger
	outcomes   OutcomeStarter
	verifier   RoomVerifier
	lastRooms  LastRooms
	opts       Options

	mu    sync.Mutex
	views map[int64]*roomView
}

// NewHandler создаёт обработчик лотов.
func NewHandler(service *Service, reconciler *leaderboard.Reconciler, msg sender.Messenger,
	outcomes OutcomeStarter, verifier RoomVerifier, lastRooms LastRooms, opts Options) *Handler {
	if opts.ViewTTL <= 0 {
		opts.ViewTTL = DefaultViewTTL
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Handler{
		service:    service,
		reconciler: reconciler,
		msg:        msg,
		outcomes:   outcomes,
		verifier:   verifier,
		lastRooms:  lastRooms,
		opts:       opts,
		views:      make(map[int64]*roomView),
	}
}

// OpenRoom открывает живую карточку лота. Предыдущая карточка
// этого пользователя перестаёт обновляться.
func (h *Handler) OpenRoom(ctx context.Context, chatID, userID int64, roomID string) {
	logger := log.WithFields(log.Fields{
		"component": "rooms",
		"user_id":   userID,
		"room_id":   roomID,
	})

	h.closeView(userID, nil)

	messageID, err := h.msg.Send(ctx, chatID, "⏳ Загружаем лот…", nil)
	if err != nil {
		logger.WithError(err).Error("Не удалось отправить карточку лота")
		return
	}

	v := &roomView{
		chatID:    chatID,
		userID:    userID,
		roomID:    roomID,
		messageID: messageID,
	}
	v.watch = h.reconciler.Watch(ctx, leaderboard.ViewKey{RoomID: roomID, UserID: userID}, func(s leaderboard.Snapshot) {
		h.render(ctx, v, s)
	})
	v.idle = h.opts.Clock.AfterFunc(h.opts.ViewTTL, func() { h.expire(ctx, v) })

	h.mu.Lock()
	prev := h.views[userID]
	h.views[userID] = v
	h.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	if h.lastRooms != nil {
		if err := h.lastRooms.SetLastRoom(ctx, userID, roomID); err != nil {
			logger.WithError(err).Warn("Не удалось запомнить последний лот")
		}
	}
	logger.Debug("Карточка лота открыта")
}

func (h *Handler) render(ctx context.Context, v *roomView, s leaderboard.Snapshot) {
	text, kb := renderRoom(s.Board, v.userID, h.opts)
	key := text + "\x00" + keyboardKey(kb)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || key == v.shown {
		return
	}
	if err := h.msg.Edit(ctx, v.chatID, v.messageID, text, kb); err != nil {
		if !sender.IsNotModified(err) {
			log.WithError(err).WithField("room_id", v.roomID).Warn("Не удалось обновить карточку лота")
			return
		}
	}
	v.shown = key
	v.text = text
}

// stop останавливает обновления. Возвращает false, если карточка уже закрыта.
func (v *roomView) stop() bool {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return false
	}
	v.closed = true
	v.mu.Unlock()

	v.watch.Stop()
	v.idle.Stop()
	return true
}

// closeView закрывает карточку пользователя. Если only задан,
// закрывается только она, а не более новая.
func (h *Handler) closeView(userID int64, only *roomView) *roomView {
	h.mu.Lock()
	v := h.views[userID]
	if v == nil || (only != nil && v != only) {
		h.mu.Unlock()
		return nil
	}
	delete(h.views, userID)
	h.mu.Unlock()

	if !v.stop() {
		return nil
	}
	return v
}

func (h *Handler) expire(ctx context.Context, v *roomView) {
	if h.closeView(v.userID, v) == nil {
		return
	}
	v.mu.Lock()
	text := v.text
	v.mu.Unlock()
	if text == "" {
		text = "Карточка лота"
	}
	text += "\n\n⏸ Обновление остановлено. Откройте лот снова: /room " + v.roomID
	if err := h.msg.Edit(ctx, v.chatID, v.messageID, text, nil); err != nil && !sender.IsNotModified(err) {
		log.WithError(err).WithField("room_id", v.roomID).Debug("Не удалось пометить карточку как неактивную")
	}
}

func (h *Handler) view(userID int64, roomID string) *roomView {
	h.mu.Lock()
	defer h.mu.Unlock()
	v := h.views[userID]
	if v == nil || v.roomID != roomID {
		return nil
	}
	return v
}

// refresh просит перечитать таблицу, если пользователь смотрит этот лот.
func (h *Handler) refresh(userID int64, roomID string) bool {
	v := h.view(userID, roomID)
	if v == nil {
		return false
	}
	v.idle.Reset(h.opts.ViewTTL)
	v.watch.Refresh()
	return true
}

// HandleRoom обрабатывает /room [room_id]. Без аргумента открывает последний лот.
func (h *Handler) HandleRoom(ctx context.Context, chatID, userID int64, args []string) {
	raw := ""
	if len(args) > 0 {
		raw = args[0]
	} else if h.lastRooms != nil {
		last, err := h.lastRooms.LastRoom(ctx, userID)
		if err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("Не удалось прочитать последний лот")
		}
		raw = last
	}
	if raw == "" {
		h.send(ctx, chatID, "Использование: /room <room_id>")
		return
	}

	roomID, err := common.ParseUUID(raw, common.ErrInvalidRoomID)
	if err != nil {
		h.send(ctx, chatID, "❌ "+err.Error())
		return
	}
	h.OpenRoom(ctx, chatID, userID, roomID)
}

// HandleJoin обрабатывает /join <room_id> <reveal_id>.
func (h *Handler) HandleJoin(ctx context.Context, chatID, userID int64, args []string) {
	roomID, revealID, ok := h.parsePair(ctx, chatID, args, "/join")
	if !ok {
		return
	}
	summary, err := h.service.Join(ctx, roomID, revealID, userID)
	if err != nil {
		h.send(ctx, chatID, h.errorText(err, "Вход в лот"))
		return
	}
	text := "✅ Карта в лоте"
	if summary.PriorityScore > 0 {
		text += fmt.Sprintf(". Приоритет: %.2f", summary.PriorityScore)
	}
	h.send(ctx, chatID, text)
	h.refresh(userID, roomID)
}

// HandleLeave обрабатывает /leave <room_id> <reveal_id>.
func (h *Handler) HandleLeave(ctx context.Context, chatID, userID int64, args []string) {
	roomID, revealID, ok := h.parsePair(ctx, chatID, args, "/leave")
	if !ok {
		return
	}
	summary, err := h.service.Leave(ctx, roomID, revealID, userID)
	if err != nil {
		h.send(ctx, chatID, h.errorText(err, "Выход из лота"))
		return
	}
	text := "↩️ Карта выведена из лота"
	if summary.Message != "" {
		text += ": " + summary.Message
	}
	h.send(ctx, chatID, text)
	h.refresh(userID, roomID)
}

func (h *Handler) parsePair(ctx context.Context, chatID int64, args []string, cmd string) (string, string, bool) {
	if len(args) < 2 {
		h.send(ctx, chatID, fmt.Sprintf("Использование: %s <room_id> <reveal_id>", cmd))
		return "", "", false
	}
	roomID, err := common.ParseUUID(args[0], common.ErrInvalidRoomID)
	if err != nil {
		h.send(ctx, chatID, "❌ "+err.Error())
		return "", "", false
	}
	revealID, err := common.ParseUUID(args[1], common.ErrInvalidRevealID)
	if err != nil {
		h.send(ctx, chatID, "❌ "+err.Error())
		return "", "", false
	}
	return roomID, revealID, true
}

// HandleCallback обрабатывает кнопки карточки rm:<действие>:<room_id>.
func (h *Handler) HandleCallback(ctx context.Context, callbackID string, chatID, userID int64, data string) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != CallbackPrefix {
		h.answer(ctx, callbackID, common.ErrFlowNotFound.Error())
		return
	}
	action, roomID := parts[1], parts[2]

	switch action {
	case actionRefresh:
		if !h.refresh(userID, roomID) {
			h.answer(ctx, callbackID, common.ErrFlowNotFound.Error())
			return
		}
		h.answer(ctx, callbackID, "🔄 Обновляем")

	case actionClose:
		v := h.view(userID, roomID)
		if v == nil {
			h.answer(ctx, callbackID, common.ErrFlowNotFound.Error())
			return
		}
		h.closeView(userID, v)
		h.answer(ctx, callbackID, "")
		if err := h.msg.Edit(ctx, v.chatID, v.messageID, "Карточка лота закрыта.", nil); err != nil && !sender.IsNotModified(err) {
			log.WithError(err).Debug("Не удалось закрыть карточку лота")
		}

	case actionVerify:
		if !h.opts.VerifyEnabled || h.verifier == nil {
			h.answer(ctx, callbackID, common.ErrActionUnavailable.Error())
			return
		}
		h.answer(ctx, callbackID, "")
		h.verifier.HandleRoomVerify(ctx, chatID, roomID)

	case actionDraw:
		if !h.opts.OutcomeEnabled || h.outcomes == nil {
			h.answer(ctx, callbackID, common.ErrActionUnavailable.Error())
			return
		}
		h.answer(ctx, callbackID, "")
		h.ShowOutcome(ctx, chatID, userID, roomID)

	default:
		h.answer(ctx, callbackID, common.ErrActionUnavailable.Error())
	}
}

// ShowOutcome запускает показ исхода розыгрыша лота. Действия
// победителя и проигравшего уходят в бэкенд, результат приходит
// отдельным сообщением.
func (h *Handler) ShowOutcome(ctx context.Context, chatID, userID int64, roomID string) {
	in, err := h.service.LoadOutcome(ctx, roomID, userID)
	if err != nil {
		h.send(ctx, chatID, h.errorText(err, "Загрузка исхода"))
		return
	}

	cb := reveal.OutcomeCallbacks{
		OnClaim:   func() { h.claim(ctx, chatID, userID, roomID) },
		OnRefund:  func() { h.refund(ctx, chatID, userID, roomID) },
		OnConvert: func() { h.convert(ctx, chatID, userID, roomID) },
	}
	if err := h.outcomes.StartOutcome(ctx, chatID, in, cb); err != nil {
		log.WithError(err).WithField("room_id", roomID).Error("Некорректная запись розыгрыша")
		h.send(ctx, chatID, "❌ Запись розыгрыша повреждена, показ невозможен")
	}
}

func (h *Handler) claim(ctx context.Context, chatID, userID int64, roomID string) {
	red, err := h.service.Claim(ctx, roomID, userID)
	switch {
	case err != nil:
		h.send(ctx, chatID, h.errorText(err, "Получение приза"))
	case red.RequiresPayment:
		h.send(ctx, chatID, fmt.Sprintf("💳 Для получения приза доплатите %s", common.FormatCents(red.PayCents)))
	default:
		h.send(ctx, chatID, "🏆 Приз оформлен! Мы свяжемся с вами по доставке.")
	}
	h.refresh(userID, roomID)
}

func (h *Handler) refund(ctx context.Context, chatID, userID int64, roomID string) {
	res, err := h.service.Refund(ctx, roomID, userID)
	if err != nil {
		h.send(ctx, chatID, h.errorText(err, "Возврат"))
		return
	}
	h.send(ctx, chatID, fmt.Sprintf("💸 Возврат оформлен: %s", common.FormatCents(res.RefundCents)))
	h.refresh(userID, roomID)
}

func (h *Handler) convert(ctx context.Context, chatID, userID int64, roomID string) {
	res, err := h.service.Convert(ctx, roomID, userID)
	if err != nil {
		h.send(ctx, chatID, h.errorText(err, "Обмен на кредиты"))
		return
	}
	h.send(ctx, chatID, fmt.Sprintf("🪙 Начислено кредитов: %s", common.FormatNumber(res.CreditsAwarded)))
	h.refresh(userID, roomID)
}

// errorText переводит ошибку в ответ пользователю. Ошибки
// инфраструктуры логируются, пользователю уходит общий текст.
func (h *Handler) errorText(err error, op string) string {
	switch {
	case errors.Is(err, common.ErrRequestRejected),
		errors.Is(err, common.ErrRoomNotSettled),
		errors.Is(err, common.ErrDrawNotFound):
		return "❌ " + err.Error()
	default:
		log.WithError(err).WithField("op", op).Error("Ошибка запроса к бэкенду")
		return "❌ Сервер недоступен, попробуйте позже"
	}
}

// Active — число открытых карточек (для /flows).
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.views)
}

// Shutdown останавливает все карточки.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	views := h.views
	h.views = make(map[int64]*roomView)
	h.mu.Unlock()

	for _, v := range views {
		v.stop()
	}
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) {
	if _, err := h.msg.Send(ctx, chatID, text, nil); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Не удалось отправить сообщение")
	}
}

func (h *Handler) answer(ctx context.Context, callbackID, text string) {
	if err := h.msg.Answer(ctx, callbackID, text); err != nil {
		log.WithError(err).Debug("Не удалось ответить на callback")
	}
}

func keyboardKey(kb *telego.InlineKeyboardMarkup) string {
	if kb == nil {
		return ""
	}
	var sb strings.Builder
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			sb.WriteString(b.Text)
			sb.WriteByte('|')
			sb.WriteString(b.CallbackData)
			sb.WriteByte(';')
		}
		sb.WriteByte('/')
	}
	return sb.String()
}
