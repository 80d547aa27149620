package checkout

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/bot/sender"
	"serotonyl.ru/lot-bot/internal/ledger"
)

// Revealer запускает анимацию покупки билетов.
type Revealer interface {
	StartEntryReveal(ctx context.Context, chatID int64, entry *ledger.EntrySession)
}

// RoomOpener открывает живую карточку лота.
type RoomOpener interface {
	OpenRoom(ctx context.Context, chatID, userID int64, roomID string)
}

// Handler связывает HTTP-возврат из оплаты с чатом пользователя.
type Handler struct {
	controller *Controller
	store      ReturnStore
	msg        sender.Messenger
	revealer   Revealer
	rooms      RoomOpener
	ttl        time.Duration
}

// NewHandler создаёт обработчик возвратов.
func NewHandler(controller *Controller, store ReturnStore, msg sender.Messenger, revealer Revealer, rooms RoomOpener, ttl time.Duration) *Handler {
	return &Handler{
		controller: controller,
		store:      store,
		msg:        msg,
		revealer:   revealer,
		rooms:      rooms,
		ttl:        ttl,
	}
}

// HandleReturn обрабатывает возврат пользователя telegramID.
// ctx должен жить дольше HTTP-запроса: опрос идёт в фоне.
func (h *Handler) HandleReturn(ctx context.Context, telegramID int64, ret Return) Outcome {
	logger := log.WithFields(log.Fields{
		"component":  "checkout",
		"user_id":    telegramID,
		"session_id": ret.SessionID,
	})

	if ret.Kind == KindSuccess {
		consumed, err := h.store.IsConsumed(ctx, ret.SessionID)
		if err != nil {
			// Хранилище недоступно: латч контроллера всё равно не даст два цикла
			logger.WithError(err).Warn("Не удалось проверить отметку возврата")
		}
		if consumed {
			logger.Debug("Возврат уже обработан, повторное открытие ссылки")
			return Duplicate
		}
	}

	view := &chatView{
		handler:   h,
		chatID:    telegramID,
		sessionID: ret.SessionID,
	}
	outcome := h.controller.Start(ctx, ret, view)
	logger.WithField("outcome", outcome.String()).Info("Возврат из оплаты принят")
	return outcome
}

// Active — число идущих циклов опроса (для /flows).
func (h *Handler) Active() int {
	return h.controller.Active()
}

// chatView показывает ход опроса одним сообщением, которое редактируется.
type chatView struct {
	handler   *Handler
	chatID    int64
	sessionID string

	mu        sync.Mutex
	messageID int
}

func noticeText(n Notice) string {
	switch n {
	case NoticeProcessing:
		return "💳 Оплата получена, готовим ваши билеты…"
	case NoticeStillProcessing:
		return "⏳ Платёж ещё обрабатывается. Загляните в лот чуть позже: билеты появятся сами."
	case NoticeCanceled:
		return "❌ Покупка билетов отменена."
	default:
		return ""
	}
}

func (v *chatView) Notify(ctx context.Context, n Notice) {
	v.status(ctx, noticeText(n))
}

func (v *chatView) status(ctx context.Context, text string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.messageID != 0 {
		if err := v.handler.msg.Edit(ctx, v.chatID, v.messageID, text, nil); err == nil {
			return
		}
		// Старое сообщение не правится: статус уходит новым
	}
	id, err := v.handler.msg.Send(ctx, v.chatID, text, nil)
	if err == nil {
		v.messageID = id
	}
}

func (v *chatView) ClearReturnParams(ctx context.Context) {
	if v.sessionID == "" {
		return
	}
	if _, err := v.handler.store.MarkConsumed(ctx, v.sessionID, v.handler.ttl); err != nil {
		log.WithError(err).WithField("session_id", v.sessionID).Warn("Не удалось отметить возврат как обработанный")
	}
}

func (v *chatView) ShowReveal(ctx context.Context, entry *ledger.EntrySession) {
	v.status(ctx, "✅ Билеты зачислены!")
	v.handler.revealer.StartEntryReveal(ctx, v.chatID, entry)
}

func (v *chatView) OpenRoom(ctx context.Context, roomID string) {
	v.handler.rooms.OpenRoom(ctx, v.chatID, v.chatID, roomID)
}
