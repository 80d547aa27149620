package reveal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	gonanoid "github.com/matoous/go-nanoid/v2"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/bot/sender"
	"serotonyl.ru/lot-bot/internal/common"
	"serotonyl.ru/lot-bot/internal/ledger"
	"serotonyl.ru/lot-bot/internal/metrics"
)

// Виды сценариев.
const (
	KindEntry   = "entry"
	KindOutcome = "outcome"
)

// Длина id сценария в callback data (лимит Telegram — 64 байта).
const flowIDLength = 12

// session — один показ в одном чате.
type session struct {
	id      string
	kind    string
	chatID  int64
	started time.Time
	screen  *screen

	entry   *EntryFlow
	outcome *OutcomeFlow
}

func (s *session) dispose() {
	if s.entry != nil {
		s.entry.Dispose()
	}
	if s.outcome != nil {
		s.outcome.Dispose()
	}
	s.screen.close()
}

// Handler показывает анимации в Telegram и принимает нажатия кнопок.
// В каждом чате живёт не больше одного показа: новый вытесняет старый.
type Handler struct {
	msg     sender.Messenger
	clock   clockwork.Clock
	metrics *metrics.Metrics

	mu     sync.Mutex
	flows  map[string]*session
	byChat map[int64]string
}

// NewHandler создаёт обработчик показов.
func NewHandler(msg sender.Messenger, clock clockwork.Clock, m *metrics.Metrics) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{
		msg:     msg,
		clock:   clock,
		metrics: m,
		flows:   make(map[string]*session),
		byChat:  make(map[int64]string),
	}
}

// StartEntryReveal показывает вскрытие только что купленных билетов.
func (h *Handler) StartEntryReveal(ctx context.Context, chatID int64, entry *ledger.EntrySession) {
	id, err := gonanoid.New(flowIDLength)
	if err != nil {
		log.WithError(err).Error("Не удалось создать id показа")
		return
	}

	text, kb := renderEntry(entry, EntryState{Phase: EntryEmerge, Seq: 1}, id)
	messageID, err := h.msg.Send(ctx, chatID, text, kb)
	if err != nil {
		return
	}

	s := &session{
		id:      id,
		kind:    KindEntry,
		chatID:  chatID,
		started: h.clock.Now(),
		screen:  newScreen(ctx, h.msg, h.clock, chatID, messageID, text+keyboardKey(kb)),
	}
	var (
		obsMu sync.Mutex
		last  EntryState
	)
	s.entry = NewEntryFlow(h.clock,
		func(st EntryState) {
			obsMu.Lock()
			important := st.Phase != last.Phase || st.Stage != last.Stage
			last = st
			obsMu.Unlock()
			text, kb := renderEntry(entry, st, id)
			s.screen.show(frame{text: text, kb: kb, seq: st.Seq, important: important})
		},
		func() { h.finish(s, "dismiss") },
	)

	h.register(s)
	log.WithFields(log.Fields{
		"component": "reveal",
		"flow_id":   id,
		"chat_id":   chatID,
	}).Debug("Показ покупки начат")
}

// StartOutcome показывает исход разыгранного лота. Колбэки выполняют
// денежные действия; показ только решает, какой из них вызвать.
func (h *Handler) StartOutcome(ctx context.Context, chatID int64, in OutcomeInput, cb OutcomeCallbacks) error {
	id, err := gonanoid.New(flowIDLength)
	if err != nil {
		return err
	}

	s := &session{
		id:      id,
		kind:    KindOutcome,
		chatID:  chatID,
		started: h.clock.Now(),
	}

	wrapped := OutcomeCallbacks{
		OnClaim:   h.terminal(s, EdgeClaim, cb.OnClaim),
		OnRefund:  h.terminal(s, EdgeRefund, cb.OnRefund),
		OnConvert: h.terminal(s, EdgeConvert, cb.OnConvert),
		OnClose:   h.terminal(s, EdgeClose, cb.OnClose),
	}

	var (
		obsMu sync.Mutex
		last  = OutcomeState{Phase: -1}
	)
	flow, err := NewOutcomeFlow(h.clock, in, wrapped, func(st OutcomeState) {
		obsMu.Lock()
		important := st.Phase != last.Phase || st.Mystery != last.Mystery ||
			st.Draw.Phase != last.Draw.Phase || st.Draw.Countdown != last.Draw.Countdown
		last = st
		obsMu.Unlock()

		text, kb := renderOutcome(in, st, id)
		s.screen.show(frame{text: text, kb: kb, seq: st.Seq, important: important})
	})
	if err != nil {
		return err
	}
	s.outcome = flow

	text, kb := renderOutcome(in, flow.State(), id)
	messageID, err := h.msg.Send(ctx, chatID, text, kb)
	if err != nil {
		return err
	}
	s.screen = newScreen(ctx, h.msg, h.clock, chatID, messageID, text+keyboardKey(kb))

	h.register(s)
	flow.Start()

	log.WithFields(log.Fields{
		"component": "reveal",
		"flow_id":   id,
		"chat_id":   chatID,
		"room_id":   in.Room.ID,
		"winner":    in.IsWinner(),
	}).Info("Показ исхода лота начат")
	return nil
}

func (h *Handler) terminal(s *session, edge string, fn func()) func() {
	return func() {
		h.finish(s, edge)
		if fn != nil {
			fn()
		}
	}
}

// HandleCallback обрабатывает нажатие кнопки показа и отвечает на callback.
func (h *Handler) HandleCallback(ctx context.Context, callbackID string, chatID int64, data string) {
	err := h.dispatch(chatID, data)

	answer := ""
	if err != nil {
		answer = err.Error()
		if !errors.Is(err, common.ErrFlowNotFound) && !errors.Is(err, common.ErrActionUnavailable) {
			log.WithError(err).WithField("data", data).Warn("Ошибка обработки кнопки показа")
		}
	}
	if err := h.msg.Answer(ctx, callbackID, answer); err != nil {
		log.WithError(err).Debug("Не удалось ответить на callback")
	}
}

func (h *Handler) dispatch(chatID int64, data string) error {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != CallbackPrefix {
		return common.ErrFlowNotFound
	}
	action, id := parts[1], parts[2]

	h.mu.Lock()
	s, ok := h.flows[id]
	h.mu.Unlock()
	if !ok || s.chatID != chatID {
		return common.ErrFlowNotFound
	}

	switch {
	case s.entry != nil:
		switch action {
		case actionTap:
			return s.entry.Tap()
		case actionNext:
			return s.entry.Continue()
		case actionDone:
			return s.entry.Dismiss()
		}
	case s.outcome != nil:
		switch action {
		case actionClaim:
			return s.outcome.Claim()
		case actionClose:
			return s.outcome.Close()
		case actionRefund:
			return s.outcome.Refund()
		case actionCredits:
			return s.outcome.ConvertToCredits()
		}
	}
	return common.ErrActionUnavailable
}

// register ставит показ и вытесняет предыдущий в этом чате.
func (h *Handler) register(s *session) {
	h.mu.Lock()
	var prev *session
	if prevID, ok := h.byChat[s.chatID]; ok {
		prev = h.flows[prevID]
		delete(h.flows, prevID)
	}
	h.flows[s.id] = s
	h.byChat[s.chatID] = s.id
	h.mu.Unlock()

	if prev != nil {
		prev.dispose()
		h.metrics.FlowTerminal(prev.kind, "superseded")
	}
}

// finish убирает завершённый показ. Повторный вызов ничего не делает.
func (h *Handler) finish(s *session, edge string) {
	h.mu.Lock()
	if h.flows[s.id] != s {
		h.mu.Unlock()
		return
	}
	delete(h.flows, s.id)
	if h.byChat[s.chatID] == s.id {
		delete(h.byChat, s.chatID)
	}
	h.mu.Unlock()

	s.dispose()
	h.metrics.FlowTerminal(s.kind, edge)
	log.WithFields(log.Fields{
		"component": "reveal",
		"flow_id":   s.id,
		"kind":      s.kind,
		"edge":      edge,
	}).Debug("Показ завершён")
}

// Active — число живых показов (для /flows).
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.flows)
}

// Purge закрывает показы старше maxAge, брошенные на кнопке.
func (h *Handler) Purge(maxAge time.Duration) int {
	cutoff := h.clock.Now().Add(-maxAge)

	h.mu.Lock()
	var stale []*session
	for _, s := range h.flows {
		if s.started.Before(cutoff) {
			stale = append(stale, s)
		}
	}
	h.mu.Unlock()

	for _, s := range stale {
		h.finish(s, "expired")
	}
	return len(stale)
}

// Shutdown останавливает все показы.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	all := make([]*session, 0, len(h.flows))
	for _, s := range h.flows {
		all = append(all, s)
	}
	h.mu.Unlock()

	for _, s := range all {
		h.finish(s, "shutdown")
	}
}
