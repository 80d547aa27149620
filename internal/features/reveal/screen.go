package reveal

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/bot/sender"
)

// Неудавшуюся смену фазы повторяем через importantRetryDelay,
// не больше maxImportantRetries раз подряд.
const (
	importantRetryDelay = 2 * time.Second
	maxImportantRetries = 5
)

// frame — то, что нужно показать в сообщении.
type frame struct {
	text string
	kb   *telego.InlineKeyboardMarkup
	seq  uint64
	// important — смена фазы: ждём лимит, а не пропускаем кадр
	important bool
}

// screen рисует состояния автомата в одном сообщении.
// Автомат не ждёт Telegram: кадры копятся в одном слоте,
// отрисовщик берёт самый свежий.
type screen struct {
	ctx       context.Context
	msg       sender.Messenger
	clock     clockwork.Clock
	chatID    int64
	messageID int

	mu      sync.Mutex
	pending *frame
	lastSeq uint64
	shown   string
	retries int

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newScreen(ctx context.Context, msg sender.Messenger, clock clockwork.Clock, chatID int64, messageID int, shown string) *screen {
	s := &screen{
		ctx:       ctx,
		msg:       msg,
		clock:     clock,
		chatID:    chatID,
		messageID: messageID,
		shown:     shown,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.loop()
	return s
}

// show ставит кадр в очередь. Кадр старее уже принятого отбрасывается.
func (s *screen) show(f frame) {
	s.mu.Lock()
	if f.seq <= s.lastSeq {
		s.mu.Unlock()
		return
	}
	s.lastSeq = f.seq
	if s.pending != nil && s.pending.important {
		f.important = true
	}
	s.pending = &f
	s.mu.Unlock()

	s.poke()
}

func (s *screen) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// close дорисовывает последний кадр и останавливает отрисовщик.
func (s *screen) close() {
	s.closeOnce.Do(func() { close(s.quit) })
}

func (s *screen) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.flush()
		case <-s.quit:
			s.flush()
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *screen) flush() {
	s.mu.Lock()
	f := s.pending
	s.pending = nil
	s.mu.Unlock()
	if f == nil {
		return
	}

	key := f.text + keyboardKey(f.kb)
	if key == s.shown {
		return
	}
	if f.important {
		if err := s.msg.Edit(s.ctx, s.chatID, s.messageID, f.text, f.kb); err != nil {
			s.retryImportant(f)
			return
		}
	} else if !s.msg.EditFrame(s.ctx, s.chatID, s.messageID, f.text, f.kb) {
		return
	}
	s.mu.Lock()
	s.retries = 0
	s.mu.Unlock()
	s.shown = key
}

// retryImportant возвращает несохранённую смену фазы в слот. Если за это
// время пришёл более свежий кадр, он наследует важность и рисуется сам.
func (s *screen) retryImportant(f *frame) {
	s.mu.Lock()
	if s.pending != nil {
		s.pending.important = true
		s.mu.Unlock()
		return
	}
	s.retries++
	if s.retries > maxImportantRetries {
		s.retries = 0
		s.mu.Unlock()
		log.WithFields(log.Fields{
			"component":  "reveal",
			"chat_id":    s.chatID,
			"message_id": s.messageID,
		}).Warn("Смена фазы так и не отрисована")
		return
	}
	s.pending = f
	s.mu.Unlock()

	s.clock.AfterFunc(importantRetryDelay, s.poke)
}

func keyboardKey(kb *telego.InlineKeyboardMarkup) string {
	if kb == nil {
		return ""
	}
	var b strings.Builder
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			b.WriteString("|")
			b.WriteString(btn.CallbackData)
		}
	}
	return b.String()
}
