// Package sendertest — записывающий Messenger для тестов фич.
package sendertest

import (
	"context"
	"errors"
	"sync"

	"github.com/mymmrac/telego"
)

// Message — одно отправленное или отредактированное сообщение.
type Message struct {
	ChatID    int64
	MessageID int
	Text      string
	Keyboard  *telego.InlineKeyboardMarkup
}

// Recorder хранит всё, что фичи пытались показать.
type Recorder struct {
	mu      sync.Mutex
	nextID  int
	Sent    []Message
	Edits   []Message
	Answers []string
	// DropFrames заставляет EditFrame отвечать false
	DropFrames bool
	// FailEdits — сколько ближайших правок вернут ErrEditFailed
	FailEdits int
	// FailedEdits считает правки, завершившиеся ошибкой
	FailedEdits int
}

// ErrEditFailed — ошибка правки, которую отдаёт Recorder при FailEdits > 0.
var ErrEditFailed = errors.New("sendertest: правка не удалась")

// Send запоминает сообщение и выдаёт ему id.
func (r *Recorder) Send(_ context.Context, chatID int64, text string, kb *telego.InlineKeyboardMarkup) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.Sent = append(r.Sent, Message{ChatID: chatID, MessageID: r.nextID, Text: text, Keyboard: kb})
	return r.nextID, nil
}

// Edit запоминает редактирование.
func (r *Recorder) Edit(_ context.Context, chatID int64, messageID int, text string, kb *telego.InlineKeyboardMarkup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailEdits > 0 {
		r.FailEdits--
		r.FailedEdits++
		return ErrEditFailed
	}
	r.Edits = append(r.Edits, Message{ChatID: chatID, MessageID: messageID, Text: text, Keyboard: kb})
	return nil
}

// EditFrame запоминает кадр, если кадры не отбрасываются.
func (r *Recorder) EditFrame(ctx context.Context, chatID int64, messageID int, text string, kb *telego.InlineKeyboardMarkup) bool {
	if r.dropping() {
		return false
	}
	return r.Edit(ctx, chatID, messageID, text, kb) == nil
}

func (r *Recorder) dropping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.DropFrames
}

// Answer запоминает ответ на callback.
func (r *Recorder) Answer(_ context.Context, callbackID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Answers = append(r.Answers, text)
	return nil
}

// Texts возвращает тексты отправленных сообщений по порядку.
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Sent))
	for _, m := range r.Sent {
		out = append(out, m.Text)
	}
	return out
}

// LastText — текст последнего сообщения или правки.
func (r *Recorder) LastText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Edits) > 0 {
		return r.Edits[len(r.Edits)-1].Text
	}
	if len(r.Sent) > 0 {
		return r.Sent[len(r.Sent)-1].Text
	}
	return ""
}

// SentCount — сколько сообщений отправлено.
func (r *Recorder) SentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Sent)
}

// Failed — сколько правок завершилось ошибкой.
func (r *Recorder) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.FailedEdits
}

// EditCount — сколько правок сделано.
func (r *Recorder) EditCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Edits)
}
