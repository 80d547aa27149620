// Package leaderboard держит таблицы лидеров открытых лотов свежими.
//
// Источник событий — NOTIFY из Postgres (канал room_changes). Событие
// ничего не меняет в снимке само: оно только говорит «перечитай всё».
// Дополнительно каждая подписка перечитывает таблицу по резервному таймеру.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/metrics"
)

// Таблицы, изменения которых касаются таблицы лидеров.
const (
	TableEntries = "room_entries"
	TableRooms   = "rooms"
)

// Event — полезная нагрузка NOTIFY: {"table":"room_entries","op":"INSERT","room_id":"..."}.
type Event struct {
	Table  string `json:"table"`
	Op     string `json:"op"`
	RoomID string `json:"room_id"`
}

// Relevant — любое изменение записей лота или UPDATE самого лота.
func (e Event) Relevant() bool {
	switch e.Table {
	case TableEntries:
		return true
	case TableRooms:
		return e.Op == "UPDATE"
	default:
		return false
	}
}

// ParseEvent разбирает полезную нагрузку уведомления.
func ParseEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("разбор события: %w", err)
	}
	if ev.RoomID == "" {
		return Event{}, fmt.Errorf("событие без room_id: %s", payload)
	}
	return ev, nil
}

// Source — поток сырых уведомлений (postgres.Listener).
type Source interface {
	Listen(ctx context.Context, handle func(payload string)) error
}

type subscriber struct {
	fn func(Event)
}

// Hub раздаёт события подписчикам по room_id.
// Обработчики вызываются синхронно и не должны блокироваться.
type Hub struct {
	metrics *metrics.Metrics

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

// NewHub создаёт пустой хаб.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{metrics: m, subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe подписывает fn на события лота. Возвращает функцию отписки.
func (h *Hub) Subscribe(roomID string, fn func(Event)) (unsubscribe func()) {
	s := &subscriber{fn: fn}

	h.mu.Lock()
	room, ok := h.subs[roomID]
	if !ok {
		room = make(map[*subscriber]struct{})
		h.subs[roomID] = room
	}
	room[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[roomID], s)
			if len(h.subs[roomID]) == 0 {
				delete(h.subs, roomID)
			}
		})
	}
}

// Publish отдаёт событие всем подписчикам лота.
func (h *Hub) Publish(ev Event) {
	if !ev.Relevant() {
		return
	}
	h.metrics.RealtimeEvent(ev.Table)

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs[ev.RoomID]))
	for s := range h.subs[ev.RoomID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.fn(ev)
	}
}

// Subscribers — число подписок на лот.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[roomID])
}

// Run читает уведомления из src до отмены ctx.
func (h *Hub) Run(ctx context.Context, src Source) error {
	log.WithField("component", "leaderboard").Info("Хаб событий запущен")
	return src.Listen(ctx, func(payload string) {
		ev, err := ParseEvent(payload)
		if err != nil {
			log.WithError(err).WithField("component", "leaderboard").Debug("Пропускаем уведомление")
			return
		}
		h.Publish(ev)
	})
}
