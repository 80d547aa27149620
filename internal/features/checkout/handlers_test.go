package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"serotonyl.ru/lot-bot/internal/bot/sender/sendertest"
	"serotonyl.ru/lot-bot/internal/ledger"
)

type fakeRevealer struct {
	mu      sync.Mutex
	entries []*ledger.EntrySession
}

func (r *fakeRevealer) StartEntryReveal(_ context.Context, _ int64, e *ledger.EntrySession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

type fakeRooms struct {
	mu     sync.Mutex
	opened []string
}

func (r *fakeRooms) OpenRoom(_ context.Context, _, _ int64, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, roomID)
}

func TestHandler_SuccessMarksConsumed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore(clock)
	rec := &sendertest.Recorder{}
	revealer := &fakeRevealer{}
	c := NewController(&scriptedFetcher{}, Options{Clock: clock})
	h := NewHandler(c, store, rec, revealer, &fakeRooms{}, time.Hour)
	ctx := context.Background()

	assert.Equal(t, Polling, h.HandleReturn(ctx, 42, successReturn()))
	c.Wait()

	assert.Len(t, revealer.entries, 1)
	consumed, _ := store.IsConsumed(ctx, "cs_test_1")
	assert.True(t, consumed)
	assert.Equal(t, "✅ Билеты зачислены!", rec.LastText())
	// Одно сообщение статуса, дальше только правки
	assert.Equal(t, 1, rec.SentCount())

	// Повторное открытие ссылки ничего не запускает
	assert.Equal(t, Duplicate, h.HandleReturn(ctx, 42, successReturn()))
	assert.Len(t, revealer.entries, 1)
}

func TestHandler_CanceledOpensRoom(t *testing.T) {
	rec := &sendertest.Recorder{}
	rooms := &fakeRooms{}
	c := NewController(&scriptedFetcher{}, Options{Clock: clockwork.NewFakeClock()})
	h := NewHandler(c, NewMemoryStore(nil), rec, &fakeRevealer{}, rooms, time.Hour)

	assert.Equal(t, Canceled, h.HandleReturn(context.Background(), 42, Return{Kind: KindCanceled, RoomID: "r1"}))
	assert.Equal(t, []string{"r1"}, rooms.opened)
	assert.Contains(t, rec.LastText(), "отменена")
}

func TestHandler_TimeoutSendsRoom(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &sendertest.Recorder{}
	rooms := &fakeRooms{}
	c := NewController(&scriptedFetcher{never: true}, Options{Clock: clock, MaxAttempts: 2})
	h := NewHandler(c, NewMemoryStore(clock), rec, &fakeRevealer{}, rooms, time.Hour)

	assert.Equal(t, Polling, h.HandleReturn(context.Background(), 42, successReturn()))
	advanceGaps(t, clock, 1)
	c.Wait()

	assert.Equal(t, []string{"r1"}, rooms.opened)
	assert.Contains(t, rec.LastText(), "ещё обрабатывается")
	assert.Equal(t, 0, h.Active())
}

func TestHandler_StatusResentWhenEditFails(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &sendertest.Recorder{FailEdits: 1}
	c := NewController(&scriptedFetcher{never: true}, Options{Clock: clock, MaxAttempts: 2})
	h := NewHandler(c, NewMemoryStore(clock), rec, &fakeRevealer{}, &fakeRooms{}, time.Hour)

	assert.Equal(t, Polling, h.HandleReturn(context.Background(), 42, successReturn()))
	advanceGaps(t, clock, 1)
	c.Wait()

	assert.Equal(t, 1, rec.Failed())
	assert.Equal(t, 2, rec.SentCount())
	assert.Contains(t, rec.Texts()[1], "ещё обрабатывается")
}
