package reveal

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/lot-bot/internal/bot/sender/sendertest"
	"serotonyl.ru/lot-bot/internal/common"
	"serotonyl.ru/lot-bot/internal/ledger"
)

const chatID = int64(42)

func testEntry() *ledger.EntrySession {
	return &ledger.EntrySession{
		Success:          true,
		Room:             &ledger.Room{ID: "room-1", Tier: ledger.TierGrail},
		Product:          &ledger.Product{Name: "Speedmaster", Brand: "Omega"},
		TicketsPurchased: 25,
		UserTotalTickets: 40,
		TotalRoomTickets: 400,
		AmountCents:      2500,
	}
}

func flowIDOf(t *testing.T, msg sendertest.Message) string {
	t.Helper()
	require.NotNil(t, msg.Keyboard)
	data := msg.Keyboard.InlineKeyboard[0][0].CallbackData
	parts := strings.Split(data, ":")
	require.Len(t, parts, 3)
	return parts[2]
}

func activeFlowID(h *Handler, chatID int64) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.byChat[chatID]
}

func lastTextContains(rec *sendertest.Recorder, sub string) func() bool {
	return func() bool { return strings.Contains(rec.LastText(), sub) }
}

func TestHandler_EntryRevealByButtons(t *testing.T) {
	rec := &sendertest.Recorder{}
	clock := clockwork.NewFakeClock()
	h := NewHandler(rec, clock, nil)
	ctx := context.Background()

	h.StartEntryReveal(ctx, chatID, testEntry())
	require.Equal(t, 1, rec.SentCount())
	id := flowIDOf(t, rec.Sent[0])
	assert.Equal(t, "rv:tap:"+id, rec.Sent[0].Keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, 1, h.Active())

	h.HandleCallback(ctx, "cb-1", chatID, "rv:tap:"+id)
	advanceUntil(t, clock, 100*time.Millisecond, lastTextContains(rec, "Продолжить"))
	assert.Contains(t, rec.LastText(), "+25 билетов")

	h.HandleCallback(ctx, "cb-2", chatID, "rv:next:"+id)
	require.Eventually(t, lastTextContains(rec, "Вы в игре"), time.Second, time.Millisecond)

	h.HandleCallback(ctx, "cb-3", chatID, "rv:done:"+id)
	assert.Equal(t, 0, h.Active())
	assert.Equal(t, []string{"", "", ""}, rec.Answers)

	h.HandleCallback(ctx, "cb-4", chatID, "rv:done:"+id)
	assert.Equal(t, common.ErrFlowNotFound.Error(), rec.Answers[3])
}

func TestHandler_RejectsForeignAndMalformedCallbacks(t *testing.T) {
	rec := &sendertest.Recorder{}
	h := NewHandler(rec, clockwork.NewFakeClock(), nil)
	ctx := context.Background()

	h.StartEntryReveal(ctx, chatID, testEntry())
	id := flowIDOf(t, rec.Sent[0])

	h.HandleCallback(ctx, "cb-1", chatID+1, "rv:tap:"+id)
	h.HandleCallback(ctx, "cb-2", chatID, "rv:tap")
	h.HandleCallback(ctx, "cb-3", chatID, "rv:claim:"+id)

	assert.Equal(t, []string{
		common.ErrFlowNotFound.Error(),
		common.ErrFlowNotFound.Error(),
		common.ErrActionUnavailable.Error(),
	}, rec.Answers)
	assert.Equal(t, 1, h.Active())
}

func TestHandler_NewFlowSupersedesOld(t *testing.T) {
	rec := &sendertest.Recorder{}
	h := NewHandler(rec, clockwork.NewFakeClock(), nil)
	ctx := context.Background()

	h.StartEntryReveal(ctx, chatID, testEntry())
	h.StartEntryReveal(ctx, chatID, testEntry())
	h.StartEntryReveal(ctx, chatID+1, testEntry())
	assert.Equal(t, 2, h.Active())

	oldID := flowIDOf(t, rec.Sent[0])
	h.HandleCallback(ctx, "cb-1", chatID, "rv:tap:"+oldID)
	assert.Equal(t, common.ErrFlowNotFound.Error(), rec.Answers[0])
}

func TestHandler_OutcomeCallbackFiresOnce(t *testing.T) {
	rec := &sendertest.Recorder{}
	clock := clockwork.NewFakeClock()
	h := NewHandler(rec, clock, nil)
	ctx := context.Background()

	var claims, closes atomic.Int32
	err := h.StartOutcome(ctx, chatID, outcomeInput(100, 5000), OutcomeCallbacks{
		OnClaim: func() { claims.Add(1) },
		OnClose: func() { closes.Add(1) },
	})
	require.NoError(t, err)
	require.Equal(t, 1, rec.SentCount())
	assert.Contains(t, rec.Sent[0].Text, "Розыгрыш начнётся через 3")

	advanceUntil(t, clock, 50*time.Millisecond, lastTextContains(rec, "Забрать приз"))
	id := activeFlowID(h, chatID)

	h.HandleCallback(ctx, "cb-1", chatID, "rv:claim:"+id)
	h.HandleCallback(ctx, "cb-2", chatID, "rv:claim:"+id)
	h.HandleCallback(ctx, "cb-3", chatID, "rv:close:"+id)

	assert.Equal(t, int32(1), claims.Load())
	assert.Equal(t, int32(0), closes.Load())
	assert.Equal(t, 0, h.Active())
	require.Eventually(t, lastTextContains(rec, "Лот разыгран"), time.Second, time.Millisecond)
}

func TestHandler_OutcomeRejectsBadDraw(t *testing.T) {
	rec := &sendertest.Recorder{}
	h := NewHandler(rec, clockwork.NewFakeClock(), nil)

	in := outcomeInput(7, 0)
	in.WinningTicket = 0
	err := h.StartOutcome(context.Background(), chatID, in, OutcomeCallbacks{})
	assert.Error(t, err)
	assert.Equal(t, 0, rec.SentCount())
	assert.Equal(t, 0, h.Active())
}

func TestHandler_PurgeAndShutdown(t *testing.T) {
	rec := &sendertest.Recorder{}
	clock := clockwork.NewFakeClock()
	h := NewHandler(rec, clock, nil)
	ctx := context.Background()

	h.StartEntryReveal(ctx, chatID, testEntry())
	clock.Advance(time.Hour)
	h.StartEntryReveal(ctx, chatID+1, testEntry())

	assert.Equal(t, 1, h.Purge(30*time.Minute))
	assert.Equal(t, 1, h.Active())

	h.Shutdown()
	assert.Equal(t, 0, h.Active())
}
