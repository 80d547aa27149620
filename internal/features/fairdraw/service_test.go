package fairdraw

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/lot-bot/internal/bot/sender/sendertest"
	"serotonyl.ru/lot-bot/internal/common"
	"serotonyl.ru/lot-bot/internal/ledger"
)

type fakeSource struct {
	verification *ledger.DrawVerification
	draw         *ledger.Draw
	err          error
}

func (f *fakeSource) VerifyLotteryDraw(_ context.Context, _ string) (*ledger.DrawVerification, error) {
	return f.verification, f.err
}

func (f *fakeSource) GetRoomDraw(_ context.Context, _ string) (*ledger.Draw, error) {
	return f.draw, f.err
}

func TestService_VerifyDraw(t *testing.T) {
	src := &fakeSource{verification: &ledger.DrawVerification{
		Success: true, DrawID: "d1", RoomID: "r1", IsValid: true,
		TotalTickets: 500, WinningTicket: 81,
		ServerSeed: "abc123", ClientSeed: "xyz789",
		DrawnAt: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}}
	svc := NewService(src, nil)

	r, err := svc.VerifyDraw(context.Background(), "d1")
	require.NoError(t, err)
	assert.True(t, r.Valid)
	assert.Equal(t, int64(81), r.Recomputed)
	require.NotNil(t, r.ServerValid)
	assert.True(t, *r.ServerValid)
}

func TestService_ServerClaimsValidButMismatch(t *testing.T) {
	// Сервер утверждает is_valid=true, но заявленный билет не совпадает
	src := &fakeSource{verification: &ledger.DrawVerification{
		Success: true, DrawID: "d1", IsValid: true,
		TotalTickets: 500, WinningTicket: 82,
		ServerSeed: "abc123", ClientSeed: "xyz789",
	}}
	r, err := NewService(src, nil).VerifyDraw(context.Background(), "d1")
	require.NoError(t, err)
	assert.False(t, r.Valid)
	assert.Equal(t, int64(81), r.Recomputed)

	text := FormatReport(r)
	assert.Contains(t, text, "ПРОВЕРКА НЕ ПРОЙДЕНА")
	assert.Contains(t, text, "№81")
	assert.Contains(t, text, "вердикт сервера отличается")
}

func TestService_VerifyRoom(t *testing.T) {
	src := &fakeSource{draw: &ledger.Draw{
		ID: "d1", RoomID: "r1", TotalTickets: 100000, WinningTicket: 78727,
		ServerSeed: "seedA", ClientSeed: "seedB",
	}}
	r, err := NewService(src, nil).VerifyRoom(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, r.Valid)
	assert.Nil(t, r.ServerValid)
}

func TestService_Errors(t *testing.T) {
	src := &fakeSource{err: common.ErrDrawNotFound}
	_, err := NewService(src, nil).VerifyRoom(context.Background(), "r1")
	assert.ErrorIs(t, err, common.ErrDrawNotFound)

	src = &fakeSource{draw: &ledger.Draw{ID: "d1", TotalTickets: 10, WinningTicket: 1}}
	_, err = NewService(src, nil).VerifyRoom(context.Background(), "r1")
	assert.ErrorIs(t, err, common.ErrEmptySeed)
}

func TestHandler_HandleVerify(t *testing.T) {
	rec := &sendertest.Recorder{}
	src := &fakeSource{verification: &ledger.DrawVerification{
		Success: true, DrawID: "5f0c2e7a-9b1d-4c3e-8a2b-1d2e3f4a5b6c", IsValid: true,
		TotalTickets: 500, WinningTicket: 81, ServerSeed: "abc123", ClientSeed: "xyz789",
	}}
	h := NewHandler(NewService(src, nil), rec)
	ctx := context.Background()

	h.HandleVerify(ctx, 7, nil)
	h.HandleVerify(ctx, 7, []string{"not-a-uuid"})
	h.HandleVerify(ctx, 7, []string{"5f0c2e7a-9b1d-4c3e-8a2b-1d2e3f4a5b6c"})

	texts := rec.Texts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[0], "Использование")
	assert.Contains(t, texts[1], common.ErrInvalidDrawID.Error())
	assert.Contains(t, texts[2], "✅ Розыгрыш честный")
	assert.Contains(t, texts[2], "5f0c2e7a")
}

func TestHandler_RoomVerifyFailure(t *testing.T) {
	rec := &sendertest.Recorder{}
	h := NewHandler(NewService(&fakeSource{err: errors.New("timeout")}, nil), rec)

	h.HandleRoomVerify(context.Background(), 7, "r1")
	assert.Contains(t, rec.LastText(), "Не удалось проверить")
}
