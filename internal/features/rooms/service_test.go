package rooms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/lot-bot/internal/common"
	"serotonyl.ru/lot-bot/internal/ledger"
)

func TestLoadOutcome_NotSettled(t *testing.T) {
	l := newFakeLedger()
	l.setBoard(openBoard(roomA, ledger.LeaderboardEntry{Rank: 1, UserID: 1, Entries: 10}))

	_, err := NewService(l).LoadOutcome(context.Background(), roomA, 1)
	assert.ErrorIs(t, err, common.ErrRoomNotSettled)
}

func TestLoadOutcome_DrawMissing(t *testing.T) {
	l := newFakeLedger()
	l.setBoard(settledBoard(roomA, 1, ledger.LeaderboardEntry{Rank: 1, UserID: 1, Entries: 10}))

	_, err := NewService(l).LoadOutcome(context.Background(), roomA, 1)
	assert.ErrorIs(t, err, common.ErrDrawNotFound)
}

func TestLoadOutcome_CollectsDrawAndEntry(t *testing.T) {
	l := newFakeLedger()
	l.setBoard(settledBoard(roomA, 7,
		ledger.LeaderboardEntry{Rank: 1, UserID: 7, Username: "lucky", Entries: 300, AmountSpentCents: 30000},
		ledger.LeaderboardEntry{Rank: 2, UserID: 8, Entries: 200, AmountSpentCents: 20000},
	))
	winner := int64(7)
	l.draws[roomA] = &ledger.Draw{RoomID: roomA, TotalTickets: 500, WinningTicket: 81, WinnerUserID: &winner}

	in, err := NewService(l).LoadOutcome(context.Background(), roomA, 8)
	require.NoError(t, err)

	assert.Equal(t, int64(500), in.TotalTickets)
	assert.Equal(t, int64(81), in.WinningTicket)
	assert.Equal(t, int64(7), in.WinnerUserID)
	assert.Equal(t, "@lucky", in.WinnerName)
	assert.Equal(t, int64(20000), in.SpentCents)
	assert.False(t, in.IsWinner())
	assert.Equal(t, 0, l.count("mystery"))
}

func TestLoadOutcome_WinnerFallsBackToRoom(t *testing.T) {
	l := newFakeLedger()
	l.setBoard(settledBoard(roomA, 7, ledger.LeaderboardEntry{Rank: 1, UserID: 7, DisplayName: "Аня", Entries: 10}))
	l.draws[roomA] = &ledger.Draw{RoomID: roomA, TotalTickets: 10, WinningTicket: 3}

	in, err := NewService(l).LoadOutcome(context.Background(), roomA, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), in.WinnerUserID)
	assert.Equal(t, "Аня", in.WinnerName)
	assert.True(t, in.IsWinner())
}

func TestLoadOutcome_Mystery(t *testing.T) {
	newLedger := func() *fakeLedger {
		l := newFakeLedger()
		b := settledBoard(roomA, 7, ledger.LeaderboardEntry{Rank: 1, UserID: 7, Entries: 10})
		b.Room.IsMystery = true
		b.Product = nil
		l.setBoard(b)
		l.draws[roomA] = &ledger.Draw{RoomID: roomA, TotalTickets: 10, WinningTicket: 3}
		return l
	}

	t.Run("revealed by backend", func(t *testing.T) {
		l := newLedger()
		l.mystery = &ledger.Product{Brand: "Rolex", Name: "Submariner"}

		in, err := NewService(l).LoadOutcome(context.Background(), roomA, 7)
		require.NoError(t, err)
		require.NotNil(t, in.Product)
		assert.Equal(t, "Submariner", in.Product.Name)
		assert.Equal(t, 1, l.count("mystery"))
	})

	t.Run("rejection keeps flow going", func(t *testing.T) {
		l := newLedger()

		in, err := NewService(l).LoadOutcome(context.Background(), roomA, 7)
		require.NoError(t, err)
		assert.Nil(t, in.Product)
	})
}
