package rooms

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/lot-bot/internal/bot/sender/sendertest"
	"serotonyl.ru/lot-bot/internal/features/leaderboard"
	"serotonyl.ru/lot-bot/internal/ledger"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
	chatID  = int64(42)
	userID  = int64(42)
)

type harness struct {
	h        *Handler
	ledger   *fakeLedger
	hub      *leaderboard.Hub
	rec      *sendertest.Recorder
	clock    *clockwork.FakeClock
	outcomes *fakeOutcomes
	verifier *fakeVerifier
	last     *memLastRooms
	rc       *leaderboard.Reconciler
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	l := newFakeLedger()
	hub := leaderboard.NewHub(nil)
	rc := leaderboard.NewReconciler(l, hub, leaderboard.Options{Fallback: time.Hour, Clock: clock})
	opts.Clock = clock
	if opts.ViewTTL == 0 {
		opts.ViewTTL = time.Minute
	}

	hs := &harness{
		ledger:   l,
		hub:      hub,
		rec:      &sendertest.Recorder{},
		clock:    clock,
		outcomes: &fakeOutcomes{},
		verifier: &fakeVerifier{},
		last:     &memLastRooms{},
		rc:       rc,
	}
	hs.h = NewHandler(NewService(l), rc, hs.rec, hs.outcomes, hs.verifier, hs.last, opts)
	t.Cleanup(func() {
		hs.h.Shutdown()
		rc.StopAll()
	})
	return hs
}

func TestOpenRoom_RendersAndFollowsEvents(t *testing.T) {
	hs := newHarness(t, Options{})
	hs.ledger.setBoard(openBoard(roomA, ledger.LeaderboardEntry{Rank: 1, UserID: 1, Username: "alpha", Entries: 10}))

	hs.h.OpenRoom(context.Background(), chatID, userID, roomA)

	require.Equal(t, "⏳ Загружаем лот…", hs.rec.Texts()[0])
	require.Eventually(t, func() bool {
		return strings.Contains(hs.rec.LastText(), "@alpha")
	}, waitFor, tick)

	hs.ledger.setBoard(openBoard(roomA,
		ledger.LeaderboardEntry{Rank: 1, UserID: 2, Username: "beta", Entries: 50},
		ledger.LeaderboardEntry{Rank: 2, UserID: 1, Username: "alpha", Entries: 10},
	))
	hs.hub.Publish(leaderboard.Event{Table: leaderboard.TableEntries, Op: "INSERT", RoomID: roomA})

	require.Eventually(t, func() bool {
		return strings.Contains(hs.rec.LastText(), "1. @beta")
	}, waitFor, tick)

	last, err := hs.last.LastRoom(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, roomA, last)
	assert.Equal(t, 1, hs.h.Active())
}

func TestOpenRoom_SkipsUnchangedSnapshot(t *testing.T) {
	hs := newHarness(t, Options{})
	hs.ledger.setBoard(openBoard(roomA, ledger.LeaderboardEntry{Rank: 1, UserID: 1, Entries: 10}))

	hs.h.OpenRoom(context.Background(), chatID, userID, roomA)
	require.Eventually(t, func() bool { return hs.rec.EditCount() == 1 }, waitFor, tick)

	hs.hub.Publish(leaderboard.Event{Table: leaderboard.TableEntries, Op: "UPDATE", RoomID: roomA})
	require.Eventually(t, func() bool { return hs.ledger.fetchCount() == 2 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, hs.rec.EditCount())
}

func TestOpenRoom_Supersedes(t *testing.T) {
	hs := newHarness(t, Options{})
	hs.ledger.setBoard(openBoard(roomA))
	hs.ledger.setBoard(openBoard(roomB))

	hs.h.OpenRoom(context.Background(), chatID, userID, roomA)
	hs.h.OpenRoom(context.Background(), chatID, userID, roomB)

	assert.Equal(t, 1, hs.h.Active())
	assert.Equal(t, 1, hs.rc.Active())
	assert.Equal(t, 0, hs.hub.Subscribers(roomA))
	assert.Equal(t, 1, hs.hub.Subscribers(roomB))
}

func TestOpenRoom_IdleExpires(t *testing.T) {
	hs := newHarness(t, Options{ViewTTL: time.Minute})
	hs.ledger.setBoard(openBoard(roomA, ledger.LeaderboardEntry{Rank: 1, UserID: 1, Entries: 10}))

	hs.h.OpenRoom(context.Background(), chatID, userID, roomA)
	require.Eventually(t, func() bool { return hs.rec.EditCount() == 1 }, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	// резервный тикер реконсилера и таймер простоя
	require.NoError(t, hs.clock.BlockUntilContext(ctx, 2))
	hs.clock.Advance(time.Minute)

	require.Eventually(t, func() bool { return hs.h.Active() == 0 }, waitFor, tick)
	require.Eventually(t, func() bool {
		return strings.Contains(hs.rec.LastText(), "⏸ Обновление остановлено")
	}, waitFor, tick)
	assert.Equal(t, 0, hs.rc.Active())
}

func TestHandleCallback_RefreshAndClose(t *testing.T) {
	hs := newHarness(t, Options{})
	hs.ledger.setBoard(openBoard(roomA))
	ctx := context.Background()

	hs.h.OpenRoom(ctx, chatID, userID, roomA)
	require.Eventually(t, func() bool { return hs.ledger.fetchCount() == 1 }, waitFor, tick)

	hs.h.HandleCallback(ctx, "cb1", chatID, userID, callbackData(actionRefresh, roomA))
	require.Eventually(t, func() bool { return hs.ledger.fetchCount() == 2 }, waitFor, tick)

	hs.h.HandleCallback(ctx, "cb2", chatID, userID, callbackData(actionClose, roomA))
	assert.Equal(t, 0, hs.h.Active())
	assert.Equal(t, 0, hs.rc.Active())
	assert.Equal(t, "Карточка лота закрыта.", hs.rec.LastText())

	// карточка уже закрыта
	hs.h.HandleCallback(ctx, "cb3", chatID, userID, callbackData(actionRefresh, roomA))
	assert.Equal(t, []string{"🔄 Обновляем", "", "кнопка устарела"}, hs.rec.Answers)
}

func TestHandleCallback_FeatureFlags(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		hs := newHarness(t, Options{})
		hs.h.HandleCallback(ctx, "cb", chatID, userID, callbackData(actionVerify, roomA))
		hs.h.HandleCallback(ctx, "cb", chatID, userID, callbackData(actionDraw, roomA))

		assert.Equal(t, []string{"это действие сейчас недоступно", "это действие сейчас недоступно"}, hs.rec.Answers)
		assert.Empty(t, hs.verifier.rooms)
		assert.Empty(t, hs.outcomes.inputs)
	})

	t.Run("verify enabled", func(t *testing.T) {
		hs := newHarness(t, Options{VerifyEnabled: true})
		hs.h.HandleCallback(ctx, "cb", chatID, userID, callbackData(actionVerify, roomA))
		assert.Equal(t, []string{roomA}, hs.verifier.rooms)
	})

	t.Run("malformed", func(t *testing.T) {
		hs := newHarness(t, Options{})
		hs.h.HandleCallback(ctx, "cb", chatID, userID, "rv:tap:abc")
		hs.h.HandleCallback(ctx, "cb", chatID, userID, "rm:explode:"+roomA)
		assert.Equal(t, []string{"кнопка устарела", "это действие сейчас недоступно"}, hs.rec.Answers)
	})
}

func TestShowOutcome_WiresActions(t *testing.T) {
	hs := newHarness(t, Options{OutcomeEnabled: true})
	hs.ledger.setBoard(settledBoard(roomA, 7,
		ledger.LeaderboardEntry{Rank: 1, UserID: 7, Entries: 300},
		ledger.LeaderboardEntry{Rank: 2, UserID: userID, Entries: 100, AmountSpentCents: 2500},
	))
	hs.ledger.draws[roomA] = &ledger.Draw{RoomID: roomA, TotalTickets: 400, WinningTicket: 81}
	ctx := context.Background()

	hs.h.HandleCallback(ctx, "cb", chatID, userID, callbackData(actionDraw, roomA))

	require.Len(t, hs.outcomes.inputs, 1)
	in := hs.outcomes.inputs[0]
	assert.Equal(t, int64(81), in.WinningTicket)
	assert.Equal(t, int64(2500), in.SpentCents)

	cb := hs.outcomes.cbs[0]
	cb.OnRefund()
	cb.OnConvert()
	cb.OnClaim()

	assert.Equal(t, 1, hs.ledger.count("refund"))
	assert.Equal(t, 1, hs.ledger.count("convert"))
	assert.Equal(t, 1, hs.ledger.count("claim"))
	assert.Equal(t, []string{
		"💸 Возврат оформлен: $25.00",
		"🪙 Начислено кредитов: 3 000",
		"🏆 Приз оформлен! Мы свяжемся с вами по доставке.",
	}, hs.rec.Texts())
}

func TestShowOutcome_NotSettled(t *testing.T) {
	hs := newHarness(t, Options{OutcomeEnabled: true})
	hs.ledger.setBoard(openBoard(roomA))

	hs.h.ShowOutcome(context.Background(), chatID, userID, roomA)

	assert.Empty(t, hs.outcomes.inputs)
	assert.Equal(t, "❌ розыгрыш по лоту ещё не проведён", hs.rec.LastText())
}

func TestHandleRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("usage without history", func(t *testing.T) {
		hs := newHarness(t, Options{})
		hs.h.HandleRoom(ctx, chatID, userID, nil)
		assert.Equal(t, "Использование: /room <room_id>", hs.rec.LastText())
	})

	t.Run("bad id", func(t *testing.T) {
		hs := newHarness(t, Options{})
		hs.h.HandleRoom(ctx, chatID, userID, []string{"nope"})
		assert.Equal(t, "❌ некорректный идентификатор лота", hs.rec.LastText())
	})

	t.Run("reopens last room", func(t *testing.T) {
		hs := newHarness(t, Options{})
		hs.ledger.setBoard(openBoard(roomB))
		require.NoError(t, hs.last.SetLastRoom(ctx, userID, roomB))

		hs.h.HandleRoom(ctx, chatID, userID, nil)
		assert.Equal(t, 1, hs.hub.Subscribers(roomB))
	})
}

func TestHandleJoinAndLeave(t *testing.T) {
	hs := newHarness(t, Options{})
	hs.ledger.setBoard(openBoard(roomA))
	ctx := context.Background()

	hs.h.OpenRoom(ctx, chatID, userID, roomA)
	require.Eventually(t, func() bool { return hs.ledger.fetchCount() == 1 }, waitFor, tick)

	hs.h.HandleJoin(ctx, chatID, userID, []string{roomA, revealX})
	assert.Equal(t, "✅ Карта в лоте. Приоритет: 1.50", hs.rec.Texts()[1])
	require.Eventually(t, func() bool { return hs.ledger.fetchCount() == 2 }, waitFor, tick)

	hs.h.HandleLeave(ctx, chatID, userID, []string{roomA, revealX})
	assert.Equal(t, "↩️ Карта выведена из лота", hs.rec.Texts()[2])

	hs.h.HandleJoin(ctx, chatID, userID, []string{roomA})
	assert.Equal(t, "Использование: /join <room_id> <reveal_id>", hs.rec.Texts()[3])

	hs.h.HandleJoin(ctx, chatID, userID, []string{roomA, "bad"})
	assert.Equal(t, "❌ некорректный идентификатор карты", hs.rec.Texts()[4])
	assert.Equal(t, 1, hs.ledger.count("join"))
}
