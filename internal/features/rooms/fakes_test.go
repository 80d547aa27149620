package rooms

import (
	"context"
	"sync"

	"serotonyl.ru/lot-bot/internal/common"
	"serotonyl.ru/lot-bot/internal/features/reveal"
	"serotonyl.ru/lot-bot/internal/ledger"
)

const (
	roomA   = "5f0c2e7a-1111-4c3b-9a51-000000000001"
	roomB   = "5f0c2e7a-2222-4c3b-9a51-000000000002"
	revealX = "9d2b7c10-3333-4e4f-8a00-000000000003"
)

// fakeLedger — бэкенд в памяти. Таблицу можно менять между запросами.
type fakeLedger struct {
	mu      sync.Mutex
	boards  map[string]*ledger.Leaderboard
	draws   map[string]*ledger.Draw
	mystery *ledger.Product
	calls   map[string]int
	fetches int
	joinErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		boards: make(map[string]*ledger.Leaderboard),
		draws:  make(map[string]*ledger.Draw),
		calls:  make(map[string]int),
	}
}

func (f *fakeLedger) setBoard(b *ledger.Leaderboard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards[b.Room.ID] = b
}

func (f *fakeLedger) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeLedger) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeLedger) GetRoomLeaderboard(_ context.Context, roomID string, userID int64) (*ledger.Leaderboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	b, ok := f.boards[roomID]
	if !ok {
		return nil, common.ErrRequestRejected
	}
	cp := *b
	cp.Entries = append([]ledger.LeaderboardEntry(nil), b.Entries...)
	cp.MyEntry = nil
	for i := range cp.Entries {
		if cp.Entries[i].UserID == userID {
			me := cp.Entries[i]
			cp.MyEntry = &me
		}
	}
	return &cp, nil
}

func (f *fakeLedger) JoinRoom(_ context.Context, roomID, revealID string, userID int64) (*ledger.EntrySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["join"]++
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	return &ledger.EntrySummary{Success: true, RevealID: revealID, PriorityScore: 1.5}, nil
}

func (f *fakeLedger) LeaveRoom(_ context.Context, roomID, revealID string, userID int64) (*ledger.EntrySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["leave"]++
	return &ledger.EntrySummary{Success: true, RevealID: revealID}, nil
}

func (f *fakeLedger) ClaimRedemption(_ context.Context, roomID string, userID int64) (*ledger.Redemption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["claim"]++
	return &ledger.Redemption{Success: true, Redeemed: true}, nil
}

func (f *fakeLedger) RequestRoomRefund(_ context.Context, roomID string, userID int64) (*ledger.RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["refund"]++
	return &ledger.RefundResult{Success: true, RefundCents: 2500}, nil
}

func (f *fakeLedger) ConvertToCredits(_ context.Context, roomID string, userID int64) (*ledger.CreditsResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["convert"]++
	return &ledger.CreditsResult{Success: true, CreditsAwarded: 3000}, nil
}

func (f *fakeLedger) RevealMysteryProduct(_ context.Context, roomID string) (*ledger.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["mystery"]++
	if f.mystery == nil {
		return nil, common.ErrRequestRejected
	}
	return f.mystery, nil
}

func (f *fakeLedger) GetRoomDraw(_ context.Context, roomID string) (*ledger.Draw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.draws[roomID]
	if !ok {
		return nil, common.ErrDrawNotFound
	}
	return d, nil
}

// fakeOutcomes запоминает запущенные показы исхода.
type fakeOutcomes struct {
	mu     sync.Mutex
	inputs []reveal.OutcomeInput
	cbs    []reveal.OutcomeCallbacks
	err    error
}

func (f *fakeOutcomes) StartOutcome(_ context.Context, _ int64, in reveal.OutcomeInput, cb reveal.OutcomeCallbacks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.inputs = append(f.inputs, in)
	f.cbs = append(f.cbs, cb)
	return nil
}

type fakeVerifier struct {
	mu    sync.Mutex
	rooms []string
}

func (f *fakeVerifier) HandleRoomVerify(_ context.Context, _ int64, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, roomID)
}

type memLastRooms struct {
	mu   sync.Mutex
	last map[int64]string
}

func (m *memLastRooms) SetLastRoom(_ context.Context, userID int64, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		m.last = make(map[int64]string)
	}
	m.last[userID] = roomID
	return nil
}

func (m *memLastRooms) LastRoom(_ context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[userID], nil
}

func openBoard(roomID string, entries ...ledger.LeaderboardEntry) *ledger.Leaderboard {
	var total int64
	for _, e := range entries {
		total += e.Entries
	}
	return &ledger.Leaderboard{
		Room: ledger.Room{
			ID:                 roomID,
			Tier:               ledger.TierRare,
			Status:             ledger.StatusOpen,
			EscrowBalanceCents: 40000,
			EscrowTargetCents:  100000,
			MinParticipants:    5,
			ParticipantCount:   len(entries),
		},
		Product:      &ledger.Product{Brand: "Nike", Name: "Air Jordan 1"},
		Entries:      entries,
		TotalEntries: total,
	}
}

func settledBoard(roomID string, winner int64, entries ...ledger.LeaderboardEntry) *ledger.Leaderboard {
	b := openBoard(roomID, entries...)
	b.Room.Status = ledger.StatusSettled
	b.Room.WinnerUserID = &winner
	return b
}
