package checkout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/lot-bot/internal/ledger"
)

// scriptedFetcher отдаёт ошибки из script по порядку, потом — запись.
type scriptedFetcher struct {
	calls  atomic.Int32
	script []error
	never  bool
}

func (f *scriptedFetcher) GetRoomEntryBySession(_ context.Context, _ string) (*ledger.EntrySession, error) {
	n := int(f.calls.Add(1))
	if f.never {
		return nil, ledger.ErrNotReady
	}
	if n <= len(f.script) {
		return nil, f.script[n-1]
	}
	return &ledger.EntrySession{Success: true, Room: &ledger.Room{ID: "r1"}, TicketsPurchased: 5}, nil
}

func notReady(n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = ledger.ErrNotReady
	}
	return out
}

type fakeView struct {
	mu       sync.Mutex
	notices  []Notice
	clears   int
	reveals  []*ledger.EntrySession
	openings []string
}

func (v *fakeView) Notify(_ context.Context, n Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notices = append(v.notices, n)
}

func (v *fakeView) ClearReturnParams(_ context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clears++
}

func (v *fakeView) ShowReveal(_ context.Context, e *ledger.EntrySession) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reveals = append(v.reveals, e)
}

func (v *fakeView) OpenRoom(_ context.Context, roomID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.openings = append(v.openings, roomID)
}

func successReturn() Return {
	return Return{Kind: KindSuccess, SessionID: "cs_test_1", RoomID: "r1"}
}

// runAsync запускает Handle и прокручивает часы gaps раз.
func runAsync(t *testing.T, c *Controller, clock *clockwork.FakeClock, view View, gaps int) Outcome {
	t.Helper()
	done := make(chan Outcome, 1)
	go func() { done <- c.Handle(context.Background(), successReturn(), view) }()

	advanceGaps(t, clock, gaps)

	select {
	case o := <-done:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("Handle не завершился")
		return Ignored
	}
}

func advanceGaps(t *testing.T, clock *clockwork.FakeClock, gaps int) {
	t.Helper()
	for i := 0; i < gaps; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 1), "ожидание %d", i+1)
		cancel()
		clock.Advance(DefaultInterval)
	}
}

func TestHandle_ReadyOnLastAttempt(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &scriptedFetcher{script: notReady(14)}
	c := NewController(fetcher, Options{Clock: clock})
	view := &fakeView{}

	outcome := runAsync(t, c, clock, view, 14)

	assert.Equal(t, Revealed, outcome)
	assert.Equal(t, int32(15), fetcher.calls.Load())
	assert.Equal(t, 1, view.clears)
	require.Len(t, view.reveals, 1)
	assert.Equal(t, int64(5), view.reveals[0].TicketsPurchased)
	assert.Empty(t, view.openings)
	assert.Equal(t, []Notice{NoticeProcessing}, view.notices)
	assert.Equal(t, 0, c.Active())
}

func TestHandle_NeverReady(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &scriptedFetcher{never: true}
	c := NewController(fetcher, Options{Clock: clock})
	view := &fakeView{}

	outcome := runAsync(t, c, clock, view, 14)

	assert.Equal(t, StillProcessing, outcome)
	assert.Equal(t, int32(15), fetcher.calls.Load())
	assert.Equal(t, 1, view.clears)
	assert.Empty(t, view.reveals)
	assert.Equal(t, []string{"r1"}, view.openings)
	assert.Equal(t, []Notice{NoticeProcessing, NoticeStillProcessing}, view.notices)
}

func TestHandle_NoWaitAfterLastAttempt(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &scriptedFetcher{never: true}
	c := NewController(fetcher, Options{Clock: clock, MaxAttempts: 1})
	view := &fakeView{}

	// Одна попытка — часы вообще не нужны
	outcome := c.Handle(context.Background(), successReturn(), view)
	assert.Equal(t, StillProcessing, outcome)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestHandle_TransientErrorsAreRetried(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &scriptedFetcher{script: []error{
		errors.New("dial tcp: connection refused"),
		ledger.ErrMalformedResponse,
		ledger.ErrNotReady,
	}}
	c := NewController(fetcher, Options{Clock: clock})
	view := &fakeView{}

	outcome := runAsync(t, c, clock, view, 3)

	assert.Equal(t, Revealed, outcome)
	assert.Equal(t, int32(4), fetcher.calls.Load())
	assert.Equal(t, 1, view.clears)
}

func TestHandle_DuplicateWhileInFlight(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &scriptedFetcher{never: true}
	c := NewController(fetcher, Options{Clock: clock})
	first := &fakeView{}
	second := &fakeView{}

	done := make(chan Outcome, 1)
	go func() { done <- c.Handle(context.Background(), successReturn(), first) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, c.Active())

	// Повторный вход с тем же токеном
	assert.Equal(t, Duplicate, c.Handle(context.Background(), successReturn(), second))
	assert.Equal(t, Duplicate, c.Start(context.Background(), successReturn(), second))

	clock.Advance(DefaultInterval)
	advanceGaps(t, clock, 13)

	select {
	case o := <-done:
		assert.Equal(t, StillProcessing, o)
	case <-time.After(5 * time.Second):
		t.Fatal("первый цикл не завершился")
	}

	assert.Equal(t, int32(15), fetcher.calls.Load())
	assert.Equal(t, 1, first.clears)
	assert.Equal(t, 0, second.clears)
	assert.Empty(t, second.notices)
	assert.Equal(t, 0, c.Active())
}

func TestHandle_Canceled(t *testing.T) {
	fetcher := &scriptedFetcher{}
	c := NewController(fetcher, Options{Clock: clockwork.NewFakeClock()})
	view := &fakeView{}

	outcome := c.Handle(context.Background(), Return{Kind: KindCanceled, RoomID: "r9"}, view)

	assert.Equal(t, Canceled, outcome)
	assert.Equal(t, int32(0), fetcher.calls.Load())
	assert.Equal(t, []Notice{NoticeCanceled}, view.notices)
	assert.Equal(t, 1, view.clears)
	assert.Equal(t, []string{"r9"}, view.openings)
}

func TestHandle_Ignored(t *testing.T) {
	fetcher := &scriptedFetcher{}
	c := NewController(fetcher, Options{})
	view := &fakeView{}

	assert.Equal(t, Ignored, c.Handle(context.Background(), Return{}, view))
	assert.Equal(t, int32(0), fetcher.calls.Load())
	assert.Zero(t, view.clears)
}

func TestHandle_ContextCanceledMidPoll(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &scriptedFetcher{never: true}
	c := NewController(fetcher, Options{Clock: clock})
	view := &fakeView{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() { done <- c.Handle(ctx, successReturn(), view) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	select {
	case o := <-done:
		assert.Equal(t, Abandoned, o)
	case <-time.After(5 * time.Second):
		t.Fatal("Handle не завершился после отмены")
	}
	assert.Zero(t, view.clears)
	assert.Equal(t, 0, c.Active())
}

func TestStart_Background(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &scriptedFetcher{script: notReady(1)}
	c := NewController(fetcher, Options{Clock: clock})
	view := &fakeView{}

	assert.Equal(t, Polling, c.Start(context.Background(), successReturn(), view))
	advanceGaps(t, clock, 1)
	c.Wait()

	assert.Len(t, view.reveals, 1)
	assert.Equal(t, 1, view.clears)
	assert.Equal(t, 0, c.Active())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "still_processing", StillProcessing.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
