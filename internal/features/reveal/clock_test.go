package reveal

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// advanceUntil двигает фейковые часы шагами, пока cond не станет истинным.
// Таймеры clockwork срабатывают в своих горутинах, поэтому перед каждым
// шагом ждём, пока автомат поставит следующий таймер.
func advanceUntil(t *testing.T, clock *clockwork.FakeClock, step time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		require.True(t, time.Now().Before(deadline), "условие не выполнилось")
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		err := clock.BlockUntilContext(ctx, 1)
		cancel()
		if err == nil {
			clock.Advance(step)
		}
	}
}

// blockUntilTimer ждёт, пока автомат поставит таймер.
func blockUntilTimer(clock *clockwork.FakeClock) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return clock.BlockUntilContext(ctx, 1)
}

// advanceIdle двигает часы далеко вперёд, давая таймерам шанс сработать.
func advanceIdle(clock *clockwork.FakeClock) {
	for i := 0; i < 20; i++ {
		clock.Advance(time.Minute)
		time.Sleep(time.Millisecond)
	}
}
