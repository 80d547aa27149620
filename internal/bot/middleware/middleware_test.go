package middleware

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(2, time.Minute, clock)

	assert.True(t, rl.Allow(1))
	clock.Advance(30 * time.Second)
	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1))
	assert.True(t, rl.Allow(2), "лимит у каждого свой")

	clock.Advance(31 * time.Second)
	assert.True(t, rl.Allow(1), "первая отметка вышла из окна")
	assert.False(t, rl.Allow(1))
}

func TestRateLimiter_Purge(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(5, time.Minute, clock)

	rl.Allow(1)
	rl.Allow(2)
	clock.Advance(45 * time.Second)
	rl.Allow(2)
	assert.Equal(t, 2, rl.Tracked())

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, rl.Purge())
	assert.Equal(t, 1, rl.Tracked())
}

func TestRecoverFromPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		defer RecoverFromPanic(1)
		panic("boom")
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "привет", truncate("привет", 10))
	assert.Equal(t, "при...", truncate("привет", 3))
}
