package reveal

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MysteryPhase — фаза раскрытия мистери-приза.
type MysteryPhase int

const (
	MysteryHidden MysteryPhase = iota
	MysteryRevealing
	MysteryRevealed
	MysteryComplete
)

func (p MysteryPhase) String() string {
	switch p {
	case MysteryHidden:
		return "hidden"
	case MysteryRevealing:
		return "revealing"
	case MysteryRevealed:
		return "revealed"
	case MysteryComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Моменты фаз от старта.
const (
	mysteryRevealingAt = 2 * time.Second
	mysteryRevealedAt  = 4 * time.Second
	mysteryCompleteAt  = 7 * time.Second
)

// MysteryReveal идёт целиком по таймерам, пользователь его не двигает.
type MysteryReveal struct {
	clock      clockwork.Clock
	observe    func(MysteryPhase)
	onComplete func()

	mu       sync.Mutex
	phase    MysteryPhase
	started  bool
	disposed bool
	timeline *sequence
}

// NewMysteryReveal создаёт раскрытие в фазе MysteryHidden.
func NewMysteryReveal(clock clockwork.Clock, observe func(MysteryPhase), onComplete func()) *MysteryReveal {
	return &MysteryReveal{clock: clock, observe: observe, onComplete: onComplete}
}

// Start запускает таймеры. Повторный вызов ничего не делает.
func (m *MysteryReveal) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.disposed {
		return
	}
	m.started = true
	m.timeline = play(m.clock, []step{
		{delay: mysteryRevealingAt, apply: func() bool { return m.set(MysteryRevealing) }},
		{delay: mysteryRevealedAt - mysteryRevealingAt, apply: func() bool { return m.set(MysteryRevealed) }},
		{delay: mysteryCompleteAt - mysteryRevealedAt, apply: func() bool { return m.set(MysteryComplete) }},
	})
}

// Phase возвращает текущую фазу.
func (m *MysteryReveal) Phase() MysteryPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Dispose отменяет таймеры.
func (m *MysteryReveal) Dispose() {
	m.mu.Lock()
	m.disposed = true
	timeline := m.timeline
	m.mu.Unlock()

	timeline.cancel()
}

func (m *MysteryReveal) set(phase MysteryPhase) bool {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return false
	}
	m.phase = phase
	m.mu.Unlock()

	if m.observe != nil {
		m.observe(phase)
	}
	if phase == MysteryComplete && m.onComplete != nil {
		m.onComplete()
	}
	return true
}
