package reveal

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"serotonyl.ru/lot-bot/internal/common"
)

// DrawPhase — фаза анимации розыгрыша.
type DrawPhase int

const (
	DrawCountdown DrawPhase = iota
	DrawSpinning
	DrawSlowing
	DrawWinner
	DrawFinished
)

func (p DrawPhase) String() string {
	switch p {
	case DrawCountdown:
		return "countdown"
	case DrawSpinning:
		return "spinning"
	case DrawSlowing:
		return "slowing"
	case DrawWinner:
		return "winner"
	case DrawFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Параметры барабана.
const (
	countdownFrom = 3
	countdownTick = time.Second

	spinInterval = 50 * time.Millisecond
	spinDuration = 3 * time.Second

	slowStep  = 30 * time.Millisecond
	slowLimit = 500 * time.Millisecond
	minSpan   = 10
	spanDecay = 0.8

	winnerPause = 500 * time.Millisecond
	winnerDwell = 2 * time.Second
)

// spinTicket выбирает случайный билет для кадра вращения.
// Подменяется в тестах.
var spinTicket = func(total int64) int64 {
	return rand.Int64N(total) + 1
}

// newDrawRand создаёт генератор для замедления.
var newDrawRand = func() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Frame — кадр замедления: ждать Delay, затем показать Ticket.
type Frame struct {
	Ticket int64
	Delay  time.Duration
}

// Converge строит кадры замедления вокруг уже известного выигрышного билета.
// Каждый шаг увеличивает паузу на slowStep и сжимает разброс в spanDecay раз
// (не меньше minSpan). Когда пауза доходит до slowLimit, последний кадр
// всегда равен winning. Случайность здесь только косметическая.
func Converge(rng *rand.Rand, total, winning int64) []Frame {
	speed := spinInterval
	span := float64(total)
	var (
		frames []Frame
		delay  time.Duration
	)
	for {
		speed += slowStep
		span = math.Max(minSpan, span*spanDecay)
		if speed >= slowLimit {
			return append(frames, Frame{Ticket: winning, Delay: delay})
		}
		offset := int64(math.Floor((rng.Float64() - 0.5) * span))
		frames = append(frames, Frame{Ticket: clampTicket(winning+offset, total), Delay: delay})
		delay = speed
	}
}

func clampTicket(ticket, total int64) int64 {
	return max(1, min(total, ticket))
}

// DrawState — снимок анимации.
type DrawState struct {
	Phase     DrawPhase
	Countdown int
	Ticket    int64
	Seq       uint64
}

// DrawAnimation: countdown(3→0) → spinning → slowing → winner → finished.
// Итог известен заранее, анимация только показывает его.
type DrawAnimation struct {
	clock      clockwork.Clock
	total      int64
	winning    int64
	observe    func(DrawState)
	onComplete func()

	mu       sync.Mutex
	state    DrawState
	started  bool
	disposed bool
	timeline *sequence
}

// NewDrawAnimation проверяет входные данные и создаёт анимацию.
func NewDrawAnimation(clock clockwork.Clock, total, winning int64, observe func(DrawState), onComplete func()) (*DrawAnimation, error) {
	if total < 1 {
		return nil, common.ErrInvalidTotalTickets
	}
	if winning < 1 || winning > total {
		return nil, fmt.Errorf("%w: %d из %d", common.ErrInvalidWinningTicket, winning, total)
	}
	return &DrawAnimation{
		clock:      clock,
		total:      total,
		winning:    winning,
		observe:    observe,
		onComplete: onComplete,
		state:      DrawState{Phase: DrawCountdown, Countdown: countdownFrom},
	}, nil
}

// Start запускает анимацию. Повторный вызов ничего не делает.
func (d *DrawAnimation) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.disposed {
		return
	}
	d.started = true
	d.timeline = play(d.clock, d.schedule())
}

func (d *DrawAnimation) schedule() []step {
	var steps []step

	steps = append(steps, step{apply: func() bool {
		return d.set(DrawState{Phase: DrawCountdown, Countdown: countdownFrom})
	}})
	for c := countdownFrom - 1; c >= 0; c-- {
		steps = append(steps, step{delay: countdownTick, apply: func() bool {
			return d.set(DrawState{Phase: DrawCountdown, Countdown: c})
		}})
	}

	spins := int(spinDuration / spinInterval)
	for i := 0; i < spins; i++ {
		var delay time.Duration
		if i > 0 {
			delay = spinInterval
		}
		steps = append(steps, step{delay: delay, apply: func() bool {
			return d.set(DrawState{Phase: DrawSpinning, Ticket: spinTicket(d.total)})
		}})
	}

	for i, fr := range Converge(newDrawRand(), d.total, d.winning) {
		delay := fr.Delay
		if i == 0 {
			delay = spinInterval
		}
		steps = append(steps, step{delay: delay, apply: func() bool {
			return d.set(DrawState{Phase: DrawSlowing, Ticket: fr.Ticket})
		}})
	}

	steps = append(steps,
		step{delay: winnerPause, apply: func() bool {
			return d.set(DrawState{Phase: DrawWinner, Ticket: d.winning})
		}},
		step{delay: winnerDwell, apply: func() bool {
			if !d.set(DrawState{Phase: DrawFinished, Ticket: d.winning}) {
				return false
			}
			if d.onComplete != nil {
				d.onComplete()
			}
			return true
		}},
	)
	return steps
}

// State возвращает текущий снимок.
func (d *DrawAnimation) State() DrawState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Dispose отменяет все таймеры анимации.
func (d *DrawAnimation) Dispose() {
	d.mu.Lock()
	d.disposed = true
	timeline := d.timeline
	d.mu.Unlock()

	timeline.cancel()
}

func (d *DrawAnimation) set(st DrawState) bool {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return false
	}
	st.Seq = d.state.Seq + 1
	d.state = st
	d.mu.Unlock()

	if d.observe != nil {
		d.observe(st)
	}
	return true
}
