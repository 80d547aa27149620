package reveal

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"serotonyl.ru/lot-bot/internal/common"
)

// EntryPhase — фаза вскрытия купленных билетов.
type EntryPhase int

const (
	// EntryEmerge — карта появилась и ждёт нажатия
	EntryEmerge EntryPhase = iota
	// EntryReveal — карта переворачивается, детали появляются по таймерам
	EntryReveal
	// EntrySuccess — итог покупки
	EntrySuccess
	// EntryDone — пользователь закрыл показ
	EntryDone
)

func (p EntryPhase) String() string {
	switch p {
	case EntryEmerge:
		return "emerge"
	case EntryReveal:
		return "reveal"
	case EntrySuccess:
		return "success"
	case EntryDone:
		return "done"
	default:
		return "unknown"
	}
}

// RevealStage — шаг внутри фазы EntryReveal.
type RevealStage int

const (
	StagePause RevealStage = iota
	StageFlip
	StageCard
	StageDetails
	StageButtons
)

// Моменты шагов от начала EntryReveal.
var revealStages = []struct {
	stage RevealStage
	at    time.Duration
}{
	{StageFlip, 400 * time.Millisecond},
	{StageCard, 800 * time.Millisecond},
	{StageDetails, 1200 * time.Millisecond},
	{StageButtons, 1800 * time.Millisecond},
}

// EntryState — неизменяемый снимок автомата. Seq растёт с каждым переходом.
type EntryState struct {
	Phase EntryPhase
	Stage RevealStage
	Seq   uint64
}

// EntryFlow — автомат emerge → reveal → success → done.
// Обратных переходов нет. Наружу он сообщает только через onComplete.
type EntryFlow struct {
	clock      clockwork.Clock
	observe    func(EntryState)
	onComplete func()

	mu       sync.Mutex
	state    EntryState
	disposed bool
	timeline *sequence
}

// NewEntryFlow создаёт автомат в фазе EntryEmerge.
// observe вызывается вне блокировки и может получить снимки не по порядку: смотрите на Seq.
func NewEntryFlow(clock clockwork.Clock, observe func(EntryState), onComplete func()) *EntryFlow {
	return &EntryFlow{
		clock:      clock,
		observe:    observe,
		onComplete: onComplete,
		state:      EntryState{Phase: EntryEmerge, Seq: 1},
	}
}

// State возвращает текущий снимок.
func (f *EntryFlow) State() EntryState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Tap переворачивает карту и запускает таймеры деталей.
func (f *EntryFlow) Tap() error {
	f.mu.Lock()
	if err := f.check(EntryEmerge); err != nil {
		f.mu.Unlock()
		return err
	}
	f.state = EntryState{Phase: EntryReveal, Stage: StagePause, Seq: f.state.Seq + 1}
	st := f.state

	steps := make([]step, 0, len(revealStages))
	var prev time.Duration
	for _, rs := range revealStages {
		stage := rs.stage
		steps = append(steps, step{
			delay: rs.at - prev,
			apply: func() bool { return f.setStage(stage) },
		})
		prev = rs.at
	}
	f.timeline = play(f.clock, steps)
	f.mu.Unlock()

	f.emit(st)
	return nil
}

// Continue переходит к итогу, когда кнопки уже показаны.
func (f *EntryFlow) Continue() error {
	f.mu.Lock()
	if err := f.check(EntryReveal); err != nil {
		f.mu.Unlock()
		return err
	}
	if f.state.Stage != StageButtons {
		f.mu.Unlock()
		return common.ErrActionUnavailable
	}
	f.state = EntryState{Phase: EntrySuccess, Stage: StageButtons, Seq: f.state.Seq + 1}
	st := f.state
	f.mu.Unlock()

	f.emit(st)
	return nil
}

// Dismiss закрывает показ и вызывает onComplete ровно один раз.
func (f *EntryFlow) Dismiss() error {
	f.mu.Lock()
	if err := f.check(EntrySuccess); err != nil {
		f.mu.Unlock()
		return err
	}
	f.state = EntryState{Phase: EntryDone, Stage: f.state.Stage, Seq: f.state.Seq + 1}
	st := f.state
	f.mu.Unlock()

	f.emit(st)
	if f.onComplete != nil {
		f.onComplete()
	}
	return nil
}

// Dispose отменяет таймеры. Состояние после этого не меняется.
func (f *EntryFlow) Dispose() {
	f.mu.Lock()
	f.disposed = true
	timeline := f.timeline
	f.mu.Unlock()

	timeline.cancel()
}

// check вызывается под f.mu.
func (f *EntryFlow) check(want EntryPhase) error {
	if f.disposed || f.state.Phase == EntryDone {
		return common.ErrFlowNotFound
	}
	if f.state.Phase != want {
		return common.ErrActionUnavailable
	}
	return nil
}

func (f *EntryFlow) setStage(stage RevealStage) bool {
	f.mu.Lock()
	if f.disposed || f.state.Phase != EntryReveal {
		f.mu.Unlock()
		return false
	}
	f.state.Stage = stage
	f.state.Seq++
	st := f.state
	f.mu.Unlock()

	f.emit(st)
	return true
}

func (f *EntryFlow) emit(st EntryState) {
	if f.observe != nil {
		f.observe(st)
	}
}
