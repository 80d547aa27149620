package reveal

import (
	"sync"

	"github.com/jonboulle/clockwork"

	"serotonyl.ru/lot-bot/internal/common"
	"serotonyl.ru/lot-bot/internal/ledger"
)

// OutcomePhase — фаза показа исхода лота.
type OutcomePhase int

const (
	OutcomeMystery OutcomePhase = iota
	OutcomeDraw
	OutcomeWinnerReveal
	OutcomeNonWinner
	OutcomeComplete
)

func (p OutcomePhase) String() string {
	switch p {
	case OutcomeMystery:
		return "mystery-reveal"
	case OutcomeDraw:
		return "draw"
	case OutcomeWinnerReveal:
		return "winner-reveal"
	case OutcomeNonWinner:
		return "non-winner"
	case OutcomeComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Завершающие переходы. Каждый вызывает ровно один колбэк.
const (
	EdgeClaim   = "claim"
	EdgeClose   = "close"
	EdgeRefund  = "refund"
	EdgeConvert = "convert"
)

// OutcomeInput — всё, что нужно для показа исхода. Собирается из
// опубликованной записи розыгрыша и таблицы лидеров.
type OutcomeInput struct {
	Room          ledger.Room
	Product       *ledger.Product
	TotalTickets  int64
	WinningTicket int64
	WinnerUserID  int64
	WinnerName    string
	UserID        int64
	SpentCents    int64
}

// IsWinner — выиграл ли текущий пользователь.
func (in OutcomeInput) IsWinner() bool {
	return in.UserID != 0 && in.UserID == in.WinnerUserID
}

// HasEntry — тратил ли пользователь деньги в лоте.
func (in OutcomeInput) HasEntry() bool {
	return in.SpentCents > 0
}

func (in OutcomeInput) needsMystery() bool {
	return in.Room.IsMystery && !in.Room.MysteryRevealed
}

// OutcomeCallbacks — побочные действия завершающих переходов.
// Денежной логики в автомате нет, только порядок шагов.
type OutcomeCallbacks struct {
	OnClaim   func()
	OnRefund  func()
	OnConvert func()
	OnClose   func()
}

func (cb OutcomeCallbacks) forEdge(edge string) func() {
	switch edge {
	case EdgeClaim:
		return cb.OnClaim
	case EdgeRefund:
		return cb.OnRefund
	case EdgeConvert:
		return cb.OnConvert
	default:
		return cb.OnClose
	}
}

// OutcomeState — снимок показа исхода.
type OutcomeState struct {
	Phase    OutcomePhase
	Mystery  MysteryPhase
	Draw     DrawState
	IsWinner bool
	HasEntry bool
	// Edge — каким переходом завершился показ (только в OutcomeComplete)
	Edge string
	Seq  uint64
}

// OutcomeFlow: mystery-reveal? → draw → winner-reveal → non-winner | complete.
type OutcomeFlow struct {
	in      OutcomeInput
	cb      OutcomeCallbacks
	observe func(OutcomeState)

	mystery *MysteryReveal
	draw    *DrawAnimation

	mu       sync.Mutex
	state    OutcomeState
	started  bool
	disposed bool
}

// NewOutcomeFlow проверяет запись розыгрыша и собирает автомат.
func NewOutcomeFlow(clock clockwork.Clock, in OutcomeInput, cb OutcomeCallbacks, observe func(OutcomeState)) (*OutcomeFlow, error) {
	f := &OutcomeFlow{
		in:      in,
		cb:      cb,
		observe: observe,
		state: OutcomeState{
			Phase:    OutcomeDraw,
			IsWinner: in.IsWinner(),
			HasEntry: in.HasEntry(),
			Draw:     DrawState{Phase: DrawCountdown, Countdown: countdownFrom},
			Seq:      1,
		},
	}

	draw, err := NewDrawAnimation(clock, in.TotalTickets, in.WinningTicket, f.onDraw, f.onDrawComplete)
	if err != nil {
		return nil, err
	}
	f.draw = draw

	if in.needsMystery() {
		f.state.Phase = OutcomeMystery
		f.mystery = NewMysteryReveal(clock, f.onMystery, f.onMysteryComplete)
	}
	return f, nil
}

// Input возвращает исходные данные показа.
func (f *OutcomeFlow) Input() OutcomeInput {
	return f.in
}

// State возвращает текущий снимок.
func (f *OutcomeFlow) State() OutcomeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Start запускает первую фазу.
func (f *OutcomeFlow) Start() {
	f.mu.Lock()
	if f.started || f.disposed {
		f.mu.Unlock()
		return
	}
	f.started = true
	phase := f.state.Phase
	st := f.state
	f.mu.Unlock()

	f.emit(st)
	if phase == OutcomeMystery {
		f.mystery.Start()
		return
	}
	f.draw.Start()
}

// Claim — победитель забирает приз.
func (f *OutcomeFlow) Claim() error {
	f.mu.Lock()
	if err := f.check(); err != nil {
		f.mu.Unlock()
		return err
	}
	if f.state.Phase != OutcomeWinnerReveal || !f.state.IsWinner {
		f.mu.Unlock()
		return common.ErrActionUnavailable
	}
	return f.completeLocked(EdgeClaim)
}

// Close закрывает показ победителя. Проигравший с покупками
// попадает на выбор возврата, остальные завершают показ.
func (f *OutcomeFlow) Close() error {
	f.mu.Lock()
	if err := f.check(); err != nil {
		f.mu.Unlock()
		return err
	}
	switch f.state.Phase {
	case OutcomeWinnerReveal:
		if !f.state.IsWinner && f.state.HasEntry {
			f.state.Phase = OutcomeNonWinner
			f.state.Seq++
			st := f.state
			f.mu.Unlock()
			f.emit(st)
			return nil
		}
		return f.completeLocked(EdgeClose)
	case OutcomeNonWinner:
		return f.completeLocked(EdgeClose)
	default:
		f.mu.Unlock()
		return common.ErrActionUnavailable
	}
}

// Refund — проигравший просит вернуть деньги.
func (f *OutcomeFlow) Refund() error {
	return f.nonWinnerChoice(EdgeRefund)
}

// ConvertToCredits — проигравший меняет покупки на кредиты.
func (f *OutcomeFlow) ConvertToCredits() error {
	return f.nonWinnerChoice(EdgeConvert)
}

func (f *OutcomeFlow) nonWinnerChoice(edge string) error {
	f.mu.Lock()
	if err := f.check(); err != nil {
		f.mu.Unlock()
		return err
	}
	if f.state.Phase != OutcomeNonWinner {
		f.mu.Unlock()
		return common.ErrActionUnavailable
	}
	return f.completeLocked(edge)
}

// Dispose отменяет таймеры всех вложенных анимаций.
func (f *OutcomeFlow) Dispose() {
	f.mu.Lock()
	f.disposed = true
	f.mu.Unlock()

	if f.mystery != nil {
		f.mystery.Dispose()
	}
	f.draw.Dispose()
}

// check вызывается под f.mu.
func (f *OutcomeFlow) check() error {
	if f.disposed || f.state.Phase == OutcomeComplete {
		return common.ErrFlowNotFound
	}
	return nil
}

// completeLocked вызывается под f.mu и снимает блокировку.
func (f *OutcomeFlow) completeLocked(edge string) error {
	f.state.Phase = OutcomeComplete
	f.state.Edge = edge
	f.state.Seq++
	st := f.state
	f.mu.Unlock()

	f.emit(st)
	if fn := f.cb.forEdge(edge); fn != nil {
		fn()
	}
	return nil
}

func (f *OutcomeFlow) onMystery(phase MysteryPhase) {
	f.update(func(s *OutcomeState) bool {
		if s.Phase != OutcomeMystery {
			return false
		}
		s.Mystery = phase
		return true
	})
}

func (f *OutcomeFlow) onMysteryComplete() {
	if f.update(func(s *OutcomeState) bool {
		if s.Phase != OutcomeMystery {
			return false
		}
		s.Phase = OutcomeDraw
		return true
	}) {
		f.draw.Start()
	}
}

func (f *OutcomeFlow) onDraw(ds DrawState) {
	f.update(func(s *OutcomeState) bool {
		if s.Phase != OutcomeDraw {
			return false
		}
		s.Draw = ds
		return true
	})
}

func (f *OutcomeFlow) onDrawComplete() {
	f.update(func(s *OutcomeState) bool {
		if s.Phase != OutcomeDraw {
			return false
		}
		s.Phase = OutcomeWinnerReveal
		return true
	})
}

// update меняет состояние, если автомат жив и mutate согласен.
func (f *OutcomeFlow) update(mutate func(*OutcomeState) bool) bool {
	f.mu.Lock()
	if f.disposed || !mutate(&f.state) {
		f.mu.Unlock()
		return false
	}
	f.state.Seq++
	st := f.state
	f.mu.Unlock()

	f.emit(st)
	return true
}

func (f *OutcomeFlow) emit(st OutcomeState) {
	if f.observe != nil {
		f.observe(st)
	}
}
