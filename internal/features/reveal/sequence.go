// Package reveal — анимации показа: вскрытие купленных билетов,
// раскрытие мистери-приза, розыгрыш и исход лота.
//
// Каждая анимация — явный автомат с закрытым набором фаз. Переходы по
// времени идут через clockwork, поэтому в тестах время двигается вручную.
// После Dispose ни один таймер уже не меняет состояние.
package reveal

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// step — один шаг расписания: подождать delay и применить apply.
// apply возвращает false, если проигрывание нужно прекратить.
type step struct {
	delay time.Duration
	apply func() bool
}

// sequence проигрывает шаги по часам в отдельной горутине.
type sequence struct {
	clock clockwork.Clock
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func play(clock clockwork.Clock, steps []step) *sequence {
	s := &sequence{
		clock: clock,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.run(steps)
	return s
}

func (s *sequence) run(steps []step) {
	defer close(s.done)

	for _, st := range steps {
		if st.delay > 0 {
			timer := s.clock.NewTimer(st.delay)
			select {
			case <-s.stop:
				timer.Stop()
				return
			case <-timer.Chan():
			}
		}
		select {
		case <-s.stop:
			return
		default:
		}
		if !st.apply() {
			return
		}
	}
}

// cancel останавливает проигрывание. Безопасно для nil и повторных вызовов.
func (s *sequence) cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() { close(s.stop) })
}
