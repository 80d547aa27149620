package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/ledger"
	"serotonyl.ru/lot-bot/internal/metrics"
)

// Значения по умолчанию: 15 попыток раз в 2 секунды (~30 секунд).
const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 15
)

// Notice — информационное сообщение пользователю.
type Notice int

const (
	// NoticeProcessing — «оплата получена, готовим запись»
	NoticeProcessing Notice = iota
	// NoticeStillProcessing — попытки кончились, но оплата может ещё идти
	NoticeStillProcessing
	// NoticeCanceled — пользователь отменил оплату
	NoticeCanceled
)

// View — куда контроллер сообщает о ходе обработки.
type View interface {
	Notify(ctx context.Context, n Notice)
	// ClearReturnParams делает повторное открытие ссылки возврата безвредным.
	ClearReturnParams(ctx context.Context)
	ShowReveal(ctx context.Context, entry *ledger.EntrySession)
	OpenRoom(ctx context.Context, roomID string)
}

// EntryFetcher — поиск записи по checkout-сессии.
type EntryFetcher interface {
	GetRoomEntryBySession(ctx context.Context, sessionID string) (*ledger.EntrySession, error)
}

// Outcome — чем закончилась обработка возврата.
type Outcome int

const (
	// Ignored — в параметрах нет ни успеха, ни отмены
	Ignored Outcome = iota
	// Revealed — запись найдена и передана в показ
	Revealed
	// StillProcessing — попытки исчерпаны, пользователь отправлен в лот
	StillProcessing
	// Canceled — оплата отменена, опроса не было
	Canceled
	// Duplicate — по этой сессии опрос уже идёт
	Duplicate
	// Abandoned — контекст отменён во время опроса
	Abandoned
	// Polling — Start запустил опрос в фоне
	Polling
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Revealed:
		return "revealed"
	case StillProcessing:
		return "still_processing"
	case Canceled:
		return "canceled"
	case Duplicate:
		return "duplicate"
	case Abandoned:
		return "abandoned"
	case Polling:
		return "polling"
	default:
		return "unknown"
	}
}

// Options — настройки контроллера. Нулевые значения заменяются дефолтами.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	Clock       clockwork.Clock
	Metrics     *metrics.Metrics
}

// Controller ведёт циклы опроса. На одну сессию — не больше одного цикла.
type Controller struct {
	fetcher     EntryFetcher
	interval    time.Duration
	maxAttempts int
	clock       clockwork.Clock
	metrics     *metrics.Metrics

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

// NewController создаёт контроллер.
func NewController(fetcher EntryFetcher, opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Controller{
		fetcher:     fetcher,
		interval:    opts.Interval,
		maxAttempts: opts.MaxAttempts,
		clock:       opts.Clock,
		metrics:     opts.Metrics,
		active:      make(map[string]struct{}),
	}
}

// Handle обрабатывает возврат и блокируется до результата.
func (c *Controller) Handle(ctx context.Context, ret Return, view View) Outcome {
	switch ret.Kind {
	case KindCanceled:
		return c.finish(c.cancel(ctx, ret, view))
	case KindSuccess:
	default:
		return Ignored
	}

	if !c.acquire(ret.SessionID) {
		return c.finish(Duplicate)
	}
	defer c.release(ret.SessionID)

	return c.finish(c.poll(ctx, ret, view))
}

// Start запускает опрос в фоне. Отмена и пустой возврат обрабатываются сразу.
func (c *Controller) Start(ctx context.Context, ret Return, view View) Outcome {
	switch ret.Kind {
	case KindCanceled:
		return c.finish(c.cancel(ctx, ret, view))
	case KindSuccess:
	default:
		return Ignored
	}

	if !c.acquire(ret.SessionID) {
		return c.finish(Duplicate)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(ret.SessionID)
		c.finish(c.poll(ctx, ret, view))
	}()
	return Polling
}

// Active — число идущих циклов опроса.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Wait ждёт завершения всех фоновых циклов.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) acquire(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.active[sessionID]; busy {
		return false
	}
	c.active[sessionID] = struct{}{}
	c.metrics.PollStarted()
	return true
}

func (c *Controller) release(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.active, sessionID)
	c.metrics.PollFinished()
}

func (c *Controller) finish(o Outcome) Outcome {
	c.metrics.CheckoutOutcome(o.String())
	return o
}

func (c *Controller) cancel(ctx context.Context, ret Return, view View) Outcome {
	view.Notify(ctx, NoticeCanceled)
	view.ClearReturnParams(ctx)
	if ret.RoomID != "" {
		view.OpenRoom(ctx, ret.RoomID)
	}
	return Canceled
}

// poll — сам цикл. Любая ошибка попытки значит «ещё не готово»:
// закончить цикл может только исчерпание попыток.
func (c *Controller) poll(ctx context.Context, ret Return, view View) Outcome {
	logger := log.WithFields(log.Fields{
		"component":  "checkout",
		"session_id": ret.SessionID,
		"room_id":    ret.RoomID,
	})

	view.Notify(ctx, NoticeProcessing)

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			logger.Debug("Опрос прерван")
			return Abandoned
		}

		entry, err := c.fetcher.GetRoomEntryBySession(ctx, ret.SessionID)
		if err == nil {
			c.metrics.CheckoutAttempt("ready")
			logger.WithField("attempt", attempt).Info("Запись по оплате получена")
			view.ShowReveal(ctx, entry)
			view.ClearReturnParams(ctx)
			return Revealed
		}

		switch {
		case errors.Is(err, ledger.ErrNotReady):
			c.metrics.CheckoutAttempt("not_ready")
			logger.WithField("attempt", attempt).Debug("Запись ещё не готова")
		case errors.Is(err, ledger.ErrMalformedResponse):
			c.metrics.CheckoutAttempt("malformed")
			logger.WithError(err).WithField("attempt", attempt).Warn("Некорректный ответ, повторим")
		default:
			c.metrics.CheckoutAttempt("error")
			logger.WithError(err).WithField("attempt", attempt).Debug("Ошибка попытки, повторим")
		}

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			logger.Debug("Опрос прерван")
			return Abandoned
		case <-c.clock.After(c.interval):
		}
	}

	logger.WithField("attempts", c.maxAttempts).Warn("Запись не появилась, отправляем пользователя в лот")
	view.ClearReturnParams(ctx)
	view.Notify(ctx, NoticeStillProcessing)
	if ret.RoomID != "" {
		view.OpenRoom(ctx, ret.RoomID)
	}
	return StillProcessing
}
