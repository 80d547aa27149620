package leaderboard

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/ledger"
	"serotonyl.ru/lot-bot/internal/metrics"
)

// DefaultFallback — резервный интервал перечитывания.
const DefaultFallback = 5 * time.Second

// Причины перезапроса.
const (
	ReasonInitial  = "initial"
	ReasonEvent    = "event"
	ReasonFallback = "fallback"
	ReasonManual   = "manual"
)

// Fetcher загружает полный снимок таблицы лидеров.
type Fetcher interface {
	GetRoomLeaderboard(ctx context.Context, roomID string, userID int64) (*ledger.Leaderboard, error)
}

// ViewKey — кто смотрит какой лот. my_entry у каждого зрителя свой.
type ViewKey struct {
	RoomID string
	UserID int64
}

// Snapshot — снимок, переданный подписчику.
type Snapshot struct {
	Board     *ledger.Leaderboard
	Seq       uint64
	Reason    string
	FetchedAt time.Time
}

// Options — настройки реконсилера.
type Options struct {
	Fallback time.Duration
	Clock    clockwork.Clock
	Metrics  *metrics.Metrics
}

// Reconciler держит по одной подписке на ViewKey.
type Reconciler struct {
	fetcher  Fetcher
	hub      *Hub
	fallback time.Duration
	clock    clockwork.Clock
	metrics  *metrics.Metrics

	mu      sync.Mutex
	watches map[ViewKey]*Watch
}

// NewReconciler создаёт реконсилер.
func NewReconciler(fetcher Fetcher, hub *Hub, opts Options) *Reconciler {
	if opts.Fallback <= 0 {
		opts.Fallback = DefaultFallback
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Reconciler{
		fetcher:  fetcher,
		hub:      hub,
		fallback: opts.Fallback,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		watches:  make(map[ViewKey]*Watch),
	}
}

// Watch начинает следить за лотом. Предыдущая подписка с тем же ключом
// останавливается. onSnapshot вызывается последовательно, не параллельно.
func (r *Reconciler) Watch(ctx context.Context, key ViewKey, onSnapshot func(Snapshot)) *Watch {
	wctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		r:          r,
		key:        key,
		onSnapshot: onSnapshot,
		ctx:        wctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger: log.WithFields(log.Fields{
			"component": "leaderboard",
			"room_id":   key.RoomID,
			"user_id":   key.UserID,
		}),
	}

	// Подписка и таймер готовы до публикации w: соседний Watch с тем же
	// ключом может сразу же её остановить.
	w.unsubscribe = r.hub.Subscribe(key.RoomID, func(Event) { w.trigger(ReasonEvent) })
	w.ticker = r.clock.NewTicker(r.fallback)
	r.metrics.WatchOpened()

	r.mu.Lock()
	prev := r.watches[key]
	r.watches[key] = w
	r.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	go w.loop()

	w.trigger(ReasonInitial)
	return w
}

// Active — число открытых подписок.
func (r *Reconciler) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watches)
}

// StopAll закрывает все подписки (при остановке бота).
func (r *Reconciler) StopAll() {
	r.mu.Lock()
	all := make([]*Watch, 0, len(r.watches))
	for _, w := range r.watches {
		all = append(all, w)
	}
	r.mu.Unlock()

	for _, w := range all {
		w.Stop()
	}
}

func (r *Reconciler) forget(w *Watch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watches[w.key] == w {
		delete(r.watches, w.key)
	}
}

// Watch — подписка одного зрителя на один лот.
// Одновременно идёт не больше одного запроса, ещё один может ждать в очереди.
type Watch struct {
	r          *Reconciler
	key        ViewKey
	onSnapshot func(Snapshot)
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *log.Entry

	unsubscribe func()
	ticker      clockwork.Ticker
	done        chan struct{}
	stopOnce    sync.Once

	mu            sync.Mutex
	stopped       bool
	inFlight      bool
	pending       bool
	pendingReason string
	requested     uint64
	applied       uint64

	deliverMu sync.Mutex
	delivered uint64 // под deliverMu
}

// Key возвращает ключ подписки.
func (w *Watch) Key() ViewKey {
	return w.key
}

// Done закрывается после Stop.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Refresh просит перечитать таблицу вне очереди.
func (w *Watch) Refresh() {
	w.trigger(ReasonManual)
}

// Stop снимает подписку, таймер и отменяет запрос в полёте.
// Новые вызовы onSnapshot после Stop не начинаются.
func (w *Watch) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		w.pending = false
		w.mu.Unlock()

		if w.unsubscribe != nil {
			w.unsubscribe()
		}
		if w.ticker != nil {
			w.ticker.Stop()
		}
		w.cancel()
		close(w.done)

		w.r.forget(w)
		w.r.metrics.WatchClosed()
		w.logger.Debug("Подписка на лот закрыта")
	})
}

func (w *Watch) loop() {
	for {
		select {
		case <-w.ctx.Done():
			// Отмена родительского контекста тоже закрывает подписку
			w.Stop()
			return
		case <-w.ticker.Chan():
			w.trigger(ReasonFallback)
		}
	}
}

// trigger ставит перезапрос. Если запрос уже идёт, следующий
// помечается как ожидающий; сколько бы триггеров ни пришло, он один.
func (w *Watch) trigger(reason string) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	if w.inFlight {
		w.pending = true
		w.pendingReason = reason
		w.mu.Unlock()
		w.r.metrics.Refetch(reason, "coalesced")
		return
	}
	w.inFlight = true
	w.requested++
	seq := w.requested
	w.mu.Unlock()

	go w.fetch(seq, reason)
}

func (w *Watch) fetch(seq uint64, reason string) {
	for {
		board, err := w.r.fetcher.GetRoomLeaderboard(w.ctx, w.key.RoomID, w.key.UserID)

		w.mu.Lock()
		if w.stopped {
			w.inFlight = false
			w.mu.Unlock()
			w.r.metrics.Refetch(reason, "discarded")
			return
		}

		var snap *Snapshot
		switch {
		case err != nil:
			w.r.metrics.Refetch(reason, "error")
			w.logger.WithError(err).WithField("reason", reason).Debug("Не удалось обновить таблицу лидеров")
		case seq <= w.applied:
			// Ответ на запрос, который уже перекрыт более новым
			w.r.metrics.Refetch(reason, "stale")
		default:
			w.applied = seq
			fillBands(board)
			snap = &Snapshot{Board: board, Seq: seq, Reason: reason, FetchedAt: w.r.clock.Now()}
			w.r.metrics.Refetch(reason, "ok")
		}

		next := w.pending
		if next {
			w.pending = false
			w.requested++
			seq = w.requested
			reason = w.pendingReason
		} else {
			w.inFlight = false
		}
		w.mu.Unlock()

		if snap != nil {
			w.deliver(*snap)
		}
		if !next {
			return
		}
	}
}

func (w *Watch) deliver(s Snapshot) {
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()

	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped || w.onSnapshot == nil {
		return
	}
	// Горутина со старым снимком могла дойти сюда позже более новой
	if s.Seq <= w.delivered {
		return
	}
	w.delivered = s.Seq
	w.onSnapshot(s)
}

// Busy — идёт ли сейчас запрос (для тестов и диагностики).
func (w *Watch) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight
}
