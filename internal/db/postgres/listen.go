package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// Listener держит одно соединение с LISTEN на канале и отдаёт полезную
// нагрузку каждого NOTIFY обработчику. При обрыве соединения
// переподключается с экспоненциальной задержкой.
type Listener struct {
	pool       *pgxpool.Pool
	channel    string
	clock      clockwork.Clock
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewListener создаёт слушателя канала.
func NewListener(pool *pgxpool.Pool, channel string) *Listener {
	return &Listener{
		pool:       pool,
		channel:    channel,
		clock:      clockwork.NewRealClock(),
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// Listen блокируется до отмены ctx. Ошибки соединения не возвращаются:
// пропущенные за время обрыва события покрывает резервный таймер реконсилера.
func (l *Listener) Listen(ctx context.Context, handle func(payload string)) error {
	logger := log.WithFields(log.Fields{"component": "listener", "channel": l.channel})
	backoff := l.minBackoff

	for {
		err := l.session(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = l.minBackoff
			continue
		}

		logger.WithError(err).WithField("retry_in", backoff.String()).Warn("LISTEN прерван, переподключаемся")
		select {
		case <-ctx.Done():
			return nil
		case <-l.clock.After(backoff):
		}
		backoff = nextBackoff(backoff, l.maxBackoff)
	}
}

// session держит одно соединение до первой ошибки.
func (l *Listener) session(ctx context.Context, handle func(payload string)) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	// Соединение после LISTEN нельзя вернуть в пул «грязным»
	defer func() {
		_ = conn.Conn().Close(context.Background())
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, ListenSQL(l.channel)); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.WithField("channel", l.channel).Info("Подписка на изменения комнат активна")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("wait: %w", err)
		}
		handle(n.Payload)
	}
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit {
		return limit
	}
	return next
}
