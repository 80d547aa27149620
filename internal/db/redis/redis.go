// Package redis хранит отметки об обработанных возвратах из оплаты.
// Если REDIS_ADDR пуст, приложение использует checkout.MemoryStore.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/config"
)

const keyPrefix = "lotbot:return:"

// cmdable — подмножество команд go-redis, нужное хранилищу.
type cmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// NewClient создаёт клиента и проверяет соединение.
func NewClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis недоступен: %w", err)
	}

	log.WithField("addr", cfg.RedisAddr).Info("Подключение к Redis установлено")
	return client, nil
}

// ReturnStore помечает checkout-сессии как обработанные (SET NX EX).
type ReturnStore struct {
	rdb cmdable
}

// NewReturnStore оборачивает клиента go-redis.
func NewReturnStore(rdb cmdable) *ReturnStore {
	return &ReturnStore{rdb: rdb}
}

// MarkConsumed ставит отметку. Возвращает true, если отметки ещё не было.
func (s *ReturnStore) MarkConsumed(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, keyPrefix+sessionID, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// IsConsumed проверяет наличие отметки.
func (s *ReturnStore) IsConsumed(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, keyPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Ping проверяет Redis для /healthz.
func (s *ReturnStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
