// Package members — repository.go отвечает за все операции с таблицей bot_users в БД.
// Каждая функция выполняет один SQL-запрос и возвращает результат или ошибку.
package members

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Migration создаёт таблицу пользователей бота.
const Migration = `
	CREATE TABLE IF NOT EXISTS bot_users (
		user_id       BIGINT PRIMARY KEY,
		username      TEXT NOT NULL DEFAULT '',
		first_name    TEXT NOT NULL DEFAULT '',
		last_name     TEXT NOT NULL DEFAULT '',
		last_room_id  UUID,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_bot_users_last_seen ON bot_users (last_seen_at);
`

// querier — общая часть pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository хранит пользователей в Postgres.
type Repository struct {
	db querier
}

// NewRepository создаёт репозиторий поверх пула или транзакции.
func NewRepository(db querier) *Repository {
	return &Repository{db: db}
}

// Upsert добавляет пользователя или обновляет имя и время последнего визита.
func (r *Repository) Upsert(ctx context.Context, p Profile, seenAt time.Time) error {
	query := `
		INSERT INTO bot_users (user_id, username, first_name, last_name, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    last_seen_at = EXCLUDED.last_seen_at
	`
	_, err := r.db.Exec(ctx, query, p.UserID, p.Username, p.FirstName, p.LastName, seenAt.UTC())
	if err != nil {
		return fmt.Errorf("ошибка создания/обновления пользователя: %w", err)
	}
	return nil
}

// GetByUserID: если не найден — ошибка с pgx.ErrNoRows (errors.Is(err, pgx.ErrNoRows) == true)
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Member, error) {
	query := `
		SELECT user_id, username, first_name, last_name, last_room_id::text,
		       first_seen_at, last_seen_at
		FROM bot_users
		WHERE user_id = $1
	`
	var m Member
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&m.UserID, &m.Username, &m.FirstName, &m.LastName, &m.LastRoomID,
		&m.FirstSeen, &m.LastSeen,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("пользователь не найден (user_id=%d): %w", userID, err)
		}
		return nil, fmt.Errorf("ошибка чтения пользователя (user_id=%d): %w", userID, err)
	}
	return &m, nil
}

// SetLastRoom запоминает последний открытый лот.
func (r *Repository) SetLastRoom(ctx context.Context, userID int64, roomID string) error {
	query := `UPDATE bot_users SET last_room_id = $2 WHERE user_id = $1`
	if _, err := r.db.Exec(ctx, query, userID, roomID); err != nil {
		return fmt.Errorf("ошибка сохранения последнего лота: %w", err)
	}
	return nil
}

// CountActiveSince — сколько пользователей заходили после since.
func (r *Repository) CountActiveSince(ctx context.Context, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM bot_users WHERE last_seen_at >= $1`
	var n int
	if err := r.db.QueryRow(ctx, query, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return n, nil
}
