// Package members — service.go содержит бизнес-логику реестра пользователей.
package members

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// Store — хранилище пользователей.
type Store interface {
	Upsert(ctx context.Context, p Profile, seenAt time.Time) error
	GetByUserID(ctx context.Context, userID int64) (*Member, error)
	SetLastRoom(ctx context.Context, userID int64, roomID string) error
	CountActiveSince(ctx context.Context, since time.Time) (int, error)
}

// Service ведёт реестр пользователей бота.
type Service struct {
	store Store
	clock clockwork.Clock
}

// NewService создаёт сервис пользователей.
func NewService(store Store, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{store: store, clock: clock}
}

// EnsureMember регистрирует пользователя или отмечает его визит.
func (s *Service) EnsureMember(ctx context.Context, p Profile) error {
	if err := s.store.Upsert(ctx, p, s.clock.Now()); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"user_id":  p.UserID,
		"username": p.Username,
	}).Debug("Визит пользователя отмечен")
	return nil
}

// SetLastRoom запоминает последний открытый лот пользователя.
func (s *Service) SetLastRoom(ctx context.Context, userID int64, roomID string) error {
	return s.store.SetLastRoom(ctx, userID, roomID)
}

// LastRoom возвращает последний открытый лот или пустую строку.
func (s *Service) LastRoom(ctx context.Context, userID int64) (string, error) {
	m, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	if m.LastRoomID == nil {
		return "", nil
	}
	return *m.LastRoomID, nil
}

// ActiveSince — сколько пользователей заходили за последние window.
func (s *Service) ActiveSince(ctx context.Context, window time.Duration) (int, error) {
	n, err := s.store.CountActiveSince(ctx, s.clock.Now().Add(-window))
	if err != nil {
		return 0, fmt.Errorf("активные пользователи: %w", err)
	}
	return n, nil
}
