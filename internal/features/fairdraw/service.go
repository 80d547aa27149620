package fairdraw

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/ledger"
	"serotonyl.ru/lot-bot/internal/metrics"
)

// DrawSource — откуда берутся опубликованные сиды.
type DrawSource interface {
	VerifyLotteryDraw(ctx context.Context, drawID string) (*ledger.DrawVerification, error)
	GetRoomDraw(ctx context.Context, roomID string) (*ledger.Draw, error)
}

// Report — то, что видит пользователь после проверки.
type Report struct {
	DrawID     string
	RoomID     string
	DrawnAt    time.Time
	ServerSeed string
	ClientSeed string
	Verification
	// ServerValid — вердикт самого сервера, если он его прислал
	ServerValid *bool
}

// Service загружает сиды и пересчитывает результат локально.
// Локальный пересчёт — единственный источник вердикта.
type Service struct {
	source  DrawSource
	metrics *metrics.Metrics
}

// NewService создаёт сервис проверки.
func NewService(source DrawSource, m *metrics.Metrics) *Service {
	return &Service{source: source, metrics: m}
}

// VerifyDraw проверяет розыгрыш по его id.
func (s *Service) VerifyDraw(ctx context.Context, drawID string) (*Report, error) {
	d, err := s.source.VerifyLotteryDraw(ctx, drawID)
	if err != nil {
		s.metrics.Verification("error")
		return nil, fmt.Errorf("загрузка розыгрыша %s: %w", drawID, err)
	}

	serverValid := d.IsValid
	return s.finish(&Report{
		DrawID:      d.DrawID,
		RoomID:      d.RoomID,
		DrawnAt:     d.DrawnAt,
		ServerSeed:  d.ServerSeed,
		ClientSeed:  d.ClientSeed,
		ServerValid: &serverValid,
	}, d.TotalTickets, d.WinningTicket)
}

// VerifyRoom проверяет последний розыгрыш лота.
func (s *Service) VerifyRoom(ctx context.Context, roomID string) (*Report, error) {
	d, err := s.source.GetRoomDraw(ctx, roomID)
	if err != nil {
		s.metrics.Verification("error")
		return nil, fmt.Errorf("загрузка розыгрыша лота %s: %w", roomID, err)
	}

	return s.finish(&Report{
		DrawID:     d.ID,
		RoomID:     d.RoomID,
		DrawnAt:    d.DrawnAt,
		ServerSeed: d.ServerSeed,
		ClientSeed: d.ClientSeed,
	}, d.TotalTickets, d.WinningTicket)
}

func (s *Service) finish(r *Report, total, claimed int64) (*Report, error) {
	v, err := Verify(r.ServerSeed, r.ClientSeed, total, claimed)
	if err != nil {
		s.metrics.Verification("error")
		return nil, err
	}
	r.Verification = v

	logger := log.WithFields(log.Fields{
		"component":  "fairdraw",
		"draw_id":    r.DrawID,
		"claimed":    v.Claimed,
		"recomputed": v.Recomputed,
	})
	if v.Valid {
		s.metrics.Verification("valid")
		logger.Debug("Розыгрыш подтверждён")
	} else {
		// Несовпадение не прячем и не повторяем: это результат, а не сбой
		s.metrics.Verification("invalid")
		logger.Warn("Пересчитанный билет не совпал с заявленным")
	}
	return r, nil
}
