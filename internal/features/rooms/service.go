// Package rooms — живая карточка лота и действия участника:
// вход, выход, получение приза, возврат и обмен на кредиты.
//
// Бот ничего не считает сам: после каждого действия он только
// просит реконсилер перечитать таблицу лидеров.
package rooms

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/common"
	"serotonyl.ru/lot-bot/internal/features/reveal"
	"serotonyl.ru/lot-bot/internal/ledger"
)

// Ledger — вызовы бэкенда, нужные лотам.
type Ledger interface {
	GetRoomLeaderboard(ctx context.Context, roomID string, userID int64) (*ledger.Leaderboard, error)
	JoinRoom(ctx context.Context, roomID, revealID string, userID int64) (*ledger.EntrySummary, error)
	LeaveRoom(ctx context.Context, roomID, revealID string, userID int64) (*ledger.EntrySummary, error)
	ClaimRedemption(ctx context.Context, roomID string, userID int64) (*ledger.Redemption, error)
	RequestRoomRefund(ctx context.Context, roomID string, userID int64) (*ledger.RefundResult, error)
	ConvertToCredits(ctx context.Context, roomID string, userID int64) (*ledger.CreditsResult, error)
	RevealMysteryProduct(ctx context.Context, roomID string) (*ledger.Product, error)
	GetRoomDraw(ctx context.Context, roomID string) (*ledger.Draw, error)
}

// Service — операции с лотами.
type Service struct {
	ledger Ledger
}

// NewService создаёт сервис лотов.
func NewService(l Ledger) *Service {
	return &Service{ledger: l}
}

// Join входит в лот с картой revealID.
func (s *Service) Join(ctx context.Context, roomID, revealID string, userID int64) (*ledger.EntrySummary, error) {
	return s.ledger.JoinRoom(ctx, roomID, revealID, userID)
}

// Leave выходит из лота.
func (s *Service) Leave(ctx context.Context, roomID, revealID string, userID int64) (*ledger.EntrySummary, error) {
	return s.ledger.LeaveRoom(ctx, roomID, revealID, userID)
}

// Claim оформляет получение приза победителем.
func (s *Service) Claim(ctx context.Context, roomID string, userID int64) (*ledger.Redemption, error) {
	return s.ledger.ClaimRedemption(ctx, roomID, userID)
}

// Refund просит вернуть деньги за проигравшие билеты.
func (s *Service) Refund(ctx context.Context, roomID string, userID int64) (*ledger.RefundResult, error) {
	return s.ledger.RequestRoomRefund(ctx, roomID, userID)
}

// Convert меняет проигравшие билеты на кредиты.
func (s *Service) Convert(ctx context.Context, roomID string, userID int64) (*ledger.CreditsResult, error) {
	return s.ledger.ConvertToCredits(ctx, roomID, userID)
}

// LoadOutcome собирает данные для показа исхода разыгранного лота.
func (s *Service) LoadOutcome(ctx context.Context, roomID string, userID int64) (reveal.OutcomeInput, error) {
	board, err := s.ledger.GetRoomLeaderboard(ctx, roomID, userID)
	if err != nil {
		return reveal.OutcomeInput{}, fmt.Errorf("таблица лидеров: %w", err)
	}
	if !board.Room.Status.Settled() {
		return reveal.OutcomeInput{}, common.ErrRoomNotSettled
	}

	draw, err := s.ledger.GetRoomDraw(ctx, roomID)
	if err != nil {
		return reveal.OutcomeInput{}, fmt.Errorf("запись розыгрыша: %w", err)
	}

	in := reveal.OutcomeInput{
		Room:          board.Room,
		Product:       board.Product,
		TotalTickets:  draw.TotalTickets,
		WinningTicket: draw.WinningTicket,
		UserID:        userID,
	}

	switch {
	case draw.WinnerUserID != nil:
		in.WinnerUserID = *draw.WinnerUserID
	case board.Room.WinnerUserID != nil:
		in.WinnerUserID = *board.Room.WinnerUserID
	}
	in.WinnerName = winnerName(board, in.WinnerUserID)

	if board.MyEntry != nil {
		in.SpentCents = board.MyEntry.AmountSpentCents
	}

	if board.Room.IsMystery && !board.Room.MysteryRevealed {
		product, err := s.ledger.RevealMysteryProduct(ctx, roomID)
		switch {
		case err == nil:
			in.Product = product
		case errors.Is(err, common.ErrRequestRejected):
			log.WithError(err).WithField("room_id", roomID).Warn("Мистери-приз не раскрыт")
		default:
			return reveal.OutcomeInput{}, fmt.Errorf("мистери-приз: %w", err)
		}
	}
	return in, nil
}

func winnerName(board *ledger.Leaderboard, winnerID int64) string {
	for _, e := range board.Entries {
		if e.UserID == winnerID {
			return e.Name()
		}
	}
	if board.MyEntry != nil && board.MyEntry.UserID == winnerID {
		return board.MyEntry.Name()
	}
	return "участник"
}
