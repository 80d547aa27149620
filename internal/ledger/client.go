// Package ledger — тонкая обёртка над RPC бэкенда лотов.
// Каждый RPC — SQL-функция, возвращающая JSON-документ. Клиент только читает
// снимки и отправляет запросы на изменения, локально ничего не меняет.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/lot-bot/internal/common"
	"serotonyl.ru/lot-bot/internal/metrics"
)

var (
	// ErrMalformedResponse — бэкенд вернул NULL или JSON не той формы
	ErrMalformedResponse = errors.New("ledger: некорректный ответ бэкенда")
	// ErrNotReady — запись по checkout-сессии ещё не создана
	ErrNotReady = errors.New("ledger: запись ещё не готова")
)

// Querier — то, что нужно клиенту от пула. *pgxpool.Pool подходит.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Client вызывает RPC бэкенда.
type Client struct {
	db      Querier
	metrics *metrics.Metrics
}

// NewClient создаёт клиента. m может быть nil.
func NewClient(db Querier, m *metrics.Metrics) *Client {
	return &Client{db: db, metrics: m}
}

const (
	sqlEntryBySession = `SELECT get_room_entry_by_session(p_session_id => $1)::json`
	sqlLeaderboard    = `SELECT get_room_leaderboard(p_room_id => $1, p_user_id => $2)::json`
	sqlJoinRoom       = `SELECT join_room(p_room_id => $1, p_reveal_id => $2, p_user_id => $3)::json`
	sqlLeaveRoom      = `SELECT leave_room(p_room_id => $1, p_reveal_id => $2, p_user_id => $3)::json`
	sqlClaim          = `SELECT claim_redemption(p_room_id => $1, p_user_id => $2)::json`
	sqlVerifyDraw     = `SELECT verify_lottery_draw(p_draw_id => $1)::json`
	sqlRefund         = `SELECT request_room_refund(p_room_id => $1, p_user_id => $2)::json`
	sqlConvert        = `SELECT convert_to_credits(p_room_id => $1, p_user_id => $2)::json`
	sqlRevealMystery  = `SELECT reveal_mystery_product(p_room_id => $1)::json`
	sqlRoomDraw       = `
		SELECT row_to_json(d) FROM (
			SELECT id, room_id, total_tickets,
			       winning_ticket_number AS winning_ticket,
			       winner_user_id, server_seed, client_seed, drawn_at
			FROM lottery_draws
			WHERE room_id = $1
			ORDER BY drawn_at DESC
			LIMIT 1
		) d`
)

// call выполняет RPC и декодирует JSON в out.
func (c *Client) call(ctx context.Context, rpc, sql string, out any, args ...any) (err error) {
	started := time.Now()
	defer func() { c.metrics.ObserveLedgerCall(rpc, started, err) }()

	var raw []byte
	if err := c.db.QueryRow(ctx, sql, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pgx.ErrNoRows
		}
		return fmt.Errorf("ledger: %s: %w", rpc, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: %s вернул NULL", ErrMalformedResponse, rpc)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, rpc, err)
	}
	return nil
}

// rejected превращает success=false в ошибку с текстом сервера.
func rejected(rpc, msg string) error {
	if msg == "" {
		return fmt.Errorf("%w: %s", common.ErrRequestRejected, rpc)
	}
	return fmt.Errorf("%w: %s", common.ErrRequestRejected, msg)
}

// GetRoomEntryBySession ищет запись, созданную по checkout-сессии.
// success=false или отсутствие room — ErrNotReady.
func (c *Client) GetRoomEntryBySession(ctx context.Context, sessionID string) (*EntrySession, error) {
	var resp EntrySession
	if err := c.call(ctx, "get_room_entry_by_session", sqlEntryBySession, &resp, sessionID); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Room == nil {
		return nil, ErrNotReady
	}
	if resp.Room.ID == "" {
		return nil, fmt.Errorf("%w: room без id", ErrMalformedResponse)
	}
	return &resp, nil
}

// GetRoomLeaderboard возвращает полный снимок таблицы лидеров для зрителя.
func (c *Client) GetRoomLeaderboard(ctx context.Context, roomID string, userID int64) (*Leaderboard, error) {
	var resp Leaderboard
	if err := c.call(ctx, "get_room_leaderboard", sqlLeaderboard, &resp, roomID, userID); err != nil {
		return nil, err
	}
	if resp.Room.ID == "" {
		return nil, fmt.Errorf("%w: leaderboard без room", ErrMalformedResponse)
	}
	if resp.TotalEntries == 0 {
		for _, e := range resp.Entries {
			resp.TotalEntries += e.Entries
		}
	}
	return &resp, nil
}

// JoinRoom ставит карту (reveal) в лот.
func (c *Client) JoinRoom(ctx context.Context, roomID, revealID string, userID int64) (*EntrySummary, error) {
	var resp EntrySummary
	if err := c.call(ctx, "join_room", sqlJoinRoom, &resp, roomID, revealID, userID); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, rejected("join_room", firstNonEmpty(resp.Error, resp.Message))
	}
	return &resp, nil
}

// LeaveRoom снимает карту из лота.
func (c *Client) LeaveRoom(ctx context.Context, roomID, revealID string, userID int64) (*EntrySummary, error) {
	var resp EntrySummary
	if err := c.call(ctx, "leave_room", sqlLeaveRoom, &resp, roomID, revealID, userID); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, rejected("leave_room", firstNonEmpty(resp.Error, resp.Message))
	}
	return &resp, nil
}

// ClaimRedemption — победитель забирает приз.
func (c *Client) ClaimRedemption(ctx context.Context, roomID string, userID int64) (*Redemption, error) {
	var resp Redemption
	if err := c.call(ctx, "claim_redemption", sqlClaim, &resp, roomID, userID); err != nil {
		return nil, err
	}
	if !resp.Success && !resp.Redeemed && !resp.RequiresPayment {
		return nil, rejected("claim_redemption", resp.Error)
	}
	return &resp, nil
}

// VerifyLotteryDraw возвращает опубликованные сиды и результат серверной проверки.
func (c *Client) VerifyLotteryDraw(ctx context.Context, drawID string) (*DrawVerification, error) {
	var resp DrawVerification
	if err := c.call(ctx, "verify_lottery_draw", sqlVerifyDraw, &resp, drawID); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, common.ErrDrawNotFound
	}
	return &resp, nil
}

// RequestRoomRefund — проигравший просит вернуть деньги.
func (c *Client) RequestRoomRefund(ctx context.Context, roomID string, userID int64) (*RefundResult, error) {
	var resp RefundResult
	if err := c.call(ctx, "request_room_refund", sqlRefund, &resp, roomID, userID); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, rejected("request_room_refund", firstNonEmpty(resp.Error, resp.Message))
	}
	return &resp, nil
}

// ConvertToCredits — проигравший меняет траты на кредиты.
func (c *Client) ConvertToCredits(ctx context.Context, roomID string, userID int64) (*CreditsResult, error) {
	var resp CreditsResult
	if err := c.call(ctx, "convert_to_credits", sqlConvert, &resp, roomID, userID); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, rejected("convert_to_credits", firstNonEmpty(resp.Error, resp.Message))
	}
	return &resp, nil
}

// RevealMysteryProduct открывает приз «тёмного» лота.
func (c *Client) RevealMysteryProduct(ctx context.Context, roomID string) (*Product, error) {
	var resp MysteryProduct
	if err := c.call(ctx, "reveal_mystery_product", sqlRevealMystery, &resp, roomID); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Product == nil {
		return nil, rejected("reveal_mystery_product", resp.Error)
	}
	return resp.Product, nil
}

// GetRoomDraw читает последнюю опубликованную запись розыгрыша.
func (c *Client) GetRoomDraw(ctx context.Context, roomID string) (*Draw, error) {
	var d Draw
	if err := c.call(ctx, "get_room_draw", sqlRoomDraw, &d, roomID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrDrawNotFound
		}
		return nil, err
	}
	if d.TotalTickets <= 0 || d.WinningTicket < 1 || d.WinningTicket > d.TotalTickets {
		return nil, fmt.Errorf("%w: билет %d вне [1, %d]", ErrMalformedResponse, d.WinningTicket, d.TotalTickets)
	}
	return &d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
