package ledger

import "time"

// RoomStatus — стадия жизненного цикла лота. Меняет её только бэкенд.
type RoomStatus string

const (
	StatusOpen      RoomStatus = "OPEN"
	StatusLocked    RoomStatus = "LOCKED"
	StatusFunded    RoomStatus = "FUNDED"
	StatusDrawing   RoomStatus = "DRAWING"
	StatusSettled   RoomStatus = "SETTLED"
	StatusExpired   RoomStatus = "EXPIRED"
	StatusRefunding RoomStatus = "REFUNDING"
	StatusClosed    RoomStatus = "CLOSED"
)

// Settled — розыгрыш проведён и запись опубликована.
func (s RoomStatus) Settled() bool {
	return s == StatusSettled || s == StatusClosed
}

// AcceptsEntries — в лот ещё можно войти.
func (s RoomStatus) AcceptsEntries() bool {
	return s == StatusOpen
}

// Title возвращает статус по-русски.
func (s RoomStatus) Title() string {
	switch s {
	case StatusOpen:
		return "открыт"
	case StatusLocked:
		return "закрыт для входа"
	case StatusFunded:
		return "собран"
	case StatusDrawing:
		return "идёт розыгрыш"
	case StatusSettled:
		return "разыгран"
	case StatusExpired:
		return "истёк"
	case StatusRefunding:
		return "возврат средств"
	case StatusClosed:
		return "закрыт"
	default:
		return string(s)
	}
}

// Tier — класс редкости лота.
type Tier string

const (
	TierIcon   Tier = "ICON"
	TierRare   Tier = "RARE"
	TierGrail  Tier = "GRAIL"
	TierMythic Tier = "MYTHIC"
)

// Rank возвращает порядковый номер класса (0 для неизвестного).
func (t Tier) Rank() int {
	switch t {
	case TierIcon:
		return 1
	case TierRare:
		return 2
	case TierGrail:
		return 3
	case TierMythic:
		return 4
	default:
		return 0
	}
}

// Room — снимок лота на момент запроса.
type Room struct {
	ID                 string     `json:"id"`
	Tier               Tier       `json:"tier"`
	Status             RoomStatus `json:"status"`
	Category           *string    `json:"category"`
	IsMystery          bool       `json:"is_mystery"`
	MysteryRevealed    bool       `json:"is_mystery_revealed"`
	EscrowBalanceCents int64      `json:"escrow_balance_cents"`
	EscrowTargetCents  int64      `json:"escrow_target_cents"`
	TierCapCents       int64      `json:"tier_cap_cents"`
	MinParticipants    int        `json:"min_participants"`
	MaxParticipants    int        `json:"max_participants"`
	ParticipantCount   int        `json:"participant_count"`
	DeadlineAt         *time.Time `json:"deadline_at"`
	LockAt             *time.Time `json:"lock_at"`
	EndAt              *time.Time `json:"end_at"`
	WinnerEntryID      *string    `json:"winner_entry_id"`
	WinnerUserID       *int64     `json:"winner_user_id"`
}

// Product — приз лота.
type Product struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Brand          string  `json:"brand"`
	Model          string  `json:"model"`
	ImageURL       *string `json:"image_url"`
	RetailValueUSD float64 `json:"retail_value_usd"`
	Category       string  `json:"category"`
	Band           string  `json:"band"`
}

// EntrySession — ответ get_room_entry_by_session.
type EntrySession struct {
	Success          bool     `json:"success"`
	Error            string   `json:"error"`
	Room             *Room    `json:"room"`
	Product          *Product `json:"product"`
	TicketsPurchased int64    `json:"tickets_purchased"`
	UserTotalTickets int64    `json:"user_total_tickets"`
	TotalRoomTickets int64    `json:"total_room_tickets"`
	AmountCents      int64    `json:"amount_cents"`
}

// LeaderboardEntry — строка таблицы лидеров.
type LeaderboardEntry struct {
	Rank             int     `json:"rank"`
	EntryID          string  `json:"entry_id"`
	UserID           int64   `json:"user_id"`
	Username         string  `json:"username"`
	DisplayName      string  `json:"display_name"`
	RevealID         string  `json:"reveal_id"`
	PriorityScore    float64 `json:"priority_score"`
	Band             string  `json:"percentile_band"`
	Status           string  `json:"status"`
	Entries          int64   `json:"entries"`
	AmountSpentCents int64   `json:"amount_spent_cents"`
}

// Name возвращает отображаемое имя участника.
func (e LeaderboardEntry) Name() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	if e.Username != "" {
		return "@" + e.Username
	}
	return "участник"
}

// Leaderboard — ответ get_room_leaderboard. Снимок всегда заменяется целиком.
type Leaderboard struct {
	Room         Room               `json:"room"`
	Product      *Product           `json:"product"`
	Entries      []LeaderboardEntry `json:"leaderboard"`
	MyEntry      *LeaderboardEntry  `json:"my_entry"`
	TotalEntries int64              `json:"total_entries"`
	IsSealed     bool               `json:"is_sealed"`
}

// EntrySummary — ответ join_room / leave_room.
type EntrySummary struct {
	Success       bool    `json:"success"`
	Error         string  `json:"error"`
	Message       string  `json:"message"`
	EntryID       string  `json:"entry_id"`
	RevealID      string  `json:"reveal_id"`
	PriorityScore float64 `json:"priority_score"`
	Room          *Room   `json:"room"`
}

// Redemption — ответ claim_redemption.
type Redemption struct {
	Success           bool     `json:"success"`
	Error             string   `json:"error"`
	Redeemed          bool     `json:"redeemed"`
	RequiresPayment   bool     `json:"requires_payment"`
	PayCents          int64    `json:"pay_cents"`
	ProductValueCents int64    `json:"product_value_cents"`
	Product           *Product `json:"product"`
}

// DrawVerification — ответ verify_lottery_draw.
type DrawVerification struct {
	Success          bool      `json:"success"`
	DrawID           string    `json:"draw_id"`
	RoomID           string    `json:"room_id"`
	IsValid          bool      `json:"is_valid"`
	TotalTickets     int64     `json:"total_tickets"`
	WinningTicket    int64     `json:"winning_ticket"`
	DrawnAt          time.Time `json:"drawn_at"`
	ServerSeed       string    `json:"server_seed"`
	ClientSeed       string    `json:"client_seed"`
	VerificationHash string    `json:"verification_hash"`
}

// Draw — опубликованная запись розыгрыша лота.
type Draw struct {
	ID            string    `json:"id"`
	RoomID        string    `json:"room_id"`
	TotalTickets  int64     `json:"total_tickets"`
	WinningTicket int64     `json:"winning_ticket"`
	WinnerUserID  *int64    `json:"winner_user_id"`
	ServerSeed    string    `json:"server_seed"`
	ClientSeed    string    `json:"client_seed"`
	DrawnAt       time.Time `json:"drawn_at"`
}

// RefundResult — ответ request_room_refund.
type RefundResult struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	Message     string `json:"message"`
	RefundCents int64  `json:"refund_cents"`
}

// CreditsResult — ответ convert_to_credits.
type CreditsResult struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	Message        string `json:"message"`
	CreditsAwarded int64  `json:"credits_awarded"`
}

// MysteryProduct — ответ reveal_mystery_product.
type MysteryProduct struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Product *Product `json:"product"`
}
