package leaderboard

import "serotonyl.ru/lot-bot/internal/ledger"

// Процентильные группы.
const (
	BandS = "S" // топ 10%
	BandA = "A" // 11-30%
	BandB = "B" // 31-60%
	BandC = "C" // 61-100%
)

// BandForRank вычисляет группу по месту, если сервер её не прислал.
func BandForRank(rank, total int) string {
	if rank <= 0 || total <= 0 {
		return BandC
	}
	pct := float64(rank) / float64(total) * 100
	switch {
	case pct <= 10:
		return BandS
	case pct <= 30:
		return BandA
	case pct <= 60:
		return BandB
	default:
		return BandC
	}
}

// BandLabel — подпись группы для карточки.
func BandLabel(band string) string {
	switch band {
	case BandS:
		return "топ 10%"
	case BandA:
		return "11-30%"
	case BandB:
		return "31-60%"
	default:
		return "61-100%"
	}
}

// fillBands дописывает недостающие группы в снимок.
func fillBands(board *ledger.Leaderboard) {
	total := len(board.Entries)
	for i := range board.Entries {
		e := &board.Entries[i]
		if e.Band == "" {
			e.Band = BandForRank(e.Rank, total)
		}
	}
	if board.MyEntry != nil && board.MyEntry.Band == "" {
		board.MyEntry.Band = BandForRank(board.MyEntry.Rank, total)
	}
}
