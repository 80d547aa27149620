// Package fairdraw проверяет честность розыгрыша по опубликованным сидам.
//
// Формула (должна совпадать с серверной бит в бит):
//
//	digest  = SHA256(server_seed + client_seed + "0")
//	ticket  = uint32(hex(digest)[0:8]) mod total_tickets + 1
package fairdraw

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"serotonyl.ru/lot-bot/internal/common"
)

// Nonce — фиксированный суффикс протокола.
const Nonce = "0"

// Verification — результат локальной проверки.
// Пересчитанный билет показываем всегда, даже если проверка не прошла.
type Verification struct {
	Digest       string
	Recomputed   int64
	Claimed      int64
	TotalTickets int64
	Valid        bool
}

// Digest возвращает hex SHA256(server + client + nonce).
func Digest(serverSeed, clientSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed + clientSeed + Nonce))
	return hex.EncodeToString(sum[:])
}

// Recompute пересчитывает выигрышный билет в диапазоне [1, total].
func Recompute(serverSeed, clientSeed string, totalTickets int64) (int64, error) {
	if totalTickets <= 0 {
		return 0, common.ErrInvalidTotalTickets
	}
	if serverSeed == "" || clientSeed == "" {
		return 0, common.ErrEmptySeed
	}
	return ticketFromDigest(Digest(serverSeed, clientSeed), totalTickets), nil
}

func ticketFromDigest(digest string, totalTickets int64) int64 {
	// 8 hex-символов всегда влезают в uint32, ошибки тут быть не может
	v, _ := strconv.ParseUint(digest[:8], 16, 32)
	return int64(v%uint64(totalTickets)) + 1
}

// Verify сравнивает заявленный билет с пересчитанным.
func Verify(serverSeed, clientSeed string, totalTickets, claimed int64) (Verification, error) {
	recomputed, err := Recompute(serverSeed, clientSeed, totalTickets)
	if err != nil {
		return Verification{}, err
	}
	return Verification{
		Digest:       Digest(serverSeed, clientSeed),
		Recomputed:   recomputed,
		Claimed:      claimed,
		TotalTickets: totalTickets,
		Valid:        recomputed == claimed,
	}, nil
}
