package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Sign подписывает пару (telegram id, room id) для ссылки возврата.
func Sign(secret string, telegramID int64, roomID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(telegramID, 10)))
	mac.Write([]byte{0})
	mac.Write([]byte(roomID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature сравнивает подпись за постоянное время.
func VerifySignature(secret string, telegramID int64, roomID, sig string) bool {
	expected, err := hex.DecodeString(Sign(secret, telegramID, roomID))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}
