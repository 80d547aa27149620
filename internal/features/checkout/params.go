// Package checkout превращает возврат из оплаты в подтверждённую запись в лоте.
//
// После оплаты браузер приходит на /checkout/return с параметрами
// room_success=true&session_id=...&room_id=... (или room_canceled=true).
// Controller опрашивает бэкенд, пока запись не появится, но не дольше
// MaxAttempts попыток, и сообщает результат через View.
package checkout

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Параметры возврата из оплаты.
const (
	ParamSuccess  = "room_success"
	ParamCanceled = "room_canceled"
	ParamSession  = "session_id"
	ParamRoom     = "room_id"
	// Кому принадлежит возврат и подпись этой пары
	ParamTelegram  = "tg"
	ParamSignature = "sig"
)

// Kind — тип возврата.
type Kind int

const (
	KindNone Kind = iota
	KindSuccess
	KindCanceled
)

// Return — разобранные параметры возврата.
type Return struct {
	Kind      Kind
	SessionID string
	RoomID    string
}

// ParseReturn разбирает query-параметры. Отмена важнее успеха.
// Успех без session_id считается пустым возвратом.
func ParseReturn(q url.Values) Return {
	ret := Return{
		SessionID: strings.TrimSpace(q.Get(ParamSession)),
		RoomID:    strings.TrimSpace(q.Get(ParamRoom)),
	}
	switch {
	case q.Get(ParamCanceled) == "true":
		ret.Kind = KindCanceled
	case q.Get(ParamSuccess) == "true" && ret.SessionID != "":
		ret.Kind = KindSuccess
	}
	return ret
}

// StripReturnParams удаляет все параметры возврата из URL,
// чтобы повторное открытие ссылки ничего не запускало.
func StripReturnParams(u *url.URL) {
	q := u.Query()
	for _, p := range []string{ParamSuccess, ParamCanceled, ParamSession, ParamRoom} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
}

// BuildReturnURL собирает подписанную ссылку возврата для пользователя.
// Нужна оператору для ручной проверки и для настройки кассы.
func BuildReturnURL(base, secret string, telegramID int64, roomID, sessionID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("некорректный адрес возврата: %w", err)
	}
	q := u.Query()
	q.Set(ParamSuccess, "true")
	q.Set(ParamSession, sessionID)
	q.Set(ParamRoom, roomID)
	q.Set(ParamTelegram, strconv.FormatInt(telegramID, 10))
	q.Set(ParamSignature, Sign(secret, telegramID, roomID))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
