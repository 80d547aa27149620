// Package members ведёт реестр пользователей бота: кто писал боту,
// когда последний раз заходил и какой лот открывал.
// models.go описывает структуры данных таблицы bot_users.
package members

import "time"

// Member — пользователь, хоть раз написавший боту в личку.
type Member struct {
	UserID     int64     `db:"user_id"`      // Telegram user ID
	Username   string    `db:"username"`     // @username (может быть пустым)
	FirstName  string    `db:"first_name"`   // Имя пользователя
	LastName   string    `db:"last_name"`    // Фамилия (может быть пустой)
	LastRoomID *string   `db:"last_room_id"` // Последний открытый лот
	FirstSeen  time.Time `db:"first_seen_at"`
	LastSeen   time.Time `db:"last_seen_at"`
}

// Profile — данные пользователя из апдейта Telegram.
type Profile struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

// DisplayName возвращает отображаемое имя пользователя.
// Если есть @username — возвращает его, иначе — имя + фамилию.
func (m *Member) DisplayName() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	name := m.FirstName
	if m.LastName != "" {
		name += " " + m.LastName
	}
	return name
}
