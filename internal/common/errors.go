// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import "errors"

// Ошибки аргументов команд
var (
	// ErrInvalidRoomID — идентификатор лота не является UUID
	ErrInvalidRoomID = errors.New("некорректный идентификатор лота")
	// ErrInvalidDrawID — идентификатор розыгрыша не является UUID
	ErrInvalidDrawID = errors.New("некорректный идентификатор розыгрыша")
	// ErrInvalidRevealID — идентификатор карты не является UUID
	ErrInvalidRevealID = errors.New("некорректный идентификатор карты")
)

// Ошибки лотов
var (
	// ErrRoomNotSettled — розыгрыш ещё не проведён
	ErrRoomNotSettled = errors.New("розыгрыш по лоту ещё не проведён")
	// ErrDrawNotFound — запись розыгрыша не опубликована
	ErrDrawNotFound = errors.New("розыгрыш не найден")
	// ErrRequestRejected — бэкенд отклонил запрос (success=false)
	ErrRequestRejected = errors.New("запрос отклонён сервером")
)

// Ошибки проверки розыгрыша
var (
	// ErrInvalidTotalTickets — число билетов должно быть положительным
	ErrInvalidTotalTickets = errors.New("число билетов должно быть больше нуля")
	// ErrEmptySeed — сид не опубликован
	ErrEmptySeed = errors.New("сид розыгрыша не опубликован")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является оператором
	ErrNotAdmin = errors.New("у вас нет прав оператора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)

// Ошибки сценариев показа
var (
	// ErrFlowNotFound — сценарий завершён или вытеснен новым
	ErrFlowNotFound = errors.New("кнопка устарела")
	// ErrActionUnavailable — действие недоступно на текущем шаге
	ErrActionUnavailable = errors.New("это действие сейчас недоступно")
	// ErrInvalidWinningTicket — выигрышный билет вне диапазона
	ErrInvalidWinningTicket = errors.New("выигрышный билет вне диапазона")
)
