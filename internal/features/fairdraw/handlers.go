package fairdraw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lot-bot/internal/bot/sender"
	"serotonyl.ru/lot-bot/internal/common"
)

// Handler обрабатывает команду /verify и кнопку «Проверить» в лоте.
type Handler struct {
	service *Service
	msg     sender.Messenger
}

// NewHandler создаёт обработчик проверки.
func NewHandler(service *Service, msg sender.Messenger) *Handler {
	return &Handler{service: service, msg: msg}
}

// HandleVerify — /verify <draw_id>.
func (h *Handler) HandleVerify(ctx context.Context, chatID int64, args []string) {
	if len(args) == 0 {
		h.send(ctx, chatID, "Использование: /verify <id розыгрыша>")
		return
	}
	drawID, err := common.ParseUUID(args[0], common.ErrInvalidDrawID)
	if err != nil {
		h.send(ctx, chatID, "❌ "+err.Error())
		return
	}

	report, err := h.service.VerifyDraw(ctx, drawID)
	h.reply(ctx, chatID, report, err)
}

// HandleRoomVerify проверяет последний розыгрыш лота.
func (h *Handler) HandleRoomVerify(ctx context.Context, chatID int64, roomID string) {
	report, err := h.service.VerifyRoom(ctx, roomID)
	h.reply(ctx, chatID, report, err)
}

func (h *Handler) reply(ctx context.Context, chatID int64, report *Report, err error) {
	if err != nil {
		if errors.Is(err, common.ErrDrawNotFound) {
			h.send(ctx, chatID, "❌ "+common.ErrDrawNotFound.Error())
			return
		}
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка проверки розыгрыша")
		h.send(ctx, chatID, "❌ Не удалось проверить розыгрыш, попробуйте позже")
		return
	}
	h.send(ctx, chatID, FormatReport(report))
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) {
	_, _ = h.msg.Send(ctx, chatID, text, nil)
}

// FormatReport собирает текст отчёта.
//
//	🛡 Проверка розыгрыша 5f0c2e7a
//
//	Server seed: abc123
//	Client seed: xyz789
//	SHA256: 3427b184ddea…
//	Билетов: 500
//
//	Заявлен билет: №81
//	Пересчитан билет: №81
//	✅ Розыгрыш честный
func FormatReport(r *Report) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🛡 Проверка розыгрыша %s\n\n", common.ShortID(r.DrawID)))
	sb.WriteString(fmt.Sprintf("Server seed: %s\n", r.ServerSeed))
	sb.WriteString(fmt.Sprintf("Client seed: %s\n", r.ClientSeed))
	sb.WriteString(fmt.Sprintf("Nonce: %s\n", Nonce))
	sb.WriteString(fmt.Sprintf("SHA256: %s\n", r.Digest))
	sb.WriteString(fmt.Sprintf("Билетов: %s\n", common.FormatNumber(r.TotalTickets)))
	if !r.DrawnAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Проведён: %s\n", common.FormatDateTime(r.DrawnAt)))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Заявлен билет: №%d\n", r.Claimed))
	sb.WriteString(fmt.Sprintf("Пересчитан билет: №%d\n", r.Recomputed))

	if r.Valid {
		sb.WriteString("✅ Розыгрыш честный")
	} else {
		sb.WriteString("⚠️ ПРОВЕРКА НЕ ПРОЙДЕНА: билеты не совпадают")
	}
	if r.ServerValid != nil && *r.ServerValid != r.Valid {
		sb.WriteString("\n(вердикт сервера отличается от пересчёта)")
	}
	sb.WriteString(fmt.Sprintf("\n\nФормула: SHA256(server+client+\"%s\"), первые 8 hex mod билетов + 1", Nonce))
	return sb.String()
}
