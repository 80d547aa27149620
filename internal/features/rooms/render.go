package rooms

import (
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"serotonyl.ru/lot-bot/internal/common"
	"serotonyl.ru/lot-bot/internal/features/leaderboard"
	"serotonyl.ru/lot-bot/internal/ledger"
)

// CallbackPrefix — префикс кнопок карточки: rm:<действие>:<room_id>.
const CallbackPrefix = "rm"

const (
	actionRefresh = "refresh"
	actionClose   = "close"
	actionDraw    = "draw"
	actionVerify  = "verify"
)

// topSize — сколько строк таблицы показывать в карточке.
const topSize = 10

func callbackData(action, roomID string) string {
	return CallbackPrefix + ":" + action + ":" + roomID
}

func button(text, action, roomID string) telego.InlineKeyboardButton {
	return tu.InlineKeyboardButton(text).WithCallbackData(callbackData(action, roomID))
}

// renderRoom рисует карточку лота по снимку таблицы лидеров.
func renderRoom(board *ledger.Leaderboard, userID int64, opts Options) (string, *telego.InlineKeyboardMarkup) {
	room := board.Room
	var sb strings.Builder

	fmt.Fprintf(&sb, "🎟 Лот %s · %s\n", common.ShortID(room.ID), tierName(room.Tier))
	switch {
	case room.IsMystery && !room.MysteryRevealed:
		sb.WriteString("❓ Мистери-приз\n")
	case board.Product != nil:
		fmt.Fprintf(&sb, "🎁 %s\n", productTitle(board.Product))
	}
	fmt.Fprintf(&sb, "Статус: %s\n", room.Status.Title())
	if room.EscrowTargetCents > 0 {
		fmt.Fprintf(&sb, "💰 %s · %s из %s\n",
			common.FormatProgress(room.EscrowBalanceCents, room.EscrowTargetCents),
			common.FormatCents(room.EscrowBalanceCents), common.FormatCents(room.EscrowTargetCents))
	}
	fmt.Fprintf(&sb, "👥 %s", common.FormatNumber(int64(room.ParticipantCount)))
	sb.WriteString(" " + common.PluralizeParticipants(int64(room.ParticipantCount)))
	if room.MinParticipants > 0 {
		fmt.Fprintf(&sb, " (нужно от %d)", room.MinParticipants)
	}
	fmt.Fprintf(&sb, "\n🎟 Всего: %s\n", common.FormatTickets(board.TotalEntries))

	sb.WriteString("\n")
	if board.IsSealed {
		sb.WriteString("🔒 Таблица скрыта до розыгрыша\n")
	} else if len(board.Entries) == 0 {
		sb.WriteString("Пока никто не вошёл в лот\n")
	} else {
		sb.WriteString("🏆 Лидеры:\n")
		for i, e := range board.Entries {
			if i == topSize {
				fmt.Fprintf(&sb, "… и ещё %d\n", len(board.Entries)-topSize)
				break
			}
			marker := ""
			if e.UserID == userID {
				marker = " ← вы"
			}
			fmt.Fprintf(&sb, "%d. %s — %s · %s%s\n",
				e.Rank, e.Name(), common.FormatTickets(e.Entries), leaderboard.BandLabel(e.Band), marker)
		}
	}

	if me := board.MyEntry; me != nil {
		fmt.Fprintf(&sb, "\nВы: #%d · %s · шанс %s · %s\n",
			me.Rank, common.FormatTickets(me.Entries),
			common.FormatChance(me.Entries, board.TotalEntries), leaderboard.BandLabel(me.Band))
	}
	if room.Status.Settled() {
		sb.WriteString("\n🎯 Розыгрыш проведён")
	}

	rows := [][]telego.InlineKeyboardButton{
		tu.InlineKeyboardRow(
			button("🔄 Обновить", actionRefresh, room.ID),
			button("✖️ Закрыть", actionClose, room.ID),
		),
	}
	if room.Status.Settled() {
		if opts.OutcomeEnabled {
			rows = append(rows, tu.InlineKeyboardRow(button("🎰 Смотреть розыгрыш", actionDraw, room.ID)))
		}
		if opts.VerifyEnabled {
			rows = append(rows, tu.InlineKeyboardRow(button("🔍 Проверить честность", actionVerify, room.ID)))
		}
	}
	return strings.TrimRight(sb.String(), "\n"), tu.InlineKeyboard(rows...)
}

func tierName(t ledger.Tier) string {
	if t == "" {
		return "—"
	}
	name := strings.ToLower(string(t))
	return strings.ToUpper(name[:1]) + name[1:]
}

func productTitle(p *ledger.Product) string {
	title := p.Name
	if p.Brand != "" {
		title = p.Brand + " " + p.Name
	}
	if p.RetailValueUSD > 0 {
		title += fmt.Sprintf(" (%s)", common.FormatCents(int64(p.RetailValueUSD*100)))
	}
	return title
}
