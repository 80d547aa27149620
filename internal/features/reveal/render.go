package reveal

import (
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"serotonyl.ru/lot-bot/internal/common"
	"serotonyl.ru/lot-bot/internal/ledger"
)

// CallbackPrefix — префикс callback data кнопок показа: rv:<действие>:<id>.
const CallbackPrefix = "rv"

// Действия кнопок.
const (
	actionTap     = "tap"
	actionNext    = "next"
	actionDone    = "done"
	actionClaim   = "claim"
	actionClose   = "close"
	actionRefund  = "refund"
	actionCredits = "credits"
)

func callbackData(action, flowID string) string {
	return CallbackPrefix + ":" + action + ":" + flowID
}

func button(text, action, flowID string) telego.InlineKeyboardButton {
	return tu.InlineKeyboardButton(text).WithCallbackData(callbackData(action, flowID))
}

func productName(p *ledger.Product) string {
	if p == nil || p.Name == "" {
		return "приз"
	}
	if p.Brand != "" {
		return p.Brand + " " + p.Name
	}
	return p.Name
}

func tierTitle(t ledger.Tier) string {
	switch t {
	case ledger.TierIcon:
		return "Icon"
	case ledger.TierRare:
		return "Rare"
	case ledger.TierGrail:
		return "Grail"
	case ledger.TierMythic:
		return "Mythic"
	default:
		return string(t)
	}
}

// renderEntry рисует вскрытие купленных билетов.
func renderEntry(e *ledger.EntrySession, st EntryState, flowID string) (string, *telego.InlineKeyboardMarkup) {
	switch st.Phase {
	case EntryEmerge:
		return "🎴 Ваши билеты готовы!\n\nНажмите, чтобы открыть карту.",
			tu.InlineKeyboard(tu.InlineKeyboardRow(button("🎴 Открыть", actionTap, flowID)))
	case EntryReveal:
		return renderEntryStage(e, st.Stage, flowID)
	default:
		var sb strings.Builder
		sb.WriteString("✅ Вы в игре!\n\n")
		fmt.Fprintf(&sb, "🎁 %s\n", productName(e.Product))
		fmt.Fprintf(&sb, "🎟 Ваши билеты: %s из %s\n", common.FormatTickets(e.UserTotalTickets), common.FormatNumber(e.TotalRoomTickets))
		fmt.Fprintf(&sb, "📈 Шанс: %s\n", common.FormatChance(e.UserTotalTickets, e.TotalRoomTickets))
		fmt.Fprintf(&sb, "💳 Оплачено: %s\n\n", common.FormatCents(e.AmountCents))
		sb.WriteString("Таблица лидеров обновляется сама.")
		if st.Phase == EntryDone {
			return sb.String(), nil
		}
		return sb.String(), tu.InlineKeyboard(tu.InlineKeyboardRow(button("👌 Готово", actionDone, flowID)))
	}
}

func renderEntryStage(e *ledger.EntrySession, stage RevealStage, flowID string) (string, *telego.InlineKeyboardMarkup) {
	switch stage {
	case StagePause:
		return "🎴 …", nil
	case StageFlip:
		return "🔄 Карта переворачивается…", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🎴 %s\n", productName(e.Product))
	if e.Room != nil {
		fmt.Fprintf(&sb, "Класс лота: %s\n", tierTitle(e.Room.Tier))
	}
	if stage >= StageDetails {
		fmt.Fprintf(&sb, "\n🎟 %s\n", common.FormatTicketsDelta(e.TicketsPurchased))
		fmt.Fprintf(&sb, "📈 Шанс: %s", common.FormatChance(e.UserTotalTickets, e.TotalRoomTickets))
	}
	if stage < StageButtons {
		return sb.String(), nil
	}
	return sb.String(), tu.InlineKeyboard(tu.InlineKeyboardRow(button("Продолжить ➡️", actionNext, flowID)))
}

// renderOutcome рисует показ исхода лота.
func renderOutcome(in OutcomeInput, st OutcomeState, flowID string) (string, *telego.InlineKeyboardMarkup) {
	switch st.Phase {
	case OutcomeMystery:
		return renderMystery(in, st.Mystery), nil
	case OutcomeDraw:
		return renderDraw(in, st.Draw), nil
	case OutcomeWinnerReveal:
		if st.IsWinner {
			text := fmt.Sprintf("🏆 Поздравляем! Вы выиграли %s!\n\n🎯 Выигрышный билет №%s",
				productName(in.Product), common.FormatNumber(in.WinningTicket))
			return text, tu.InlineKeyboard(
				tu.InlineKeyboardRow(button("🏆 Забрать приз", actionClaim, flowID)),
				tu.InlineKeyboardRow(button("Закрыть", actionClose, flowID)),
			)
		}
		text := fmt.Sprintf("🏆 Победитель: %s\n🎁 Приз: %s\n🎯 Выигрышный билет №%s",
			in.WinnerName, productName(in.Product), common.FormatNumber(in.WinningTicket))
		return text, tu.InlineKeyboard(tu.InlineKeyboardRow(button("Закрыть", actionClose, flowID)))
	case OutcomeNonWinner:
		text := fmt.Sprintf("В этот раз не повезло.\n\nВы потратили %s в лоте «%s».\nЧто сделать с покупкой?",
			common.FormatCents(in.SpentCents), productName(in.Product))
		return text, tu.InlineKeyboard(
			tu.InlineKeyboardRow(button("💸 Вернуть деньги", actionRefund, flowID)),
			tu.InlineKeyboardRow(button("🪙 Обменять на кредиты", actionCredits, flowID)),
			tu.InlineKeyboardRow(button("Закрыть", actionClose, flowID)),
		)
	default:
		return fmt.Sprintf("🎯 Лот разыгран: билет №%s, победитель %s.",
			common.FormatNumber(in.WinningTicket), in.WinnerName), nil
	}
}

func renderMystery(in OutcomeInput, phase MysteryPhase) string {
	switch phase {
	case MysteryHidden:
		return "❓ Мистери-лот\n\nПриз пока скрыт…"
	case MysteryRevealing:
		return "✨ Раскрываем приз…"
	default:
		return fmt.Sprintf("🎁 Приз: %s", productName(in.Product))
	}
}

func renderDraw(in OutcomeInput, ds DrawState) string {
	switch ds.Phase {
	case DrawCountdown:
		if ds.Countdown > 0 {
			return fmt.Sprintf("🎰 Розыгрыш начнётся через %d…", ds.Countdown)
		}
		return "🎰 Поехали!"
	case DrawSpinning, DrawSlowing:
		return fmt.Sprintf("🎰 Билет №%s из %s",
			common.FormatNumber(ds.Ticket), common.FormatNumber(in.TotalTickets))
	default:
		return fmt.Sprintf("🎯 Выигрышный билет №%s!", common.FormatNumber(ds.Ticket))
	}
}
