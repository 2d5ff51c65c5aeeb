package handler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"match-market/internal/events"
	"match-market/internal/market"
	"match-market/internal/model"
)

// Usage errors for command arguments.
var (
	ErrBetUsage    = errors.New("usage: /bet <team|bracket> <amount>")
	ErrMarketUsage = errors.New("usage: /market <game_id>")
)

const divider = "━━━━━━━━━━━━━━━"

// FormatAmount renders money without trailing zeros for whole amounts.
func FormatAmount(d decimal.Decimal) string {
	if d.IsInteger() {
		return d.String()
	}
	return d.StringFixed(2)
}

// ParseBetArgs turns "/bet <selection...> <amount>" arguments into a draft.
// The last argument is the amount; everything before it is the selection,
// so team names may contain spaces.
func ParseBetArgs(args []string) (market.Draft, error) {
	if len(args) < 2 {
		return market.Draft{}, ErrBetUsage
	}
	last := len(args) - 1
	return market.Draft{
		Prediction: strings.Join(args[:last], " "),
		Amount:     args[last],
	}, nil
}

// FormatWager renders one feed line.
func FormatWager(w model.Wager) string {
	name := w.DisplayName
	if name == "" {
		name = "anonymous"
	}
	label := "?"
	if w.Prediction != nil {
		label = w.Prediction.Label()
	}
	return fmt.Sprintf("%s · %s on %s · %s", name, FormatAmount(w.Amount), label, w.CreatedAt.UTC().Format(time.TimeOnly))
}

// FormatFeed renders up to limit wagers, newest first as given.
func FormatFeed(wagers []model.Wager, limit int) string {
	if len(wagers) == 0 {
		return "No bets yet."
	}
	var b strings.Builder
	b.WriteString("📜 Recent bets\n")
	for i, w := range wagers {
		if i == limit {
			fmt.Fprintf(&b, "… and %d more", len(wagers)-limit)
			break
		}
		b.WriteString(FormatWager(w))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatVolume renders the volume snapshot for a game.
func FormatVolume(game *model.Game, v market.VolumeSnapshot) string {
	if game == nil || game.Type != model.GameTypeWin {
		return fmt.Sprintf("📊 Volume: %s", FormatAmount(v.Total))
	}
	return fmt.Sprintf("📊 Volume: %s\n%s: %s\n%s: %s",
		FormatAmount(v.Total),
		game.TeamA, FormatAmount(v.SideA),
		game.TeamB, FormatAmount(v.SideB),
	)
}

// FormatBrackets lists the score brackets with their indexes.
func FormatBrackets() string {
	var b strings.Builder
	b.WriteString("🎯 Score brackets\n")
	for i, label := range model.ScoreBrackets() {
		fmt.Fprintf(&b, "%d. %s\n", i+1, label)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatView renders a whole market session.
func FormatView(gameID string, v market.View, feedLimit int) string {
	if v.NotFound {
		return fmt.Sprintf("❌ Game %s not found", gameID)
	}
	if v.Game == nil {
		msg := fmt.Sprintf("⏳ Game %s could not be loaded, try /refresh", gameID)
		if v.Error != "" {
			msg += "\n⚠️ " + v.Error
		}
		return msg
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🏟 %s [%s] (%s)\n", v.Game.Title(), v.Game.ID, v.Game.Status)
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "💰 Balance: %s\n", FormatAmount(v.Balance))
	b.WriteString(FormatVolume(v.Game, v.Volume) + "\n")
	b.WriteString(divider + "\n")
	b.WriteString(FormatFeed(v.Wagers, feedLimit))

	if !v.Game.IsLive() {
		b.WriteString("\n\n🔒 Betting is closed for this game.")
	} else if v.Game.Type == model.GameTypeWin {
		fmt.Fprintf(&b, "\n\nBet with /bet <%s|%s> <amount>", v.Game.TeamA, v.Game.TeamB)
	} else {
		b.WriteString("\n\nBet with /bet <bracket 1-11> <amount>, see /brackets")
	}

	if v.Error != "" {
		b.WriteString("\n⚠️ " + v.Error)
	}
	return b.String()
}

// FormatAccepted confirms a stored wager.
func FormatAccepted(w *model.Wager, v market.View) string {
	return fmt.Sprintf("✅ Bet placed: %s on %s\n💰 Balance: %s\n%s",
		FormatAmount(w.Amount), w.Prediction.Label(), FormatAmount(v.Balance), FormatVolume(v.Game, v.Volume))
}

// FormatFeedEvent announces another participant's wager.
func FormatFeedEvent(e events.WagerPlaced) string {
	name := e.DisplayName
	if name == "" {
		name = "someone"
	}
	amount, err := decimal.NewFromString(e.Amount)
	shown := e.Amount
	if err == nil {
		shown = FormatAmount(amount)
	}
	return fmt.Sprintf("🔔 %s bet %s on %s [%s]", name, shown, e.Label(), e.GameID)
}

// FormatHistory renders ledger entries.
func FormatHistory(txs []*model.Transaction) string {
	if len(txs) == 0 {
		return "No balance history yet."
	}
	var b strings.Builder
	b.WriteString("🧾 Balance history\n")
	for _, tx := range txs {
		sign := ""
		if tx.Amount.IsPositive() {
			sign = "+"
		}
		desc := string(tx.Type)
		if tx.Description != nil && *tx.Description != "" {
			desc = *tx.Description
		}
		fmt.Fprintf(&b, "%s%s · %s · %s\n", sign, FormatAmount(tx.Amount), desc, tx.CreatedAt.UTC().Format(time.DateTime))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatGames renders the live game list.
func FormatGames(games []*model.Game) string {
	if len(games) == 0 {
		return "No live markets right now."
	}
	var b strings.Builder
	b.WriteString("🏟 Live markets\n")
	for _, g := range games {
		fmt.Fprintf(&b, "%s · %s (%s)\n", g.ID, g.Title(), g.Type)
	}
	b.WriteString("Open one with /market <game_id>")
	return b.String()
}
