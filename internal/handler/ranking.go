package handler

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"match-market/internal/market"
	"match-market/internal/model"
	"match-market/internal/service"
)

const leaderboardSize = 10

var medals = []string{"🥇", "🥈", "🥉"}

func rankLabel(i int) string {
	if i < len(medals) {
		return medals[i]
	}
	return fmt.Sprintf("%d.", i+1)
}

// FormatTopUsers renders the balance leaderboard.
func FormatTopUsers(users []*model.User) string {
	if len(users) == 0 {
		return "🏆 No players yet."
	}
	var b strings.Builder
	b.WriteString("🏆 Top balances\n")
	for i, u := range users {
		name := u.DisplayName
		if name == "" {
			name = "User" + u.UserID
		}
		fmt.Fprintf(&b, "%s %s: %s\n", rankLabel(i), name, FormatAmount(u.Balance))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatBettors renders the stake leaderboard of one market.
func FormatBettors(game *model.Game, ranks []service.BettorRank) string {
	title := "this market"
	if game != nil {
		title = game.Title()
	}
	if len(ranks) == 0 {
		return fmt.Sprintf("🎯 No bets on %s yet.", title)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🎯 Top bettors · %s\n", title)
	for i, r := range ranks {
		name := r.DisplayName
		if name == "" {
			name = "anonymous"
		}
		fmt.Fprintf(&b, "%s %s: %s (%d bets)\n", rankLabel(i), name, FormatAmount(r.Staked), r.Wagers)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RankingHandler handles leaderboard commands.
type RankingHandler struct {
	rankingService *service.RankingService
	sessions       *SessionRegistry
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(rankingService *service.RankingService, sessions *SessionRegistry) *RankingHandler {
	return &RankingHandler{
		rankingService: rankingService,
		sessions:       sessions,
	}
}

// HandleTop handles /top.
func (h *RankingHandler) HandleTop(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	users, err := h.rankingService.TopByBalance(ctx, leaderboardSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load leaderboard")
		return c.Reply("❌ Could not load the leaderboard, please try again later")
	}
	return c.Reply(FormatTopUsers(users))
}

// HandleBettors handles /bettors: ranks participants of the open market
// from the wager list the session already holds.
func (h *RankingHandler) HandleBettors(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	s, ok := h.sessions.Get(sender.ID)
	if !ok {
		return c.Reply(noSessionReply)
	}
	return c.Reply(bettorsReply(s))
}

func bettorsReply(s *market.Session) string {
	v := s.View()
	return FormatBettors(v.Game, service.RankBettors(v.Wagers, leaderboardSize))
}
