package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"match-market/internal/config"
	"match-market/internal/market"
	"match-market/internal/pkg/lock"
	"match-market/internal/service"
)

const (
	noSessionReply = "ℹ️ No market open. Use /market <game_id> first."
	maxListedGames = 20
)

// MarketHandler drives one market session per user from chat commands.
type MarketHandler struct {
	accountService *service.AccountService
	gameService    *service.GameService
	sessions       *SessionRegistry
	feedLimit      int
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(accountService *service.AccountService, gameService *service.GameService, sessions *SessionRegistry, cfg config.MarketConfig) *MarketHandler {
	return &MarketHandler{
		accountService: accountService,
		gameService:    gameService,
		sessions:       sessions,
		feedLimit:      cfg.FeedLimit,
	}
}

// withUser serialises the user's commands and maps a lock timeout to a reply.
func (h *MarketHandler) withUser(ctx context.Context, c tele.Context, fn func() error) error {
	err := h.sessions.WithUser(ctx, c.Sender().ID, fn)
	if errors.Is(err, lock.ErrLockTimeout) {
		return c.Reply("⏳ Still working on your previous command, please wait")
	}
	return err
}

// HandleGames handles /games: lists live markets.
func (h *MarketHandler) HandleGames(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	games, err := h.gameService.ListLive(ctx, maxListedGames)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list live games")
		return c.Reply("❌ Could not load markets, please try again later")
	}
	return c.Reply(FormatGames(games))
}

// HandleMarket handles /market <game_id>: opens a session on the game,
// replacing any session the user already had.
func (h *MarketHandler) HandleMarket(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	args := c.Args()
	if len(args) != 1 {
		return c.Reply("❌ " + ErrMarketUsage.Error())
	}
	gameID := args[0]

	ctx, cancel := commandContext()
	defer cancel()

	name := displayName(sender)
	if _, _, err := h.accountService.EnsureUser(ctx, userKey(sender), name); err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to ensure user")
		return c.Reply("❌ Could not load your account, please try again later")
	}

	var chatID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}

	return h.withUser(ctx, c, func() error {
		s := h.sessions.Open(ctx, sender.ID, chatID, name, gameID)
		return c.Reply(FormatView(gameID, s.View(), h.feedLimit))
	})
}

// HandleBet handles /bet <team|bracket> <amount>.
func (h *MarketHandler) HandleBet(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	draft, err := ParseBetArgs(c.Args())
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}

	ctx, cancel := commandContext()
	defer cancel()

	return h.withUser(ctx, c, func() error {
		s, ok := h.sessions.Get(sender.ID)
		if !ok {
			return c.Reply(noSessionReply)
		}

		wager, err := s.Submit(ctx, draft)
		if err != nil {
			return c.Reply("❌ " + market.UserMessage(err))
		}
		return c.Reply(FormatAccepted(wager, s.View()))
	})
}

// HandleVolume handles /volume.
func (h *MarketHandler) HandleVolume(c tele.Context) error {
	return h.withSession(c, func(s *market.Session) error {
		v := s.View()
		if v.Game == nil {
			return c.Reply(FormatView(s.GameID(), v, h.feedLimit))
		}
		return c.Reply(fmt.Sprintf("🏟 %s\n%s", v.Game.Title(), FormatVolume(v.Game, v.Volume)))
	})
}

// HandleFeed handles /feed.
func (h *MarketHandler) HandleFeed(c tele.Context) error {
	return h.withSession(c, func(s *market.Session) error {
		return c.Reply(FormatFeed(s.View().Wagers, h.feedLimit))
	})
}

// HandleRefresh handles /refresh: reloads game, balance and wagers.
func (h *MarketHandler) HandleRefresh(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := commandContext()
	defer cancel()

	return h.withUser(ctx, c, func() error {
		s, ok := h.sessions.Get(sender.ID)
		if !ok {
			return c.Reply(noSessionReply)
		}
		if err := s.Load(ctx); err != nil {
			return c.Reply(noSessionReply)
		}
		return c.Reply(FormatView(s.GameID(), s.View(), h.feedLimit))
	})
}

// HandleClose handles /close.
func (h *MarketHandler) HandleClose(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := commandContext()
	defer cancel()

	return h.withUser(ctx, c, func() error {
		if !h.sessions.Close(sender.ID) {
			return c.Reply(noSessionReply)
		}
		return c.Reply("👋 Market closed.")
	})
}

// HandleBrackets handles /brackets.
func (h *MarketHandler) HandleBrackets(c tele.Context) error {
	return c.Reply(FormatBrackets())
}

func (h *MarketHandler) withSession(c tele.Context, fn func(s *market.Session) error) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	s, ok := h.sessions.Get(sender.ID)
	if !ok {
		return c.Reply(noSessionReply)
	}
	return fn(s)
}
