// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"match-market/internal/service"
)

const (
	commandTimeout = 10 * time.Second
	historyLimit   = 10
)

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

// displayName is the name shown next to a user's wagers.
func displayName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return strconv.FormatInt(u.ID, 10)
}

func userKey(u *tele.User) string {
	return strconv.FormatInt(u.ID, 10)
}

// AccountHandler handles account-related commands.
type AccountHandler struct {
	accountService *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// HandleStart handles the /start command.
// Creates an account with the initial balance if the user doesn't exist.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := commandContext()
	defer cancel()

	name := displayName(sender)
	user, created, err := h.accountService.EnsureUser(ctx, userKey(sender), name)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to ensure user")
		return c.Reply("❌ Could not create your account, please try again later")
	}

	if created {
		return c.Reply(fmt.Sprintf(
			"🎉 Welcome %s!\n\n"+
				"Your account is ready with %s coins.\n\n"+
				"Commands:\n"+
				"/games - live markets\n"+
				"/market <game_id> - open a market\n"+
				"/bet <team|bracket> <amount> - place a bet\n"+
				"/volume - market volume\n"+
				"/feed - recent bets\n"+
				"/brackets - score brackets\n"+
				"/refresh - reload the market\n"+
				"/close - leave the market\n"+
				"/bettors - top bettors in this market\n"+
				"/top - richest players\n"+
				"/balance - your balance\n"+
				"/history - balance history",
			name, FormatAmount(user.Balance),
		))
	}

	return c.Reply(fmt.Sprintf("👋 Welcome back %s!\n\n💰 Balance: %s", name, FormatAmount(user.Balance)))
}

// HandleBalance handles the /balance command.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := commandContext()
	defer cancel()

	// EnsureUser both registers newcomers and returns the current balance.
	user, _, err := h.accountService.EnsureUser(ctx, userKey(sender), displayName(sender))
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to get balance")
		return c.Reply("❌ Could not load your balance, please try again later")
	}

	return c.Reply(fmt.Sprintf("💰 Balance: %s", FormatAmount(user.Balance)))
}

// HandleHistory handles the /history command.
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx, cancel := commandContext()
	defer cancel()

	txs, err := h.accountService.History(ctx, userKey(sender), historyLimit)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to get history")
		return c.Reply("❌ Could not load your history, please try again later")
	}
	return c.Reply(FormatHistory(txs))
}
