package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"match-market/internal/repository"
	"match-market/internal/service"
)

// ErrAdminAddUsage is returned for malformed /admin_add arguments.
var ErrAdminAddUsage = errors.New("usage: /admin_add <user_id> <amount>")

// ParseAdminAddArgs parses "<user_id> <amount>". The amount may be negative.
func ParseAdminAddArgs(args []string) (string, decimal.Decimal, error) {
	if len(args) != 2 {
		return "", decimal.Zero, ErrAdminAddUsage
	}
	if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
		return "", decimal.Zero, fmt.Errorf("invalid user id %q", args[0])
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(args[1]))
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("invalid amount %q", args[1])
	}
	return args[0], amount, nil
}

// AdminHandler handles operator commands. Access is checked by AdminMiddleware.
type AdminHandler struct {
	accountService *service.AccountService
	gameService    *service.GameService
	sessions       *SessionRegistry
}

// NewAdminHandler creates a new AdminHandler. sessions may be nil.
func NewAdminHandler(accountService *service.AccountService, gameService *service.GameService, sessions *SessionRegistry) *AdminHandler {
	return &AdminHandler{
		accountService: accountService,
		gameService:    gameService,
		sessions:       sessions,
	}
}

// HandleGameWin handles /admin_game_win <id> <teamA> <teamB>.
func (h *AdminHandler) HandleGameWin(c tele.Context) error {
	args := c.Args()
	if len(args) != 3 {
		return c.Reply("❌ usage: /admin_game_win <id> <teamA> <teamB>")
	}
	ctx, cancel := commandContext()
	defer cancel()

	game, err := h.gameService.CreateWinGame(ctx, args[0], args[1], args[2])
	if err != nil {
		return c.Reply("❌ " + adminError(err))
	}
	return c.Reply(fmt.Sprintf("✅ Win market %s created: %s (%s)", game.ID, game.Title(), game.Status))
}

// HandleGameScore handles /admin_game_score <id> <team>.
func (h *AdminHandler) HandleGameScore(c tele.Context) error {
	args := c.Args()
	if len(args) < 2 {
		return c.Reply("❌ usage: /admin_game_score <id> <team>")
	}
	ctx, cancel := commandContext()
	defer cancel()

	game, err := h.gameService.CreateScoreGame(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return c.Reply("❌ " + adminError(err))
	}
	return c.Reply(fmt.Sprintf("✅ Score market %s created: %s (%s)", game.ID, game.Title(), game.Status))
}

// HandleStatus handles /admin_status <id> <scheduled|live|completed>.
func (h *AdminHandler) HandleStatus(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Reply("❌ usage: /admin_status <id> <scheduled|live|completed>")
	}
	ctx, cancel := commandContext()
	defer cancel()

	game, err := h.gameService.SetStatus(ctx, args[0], args[1])
	if err != nil {
		return c.Reply("❌ " + adminError(err))
	}

	log.Info().
		Int64("admin_id", c.Sender().ID).
		Str("game_id", game.ID).
		Str("status", string(game.Status)).
		Msg("Admin operation executed")

	if h.sessions != nil {
		h.sessions.Reload(ctx, game.ID)
	}

	return c.Reply(fmt.Sprintf("✅ %s is now %s", game.Title(), game.Status))
}

// HandleAdminAdd handles /admin_add <user_id> <amount>.
func (h *AdminHandler) HandleAdminAdd(c tele.Context) error {
	userID, amount, err := ParseAdminAddArgs(c.Args())
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()

	user, err := h.accountService.AdminAdd(ctx, c.Sender().ID, userID, amount)
	if err != nil {
		return c.Reply("❌ " + adminError(err))
	}

	return c.Reply(fmt.Sprintf(
		"✅ Done\n\n👤 User: %s (ID: %s)\n➕ Change: %s\n💰 Balance: %s",
		user.DisplayName, user.UserID, FormatAmount(amount), FormatAmount(user.Balance),
	))
}

// adminError maps known failures to a short reply.
func adminError(err error) string {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return "user not found"
	case errors.Is(err, repository.ErrGameNotFound):
		return "game not found"
	case errors.Is(err, repository.ErrGameExists):
		return "a game with this id already exists"
	case errors.Is(err, repository.ErrInsufficientFunds):
		return "balance cannot go below zero"
	case errors.Is(err, service.ErrInvalidAdjustment),
		errors.Is(err, service.ErrInvalidGameID),
		errors.Is(err, service.ErrInvalidTeam),
		errors.Is(err, service.ErrSameTeams),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrStatusTransition):
		return err.Error()
	default:
		log.Error().Err(err).Msg("Admin operation failed")
		return "operation failed, please try again later"
	}
}
