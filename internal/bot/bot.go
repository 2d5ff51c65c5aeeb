// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"match-market/internal/config"
	"match-market/internal/handler"
	"match-market/internal/service"
)

const defaultPollTimeout = 10 * time.Second

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	// Handlers
	accountHandler *handler.AccountHandler
	marketHandler  *handler.MarketHandler
	rankingHandler *handler.RankingHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config         *config.Config
	AccountService *service.AccountService
	GameService    *service.GameService
	RankingService *service.RankingService
	Sessions       *handler.SessionRegistry
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	timeout := deps.Config.Bot.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		accountHandler: handler.NewAccountHandler(deps.AccountService),
		marketHandler:  handler.NewMarketHandler(deps.AccountService, deps.GameService, deps.Sessions, deps.Config.Market),
		rankingHandler: handler.NewRankingHandler(deps.RankingService, deps.Sessions),
		adminHandler:   handler.NewAdminHandler(deps.AccountService, deps.GameService, deps.Sessions),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command handlers.
func (b *Bot) registerHandlers() {
	// Account
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)
	b.bot.Handle("/history", b.accountHandler.HandleHistory)

	// Market
	b.bot.Handle("/games", b.marketHandler.HandleGames)
	b.bot.Handle("/market", b.marketHandler.HandleMarket)
	b.bot.Handle("/bet", b.marketHandler.HandleBet)
	b.bot.Handle("/volume", b.marketHandler.HandleVolume)
	b.bot.Handle("/feed", b.marketHandler.HandleFeed)
	b.bot.Handle("/brackets", b.marketHandler.HandleBrackets)
	b.bot.Handle("/refresh", b.marketHandler.HandleRefresh)
	b.bot.Handle("/close", b.marketHandler.HandleClose)

	// Leaderboards
	b.bot.Handle("/top", b.rankingHandler.HandleTop)
	b.bot.Handle("/bettors", b.rankingHandler.HandleBettors)

	// Admin handlers (with admin middleware)
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/admin_game_win", b.adminHandler.HandleGameWin)
	adminGroup.Handle("/admin_game_score", b.adminHandler.HandleGameScore)
	adminGroup.Handle("/admin_status", b.adminHandler.HandleStatus)
	adminGroup.Handle("/admin_add", b.adminHandler.HandleAdminAdd)
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// Sender returns the underlying telebot instance for outbound messages.
func (b *Bot) Sender() handler.Sender {
	return b.bot
}
