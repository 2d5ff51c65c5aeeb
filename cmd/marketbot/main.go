// Package main is the entry point for the match market bot.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"match-market/internal/bot"
	"match-market/internal/cache"
	"match-market/internal/config"
	"match-market/internal/events"
	"match-market/internal/handler"
	"match-market/internal/market"
	"match-market/internal/metrics"
	"match-market/internal/pkg/db"
	"match-market/internal/repository"
	"match-market/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	// Repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	gameRepo := repository.NewGameRepository(dbPool.Pool)

	// Store chain: postgres, then the optional game cache, then optional event publishing.
	var store market.Store = repository.NewStore(dbPool.Pool)
	var invalidator service.CacheInvalidator

	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		gameCache := cache.NewGameCache(store, rdb, cfg.Market.GameCacheTTL)
		store = gameCache
		invalidator = gameCache
	}

	kafkaEnabled := len(cfg.Kafka.Brokers) > 0
	if kafkaEnabled {
		writer := events.NewWriter(cfg.Kafka)
		defer func() {
			if err := writer.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Kafka writer")
			}
		}()

		publishing := events.NewPublishingStore(store, events.NewPublisher(writer))
		publishing.OnError = func() { recorder.EventError("publish") }
		store = publishing
	}

	// Services
	accountService := service.NewAccountService(userRepo, txRepo, cfg.Market.InitialBalance)
	gameService := service.NewGameService(gameRepo, invalidator)
	rankingService := service.NewRankingService(userRepo)

	sessions := handler.NewSessionRegistry(store, cfg.Market, recorder)
	defer sessions.CloseAll()

	telegramBot, err := bot.New(&bot.Dependencies{
		Config:         cfg,
		AccountService: accountService,
		GameService:    gameService,
		RankingService: rankingService,
		Sessions:       sessions,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Port > 0 {
		srv := metrics.StartServer(cfg.Metrics.Port, metrics.NewHandler(registry, dbPool.HealthCheck))
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if kafkaEnabled {
		reader := events.NewReader(cfg.Kafka)
		notifier := handler.NewFeedNotifier(sessions, telegramBot.Sender())
		notifier.OnDelivered = recorder.FeedEvent

		consumer := &events.Consumer{
			Reader:  reader,
			OnError: recorder.EventError,
		}
		g.Go(func() error {
			defer func() {
				if err := reader.Close(); err != nil {
					log.Warn().Err(err).Msg("Failed to close Kafka reader")
				}
			}()
			log.Info().Str("topic", cfg.Kafka.Topic).Str("group_id", cfg.Kafka.GroupID).Msg("Wager feed consumer started")
			err := consumer.Run(gctx, notifier.Handle)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		telegramBot.Start()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		telegramBot.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Shutdown with error")
	}
	log.Info().Msg("Bot stopped gracefully")
}
