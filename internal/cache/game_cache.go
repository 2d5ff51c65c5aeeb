// Package cache provides a Redis read-through cache for market games.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"match-market/internal/config"
	"match-market/internal/market"
	"match-market/internal/model"
)

const defaultGameTTL = 5 * time.Second

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")
	return rdb, nil
}

// GameCache wraps a market.Store and serves GetGame from Redis.
// Only found games are cached; every other call goes straight to the store.
// Redis failures degrade to the underlying store.
//
// Key schema:
//
//	market:game:{id} - JSON-encoded model.Game
type GameCache struct {
	market.Store
	rdb redis.Cmdable
	ttl time.Duration
}

// NewGameCache decorates store with a Redis game cache.
func NewGameCache(store market.Store, rdb redis.Cmdable, ttl time.Duration) *GameCache {
	if ttl <= 0 {
		ttl = defaultGameTTL
	}
	return &GameCache{Store: store, rdb: rdb, ttl: ttl}
}

func gameKey(id string) string { return "market:game:" + id }

// GetGame returns the cached game or loads and caches it.
func (c *GameCache) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	data, err := c.rdb.Get(ctx, gameKey(gameID)).Bytes()
	switch {
	case err == nil:
		var game model.Game
		if err := json.Unmarshal(data, &game); err == nil {
			return &game, nil
		}
		log.Warn().Str("game_id", gameID).Msg("Discarding undecodable cached game")
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("game_id", gameID).Msg("Game cache read failed")
	}

	game, err := c.Store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(game); err == nil {
		if err := c.rdb.Set(ctx, gameKey(gameID), data, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("game_id", gameID).Msg("Game cache write failed")
		}
	}
	return game, nil
}

// Invalidate drops a cached game so the next read sees the store.
func (c *GameCache) Invalidate(ctx context.Context, gameID string) error {
	if err := c.rdb.Del(ctx, gameKey(gameID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate game %s: %w", gameID, err)
	}
	return nil
}
