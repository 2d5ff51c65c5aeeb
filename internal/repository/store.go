package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"match-market/internal/market"
	"match-market/internal/model"
)

// Store is the PostgreSQL-backed market.Store.
type Store struct {
	games  *GameRepository
	users  *UserRepository
	wagers *WagerRepository
}

var _ market.Store = (*Store)(nil)

// NewStore creates a Store over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		games:  NewGameRepository(pool),
		users:  NewUserRepository(pool),
		wagers: NewWagerRepository(pool),
	}
}

func (s *Store) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	game, err := s.games.GetByID(ctx, gameID)
	if errors.Is(err, ErrGameNotFound) {
		return nil, market.ErrGameNotFound
	}
	return game, err
}

func (s *Store) GetUserBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.users.GetBalance(ctx, userID)
}

func (s *Store) ListWinWagers(ctx context.Context, gameID string) ([]model.Wager, error) {
	return s.wagers.ListWin(ctx, gameID)
}

func (s *Store) ListScoreWagers(ctx context.Context, gameID string) ([]model.Wager, error) {
	return s.wagers.ListScore(ctx, gameID)
}

func (s *Store) InsertWinWager(ctx context.Context, w model.Wager) error {
	return translateInsertErr(s.wagers.InsertWin(ctx, w))
}

func (s *Store) InsertScoreWager(ctx context.Context, w model.Wager) error {
	return translateInsertErr(s.wagers.InsertScore(ctx, w))
}

// translateInsertErr keeps a lost balance or status race recognisable to the market layer.
func translateInsertErr(err error) error {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return fmt.Errorf("%w: %w", market.ErrInsufficientBalance, err)
	case errors.Is(err, ErrGameNotLive):
		return fmt.Errorf("%w: %w", market.ErrMarketClosed, err)
	}
	return err
}
