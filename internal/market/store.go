package market

import (
	"context"

	"github.com/shopspring/decimal"

	"match-market/internal/model"
)

// Store is the persistence gateway the market core reads from and writes to.
// Implementations return ErrGameNotFound when GetGame finds nothing, and
// inserts return an error matching ErrMarketClosed when the game is no longer live.
// List operations may return wagers in any order; callers re-sort with MergeWagers.
type Store interface {
	GetGame(ctx context.Context, gameID string) (*model.Game, error)
	GetUserBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	ListWinWagers(ctx context.Context, gameID string) ([]model.Wager, error)
	ListScoreWagers(ctx context.Context, gameID string) ([]model.Wager, error)
	InsertWinWager(ctx context.Context, w model.Wager) error
	InsertScoreWager(ctx context.Context, w model.Wager) error
}

// Recorder receives session outcomes for monitoring.
type Recorder interface {
	WagerAccepted(t model.GameType)
	WagerRejected(reason string)
	FetchFailed(op string)
}

type nopRecorder struct{}

func (nopRecorder) WagerAccepted(model.GameType) {}
func (nopRecorder) WagerRejected(string)         {}
func (nopRecorder) FetchFailed(string)           {}
