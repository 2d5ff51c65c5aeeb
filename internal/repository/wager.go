package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"match-market/internal/model"
)

// WagerRepository persists win and score wagers in their separate tables.
type WagerRepository struct {
	pool *pgxpool.Pool
}

// NewWagerRepository creates a new WagerRepository instance.
func NewWagerRepository(pool *pgxpool.Pool) *WagerRepository {
	return &WagerRepository{pool: pool}
}

// ListWin returns the win wagers of a game, newest first.
func (r *WagerRepository) ListWin(ctx context.Context, gameID string) ([]model.Wager, error) {
	const query = `
		SELECT id, game_id, user_id, amount, team, predicted_percentage, status, created_at, display_name
		FROM win_bets
		WHERE game_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list win wagers: %w", err)
	}
	defer rows.Close()

	var wagers []model.Wager
	for rows.Next() {
		var (
			w      model.Wager
			pick   model.WinPick
			status string
		)
		err := rows.Scan(
			&w.ID,
			&w.GameID,
			&w.UserID,
			&w.Amount,
			&pick.Team,
			&pick.PredictedPercentage,
			&status,
			&w.CreatedAt,
			&w.DisplayName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan win wager: %w", err)
		}
		w.Prediction = pick
		w.Status = model.WagerStatus(status)
		wagers = append(wagers, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating win wagers: %w", err)
	}
	return wagers, nil
}

// ListScore returns the score wagers of a game, newest first.
func (r *WagerRepository) ListScore(ctx context.Context, gameID string) ([]model.Wager, error) {
	const query = `
		SELECT id, game_id, user_id, amount, bracket, status, created_at, display_name
		FROM score_bets
		WHERE game_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list score wagers: %w", err)
	}
	defer rows.Close()

	var wagers []model.Wager
	for rows.Next() {
		var (
			w      model.Wager
			pick   model.ScorePick
			status string
		)
		err := rows.Scan(
			&w.ID,
			&w.GameID,
			&w.UserID,
			&w.Amount,
			&pick.Bracket,
			&status,
			&w.CreatedAt,
			&w.DisplayName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score wager: %w", err)
		}
		w.Prediction = pick
		w.Status = model.WagerStatus(status)
		wagers = append(wagers, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating score wagers: %w", err)
	}
	return wagers, nil
}

// InsertWin stores a win wager and debits the stake in one transaction.
func (r *WagerRepository) InsertWin(ctx context.Context, w model.Wager) error {
	pick, ok := w.Prediction.(model.WinPick)
	if !ok {
		return fmt.Errorf("wager %s is not a win pick", w.ID)
	}

	const query = `
		INSERT INTO win_bets (id, game_id, user_id, amount, team, predicted_percentage, status, created_at, display_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	return r.placeWager(ctx, w, query,
		w.ID, w.GameID, w.UserID, w.Amount, pick.Team, pick.PredictedPercentage,
		string(w.Status), w.CreatedAt, w.DisplayName,
	)
}

// InsertScore stores a score wager and debits the stake in one transaction.
func (r *WagerRepository) InsertScore(ctx context.Context, w model.Wager) error {
	pick, ok := w.Prediction.(model.ScorePick)
	if !ok {
		return fmt.Errorf("wager %s is not a score pick", w.ID)
	}

	const query = `
		INSERT INTO score_bets (id, game_id, user_id, amount, bracket, status, created_at, display_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	return r.placeWager(ctx, w, query,
		w.ID, w.GameID, w.UserID, w.Amount, pick.Bracket,
		string(w.Status), w.CreatedAt, w.DisplayName,
	)
}

// placeWager debits the stake, writes the wager row and records the ledger entry.
// The debit is guarded so a balance never goes negative under concurrent wagers.
// The game row is share-locked for the transaction so a status change waits for it.
func (r *WagerRepository) placeWager(ctx context.Context, w model.Wager, insert string, args ...any) error {
	const lockGame = `SELECT status FROM games WHERE id = $1 FOR SHARE`
	const debit = `
		UPDATE users
		SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	if err := tx.QueryRow(ctx, lockGame, w.GameID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrGameNotFound
		}
		return fmt.Errorf("failed to lock game: %w", err)
	}
	if model.GameStatus(status) != model.GameStatusLive {
		return fmt.Errorf("%w: %s", ErrGameNotLive, status)
	}

	result, err := tx.Exec(ctx, debit, w.UserID, w.Amount)
	if err != nil {
		return fmt.Errorf("failed to debit stake: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.debitFailure(ctx, tx, w.UserID)
	}

	if _, err := tx.Exec(ctx, insert, args...); err != nil {
		return fmt.Errorf("failed to insert wager: %w", err)
	}

	desc := fmt.Sprintf("%s wager %s on %s", w.Type(), w.ID, w.GameID)
	if err := insertTransaction(ctx, tx, w.UserID, w.Amount.Neg(), model.TxTypeWager, &desc); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit wager: %w", err)
	}
	return nil
}

func (r *WagerRepository) debitFailure(ctx context.Context, tx pgx.Tx, userID string) error {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to check user existence: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	return ErrInsufficientFunds
}
