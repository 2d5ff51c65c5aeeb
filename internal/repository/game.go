package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"match-market/internal/model"
)

// pgUniqueViolation is the SQLSTATE for a duplicate key.
const pgUniqueViolation = "23505"

// GameRepository handles game persistence.
type GameRepository struct {
	pool *pgxpool.Pool
}

// NewGameRepository creates a new GameRepository instance.
func NewGameRepository(pool *pgxpool.Pool) *GameRepository {
	return &GameRepository{pool: pool}
}

// Create inserts a game. Returns ErrGameExists if the id is taken.
func (r *GameRepository) Create(ctx context.Context, g *model.Game) error {
	const query = `
		INSERT INTO games (id, type, team_a, team_b, team, status, kickoff_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		g.ID, string(g.Type), g.TeamA, g.TeamB, g.Team, string(g.Status), g.KickoffAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrGameExists
		}
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

// GetByID retrieves a game. Returns ErrGameNotFound if it does not exist.
func (r *GameRepository) GetByID(ctx context.Context, id string) (*model.Game, error) {
	const query = `
		SELECT id, type, team_a, team_b, team, status, kickoff_at
		FROM games
		WHERE id = $1
	`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	game, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.Game])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return game, nil
}

// UpdateStatus moves a game to a new lifecycle state.
func (r *GameRepository) UpdateStatus(ctx context.Context, id string, status model.GameStatus) error {
	const query = `UPDATE games SET status = $2 WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update game status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrGameNotFound
	}
	return nil
}

// ListByStatus returns games in the given state, soonest kickoff first.
func (r *GameRepository) ListByStatus(ctx context.Context, status model.GameStatus, limit int) ([]*model.Game, error) {
	const query = `
		SELECT id, type, team_a, team_b, team, status, kickoff_at
		FROM games
		WHERE status = $1
		ORDER BY kickoff_at, id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	games, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Game])
	if err != nil {
		return nil, fmt.Errorf("failed to scan games: %w", err)
	}
	return games, nil
}
