// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"match-market/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrGameNotFound      = errors.New("game not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrGameExists        = errors.New("game already exists")
	ErrGameNotLive       = errors.New("game is not live")
)

const userColumns = `user_id, display_name, balance, created_at, updated_at`

// UserRepository handles user data persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.UserID,
		&user.DisplayName,
		&user.Balance,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a user with the given starting balance and records the grant.
func (r *UserRepository) Create(ctx context.Context, userID, displayName string, initialBalance decimal.Decimal) (*model.User, error) {
	const query = `
		INSERT INTO users (user_id, display_name, balance, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING ` + userColumns

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	user, err := scanUser(tx.QueryRow(ctx, query, userID, displayName, initialBalance))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if initialBalance.IsPositive() {
		desc := "initial balance"
		if err := insertTransaction(ctx, tx, userID, initialBalance, model.TxTypeGrant, &desc); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user. Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetBalance returns only the balance column.
func (r *UserRepository) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	const query = `SELECT balance FROM users WHERE user_id = $1`

	var balance decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// GetOrCreate retrieves a user, creating one with initialBalance if it doesn't exist.
// The bool result reports whether the user was created.
func (r *UserRepository) GetOrCreate(ctx context.Context, userID, displayName string, initialBalance decimal.Decimal) (*model.User, bool, error) {
	user, err := r.GetByID(ctx, userID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = r.Create(ctx, userID, displayName, initialBalance)
	if err != nil {
		// Another request may have created the user concurrently.
		user, err = r.GetByID(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	return user, true, nil
}

// AdjustBalance adds delta (possibly negative) to a balance and records it in the ledger.
// Returns ErrInsufficientFunds when the result would go below zero.
func (r *UserRepository) AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal, txType model.TxType, description string) (*model.User, error) {
	const query = `
		UPDATE users
		SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1 AND balance + $2 >= 0
		RETURNING ` + userColumns

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	user, err := scanUser(tx.QueryRow(ctx, query, userID, delta))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to adjust balance: %w", err)
		}
		// Distinguish a missing user from a rejected debit.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check user existence: %w", err)
		}
		if !exists {
			return nil, ErrUserNotFound
		}
		return nil, ErrInsufficientFunds
	}

	if err := insertTransaction(ctx, tx, userID, delta, txType, &description); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit balance change: %w", err)
	}
	return user, nil
}

// UpdateDisplayName updates the name shown next to a user's wagers.
func (r *UserRepository) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	const query = `
		UPDATE users
		SET display_name = $2, updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := r.pool.Exec(ctx, query, userID, displayName)
	if err != nil {
		return fmt.Errorf("failed to update display name: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetTopUsers returns the limit richest users, ties broken by user id.
func (r *UserRepository) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY balance DESC, user_id LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.User])
	if err != nil {
		return nil, fmt.Errorf("failed to scan top users: %w", err)
	}
	return users, nil
}
