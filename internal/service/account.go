// Package service provides account and game administration on top of the repositories.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"match-market/internal/model"
)

// Common errors for account operations.
var (
	ErrInvalidAdjustment = errors.New("adjustment must be a non-zero number")
)

// UserStore is the user persistence AccountService needs.
type UserStore interface {
	GetOrCreate(ctx context.Context, userID, displayName string, initialBalance decimal.Decimal) (*model.User, bool, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal, txType model.TxType, description string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, userID, displayName string) error
}

// LedgerReader lists balance history.
type LedgerReader interface {
	GetByUserID(ctx context.Context, userID string, limit int) ([]*model.Transaction, error)
}

// AccountService handles user accounts and balances.
type AccountService struct {
	users          UserStore
	ledger         LedgerReader
	initialBalance decimal.Decimal
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(users UserStore, ledger LedgerReader, initialBalance int64) *AccountService {
	return &AccountService{
		users:          users,
		ledger:         ledger,
		initialBalance: decimal.NewFromInt(initialBalance),
	}
}

// EnsureUser makes sure a user exists, creating one with the initial balance.
// Returns the user and whether it was newly created.
func (s *AccountService) EnsureUser(ctx context.Context, userID, displayName string) (*model.User, bool, error) {
	user, created, err := s.users.GetOrCreate(ctx, userID, displayName, s.initialBalance)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	if created {
		log.Info().Str("user_id", userID).Str("balance", user.Balance.String()).Msg("New user registered")
	}

	// Keep the name shown in the feed current.
	if !created && displayName != "" && user.DisplayName != displayName {
		if err := s.users.UpdateDisplayName(ctx, userID, displayName); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to update display name")
		} else {
			user.DisplayName = displayName
		}
	}

	return user, created, nil
}

// GetBalance retrieves a user's current balance.
func (s *AccountService) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	balance, err := s.users.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// AdminAdd adjusts a balance by amount, which may be negative.
// The balance never goes below zero.
func (s *AccountService) AdminAdd(ctx context.Context, adminID int64, userID string, amount decimal.Decimal) (*model.User, error) {
	if amount.IsZero() {
		return nil, ErrInvalidAdjustment
	}

	desc := fmt.Sprintf("admin %d adjustment", adminID)
	user, err := s.users.AdjustBalance(ctx, userID, amount, model.TxTypeAdminAdd, desc)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust balance: %w", err)
	}

	log.Info().
		Int64("admin_id", adminID).
		Str("user_id", userID).
		Str("amount", amount.String()).
		Str("balance", user.Balance.String()).
		Msg("Admin balance adjustment")

	return user, nil
}

// History returns a user's most recent ledger entries, newest first.
func (s *AccountService) History(ctx context.Context, userID string, limit int) ([]*model.Transaction, error) {
	txs, err := s.ledger.GetByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return txs, nil
}
