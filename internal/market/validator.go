// Package market implements wager intake for a single-game betting market:
// bet validation, volume aggregation, wager list assembly and the per-user
// market session that drives them against a Store.
package market

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"match-market/internal/model"
)

// Draft is the raw wager input as typed by the user.
// Prediction holds a team name for win markets and a bracket index for score markets.
type Draft struct {
	Amount     string
	Prediction string
}

// IsEmpty reports whether nothing has been entered.
func (d Draft) IsEmpty() bool {
	return d.Amount == "" && d.Prediction == ""
}

// Ticket is a validated, normalized draft ready to be written.
type Ticket struct {
	Amount     decimal.Decimal
	Prediction model.Prediction
}

// Validator enforces the intake rules for a wager draft.
type Validator struct {
	// StrictSelection rejects win picks that do not name one of the game's sides.
	StrictSelection bool
}

// Validate checks a draft against the game and the user's balance.
// Checks run in a fixed order and the first failure is returned:
//  1. game must be live
//  2. amount must be a number greater than zero
//  3. amount must not exceed the balance
//  4. win markets need a team selection
//  5. score markets need an integer bracket index within the table
//
// Validate has no side effects.
func (v Validator) Validate(game *model.Game, draft Draft, balance decimal.Decimal) (Ticket, error) {
	if game == nil {
		return Ticket{}, ErrGameNotLoaded
	}

	if !game.IsLive() {
		return Ticket{}, ErrMarketClosed
	}

	amount, err := parseAmount(draft.Amount)
	if err != nil {
		return Ticket{}, err
	}

	if amount.GreaterThan(balance) {
		return Ticket{}, ErrInsufficientBalance
	}

	switch game.Type {
	case model.GameTypeWin:
		team := strings.TrimSpace(draft.Prediction)
		if team == "" {
			return Ticket{}, ErrNoSelection
		}
		if v.StrictSelection && !game.HasSide(team) {
			return Ticket{}, fmt.Errorf("%w: %q is not playing in this game", ErrInvalidSelection, team)
		}
		return Ticket{
			Amount: amount,
			Prediction: model.WinPick{
				Team:                team,
				PredictedPercentage: model.DefaultPredictedPercentage,
			},
		}, nil

	case model.GameTypeScore:
		index, err := strconv.Atoi(strings.TrimSpace(draft.Prediction))
		if err != nil {
			return Ticket{}, fmt.Errorf("%w: bracket must be a number", ErrInvalidSelection)
		}
		if !model.ValidBracket(index) {
			return Ticket{}, fmt.Errorf("%w: bracket must be between 1 and %d", ErrInvalidSelection, model.BracketCount)
		}
		return Ticket{
			Amount:     amount,
			Prediction: model.ScorePick{Bracket: index},
		}, nil
	}

	return Ticket{}, fmt.Errorf("%w: unsupported market type %q", ErrInvalidSelection, game.Type)
}

// parseAmount parses a user-entered amount, which must be strictly positive.
func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}
