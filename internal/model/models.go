// Package model defines the data models for the match market.
// Monetary values use shopspring/decimal, never float64.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GameType discriminates the two kinds of market a game can host.
type GameType string

const (
	GameTypeWin   GameType = "win"   // Predict which of two sides wins
	GameTypeScore GameType = "score" // Predict the bracket of the final combined score
)

// GameStatus is the lifecycle state of a game. Only live games accept wagers.
type GameStatus string

const (
	GameStatusScheduled GameStatus = "scheduled"
	GameStatusLive      GameStatus = "live"
	GameStatusCompleted GameStatus = "completed"
)

// Game is the sporting event a market is opened on.
// Win markets carry two sides (TeamA, TeamB); score markets track a single Team.
type Game struct {
	ID        string     `json:"id" db:"id"`
	Type      GameType   `json:"type" db:"type"`
	TeamA     string     `json:"team_a,omitempty" db:"team_a"`
	TeamB     string     `json:"team_b,omitempty" db:"team_b"`
	Team      string     `json:"team,omitempty" db:"team"`
	Status    GameStatus `json:"status" db:"status"`
	KickoffAt time.Time  `json:"kickoff_at" db:"kickoff_at"`
}

// IsLive reports whether the game is accepting wagers.
func (g *Game) IsLive() bool {
	return g != nil && g.Status == GameStatusLive
}

// HasSide reports whether team names one of the two sides of a win market.
func (g *Game) HasSide(team string) bool {
	if g == nil || g.Type != GameTypeWin || team == "" {
		return false
	}
	return team == g.TeamA || team == g.TeamB
}

// Title returns a short human-readable name for the game.
func (g *Game) Title() string {
	if g.Type == GameTypeWin {
		return g.TeamA + " vs " + g.TeamB
	}
	return g.Team
}

// WagerStatus is the settlement state of a wager. New wagers are always pending.
type WagerStatus string

const (
	WagerStatusPending   WagerStatus = "pending"
	WagerStatusCompleted WagerStatus = "completed"
	WagerStatusRejected  WagerStatus = "rejected"
)

// DefaultPredictedPercentage is recorded on every win pick.
// It is a fixed placeholder; nothing derives it from market data yet.
const DefaultPredictedPercentage = 50

// Prediction is the payload of a wager. It is a closed set: WinPick or ScorePick.
type Prediction interface {
	// Kind returns the market type the prediction belongs to.
	Kind() GameType
	// Label returns the prediction as shown in the feed.
	Label() string

	isPrediction()
}

// WinPick predicts the winning side of a win market.
type WinPick struct {
	Team                string
	PredictedPercentage int
}

func (WinPick) Kind() GameType  { return GameTypeWin }
func (p WinPick) Label() string { return p.Team }
func (WinPick) isPrediction()   {}

// ScorePick predicts the final-score bracket of a score market (1-indexed).
type ScorePick struct {
	Bracket int
}

func (ScorePick) Kind() GameType { return GameTypeScore }

func (p ScorePick) Label() string {
	if label, ok := BracketLabel(p.Bracket); ok {
		return label
	}
	return "?"
}

func (ScorePick) isPrediction() {}

// Wager is a single bet placed on a game.
// Win wagers and score wagers are stored in separate collections and unified here.
type Wager struct {
	ID          string
	UserID      string
	GameID      string
	Amount      decimal.Decimal
	Prediction  Prediction
	Status      WagerStatus
	CreatedAt   time.Time
	DisplayName string
}

// Type returns the market type of the wager, derived from its prediction.
func (w Wager) Type() GameType {
	if w.Prediction == nil {
		return ""
	}
	return w.Prediction.Kind()
}

// User is a participant account with a wagering balance.
type User struct {
	UserID      string          `db:"user_id"`
	DisplayName string          `db:"display_name"`
	Balance     decimal.Decimal `db:"balance"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// ParseGameStatus normalizes a status string supplied by an operator.
func ParseGameStatus(s string) (GameStatus, bool) {
	switch GameStatus(strings.ToLower(strings.TrimSpace(s))) {
	case GameStatusScheduled:
		return GameStatusScheduled, true
	case GameStatusLive:
		return GameStatusLive, true
	case GameStatusCompleted:
		return GameStatusCompleted, true
	}
	return "", false
}

// TxType categorizes a balance change in the ledger.
type TxType string

const (
	TxTypeGrant    TxType = "grant"     // Initial balance on account creation
	TxTypeWager    TxType = "wager"     // Stake debited when a wager is placed
	TxTypeAdminAdd TxType = "admin_add" // Operator balance adjustment
)

// Transaction is one ledger entry. Amount is negative for debits.
type Transaction struct {
	ID          int64           `db:"id"`
	UserID      string          `db:"user_id"`
	Amount      decimal.Decimal `db:"amount"`
	Type        TxType          `db:"type"`
	Description *string         `db:"description"`
	CreatedAt   time.Time       `db:"created_at"`
}
