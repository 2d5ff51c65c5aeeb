package service

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"match-market/internal/model"
)

// TopUserLister lists users by balance.
type TopUserLister interface {
	GetTopUsers(ctx context.Context, limit int) ([]*model.User, error)
}

// BettorRank is one participant's stake in a single market.
type BettorRank struct {
	UserID      string
	DisplayName string
	Staked      decimal.Decimal
	Wagers      int
}

// RankingService handles leaderboard operations.
type RankingService struct {
	users TopUserLister
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(users TopUserLister) *RankingService {
	return &RankingService{users: users}
}

// TopByBalance retrieves the richest users.
func (s *RankingService) TopByBalance(ctx context.Context, limit int) ([]*model.User, error) {
	return s.users.GetTopUsers(ctx, limit)
}

// RankBettors totals stakes per user over wagers and returns the top limit,
// largest stake first. Ties go to the user with more wagers, then by user id.
// Each user keeps the first non-empty display name in list order.
func RankBettors(wagers []model.Wager, limit int) []BettorRank {
	byUser := make(map[string]*BettorRank)
	for _, w := range wagers {
		r, ok := byUser[w.UserID]
		if !ok {
			r = &BettorRank{UserID: w.UserID, Staked: decimal.Zero}
			byUser[w.UserID] = r
		}
		r.Staked = r.Staked.Add(w.Amount)
		r.Wagers++
		if w.DisplayName != "" && r.DisplayName == "" {
			r.DisplayName = w.DisplayName
		}
	}

	ranks := make([]BettorRank, 0, len(byUser))
	for _, r := range byUser {
		ranks = append(ranks, *r)
	}
	sort.Slice(ranks, func(i, j int) bool {
		if c := ranks[i].Staked.Cmp(ranks[j].Staked); c != 0 {
			return c > 0
		}
		if ranks[i].Wagers != ranks[j].Wagers {
			return ranks[i].Wagers > ranks[j].Wagers
		}
		return ranks[i].UserID < ranks[j].UserID
	})

	if limit >= 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks
}
