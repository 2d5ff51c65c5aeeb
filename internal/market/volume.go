package market

import (
	"slices"

	"github.com/shopspring/decimal"

	"match-market/internal/model"
)

// VolumeSnapshot is the wagered volume over a wager list. It is derived, never stored.
type VolumeSnapshot struct {
	Total decimal.Decimal
	SideA decimal.Decimal
	SideB decimal.Decimal
}

// Aggregate sums wager amounts overall and per side.
// A wager counts toward a side only when it is a win pick naming that side's label.
// Zero-valued amounts contribute nothing; the input slice is not modified.
func Aggregate(wagers []model.Wager, sideA, sideB string) VolumeSnapshot {
	v := VolumeSnapshot{
		Total: decimal.Zero,
		SideA: decimal.Zero,
		SideB: decimal.Zero,
	}

	for _, w := range wagers {
		v.Total = v.Total.Add(w.Amount)

		pick, ok := w.Prediction.(model.WinPick)
		if !ok {
			continue
		}
		if sideA != "" && pick.Team == sideA {
			v.SideA = v.SideA.Add(w.Amount)
		} else if sideB != "" && pick.Team == sideB {
			v.SideB = v.SideB.Add(w.Amount)
		}
	}

	return v
}

// Snapshot aggregates wagers for a game. Side volume is only computed for win markets.
func Snapshot(game *model.Game, wagers []model.Wager) VolumeSnapshot {
	if game == nil || game.Type != model.GameTypeWin {
		return Aggregate(wagers, "", "")
	}
	return Aggregate(wagers, game.TeamA, game.TeamB)
}

// MergeWagers combines the win and score collections into one list,
// newest first. The sort is stable over win ++ score, so on equal
// timestamps win wagers precede score wagers and store order is kept.
func MergeWagers(win, score []model.Wager) []model.Wager {
	merged := make([]model.Wager, 0, len(win)+len(score))
	merged = append(merged, win...)
	merged = append(merged, score...)

	slices.SortStableFunc(merged, func(a, b model.Wager) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return merged
}
