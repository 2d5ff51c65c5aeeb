package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"match-market/internal/model"
)

// Errors for game administration.
var (
	ErrInvalidGameID    = errors.New("game id must be 1-64 letters, digits, '-' or '_'")
	ErrInvalidTeam      = errors.New("team names must be non-empty")
	ErrSameTeams        = errors.New("a win market needs two different teams")
	ErrInvalidStatus    = errors.New("status must be scheduled, live or completed")
	ErrStatusTransition = errors.New("invalid status transition")
)

var gameIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// GameStore is the game persistence GameService needs.
type GameStore interface {
	Create(ctx context.Context, g *model.Game) error
	GetByID(ctx context.Context, id string) (*model.Game, error)
	UpdateStatus(ctx context.Context, id string, status model.GameStatus) error
	ListByStatus(ctx context.Context, status model.GameStatus, limit int) ([]*model.Game, error)
}

// CacheInvalidator drops cached copies of a game.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, gameID string) error
}

// GameService creates games and drives their lifecycle.
type GameService struct {
	games GameStore
	cache CacheInvalidator
	now   func() time.Time
}

// NewGameService creates a GameService. cache may be nil.
func NewGameService(games GameStore, cache CacheInvalidator) *GameService {
	return &GameService{games: games, cache: cache, now: time.Now}
}

// CreateWinGame opens a scheduled two-sided market.
func (s *GameService) CreateWinGame(ctx context.Context, id, teamA, teamB string) (*model.Game, error) {
	teamA, teamB = strings.TrimSpace(teamA), strings.TrimSpace(teamB)
	if !gameIDPattern.MatchString(id) {
		return nil, ErrInvalidGameID
	}
	if teamA == "" || teamB == "" {
		return nil, ErrInvalidTeam
	}
	if strings.EqualFold(teamA, teamB) {
		return nil, ErrSameTeams
	}

	return s.create(ctx, &model.Game{
		ID:     id,
		Type:   model.GameTypeWin,
		TeamA:  teamA,
		TeamB:  teamB,
		Status: model.GameStatusScheduled,
	})
}

// CreateScoreGame opens a scheduled score-bracket market for one team.
func (s *GameService) CreateScoreGame(ctx context.Context, id, team string) (*model.Game, error) {
	team = strings.TrimSpace(team)
	if !gameIDPattern.MatchString(id) {
		return nil, ErrInvalidGameID
	}
	if team == "" {
		return nil, ErrInvalidTeam
	}

	return s.create(ctx, &model.Game{
		ID:     id,
		Type:   model.GameTypeScore,
		Team:   team,
		Status: model.GameStatusScheduled,
	})
}

func (s *GameService) create(ctx context.Context, g *model.Game) (*model.Game, error) {
	g.KickoffAt = s.now().UTC()
	if err := s.games.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	log.Info().Str("game_id", g.ID).Str("type", string(g.Type)).Str("title", g.Title()).Msg("Game created")
	return g, nil
}

// CanTransition reports whether a game may move from one status to another.
// Games only move forward; completed is final.
func CanTransition(from, to model.GameStatus) bool {
	switch from {
	case model.GameStatusScheduled:
		return to == model.GameStatusLive || to == model.GameStatusCompleted
	case model.GameStatusLive:
		return to == model.GameStatusCompleted
	default:
		return false
	}
}

// SetStatus moves a game to a new status and drops its cached copy.
func (s *GameService) SetStatus(ctx context.Context, id, status string) (*model.Game, error) {
	to, ok := model.ParseGameStatus(status)
	if !ok {
		return nil, ErrInvalidStatus
	}

	game, err := s.games.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load game: %w", err)
	}
	if !CanTransition(game.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrStatusTransition, game.Status, to)
	}

	if err := s.games.UpdateStatus(ctx, id, to); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	game.Status = to

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			log.Warn().Err(err).Str("game_id", id).Msg("Failed to invalidate cached game")
		}
	}

	log.Info().Str("game_id", id).Str("status", string(to)).Msg("Game status changed")
	return game, nil
}

// ListLive returns the games currently accepting wagers.
func (s *GameService) ListLive(ctx context.Context, limit int) ([]*model.Game, error) {
	games, err := s.games.ListByStatus(ctx, model.GameStatusLive, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list live games: %w", err)
	}
	return games, nil
}
