// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"match-market/internal/market"
	"match-market/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

// setupTestDB creates a PostgreSQL container with the market schema.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	// Migrations are idempotent.
	require.NoError(t, Migrate(ctx, pool))

	return pool
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func seedWinGame(t *testing.T, pool *pgxpool.Pool, id string, status model.GameStatus) {
	t.Helper()
	err := NewGameRepository(pool).Create(context.Background(), &model.Game{
		ID:        id,
		Type:      model.GameTypeWin,
		TeamA:     "Lions",
		TeamB:     "Tigers",
		Status:    status,
		KickoffAt: time.Now().UTC().Truncate(time.Second),
	})
	require.NoError(t, err)
}

// ============================================================================
// UserRepository Tests
// ============================================================================

func TestUserRepository_GetOrCreate(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, created, err := repo.GetOrCreate(ctx, "u1", "alice", dec(1000))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "u1", user.UserID)
	assert.Equal(t, "alice", user.DisplayName)
	assert.True(t, user.Balance.Equal(dec(1000)))
	assert.False(t, user.CreatedAt.IsZero())

	user, created, err = repo.GetOrCreate(ctx, "u1", "ignored", dec(5))
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, user.Balance.Equal(dec(1000)), "existing balance untouched")

	_, err = repo.GetByID(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_AdjustBalance(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, _, err := repo.GetOrCreate(ctx, "u1", "alice", dec(100))
	require.NoError(t, err)

	user, err := repo.AdjustBalance(ctx, "u1", decimal.RequireFromString("25.50"), model.TxTypeAdminAdd, "top up")
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(decimal.RequireFromString("125.50")))

	_, err = repo.AdjustBalance(ctx, "u1", dec(-500), model.TxTypeAdminAdd, "too much")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = repo.AdjustBalance(ctx, "ghost", dec(1), model.TxTypeAdminAdd, "")
	assert.ErrorIs(t, err, ErrUserNotFound)

	balance, err := repo.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("125.50")))

	history, err := NewTransactionRepository(pool).GetByUserID(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.TxTypeAdminAdd, history[0].Type)
	assert.Equal(t, model.TxTypeGrant, history[1].Type)
}

func TestUserRepository_GetTopUsers(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()

	for id, balance := range map[string]int64{"u1": 50, "u2": 300, "u3": 120, "u4": 300} {
		_, _, err := repo.GetOrCreate(ctx, id, id, dec(balance))
		require.NoError(t, err)
	}

	top, err := repo.GetTopUsers(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "u2", top[0].UserID)
	assert.Equal(t, "u4", top[1].UserID)
	assert.Equal(t, "u3", top[2].UserID)
}

func TestUserRepository_UpdateDisplayName(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, _, err := repo.GetOrCreate(ctx, "u1", "alice", dec(0))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateDisplayName(ctx, "u1", "alice2"))

	user, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice2", user.DisplayName)

	assert.ErrorIs(t, repo.UpdateDisplayName(ctx, "ghost", "x"), ErrUserNotFound)
}

// ============================================================================
// GameRepository Tests
// ============================================================================

func TestGameRepository_Lifecycle(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewGameRepository(pool)
	ctx := context.Background()

	seedWinGame(t, pool, "G1", model.GameStatusScheduled)

	game, err := repo.GetByID(ctx, "G1")
	require.NoError(t, err)
	assert.Equal(t, model.GameTypeWin, game.Type)
	assert.Equal(t, "Lions", game.TeamA)
	assert.Equal(t, model.GameStatusScheduled, game.Status)

	require.NoError(t, repo.UpdateStatus(ctx, "G1", model.GameStatusLive))
	game, err = repo.GetByID(ctx, "G1")
	require.NoError(t, err)
	assert.True(t, game.IsLive())

	live, err := repo.ListByStatus(ctx, model.GameStatusLive, 10)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "G1", live[0].ID)

	assert.ErrorIs(t, repo.Create(ctx, game), ErrGameExists)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", model.GameStatusLive), ErrGameNotFound)
	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

// ============================================================================
// Store Tests
// ============================================================================

func TestStore_PlaceAndListWagers(t *testing.T) {
	pool := setupTestDB(t)
	store := NewStore(pool)
	ctx := context.Background()

	seedWinGame(t, pool, "G1", model.GameStatusLive)
	_, _, err := NewUserRepository(pool).GetOrCreate(ctx, "u1", "alice", dec(100))
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	err = store.InsertWinWager(ctx, model.Wager{
		ID:          "w1",
		UserID:      "u1",
		GameID:      "G1",
		Amount:      dec(30),
		Prediction:  model.WinPick{Team: "Lions", PredictedPercentage: model.DefaultPredictedPercentage},
		Status:      model.WagerStatusPending,
		CreatedAt:   now,
		DisplayName: "alice",
	})
	require.NoError(t, err)

	balance, err := store.GetUserBalance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(70)), "stake debited with the insert")

	wagers, err := store.ListWinWagers(ctx, "G1")
	require.NoError(t, err)
	require.Len(t, wagers, 1)
	assert.Equal(t, "w1", wagers[0].ID)
	assert.True(t, wagers[0].Amount.Equal(dec(30)))
	assert.Equal(t, model.WinPick{Team: "Lions", PredictedPercentage: 50}, wagers[0].Prediction)
	assert.Equal(t, model.WagerStatusPending, wagers[0].Status)
	assert.True(t, wagers[0].CreatedAt.Equal(now))

	// Score wager on a win game still lands in its own table.
	err = store.InsertScoreWager(ctx, model.Wager{
		ID: "s1", UserID: "u1", GameID: "G1", Amount: dec(5),
		Prediction: model.ScorePick{Bracket: 3}, Status: model.WagerStatusPending, CreatedAt: now,
	})
	require.NoError(t, err)
	scores, err := store.ListScoreWagers(ctx, "G1")
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, model.ScorePick{Bracket: 3}, scores[0].Prediction)
}

func TestStore_InsertRejectsOverdraft(t *testing.T) {
	pool := setupTestDB(t)
	store := NewStore(pool)
	ctx := context.Background()

	seedWinGame(t, pool, "G1", model.GameStatusLive)
	_, _, err := NewUserRepository(pool).GetOrCreate(ctx, "u1", "alice", dec(10))
	require.NoError(t, err)

	err = store.InsertWinWager(ctx, model.Wager{
		ID: "w1", UserID: "u1", GameID: "G1", Amount: dec(11),
		Prediction: model.WinPick{Team: "Lions"}, Status: model.WagerStatusPending, CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, market.ErrInsufficientBalance)

	wagers, err := store.ListWinWagers(ctx, "G1")
	require.NoError(t, err)
	assert.Empty(t, wagers, "rejected debit writes nothing")
}

func TestStore_InsertRejectsClosedGame(t *testing.T) {
	pool := setupTestDB(t)
	store := NewStore(pool)
	ctx := context.Background()

	seedWinGame(t, pool, "G1", model.GameStatusLive)
	_, _, err := NewUserRepository(pool).GetOrCreate(ctx, "u1", "alice", dec(100))
	require.NoError(t, err)
	require.NoError(t, NewGameRepository(pool).UpdateStatus(ctx, "G1", model.GameStatusCompleted))

	err = store.InsertWinWager(ctx, model.Wager{
		ID: "w1", UserID: "u1", GameID: "G1", Amount: dec(30),
		Prediction: model.WinPick{Team: "Lions"}, Status: model.WagerStatusPending, CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, market.ErrMarketClosed)
	assert.ErrorIs(t, err, ErrGameNotLive)

	balance, err := store.GetUserBalance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(100)), "closed game debits nothing")

	wagers, err := store.ListWinWagers(ctx, "G1")
	require.NoError(t, err)
	assert.Empty(t, wagers)
}

func TestStore_ConcurrentWagersNeverOverdraw(t *testing.T) {
	pool := setupTestDB(t)
	store := NewStore(pool)
	ctx := context.Background()

	seedWinGame(t, pool, "G1", model.GameStatusLive)
	_, _, err := NewUserRepository(pool).GetOrCreate(ctx, "u1", "alice", dec(100))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.InsertWinWager(ctx, model.Wager{
				ID: "w" + string(rune('a'+i)), UserID: "u1", GameID: "G1", Amount: dec(30),
				Prediction: model.WinPick{Team: "Lions"}, Status: model.WagerStatusPending, CreatedAt: time.Now(),
			})
		}()
	}
	wg.Wait()

	wagers, err := store.ListWinWagers(ctx, "G1")
	require.NoError(t, err)
	assert.Len(t, wagers, 3)

	balance, err := store.GetUserBalance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(10)))
}

func TestStore_GameNotFound(t *testing.T) {
	pool := setupTestDB(t)
	_, err := NewStore(pool).GetGame(context.Background(), "missing")
	assert.ErrorIs(t, err, market.ErrGameNotFound)
}
