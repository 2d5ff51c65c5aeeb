package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"match-market/internal/model"
)

// memStore is an in-memory Store with failure injection hooks.
type memStore struct {
	mu       sync.Mutex
	games    map[string]*model.Game
	balances map[string]decimal.Decimal
	win      map[string][]model.Wager
	score    map[string][]model.Wager

	winInserts   int
	scoreInserts int
	balanceCalls int

	gameErr    error
	balanceErr error
	listErr    error
	insertErr  error

	// gameGate, when set, blocks GetGame until closed; gameEntered is signalled first.
	gameGate    chan struct{}
	gameEntered chan struct{}
	// insertGate, when set, blocks inserts until closed; insertEntered is signalled first.
	insertGate    chan struct{}
	insertEntered chan struct{}
}

func newMemStore() *memStore {
	return &memStore{
		games:    make(map[string]*model.Game),
		balances: make(map[string]decimal.Decimal),
		win:      make(map[string][]model.Wager),
		score:    make(map[string][]model.Wager),
	}
}

func (m *memStore) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	if m.gameGate != nil {
		m.gameEntered <- struct{}{}
		<-m.gameGate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gameErr != nil {
		return nil, m.gameErr
	}
	g, ok := m.games[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *memStore) GetUserBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceCalls++
	if m.balanceErr != nil {
		return decimal.Zero, m.balanceErr
	}
	return m.balances[userID], nil
}

func (m *memStore) ListWinWagers(ctx context.Context, gameID string) ([]model.Wager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]model.Wager(nil), m.win[gameID]...), nil
}

func (m *memStore) ListScoreWagers(ctx context.Context, gameID string) ([]model.Wager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]model.Wager(nil), m.score[gameID]...), nil
}

func (m *memStore) InsertWinWager(ctx context.Context, w model.Wager) error {
	return m.insert(w, true)
}

func (m *memStore) InsertScoreWager(ctx context.Context, w model.Wager) error {
	return m.insert(w, false)
}

func (m *memStore) insert(w model.Wager, isWin bool) error {
	if m.insertGate != nil {
		m.insertEntered <- struct{}{}
		<-m.insertGate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if isWin {
		m.winInserts++
		m.win[w.GameID] = append(m.win[w.GameID], w)
	} else {
		m.scoreInserts++
		m.score[w.GameID] = append(m.score[w.GameID], w)
	}
	m.balances[w.UserID] = m.balances[w.UserID].Sub(w.Amount)
	return nil
}

func (m *memStore) inserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.winInserts + m.scoreInserts
}

// countingRecorder tallies recorder callbacks.
type countingRecorder struct {
	mu       sync.Mutex
	accepted map[model.GameType]int
	rejected map[string]int
	failed   map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		accepted: make(map[model.GameType]int),
		rejected: make(map[string]int),
		failed:   make(map[string]int),
	}
}

func (r *countingRecorder) WagerAccepted(t model.GameType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted[t]++
}

func (r *countingRecorder) WagerRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected[reason]++
}

func (r *countingRecorder) FetchFailed(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[op]++
}

func seededStore(game *model.Game, balance int64) *memStore {
	store := newMemStore()
	store.games[game.ID] = game
	store.balances["u1"] = decimal.NewFromInt(balance)
	return store
}

func newTestSession(store Store, gameID string, rec Recorder) *Session {
	n := 0
	return NewSession(store, Config{
		GameID:      gameID,
		UserID:      "u1",
		DisplayName: "alice",
		Policy:      DefaultErrorPolicy(),
		Recorder:    rec,
		Now:         func() time.Time { return epoch },
		NewID: func() string {
			n++
			return fmt.Sprintf("wager-%d", n)
		},
	})
}

func TestSession_Load(t *testing.T) {
	store := seededStore(liveWinGame(), 100)
	store.win["G1"] = []model.Wager{
		winWager("a", "Lions", 10, epoch),
		winWager("b", "Tigers", 15, epoch.Add(2*time.Minute)),
	}
	store.score["G1"] = []model.Wager{scoreWager("c", 3, 4, epoch.Add(time.Minute))}

	s := newTestSession(store, "G1", nil)
	require.NoError(t, s.Load(context.Background()))

	v := s.View()
	require.NotNil(t, v.Game)
	assert.Equal(t, "Lions", v.Game.TeamA)
	assert.False(t, v.NotFound)
	assert.True(t, v.Balance.Equal(decimal.NewFromInt(100)))
	require.Len(t, v.Wagers, 3)
	assert.Equal(t, "b", v.Wagers[0].ID)
	assert.Equal(t, "c", v.Wagers[1].ID)
	assert.Equal(t, "a", v.Wagers[2].ID)
	assert.True(t, v.Volume.Total.Equal(decimal.NewFromInt(29)))
	assert.True(t, v.Volume.SideA.Equal(decimal.NewFromInt(10)))
	assert.True(t, v.Volume.SideB.Equal(decimal.NewFromInt(15)))
	assert.Empty(t, v.Error)
}

func TestSession_AcceptedWinWager(t *testing.T) {
	store := seededStore(liveWinGame(), 100)
	rec := newCountingRecorder()
	s := newTestSession(store, "G1", rec)
	require.NoError(t, s.Load(context.Background()))
	before := s.View().Volume.SideA
	balanceCalls := store.balanceCalls

	wager, err := s.Submit(context.Background(), Draft{Amount: "30", Prediction: "Lions"})
	require.NoError(t, err)
	require.NotNil(t, wager)
	assert.Equal(t, "wager-1", wager.ID)
	assert.Equal(t, model.WagerStatusPending, wager.Status)
	assert.Equal(t, "alice", wager.DisplayName)

	v := s.View()
	assert.Equal(t, 1, store.winInserts)
	assert.Equal(t, 0, store.scoreInserts)
	assert.Greater(t, store.balanceCalls, balanceCalls, "balance refresh should be fetched")
	assert.True(t, v.Balance.Equal(decimal.NewFromInt(70)))
	assert.True(t, v.Volume.SideA.Sub(before).Equal(decimal.NewFromInt(30)))
	assert.True(t, v.Draft.IsEmpty(), "draft cleared after success")
	assert.Empty(t, v.Error)
	assert.False(t, v.Submitting)
	assert.Equal(t, 1, rec.accepted[model.GameTypeWin])
}

func TestSession_AcceptedScoreWagerGoesToScoreCollection(t *testing.T) {
	store := seededStore(liveScoreGame(), 50)
	s := newTestSession(store, "G2", nil)
	require.NoError(t, s.Load(context.Background()))

	_, err := s.Submit(context.Background(), Draft{Amount: "20", Prediction: "5"})
	require.NoError(t, err)

	assert.Equal(t, 0, store.winInserts)
	assert.Equal(t, 1, store.scoreInserts)
	v := s.View()
	require.Len(t, v.Wagers, 1)
	assert.Equal(t, model.ScorePick{Bracket: 5}, v.Wagers[0].Prediction)
	assert.True(t, v.Volume.Total.Equal(decimal.NewFromInt(20)))
	assert.True(t, v.Volume.SideA.IsZero())
}

func TestSession_InsufficientBalanceNoWrite(t *testing.T) {
	store := seededStore(liveWinGame(), 100)
	rec := newCountingRecorder()
	s := newTestSession(store, "G1", rec)
	require.NoError(t, s.Load(context.Background()))

	draft := Draft{Amount: "150", Prediction: "Lions"}
	_, err := s.Submit(context.Background(), draft)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 0, store.inserts())

	v := s.View()
	assert.Equal(t, draft, v.Draft, "draft kept for correction")
	assert.Equal(t, ErrInsufficientBalance.Error(), v.Error)
	assert.Equal(t, 1, rec.rejected["insufficient_balance"])
}

func TestSession_MarketClosed(t *testing.T) {
	game := liveWinGame()
	game.Status = model.GameStatusCompleted
	store := seededStore(game, 100)
	s := newTestSession(store, "G1", nil)
	require.NoError(t, s.Load(context.Background()))

	_, err := s.Submit(context.Background(), Draft{Amount: "30", Prediction: "Lions"})
	assert.ErrorIs(t, err, ErrMarketClosed)
	assert.Equal(t, 0, store.inserts())
}

func TestSession_GameCompletedAfterLoad(t *testing.T) {
	store := seededStore(liveWinGame(), 100)
	rec := newCountingRecorder()
	s := newTestSession(store, "G1", rec)
	require.NoError(t, s.Load(context.Background()))
	require.True(t, s.View().Game.IsLive())

	store.mu.Lock()
	store.games["G1"].Status = model.GameStatusCompleted
	store.mu.Unlock()

	_, err := s.Submit(context.Background(), Draft{Amount: "30", Prediction: "Lions"})
	assert.ErrorIs(t, err, ErrMarketClosed)
	assert.Equal(t, 0, store.inserts())

	v := s.View()
	assert.Equal(t, model.GameStatusCompleted, v.Game.Status, "submit picks up the new status")
	assert.Equal(t, ErrMarketClosed.Error(), v.Error)
	assert.Equal(t, 1, rec.rejected["market_closed"])
}

func TestSession_StoreRejectsClosedMarket(t *testing.T) {
	store := seededStore(liveWinGame(), 100)
	store.insertErr = fmt.Errorf("%w: game is not live", ErrMarketClosed)
	rec := newCountingRecorder()
	s := newTestSession(store, "G1", rec)
	require.NoError(t, s.Load(context.Background()))

	_, err := s.Submit(context.Background(), Draft{Amount: "30", Prediction: "Lions"})
	assert.ErrorIs(t, err, ErrMarketClosed)
	assert.NotErrorIs(t, err, ErrStoreFailure)

	v := s.View()
	assert.Equal(t, "market is closed", v.Error)
	assert.Equal(t, 1, rec.rejected["market_closed"])
	assert.Zero(t, rec.rejected["store_failure"])
}

func TestSession_BracketOutOfRange(t *testing.T) {
	store := seededStore(liveScoreGame(), 100)
	s := newTestSession(store, "G2", nil)
	require.NoError(t, s.Load(context.Background()))

	_, err := s.Submit(context.Background(), Draft{Amount: "10", Prediction: "12"})
	assert.ErrorIs(t, err, ErrInvalidSelection)
	assert.Equal(t, 0, store.inserts())
}

func TestSession_InvalidAmountNeverWrites(t *testing.T) {
	store := seededStore(liveWinGame(), 100)
	s := newTestSession(store, "G1", nil)
	require.NoError(t, s.Load(context.Background()))

	for _, amount := range []string{"0", "-1", "abc", ""} {
		_, err := s.Submit(context.Background(), Draft{Amount: amount, Prediction: "Lions"})
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %q", amount)
	}
	assert.Equal(t, 0, store.inserts())
}

func TestSession_StoreFailureSurfaced(t *testing.T) {
	store := seededStore(liveWinGame(), 100)
	store.insertErr = errors.New("connection reset")
	rec := newCountingRecorder()
	s := newTestSession(store, "G1", rec)
	require.NoError(t, s.Load(context.Background()))

	draft := Draft{Amount: "30", Prediction: "Lions"}
	_, err := s.Submit(context.Background(), draft)
	assert.ErrorIs(t, err, ErrStoreFailure)

	v := s.View()
	assert.Equal(t, "failed to place bet", v.Error)
	assert.Equal(t, draft, v.Draft)
	assert.True(t, v.Balance.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, rec.rejected["store_failure"])
}

func TestSession_FetchFailuresAreIsolated(t *testing.T) {
	store := seededStore(liveWinGame(), 100)
	store.win["G1"] = []model.Wager{winWager("a", "Lions", 10, epoch)}
	rec := newCountingRecorder()
	s := newTestSession(store, "G1", rec)
	require.NoError(t, s.Load(context.Background()))

	store.mu.Lock()
	store.balanceErr = errors.New("timeout")
	store.balances["u1"] = decimal.NewFromInt(5)
	store.win["G1"] = append(store.win["G1"], winWager("b", "Tigers", 20, epoch.Add(time.Minute)))
	store.mu.Unlock()

	require.NoError(t, s.Load(context.Background()))

	v := s.View()
	assert.NotNil(t, v.Game)
	assert.True(t, v.Balance.Equal(decimal.NewFromInt(100)), "balance keeps its prior value")
	assert.Len(t, v.Wagers, 2, "wager list still refreshed")
	assert.Empty(t, v.Error, "fetch failures are silent by default")
	assert.Equal(t, 1, rec.failed["balance"])
}

func TestSession_SurfacedFetchPolicy(t *testing.T) {
	store := seededStore(liveWinGame(), 100)
	store.listErr = errors.New("boom")
	s := NewSession(store, Config{
		GameID: "G1",
		UserID: "u1",
		Policy: ErrorPolicy{WagerFetch: Surface, Submit: Surface},
	})

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, "failed to load bets", s.View().Error)
}

func TestSession_GameNotFound(t *testing.T) {
	store := newMemStore()
	s := newTestSession(store, "missing", nil)
	require.NoError(t, s.Load(context.Background()))

	v := s.View()
	assert.Nil(t, v.Game)
	assert.True(t, v.NotFound)
	assert.Empty(t, v.Error)

	_, err := s.Submit(context.Background(), Draft{Amount: "1", Prediction: "Lions"})
	assert.ErrorIs(t, err, ErrGameNotLoaded)
}

func TestSession_AnonymousViewer(t *testing.T) {
	store := seededStore(liveWinGame(), 100)
	s := NewSession(store, Config{GameID: "G1"})
	require.NoError(t, s.Load(context.Background()))

	assert.Equal(t, 0, store.balanceCalls, "no balance fetch without a user")
	assert.NotNil(t, s.View().Game)

	_, err := s.Submit(context.Background(), Draft{Amount: "1", Prediction: "Lions"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, 0, store.inserts())

	// Authentication is checked before the market status.
	store.mu.Lock()
	store.games["G1"].Status = model.GameStatusCompleted
	store.mu.Unlock()
	_, err = s.Submit(context.Background(), Draft{Amount: "1", Prediction: "Lions"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.NotErrorIs(t, err, ErrMarketClosed)
}

func TestSession_RejectsConcurrentSubmit(t *testing.T) {
	store := seededStore(liveWinGame(), 100)
	s := newTestSession(store, "G1", nil)
	require.NoError(t, s.Load(context.Background()))

	store.insertGate = make(chan struct{})
	store.insertEntered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), Draft{Amount: "10", Prediction: "Lions"})
		done <- err
	}()

	<-store.insertEntered
	assert.True(t, s.Submitting())
	assert.True(t, s.View().Submitting)

	_, err := s.Submit(context.Background(), Draft{Amount: "10", Prediction: "Lions"})
	assert.ErrorIs(t, err, ErrSubmitInProgress)

	close(store.insertGate)
	require.NoError(t, <-done)

	assert.False(t, s.Submitting())
	assert.Equal(t, 1, store.inserts(), "only one wager written")
}

func TestSession_CloseDiscardsLateResults(t *testing.T) {
	store := seededStore(liveWinGame(), 100)
	store.gameGate = make(chan struct{})
	store.gameEntered = make(chan struct{}, 1)
	s := newTestSession(store, "G1", nil)

	done := make(chan error, 1)
	go func() {
		done <- s.Load(context.Background())
	}()

	<-store.gameEntered
	s.Close()
	close(store.gameGate)
	require.NoError(t, <-done)

	v := s.View()
	assert.Nil(t, v.Game, "late game result must not be applied")
	assert.True(t, s.Closed())

	assert.ErrorIs(t, s.Load(context.Background()), ErrSessionClosed)
	_, err := s.Submit(context.Background(), Draft{Amount: "1", Prediction: "Lions"})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_SetDraft(t *testing.T) {
	s := newTestSession(seededStore(liveWinGame(), 100), "G1", nil)
	s.SetDraft(Draft{Amount: "5", Prediction: "Tigers"})
	assert.Equal(t, Draft{Amount: "5", Prediction: "Tigers"}, s.View().Draft)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, ErrMarketClosed.Error(), UserMessage(ErrMarketClosed))
	assert.Equal(t, ErrInvalidSelection.Error(), UserMessage(fmt.Errorf("%w: bracket", ErrInvalidSelection)))
	assert.Equal(t, "failed to place bet", UserMessage(fmt.Errorf("%w: x", ErrStoreFailure)))

	// A store failure wrapping a rejection sentinel still reads as a store failure.
	lostRace := fmt.Errorf("%w: %w", ErrStoreFailure, fmt.Errorf("%w: race", ErrInsufficientBalance))
	assert.Equal(t, "failed to place bet", UserMessage(lostRace))
}
