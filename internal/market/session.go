package market

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"match-market/internal/model"
)

// Exposure decides whether a failure class is shown to the user or only logged.
type Exposure int

const (
	// Silent failures are logged and leave prior state untouched.
	Silent Exposure = iota
	// Surface failures additionally set the session error message.
	Surface
)

// ErrorPolicy holds one exposure flag per failure class.
type ErrorPolicy struct {
	GameFetch    Exposure
	BalanceFetch Exposure
	WagerFetch   Exposure
	Submit       Exposure
}

// DefaultErrorPolicy degrades quietly on fetches and reports submit failures.
func DefaultErrorPolicy() ErrorPolicy {
	return ErrorPolicy{
		GameFetch:    Silent,
		BalanceFetch: Silent,
		WagerFetch:   Silent,
		Submit:       Surface,
	}
}

// Config is everything a session needs besides its store.
type Config struct {
	GameID      string
	UserID      string // empty for an anonymous viewer
	DisplayName string

	Policy          ErrorPolicy
	StrictSelection bool
	// FetchTimeout bounds each load; zero means no bound beyond the caller's context.
	FetchTimeout time.Duration

	Recorder Recorder
	Now      func() time.Time
	NewID    func() string
}

// View is the read-only state the display layer renders.
type View struct {
	Game       *model.Game
	NotFound   bool
	Balance    decimal.Decimal
	Wagers     []model.Wager
	Volume     VolumeSnapshot
	Draft      Draft
	Error      string
	Submitting bool
}

// Session owns one user's view of one market: game, balance, wager list and draft.
// Fetches run concurrently; at most one submission is in flight at a time.
// After Close, results of fetches still in flight are discarded.
type Session struct {
	store     Store
	cfg       Config
	validator Validator
	recorder  Recorder

	submitting atomic.Bool

	// base is cancelled by Close so in-flight fetches stop early.
	base   context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	closed     bool
	generation uint64
	// last generation applied per resource; older results are dropped
	gameGen, balanceGen, wagersGen uint64

	game     *model.Game
	notFound bool
	balance  decimal.Decimal
	wagers   []model.Wager
	volume   VolumeSnapshot
	draft    Draft
	errMsg   string
}

// NewSession creates a session for cfg.GameID. Call Load to populate it.
func NewSession(store Store, cfg Config) *Session {
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	base, cancel := context.WithCancel(context.Background())

	return &Session{
		store:     store,
		cfg:       cfg,
		validator: Validator{StrictSelection: cfg.StrictSelection},
		recorder:  cfg.Recorder,
		base:      base,
		cancel:    cancel,
		balance:   decimal.Zero,
		volume:    Snapshot(nil, nil),
	}
}

// GameID returns the game this session is browsing.
func (s *Session) GameID() string { return s.cfg.GameID }

// UserID returns the acting user, or "" for an anonymous viewer.
func (s *Session) UserID() string { return s.cfg.UserID }

// Load fetches the game, the user's balance and the wager list concurrently.
// Failures are isolated: each resource keeps its prior value when its fetch fails.
// Load only returns an error when the session has been closed.
func (s *Session) Load(ctx context.Context) error {
	return s.refresh(ctx, true, s.cfg.UserID != "", true)
}

// Refresh reloads the balance and the wager list, leaving the game as loaded.
func (s *Session) Refresh(ctx context.Context) error {
	return s.refresh(ctx, false, s.cfg.UserID != "", true)
}

func (s *Session) refresh(ctx context.Context, game, balance, wagers bool) error {
	gen, ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	var g errgroup.Group
	if game {
		g.Go(func() error {
			s.fetchGame(ctx, gen)
			return nil
		})
	}
	if balance {
		g.Go(func() error {
			s.fetchBalance(ctx, gen)
			return nil
		})
	}
	if wagers {
		g.Go(func() error {
			s.fetchWagers(ctx, gen)
			return nil
		})
	}
	_ = g.Wait()

	return nil
}

// begin opens a new load generation with a context tied to the session lifetime.
func (s *Session) begin(ctx context.Context) (uint64, context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, nil, nil, ErrSessionClosed
	}
	s.generation++

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.base, cancel)
	if s.cfg.FetchTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		inner := cancel
		cancel = func() {
			cancelTimeout()
			inner()
		}
	}

	return s.generation, ctx, func() {
		stop()
		cancel()
	}, nil
}

func (s *Session) fetchGame(ctx context.Context, gen uint64) {
	game, err := s.store.GetGame(ctx, s.cfg.GameID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen < s.gameGen {
		return
	}
	s.gameGen = gen

	switch {
	case err == nil:
		s.game = game
		s.notFound = false
		s.volume = Snapshot(s.game, s.wagers)
	case errors.Is(err, ErrGameNotFound):
		log.Info().Str("game_id", s.cfg.GameID).Msg("Game not found")
		s.game = nil
		s.notFound = true
		s.volume = Snapshot(nil, s.wagers)
	default:
		s.fetchFailed("game", s.cfg.Policy.GameFetch, "failed to load game", err)
	}
}

func (s *Session) fetchBalance(ctx context.Context, gen uint64) {
	balance, err := s.store.GetUserBalance(ctx, s.cfg.UserID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen < s.balanceGen {
		return
	}
	s.balanceGen = gen

	if err != nil {
		s.fetchFailed("balance", s.cfg.Policy.BalanceFetch, "failed to load balance", err)
		return
	}
	s.balance = balance
}

func (s *Session) fetchWagers(ctx context.Context, gen uint64) {
	var win, score []model.Wager

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		win, err = s.store.ListWinWagers(gctx, s.cfg.GameID)
		return err
	})
	g.Go(func() error {
		var err error
		score, err = s.store.ListScoreWagers(gctx, s.cfg.GameID)
		return err
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen < s.wagersGen {
		return
	}
	s.wagersGen = gen

	if err != nil {
		s.fetchFailed("wagers", s.cfg.Policy.WagerFetch, "failed to load bets", err)
		return
	}
	s.wagers = MergeWagers(win, score)
	s.volume = Snapshot(s.game, s.wagers)
}

// fetchFailed records a fetch failure. Callers hold s.mu.
func (s *Session) fetchFailed(op string, exposure Exposure, message string, err error) {
	s.recorder.FetchFailed(op)
	log.Warn().
		Err(err).
		Str("op", op).
		Str("game_id", s.cfg.GameID).
		Str("user_id", s.cfg.UserID).
		Msg("Market fetch failed")
	if exposure == Surface {
		s.errMsg = message
	}
}

// SetDraft replaces the draft without submitting it.
func (s *Session) SetDraft(d Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.draft = d
	}
}

// Submitting reports whether a submission is in flight.
func (s *Session) Submitting() bool {
	return s.submitting.Load()
}

// Submit validates the draft and writes it to the collection matching the game type.
// On success the wager list and balance are reloaded from the store and the draft is cleared.
// On failure the draft is kept and the session error message is set.
// A second call while one is in flight returns ErrSubmitInProgress and changes nothing.
//
// The game is re-read before validation so a status change since Load is honoured;
// if that read fails the last loaded game is used. An anonymous session is rejected
// with ErrNotAuthenticated before any other check, so it never sees ErrMarketClosed.
func (s *Session) Submit(ctx context.Context, draft Draft) (*model.Wager, error) {
	if !s.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmitInProgress
	}
	defer s.submitting.Store(false)

	if err := s.refresh(ctx, true, false, false); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.draft = draft
	game := s.game
	balance := s.balance
	s.mu.Unlock()

	if s.cfg.UserID == "" {
		return nil, s.reject(ErrNotAuthenticated)
	}

	ticket, err := s.validator.Validate(game, draft, balance)
	if err != nil {
		return nil, s.reject(err)
	}

	wager := model.Wager{
		ID:          s.cfg.NewID(),
		UserID:      s.cfg.UserID,
		GameID:      game.ID,
		Amount:      ticket.Amount,
		Prediction:  ticket.Prediction,
		Status:      model.WagerStatusPending,
		CreatedAt:   s.cfg.Now().UTC(),
		DisplayName: s.cfg.DisplayName,
	}

	switch ticket.Prediction.(type) {
	case model.WinPick:
		err = s.store.InsertWinWager(ctx, wager)
	case model.ScorePick:
		err = s.store.InsertScoreWager(ctx, wager)
	}
	if errors.Is(err, ErrMarketClosed) {
		// The game closed between the re-read and the write; pick up its new status.
		_ = s.refresh(ctx, true, false, false)
		return nil, s.reject(err)
	}
	if err != nil {
		return nil, s.storeFailed(fmt.Errorf("%w: %w", ErrStoreFailure, err))
	}

	s.recorder.WagerAccepted(wager.Type())
	log.Info().
		Str("wager_id", wager.ID).
		Str("game_id", wager.GameID).
		Str("user_id", wager.UserID).
		Str("type", string(wager.Type())).
		Str("prediction", wager.Prediction.Label()).
		Str("amount", wager.Amount.String()).
		Msg("Wager placed")

	s.mu.Lock()
	if !s.closed {
		s.draft = Draft{}
		s.errMsg = ""
	}
	s.mu.Unlock()

	// Full reload: the store is the only source of truth for balance and feed.
	if err := s.refresh(ctx, false, true, true); err != nil && !errors.Is(err, ErrSessionClosed) {
		return &wager, err
	}

	return &wager, nil
}

// reject records a local validation rejection.
func (s *Session) reject(err error) error {
	if reason, ok := RejectionReason(err); ok {
		s.recorder.WagerRejected(reason)
	}
	log.Debug().
		Err(err).
		Str("game_id", s.cfg.GameID).
		Str("user_id", s.cfg.UserID).
		Msg("Wager rejected")

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.errMsg = UserMessage(err)
	}
	return err
}

// storeFailed records a failed write.
func (s *Session) storeFailed(err error) error {
	s.recorder.WagerRejected("store_failure")
	log.Error().
		Err(err).
		Str("game_id", s.cfg.GameID).
		Str("user_id", s.cfg.UserID).
		Msg("Failed to place wager")

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed && s.cfg.Policy.Submit == Surface {
		s.errMsg = submitFailedMessage
	}
	return err
}

// View returns a copy of the session state for display.
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var game *model.Game
	if s.game != nil {
		g := *s.game
		game = &g
	}

	return View{
		Game:       game,
		NotFound:   s.notFound,
		Balance:    s.balance,
		Wagers:     slices.Clone(s.wagers),
		Volume:     s.volume,
		Draft:      s.draft,
		Error:      s.errMsg,
		Submitting: s.submitting.Load(),
	}
}

// Close tears the session down. Fetches still in flight are cancelled and their
// results dropped; the last view remains readable.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
