package handler

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"match-market/internal/config"
	"match-market/internal/market"
	"match-market/internal/pkg/lock"
)

// openSession is a market session bound to the chat it reports to.
type openSession struct {
	session *market.Session
	chatID  int64
}

// SessionRegistry keeps at most one market session per Telegram user.
// Commands for one user are serialised with a keyed lock so a session is
// never replaced while another command is using it.
type SessionRegistry struct {
	store    market.Store
	cfg      config.MarketConfig
	recorder market.Recorder

	locks *lock.KeyedLock[int64]

	mu       sync.RWMutex
	sessions map[int64]openSession
}

// NewSessionRegistry creates a registry that opens sessions over store.
func NewSessionRegistry(store market.Store, cfg config.MarketConfig, recorder market.Recorder) *SessionRegistry {
	return &SessionRegistry{
		store:    store,
		cfg:      cfg,
		recorder: recorder,
		locks:    lock.New[int64](),
		sessions: make(map[int64]openSession),
	}
}

// Policy returns the error exposure policy derived from configuration.
func (r *SessionRegistry) Policy() market.ErrorPolicy {
	p := market.DefaultErrorPolicy()
	if r.cfg.SurfaceFetchErrors {
		p.GameFetch = market.Surface
		p.BalanceFetch = market.Surface
		p.WagerFetch = market.Surface
	}
	return p
}

// WithUser runs fn while holding the user's command lock.
func (r *SessionRegistry) WithUser(ctx context.Context, userID int64, fn func() error) error {
	return r.locks.WithLockContext(ctx, userID, fn)
}

// Open replaces the user's session with a fresh one on gameID and loads it.
// Callers hold the user's lock.
func (r *SessionRegistry) Open(ctx context.Context, userID, chatID int64, displayName, gameID string) *market.Session {
	s := market.NewSession(r.store, market.Config{
		GameID:          gameID,
		UserID:          strconv.FormatInt(userID, 10),
		DisplayName:     displayName,
		Policy:          r.Policy(),
		StrictSelection: r.cfg.StrictSelection,
		FetchTimeout:    r.cfg.FetchTimeout,
		Recorder:        r.recorder,
	})

	r.mu.Lock()
	old, hadOld := r.sessions[userID]
	r.sessions[userID] = openSession{session: s, chatID: chatID}
	r.mu.Unlock()

	if hadOld {
		old.session.Close()
	}

	if err := s.Load(ctx); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Str("game_id", gameID).Msg("Session load failed")
	}
	return s
}

// Get returns the user's open session, if any.
func (r *SessionRegistry) Get(userID int64) (*market.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.sessions[userID]
	return o.session, ok
}

// Close tears down the user's session. It reports whether one was open.
func (r *SessionRegistry) Close(userID int64) bool {
	r.mu.Lock()
	o, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	if ok {
		o.session.Close()
	}
	return ok
}

// Viewer is a user currently browsing a game.
type Viewer struct {
	UserID  int64
	ChatID  int64
	Session *market.Session
}

// Viewers lists the sessions open on gameID.
func (r *SessionRegistry) Viewers(gameID string) []Viewer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Viewer
	for userID, o := range r.sessions {
		if o.session.GameID() == gameID {
			out = append(out, Viewer{UserID: userID, ChatID: o.chatID, Session: o.session})
		}
	}
	return out
}

// Reload re-reads every open session on gameID and returns how many were reloaded.
func (r *SessionRegistry) Reload(ctx context.Context, gameID string) int {
	n := 0
	for _, v := range r.Viewers(gameID) {
		if err := v.Session.Load(ctx); err != nil {
			continue
		}
		n++
	}
	return n
}

// CloseAll tears down every session.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[int64]openSession)
	r.mu.Unlock()

	for _, o := range sessions {
		o.session.Close()
	}
	log.Info().Int("sessions", len(sessions)).Msg("Market sessions closed")
}

// Len returns the number of open sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
