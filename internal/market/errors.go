package market

import "errors"

// Rejections raised locally before anything is written to the store.
var (
	ErrMarketClosed        = errors.New("market is closed")
	ErrInvalidAmount       = errors.New("invalid amount: must be a positive number")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoSelection         = errors.New("no team selected")
	ErrInvalidSelection    = errors.New("invalid selection")
	ErrNotAuthenticated    = errors.New("sign in to place a bet")
	ErrGameNotLoaded       = errors.New("game not loaded")
)

// Store and session lifecycle errors.
var (
	ErrGameNotFound     = errors.New("game not found")
	ErrStoreFailure     = errors.New("store failure")
	ErrSubmitInProgress = errors.New("a bet is already being placed")
	ErrSessionClosed    = errors.New("session closed")
)

// submitFailedMessage is shown for any store failure while placing a bet.
const submitFailedMessage = "failed to place bet"

var rejectionReasons = []struct {
	err    error
	reason string
}{
	{ErrMarketClosed, "market_closed"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrNoSelection, "no_selection"},
	{ErrInvalidSelection, "invalid_selection"},
	{ErrNotAuthenticated, "not_authenticated"},
	{ErrGameNotLoaded, "game_not_loaded"},
}

// RejectionReason maps a local rejection to a stable label.
// It returns false for errors that are not local rejections.
func RejectionReason(err error) (string, bool) {
	for _, r := range rejectionReasons {
		if errors.Is(err, r.err) {
			return r.reason, true
		}
	}
	return "", false
}

// UserMessage returns the message shown to the user for a failed submission.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	// A store failure stays generic even when it wraps a rejection sentinel.
	if errors.Is(err, ErrStoreFailure) {
		return submitFailedMessage
	}
	for _, r := range rejectionReasons {
		if errors.Is(err, r.err) {
			return r.err.Error()
		}
	}
	if errors.Is(err, ErrSubmitInProgress) {
		return ErrSubmitInProgress.Error()
	}
	return submitFailedMessage
}
