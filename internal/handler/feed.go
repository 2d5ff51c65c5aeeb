package handler

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"match-market/internal/events"
)

// Sender delivers chat messages. *tele.Bot satisfies it.
type Sender interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

// FeedNotifier pushes other participants' wagers to everyone viewing the
// same game and refreshes their sessions so volume and feed stay current.
type FeedNotifier struct {
	sessions *SessionRegistry
	sender   Sender

	// OnDelivered is called once per event that reached at least one viewer. Optional.
	OnDelivered func()
}

// NewFeedNotifier creates a FeedNotifier.
func NewFeedNotifier(sessions *SessionRegistry, sender Sender) *FeedNotifier {
	return &FeedNotifier{sessions: sessions, sender: sender}
}

// Handle is an events.Handler.
func (n *FeedNotifier) Handle(ctx context.Context, e events.WagerPlaced) {
	text := FormatFeedEvent(e)
	delivered := false

	for _, v := range n.sessions.Viewers(e.GameID) {
		if strconv.FormatInt(v.UserID, 10) == e.UserID {
			continue
		}

		if err := v.Session.Refresh(ctx); err != nil {
			// Closed between listing and refresh.
			continue
		}

		if v.ChatID == 0 {
			continue
		}
		if _, err := n.sender.Send(&tele.Chat{ID: v.ChatID}, text); err != nil {
			log.Warn().Err(err).Int64("chat_id", v.ChatID).Str("game_id", e.GameID).Msg("Failed to push feed event")
			continue
		}
		delivered = true
	}

	if delivered && n.OnDelivered != nil {
		n.OnDelivered()
	}
}
