package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"match-market/internal/market"
	"match-market/internal/model"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher writes WagerPlaced events keyed by game id, so one game's
// events stay ordered within a partition.
type Publisher struct {
	writer MessageWriter
}

// NewPublisher creates a Publisher over w.
func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

// Publish sends one event.
func (p *Publisher) Publish(ctx context.Context, e WagerPlaced) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode wager event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.GameID),
		Value: b,
		Time:  e.Time(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish wager event: %w", err)
	}
	return nil
}

// PublishingStore wraps a market.Store and announces every stored wager.
// A failed publish never fails the insert; the wager is already committed.
type PublishingStore struct {
	market.Store
	publisher *Publisher

	// OnError is called when a publish fails. Optional.
	OnError func()
}

// NewPublishingStore decorates store with event publishing.
func NewPublishingStore(store market.Store, publisher *Publisher) *PublishingStore {
	return &PublishingStore{Store: store, publisher: publisher}
}

func (s *PublishingStore) InsertWinWager(ctx context.Context, w model.Wager) error {
	if err := s.Store.InsertWinWager(ctx, w); err != nil {
		return err
	}
	s.announce(ctx, w)
	return nil
}

func (s *PublishingStore) InsertScoreWager(ctx context.Context, w model.Wager) error {
	if err := s.Store.InsertScoreWager(ctx, w); err != nil {
		return err
	}
	s.announce(ctx, w)
	return nil
}

func (s *PublishingStore) announce(ctx context.Context, w model.Wager) {
	if err := s.publisher.Publish(ctx, NewWagerPlaced(w)); err != nil {
		log.Warn().
			Err(err).
			Str("wager_id", w.ID).
			Str("game_id", w.GameID).
			Msg("Wager stored but event not published")
		if s.OnError != nil {
			s.OnError()
		}
	}
}
