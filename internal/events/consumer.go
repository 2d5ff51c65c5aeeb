package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Handler receives decoded wager events.
type Handler func(ctx context.Context, e WagerPlaced)

// Consumer reads WagerPlaced events and hands them to a Handler.
type Consumer struct {
	Reader MessageReader

	// RetryDelay is the pause after a failed read. Defaults to 500ms.
	RetryDelay time.Duration
	// OnError is called with the failing phase ("read" or "decode"). Optional.
	OnError func(phase string)
}

// Run consumes until ctx is cancelled and then returns ctx.Err().
// Undecodable messages are skipped.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	delay := c.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("Kafka read failed")
			c.failed("read")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		var e WagerPlaced
		if err := json.Unmarshal(m.Value, &e); err != nil {
			log.Warn().Err(err).Int64("offset", m.Offset).Msg("Invalid wager event")
			c.failed("decode")
			continue
		}

		handle(ctx, e)
	}
}

func (c *Consumer) failed(phase string) {
	if c.OnError != nil {
		c.OnError(phase)
	}
}
