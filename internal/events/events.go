// Package events publishes and consumes wager events over Kafka.
package events

import (
	"time"

	"github.com/segmentio/kafka-go"

	"match-market/internal/config"
	"match-market/internal/model"
)

// WagerPlaced is emitted after a wager has been stored.
type WagerPlaced struct {
	WagerID     string `json:"wager_id"`
	GameID      string `json:"game_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	Team        string `json:"team,omitempty"`
	Bracket     int    `json:"bracket,omitempty"`
	Amount      string `json:"amount"`
	TsUnixMs    int64  `json:"ts_unix_ms"`
}

// NewWagerPlaced builds the event for a stored wager.
func NewWagerPlaced(w model.Wager) WagerPlaced {
	e := WagerPlaced{
		WagerID:     w.ID,
		GameID:      w.GameID,
		UserID:      w.UserID,
		DisplayName: w.DisplayName,
		Type:        string(w.Type()),
		Amount:      w.Amount.String(),
		TsUnixMs:    w.CreatedAt.UnixMilli(),
	}
	switch p := w.Prediction.(type) {
	case model.WinPick:
		e.Team = p.Team
	case model.ScorePick:
		e.Bracket = p.Bracket
	}
	return e
}

// Label is the human-readable selection of the event.
func (e WagerPlaced) Label() string {
	if e.Type == string(model.GameTypeScore) {
		return model.ScorePick{Bracket: e.Bracket}.Label()
	}
	return e.Team
}

// Time returns the placement time.
func (e WagerPlaced) Time() time.Time {
	return time.UnixMilli(e.TsUnixMs).UTC()
}

// NewWriter creates a Kafka writer for the wager topic.
func NewWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

// NewReader creates a consumer-group reader for the wager topic.
func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
}
