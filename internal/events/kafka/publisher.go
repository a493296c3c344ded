// Package kafka streams ledger events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the publisher.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// Publisher writes each event as one message. Messages are keyed by game id
// so every event of a game lands on the same partition in commit order.
type Publisher struct {
	w   messageWriter
	now func() time.Time
}

// NewPublisher creates a publisher with a hash-balanced writer.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	batch := cfg.BatchTimeout
	if batch <= 0 {
		batch = 10 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batch,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w), nil
}

func newPublisher(w messageWriter) *Publisher {
	return &Publisher{w: w, now: time.Now}
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	msg := kafka.Message{
		Key:   messageKey(channel, payload),
		Value: payload,
		Time:  p.now(),
		Headers: []kafka.Header{
			{Key: "channel", Value: []byte(channel)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", channel, err)
	}
	return nil
}

// messageKey is the game id for game events and the channel otherwise.
func messageKey(channel string, payload []byte) []byte {
	var head struct {
		GameID uint64 `json:"game_id"`
	}
	if err := json.Unmarshal(payload, &head); err == nil && head.GameID != 0 {
		return []byte("game:" + strconv.FormatUint(head.GameID, 10))
	}
	return []byte(channel)
}

func (p *Publisher) Close() error {
	return p.w.Close()
}
