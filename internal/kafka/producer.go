package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmehdipour/vm-relay/internal/model"
	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration // default 10s
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes relay events. It is a thin wrapper around segmentio/kafka-go Writer.
type Producer struct {
	w messageWriter
}

func NewProducerFromConfig(c Config) *Producer {
	wt := c.WriteTimeout
	if wt <= 0 {
		wt = 10 * time.Second
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafka.Hash{}, // same message id, same partition
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: wt,
		BatchSize:    1, // one event per relayed voicemail; do not wait for a batch
	}

	return &Producer{w: w}
}

// Publish writes the envelope keyed by provider message id.
func (p *Producer) Publish(ctx context.Context, env model.Envelope) error {
	msg, err := message(env)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", env.MessageID, err)
	}
	return nil
}

func message(env model.Envelope) (kafka.Message, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal envelope: %w", err)
	}
	return kafka.Message{
		Key:   []byte(env.MessageID),
		Value: b,
		Time:  env.RelayedAt,
	}, nil
}

func (p *Producer) Close() error { return p.w.Close() }
