// Package kafkasink exports audit records to a Kafka topic.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"arteng.org/internal/audit"
)

// Writer is the subset of *kafka.Writer used by the publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per audit record, keyed by account so that a
// given actor's records land on one partition in order.
type Publisher struct {
	writer Writer
}

func New(brokers []string, topic string) *Publisher {
	return NewWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	})
}

func NewWithWriter(w Writer) *Publisher {
	return &Publisher{writer: w}
}

func (p *Publisher) Publish(ctx context.Context, r audit.Record) error {
	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(r.Account),
		Value: value,
		Time:  r.Timestamp,
		Headers: []kafka.Header{
			{Key: "action_type", Value: []byte(r.ActionType.String())},
			{Key: "action_code", Value: []byte(strconv.Itoa(int(r.ActionType)))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write audit record %s: %w", r.ID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
