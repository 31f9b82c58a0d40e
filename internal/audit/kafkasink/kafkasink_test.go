package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"arteng.org/internal/audit"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishKeysByAccount(t *testing.T) {
	fw := &fakeWriter{}
	p := NewWithWriter(fw)
	rec := audit.Record{
		ID:         "01JAAAAAAAAAAAAAAAAAAAAAAA",
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Message:    "Purged 3 records",
		ActionType: audit.Delete,
		Account:    "user_9",
	}
	if err := p.Publish(context.Background(), rec); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(fw.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fw.msgs))
	}
	msg := fw.msgs[0]
	if string(msg.Key) != "user_9" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	var decoded map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("value is not json: %v", err)
	}
	if decoded["actionType"] != "Delete" || decoded["message"] != "Purged 3 records" {
		t.Fatalf("unexpected payload: %v", decoded)
	}
	if err := p.Close(); err != nil || !fw.closed {
		t.Fatalf("close not forwarded: %v", err)
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewWithWriter(&fakeWriter{err: boom})
	err := p.Publish(context.Background(), audit.Record{ID: "x", ActionType: audit.System})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}
