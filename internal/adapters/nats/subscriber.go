package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/tripsummary/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn     *nats.Conn
	js       nats.JetStreamContext
	consumer string
	subs     []*nats.Subscription
}

// NewSubscriber creates a subscriber. Every node that keeps a local cache
// needs its own consumer name so each one sees every event; an empty name
// uses an ephemeral consumer that only receives new events.
func NewSubscriber(url, consumer string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js, consumer: consumer}, nil
}

// SubscribeTrackEvents delivers every track event to handler. Failed
// deliveries are redelivered up to three times.
func (s *Subscriber) SubscribeTrackEvents(ctx context.Context, handler func(ctx context.Context, event *domain.TrackEvent) error) error {
	opts := []nats.SubOpt{nats.ManualAck(), nats.MaxDeliver(3)}
	if s.consumer != "" {
		opts = append(opts, nats.Durable(s.consumer))
	} else {
		opts = append(opts, nats.DeliverNew())
	}

	sub, err := s.js.Subscribe(SubjectAll, func(msg *nats.Msg) {
		var event domain.TrackEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			// poison message, never redeliver
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &event); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, opts...)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
