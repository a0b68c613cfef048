package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/mapcore/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeMarkerEvents delivers marker changes. Failed deliveries are
// retried up to three times.
func (s *Subscriber) SubscribeMarkerEvents(ctx context.Context, handler func(ctx context.Context, ev *domain.MarkerEvent) error) error {
	return s.subscribe(ctx, markerSubjectPrefix+">", "marker-relay", func(data []byte) error {
		var ev domain.MarkerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		return handler(ctx, &ev)
	})
}

// SubscribeViewports delivers viewport updates of live map views.
func (s *Subscriber) SubscribeViewports(ctx context.Context, handler func(ctx context.Context, ev *domain.ViewportEvent) error) error {
	return s.subscribe(ctx, viewportSubjectPrefix+">", "viewport-relay", func(data []byte) error {
		var ev domain.ViewportEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		return handler(ctx, &ev)
	})
}

func (s *Subscriber) subscribe(ctx context.Context, subject, durable string, handle func([]byte) error) error {
	sub, err := s.js.Subscribe(subject, func(msg *nats.Msg) {
		if err := handle(msg.Data); err != nil {
			slog.WarnContext(ctx, "event handling failed", "subject", msg.Subject, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
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
