package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/mapcore/internal/core/domain"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "MAP_MARKERS",
			Subjects:  []string{markerSubjectPrefix + ">"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "MAP_VIEWPORTS",
			Subjects:  []string{viewportSubjectPrefix + ">"},
			Retention: nats.LimitsPolicy,
			MaxAge:    1 * time.Hour,
			// Only the latest viewport of each view matters.
			MaxMsgsPerSubject: 1,
			Storage:           nats.MemoryStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist; update it.
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishMarkerEvent announces a marker change on map.markers.<action>.
func (p *Publisher) PublishMarkerEvent(ctx context.Context, ev *domain.MarkerEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(markerSubjectPrefix+Token(ev.Action), data, nats.Context(ctx))
	return err
}

// PublishViewport records the current viewport of a live map view.
func (p *Publisher) PublishViewport(ctx context.Context, ev *domain.ViewportEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(viewportSubjectPrefix+Token(ev.ViewID), data, nats.Context(ctx))
	return err
}

// PublishSnapshot fans a cluster snapshot out to WebSocket relays.
func (p *Publisher) PublishSnapshot(ctx context.Context, viewID string, snap *domain.ClusterSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return p.conn.Publish(ClusterSubject(viewID), data)
}

// Connected reports whether the connection is up.
func (p *Publisher) Connected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
