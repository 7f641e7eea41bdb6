package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aitzol/tilescout/internal/core/domain"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
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
			Name:      "MAP_VIEWPORTS",
			Subjects:  []string{"map.viewport.>"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    10 * time.Minute,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "MAP_DETECTIONS",
			Subjects:  []string{"map.detections.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist — try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishDetections(ctx context.Context, set *domain.DetectionSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return err
	}
	vpID := set.ViewportID
	if vpID == "" {
		vpID = "unbound"
	}
	_, err = p.js.Publish("map.detections."+vpID, data)
	return err
}

func (p *Publisher) PublishViewport(ctx context.Context, vp *domain.Viewport) error {
	data, err := json.Marshal(vp)
	if err != nil {
		return err
	}
	_, err = p.js.Publish("map.viewport.changed", data)
	return err
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
