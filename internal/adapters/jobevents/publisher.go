// Package jobevents publishes job status transitions to a Redis channel so
// dashboards can stream updates without polling the API.
package jobevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docuflow/automation-api/internal/core"
)

// DefaultChannel is the pub/sub channel status events land on.
const DefaultChannel = "automation:jobs"

// Publisher emits status events over Redis pub/sub. Fire-and-forget: a
// dropped event is acceptable, a blocked job lifecycle is not, so Publish
// carries its own short deadline.
type Publisher struct {
	client  redis.UniversalClient
	channel string
	timeout time.Duration
}

var _ core.StatusPublisher = (*Publisher)(nil)

// NewPublisher creates a publisher on the default channel.
func NewPublisher(client redis.UniversalClient) *Publisher {
	return NewPublisherWithChannel(client, DefaultChannel)
}

// NewPublisherWithChannel creates a publisher on a custom channel.
func NewPublisherWithChannel(client redis.UniversalClient, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{
		client:  client,
		channel: channel,
		timeout: 2 * time.Second,
	}
}

// statusEventWire is the published JSON shape.
type statusEventWire struct {
	JobID       string `json:"job_id"`
	ServiceKind string `json:"service_kind"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	At          string `json:"at"`
}

// Publish sends one status event.
func (p *Publisher) Publish(ctx context.Context, evt core.StatusEvent) error {
	payload, err := json.Marshal(statusEventWire{
		JobID:       evt.JobID,
		ServiceKind: evt.ServiceKind,
		Status:      string(evt.Status),
		Progress:    evt.Progress,
		At:          evt.At.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish status event: %w", err)
	}
	return nil
}
