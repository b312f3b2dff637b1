package jobevents

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/automation-api/internal/core"
	"github.com/docuflow/automation-api/internal/domain/model"
	"github.com/docuflow/automation-api/internal/testutil"
)

func TestPublisherRoundTrip(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer func() {
		if err := client.Close(); err != nil {
			t.Logf("close redis: %v", err)
		}
	}()

	ctx := context.Background()
	const channel = "automation:jobs:test"

	sub := client.Subscribe(ctx, channel)
	defer func() {
		if err := sub.Close(); err != nil {
			t.Logf("close subscription: %v", err)
		}
	}()
	_, err := sub.Receive(ctx) // wait for the subscription to be live
	require.NoError(t, err)

	p := NewPublisherWithChannel(client, channel)
	at := time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(ctx, core.StatusEvent{
		JobID:       "job-1",
		ServiceKind: "damco_tracking_maersk",
		Status:      model.JobStatusCompleted,
		Progress:    100,
		At:          at,
	}))

	select {
	case msg := <-sub.Channel():
		var wire struct {
			JobID       string `json:"job_id"`
			ServiceKind string `json:"service_kind"`
			Status      string `json:"status"`
			Progress    int    `json:"progress"`
			At          string `json:"at"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &wire))
		assert.Equal(t, "job-1", wire.JobID)
		assert.Equal(t, "damco_tracking_maersk", wire.ServiceKind)
		assert.Equal(t, "completed", wire.Status)
		assert.Equal(t, 100, wire.Progress)
		assert.Equal(t, "2026-08-29T14:00:00Z", wire.At)
	case <-time.After(3 * time.Second):
		t.Fatal("no status event received")
	}
}

func TestNewPublisherDefaultsChannel(t *testing.T) {
	p := NewPublisherWithChannel(nil, "")
	assert.Equal(t, DefaultChannel, p.channel)
}
