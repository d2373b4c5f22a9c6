package rabbitmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/observability"
	"collab-service/internal/telemetry"
)

func TestNewPublisherWithoutURLIsNoop(t *testing.T) {
	p := NewPublisher("", "collab.events")

	assert.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))
	require.NoError(t, p.Publish(context.Background(), "audit.collab", telemetry.AuditEnvelope{EventType: "audit_log"}, nil))
	require.NoError(t, p.Publish(context.Background(), observability.WSRoutingRooms, observability.EventEnvelope{EventName: "ws_connect"}, nil))
	require.NoError(t, p.Close())
}

func TestToTable(t *testing.T) {
	assert.Nil(t, toTable(nil))
	table := toTable(map[string]string{"x-request-id": "r1"})
	assert.Equal(t, "r1", table["x-request-id"])
}

func TestPublisherModeUnknown(t *testing.T) {
	assert.Equal(t, "unknown", PublisherMode(nil))
	assert.Empty(t, PublisherNoopReason(nil))
}
