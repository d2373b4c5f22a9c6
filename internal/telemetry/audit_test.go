package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collab-service/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.collab", "collab-service", "test")
	emitter.now = func() time.Time { return time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC) }
	userID := "u1"

	publisher.On("Publish", mock.Anything, "audit.collab", mock.Anything, map[string]string{"x-request-id": "req-1"}).
		Return(nil).Once()

	emitter.Emit(context.Background(), "INFO", "room created", "req-1", &userID)

	publisher.AssertExpectations(t)
	envelope, ok := publisher.Calls[0].Arguments.Get(2).(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, "audit_log", envelope.EventType)
	assert.Equal(t, "2026-10-15T08:30:00Z", envelope.OccurredAt)
	assert.Equal(t, "collab-service", envelope.Service)
	assert.Equal(t, "u1", *envelope.UserID)
	assert.Equal(t, AuditPayload{Level: "INFO", Text: "room created"}, envelope.Payload)
}

func TestEmitSwallowsPublishError(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.collab", "collab-service", "test")
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	emitter.Emit(context.Background(), "WARN", "x", "", nil)
	publisher.AssertExpectations(t)
}

func TestEmitOnNilEmitter(t *testing.T) {
	var emitter *AuditEmitter
	emitter.Emit(context.Background(), "INFO", "ignored", "", nil)
}
