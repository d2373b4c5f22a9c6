package observability

import (
	"context"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"collab-service/internal/mocks"
)

func TestPublishEventWithoutPublisherIsNoop(t *testing.T) {
	SetPublisher(nil)
	require.NoError(t, PublishEvent(context.Background(), WSRoutingRooms, EventEnvelope{}, nil))
}

func TestPublishEventDelegates(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	SetPublisher(publisher)
	t.Cleanup(func() { SetPublisher(nil) })

	headers := BuildHeaders("req-1", "trace-1")
	envelope := NewWSEnvelope(WSEvent{Kind: "room", ResourceID: "12345678", Event: "ws_connect", ConnID: "c1"}, WSIdentity{UserID: "u1"}, time.Time{})
	publisher.On("Publish", mock.Anything, WSRoutingRooms, envelope, headers).Return(assert.AnError).Once()

	err := PublishEvent(context.Background(), WSRoutingRooms, envelope, headers)
	require.ErrorIs(t, err, assert.AnError)
	publisher.AssertExpectations(t)
}

func TestBuildHeaders(t *testing.T) {
	assert.Empty(t, BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "t"}, BuildHeaders("r", "t"))
}

func TestWSRoutingKey(t *testing.T) {
	assert.Equal(t, WSRoutingProjects, WSRoutingKey("project"))
	assert.Equal(t, WSRoutingRooms, WSRoutingKey("room"))
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "10.0.0.7", IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", IPFromRequest(req))
}

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/grpc.health.v1.Health/Check")
	assert.Equal(t, "grpc.health.v1.Health", service)
	assert.Equal(t, "Check", method)

	service, method = splitFullMethod("bogus")
	assert.Equal(t, "unknown", service)
	assert.Equal(t, "unknown", method)
}

func TestHealthServerReportsServing(t *testing.T) {
	lis := bufconn.Listen(1 << 16)
	srv := NewHealthServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	srv.MarkServing()
	resp, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestInitTracingWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "collab-service", "test", "")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
