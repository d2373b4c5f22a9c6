package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_http_requests_total",
			Help: "Total number of HTTP requests processed by the collaboration service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collab_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "collab_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"kind", "event"},
	)
	relayedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_relayed_events_total",
			Help: "Inbound events relayed to a channel, by event name and scope kind.",
		},
		[]string{"event", "scope"},
	)
	droppedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_ws_dropped_frames_total",
			Help: "Outbound frames dropped because a connection's send buffer was full.",
		},
	)
	protocolErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_protocol_errors_total",
			Help: "Error events sent back to connections, by code.",
		},
		[]string{"code"},
	)
	editConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_edit_conflicts_total",
			Help: "code-change events that overwrote another author's revision within the conflict window.",
		},
	)
	handshakeRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_ws_handshake_rejected_total",
			Help: "Websocket handshakes refused, by reason.",
		},
		[]string{"reason"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		relayedEventsTotal,
		droppedFramesTotal,
		protocolErrorsTotal,
		editConflictsTotal,
		handshakeRejectedTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncRelayed(event, scope string) {
	relayedEventsTotal.WithLabelValues(event, scope).Inc()
}

func IncDroppedFrame() {
	droppedFramesTotal.Inc()
}

func IncProtocolError(code string) {
	protocolErrorsTotal.WithLabelValues(code).Inc()
}

func IncEditConflict() {
	editConflictsTotal.Inc()
}

func IncHandshakeRejected(reason string) {
	handshakeRejectedTotal.WithLabelValues(reason).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
