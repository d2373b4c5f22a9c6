package ws

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"collab-service/internal/auth"
	"collab-service/internal/observability"
	"collab-service/internal/ratelimit"
	"collab-service/internal/telemetry"
)

const connectionKind = "connection"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler accepts websocket connections for the hub.
type Handler struct {
	hub            *Hub
	limiter        *ratelimit.Limiter
	audit          *telemetry.AuditEmitter
	sendBuffer     int
	maxMessageSize int64
}

// NewHandler constructs a Handler. audit may be nil.
func NewHandler(hub *Hub, limiter *ratelimit.Limiter, audit *telemetry.AuditEmitter, sendBuffer int, maxMessageSize int64) *Handler {
	return &Handler{hub: hub, limiter: limiter, audit: audit, sendBuffer: sendBuffer, maxMessageSize: maxMessageSize}
}

// Handle authenticates the handshake, upgrades, and runs the connection.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("collab-service/ws").Start(c.Request.Context(), "ws.handshake", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	ip := observability.IPFromRequest(c.Request)
	requestID := observability.RequestIDFromRequest(c.Request)
	if res := h.limiter.Check(ip); !res.Allowed {
		observability.IncHandshakeRejected("rate_limited")
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many failed connection attempts", "code": CodeRateLimited})
		return
	}

	client := NewClient(newConnID(), h.sendBuffer, h.maxMessageSize)
	session, err := h.hub.Authenticate(ctx, client, tokenFromRequest(c.Request))
	if err != nil {
		h.limiter.Record(ip)
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		if errors.Is(err, auth.ErrInvalidToken) {
			observability.IncHandshakeRejected("unauthorized")
			h.audit.Emit(ctx, "WARN", "websocket handshake rejected: invalid token from "+ip, requestID, nil)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		observability.IncHandshakeRejected("unavailable")
		logrus.WithError(err).WithField("ip", ip).Error("websocket authentication failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authentication unavailable"})
		return
	}
	h.limiter.Reset(ip)
	span.SetAttributes(attribute.String("user.id", session.UserID), attribute.String("ws.conn_id", session.ConnID))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.Disconnect(ctx, session)
		return
	}
	client.attach(conn)

	session.Info = ConnInfo{
		ConnID:      session.ConnID,
		UserID:      session.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          ip,
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: session.ConnectedAt,
	}
	connCtx := context.WithoutCancel(ctx)

	observability.IncWSActive(connectionKind)
	publishWSEvent(connCtx, session.Info, connectionKind, "", "ws_connect", "")
	logrus.WithFields(logrus.Fields{"conn_id": session.ConnID, "user_id": session.UserID, "ip": ip}).Info("websocket connected")

	go client.WritePump()
	go h.serve(connCtx, client, session)
}

func (h *Handler) serve(ctx context.Context, client *Client, session *Session) {
	err := client.ReadPump(func(frame []byte) {
		h.hub.Dispatch(ctx, session, frame)
	})

	reason := ""
	if err != nil {
		reason = err.Error()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			publishWSEvent(ctx, session.Info, connectionKind, "", "ws_error", reason)
		}
	}
	client.Close()
	h.hub.Disconnect(ctx, session)

	observability.DecWSActive(connectionKind)
	publishWSEvent(ctx, session.Info, connectionKind, "", "ws_disconnect", reason)
	logrus.WithFields(logrus.Fields{
		"conn_id":     session.ConnID,
		"user_id":     session.UserID,
		"duration_ms": time.Since(session.ConnectedAt).Milliseconds(),
	}).Info("websocket disconnected")
}
