package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"collab-service/internal/observability"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// tokenFromRequest reads a bearer token from the Authorization header or the
// token query parameter.
func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func (h *Hub) publishLifecycle(ctx context.Context, s *Session, scope ChannelScope, event, reason string) {
	kind := string(scope.Kind())
	name := "ws_" + kind + "_" + event
	publishWSEvent(ctx, s.Info, kind, scope.ID(), name, reason)
}

func publishWSEvent(ctx context.Context, info ConnInfo, kind, resourceID, event, reason string) {
	observability.IncWSEvent(kind, event)
	envelope := observability.NewWSEnvelope(observability.WSEvent{
		Kind:       kind,
		ResourceID: resourceID,
		Event:      event,
		ConnID:     info.ConnID,
		Reason:     reason,
	}, observability.WSIdentity{
		UserID:   info.UserID,
		DeviceID: info.DeviceID,
		IP:       info.IP,
	}, info.ConnectedAt)
	_ = observability.PublishEvent(ctx, observability.WSRoutingKey(kind), envelope, observability.BuildHeaders(info.RequestID, info.TraceID))
}
