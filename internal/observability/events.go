package observability

import "time"

const (
	WSRoutingRooms    = "ws_events.rooms"
	WSRoutingProjects = "ws_events.projects"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// WSEvent describes one websocket lifecycle transition of a connection.
type WSEvent struct {
	Kind       string `json:"kind"`
	ResourceID string `json:"resource_id,omitempty"`
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason"`
}

type WSIdentity struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
	IP       string `json:"ip"`
}

// NewWSEnvelope wraps a lifecycle event in the ws_events envelope.
func NewWSEnvelope(event WSEvent, identity WSIdentity, connectedAt time.Time) EventEnvelope {
	if !connectedAt.IsZero() {
		event.DurationMS = time.Since(connectedAt).Milliseconds()
	}
	return EventEnvelope{
		EventType: "ws_events",
		EventName: event.Event,
		Payload: map[string]interface{}{
			"ws":       event,
			"identity": identity,
		},
	}
}

// WSRoutingKey picks the routing key for a channel kind ("room" or "project").
func WSRoutingKey(kind string) string {
	if kind == "project" {
		return WSRoutingProjects
	}
	return WSRoutingRooms
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
