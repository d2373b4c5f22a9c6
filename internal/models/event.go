package models

import "encoding/json"

// Envelope is the wire frame for every websocket event in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UserRef identifies the originator of a relayed event.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ErrorEvent is the payload of the outbound "error" event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}
