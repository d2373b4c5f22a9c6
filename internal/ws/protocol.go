package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"collab-service/internal/models"
	"collab-service/internal/repositories"
)

// Inbound event names.
const (
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"
	EventJoinProject    = "join-project"
	EventLeaveProject   = "leave-project"
	EventCodeChange     = "code-change"
	EventCursorPosition = "cursor-position"
	EventFileCreated    = "file-created"
	EventFileDeleted    = "file-deleted"
	EventFileRenamed    = "file-renamed"
	EventFileUpdated    = "file-updated"
	EventSendMessage    = "send-message"
	EventTypingStart    = "typing-start"
	EventTypingStop     = "typing-stop"
	EventCodeExecuted   = "code-executed"
	EventProjectCreated = "project-created"
	EventProjectDeleted = "project-deleted"
)

// Outbound event names.
const (
	EventRoomJoined        = "room-joined"
	EventUserJoined        = "user-joined"
	EventUserLeft          = "user-left"
	EventProjectJoined     = "project-joined"
	EventUserJoinedProject = "user-joined-project"
	EventUserLeftProject   = "user-left-project"
	EventCodeUpdated       = "code-updated"
	EventCursorUpdated     = "cursor-updated"
	EventNewMessage        = "new-message"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventRoomDeleted       = "room-deleted"
	EventError             = "error"
)

// Error codes carried by the error event.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeRoomNotFound     = "ROOM_NOT_FOUND"
	CodeProjectNotFound  = "PROJECT_NOT_FOUND"
	CodeAccessDenied     = "ACCESS_DENIED"
	CodeNotInRoom        = "NOT_IN_ROOM"
	CodeUnknownEvent     = "UNKNOWN_EVENT"
	CodeOperationFailed  = "OPERATION_FAILED"
	CodeRateLimited      = "RATE_LIMITED"
)

var (
	ErrValidation   = errors.New("invalid payload")
	ErrAccessDenied = errors.New("access denied")
	ErrNotInRoom    = errors.New("not in a room")
	ErrUnknownEvent = errors.New("unknown event")
	ErrStore        = errors.New("membership store failure")
)

type joinRoomPayload struct {
	RoomID     string `json:"roomId" validate:"required"`
	AccessCode string `json:"accessCode"`
}

type joinProjectPayload struct {
	ProjectID string `json:"projectId" validate:"required"`
}

type codeChangePayload struct {
	FileID   string `json:"fileId" validate:"required"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

type cursorPayload struct {
	FileID    string          `json:"fileId" validate:"required"`
	Position  json.RawMessage `json:"position"`
	Selection json.RawMessage `json:"selection,omitempty"`
}

type fileCreatedPayload struct {
	File json.RawMessage `json:"file" validate:"required"`
}

type fileDeletedPayload struct {
	FileID   string `json:"fileId" validate:"required"`
	FileName string `json:"fileName"`
}

type fileRenamedPayload struct {
	FileID  string `json:"fileId" validate:"required"`
	OldName string `json:"oldName"`
	NewName string `json:"newName" validate:"required"`
}

type sendMessagePayload struct {
	Message string `json:"message" validate:"required,max=10000"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type typingPayload struct {
	FileID string `json:"fileId"`
}

type codeExecutedPayload struct {
	Result json.RawMessage `json:"result" validate:"required"`
}

type projectCreatedPayload struct {
	Project json.RawMessage `json:"project" validate:"required"`
}

type projectDeletedPayload struct {
	ProjectID   string `json:"projectId" validate:"required"`
	ProjectName string `json:"projectName"`
	RedirectTo  string `json:"redirectTo"`
}

// Outbound payloads.

type roomJoinedEvent struct {
	RoomID       string                     `json:"roomId"`
	Room         models.Room                `json:"room"`
	Participants []Presence                 `json:"participants"`
	Active       []models.ActiveParticipant `json:"active,omitempty"`
}

type memberEvent struct {
	User      models.UserRef `json:"user"`
	ProjectID string         `json:"projectId,omitempty"`
	SocketID  string         `json:"socketId"`
	Timestamp int64          `json:"timestamp"`
}

type projectJoinedEvent struct {
	ProjectID string `json:"projectId"`
	Timestamp int64  `json:"timestamp"`
}

type codeUpdatedEvent struct {
	FileID    string         `json:"fileId"`
	Content   string         `json:"content"`
	Language  string         `json:"language,omitempty"`
	Revision  uint64         `json:"revision"`
	User      models.UserRef `json:"user"`
	ProjectID string         `json:"projectId,omitempty"`
	RoomID    string         `json:"roomId"`
	Timestamp int64          `json:"timestamp"`
}

type cursorUpdatedEvent struct {
	FileID    string          `json:"fileId"`
	Position  json.RawMessage `json:"position,omitempty"`
	Selection json.RawMessage `json:"selection,omitempty"`
	User      models.UserRef  `json:"user"`
	Timestamp int64           `json:"timestamp"`
}

type fileEvent struct {
	File      json.RawMessage `json:"file,omitempty"`
	FileID    string          `json:"fileId,omitempty"`
	FileName  string          `json:"fileName,omitempty"`
	OldName   string          `json:"oldName,omitempty"`
	NewName   string          `json:"newName,omitempty"`
	Content   *string         `json:"content,omitempty"`
	Language  string          `json:"language,omitempty"`
	User      models.UserRef  `json:"user"`
	ProjectID string          `json:"projectId,omitempty"`
	RoomID    string          `json:"roomId"`
	Timestamp int64           `json:"timestamp"`
}

type newMessageEvent struct {
	ID        string         `json:"id"`
	User      models.UserRef `json:"user"`
	Message   string         `json:"message"`
	Type      string         `json:"type"`
	Channel   string         `json:"channel"`
	Timestamp int64          `json:"timestamp"`
}

type typingEvent struct {
	User      models.UserRef `json:"user"`
	FileID    string         `json:"fileId,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

type codeExecutedEvent struct {
	User      models.UserRef  `json:"user"`
	Result    json.RawMessage `json:"result"`
	Timestamp int64           `json:"timestamp"`
}

type projectCreatedEvent struct {
	Project   json.RawMessage `json:"project"`
	User      models.UserRef  `json:"user"`
	Timestamp int64           `json:"timestamp"`
}

type projectDeletedEvent struct {
	ProjectID         string `json:"projectId"`
	ProjectName       string `json:"projectName,omitempty"`
	DeletedBy         string `json:"deletedBy"`
	DeletedByUsername string `json:"deletedByUsername"`
	RedirectTo        string `json:"redirectTo,omitempty"`
	Timestamp         int64  `json:"timestamp"`
}

// encodeFrame builds the {"type","data"} wire frame.
func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(models.Envelope{Type: event, Data: raw})
}

func decodePayload(v *validator.Validate, data json.RawMessage, dst any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := v.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// errorEvent maps an operation error to the wire error payload. Store
// failures are reported generically.
func errorEvent(event string, err error) models.ErrorEvent {
	code, message := CodeOperationFailed, "Operation failed"
	switch {
	case errors.Is(err, ErrValidation):
		code, message = CodeValidationFailed, err.Error()
	case errors.Is(err, repositories.ErrRoomNotFound):
		code, message = CodeRoomNotFound, "Room not found"
	case errors.Is(err, repositories.ErrProjectNotFound):
		code, message = CodeProjectNotFound, "Project not found"
	case errors.Is(err, ErrAccessDenied):
		code, message = CodeAccessDenied, "Invalid access code"
		if event == EventJoinProject {
			message = "No access to project"
		}
	case errors.Is(err, ErrNotInRoom):
		code, message = CodeNotInRoom, "Join a room first"
	case errors.Is(err, ErrUnknownEvent):
		code, message = CodeUnknownEvent, err.Error()
	}
	return models.ErrorEvent{Code: code, Message: message, Event: event}
}
