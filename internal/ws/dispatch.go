package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"collab-service/internal/models"
	"collab-service/internal/observability"
)

// Dispatch decodes one inbound frame and runs its handler. Every failure is
// answered with an error event; the connection stays open.
func (h *Hub) Dispatch(ctx context.Context, s *Session, raw []byte) {
	var envelope models.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Type == "" {
		h.sendError(s, "", fmt.Errorf("%w: malformed frame", ErrValidation))
		return
	}
	handle, ok := h.handlers[envelope.Type]
	if !ok {
		h.sendError(s, envelope.Type, fmt.Errorf("%w: %s", ErrUnknownEvent, envelope.Type))
		return
	}
	if err := handle(ctx, s, envelope.Data); err != nil {
		h.sendError(s, envelope.Type, err)
	}
}

func (h *Hub) routes() map[string]eventHandler {
	return map[string]eventHandler{
		EventJoinRoom:       h.onJoinRoom,
		EventLeaveRoom:      h.onLeaveRoom,
		EventJoinProject:    h.onJoinProject,
		EventLeaveProject:   h.onLeaveProject,
		EventCodeChange:     h.onCodeChange,
		EventCursorPosition: h.onCursorPosition,
		EventFileCreated:    h.onFileCreated,
		EventFileDeleted:    h.onFileDeleted,
		EventFileRenamed:    h.onFileRenamed,
		EventFileUpdated:    h.onFileUpdated,
		EventSendMessage:    h.onSendMessage,
		EventTypingStart:    h.onTyping(EventTypingStart, EventUserTyping),
		EventTypingStop:     h.onTyping(EventTypingStop, EventUserStoppedTyping),
		EventCodeExecuted:   h.onCodeExecuted,
		EventProjectCreated: h.onProjectCreated,
		EventProjectDeleted: h.onProjectDeleted,
	}
}

func (h *Hub) onJoinRoom(ctx context.Context, s *Session, data json.RawMessage) error {
	var p joinRoomPayload
	if err := decodePayload(h.validate, data, &p); err != nil {
		return err
	}
	snap, err := h.JoinRoom(ctx, s, p.RoomID, p.AccessCode)
	if err != nil {
		return err
	}
	h.sendTo(s, EventRoomJoined, roomJoinedEvent{
		RoomID:       snap.Room.RoomID,
		Room:         snap.Room,
		Participants: snap.Participants,
		Active:       snap.Active,
	})
	return nil
}

func (h *Hub) onLeaveRoom(ctx context.Context, s *Session, _ json.RawMessage) error {
	return h.LeaveRoom(ctx, s)
}

func (h *Hub) onJoinProject(ctx context.Context, s *Session, data json.RawMessage) error {
	var p joinProjectPayload
	if err := decodePayload(h.validate, data, &p); err != nil {
		return err
	}
	if err := h.JoinProject(ctx, s, p.ProjectID); err != nil {
		return err
	}
	h.sendTo(s, EventProjectJoined, projectJoinedEvent{ProjectID: p.ProjectID, Timestamp: h.now().UnixMilli()})
	return nil
}

func (h *Hub) onLeaveProject(ctx context.Context, s *Session, _ json.RawMessage) error {
	h.LeaveProject(ctx, s)
	return nil
}

// onCodeChange relays full content. The revision is informational; a
// conflicting overwrite is counted, never blocked.
func (h *Hub) onCodeChange(_ context.Context, s *Session, data json.RawMessage) error {
	scope, ok := s.Scope()
	if !ok {
		return ErrNotInRoom
	}
	var p codeChangePayload
	if err := decodePayload(h.validate, data, &p); err != nil {
		return err
	}
	at := h.now()
	rev, conflict := h.revisions.Next(scope, p.FileID, s.UserID, at)
	if conflict {
		h.onConflict(s, scope, p.FileID, rev)
	}
	h.relay(s, scope, EventCodeChange, EventCodeUpdated, codeUpdatedEvent{
		FileID:    p.FileID,
		Content:   p.Content,
		Language:  p.Language,
		Revision:  rev,
		User:      userRef(s),
		ProjectID: s.Project(),
		RoomID:    s.Room(),
		Timestamp: at.UnixMilli(),
	})
	return nil
}

func (h *Hub) onCursorPosition(_ context.Context, s *Session, data json.RawMessage) error {
	scope, ok := s.Scope()
	if !ok {
		return ErrNotInRoom
	}
	var p cursorPayload
	if err := decodePayload(h.validate, data, &p); err != nil {
		return err
	}
	h.relay(s, scope, EventCursorPosition, EventCursorUpdated, cursorUpdatedEvent{
		FileID:    p.FileID,
		Position:  p.Position,
		Selection: p.Selection,
		User:      userRef(s),
		Timestamp: h.now().UnixMilli(),
	})
	return nil
}

func (h *Hub) onFileCreated(_ context.Context, s *Session, data json.RawMessage) error {
	scope, ok := s.Scope()
	if !ok {
		return ErrNotInRoom
	}
	var p fileCreatedPayload
	if err := decodePayload(h.validate, data, &p); err != nil {
		return err
	}
	h.relay(s, scope, EventFileCreated, EventFileCreated, h.fileEvent(s, fileEvent{File: p.File}))
	return nil
}

func (h *Hub) onFileDeleted(_ context.Context, s *Session, data json.RawMessage) error {
	scope, ok := s.Scope()
	if !ok {
		return ErrNotInRoom
	}
	var p fileDeletedPayload
	if err := decodePayload(h.validate, data, &p); err != nil {
		return err
	}
	h.relay(s, scope, EventFileDeleted, EventFileDeleted, h.fileEvent(s, fileEvent{FileID: p.FileID, FileName: p.FileName}))
	return nil
}

func (h *Hub) onFileRenamed(_ context.Context, s *Session, data json.RawMessage) error {
	scope, ok := s.Scope()
	if !ok {
		return ErrNotInRoom
	}
	var p fileRenamedPayload
	if err := decodePayload(h.validate, data, &p); err != nil {
		return err
	}
	h.relay(s, scope, EventFileRenamed, EventFileRenamed, h.fileEvent(s, fileEvent{FileID: p.FileID, OldName: p.OldName, NewName: p.NewName}))
	return nil
}

func (h *Hub) onFileUpdated(_ context.Context, s *Session, data json.RawMessage) error {
	scope, ok := s.Scope()
	if !ok {
		return ErrNotInRoom
	}
	var p codeChangePayload
	if err := decodePayload(h.validate, data, &p); err != nil {
		return err
	}
	h.relay(s, scope, EventFileUpdated, EventFileUpdated, h.fileEvent(s, fileEvent{FileID: p.FileID, Content: &p.Content, Language: p.Language}))
	return nil
}

func (h *Hub) onSendMessage(_ context.Context, s *Session, data json.RawMessage) error {
	scope, ok := s.Scope()
	if !ok {
		return ErrNotInRoom
	}
	var p sendMessagePayload
	if err := decodePayload(h.validate, data, &p); err != nil {
		return err
	}
	if p.Type == "" {
		p.Type = "text"
	}
	if p.Channel == "" {
		p.Channel = "chat"
	}
	h.relay(s, scope, EventSendMessage, EventNewMessage, newMessageEvent{
		ID:        h.messageID(),
		User:      userRef(s),
		Message:   p.Message,
		Type:      p.Type,
		Channel:   p.Channel,
		Timestamp: h.now().UnixMilli(),
	})
	return nil
}

func (h *Hub) onTyping(inbound, outbound string) eventHandler {
	return func(_ context.Context, s *Session, data json.RawMessage) error {
		scope, ok := s.Scope()
		if !ok {
			return ErrNotInRoom
		}
		var p typingPayload
		if err := decodePayload(h.validate, data, &p); err != nil {
			return err
		}
		h.relay(s, scope, inbound, outbound, typingEvent{User: userRef(s), FileID: p.FileID, Timestamp: h.now().UnixMilli()})
		return nil
	}
}

func (h *Hub) onCodeExecuted(_ context.Context, s *Session, data json.RawMessage) error {
	scope, ok := s.Scope()
	if !ok {
		return ErrNotInRoom
	}
	var p codeExecutedPayload
	if err := decodePayload(h.validate, data, &p); err != nil {
		return err
	}
	h.relay(s, scope, EventCodeExecuted, EventCodeExecuted, codeExecutedEvent{User: userRef(s), Result: p.Result, Timestamp: h.now().UnixMilli()})
	return nil
}

// Project lifecycle notices always go to the room channel.

func (h *Hub) onProjectCreated(_ context.Context, s *Session, data json.RawMessage) error {
	roomID := s.Room()
	if roomID == "" {
		return ErrNotInRoom
	}
	var p projectCreatedPayload
	if err := decodePayload(h.validate, data, &p); err != nil {
		return err
	}
	h.relay(s, RoomScope(roomID), EventProjectCreated, EventProjectCreated, projectCreatedEvent{Project: p.Project, User: userRef(s), Timestamp: h.now().UnixMilli()})
	return nil
}

func (h *Hub) onProjectDeleted(_ context.Context, s *Session, data json.RawMessage) error {
	roomID := s.Room()
	if roomID == "" {
		return ErrNotInRoom
	}
	var p projectDeletedPayload
	if err := decodePayload(h.validate, data, &p); err != nil {
		return err
	}
	h.relay(s, RoomScope(roomID), EventProjectDeleted, EventProjectDeleted, projectDeletedEvent{
		ProjectID:         p.ProjectID,
		ProjectName:       p.ProjectName,
		DeletedBy:         s.UserID,
		DeletedByUsername: s.Username,
		RedirectTo:        p.RedirectTo,
		Timestamp:         h.now().UnixMilli(),
	})
	return nil
}

func (h *Hub) fileEvent(s *Session, e fileEvent) fileEvent {
	e.User = userRef(s)
	e.ProjectID = s.Project()
	e.RoomID = s.Room()
	e.Timestamp = h.now().UnixMilli()
	return e
}

func (h *Hub) onConflict(s *Session, scope ChannelScope, fileID string, rev uint64) {
	observability.IncEditConflict()
	logrus.WithFields(h.fields(s)).WithFields(logrus.Fields{
		"scope":    scope.Key(),
		"file_id":  fileID,
		"revision": rev,
	}).Debug("concurrent code-change overwrote another author")
}
