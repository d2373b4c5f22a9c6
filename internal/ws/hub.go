package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"collab-service/internal/auth"
	"collab-service/internal/models"
	"collab-service/internal/observability"
	"collab-service/internal/repositories"
)

var participantColors = []string{
	"#FF6B6B", "#4ECDC4", "#556270", "#C44D58", "#FFA630",
	"#77DD77", "#779ECB", "#AEC6CF", "#FFD1DC", "#836953",
	"#CFCFC4", "#77A1D3", "#6C88C4", "#41658A", "#414073",
	"#E74C3C", "#3498DB", "#2ECC71", "#F39C12", "#9B59B6",
}

// Hub owns the session registry and channel membership, and routes events
// between connections sharing a room or project.
type Hub struct {
	rooms     repositories.RoomRepository
	projects  repositories.ProjectRepository
	verifier  auth.TokenVerifier
	sessions  *Registry
	channels  *Channels
	locks     *keyedMutex
	revisions *revisionTracker
	validate  *validator.Validate
	handlers  map[string]eventHandler
	now       func() time.Time
	color     func() string
}

type eventHandler func(ctx context.Context, s *Session, data json.RawMessage) error

// HubOption customizes a Hub.
type HubOption func(*Hub)

func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

func WithColorPicker(pick func() string) HubOption {
	return func(h *Hub) { h.color = pick }
}

// NewHub creates an empty hub.
func NewHub(rooms repositories.RoomRepository, projects repositories.ProjectRepository, verifier auth.TokenVerifier, opts ...HubOption) *Hub {
	h := &Hub{
		rooms:     rooms,
		projects:  projects,
		verifier:  verifier,
		sessions:  NewRegistry(),
		channels:  NewChannels(),
		locks:     newKeyedMutex(),
		revisions: newRevisionTracker(),
		validate:  validator.New(),
		now:       time.Now,
		color:     func() string { return participantColors[rand.IntN(len(participantColors))] },
	}
	for _, opt := range opts {
		opt(h)
	}
	h.handlers = h.routes()
	return h
}

// Sessions exposes the registry.
func (h *Hub) Sessions() *Registry {
	return h.sessions
}

// Authenticate verifies token and registers a session for sender. Nothing is
// registered when verification fails.
func (h *Hub) Authenticate(ctx context.Context, sender Sender, token string) (*Session, error) {
	identity, err := h.verifier.VerifyConnectionToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return h.sessions.Create(sender, identity.UserID, identity.Username, h.now()), nil
}

// RoomSnapshot is what a joining connection receives.
type RoomSnapshot struct {
	Room         models.Room
	Participants []Presence
	Active       []models.ActiveParticipant
}

// JoinRoom moves s into roomID, leaving any previous room first. The store
// entry is created only for the user's first connection in the room.
func (h *Hub) JoinRoom(ctx context.Context, s *Session, roomID, accessCode string) (RoomSnapshot, error) {
	room, err := h.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			return RoomSnapshot{}, err
		}
		return RoomSnapshot{}, fmt.Errorf("%w: get room: %v", ErrStore, err)
	}
	if room.IsPrivate && !room.IsOwner(s.UserID) &&
		subtle.ConstantTimeCompare([]byte(accessCode), []byte(room.AccessCode)) != 1 {
		return RoomSnapshot{}, ErrAccessDenied
	}

	scope := RoomScope(roomID)
	current := s.Room()
	if current == roomID && h.channels.Contains(scope, s.ConnID) {
		return h.snapshot(ctx, s, room), nil
	}
	if current != "" {
		if err := h.LeaveRoom(ctx, s); err != nil {
			logrus.WithError(err).WithFields(h.fields(s)).Warn("leave previous room failed")
		}
	}

	at := h.now()
	unlock := h.locks.Lock(scope.Key() + "/" + s.UserID)
	firstConn := !h.channels.HasUser(scope, s.UserID)
	h.channels.Add(scope, member{sender: s.sender, userID: s.UserID, username: s.Username, joinedAt: at})
	if firstConn {
		role := models.RoleCollaborator
		if room.IsOwner(s.UserID) {
			role = models.RoleOwner
		}
		_, err = h.rooms.AddActiveParticipant(ctx, models.AddActiveParticipant{
			RoomID:   roomID,
			UserID:   s.UserID,
			Username: s.Username,
			ConnID:   s.ConnID,
			Color:    h.color(),
			Role:     role,
			At:       at,
		})
		if err != nil {
			if _, emptied := h.channels.Remove(scope, s.ConnID); emptied {
				h.revisions.Forget(scope)
			}
			unlock()
			return RoomSnapshot{}, fmt.Errorf("%w: add active participant: %v", ErrStore, err)
		}
	}
	unlock()
	s.setRoom(roomID)

	h.broadcast(scope, s.ConnID, EventUserJoined, memberEvent{
		User:      userRef(s),
		SocketID:  s.ConnID,
		Timestamp: at.UnixMilli(),
	})
	h.publishLifecycle(ctx, s, scope, "join", "")
	logrus.WithFields(h.fields(s)).Info("joined room")
	return h.snapshot(ctx, s, room), nil
}

// LeaveRoom removes s from its room, leaving its project first. It is a
// no-op when s is in no room.
func (h *Hub) LeaveRoom(ctx context.Context, s *Session) error {
	roomID := s.Room()
	if roomID == "" {
		return nil
	}
	if s.Project() != "" {
		h.LeaveProject(ctx, s)
	}

	scope := RoomScope(roomID)
	at := h.now()
	var storeErr error
	unlock := h.locks.Lock(scope.Key() + "/" + s.UserID)
	removed, emptied := h.channels.Remove(scope, s.ConnID)
	if removed && !h.channels.HasUser(scope, s.UserID) {
		storeErr = h.rooms.RemoveActiveParticipant(ctx, models.RemoveActiveParticipant{RoomID: roomID, UserID: s.UserID, At: at})
	}
	unlock()
	s.setRoom("")
	if emptied {
		h.revisions.Forget(scope)
	}

	if removed {
		h.broadcast(scope, s.ConnID, EventUserLeft, memberEvent{
			User:      userRef(s),
			SocketID:  s.ConnID,
			Timestamp: at.UnixMilli(),
		})
		h.publishLifecycle(ctx, s, scope, "leave", "")
		logrus.WithFields(h.fields(s)).WithField("room_id", roomID).Info("left room")
	}
	if storeErr != nil {
		return fmt.Errorf("%w: remove active participant: %v", ErrStore, storeErr)
	}
	return nil
}

// JoinProject adds s to a project channel of its current room.
func (h *Hub) JoinProject(ctx context.Context, s *Session, projectID string) error {
	roomID := s.Room()
	if roomID == "" {
		return ErrNotInRoom
	}
	project, err := h.projects.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, repositories.ErrProjectNotFound) {
			return err
		}
		return fmt.Errorf("%w: get project: %v", ErrStore, err)
	}
	if project.RoomID != roomID {
		return repositories.ErrProjectNotFound
	}
	if !project.HasAccess(s.UserID, nil, models.ProjectViewer) {
		collaborators, err := h.projects.ListCollaborators(ctx, projectID)
		if err != nil {
			return fmt.Errorf("%w: list collaborators: %v", ErrStore, err)
		}
		if !project.HasAccess(s.UserID, collaborators, models.ProjectViewer) {
			return ErrAccessDenied
		}
	}

	scope := ProjectScope(projectID)
	if s.Project() == projectID && h.channels.Contains(scope, s.ConnID) {
		return nil
	}
	if s.Project() != "" {
		h.LeaveProject(ctx, s)
	}

	at := h.now()
	h.channels.Add(scope, member{sender: s.sender, userID: s.UserID, username: s.Username, joinedAt: at})
	s.setProject(projectID)
	h.broadcast(scope, s.ConnID, EventUserJoinedProject, memberEvent{
		User:      userRef(s),
		ProjectID: projectID,
		SocketID:  s.ConnID,
		Timestamp: at.UnixMilli(),
	})
	h.publishLifecycle(ctx, s, scope, "join", "")
	logrus.WithFields(h.fields(s)).Info("joined project")
	return nil
}

// LeaveProject removes s from its project channel, if any.
func (h *Hub) LeaveProject(ctx context.Context, s *Session) {
	projectID := s.Project()
	if projectID == "" {
		return
	}
	scope := ProjectScope(projectID)
	removed, emptied := h.channels.Remove(scope, s.ConnID)
	s.setProject("")
	if emptied {
		h.revisions.Forget(scope)
	}
	if !removed {
		return
	}
	h.broadcast(scope, s.ConnID, EventUserLeftProject, memberEvent{
		User:      userRef(s),
		ProjectID: projectID,
		SocketID:  s.ConnID,
		Timestamp: h.now().UnixMilli(),
	})
	h.publishLifecycle(ctx, s, scope, "leave", "")
	logrus.WithFields(h.fields(s)).WithField("project_id", projectID).Info("left project")
}

// Disconnect leaves every channel and destroys the session. Only the first
// call for a session has any effect.
func (h *Hub) Disconnect(ctx context.Context, s *Session) {
	s.closeOnce.Do(func() {
		h.LeaveProject(ctx, s)
		if err := h.LeaveRoom(ctx, s); err != nil {
			logrus.WithError(err).WithFields(h.fields(s)).Warn("room cleanup on disconnect failed")
		}
		h.sessions.Remove(s.ConnID)
	})
}

// EvictRoom drops every connection from a deleted room's channel and from
// its project channel. The store is not touched and no user-left is sent.
func (h *Hub) EvictRoom(ctx context.Context, roomID string) int {
	scope := RoomScope(roomID)
	evicted := 0
	for _, m := range h.channels.Members(scope) {
		connID := m.sender.ConnID()
		if s, ok := h.sessions.Get(connID); ok && s.Room() == roomID {
			h.LeaveProject(ctx, s)
			s.setRoom("")
			h.publishLifecycle(ctx, s, scope, "leave", "room_deleted")
		}
		if removed, _ := h.channels.Remove(scope, connID); removed {
			evicted++
		}
	}
	h.revisions.Forget(scope)
	if evicted > 0 {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "evicted": evicted}).Info("evicted deleted room")
	}
	return evicted
}

// Participants returns the deduplicated presence of scope; self is always included when set.
func (h *Hub) Participants(scope ChannelScope, self *models.UserRef) []Presence {
	return projectPresence(h.channels.Members(scope), self, h.now())
}

// BroadcastToRoom sends a server-originated event to every connection in the room.
func (h *Hub) BroadcastToRoom(roomID, event string, data any) int {
	return h.broadcast(RoomScope(roomID), "", event, data)
}

// BroadcastToProject sends a server-originated event to every connection in the project.
func (h *Hub) BroadcastToProject(projectID, event string, data any) int {
	return h.broadcast(ProjectScope(projectID), "", event, data)
}

// broadcast fans out to scope except the connection excludeConn and returns
// how many connections accepted the frame.
func (h *Hub) broadcast(scope ChannelScope, excludeConn, event string, data any) int {
	frame, err := encodeFrame(event, data)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("encode broadcast")
		return 0
	}
	delivered := 0
	for _, target := range h.channels.Others(scope, excludeConn) {
		if target.Send(frame) {
			delivered++
		}
	}
	return delivered
}

// relay forwards an inbound event from s to the rest of its resolved scope.
func (h *Hub) relay(s *Session, scope ChannelScope, inbound, outbound string, data any) {
	h.broadcast(scope, s.ConnID, outbound, data)
	observability.IncRelayed(inbound, string(scope.Kind()))
}

// sendTo delivers an event to s alone.
func (h *Hub) sendTo(s *Session, event string, data any) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("encode direct event")
		return
	}
	s.sender.Send(frame)
}

func (h *Hub) sendError(s *Session, event string, err error) {
	payload := errorEvent(event, err)
	observability.IncProtocolError(payload.Code)
	entry := logrus.WithFields(h.fields(s)).WithFields(logrus.Fields{"event": event, "code": payload.Code})
	if payload.Code == CodeOperationFailed {
		entry.WithError(err).Error("event failed")
	} else {
		entry.WithError(err).Debug("event rejected")
	}
	h.sendTo(s, EventError, payload)
}

func (h *Hub) snapshot(ctx context.Context, s *Session, room models.Room) RoomSnapshot {
	self := userRef(s)
	snap := RoomSnapshot{
		Room:         room,
		Participants: h.Participants(RoomScope(room.RoomID), &self),
	}
	active, err := h.rooms.ListActiveParticipants(ctx, room.RoomID)
	if err != nil {
		logrus.WithError(err).WithFields(h.fields(s)).Warn("list active participants failed, snapshot without store entries")
		return snap
	}
	snap.Active = active
	return snap
}

func (h *Hub) fields(s *Session) logrus.Fields {
	return logrus.Fields{
		"conn_id":    s.ConnID,
		"user_id":    s.UserID,
		"room_id":    s.Room(),
		"project_id": s.Project(),
	}
}

func (h *Hub) messageID() string {
	return strconv.FormatInt(h.now().UnixNano(), 10)
}

func userRef(s *Session) models.UserRef {
	return models.UserRef{ID: s.UserID, Username: s.Username}
}
