package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collab-service/internal/middleware"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
	"collab-service/internal/telemetry"
	"collab-service/internal/ws"
)

// RoomHandler serves room endpoints around the live core.
type RoomHandler struct {
	rooms repositories.RoomRepository
	hub   *ws.Hub
	audit *telemetry.AuditEmitter
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(rooms repositories.RoomRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{rooms: rooms, hub: hub, audit: audit}
}

type createRoomRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=500"`
	IsPrivate   bool   `json:"isPrivate"`
	AccessCode  string `json:"accessCode" binding:"omitempty,max=50"`
}

// CreateRoom creates a room owned by the caller. A private room without an
// access code gets a generated one.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room := models.Room{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     c.GetString(middleware.UserIDKey),
		IsPrivate:   req.IsPrivate,
	}
	if req.IsPrivate {
		room.AccessCode = req.AccessCode
		if room.AccessCode == "" {
			code, err := repositories.NewAccessCode()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate access code"})
				return
			}
			room.AccessCode = code
		}
	}

	created, err := h.rooms.CreateRoom(c.Request.Context(), room)
	if err != nil {
		h.respondCreateError(c, err)
		return
	}

	emitAudit(c, h.audit, "INFO", "Room created")
	resp := gin.H{"room": created}
	if created.IsPrivate {
		resp["accessCode"] = created.AccessCode
	}
	c.JSON(http.StatusCreated, resp)
}

// InitializeWorkspace returns the caller's workspace room, creating it on first use.
func (h *RoomHandler) InitializeWorkspace(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetString(middleware.UserIDKey)

	room, err := h.rooms.GetWorkspace(ctx, userID)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"room": room, "created": false})
		return
	}
	if !errors.Is(err, repositories.ErrRoomNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load workspace"})
		return
	}

	room, err = h.rooms.CreateRoom(ctx, models.Room{
		Name:         fmt.Sprintf("%s's Workspace", c.GetString(middleware.UsernameKey)),
		Description:  "Personal workspace",
		OwnerID:      userID,
		IsWorkspace:  true,
		IsPersistent: true,
	})
	if errors.Is(err, repositories.ErrWorkspaceExists) {
		room, err = h.rooms.GetWorkspace(ctx, userID)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"room": room, "created": false})
			return
		}
	}
	if err != nil {
		h.respondCreateError(c, err)
		return
	}

	emitAudit(c, h.audit, "INFO", "Workspace created")
	c.JSON(http.StatusCreated, gin.H{"room": room, "created": true})
}

// DeleteRoom removes an owned, non-workspace room and tells connected clients.
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("room_id")
	userID := c.GetString(middleware.UserIDKey)

	room, ok := h.loadRoom(c, roomID)
	if !ok {
		return
	}
	if !room.IsOwner(userID) {
		emitAudit(c, h.audit, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "only the owner can delete a room"})
		return
	}

	if err := h.rooms.DeleteRoom(ctx, roomID); err != nil {
		switch {
		case errors.Is(err, repositories.ErrWorkspaceUndeletable):
			c.JSON(http.StatusConflict, gin.H{"error": "workspace rooms cannot be deleted"})
		case errors.Is(err, repositories.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete room"})
		}
		return
	}

	delivered := h.hub.BroadcastToRoom(roomID, ws.EventRoomDeleted, gin.H{
		"roomId":    roomID,
		"deletedBy": userID,
		"timestamp": time.Now().UnixMilli(),
	})
	h.hub.EvictRoom(ctx, roomID)
	emitAudit(c, h.audit, "INFO", "Room deleted")
	c.JSON(http.StatusOK, gin.H{"deleted": roomID, "notified": delivered})
}

// Presence lists who is connected to a room. Private rooms are visible to
// the owner and to users already inside.
func (h *RoomHandler) Presence(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.GetString(middleware.UserIDKey)

	room, ok := h.loadRoom(c, roomID)
	if !ok {
		return
	}
	scope := ws.RoomScope(roomID)
	if room.IsPrivate && !room.IsOwner(userID) && !present(h.hub.Participants(scope, nil), userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "room is private"})
		return
	}

	self := selfRef(c)
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "participants": h.hub.Participants(scope, &self)})
}

func (h *RoomHandler) loadRoom(c *gin.Context, roomID string) (models.Room, bool) {
	room, err := h.rooms.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return models.Room{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return models.Room{}, false
	}
	return room, true
}

func (h *RoomHandler) respondCreateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrRoomIDExhausted):
		logrus.WithError(err).Error("room id space exhausted")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not allocate a room id, retry later"})
	case errors.Is(err, repositories.ErrWorkspaceExists):
		c.JSON(http.StatusConflict, gin.H{"error": "workspace already exists"})
	case errors.Is(err, repositories.ErrAccessCodeRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "private rooms need an access code"})
	default:
		logrus.WithError(err).Error("create room failed")
		emitAudit(c, h.audit, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
	}
}

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, level, text string) {
	if audit == nil {
		return
	}
	audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func selfRef(c *gin.Context) models.UserRef {
	return models.UserRef{ID: c.GetString(middleware.UserIDKey), Username: c.GetString(middleware.UsernameKey)}
}

func present(participants []ws.Presence, userID string) bool {
	for _, p := range participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
