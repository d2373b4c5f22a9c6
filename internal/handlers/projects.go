package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"collab-service/internal/middleware"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
	"collab-service/internal/telemetry"
	"collab-service/internal/ws"
)

// ProjectHandler serves project presence and lets the CRUD layer announce
// project lifecycle changes to connected clients.
type ProjectHandler struct {
	rooms    repositories.RoomRepository
	projects repositories.ProjectRepository
	hub      *ws.Hub
	audit    *telemetry.AuditEmitter
}

func NewProjectHandler(rooms repositories.RoomRepository, projects repositories.ProjectRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *ProjectHandler {
	return &ProjectHandler{rooms: rooms, projects: projects, hub: hub, audit: audit}
}

type projectDeletedRequest struct {
	ProjectName string `json:"projectName" binding:"required"`
	RedirectTo  string `json:"redirectTo"`
}

// Presence lists the users connected to a project the caller can view.
func (h *ProjectHandler) Presence(c *gin.Context) {
	projectID := c.Param("project_id")
	userID := c.GetString(middleware.UserIDKey)

	project, ok := h.loadProject(c, projectID, models.ProjectViewer, userID)
	if !ok {
		return
	}

	self := selfRef(c)
	c.JSON(http.StatusOK, gin.H{
		"projectId":    project.ID,
		"participants": h.hub.Participants(ws.ProjectScope(project.ID), &self),
	})
}

// ProjectCreated announces a new project to everyone in its room.
func (h *ProjectHandler) ProjectCreated(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.GetString(middleware.UserIDKey)

	project, ok := h.loadProject(c, c.Param("project_id"), models.ProjectEditor, userID)
	if !ok {
		return
	}
	if project.RoomID != roomID {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found in room"})
		return
	}

	raw, err := json.Marshal(project)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not encode project"})
		return
	}
	delivered := h.hub.BroadcastToRoom(roomID, ws.EventProjectCreated, gin.H{
		"project":   json.RawMessage(raw),
		"user":      selfRef(c),
		"timestamp": time.Now().UnixMilli(),
	})
	emitAudit(c, h.audit, "INFO", "Project created notice")
	c.JSON(http.StatusAccepted, gin.H{"notified": delivered})
}

// ProjectDeleted announces a removed project to its room and to anyone still
// inside it. While the project row exists the caller needs editor access or
// room ownership; once it is gone, room ownership or presence in the room.
func (h *ProjectHandler) ProjectDeleted(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("room_id")
	projectID := c.Param("project_id")
	userID := c.GetString(middleware.UserIDKey)

	var req projectDeletedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}

	allowed, status := h.canAnnounceDeletion(c, room, projectID, userID)
	if status != 0 {
		return
	}
	if !allowed {
		emitAudit(c, h.audit, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}

	payload := gin.H{
		"projectId":   projectID,
		"projectName": req.ProjectName,
		"redirectTo":  req.RedirectTo,
		"user":        selfRef(c),
		"timestamp":   time.Now().UnixMilli(),
	}
	delivered := h.hub.BroadcastToRoom(roomID, ws.EventProjectDeleted, payload)
	delivered += h.hub.BroadcastToProject(projectID, ws.EventProjectDeleted, payload)

	emitAudit(c, h.audit, "INFO", "Project deleted notice")
	c.JSON(http.StatusAccepted, gin.H{"notified": delivered})
}

// canAnnounceDeletion reports whether userID may send a deletion notice.
// A non-zero status means a response was already written.
func (h *ProjectHandler) canAnnounceDeletion(c *gin.Context, room models.Room, projectID, userID string) (bool, int) {
	if room.IsOwner(userID) {
		return true, 0
	}

	ctx := c.Request.Context()
	project, err := h.projects.GetProject(ctx, projectID)
	switch {
	case errors.Is(err, repositories.ErrProjectNotFound):
		return present(h.hub.Participants(ws.RoomScope(room.RoomID), nil), userID), 0
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project"})
		return false, http.StatusInternalServerError
	}
	if project.RoomID != room.RoomID {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found in room"})
		return false, http.StatusNotFound
	}

	collaborators, err := h.projects.ListCollaborators(ctx, projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load collaborators"})
		return false, http.StatusInternalServerError
	}
	return project.HasAccess(userID, collaborators, models.ProjectEditor), 0
}

func (h *ProjectHandler) loadProject(c *gin.Context, projectID string, required models.ProjectRole, userID string) (models.Project, bool) {
	ctx := c.Request.Context()
	project, err := h.projects.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, repositories.ErrProjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return models.Project{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project"})
		return models.Project{}, false
	}

	collaborators, err := h.projects.ListCollaborators(ctx, projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load collaborators"})
		return models.Project{}, false
	}
	if !project.HasAccess(userID, collaborators, required) {
		emitAudit(c, h.audit, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return models.Project{}, false
	}
	return project, true
}

// RegisterRoutes mounts the room and project endpoints on an authenticated group.
func RegisterRoutes(group *gin.RouterGroup, rooms *RoomHandler, projects *ProjectHandler) {
	group.POST("/rooms", rooms.CreateRoom)
	group.POST("/rooms/workspace", rooms.InitializeWorkspace)
	group.DELETE("/rooms/:room_id", rooms.DeleteRoom)
	group.GET("/rooms/:room_id/presence", rooms.Presence)
	group.POST("/rooms/:room_id/projects/:project_id/created", projects.ProjectCreated)
	group.POST("/rooms/:room_id/projects/:project_id/deleted", projects.ProjectDeleted)
	group.GET("/projects/:project_id/presence", projects.Presence)
}
