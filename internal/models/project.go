package models

import "time"

// ProjectRole is a collaborator's capability level on a project.
type ProjectRole string

const (
	ProjectViewer ProjectRole = "viewer"
	ProjectEditor ProjectRole = "editor"
	ProjectAdmin  ProjectRole = "admin"
)

var projectRoleRank = map[ProjectRole]int{
	ProjectViewer: 0,
	ProjectEditor: 1,
	ProjectAdmin:  2,
}

// Project is a named collection of files anchored to exactly one room.
type Project struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	OwnerID     string    `db:"owner_id" json:"ownerId"`
	RoomID      string    `db:"room_id" json:"roomId"`
	IsPublic    bool      `db:"is_public" json:"isPublic"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Collaborator grants a user a role on a project.
type Collaborator struct {
	ProjectID string      `db:"project_id" json:"projectId"`
	UserID    string      `db:"user_id" json:"userId"`
	Role      ProjectRole `db:"role" json:"role"`
	JoinedAt  time.Time   `db:"joined_at" json:"joinedAt"`
}

// HasAccess reports whether userID holds at least the required role.
func (p Project) HasAccess(userID string, collaborators []Collaborator, required ProjectRole) bool {
	if p.OwnerID == userID {
		return true
	}
	if p.IsPublic && required == ProjectViewer {
		return true
	}
	for _, c := range collaborators {
		if c.UserID == userID {
			return projectRoleRank[c.Role] >= projectRoleRank[required]
		}
	}
	return false
}
