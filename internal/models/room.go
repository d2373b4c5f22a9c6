package models

import "time"

// ParticipantRole is the historical role a user holds in a room.
type ParticipantRole string

const (
	RoleOwner        ParticipantRole = "owner"
	RoleAdmin        ParticipantRole = "admin"
	RoleCollaborator ParticipantRole = "collaborator"
	RoleViewer       ParticipantRole = "viewer"
)

// Room is a persistent collaboration space identified by an 8-digit numeric id.
type Room struct {
	RoomID         string    `db:"room_id" json:"roomId"`
	Name           string    `db:"name" json:"name"`
	Description    string    `db:"description" json:"description"`
	OwnerID        string    `db:"owner_id" json:"ownerId"`
	IsPrivate      bool      `db:"is_private" json:"isPrivate"`
	AccessCode     string    `db:"access_code" json:"-"`
	IsWorkspace    bool      `db:"is_workspace" json:"isWorkspace"`
	IsPersistent   bool      `db:"is_persistent" json:"isPersistent"`
	TotalJoins     int       `db:"total_joins" json:"totalJoins"`
	UniqueVisitors int       `db:"unique_visitors" json:"uniqueVisitors"`
	Messages       int       `db:"messages" json:"messages"`
	Executions     int       `db:"executions" json:"executions"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	LastActivity   time.Time `db:"last_activity" json:"lastActivity"`
}

// IsOwner reports whether userID owns the room.
func (r Room) IsOwner(userID string) bool {
	return r.OwnerID == userID
}

// Participant is an append-only historical membership record.
type Participant struct {
	RoomID     string          `db:"room_id" json:"roomId"`
	UserID     string          `db:"user_id" json:"userId"`
	Role       ParticipantRole `db:"role" json:"role"`
	JoinedAt   time.Time       `db:"joined_at" json:"joinedAt"`
	LastJoined time.Time       `db:"last_joined" json:"lastJoined"`
}

// ActiveParticipant is the ephemeral record of a user currently joined to a room.
type ActiveParticipant struct {
	RoomID       string    `db:"room_id" json:"roomId"`
	UserID       string    `db:"user_id" json:"userId"`
	Username     string    `db:"username" json:"username"`
	ConnID       string    `db:"conn_id" json:"socketId"`
	Color        string    `db:"color" json:"color"`
	CursorLine   *int      `db:"cursor_line" json:"cursorLine,omitempty"`
	CursorColumn *int      `db:"cursor_column" json:"cursorColumn,omitempty"`
	CurrentFile  *string   `db:"current_file" json:"currentFile,omitempty"`
	JoinedAt     time.Time `db:"joined_at" json:"joinedAt"`
	LastActivity time.Time `db:"last_activity" json:"lastActivity"`
}

// AddActiveParticipant is the store command issued when a user's first
// connection enters a room channel.
type AddActiveParticipant struct {
	RoomID   string
	UserID   string
	Username string
	ConnID   string
	Color    string
	Role     ParticipantRole
	At       time.Time
}

// RemoveActiveParticipant is the store command issued when a user's last
// connection leaves a room channel.
type RemoveActiveParticipant struct {
	RoomID string
	UserID string
	At     time.Time
}
