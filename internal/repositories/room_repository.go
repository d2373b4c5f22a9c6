package repositories

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"collab-service/internal/models"
)

var (
	ErrRoomNotFound          = errors.New("room not found")
	ErrWorkspaceExists       = errors.New("workspace already exists for owner")
	ErrWorkspaceUndeletable  = errors.New("workspace rooms cannot be deleted")
	ErrAccessCodeRequired    = errors.New("private room requires an access code")
	ErrRoomIDTaken           = errors.New("room id already taken")
	uniqueViolation          = pq.ErrorCode("23505")
	workspaceUniqueIndexName = "rooms_one_workspace_per_owner"
)

const roomColumns = `room_id, name, description, owner_id, is_private, access_code, is_workspace, is_persistent,
        total_joins, unique_visitors, messages, executions, created_at, last_activity`

// RoomRepository is the Membership Store for rooms and their participant lists.
type RoomRepository interface {
	GetRoom(ctx context.Context, roomID string) (models.Room, error)
	RoomIDExists(ctx context.Context, roomID string) (bool, error)
	CreateRoom(ctx context.Context, room models.Room) (models.Room, error)
	GetWorkspace(ctx context.Context, ownerID string) (models.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error
	AddActiveParticipant(ctx context.Context, cmd models.AddActiveParticipant) (bool, error)
	RemoveActiveParticipant(ctx context.Context, cmd models.RemoveActiveParticipant) error
	ListActiveParticipants(ctx context.Context, roomID string) ([]models.ActiveParticipant, error)
	ClearActiveParticipants(ctx context.Context) (int64, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db  *sqlx.DB
	ids *RoomIDGenerator
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB, ids *RoomIDGenerator) *RoomRepo {
	if ids == nil {
		ids = NewRoomIDGenerator()
	}
	return &RoomRepo{db: db, ids: ids}
}

// GetRoom fetches a room by its 8-digit id.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	if !ValidRoomID(roomID) {
		return models.Room{}, ErrRoomNotFound
	}
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms WHERE room_id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// RoomIDExists checks whether a room id is already allocated.
func (r *RoomRepo) RoomIDExists(ctx context.Context, roomID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM rooms WHERE room_id=$1)`, roomID)
	return exists, err
}

// CreateRoom allocates an id when none is set and inserts the room.
func (r *RoomRepo) CreateRoom(ctx context.Context, room models.Room) (models.Room, error) {
	if room.IsPrivate && room.AccessCode == "" {
		return models.Room{}, ErrAccessCodeRequired
	}
	if room.IsWorkspace {
		room.IsPersistent = true
	}
	if room.RoomID == "" {
		id, err := r.ids.Generate(ctx, r.RoomIDExists)
		if err != nil {
			return models.Room{}, err
		}
		room.RoomID = id
	}

	err := r.db.QueryRowxContext(ctx, `INSERT INTO rooms (room_id, name, description, owner_id, is_private, access_code, is_workspace, is_persistent)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, last_activity`,
		room.RoomID, room.Name, room.Description, room.OwnerID, room.IsPrivate, room.AccessCode, room.IsWorkspace, room.IsPersistent).
		Scan(&room.CreatedAt, &room.LastActivity)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			if pqErr.Constraint == workspaceUniqueIndexName {
				return models.Room{}, ErrWorkspaceExists
			}
			return models.Room{}, ErrRoomIDTaken
		}
		return models.Room{}, fmt.Errorf("insert room: %w", err)
	}
	return room, nil
}

// GetWorkspace returns the owner's single workspace room.
func (r *RoomRepo) GetWorkspace(ctx context.Context, ownerID string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms WHERE owner_id=$1 AND is_workspace`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// DeleteRoom removes a non-workspace room; participants and files cascade.
func (r *RoomRepo) DeleteRoom(ctx context.Context, roomID string) error {
	room, err := r.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.IsWorkspace {
		return ErrWorkspaceUndeletable
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE room_id=$1 AND NOT is_workspace`, roomID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// AddActiveParticipant upserts the active entry for cmd.UserID. It reports
// true when a new entry was created, in which case the join counters are
// bumped and the historical participant list is appended on first visit.
func (r *RoomRepo) AddActiveParticipant(ctx context.Context, cmd models.AddActiveParticipant) (inserted bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.QueryRowxContext(ctx, `INSERT INTO room_active_participants (room_id, user_id, username, conn_id, color, joined_at, last_activity)
        VALUES ($1, $2, $3, $4, $5, $6, $6)
        ON CONFLICT (room_id, user_id) DO UPDATE SET conn_id = EXCLUDED.conn_id, last_activity = EXCLUDED.last_activity
        RETURNING (xmax = 0)`, cmd.RoomID, cmd.UserID, cmd.Username, cmd.ConnID, cmd.Color, cmd.At).Scan(&inserted); err != nil {
		return false, err
	}

	if !inserted {
		if _, err = tx.ExecContext(ctx, `UPDATE rooms SET last_activity=$2 WHERE room_id=$1`, cmd.RoomID, cmd.At); err != nil {
			return false, err
		}
		return false, tx.Commit()
	}

	var firstVisit bool
	if err = tx.QueryRowxContext(ctx, `INSERT INTO room_participants (room_id, user_id, role, joined_at, last_joined)
        VALUES ($1, $2, $3, $4, $4)
        ON CONFLICT (room_id, user_id) DO UPDATE SET last_joined = EXCLUDED.last_joined
        RETURNING (xmax = 0)`, cmd.RoomID, cmd.UserID, cmd.Role, cmd.At).Scan(&firstVisit); err != nil {
		return false, err
	}

	visitors := 0
	if firstVisit {
		visitors = 1
	}
	if _, err = tx.ExecContext(ctx, `UPDATE rooms SET total_joins = total_joins + 1, unique_visitors = unique_visitors + $2, last_activity=$3 WHERE room_id=$1`,
		cmd.RoomID, visitors, cmd.At); err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveActiveParticipant prunes the active entry; the historical list is untouched.
func (r *RoomRepo) RemoveActiveParticipant(ctx context.Context, cmd models.RemoveActiveParticipant) error {
	_, err := r.db.ExecContext(ctx, `WITH removed AS (
            DELETE FROM room_active_participants WHERE room_id=$1 AND user_id=$2 RETURNING room_id
        )
        UPDATE rooms SET last_activity=$3 WHERE room_id IN (SELECT room_id FROM removed)`, cmd.RoomID, cmd.UserID, cmd.At)
	return err
}

// ListActiveParticipants returns the current active entries of a room.
func (r *RoomRepo) ListActiveParticipants(ctx context.Context, roomID string) ([]models.ActiveParticipant, error) {
	var participants []models.ActiveParticipant
	err := r.db.SelectContext(ctx, &participants, `SELECT room_id, user_id, username, conn_id, color, cursor_line, cursor_column, current_file, joined_at, last_activity
        FROM room_active_participants WHERE room_id=$1 ORDER BY joined_at ASC`, roomID)
	return participants, err
}

// ClearActiveParticipants drops every active entry. Entries never outlive the
// process that owns the connections, so this runs at startup.
func (r *RoomRepo) ClearActiveParticipants(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM room_active_participants`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// NewAccessCode returns a random 6-digit access code for private rooms.
func NewAccessCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
