package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

var roomRowColumns = []string{
	"room_id", "name", "description", "owner_id", "is_private", "access_code", "is_workspace", "is_persistent",
	"total_joins", "unique_visitors", "messages", "executions", "created_at", "last_activity",
}

func TestGetRoomSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db, nil)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM rooms WHERE room_id=$1")).
		WithArgs("12345678").
		WillReturnRows(sqlmock.NewRows(roomRowColumns).
			AddRow("12345678", "pairing", "", "u1", true, "424242", false, false, 3, 2, 0, 0, created, created))

	room, err := repo.GetRoom(context.Background(), "12345678")
	require.NoError(t, err)
	assert.Equal(t, "pairing", room.Name)
	assert.Equal(t, "424242", room.AccessCode)
	assert.True(t, room.IsOwner("u1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRoomNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM rooms WHERE room_id=$1")).
		WithArgs("87654321").
		WillReturnRows(sqlmock.NewRows(roomRowColumns))

	_, err := repo.GetRoom(context.Background(), "87654321")
	require.ErrorIs(t, err, ErrRoomNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRoomRejectsMalformedIDWithoutQuery(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db, nil)

	_, err := repo.GetRoom(context.Background(), "abc")
	require.ErrorIs(t, err, ErrRoomNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRoomRequiresAccessCodeWhenPrivate(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewRoomRepo(db, nil)

	_, err := repo.CreateRoom(context.Background(), models.Room{Name: "secret", OwnerID: "u1", IsPrivate: true})
	require.ErrorIs(t, err, ErrAccessCodeRequired)
}

func TestCreateRoomGeneratesID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db, &RoomIDGenerator{next: sequence(12345678), maxAttempts: 1})
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM rooms WHERE room_id=$1)")).
		WithArgs("12345678").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO rooms")).
		WithArgs("12345678", "home", "", "u1", false, "", true, true).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "last_activity"}).AddRow(now, now))

	room, err := repo.CreateRoom(context.Background(), models.Room{Name: "home", OwnerID: "u1", IsWorkspace: true})
	require.NoError(t, err)
	assert.Equal(t, "12345678", room.RoomID)
	assert.True(t, room.IsPersistent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRoomWorkspaceConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO rooms")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "rooms_one_workspace_per_owner"})

	_, err := repo.CreateRoom(context.Background(), models.Room{RoomID: "12345678", Name: "home", OwnerID: "u1", IsWorkspace: true})
	require.ErrorIs(t, err, ErrWorkspaceExists)
}

func TestDeleteRoomRefusesWorkspace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db, nil)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM rooms WHERE room_id=$1")).
		WithArgs("12345678").
		WillReturnRows(sqlmock.NewRows(roomRowColumns).
			AddRow("12345678", "home", "", "u1", false, "", true, true, 0, 0, 0, 0, now, now))

	err := repo.DeleteRoom(context.Background(), "12345678")
	require.ErrorIs(t, err, ErrWorkspaceUndeletable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddActiveParticipantFirstVisit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db, nil)
	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	cmd := models.AddActiveParticipant{RoomID: "12345678", UserID: "u2", Username: "bob", ConnID: "c1", Color: "#FF6B6B", Role: models.RoleCollaborator, At: at}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO room_active_participants")).
		WithArgs("12345678", "u2", "bob", "c1", "#FF6B6B", at).
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO room_participants")).
		WithArgs("12345678", "u2", sqlmock.AnyArg(), at).
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rooms SET total_joins = total_joins + 1")).
		WithArgs("12345678", 1, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inserted, err := repo.AddActiveParticipant(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddActiveParticipantExistingEntryOnlyTouchesActivity(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db, nil)
	at := time.Now()
	cmd := models.AddActiveParticipant{RoomID: "12345678", UserID: "u2", Username: "bob", ConnID: "c2", Color: "#4ECDC4", Role: models.RoleCollaborator, At: at}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO room_active_participants")).
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rooms SET last_activity=$2")).
		WithArgs("12345678", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inserted, err := repo.AddActiveParticipant(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddActiveParticipantRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO room_active_participants")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.AddActiveParticipant(context.Background(), models.AddActiveParticipant{RoomID: "12345678", UserID: "u2", At: time.Now()})
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveActiveParticipant(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db, nil)
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM room_active_participants WHERE room_id=$1 AND user_id=$2")).
		WithArgs("12345678", "u2", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RemoveActiveParticipant(context.Background(), models.RemoveActiveParticipant{RoomID: "12345678", UserID: "u2", At: at})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearActiveParticipants(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM room_active_participants")).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.ClearActiveParticipants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
