package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"collab-service/internal/auth"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) RoomIDExists(ctx context.Context, roomID string) (bool, error) {
	args := m.Called(ctx, roomID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) CreateRoom(ctx context.Context, room models.Room) (models.Room, error) {
	args := m.Called(ctx, room)
	var created models.Room
	if val := args.Get(0); val != nil {
		created = val.(models.Room)
	}
	return created, args.Error(1)
}

func (m *RoomRepositoryMock) GetWorkspace(ctx context.Context, ownerID string) (models.Room, error) {
	args := m.Called(ctx, ownerID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) DeleteRoom(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) AddActiveParticipant(ctx context.Context, cmd models.AddActiveParticipant) (bool, error) {
	args := m.Called(ctx, cmd)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) RemoveActiveParticipant(ctx context.Context, cmd models.RemoveActiveParticipant) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

func (m *RoomRepositoryMock) ListActiveParticipants(ctx context.Context, roomID string) ([]models.ActiveParticipant, error) {
	args := m.Called(ctx, roomID)
	var list []models.ActiveParticipant
	if val := args.Get(0); val != nil {
		list = val.([]models.ActiveParticipant)
	}
	return list, args.Error(1)
}

func (m *RoomRepositoryMock) ClearActiveParticipants(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type ProjectRepositoryMock struct {
	mock.Mock
}

func (m *ProjectRepositoryMock) GetProject(ctx context.Context, projectID string) (models.Project, error) {
	args := m.Called(ctx, projectID)
	var project models.Project
	if val := args.Get(0); val != nil {
		project = val.(models.Project)
	}
	return project, args.Error(1)
}

func (m *ProjectRepositoryMock) ListCollaborators(ctx context.Context, projectID string) ([]models.Collaborator, error) {
	args := m.Called(ctx, projectID)
	var list []models.Collaborator
	if val := args.Get(0); val != nil {
		list = val.([]models.Collaborator)
	}
	return list, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type TokenVerifierMock struct {
	mock.Mock
}

func (m *TokenVerifierMock) VerifyConnectionToken(ctx context.Context, token string) (auth.Identity, error) {
	args := m.Called(ctx, token)
	var identity auth.Identity
	if val := args.Get(0); val != nil {
		identity = val.(auth.Identity)
	}
	return identity, args.Error(1)
}

var (
	_ repositories.RoomRepository    = (*RoomRepositoryMock)(nil)
	_ repositories.ProjectRepository = (*ProjectRepositoryMock)(nil)
	_ repositories.UserRepository    = (*UserRepositoryMock)(nil)
	_ auth.TokenVerifier             = (*TokenVerifierMock)(nil)
)
