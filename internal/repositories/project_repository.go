package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"collab-service/internal/models"
)

var ErrProjectNotFound = errors.New("project not found")

// ProjectRepository abstracts project lookups needed by the live core.
type ProjectRepository interface {
	GetProject(ctx context.Context, projectID string) (models.Project, error)
	ListCollaborators(ctx context.Context, projectID string) ([]models.Collaborator, error)
}

// ProjectRepo is a sqlx implementation of ProjectRepository.
type ProjectRepo struct {
	db *sqlx.DB
}

// NewProjectRepo constructs a ProjectRepo.
func NewProjectRepo(db *sqlx.DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

// GetProject fetches a single project.
func (r *ProjectRepo) GetProject(ctx context.Context, projectID string) (models.Project, error) {
	var project models.Project
	err := r.db.GetContext(ctx, &project, `SELECT id, name, description, owner_id, room_id, is_public, created_at FROM projects WHERE id=$1`, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, ErrProjectNotFound
	}
	return project, err
}

// ListCollaborators returns the project's collaborator grants.
func (r *ProjectRepo) ListCollaborators(ctx context.Context, projectID string) ([]models.Collaborator, error) {
	var collaborators []models.Collaborator
	err := r.db.SelectContext(ctx, &collaborators, `SELECT project_id, user_id, role, joined_at FROM project_collaborators WHERE project_id=$1 ORDER BY joined_at ASC`, projectID)
	return collaborators, err
}
