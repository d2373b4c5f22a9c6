package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            username TEXT NOT NULL UNIQUE
        );`,
	`CREATE TABLE IF NOT EXISTS rooms (
            room_id CHAR(8) PRIMARY KEY CHECK (room_id ~ '^[0-9]{8}$'),
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            owner_id TEXT NOT NULL REFERENCES users(id),
            is_private BOOLEAN NOT NULL DEFAULT FALSE,
            access_code TEXT NOT NULL DEFAULT '',
            is_workspace BOOLEAN NOT NULL DEFAULT FALSE,
            is_persistent BOOLEAN NOT NULL DEFAULT FALSE,
            total_joins INT NOT NULL DEFAULT 0,
            unique_visitors INT NOT NULL DEFAULT 0,
            messages INT NOT NULL DEFAULT 0,
            executions INT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (NOT is_private OR access_code <> '')
        );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS rooms_one_workspace_per_owner
            ON rooms(owner_id) WHERE is_workspace;`,
	`CREATE TABLE IF NOT EXISTS room_participants (
            room_id CHAR(8) NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'collaborator',
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_joined TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(room_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS room_active_participants (
            room_id CHAR(8) NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            username TEXT NOT NULL,
            conn_id TEXT NOT NULL,
            color TEXT NOT NULL,
            cursor_line INT,
            cursor_column INT,
            current_file TEXT,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(room_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS projects (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            owner_id TEXT NOT NULL,
            room_id CHAR(8) NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
            is_public BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS project_collaborators (
            project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'viewer',
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(project_id, user_id)
        );`,
}

func runMigrations(db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	logrus.WithField("count", len(migrations)).Info("database migrations applied")
	return nil
}
