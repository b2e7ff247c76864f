package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/d0dg3r/dockhand/internal/models"
)

// PostgresStackRepository provides the stack metadata operations the sync
// pipeline depends on.
type PostgresStackRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresStackRepository creates a repository using the provided *sql.DB.
func NewPostgresStackRepository(db *sql.DB) *PostgresStackRepository {
	return &PostgresStackRepository{DB: db}
}

// Register inserts or updates a stack record. A stack registered without an
// environment id gets a fresh one.
func (r *PostgresStackRepository) Register(ctx context.Context, stack *models.Stack) error {
	if stack.EnvironmentID == "" {
		stack.EnvironmentID = uuid.NewString()
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO stacks (name, git_url, local_path, environment_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			git_url = EXCLUDED.git_url,
			local_path = EXCLUDED.local_path,
			environment_id = EXCLUDED.environment_id
	`, stack.Name, stack.GitURL, stack.LocalPath, stack.EnvironmentID)
	if err != nil {
		return fmt.Errorf("register stack: %w", err)
	}
	return nil
}

// ListGitStacks returns every stack backed by a Git repository.
func (r *PostgresStackRepository) ListGitStacks(ctx context.Context) ([]models.Stack, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT name, git_url, local_path, environment_id FROM stacks WHERE git_url <> ''
	`)
	if err != nil {
		return nil, fmt.Errorf("ListGitStacks: %w", err)
	}
	defer rows.Close()

	var stacks []models.Stack
	for rows.Next() {
		var s models.Stack
		if err := rows.Scan(&s.Name, &s.GitURL, &s.LocalPath, &s.EnvironmentID); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		stacks = append(stacks, s)
	}
	return stacks, rows.Err()
}

// Get returns a single stack by name, or nil when it does not exist.
func (r *PostgresStackRepository) Get(ctx context.Context, stackName string) (*models.Stack, error) {
	var s models.Stack
	err := r.DB.QueryRowContext(ctx, `
		SELECT name, git_url, local_path, environment_id FROM stacks WHERE name = $1
	`, stackName).Scan(&s.Name, &s.GitURL, &s.LocalPath, &s.EnvironmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stack: %w", err)
	}
	return &s, nil
}

// GetEnvironmentID resolves the environment scope of a stack from its
// source record. An unknown stack yields an empty id and no error.
func (r *PostgresStackRepository) GetEnvironmentID(ctx context.Context, stackName string) (string, error) {
	var id string
	err := r.DB.QueryRowContext(ctx, `
		SELECT environment_id FROM stacks WHERE name = $1
	`, stackName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("GetEnvironmentID: %w", err)
	}
	return id, nil
}

// Delete removes a stack and, through the env-var repository, its stored
// environment variables.
func (r *PostgresStackRepository) Delete(ctx context.Context, stackName string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM stacks WHERE name = $1`, stackName); err != nil {
		return fmt.Errorf("delete stack: %w", err)
	}
	return nil
}
