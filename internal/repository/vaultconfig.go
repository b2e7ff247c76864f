// Package repository provides persistence implementations for the secret
// synchronization service using a PostgreSQL database.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/d0dg3r/dockhand/internal/models"
)

// PostgresVaultConfigRepository persists the single global Vault
// configuration row. Credential fields are stored as handed in; encryption
// happens at the service boundary.
type PostgresVaultConfigRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresVaultConfigRepository creates a repository using the provided *sql.DB.
func NewPostgresVaultConfigRepository(db *sql.DB) *PostgresVaultConfigRepository {
	return &PostgresVaultConfigRepository{DB: db}
}

// Get returns the global Vault configuration, or nil when none is stored.
func (r *PostgresVaultConfigRepository) Get(ctx context.Context) (*models.VaultConfig, error) {
	var cfg models.VaultConfig
	err := r.DB.QueryRowContext(ctx, `
		SELECT address, namespace, default_path, auth_method, token, role_id, secret_id, kube_role, skip_tls_verify, enabled
		FROM vault_config WHERE id = 1
	`).Scan(&cfg.Address, &cfg.Namespace, &cfg.DefaultPath, &cfg.AuthMethod,
		&cfg.Token, &cfg.RoleID, &cfg.SecretID, &cfg.KubeRole, &cfg.SkipTLSVerify, &cfg.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vault config: %w", err)
	}
	return &cfg, nil
}

// Save upserts the single configuration row.
func (r *PostgresVaultConfigRepository) Save(ctx context.Context, cfg *models.VaultConfig) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO vault_config (id, address, namespace, default_path, auth_method, token, role_id, secret_id, kube_role, skip_tls_verify, enabled)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			address = EXCLUDED.address,
			namespace = EXCLUDED.namespace,
			default_path = EXCLUDED.default_path,
			auth_method = EXCLUDED.auth_method,
			token = EXCLUDED.token,
			role_id = EXCLUDED.role_id,
			secret_id = EXCLUDED.secret_id,
			kube_role = EXCLUDED.kube_role,
			skip_tls_verify = EXCLUDED.skip_tls_verify,
			enabled = EXCLUDED.enabled
	`, cfg.Address, cfg.Namespace, cfg.DefaultPath, cfg.AuthMethod,
		cfg.Token, cfg.RoleID, cfg.SecretID, cfg.KubeRole, cfg.SkipTLSVerify, cfg.Enabled)
	if err != nil {
		return fmt.Errorf("save vault config: %w", err)
	}
	return nil
}

// Delete removes the configuration row.
func (r *PostgresVaultConfigRepository) Delete(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM vault_config WHERE id = 1`); err != nil {
		return fmt.Errorf("delete vault config: %w", err)
	}
	return nil
}
