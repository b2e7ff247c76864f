package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// ValueCipher encrypts and decrypts stored secret values.
type ValueCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// PostgresEnvVarRepository persists stack environment variables. Secret
// values are encrypted before they hit the database and decrypted on read.
type PostgresEnvVarRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB     *sql.DB
	cipher ValueCipher
}

// NewPostgresEnvVarRepository creates a repository using the provided
// *sql.DB and cipher.
func NewPostgresEnvVarRepository(db *sql.DB, cipher ValueCipher) *PostgresEnvVarRepository {
	return &PostgresEnvVarRepository{DB: db, cipher: cipher}
}

// GetSecretValues returns the decrypted secret environment variables stored
// for a stack and environment scope, keyed by variable name.
func (r *PostgresEnvVarRepository) GetSecretValues(ctx context.Context, stackName, environmentID string) (map[string]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT name, value FROM env_vars
		WHERE stack_name = $1 AND environment_id = $2 AND is_secret = true
	`, stackName, environmentID)
	if err != nil {
		return nil, fmt.Errorf("GetSecretValues: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var name, stored string
		if err := rows.Scan(&name, &stored); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		plain, err := r.cipher.Decrypt(stored)
		if err != nil {
			return nil, fmt.Errorf("decrypt %q: %w", name, err)
		}
		values[name] = plain
	}
	return values, rows.Err()
}

// UpsertSecretValues writes all given secret values for a stack and
// environment scope in one transaction. The batch is all-or-nothing: any
// failure rolls back every write of this pass. Names are written in sorted
// order so the statement sequence is deterministic.
func (r *PostgresEnvVarRepository) UpsertSecretValues(ctx context.Context, stackName, environmentID string, values map[string]string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		encrypted, err := r.cipher.Encrypt(values[name])
		if err != nil {
			return fmt.Errorf("encrypt %q: %w", name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO env_vars (stack_name, environment_id, name, value, is_secret)
			VALUES ($1, $2, $3, $4, true)
			ON CONFLICT (stack_name, environment_id, name) DO UPDATE SET
				value = EXCLUDED.value,
				is_secret = true
		`, stackName, environmentID, name, encrypted)
		if err != nil {
			return fmt.Errorf("upsert %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteByStack removes all environment variables of a stack, across every
// environment scope. Used when the stack itself is deleted.
func (r *PostgresEnvVarRepository) DeleteByStack(ctx context.Context, stackName string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM env_vars WHERE stack_name = $1`, stackName); err != nil {
		return fmt.Errorf("DeleteByStack: %w", err)
	}
	return nil
}
