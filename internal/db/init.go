package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS stacks (
    name TEXT PRIMARY KEY,
    git_url TEXT NOT NULL DEFAULT '',
    local_path TEXT NOT NULL DEFAULT '',
    environment_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS env_vars (
    stack_name TEXT NOT NULL,
    environment_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    value TEXT NOT NULL,
    is_secret BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (stack_name, environment_id, name)
);

CREATE TABLE IF NOT EXISTS vault_config (
    id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    address TEXT NOT NULL,
    namespace TEXT NOT NULL DEFAULT '',
    default_path TEXT NOT NULL DEFAULT '',
    auth_method TEXT NOT NULL,
    token TEXT NOT NULL DEFAULT '',
    role_id TEXT NOT NULL DEFAULT '',
    secret_id TEXT NOT NULL DEFAULT '',
    kube_role TEXT NOT NULL DEFAULT '',
    skip_tls_verify BOOLEAN NOT NULL DEFAULT FALSE,
    enabled BOOLEAN NOT NULL DEFAULT FALSE
);
`

func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}
