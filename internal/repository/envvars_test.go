package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/d0dg3r/dockhand/internal/crypto"
)

func setupEnvVarMock(t *testing.T) (*PostgresEnvVarRepository, sqlmock.Sqlmock, *crypto.Cipher, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	cipher, err := crypto.NewCipher([]byte("test-master-key"))
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}
	repo := NewPostgresEnvVarRepository(db, cipher)
	cleanup := func() {
		db.Close()
	}
	return repo, mock, cipher, cleanup
}

func encryptOrFail(t *testing.T, cipher *crypto.Cipher, plain string) string {
	t.Helper()
	sealed, err := cipher.Encrypt(plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	return sealed
}

func TestGetSecretValues_Success(t *testing.T) {
	repo, mock, cipher, cleanup := setupEnvVarMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"name", "value"}).
		AddRow("DB_PASS", encryptOrFail(t, cipher, "hunter2")).
		AddRow("API_KEY", encryptOrFail(t, cipher, "k-123"))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, value FROM env_vars`)).
		WithArgs("web", "env-1").
		WillReturnRows(rows)

	values, err := repo.GetSecretValues(context.Background(), "web", "env-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["DB_PASS"] != "hunter2" || values["API_KEY"] != "k-123" {
		t.Errorf("unexpected values: %v", values)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetSecretValues_DecryptFailure(t *testing.T) {
	repo, mock, _, cleanup := setupEnvVarMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"name", "value"}).
		AddRow("DB_PASS", "not-a-ciphertext")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, value FROM env_vars`)).
		WithArgs("web", "env-1").
		WillReturnRows(rows)

	_, err := repo.GetSecretValues(context.Background(), "web", "env-1")
	if err == nil {
		t.Fatal("expected error for undecryptable value")
	}
}

func TestGetSecretValues_QueryError(t *testing.T) {
	repo, mock, _, cleanup := setupEnvVarMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, value FROM env_vars`)).
		WithArgs("web", "env-1").
		WillReturnError(errors.New("query fail"))

	_, err := repo.GetSecretValues(context.Background(), "web", "env-1")
	if err == nil || !regexp.MustCompile(`GetSecretValues`).MatchString(err.Error()) {
		t.Errorf("expected GetSecretValues error, got %v", err)
	}
}

func TestUpsertSecretValues_SortedBatch(t *testing.T) {
	repo, mock, _, cleanup := setupEnvVarMock(t)
	defer cleanup()

	mock.ExpectBegin()
	// Names are written in sorted order regardless of map iteration.
	for _, name := range []string{"A_VAR", "B_VAR", "C_VAR"} {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO env_vars (stack_name, environment_id, name, value, is_secret)`)).
			WithArgs("web", "env-1", name, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	err := repo.UpsertSecretValues(context.Background(), "web", "env-1", map[string]string{
		"C_VAR": "3",
		"A_VAR": "1",
		"B_VAR": "2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpsertSecretValues_RollsBackOnFailure(t *testing.T) {
	repo, mock, _, cleanup := setupEnvVarMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO env_vars (stack_name, environment_id, name, value, is_secret)`)).
		WithArgs("web", "env-1", "A_VAR", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO env_vars (stack_name, environment_id, name, value, is_secret)`)).
		WithArgs("web", "env-1", "B_VAR", sqlmock.AnyArg()).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := repo.UpsertSecretValues(context.Background(), "web", "env-1", map[string]string{
		"A_VAR": "1",
		"B_VAR": "2",
	})
	if err == nil {
		t.Fatal("expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDeleteByStack(t *testing.T) {
	repo, mock, _, cleanup := setupEnvVarMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM env_vars WHERE stack_name = $1`)).
		WithArgs("web").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := repo.DeleteByStack(context.Background(), "web"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
