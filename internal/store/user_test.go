package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bookfinder/apiserver/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewUserRepository(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "username", "mobile_number", "user_role", "password_hash",
		"reset_otp", "otp_expiry_time", "created_at", "updated_at",
	})
}

func TestGetByEmail_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	expiry := fixedNow.Add(10 * time.Minute)
	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*email,.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1$`).
		WithArgs("alice@example.com").
		WillReturnRows(userRows().AddRow(
			7, "alice@example.com", "alice", "+15555550100", "BookReader", "$2a$hash",
			"123456", expiry, fixedNow, fixedNow,
		))

	got, err := repo.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 7, got.ID)
	assert.Equal(t, types.RoleBookReader, got.Role)
	require.NotNil(t, got.ResetOTP)
	assert.Equal(t, "123456", *got.ResetOTP)
	require.NotNil(t, got.OTPExpiryTime)
	assert.True(t, got.OTPExpiryTime.Equal(expiry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByEmail_NullOTP(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+email`).
		WithArgs("bob@example.com").
		WillReturnRows(userRows().AddRow(
			8, "bob@example.com", "bob", "555", "BookRecommender", "$2a$hash",
			nil, nil, fixedNow, fixedNow,
		))

	got, err := repo.GetByEmail(context.Background(), "bob@example.com")
	require.NoError(t, err)
	assert.Nil(t, got.ResetOTP)
	assert.Nil(t, got.OTPExpiryTime)
	assert.False(t, got.HasActiveReset())
}

func TestGetByEmail_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+email`).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByID_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id`).
		WithArgs(1).
		WillReturnError(errors.New("db down"))

	_, err := repo.GetByID(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "db down")
}

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+users\s*\(.*\)\s*VALUES\s*\(.*\)\s*RETURNING\s+id$`).
		WithArgs("alice@example.com", "alice", "+15555550100", "BookReader", "$2a$hash", nil, nil, fixedNow, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	got, err := repo.Create(context.Background(), types.User{
		Email:        "alice@example.com",
		Username:     "alice",
		MobileNumber: "+15555550100",
		Role:         types.RoleBookReader,
		PasswordHash: "$2a$hash",
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got.ID)
	assert.Equal(t, fixedNow, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_UniqueViolation(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := repo.Create(context.Background(), types.User{Email: "alice@example.com", Role: types.RoleBookReader})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUpdate_ClearsOTP(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)^\s*UPDATE\s+users\s+SET.*WHERE\s+id\s*=\s*\$9$`).
		WithArgs("alice@example.com", "alice", "555", "BookReader", "$2a$new", nil, nil, fixedNow, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := repo.Update(context.Background(), types.User{
		ID:           7,
		Email:        "alice@example.com",
		Username:     "alice",
		MobileNumber: "555",
		Role:         types.RoleBookReader,
		PasswordHash: "$2a$new",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_StoresOTP(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	otp := "654321"
	expiry := fixedNow.Add(10 * time.Minute)
	mock.ExpectExec(`UPDATE\s+users`).
		WithArgs("alice@example.com", "alice", "555", "BookReader", "$2a$hash", "654321", expiry, fixedNow, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := repo.Update(context.Background(), types.User{
		ID:            7,
		Email:         "alice@example.com",
		Username:      "alice",
		MobileNumber:  "555",
		Role:          types.RoleBookReader,
		PasswordHash:  "$2a$hash",
		ResetOTP:      &otp,
		OTPExpiryTime: &expiry,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`UPDATE\s+users`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Update(context.Background(), types.User{ID: 99, Role: types.RoleBookReader})
	assert.ErrorIs(t, err, ErrNotFound)
}
