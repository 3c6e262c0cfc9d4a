package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByEmailMissing(t *testing.T) {
	conn, mock := newMockConn(t, "postgres")
	mock.ExpectQuery(`SELECT(?s).+FROM users WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	u, err := NewUserRepository(conn).FindByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestFindByEmailCaseInsensitive(t *testing.T) {
	conn, mock := newMockConn(t, "postgres")
	mock.ExpectQuery(`SELECT(?s).+FROM users WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("Dana@Example.COM").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "password_hash", "full_name", "role_id", "email_verified", "created_at",
		}).AddRow(int64(7), "dana@example.com", "x", "Dana Reyes", int64(3), true, time.Now()))

	u, err := NewUserRepository(conn).FindByEmail(context.Background(), "Dana@Example.COM")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, int64(7), u.ID)
}

func TestStaffIDByEmailRejectsCustomers(t *testing.T) {
	conn, mock := newMockConn(t, "postgres")
	mock.ExpectQuery(`SELECT u\.id FROM users u(?s).+r\.name IN \('Admin', 'Support Agent'\)`).
		WithArgs("customer@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, ok, err := NewUserRepository(conn).StaffIDByEmail(context.Background(), "customer@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateCustomerFallsBackToSeedRole(t *testing.T) {
	conn, mock := newMockConn(t, "postgres")
	mock.ExpectQuery(`SELECT id FROM roles WHERE name = \$1`).
		WithArgs("Customer").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO users(?s).+RETURNING id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))

	u, err := NewUserRepository(conn).CreateCustomer(context.Background(), "new@example.com", "New Person")
	require.NoError(t, err)
	assert.Equal(t, int64(12), u.ID)
	assert.Equal(t, int64(3), u.RoleID)
	assert.False(t, u.EmailVerified)
	assert.NotEmpty(t, u.PasswordHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}
