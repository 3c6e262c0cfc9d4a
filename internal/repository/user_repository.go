package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lumira-io/lumira-support/internal/database"
	"github.com/lumira-io/lumira-support/internal/models"
)

// UserRepository handles the slice of the account table the support core
// reads and writes. Email matching is always case-insensitive.
type UserRepository struct {
	conn *database.Conn
}

func NewUserRepository(conn *database.Conn) *UserRepository {
	return &UserRepository{conn: conn}
}

// GetByID returns (nil, nil) when no account has the id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := r.conn.QueryRowContext(ctx, `
		SELECT id, email, password_hash, full_name, role_id, email_verified, created_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.RoleID, &u.EmailVerified, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

// FindByEmail returns (nil, nil) when no account matches.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.conn.QueryRowContext(ctx, `
		SELECT id, email, password_hash, full_name, role_id, email_verified, created_at
		FROM users WHERE LOWER(email) = LOWER($1)`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.RoleID, &u.EmailVerified, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &u, nil
}

// CreateCustomer provisions an account for a first-time email requester.
// The password is random and unknown; the user must reset it to log in.
func (r *UserRepository) CreateCustomer(ctx context.Context, email, fullName string) (*models.User, error) {
	roleID, err := r.customerRoleID(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := randomPasswordHash()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	id, err := r.conn.InsertReturningID(ctx, `
		INSERT INTO users (email, password_hash, full_name, role_id, email_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		email, hash, fullName, roleID, false, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create customer %s: %w", email, err)
	}
	return &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		RoleID:       roleID,
		CreatedAt:    now,
	}, nil
}

func (r *UserRepository) customerRoleID(ctx context.Context) (int64, error) {
	var id int64
	err := r.conn.QueryRowContext(ctx,
		`SELECT id FROM roles WHERE name = $1`, "Customer").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// Seed data places the Customer role at id 3.
		return 3, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolve customer role: %w", err)
	}
	return id, nil
}

func randomPasswordHash() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// StaffIDByEmail resolves an address to an account holding an Admin or
// Support Agent role. The found flag is false for customers and strangers.
func (r *UserRepository) StaffIDByEmail(ctx context.Context, email string) (int64, bool, error) {
	var id int64
	err := r.conn.QueryRowContext(ctx, `
		SELECT u.id FROM users u
		JOIN roles r ON u.role_id = r.id
		WHERE LOWER(u.email) = LOWER($1) AND r.name IN ('Admin', 'Support Agent')`, email).
		Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolve staff by email: %w", err)
	}
	return id, true, nil
}
