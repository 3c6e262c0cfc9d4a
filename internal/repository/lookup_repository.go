package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lumira-io/lumira-support/internal/database"
)

// LookupRepository resolves the small reference tables (categories,
// priorities, statuses, departments) by name.
type LookupRepository struct {
	conn *database.Conn
}

func NewLookupRepository(conn *database.Conn) *LookupRepository {
	return &LookupRepository{conn: conn}
}

func (r *LookupRepository) idByName(ctx context.Context, table, name string) (int64, bool, error) {
	var id int64
	err := r.conn.QueryRowContext(ctx,
		`SELECT id FROM `+table+` WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup %s %q: %w", table, name, err)
	}
	return id, true, nil
}

func (r *LookupRepository) CategoryIDByName(ctx context.Context, name string) (int64, bool, error) {
	return r.idByName(ctx, "ticket_categories", name)
}

// DefaultCategoryID is the classifier's fallback when no keyword table
// matched: the lowest-id category.
func (r *LookupRepository) DefaultCategoryID(ctx context.Context) (int64, error) {
	var id int64
	err := r.conn.QueryRowContext(ctx,
		`SELECT id FROM ticket_categories ORDER BY id LIMIT 1`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("default category: %w", err)
	}
	return id, nil
}

func (r *LookupRepository) PriorityIDByName(ctx context.Context, name string) (int64, bool, error) {
	return r.idByName(ctx, "ticket_priorities", name)
}

func (r *LookupRepository) PriorityNameByID(ctx context.Context, id int64) (string, error) {
	var name string
	err := r.conn.QueryRowContext(ctx,
		`SELECT name FROM ticket_priorities WHERE id = $1`, id).Scan(&name)
	if err != nil {
		return "", fmt.Errorf("priority name for id %d: %w", id, err)
	}
	return name, nil
}

func (r *LookupRepository) StatusIDByName(ctx context.Context, name string) (int64, bool, error) {
	return r.idByName(ctx, "ticket_statuses", name)
}

func (r *LookupRepository) DepartmentIDByName(ctx context.Context, name string) (int64, bool, error) {
	return r.idByName(ctx, "departments", name)
}
