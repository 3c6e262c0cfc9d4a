package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

var placeholderPattern = regexp.MustCompile(`\$\d+`)
var returningPattern = regexp.MustCompile(`(?i)\s+RETURNING\s+\w+\s*$`)

// convert rewrites $N placeholders for dialects that use ?. Repositories
// always write PostgreSQL-style SQL.
func (c *Conn) convert(query string) string {
	if c.driver != "mysql" {
		return query
	}
	result := placeholderPattern.ReplaceAllString(query, "?")
	result = strings.ReplaceAll(result, " ILIKE ", " LIKE ")
	return result
}

// InsertReturningID runs an INSERT written with a trailing "RETURNING id"
// clause and yields the new row id on either dialect: PostgreSQL scans the
// returned row, MySQL strips the clause and uses LastInsertId.
func (c *Conn) InsertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	if c.driver == "mysql" {
		stripped := returningPattern.ReplaceAllString(query, "")
		res, err := c.ExecContext(ctx, stripped, args...)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("last insert id: %w", err)
		}
		return id, nil
	}
	var id int64
	if err := c.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// IsDuplicate reports whether err is a unique-constraint violation on
// either supported driver.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}
