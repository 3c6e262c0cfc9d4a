package database

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
)

// TryRunLock takes the advisory lock guarding one batch component so two
// overlapping scheduled invocations cannot double-process the same mailbox
// or ticket set. It returns false when another run already holds the lock.
// The release func must be called when the run finishes; locks are held on
// a dedicated session pinned out of the pool.
func (c *Conn) TryRunLock(ctx context.Context, name string) (bool, func(), error) {
	session, err := c.db.Conn(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("run lock session: %w", err)
	}

	var acquired bool
	switch c.driver {
	case "mysql":
		var got sql.NullInt64
		err = session.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", name).Scan(&got)
		acquired = err == nil && got.Valid && got.Int64 == 1
	default:
		err = session.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockKey(name)).Scan(&acquired)
	}
	if err != nil {
		session.Close()
		return false, nil, fmt.Errorf("acquire run lock %s: %w", name, err)
	}
	if !acquired {
		session.Close()
		return false, func() {}, nil
	}

	release := func() {
		switch c.driver {
		case "mysql":
			_, _ = session.ExecContext(context.Background(), "SELECT RELEASE_LOCK(?)", name)
		default:
			_, _ = session.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", lockKey(name))
		}
		session.Close()
	}
	return true, release, nil
}

func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
