// Package graph provides the SQLite-backed social graph store.
package graph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robalyx/timeline/internal/timeline"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	profile_url TEXT NOT NULL DEFAULT '',
	high_fanout INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS follows (
	follower TEXT NOT NULL,
	followee TEXT NOT NULL,
	PRIMARY KEY (follower, followee)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_follows_followee ON follows (followee, follower);
`

// Options configures a Store.
type Options struct {
	// PoolSize is the number of pooled connections.
	PoolSize int
	// BusyTimeout is how long a statement waits on a locked database.
	BusyTimeout time.Duration
	// HighFanoutMinFollowers marks users with at least this many followers as
	// high fan-out (0 leaves it to the per-user flag).
	HighFanoutMinFollowers int
}

// User is a user record of the graph.
type User struct {
	Name       timeline.UserID
	ProfileURL string
	HighFanout bool
}

// Follow is a directed follow edge.
type Follow struct {
	Follower timeline.UserID
	Followee timeline.UserID
}

// Store answers follower questions from a SQLite database.
type Store struct {
	pool         *sqlitex.Pool
	minFollowers int
	logger       *zap.Logger
}

// Open opens (creating if needed) the graph database at path and applies the schema.
func Open(ctx context.Context, path string, opts Options, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); !strings.HasPrefix(path, "file:") && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create graph directory: %w", err)
		}
	}

	busyTimeout := opts.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:    sqlite.OpenCreate | sqlite.OpenReadWrite | sqlite.OpenWAL | sqlite.OpenURI,
		PoolSize: opts.PoolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			conn.SetBusyTimeout(busyTimeout)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open graph database: %w", err)
	}

	s := &Store{
		pool:         pool,
		minFollowers: opts.HighFanoutMinFollowers,
		logger:       logger.Named("graph"),
	}

	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s.logger.Info("Graph store opened", zap.String("path", path))

	return s, nil
}

// Close closes every pooled connection.
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
			return fmt.Errorf("failed to apply graph schema: %w", err)
		}
		return nil
	})
}

// GetFollowers implements timeline.GraphLookup.
func (s *Store) GetFollowers(ctx context.Context, userID timeline.UserID) ([]timeline.FollowerEntry, error) {
	var followers []timeline.FollowerEntry

	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT f.follower, COALESCE(u.profile_url, '')
			FROM follows f
			LEFT JOIN users u ON u.username = f.follower
			WHERE f.followee = ?
			ORDER BY f.follower`, &sqlitex.ExecOptions{
			Args: []any{string(userID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				followers = append(followers, timeline.FollowerEntry{
					Name:    timeline.UserID(stmt.ColumnText(0)),
					Profile: stmt.ColumnText(1),
				})
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get followers: %w", err)
	}

	return followers, nil
}

// GetFollowees implements timeline.GraphLookup.
func (s *Store) GetFollowees(ctx context.Context, userID timeline.UserID) ([]timeline.UserID, error) {
	var followees []timeline.UserID

	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT followee FROM follows
			WHERE follower = ?
			ORDER BY followee`, &sqlitex.ExecOptions{
			Args: []any{string(userID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				followees = append(followees, timeline.UserID(stmt.ColumnText(0)))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get followees: %w", err)
	}

	return followees, nil
}

// IsHighFanout implements timeline.GraphLookup.
func (s *Store) IsHighFanout(ctx context.Context, userID timeline.UserID) (bool, error) {
	var (
		flagged   bool
		followers int64
	)

	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `SELECT high_fanout FROM users WHERE username = ?`, &sqlitex.ExecOptions{
			Args: []any{string(userID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				flagged = stmt.ColumnInt64(0) != 0
				return nil
			},
		})
		if err != nil || flagged || s.minFollowers <= 0 {
			return err
		}

		return sqlitex.Execute(conn, `SELECT COUNT(*) FROM follows WHERE followee = ?`, &sqlitex.ExecOptions{
			Args: []any{string(userID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				followers = stmt.ColumnInt64(0)
				return nil
			},
		})
	})
	if err != nil {
		return false, fmt.Errorf("failed to check high fan-out: %w", err)
	}

	return flagged || (s.minFollowers > 0 && followers >= int64(s.minFollowers)), nil
}

// SaveUsers inserts or updates user records.
func (s *Store) SaveUsers(ctx context.Context, users []User) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) (err error) {
		defer sqlitex.Transaction(conn)(&err)

		for _, user := range users {
			err = sqlitex.Execute(conn, `
				INSERT INTO users (username, profile_url, high_fanout) VALUES (?, ?, ?)
				ON CONFLICT (username) DO UPDATE SET
					profile_url = excluded.profile_url,
					high_fanout = excluded.high_fanout`, &sqlitex.ExecOptions{
				Args: []any{string(user.Name), user.ProfileURL, user.HighFanout},
			})
			if err != nil {
				return fmt.Errorf("failed to save user %s: %w", user.Name, err)
			}
		}

		return nil
	})
}

// SaveFollows inserts follow edges, ignoring ones that already exist.
func (s *Store) SaveFollows(ctx context.Context, follows []Follow) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) (err error) {
		defer sqlitex.Transaction(conn)(&err)

		for _, follow := range follows {
			err = sqlitex.Execute(conn,
				`INSERT OR IGNORE INTO follows (follower, followee) VALUES (?, ?)`, &sqlitex.ExecOptions{
					Args: []any{string(follow.Follower), string(follow.Followee)},
				})
			if err != nil {
				return fmt.Errorf("failed to save follow %s -> %s: %w", follow.Follower, follow.Followee, err)
			}
		}

		return nil
	})
}

// withConn runs fn on a pooled connection that is interrupted when ctx ends.
func (s *Store) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := fn(conn); err != nil {
		// An interrupted statement means the caller went away
		if ctxErr := ctx.Err(); ctxErr != nil && sqlite.ErrCode(err) == sqlite.ResultInterrupt {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		return err
	}

	return nil
}

// IsRetryableError reports whether err is a transient lock conflict.
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch sqlite.ErrCode(err).ToPrimary() {
	case sqlite.ResultBusy, sqlite.ResultLocked:
		return true
	default:
		return false
	}
}
