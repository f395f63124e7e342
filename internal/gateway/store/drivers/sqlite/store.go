package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/aussiebroadwan/hwidgate/internal/gateway/domain"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/store"
)

// Store keeps the registry in an embedded SQLite database. Expiration is a
// single conditional UPDATE, so concurrent requests (and processes sharing
// the file) get a real compare-and-swap.
type Store struct {
	db *sql.DB
}

var _ store.Registry = (*Store)(nil)

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Every connection to ":memory:" is a separate database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

const loadQuery = `SELECT hwid, status, kind, expires_at FROM authorizations`

func (s *Store) Load(ctx context.Context) (domain.Registry, error) {
	rows, err := s.db.QueryContext(ctx, loadQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer rows.Close()

	reg := make(domain.Registry)
	for rows.Next() {
		var (
			hwid, status, kind string
			expiresAt          sql.NullString
		)
		if err := rows.Scan(&hwid, &status, &kind, &expiresAt); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrCorrupt, err)
		}
		reg[hwid] = domain.Entry{
			Status:    domain.Status(status),
			Kind:      domain.Kind(kind),
			ExpiresAt: expiresAt.String,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return reg, nil
}

const expireQuery = `
UPDATE authorizations
   SET status = 'expired', updated_at = CURRENT_TIMESTAMP
 WHERE hwid = ?
   AND status = 'authorized'
   AND kind = ?
   AND COALESCE(expires_at, '') = ?`

func (s *Store) ExpireEntry(ctx context.Context, key string, observed domain.Entry) (bool, error) {
	if observed.Status != domain.StatusAuthorized {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx, expireQuery, key, string(observed.Kind), observed.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrWrite, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrWrite, err)
	}
	return n == 1, nil
}

const importQuery = `
INSERT INTO authorizations (hwid, status, kind, expires_at, updated_at)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (hwid) DO NOTHING`

// Import adds the entries of reg that are not yet stored, in one
// transaction, and returns how many were inserted. Existing rows are left
// alone so re-importing a seed file never revives an expired grant.
func (s *Store) Import(ctx context.Context, reg domain.Registry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrWrite, err)
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	stmt, err := tx.PrepareContext(ctx, importQuery)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrWrite, err)
	}
	defer stmt.Close()

	var inserted int
	for hwid, e := range reg {
		var expiresAt sql.NullString
		if e.ExpiresAt != "" {
			expiresAt = sql.NullString{String: e.ExpiresAt, Valid: true}
		}
		res, err := stmt.ExecContext(ctx, hwid, string(e.Status), string(e.Kind), expiresAt)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", store.ErrWrite, hwid, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrWrite, err)
	}
	return inserted, nil
}
