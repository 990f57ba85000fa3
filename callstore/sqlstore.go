package callstore

import (
	"database/sql"
	"sync"

	"github.com/pkg/errors"
)

const (
	createTableSQL = `
CREATE TABLE IF NOT EXISTS _rpc_pending_calls (
  id         TEXT PRIMARY KEY NOT NULL,
  method     TEXT NOT NULL,
  params     TEXT NOT NULL,
  callback   TEXT NOT NULL,
  sent_at    INTEGER NOT NULL,
  timeout_at INTEGER NOT NULL
)`
	createIndexSQL = `
CREATE INDEX IF NOT EXISTS idx__rpc_pending_calls_timeout
  ON _rpc_pending_calls(timeout_at)`
)

// A SQLStore persists pending calls in a SQL table, created lazily on first
// use. The canonical backend is SQLite via mattn/go-sqlite3:
//
//	db, err := sql.Open("sqlite3", path)
//	...
//	store := callstore.NewSQLStore(db)
//
// The store does not own the handle; closing it is the caller's business.
type SQLStore struct {
	db *sql.DB

	once    sync.Once
	initErr error
}

// NewSQLStore returns a store over db. The schema is created the first time
// the store is used.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) ensure() error {
	s.once.Do(func() {
		if _, err := s.db.Exec(createTableSQL); err != nil {
			s.initErr = errors.Wrap(err, "creating pending calls table")
			return
		}
		if _, err := s.db.Exec(createIndexSQL); err != nil {
			s.initErr = errors.Wrap(err, "creating timeout index")
		}
	})
	return s.initErr
}

// Save implements part of the Store interface.
func (s *SQLStore) Save(call Call) error {
	if err := s.ensure(); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO _rpc_pending_calls
		   (id, method, params, callback, sent_at, timeout_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		call.ID, call.Method, call.Params, call.Callback, call.SentAt, call.TimeoutAt)
	return errors.Wrapf(err, "saving call %q", call.ID)
}

// Get implements part of the Store interface.
func (s *SQLStore) Get(id string) (Call, bool, error) {
	if err := s.ensure(); err != nil {
		return Call{}, false, err
	}
	row := s.db.QueryRow(
		`SELECT id, method, params, callback, sent_at, timeout_at
		   FROM _rpc_pending_calls WHERE id = ?`, id)
	var call Call
	err := row.Scan(&call.ID, &call.Method, &call.Params, &call.Callback, &call.SentAt, &call.TimeoutAt)
	if err == sql.ErrNoRows {
		return Call{}, false, nil
	}
	if err != nil {
		return Call{}, false, errors.Wrapf(err, "loading call %q", id)
	}
	return call, true, nil
}

// Delete implements part of the Store interface.
func (s *SQLStore) Delete(id string) (bool, error) {
	if err := s.ensure(); err != nil {
		return false, err
	}
	res, err := s.db.Exec(`DELETE FROM _rpc_pending_calls WHERE id = ?`, id)
	if err != nil {
		return false, errors.Wrapf(err, "deleting call %q", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "reading affected rows")
	}
	return n > 0, nil
}

// ListExpired implements part of the Store interface.
func (s *SQLStore) ListExpired(beforeMs int64) ([]Call, error) {
	return s.list(
		`SELECT id, method, params, callback, sent_at, timeout_at
		   FROM _rpc_pending_calls WHERE timeout_at <= ?
		  ORDER BY timeout_at ASC, id ASC`, beforeMs)
}

// ListAll implements part of the Store interface.
func (s *SQLStore) ListAll() ([]Call, error) {
	return s.list(
		`SELECT id, method, params, callback, sent_at, timeout_at
		   FROM _rpc_pending_calls
		  ORDER BY sent_at ASC, id ASC`)
}

func (s *SQLStore) list(query string, args ...any) ([]Call, error) {
	if err := s.ensure(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing pending calls")
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var call Call
		if err := rows.Scan(&call.ID, &call.Method, &call.Params, &call.Callback, &call.SentAt, &call.TimeoutAt); err != nil {
			return nil, errors.Wrap(err, "scanning pending call")
		}
		calls = append(calls, call)
	}
	return calls, errors.Wrap(rows.Err(), "iterating pending calls")
}

// Clear implements part of the Store interface.
func (s *SQLStore) Clear() error {
	if err := s.ensure(); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM _rpc_pending_calls`)
	return errors.Wrap(err, "clearing pending calls")
}
