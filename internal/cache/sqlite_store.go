package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteStore is a Store backed by SQLite, giving the cache durability
// across pipeline runs from a single local file.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			fingerprint TEXT PRIMARY KEY,
			process TEXT NOT NULL,
			script TEXT NOT NULL,
			inputs BLOB,
			outputs BLOB,
			exit_status INTEGER NOT NULL,
			stdout TEXT,
			created_at INTEGER NOT NULL
		);`,
	)
	return err
}

func (s *SQLiteStore) Lookup(ctx context.Context, fingerprint string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, process, script, inputs, outputs, exit_status, stdout, created_at
		FROM cache_entries WHERE fingerprint = ?`, fingerprint)

	var (
		e         Entry
		inputs    []byte
		outputs   []byte
		createdAt int64
	)
	err := row.Scan(&e.Fingerprint, &e.Process, &e.Script, &inputs, &outputs, &e.ExitStatus, &e.Stdout, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}

	if e.Inputs, err = decodeValue[[]InputDescriptor](inputs); err != nil {
		return nil, err
	}
	if e.Outputs, err = decodeValue[[]OutputValue](outputs); err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(0, createdAt)
	return &e, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, e *Entry) error {
	inputs, err := encodeValue(e.Inputs)
	if err != nil {
		return err
	}
	outputs, err := encodeValue(e.Outputs)
	if err != nil {
		return err
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (fingerprint, process, script, inputs, outputs, exit_status, stdout, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			process = excluded.process,
			script = excluded.script,
			inputs = excluded.inputs,
			outputs = excluded.outputs,
			exit_status = excluded.exit_status,
			stdout = excluded.stdout,
			created_at = excluded.created_at`,
		e.Fingerprint,
		e.Process,
		e.Script,
		inputs,
		outputs,
		e.ExitStatus,
		e.Stdout,
		createdAt.UnixNano(),
	)
	return err
}

func (s *SQLiteStore) Invalidate(ctx context.Context, fingerprint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE fingerprint = ?`, fingerprint)
	return err
}
