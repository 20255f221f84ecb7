// Package checkpoint persists versioned policy checkpoints in SQLite.
// Exactly one checkpoint is active at a time; older versions are
// retained for rollback. Publication is transactional: the active
// pointer moves only after the new version row is committed, so no
// partial checkpoint is ever observable.
package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS checkpoint_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	format        INTEGER NOT NULL,
	step          INTEGER NOT NULL,
	actor_json    BLOB NOT NULL,
	critic_json   BLOB NOT NULL,
	note          TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES checkpoint_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_checkpoint (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES checkpoint_versions(version_id)
);
`

// #endregion schema

// #region errors

// FormatVersion is the checkpoint payload format this build reads and writes.
const FormatVersion = 1

var (
	// ErrNoCheckpoint means no checkpoint has ever been published.
	ErrNoCheckpoint = errors.New("no active checkpoint")
	// ErrIncompatibleFormat means the stored format version is not
	// readable by this build; callers must fail closed to the
	// last-known-good checkpoint or heuristic defaults.
	ErrIncompatibleFormat = errors.New("incompatible checkpoint format")
)

// #endregion errors

// #region record

// Record is one versioned policy snapshot.
type Record struct {
	VersionID  string
	ParentID   string
	Format     int
	Step       int64
	ActorJSON  []byte
	CriticJSON []byte
	Note       string
	CreatedAt  time.Time
}

// #endregion record

// #region store

// Store manages checkpoint versions in SQLite. It owns the database
// handle; other packages attach their tables via DB().
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages
// (demonstrations, reflexion log).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion store

// #region commit

// Insert stores a new checkpoint version without moving the active
// pointer. Used for interim snapshots during a training run; the
// pointer only moves once the run completes and passes the sanity
// check.
func (s *Store) Insert(rec Record) error {
	rec = fillDefaults(rec)

	var parentPtr interface{}
	if rec.ParentID != "" {
		parentPtr = rec.ParentID
	}
	var notePtr interface{}
	if rec.Note != "" {
		notePtr = rec.Note
	}

	_, err := s.db.Exec(
		`INSERT INTO checkpoint_versions (version_id, parent_id, format, step, actor_json, critic_json, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, parentPtr, rec.Format, rec.Step, rec.ActorJSON, rec.CriticJSON, notePtr,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// Commit inserts a new checkpoint version and moves the active pointer
// to it in one transaction.
func (s *Store) Commit(rec Record) error {
	rec = fillDefaults(rec)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parentPtr interface{}
	if rec.ParentID != "" {
		parentPtr = rec.ParentID
	}
	var notePtr interface{}
	if rec.Note != "" {
		notePtr = rec.Note
	}

	_, err = tx.Exec(
		`INSERT INTO checkpoint_versions (version_id, parent_id, format, step, actor_json, critic_json, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, parentPtr, rec.Format, rec.Step, rec.ActorJSON, rec.CriticJSON, notePtr,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_checkpoint (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	return tx.Commit()
}

func fillDefaults(rec Record) Record {
	if rec.Format == 0 {
		rec.Format = FormatVersion
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return rec
}

// #endregion commit

// #region current

// Current reads the active checkpoint version. Fails with
// ErrIncompatibleFormat when the active version's format is unreadable.
func (s *Store) Current() (Record, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_checkpoint WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNoCheckpoint
	}
	if err != nil {
		return Record{}, fmt.Errorf("get active: %w", err)
	}
	return s.Get(versionID)
}

// #endregion current

// #region get

// Get retrieves a specific checkpoint version by ID, rejecting
// incompatible formats.
func (s *Store) Get(id string) (Record, error) {
	rec, err := s.get(id)
	if err != nil {
		return Record{}, err
	}
	if rec.Format != FormatVersion {
		return Record{}, fmt.Errorf("%w: stored format %d, supported %d", ErrIncompatibleFormat, rec.Format, FormatVersion)
	}
	return rec, nil
}

func (s *Store) get(id string) (Record, error) {
	var rec Record
	var parentID, note sql.NullString
	var createdStr string

	err := s.db.QueryRow(
		`SELECT version_id, parent_id, format, step, actor_json, critic_json, note, created_at
		 FROM checkpoint_versions WHERE version_id = ?`, id,
	).Scan(&rec.VersionID, &parentID, &rec.Format, &rec.Step, &rec.ActorJSON, &rec.CriticJSON, &note, &createdStr)
	if err != nil {
		return Record{}, fmt.Errorf("get version %s: %w", id, err)
	}

	if parentID.Valid {
		rec.ParentID = parentID.String
	}
	if note.Valid {
		rec.Note = note.String
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// #endregion get

// #region rollback

// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM checkpoint_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s not found", targetVersionID)
	}

	_, err = s.db.Exec(`UPDATE active_checkpoint SET version_id = ? WHERE id = 1`, targetVersionID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list

// List returns the most recent checkpoint versions regardless of format,
// so callers can locate a last-known-good version after a format bump.
func (s *Store) List(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent_id, format, step, actor_json, critic_json, note, created_at
		 FROM checkpoint_versions ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var parentID, note sql.NullString
		var createdStr string
		if err := rows.Scan(&rec.VersionID, &parentID, &rec.Format, &rec.Step, &rec.ActorJSON, &rec.CriticJSON, &note, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if parentID.Valid {
			rec.ParentID = parentID.String
		}
		if note.Valid {
			rec.Note = note.String
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list
