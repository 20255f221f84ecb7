package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema

const trainingLogSchema = `
CREATE TABLE IF NOT EXISTS training_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id  TEXT,
	trigger_type TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	reason      TEXT,
	created_at  TEXT NOT NULL
);
`

// #endregion schema

// #region training-event

// TrainingEvent is a single row in the training_log table.
type TrainingEvent struct {
	VersionID string
	Trigger   string // "feedback" | "manual" | "replay"
	Outcome   string // "published" | "refused" | "failed"
	Reason    string
	CreatedAt time.Time
}

// #endregion training-event

// #region training-log

// TrainingLog records retraining attempts for operational visibility.
type TrainingLog struct {
	db *sql.DB
}

// NewTrainingLog attaches the training_log table to a shared handle.
func NewTrainingLog(db *sql.DB) (*TrainingLog, error) {
	if _, err := db.Exec(trainingLogSchema); err != nil {
		return nil, fmt.Errorf("migrate training log: %w", err)
	}
	return &TrainingLog{db: db}, nil
}

// Record appends one training event.
func (l *TrainingLog) Record(event TrainingEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.Exec(
		`INSERT INTO training_log (version_id, trigger_type, outcome, reason, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		nullIfEmpty(event.VersionID),
		event.Trigger,
		event.Outcome,
		nullIfEmpty(event.Reason),
		event.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record training event: %w", err)
	}
	return nil
}

// Recent returns the newest events first.
func (l *TrainingLog) Recent(limit int) ([]TrainingEvent, error) {
	rows, err := l.db.Query(
		`SELECT version_id, trigger_type, outcome, reason, created_at
		 FROM training_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query training log: %w", err)
	}
	defer rows.Close()

	var events []TrainingEvent
	for rows.Next() {
		var ev TrainingEvent
		var versionID, reason sql.NullString
		var createdStr string
		if err := rows.Scan(&versionID, &ev.Trigger, &ev.Outcome, &reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan training event: %w", err)
		}
		if versionID.Valid {
			ev.VersionID = versionID.String
		}
		if reason.Valid {
			ev.Reason = reason.String
		}
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// #endregion training-log

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
