// Package reflexion runs the per-analysis reflexion cycle and keeps its
// append-only audit log. Each cycle judges an image with the live
// policy, evaluates the confidence shift against the prior judgment,
// records the outcome, and forwards any attached feedback toward
// retraining.
package reflexion

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veristroke/veristroke/internal/scorer"
)

// #region record

// Record is one appended reflexion outcome. Records are additive and
// never updated, so the log doubles as a drift audit trail.
type Record struct {
	ID              string                 `json:"id"`
	AnalysisID      string                 `json:"analysis_id"`
	Iteration       int                    `json:"iteration"`
	State           scorer.FeatureVector   `json:"state"`
	ParamsBefore    scorer.ParameterVector `json:"params_before"`
	ParamsAfter     scorer.ParameterVector `json:"params_after"`
	AnomalyScore    float64                `json:"anomaly_score"`
	Decision        scorer.Decision        `json:"decision"`
	ConfidenceAfter float64                `json:"confidence_after"`
	ConfidenceDelta float64                `json:"confidence_delta"`
	Verdict         string                 `json:"verdict,omitempty"`
	Verified        bool                   `json:"verified,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// #endregion record

// #region schema

const logSchema = `
CREATE TABLE IF NOT EXISTS reflexion_log (
	id               TEXT PRIMARY KEY,
	analysis_id      TEXT NOT NULL,
	iteration        INTEGER NOT NULL,
	state            BLOB NOT NULL,
	params_before    BLOB NOT NULL,
	params_after     BLOB NOT NULL,
	anomaly_score    REAL NOT NULL,
	decision         TEXT NOT NULL,
	confidence_after REAL NOT NULL,
	confidence_delta REAL NOT NULL,
	verdict          TEXT,
	verified         INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	UNIQUE (analysis_id, iteration)
);
CREATE INDEX IF NOT EXISTS idx_reflexion_analysis ON reflexion_log(analysis_id);
`

// #endregion schema

// #region log

// Log is the append-only reflexion record store.
type Log struct {
	db *sql.DB
}

// NewLog attaches the reflexion table to a shared database handle.
func NewLog(db *sql.DB) (*Log, error) {
	if _, err := db.Exec(logSchema); err != nil {
		return nil, fmt.Errorf("migrate reflexion log: %w", err)
	}
	return &Log{db: db}, nil
}

// Append persists a record, assigning its id, per-analysis iteration
// and timestamp. The iteration is claimed inside the insert transaction
// so concurrent cycles for the same analysis get strictly increasing
// numbers.
func (l *Log) Append(rec *Record) error {
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var iteration int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(iteration), 0) + 1 FROM reflexion_log WHERE analysis_id = ?`,
		rec.AnalysisID,
	).Scan(&iteration)
	if err != nil {
		return fmt.Errorf("next iteration: %w", err)
	}
	rec.Iteration = iteration

	var verdictPtr interface{}
	if rec.Verdict != "" {
		verdictPtr = rec.Verdict
	}
	_, err = tx.Exec(
		`INSERT INTO reflexion_log
		 (id, analysis_id, iteration, state, params_before, params_after,
		  anomaly_score, decision, confidence_after, confidence_delta, verdict, verified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AnalysisID, rec.Iteration,
		encodeVector(rec.State[:]),
		encodeParams(rec.ParamsBefore), encodeParams(rec.ParamsAfter),
		rec.AnomalyScore, string(rec.Decision),
		rec.ConfidenceAfter, rec.ConfidenceDelta, verdictPtr, rec.Verified,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return tx.Commit()
}

// History returns the most recent records, newest first.
func (l *Log) History(limit int) ([]Record, error) {
	rows, err := l.db.Query(
		`SELECT id, analysis_id, iteration, state, params_before, params_after,
		        anomaly_score, decision, confidence_after, confidence_delta, verdict, verified, created_at
		 FROM reflexion_log ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var state, before, after []byte
		var verdict sql.NullString
		var decision, createdStr string
		if err := rows.Scan(&rec.ID, &rec.AnalysisID, &rec.Iteration, &state, &before, &after,
			&rec.AnomalyScore, &decision, &rec.ConfidenceAfter, &rec.ConfidenceDelta, &verdict, &rec.Verified, &createdStr); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		decodeVector(state, rec.State[:])
		rec.ParamsBefore = decodeParams(before)
		rec.ParamsAfter = decodeParams(after)
		rec.Decision = scorer.Decision(decision)
		if verdict.Valid {
			rec.Verdict = verdict.String
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Metrics summarizes the log for the dashboard view.
type Metrics struct {
	Records      int
	MeanDelta    float64
	ByDecision   map[scorer.Decision]int
	WithFeedback int
}

// Summarize aggregates the full log.
func (l *Log) Summarize() (Metrics, error) {
	m := Metrics{ByDecision: make(map[scorer.Decision]int)}

	rows, err := l.db.Query(`SELECT decision, confidence_delta, verdict FROM reflexion_log`)
	if err != nil {
		return Metrics{}, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var deltaSum float64
	for rows.Next() {
		var decision string
		var delta float64
		var verdict sql.NullString
		if err := rows.Scan(&decision, &delta, &verdict); err != nil {
			return Metrics{}, fmt.Errorf("scan metrics: %w", err)
		}
		m.Records++
		deltaSum += delta
		m.ByDecision[scorer.Decision(decision)]++
		if verdict.Valid {
			m.WithFeedback++
		}
	}
	if m.Records > 0 {
		m.MeanDelta = deltaSum / float64(m.Records)
	}
	return m, rows.Err()
}

// #endregion log
