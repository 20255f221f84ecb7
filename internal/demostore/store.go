// Package demostore is the append-only log of demonstrations that
// teaches the calibration agent: heuristic seed profiles plus
// demonstrations derived from human feedback. Appends are transactional
// and durable before returning; rows are never updated or deleted.
package demostore

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/veristroke/veristroke/internal/scorer"
)

// #region schema

const demonstrationsSchema = `
CREATE TABLE IF NOT EXISTS demonstrations (
	id             TEXT PRIMARY KEY,
	trajectory_id  TEXT NOT NULL,
	state          BLOB NOT NULL,
	action         BLOB NOT NULL,
	reward         REAL NOT NULL,
	source         TEXT NOT NULL,
	created_at     TEXT NOT NULL
);
`

const demonstrationsIndex = `
CREATE INDEX IF NOT EXISTS idx_demonstrations_source
ON demonstrations(source);
`

// #endregion schema

// #region constants

// MinFeedback is the number of user demonstrations required before
// retraining is attempted.
const MinFeedback = 5

// #endregion constants

// #region store

// Store persists demonstrations in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore initializes the demonstrations table on the shared database.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(demonstrationsSchema); err != nil {
		return nil, fmt.Errorf("migrate demonstrations: %w", err)
	}
	if _, err := db.Exec(demonstrationsIndex); err != nil {
		return nil, fmt.Errorf("index demonstrations: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion store

// #region append

// Append durably persists one demonstration. ID and CreatedAt are
// filled when empty.
func (s *Store) Append(d Demonstration) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.TrajectoryID == "" {
		d.TrajectoryID = d.ID
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO demonstrations (id, trajectory_id, state, action, reward, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TrajectoryID, encodeState(d.State), encodeAction(d.Action),
		d.Reward, string(d.Source), d.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append demonstration: %w", err)
	}
	return nil
}

// #endregion append

// #region count

// Count returns the number of demonstrations matching f.
func (s *Store) Count(f Filter) (int, error) {
	var n int
	var err error
	if f.Source == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM demonstrations`).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM demonstrations WHERE source = ?`, string(f.Source)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count demonstrations: %w", err)
	}
	return n, nil
}

// #endregion count

// #region sample

// Sample returns up to n demonstrations matching f in random order.
func (s *Store) Sample(n int, f Filter) ([]Demonstration, error) {
	query := `SELECT id, trajectory_id, state, action, reward, source, created_at
	          FROM demonstrations`
	args := []interface{}{}
	if f.Source != "" {
		query += ` WHERE source = ?`
		args = append(args, string(f.Source))
	}
	query += ` ORDER BY RANDOM() LIMIT ?`
	args = append(args, n)

	return s.query(query, args...)
}

// List returns all demonstrations matching f in submission order.
func (s *Store) List(f Filter) ([]Demonstration, error) {
	query := `SELECT id, trajectory_id, state, action, reward, source, created_at
	          FROM demonstrations`
	args := []interface{}{}
	if f.Source != "" {
		query += ` WHERE source = ?`
		args = append(args, string(f.Source))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	return s.query(query, args...)
}

func (s *Store) query(q string, args ...interface{}) ([]Demonstration, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query demonstrations: %w", err)
	}
	defer rows.Close()

	var demos []Demonstration
	for rows.Next() {
		var d Demonstration
		var stateBlob, actionBlob []byte
		var source, createdStr string
		if err := rows.Scan(&d.ID, &d.TrajectoryID, &stateBlob, &actionBlob, &d.Reward, &source, &createdStr); err != nil {
			return nil, fmt.Errorf("scan demonstration: %w", err)
		}
		d.State = decodeState(stateBlob)
		d.Action = decodeAction(actionBlob)
		d.Source = Source(source)
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		demos = append(demos, d)
	}
	return demos, rows.Err()
}

// #endregion sample

// #region trajectories

// Trajectories groups demonstrations by trajectory id, each group in
// submission order, for imitation pretraining.
func (s *Store) Trajectories() ([][]Demonstration, error) {
	demos, err := s.List(Filter{})
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var groups [][]Demonstration
	for _, d := range demos {
		i, ok := index[d.TrajectoryID]
		if !ok {
			i = len(groups)
			index[d.TrajectoryID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], d)
	}
	return groups, nil
}

// #endregion trajectories

// #region seeding

// seedProfiles are the fixed default parameter profiles: the baseline
// heuristic plus a conservative and an aggressive variant.
var seedProfiles = []struct {
	name   string
	action scorer.ParameterVector
}{
	{"default", scorer.ParameterVector{Threshold: 0.7, Weights: [4]float64{0.25, 0.25, 0.25, 0.25}}},
	{"conservative", scorer.ParameterVector{Threshold: 0.8, Weights: [4]float64{0.3, 0.3, 0.2, 0.2}}},
	{"aggressive", scorer.ParameterVector{Threshold: 0.6, Weights: [4]float64{0.2, 0.2, 0.3, 0.3}}},
}

// SeedHeuristics appends the heuristic seed demonstrations with neutral
// reward so the agent never trains from zero examples. Idempotent:
// returns 0 when heuristic rows already exist.
func (s *Store) SeedHeuristics() (int, error) {
	existing, err := s.Count(Filter{Source: SourceHeuristic})
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	neutral := scorer.FeatureVector{0.5, 0.5, 0.5, 0.5}
	for _, p := range seedProfiles {
		d := Demonstration{
			TrajectoryID: "seed-" + p.name,
			State:        neutral,
			Action:       p.action.Normalized(),
			Reward:       0,
			Source:       SourceHeuristic,
		}
		if err := s.Append(d); err != nil {
			return 0, fmt.Errorf("seed %s: %w", p.name, err)
		}
	}
	return len(seedProfiles), nil
}

// #endregion seeding

// #region vector-encoding

func encodeState(f scorer.FeatureVector) []byte {
	return encodeFloats(f[:])
}

func decodeState(b []byte) scorer.FeatureVector {
	var f scorer.FeatureVector
	decodeFloats(b, f[:])
	return f
}

func encodeAction(p scorer.ParameterVector) []byte {
	vals := make([]float64, 0, 1+scorer.FeatureCount)
	vals = append(vals, p.Threshold)
	vals = append(vals, p.Weights[:]...)
	return encodeFloats(vals)
}

func decodeAction(b []byte) scorer.ParameterVector {
	vals := make([]float64, 1+scorer.FeatureCount)
	decodeFloats(b, vals)
	var p scorer.ParameterVector
	p.Threshold = vals[0]
	copy(p.Weights[:], vals[1:])
	return p
}

func encodeFloats(vals []float64) []byte {
	buf := make([]byte, len(vals)*8)
	for i, f := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeFloats(b []byte, out []float64) {
	for i := range out {
		if i*8+8 <= len(b) {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
		}
	}
}

// #endregion vector-encoding
