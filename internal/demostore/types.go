package demostore

// #region imports
import (
	"time"

	"github.com/veristroke/veristroke/internal/scorer"
)

// #endregion

// #region source

// Source tells where a demonstration came from.
type Source string

const (
	// SourceHeuristic marks demonstrations seeded from the fixed default
	// parameter profiles at initialization.
	SourceHeuristic Source = "heuristic"
	// SourceUser marks demonstrations produced by human feedback on a
	// past decision.
	SourceUser Source = "user"
)

// #endregion source

// #region demonstration

// Demonstration is one recorded (state, action, outcome) example.
// Immutable once appended.
type Demonstration struct {
	ID           string
	TrajectoryID string
	State        scorer.FeatureVector
	Action       scorer.ParameterVector
	Reward       float64
	Source       Source
	CreatedAt    time.Time
}

// #endregion demonstration

// #region filter

// Filter restricts queries to a demonstration source. The zero value
// matches everything.
type Filter struct {
	Source Source
}

// #endregion filter
