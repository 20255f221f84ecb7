// Package policy holds the heuristic parameter defaults and the
// atomically swappable reference to the live calibration policy. The
// live reference is the only mutable shared state on the decision read
// path: it is replaced wholesale, never mutated in place.
package policy

import (
	"sync/atomic"

	"github.com/veristroke/veristroke/internal/scorer"
)

// #region defaults

// Default returns the fixed heuristic parameter vector used before any
// checkpoint has been trained: threshold 0.7, equal feature weights.
func Default() scorer.ParameterVector {
	return scorer.ParameterVector{
		Threshold: 0.7,
		Weights:   [scorer.FeatureCount]float64{0.25, 0.25, 0.25, 0.25},
	}
}

// #endregion defaults

// #region policy-interface

// Policy chooses a parameter vector for a given feature state.
// Implementations must be deterministic at inference time.
type Policy interface {
	Parameters(state scorer.FeatureVector) scorer.ParameterVector
}

// #endregion policy-interface

// #region entry

// Entry pairs a policy with the checkpoint it was loaded from.
type Entry struct {
	Policy  Policy
	Version string
	Step    int64
}

// #endregion entry

// #region live

// Live is the swappable reference to the active policy. Concurrent
// readers either see the previous entry or the new one, never a mix.
type Live struct {
	ptr atomic.Pointer[Entry]
}

// NewLive returns a Live reference with no published policy; readers
// fall back to the heuristic default.
func NewLive() *Live {
	return &Live{}
}

// Swap publishes e as the active policy. Callers must only pass entries
// that passed the checkpoint sanity check.
func (l *Live) Swap(e *Entry) {
	l.ptr.Store(e)
}

// Current returns the active entry, or nil when no checkpoint has been
// published.
func (l *Live) Current() *Entry {
	return l.ptr.Load()
}

// Parameters returns the live policy's choice for state, or the
// heuristic default when no checkpoint is live.
func (l *Live) Parameters(state scorer.FeatureVector) scorer.ParameterVector {
	e := l.ptr.Load()
	if e == nil {
		return Default()
	}
	return e.Policy.Parameters(state)
}

// #endregion live
