package scorer

// #region feature-vector

// FeatureCount is the fixed length of a feature vector.
const FeatureCount = 4

// FeatureVector holds the normalized per-image feature signals
// (texture, edge, color, noise), each in [0,1]. Immutable once produced.
type FeatureVector [FeatureCount]float64

// FeatureNames maps vector positions to signal names.
var FeatureNames = [FeatureCount]string{"texture", "edge", "color", "noise"}

// #endregion feature-vector

// #region parameter-vector

// ParameterVector is the tunable decision-parameter vector: a threshold
// in [0,1] and one non-negative weight per feature, summing to 1.
type ParameterVector struct {
	Threshold float64
	Weights   [FeatureCount]float64
}

// #endregion parameter-vector

// #region decision

// Decision is the authenticity outcome of one scoring pass.
type Decision string

const (
	DecisionAuthentic Decision = "authentic"
	DecisionFake      Decision = "fake"
	DecisionUncertain Decision = "uncertain"
)

// #endregion decision

// #region result

// Result is the output of one scoring pass.
type Result struct {
	AnomalyScore float64
	Decision     Decision
}

// #endregion result
