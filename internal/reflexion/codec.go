package reflexion

// #region imports
import (
	"encoding/binary"
	"math"

	"github.com/veristroke/veristroke/internal/scorer"
)

// #endregion

// #region vector-codec

// Vectors are stored as little-endian float64 sequences; parameter
// vectors store the threshold followed by the weights.

func encodeVector(vals []float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeVector(b []byte, out []float64) {
	for i := range out {
		if (i+1)*8 > len(b) {
			return
		}
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
}

func encodeParams(p scorer.ParameterVector) []byte {
	vals := make([]float64, 0, 1+scorer.FeatureCount)
	vals = append(vals, p.Threshold)
	vals = append(vals, p.Weights[:]...)
	return encodeVector(vals)
}

func decodeParams(b []byte) scorer.ParameterVector {
	vals := make([]float64, 1+scorer.FeatureCount)
	decodeVector(b, vals)
	var p scorer.ParameterVector
	p.Threshold = vals[0]
	copy(p.Weights[:], vals[1:])
	return p
}

// #endregion vector-codec
