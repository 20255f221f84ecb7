package agent

// #region imports
import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

// #endregion

// #region mlp

// mlp is a single-hidden-layer perceptron: tanh hidden units, linear
// outputs, trained by momentum SGD on squared error. Weights serialize
// to JSON for checkpointing; velocities are transient.
type mlp struct {
	InputSize  int `json:"input_size"`
	HiddenSize int `json:"hidden_size"`
	OutputSize int `json:"output_size"`

	WeightsIH [][]float64 `json:"weights_ih"`
	WeightsHO [][]float64 `json:"weights_ho"`
	BiasH     []float64   `json:"bias_h"`
	BiasO     []float64   `json:"bias_o"`

	velocityIH [][]float64
	velocityHO [][]float64
}

// newMLP builds a network with Xavier-initialized weights.
func newMLP(in, hidden, out int, rng *rand.Rand) *mlp {
	m := &mlp{InputSize: in, HiddenSize: hidden, OutputSize: out}

	scaleIH := math.Sqrt(2.0 / float64(in+hidden))
	scaleHO := math.Sqrt(2.0 / float64(hidden+out))

	m.WeightsIH = make([][]float64, in)
	for i := range m.WeightsIH {
		m.WeightsIH[i] = make([]float64, hidden)
		for j := range m.WeightsIH[i] {
			m.WeightsIH[i][j] = (rng.Float64()*2 - 1) * scaleIH
		}
	}
	m.BiasH = make([]float64, hidden)

	m.WeightsHO = make([][]float64, hidden)
	for j := range m.WeightsHO {
		m.WeightsHO[j] = make([]float64, out)
		for k := range m.WeightsHO[j] {
			m.WeightsHO[j][k] = (rng.Float64()*2 - 1) * scaleHO
		}
	}
	m.BiasO = make([]float64, out)

	m.ensureVelocity()
	return m
}

func (m *mlp) ensureVelocity() {
	if m.velocityIH != nil {
		return
	}
	m.velocityIH = make([][]float64, m.InputSize)
	for i := range m.velocityIH {
		m.velocityIH[i] = make([]float64, m.HiddenSize)
	}
	m.velocityHO = make([][]float64, m.HiddenSize)
	for j := range m.velocityHO {
		m.velocityHO[j] = make([]float64, m.OutputSize)
	}
}

// #endregion mlp

// #region forward

// forward runs one inference pass.
func (m *mlp) forward(input []float64) []float64 {
	_, out := m.activations(input)
	return out
}

func (m *mlp) activations(input []float64) (hidden, out []float64) {
	hidden = make([]float64, m.HiddenSize)
	for j := 0; j < m.HiddenSize; j++ {
		sum := m.BiasH[j]
		for i := 0; i < m.InputSize; i++ {
			sum += input[i] * m.WeightsIH[i][j]
		}
		hidden[j] = math.Tanh(sum)
	}

	out = make([]float64, m.OutputSize)
	for k := 0; k < m.OutputSize; k++ {
		sum := m.BiasO[k]
		for j := 0; j < m.HiddenSize; j++ {
			sum += hidden[j] * m.WeightsHO[j][k]
		}
		out[k] = sum
	}
	return hidden, out
}

// #endregion forward

// #region train-step

// step performs one backpropagation step toward target and returns the
// squared-error loss before the update.
func (m *mlp) step(input, target []float64, lr, momentum float64) float64 {
	m.ensureVelocity()
	hidden, out := m.activations(input)

	// Output deltas and loss.
	deltaOut := make([]float64, m.OutputSize)
	var loss float64
	for k := range out {
		e := out[k] - target[k]
		deltaOut[k] = e
		loss += e * e
	}
	loss /= float64(m.OutputSize)

	// Hidden deltas through tanh.
	deltaHidden := make([]float64, m.HiddenSize)
	for j := 0; j < m.HiddenSize; j++ {
		var sum float64
		for k := 0; k < m.OutputSize; k++ {
			sum += m.WeightsHO[j][k] * deltaOut[k]
		}
		deltaHidden[j] = sum * (1 - hidden[j]*hidden[j])
	}

	// Hidden → output weights.
	for j := 0; j < m.HiddenSize; j++ {
		for k := 0; k < m.OutputSize; k++ {
			grad := hidden[j] * deltaOut[k]
			m.velocityHO[j][k] = momentum*m.velocityHO[j][k] - lr*grad
			m.WeightsHO[j][k] += m.velocityHO[j][k]
		}
	}
	for k := 0; k < m.OutputSize; k++ {
		m.BiasO[k] -= lr * deltaOut[k]
	}

	// Input → hidden weights.
	for i := 0; i < m.InputSize; i++ {
		for j := 0; j < m.HiddenSize; j++ {
			grad := input[i] * deltaHidden[j]
			m.velocityIH[i][j] = momentum*m.velocityIH[i][j] - lr*grad
			m.WeightsIH[i][j] += m.velocityIH[i][j]
		}
	}
	for j := 0; j < m.HiddenSize; j++ {
		m.BiasH[j] -= lr * deltaHidden[j]
	}

	return loss
}

// #endregion train-step

// #region serialization

// marshal serializes the network weights.
func (m *mlp) marshal() ([]byte, error) {
	return json.Marshal(m)
}

// unmarshalMLP decodes and validates a serialized network.
func unmarshalMLP(data []byte) (*mlp, error) {
	var m mlp
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode network: %w", err)
	}
	if m.InputSize <= 0 || m.HiddenSize <= 0 || m.OutputSize <= 0 {
		return nil, fmt.Errorf("decode network: non-positive layer size")
	}
	if len(m.WeightsIH) != m.InputSize || len(m.WeightsHO) != m.HiddenSize ||
		len(m.BiasH) != m.HiddenSize || len(m.BiasO) != m.OutputSize {
		return nil, fmt.Errorf("decode network: weight shape mismatch")
	}
	for _, row := range m.WeightsIH {
		if len(row) != m.HiddenSize {
			return nil, fmt.Errorf("decode network: weight shape mismatch")
		}
	}
	for _, row := range m.WeightsHO {
		if len(row) != m.OutputSize {
			return nil, fmt.Errorf("decode network: weight shape mismatch")
		}
	}
	m.ensureVelocity()
	return &m, nil
}

// #endregion serialization
