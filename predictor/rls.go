package predictor

// RLSModel is a recursive-least-squares regressor with exponential
// forgetting. It learns to predict power draw (watts) from a feature
// vector and adapts to changing usage patterns as old samples are
// discounted by the forgetting factor.
type RLSModel struct {
	// weights is the NumFeatures-element weight vector.
	weights []float64

	// p is the inverse covariance matrix, NumFeatures×NumFeatures,
	// flattened row-major.
	p []float64

	// lambda is the forgetting factor. 1 never forgets; 0.9 discounts
	// old samples rapidly.
	lambda float64

	sampleCount uint32
}

const (
	defaultLambda          = 0.98
	defaultInitialVariance = 5.0

	// trainedSampleCount is the minimum number of samples before the
	// model is considered reliable.
	trainedSampleCount = 20

	// pTraceLimit bounds tr(P) to keep long-running reloaded state
	// numerically stable.
	pTraceLimit = 1000.0 * NumFeatures
)

// NewRLSModel creates a model with zero weights and P = initialVariance·I.
func NewRLSModel(lambda, initialVariance float64) *RLSModel {
	p := make([]float64, NumFeatures*NumFeatures)
	for i := 0; i < NumFeatures; i++ {
		p[i*NumFeatures+i] = initialVariance
	}
	return &RLSModel{
		weights: make([]float64, NumFeatures),
		p:       p,
		lambda:  lambda,
	}
}

// Update trains the model on one (features, target) pair using the
// standard RLS recursion with forgetting.
func (m *RLSModel) Update(features Features, target float64) {
	// P × φ
	pPhi := make([]float64, NumFeatures)
	for i := 0; i < NumFeatures; i++ {
		var sum float64
		for j := 0; j < NumFeatures; j++ {
			sum += m.p[i*NumFeatures+j] * features[j]
		}
		pPhi[i] = sum
	}

	// φᵀ × P × φ
	var phiPPhi float64
	for i := 0; i < NumFeatures; i++ {
		phiPPhi += features[i] * pPhi[i]
	}

	// gain: k = Pφ / (λ + φᵀPφ)
	denominator := m.lambda + phiPPhi
	gain := make([]float64, NumFeatures)
	for i := 0; i < NumFeatures; i++ {
		gain[i] = pPhi[i] / denominator
	}

	// a-priori error and weight update
	residual := target - m.Predict(features)
	for i := 0; i < NumFeatures; i++ {
		m.weights[i] += gain[i] * residual
	}

	// P = (P - k·φᵀ·P) / λ, into a fresh matrix so no element is read
	// after it has been written
	newP := make([]float64, NumFeatures*NumFeatures)
	for i := 0; i < NumFeatures; i++ {
		for j := 0; j < NumFeatures; j++ {
			var kPhiP float64
			for k := 0; k < NumFeatures; k++ {
				kPhiP += gain[i] * features[k] * m.p[k*NumFeatures+j]
			}
			newP[i*NumFeatures+j] = (m.p[i*NumFeatures+j] - kPhiP) / m.lambda
		}
	}
	m.p = newP

	m.conditionP()

	m.sampleCount++
}

// conditionP enforces P-matrix symmetry and bounds its trace. With
// forgetting over many samples the matrix can drift asymmetric and grow
// without bound, which destabilises the gain vector once state has been
// reloaded across sessions.
func (m *RLSModel) conditionP() {
	for i := 0; i < NumFeatures; i++ {
		for j := i + 1; j < NumFeatures; j++ {
			avg := (m.p[i*NumFeatures+j] + m.p[j*NumFeatures+i]) / 2
			m.p[i*NumFeatures+j] = avg
			m.p[j*NumFeatures+i] = avg
		}
	}

	var trace float64
	for i := 0; i < NumFeatures; i++ {
		trace += m.p[i*NumFeatures+i]
	}
	if trace > pTraceLimit {
		scale := pTraceLimit / trace
		for i := range m.p {
			m.p[i] *= scale
		}
	}
}

// Predict returns the estimated power draw, clamped non-negative.
func (m *RLSModel) Predict(features Features) float64 {
	var sum float64
	for i := 0; i < NumFeatures; i++ {
		sum += m.weights[i] * features[i]
	}
	if sum < 0 {
		return 0
	}
	return sum
}

// SampleCount returns the number of samples seen.
func (m *RLSModel) SampleCount() uint32 {
	return m.sampleCount
}

// IsTrained reports whether the model has seen enough samples to be
// considered reliable.
func (m *RLSModel) IsTrained() bool {
	return m.sampleCount >= trainedSampleCount
}
