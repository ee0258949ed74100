package predictor

// ewma is a scalar exponentially-weighted moving average that starts
// unset. The first sample is taken as-is.
type ewma struct {
	value float64
	valid bool
}

func (e *ewma) update(sample, alpha float64) {
	if !e.valid {
		e.value = sample
		e.valid = true
		return
	}
	e.value = alpha*sample + (1-alpha)*e.value
}

// isOutlier reports whether the sample is more than outlierFactor times
// the current average. An unset average never flags outliers.
func (e *ewma) isOutlier(sample float64) bool {
	return e.valid && sample > outlierFactor*e.value
}
