// Package audiosync implements multi-zone audio synchronization:
// delay measurement with network and clock compensation, correction
// algorithms, and per-zone quality statistics.
package audiosync

// Kalman filter defaults for delay estimation.
const (
	defaultProcessVariance     = 1e-5
	defaultMeasurementVariance = 1e-1
)

// kalmanFilter is a scalar filter over delay measurements.
type kalmanFilter struct {
	processVariance     float64
	measurementVariance float64

	estimate    float64
	variance    float64
	initialized bool
}

func newKalmanFilter() *kalmanFilter {
	return &kalmanFilter{
		processVariance:     defaultProcessVariance,
		measurementVariance: defaultMeasurementVariance,
		variance:            1.0,
	}
}

// update folds one measurement into the estimate. The first
// measurement initializes the filter and passes through unchanged.
func (k *kalmanFilter) update(measurement float64) float64 {
	if !k.initialized {
		k.estimate = measurement
		k.variance = k.measurementVariance
		k.initialized = true
		return measurement
	}

	predicted := k.variance + k.processVariance
	gain := predicted / (predicted + k.measurementVariance)
	k.estimate += gain * (measurement - k.estimate)
	k.variance = (1 - gain) * predicted
	return k.estimate
}
