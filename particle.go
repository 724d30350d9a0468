package particle

import "gonum.org/v1/gonum/mat"

// ProcessModel propagates internal state of the system to the next step.
type ProcessModel interface {
	// Propagate propagates state x to the next step given input u and process noise q
	Propagate(x, u, q mat.Vector) (mat.Vector, error)
	// StateDim returns the dimension of the state vector
	StateDim() int
	// NoiseDim returns the dimension of the process noise vector
	NoiseDim() int
}

// ObservationModel evaluates measurement likelihoods of particle states.
type ObservationModel interface {
	// LogLikelihoods returns per-particle log-likelihoods of measurement z
	// given the particle states stored in the columns of x.
	// The returned slice is index-aligned with the columns of x.
	LogLikelihoods(z mat.Vector, x mat.Matrix) ([]float64, error)
	// NoiseDim returns the dimension of the measurement noise vector
	NoiseDim() int
}

// Moments is a distribution which can compute its first two moments.
type Moments interface {
	// Mean returns the mean of the distribution
	Mean() mat.Vector
	// Cov returns the covariance of the distribution
	Cov() mat.Symmetric
}

// SampleMapper maps standard random variates to samples of the distribution.
type SampleMapper interface {
	// MapStandardNormal maps a standard normal variate to a sample
	MapStandardNormal(z float64) (mat.Vector, error)
	// MapStandardUniform maps a standard uniform variate to a sample
	MapStandardUniform(u float64) (mat.Vector, error)
}

// InitCond is initial state condition of the filter.
type InitCond interface {
	// State returns initial filter state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}

// Noise is dynamical system noise.
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset() error
}
