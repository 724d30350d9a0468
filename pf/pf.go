package pf

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"

	particle "github.com/milosgajdos/go-particle"
	"github.com/milosgajdos/go-particle/belief"
	"github.com/milosgajdos/go-particle/rnd"
)

// Config is particle filter configuration
type Config struct {
	// MaxKLDivergence is the population degeneracy threshold: when the
	// KL divergence from the predicted particle weights to the uniform
	// distribution exceeds it, Update resamples the population.
	// Zero forces resampling whenever the weights are non-uniform.
	// It can be understood as -log(f) where f is the fraction of
	// effective particles.
	MaxKLDivergence float64
	// Seed seeds the filter random generators.
	// Zero seed selects rnd.DefaultSeed for reproducible runs.
	Seed uint64
	// Alpha is the regularization parameter of the resampling step:
	// resampled particles are perturbed by gaussian noise with the
	// population covariance scaled by Alpha. Non-positive Alpha
	// disables regularization. AlphaGauss computes the optimal value
	// for a gaussian kernel.
	Alpha float64
}

// PF is a Sequential Importance Resampling (SIR) particle filter
// a.k.a. Bootstrap Filter. It recursively refines a weighted particle
// population (belief.Belief) through predict and update transitions.
// For more information about particle filters see:
// https://en.wikipedia.org/wiki/Particle_filter
type PF struct {
	// p propagates internal system state
	p particle.ProcessModel
	// o turns measurements into particle log-likelihoods
	o particle.ObservationModel
	// q samples process noise
	q *rnd.StandardNormal
	// rng drives resampling draws
	rng *rand.Rand
	// maxKL is the resampling threshold
	maxKL float64
	// alpha is the resampling regularization parameter
	alpha float64
}

// New creates new particle filter with process model p, observation model o
// and configuration c and returns it. If nil config is given the filter uses
// MaxKLDivergence of 1.0 nat, rnd.DefaultSeed and no regularization.
// It returns error if the model dimensions are invalid or if negative
// MaxKLDivergence is given.
func New(p particle.ProcessModel, o particle.ObservationModel, c *Config) (*PF, error) {
	if p.StateDim() < 1 {
		return nil, fmt.Errorf("invalid state dimension: %d", p.StateDim())
	}
	if p.NoiseDim() < 1 {
		return nil, fmt.Errorf("invalid process noise dimension: %d", p.NoiseDim())
	}
	if o.NoiseDim() < 1 {
		return nil, fmt.Errorf("invalid measurement noise dimension: %d", o.NoiseDim())
	}

	maxKL := 1.0
	seed := rnd.DefaultSeed
	alpha := 0.0
	if c != nil {
		if c.MaxKLDivergence < 0 {
			return nil, fmt.Errorf("invalid KL divergence threshold: %v", c.MaxKLDivergence)
		}
		maxKL = c.MaxKLDivergence
		if c.Seed != 0 {
			seed = c.Seed
		}
		alpha = c.Alpha
	}

	q, err := rnd.NewStandardNormal(p.NoiseDim(), seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create process noise sampler: %v", err)
	}

	return &PF{
		p: p,
		o: o,
		q: q,
		// the resampling stream must not replay the process noise stream
		rng:   rand.New(rand.NewSource(seed + 1)),
		maxKL: maxKL,
		alpha: alpha,
	}, nil
}

// NewBelief returns a new belief sized to the process model state dimension:
// a single particle at the origin with unit weight.
func (f *PF) NewBelief() (*belief.Belief, error) {
	return belief.New(f.p.StateDim())
}

// NewBeliefN returns a new belief with size particles drawn from a normal
// distribution with mean ic.State() and covariance ic.Cov(), with uniform
// weights. It returns error if the initial condition does not match the
// process model state dimension or if the particles fail to be drawn.
func (f *PF) NewBeliefN(ic particle.InitCond, size int) (*belief.Belief, error) {
	if ic.State().Len() != f.p.StateDim() {
		return nil, fmt.Errorf("invalid initial state dimension: %d", ic.State().Len())
	}

	x, err := rnd.WithCovN(ic.Cov(), size, f.rng)
	if err != nil {
		return nil, fmt.Errorf("failed to draw initial particles: %v", err)
	}

	rows, cols := x.Dims()
	// center the particles around the initial state
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			x.Set(r, c, x.At(r, c)+ic.State().AtVec(r))
		}
	}

	b, err := belief.New(f.p.StateDim())
	if err != nil {
		return nil, err
	}
	if err := b.SetUniform(size); err != nil {
		return nil, err
	}
	for i := 0; i < size; i++ {
		if err := b.SetLocation(i, x.ColView(i)); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Predict propagates every particle of the prior belief through the process
// model with a fresh process noise sample, given input u, and returns the
// predicted belief. Prediction only moves particles: the particle weights
// of the returned belief equal those of the prior.
// It returns error if any particle fails to be propagated.
func (f *PF) Predict(prior *belief.Belief, u mat.Vector) (*belief.Belief, error) {
	pred := prior.Clone()
	for i := 0; i < pred.Size(); i++ {
		loc, err := prior.Location(i)
		if err != nil {
			return nil, err
		}

		next, err := f.p.Propagate(loc, u, f.q.Sample())
		if err != nil {
			return nil, fmt.Errorf("particle state propagation failed: %v", err)
		}

		if err := pred.SetLocation(i, next); err != nil {
			return nil, err
		}
	}

	return pred, nil
}

// Update folds measurement z into the predicted belief and returns the
// posterior belief. If the predicted weights are degenerate, that is
// KLToUniform() exceeds the configured threshold, the population is first
// redrawn via inverse-CDF resampling and the weights reset to uniform.
// The measurement log-likelihoods are evaluated against the posterior
// particle locations, so after a resampling step the weight of every
// particle reflects the likelihood of the location it actually holds.
// It returns error if resampling or the likelihood evaluation fails.
func (f *PF) Update(pred *belief.Belief, z mat.Vector) (*belief.Belief, error) {
	post := pred.Clone()

	// if the particles are too concentrated then resample
	if pred.KLToUniform() > f.maxKL {
		if err := post.ResampleFrom(pred, pred.Size(), f.rng); err != nil {
			return nil, fmt.Errorf("particle resampling failed: %v", err)
		}
		if f.alpha > 0 {
			if err := f.regularize(post); err != nil {
				return nil, err
			}
		}
	}

	ll, err := f.o.LogLikelihoods(z, post.Locations())
	if err != nil {
		return nil, fmt.Errorf("measurement likelihood evaluation failed: %v", err)
	}

	if err := post.AddLogWeights(ll); err != nil {
		return nil, fmt.Errorf("particle weight update failed: %v", err)
	}

	return post, nil
}

// Run runs one step of the filter: it predicts the next state of the prior
// belief given input u and corrects the prediction using measurement z.
// It returns the posterior belief or error if either transition fails.
func (f *PF) Run(prior *belief.Belief, u, z mat.Vector) (*belief.Belief, error) {
	pred, err := f.Predict(prior, u)
	if err != nil {
		return nil, err
	}

	post, err := f.Update(pred, z)
	if err != nil {
		return nil, err
	}

	return post, nil
}

// regularize perturbs the particle locations of b with gaussian noise
// drawn with the population covariance and scaled by the alpha parameter.
func (f *PF) regularize(b *belief.Belief) error {
	x := mat.DenseCopyOf(b.Locations())

	cov, err := matrix.Cov(x, "cols")
	if err != nil {
		return fmt.Errorf("failed to compute particle covariance: %v", err)
	}

	m, err := rnd.WithCovN(cov, b.Size(), f.rng)
	if err != nil {
		return fmt.Errorf("failed to draw particle perturbations: %v", err)
	}

	m.Scale(f.alpha, m)
	x.Add(x, m)

	for i := 0; i < b.Size(); i++ {
		if err := b.SetLocation(i, x.ColView(i)); err != nil {
			return err
		}
	}

	return nil
}

// AlphaGauss computes optimal regularization parameter for Gaussian kernel and returns it.
func AlphaGauss(r, c int) float64 {
	return math.Pow(4.0/(float64(c)*(float64(r)+2.0)), 1/(float64(r)+4.0))
}
