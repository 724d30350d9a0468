package rnd

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultSeed seeds every generator which was not given an explicit seed.
// Keeping it fixed makes filter runs reproducible.
const DefaultSeed uint64 = 112358

// StandardNormal generates vectors of independent standard normal variates.
// It is stateful: every call to Sample advances the underlying generator,
// so it must not be shared across goroutines without external synchronization.
type StandardNormal struct {
	// dim is the dimension of generated samples
	dim int
	// dist is seeded standard normal distribution
	dist distuv.Normal
}

// NewStandardNormal creates new StandardNormal which generates samples of dimension dim.
// The generator is seeded with seed; if zero seed is given DefaultSeed is used.
// It returns error if non-positive dimension is given.
func NewStandardNormal(dim int, seed uint64) (*StandardNormal, error) {
	if dim < 1 {
		return nil, fmt.Errorf("invalid sample dimension: %d", dim)
	}

	if seed == 0 {
		seed = DefaultSeed
	}

	return &StandardNormal{
		dim:  dim,
		dist: distuv.Normal{Mu: 0.0, Sigma: 1.0, Src: rand.NewSource(seed)},
	}, nil
}

// Sample returns a vector of Dim() independent standard normal draws.
func (g *StandardNormal) Sample() mat.Vector {
	s := mat.NewVecDense(g.dim, nil)
	for i := 0; i < g.dim; i++ {
		s.SetVec(i, g.dist.Rand())
	}

	return s
}

// Dim returns the dimension of generated samples.
func (g *StandardNormal) Dim() int {
	return g.dim
}

// SetDim changes the dimension of generated samples.
// It returns error if non-positive dimension is given.
func (g *StandardNormal) SetDim(dim int) error {
	if dim < 1 {
		return fmt.Errorf("invalid sample dimension: %d", dim)
	}
	g.dim = dim

	return nil
}

// WithCovN draws n random samples from a zero-mean Normal (aka Gaussian) distribution with covariance cov.
// It returns matrix which contains the randomly generated samples stored in its columns.
// If nil rng is given the draws come from a generator seeded with DefaultSeed.
// It fails with error if n is smaller than 1 or if SVD factorization of cov fails.
func WithCovN(cov mat.Symmetric, n int, rng *rand.Rand) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(DefaultSeed))
	}

	// Use SVD instead of Cholesky as Cholesky can be numerically unstable if cov is (almost) singular
	var svd mat.SVD
	ok := svd.Factorize(cov, mat.SVDFull)
	if !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	diag := mat.NewDiagDense(len(vals), vals)
	U.Mul(U, diag)

	rows, _ := cov.Dims()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(U, samples)

	return samples, nil
}

// RouletteDrawN draws n numbers randomly from a probability mass function (PMF) defined by weights in p.
// RouletteDrawN implements the Roulette Wheel Draw a.k.a. Fitness Proportionate Selection:
// - https://en.wikipedia.org/wiki/Fitness_proportionate_selection
// It returns a slice of n indices into the vector p.
// If nil rng is given the draws come from a generator seeded with DefaultSeed.
// It fails with error if p is empty or nil.
func RouletteDrawN(p []float64, n int, rng *rand.Rand) ([]int, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("invalid probability weights: %v", p)
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(DefaultSeed))
	}

	// Initialization: create the discrete CDF
	// We know that cdf is sorted in ascending order
	cdf := make([]float64, len(p))
	floats.CumSum(cdf, p)

	// Generation:
	// 1. Generate a uniformly-random value x in the range [0,1)
	// 2. Using a binary search, find the index of the smallest element in cdf larger than x
	var val float64
	indices := make([]int, n)
	for i := range indices {
		// multiply the sample with the largest CDF value; easier than normalizing to [0,1)
		val = rng.Float64() * cdf[len(cdf)-1]
		// Search returns the smallest index i such that cdf[i] > val
		indices[i] = sort.Search(len(cdf), func(i int) bool { return cdf[i] > val })
	}

	return indices, nil
}
