package belief

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	particle "github.com/milosgajdos/go-particle"
	"github.com/milosgajdos/go-particle/rnd"
)

var (
	_ particle.Moments      = (*Belief)(nil)
	_ particle.SampleMapper = (*Belief)(nil)
)

// Belief is a discrete distribution over system state represented by
// a weighted particle population. Particle locations are stored as
// columns of a dense matrix; particle weights are kept both in linear
// and log domain together with the cumulative distribution built from
// them. Every weight mutation rebuilds all three together so no caller
// can observe weights which disagree with their logs or the CDF.
//
// Belief has value semantics: Clone returns an independent copy.
// A single Belief must not be mutated concurrently.
type Belief struct {
	// x stores particle locations as column vectors
	x *mat.Dense
	// w stores normalized particle weights
	w []float64
	// logw stores log-domain particle weights; logw[i] = log(w[i])
	logw []float64
	// cdf stores the running sum of w; cdf[len(w)-1] == 1
	cdf []float64
}

// New creates new Belief with a single particle located
// at the origin of a dim dimensional state space with unit weight.
// It returns error if non-positive dimension is given.
func New(dim int) (*Belief, error) {
	if dim < 1 {
		return nil, fmt.Errorf("invalid state dimension: %d", dim)
	}

	return &Belief{
		x:    mat.NewDense(dim, 1, nil),
		w:    []float64{1.0},
		logw: []float64{0.0},
		cdf:  []float64{1.0},
	}, nil
}

// SetLogWeights replaces particle weights with the normalization of the
// unnormalized log weights in values. The largest value is subtracted from
// every element before exponentiation which keeps the normalization stable
// across widely varying weight magnitudes. The particle locations are
// resized to len(values): locations at shared indices are preserved,
// new locations are zero valued and must be assigned by the caller.
// It returns error if values is empty or contains a non-finite element.
func (b *Belief) SetLogWeights(values []float64) error {
	if len(values) == 0 {
		return fmt.Errorf("empty log weight vector")
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite log weight: %v", v)
		}
	}

	// rescale for numeric stability
	shift := floats.Max(values)
	logw := make([]float64, len(values))
	w := make([]float64, len(values))
	for i, v := range values {
		logw[i] = v - shift
		w[i] = math.Exp(logw[i])
	}

	// normalize in both domains
	sum := floats.Sum(w)
	floats.Scale(1/sum, w)
	logSum := math.Log(sum)
	for i := range logw {
		logw[i] -= logSum
	}

	cdf := make([]float64, len(w))
	floats.CumSum(cdf, w)

	b.resizeLocations(len(w))
	b.w, b.logw, b.cdf = w, logw, cdf

	return nil
}

// AddLogWeights adds delta to the current log weights and renormalizes.
// It returns error if the size of delta differs from the particle count
// or if delta contains a non-finite element.
func (b *Belief) AddLogWeights(delta []float64) error {
	if len(delta) != b.Size() {
		return fmt.Errorf("invalid log weight delta size: %d", len(delta))
	}

	values := make([]float64, len(delta))
	for i := range values {
		values[i] = b.logw[i] + delta[i]
	}

	return b.SetLogWeights(values)
}

// SetUniform resizes the population to size particles with uniform weights.
// It returns error if non-positive size is given.
func (b *Belief) SetUniform(size int) error {
	if size < 1 {
		return fmt.Errorf("invalid particle count: %d", size)
	}

	return b.SetLogWeights(make([]float64, size))
}

// ResampleFrom replaces the particle population with size particles drawn
// from src via inverse-CDF sampling and resets the weights to uniform.
// The particle indices are drawn through rnd.RouletteDrawN: every draw
// consumes one uniform variate from rng; if nil rng is given a generator
// seeded with rnd.DefaultSeed is used.
// The new locations are drawn into a fresh buffer which is swapped in only
// once all draws are done, so src may alias the receiver.
// It returns error if src is empty or non-positive size is given.
func (b *Belief) ResampleFrom(src *Belief, size int, rng *rand.Rand) error {
	if src == nil || src.Size() < 1 {
		return fmt.Errorf("invalid source belief")
	}
	if size < 1 {
		return fmt.Errorf("invalid particle count: %d", size)
	}

	indices, err := rnd.RouletteDrawN(src.w, size, rng)
	if err != nil {
		return fmt.Errorf("failed to draw particle indices: %v", err)
	}

	dim := src.Dim()
	x := mat.NewDense(dim, size, nil)
	for i, j := range indices {
		x.Slice(0, dim, i, i+1).(*mat.Dense).Copy(src.x.Slice(0, dim, j, j+1))
	}
	b.x = x

	return b.SetLogWeights(make([]float64, size))
}

// Location returns a copy of the i-th particle location.
// It returns error if i is outside of [0, Size()).
func (b *Belief) Location(i int) (mat.Vector, error) {
	if i < 0 || i >= b.Size() {
		return nil, fmt.Errorf("invalid particle index: %d", i)
	}

	loc := mat.NewVecDense(b.Dim(), nil)
	loc.CopyVec(b.x.ColView(i))

	return loc, nil
}

// SetLocation sets the i-th particle location to loc.
// It returns error if i is outside of [0, Size()) or if the
// size of loc differs from the state dimension.
func (b *Belief) SetLocation(i int, loc mat.Vector) error {
	if i < 0 || i >= b.Size() {
		return fmt.Errorf("invalid particle index: %d", i)
	}
	if loc.Len() != b.Dim() {
		return fmt.Errorf("invalid location dimension: %d", loc.Len())
	}

	for r := 0; r < loc.Len(); r++ {
		b.x.Set(r, i, loc.AtVec(r))
	}

	return nil
}

// MapStandardNormal maps a standard normal variate z to a particle location.
// The variate is first turned into a standard uniform one via the normal CDF
// and then mapped through MapStandardUniform.
func (b *Belief) MapStandardNormal(z float64) (mat.Vector, error) {
	u := 0.5 * (1.0 + math.Erf(z/math.Sqrt2))
	// Erf saturates for large z which would push u out of [0,1)
	if u >= 1.0 {
		u = math.Nextafter(1.0, 0)
	}

	return b.MapStandardUniform(u)
}

// MapStandardUniform maps a standard uniform variate u to a particle location:
// it returns the location with the smallest index i such that cdf[i] >= u.
// It returns error if u is outside of [0,1).
func (b *Belief) MapStandardUniform(u float64) (mat.Vector, error) {
	if u < 0 || u >= 1.0 {
		return nil, fmt.Errorf("invalid uniform sample: %v", u)
	}

	return b.Location(searchCum(b.cdf, u))
}

// Mean returns the weighted mean of particle locations.
func (b *Belief) Mean() mat.Vector {
	mean := mat.NewVecDense(b.Dim(), nil)
	for i, w := range b.w {
		mean.AddScaledVec(mean, w, b.x.ColView(i))
	}

	return mean
}

// Cov returns the weighted covariance of particle locations about Mean().
func (b *Belief) Cov() mat.Symmetric {
	mean := b.Mean()
	cov := mat.NewSymDense(b.Dim(), nil)
	delta := mat.NewVecDense(b.Dim(), nil)
	for i, w := range b.w {
		delta.SubVec(b.x.ColView(i), mean)
		cov.SymRankOne(cov, w, delta)
	}

	return cov
}

// Entropy returns the entropy of the particle weight distribution in nats.
func (b *Belief) Entropy() float64 {
	var h float64
	for i, w := range b.w {
		h += b.logw[i] * w
	}

	return -h
}

// KLToUniform returns the Kullback-Leibler divergence from the particle
// weight distribution to the uniform distribution over Size() particles:
// log(Size()) - Entropy(). It is non-negative and zero iff the weights
// are uniform; large values mean few effective particles.
func (b *Belief) KLToUniform() float64 {
	return math.Log(float64(b.Size())) - b.Entropy()
}

// Size returns the number of particles.
func (b *Belief) Size() int {
	return len(b.w)
}

// Dim returns the dimension of a particle location.
func (b *Belief) Dim() int {
	r, _ := b.x.Dims()
	return r
}

// Weights returns a vector containing particle weights.
func (b *Belief) Weights() mat.Vector {
	data := make([]float64, len(b.w))
	copy(data, b.w)

	return mat.NewVecDense(len(data), data)
}

// LogWeights returns a slice containing log-domain particle weights.
func (b *Belief) LogWeights() []float64 {
	logw := make([]float64, len(b.logw))
	copy(logw, b.logw)

	return logw
}

// Locations returns a matrix containing particle locations in its columns.
func (b *Belief) Locations() mat.Matrix {
	x := &mat.Dense{}
	x.CloneFrom(b.x)

	return x
}

// Clone returns an independent deep copy of the belief.
func (b *Belief) Clone() *Belief {
	x := &mat.Dense{}
	x.CloneFrom(b.x)

	w := make([]float64, len(b.w))
	copy(w, b.w)
	logw := make([]float64, len(b.logw))
	copy(logw, b.logw)
	cdf := make([]float64, len(b.cdf))
	copy(cdf, b.cdf)

	return &Belief{x: x, w: w, logw: logw, cdf: cdf}
}

// resizeLocations resizes the location storage to size columns preserving
// the columns at shared indices; columns beyond them are zero valued.
func (b *Belief) resizeLocations(size int) {
	dim, cols := b.x.Dims()
	if cols == size {
		return
	}

	x := mat.NewDense(dim, size, nil)
	keep := cols
	if size < keep {
		keep = size
	}
	x.Slice(0, dim, 0, keep).(*mat.Dense).Copy(b.x.Slice(0, dim, 0, keep))
	b.x = x
}

// searchCum returns the smallest index i such that cdf[i] >= u.
func searchCum(cdf []float64, u float64) int {
	i := sort.Search(len(cdf), func(i int) bool { return cdf[i] >= u })
	// guard against accumulated floating point error in the last element
	if i == len(cdf) {
		i = len(cdf) - 1
	}

	return i
}
