package belief

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-particle/rnd"
)

// newTestBelief returns a 1-D belief with uniform weights over the given locations.
func newTestBelief(t *testing.T, locations ...float64) *Belief {
	b, err := New(1)
	assert.NoError(t, err)
	assert.NoError(t, b.SetUniform(len(locations)))
	for i, l := range locations {
		assert.NoError(t, b.SetLocation(i, mat.NewVecDense(1, []float64{l})))
	}

	return b
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	b, err := New(0)
	assert.Nil(b)
	assert.Error(err)

	b, err = New(2)
	assert.NotNil(b)
	assert.NoError(err)

	assert.Equal(1, b.Size())
	assert.Equal(2, b.Dim())

	loc, err := b.Location(0)
	assert.NoError(err)
	for i := 0; i < loc.Len(); i++ {
		assert.InDelta(0.0, loc.AtVec(i), 1e-12)
	}
	assert.InDelta(1.0, b.Weights().AtVec(0), 1e-12)
}

func TestSetUniform(t *testing.T) {
	assert := assert.New(t)

	b, err := New(1)
	assert.NoError(err)

	assert.Error(b.SetUniform(0))

	for _, n := range []int{1, 2, 5, 100} {
		assert.NoError(b.SetUniform(n))
		assert.Equal(n, b.Size())

		w := b.Weights()
		var sum float64
		for i := 0; i < n; i++ {
			assert.InDelta(1/float64(n), w.AtVec(i), 1e-9)
			sum += w.AtVec(i)
		}
		assert.InDelta(1.0, sum, 1e-9)

		assert.InDelta(math.Log(float64(n)), b.Entropy(), 1e-9)
		assert.InDelta(0.0, b.KLToUniform(), 1e-9)
	}
}

func TestSetLogWeights(t *testing.T) {
	assert := assert.New(t)

	b, err := New(1)
	assert.NoError(err)

	assert.Error(b.SetLogWeights(nil))
	assert.Error(b.SetLogWeights([]float64{0.0, math.NaN()}))
	assert.Error(b.SetLogWeights([]float64{0.0, math.Inf(1)}))
	assert.Error(b.SetLogWeights([]float64{math.Inf(-1), math.Inf(-1)}))

	// weights must sum to 1 even across a huge magnitude range
	assert.NoError(b.SetLogWeights([]float64{-1000.0, 0.0, 1000.0}))
	w := b.Weights()
	var sum float64
	for i := 0; i < b.Size(); i++ {
		sum += w.AtVec(i)
	}
	assert.InDelta(1.0, sum, 1e-9)
	assert.InDelta(1.0, w.AtVec(2), 1e-9)

	// log weights must match linear weights exactly
	logw := b.LogWeights()
	for i := 0; i < b.Size(); i++ {
		assert.InDelta(w.AtVec(i), math.Exp(logw[i]), 1e-12)
	}
}

func TestSetLogWeightsShiftInvariance(t *testing.T) {
	assert := assert.New(t)

	values := []float64{-1.0, 0.5, 3.0, 2.2}

	b1, err := New(1)
	assert.NoError(err)
	assert.NoError(b1.SetLogWeights(values))

	shifted := make([]float64, len(values))
	for i, v := range values {
		shifted[i] = v + 123.456
	}
	b2, err := New(1)
	assert.NoError(err)
	assert.NoError(b2.SetLogWeights(shifted))

	w1, w2 := b1.Weights(), b2.Weights()
	logw1, logw2 := b1.LogWeights(), b2.LogWeights()
	for i := range values {
		assert.InDelta(w1.AtVec(i), w2.AtVec(i), 1e-12)
		assert.InDelta(logw1[i], logw2[i], 1e-12)
	}
}

func TestSetLogWeightsResize(t *testing.T) {
	assert := assert.New(t)

	b := newTestBelief(t, 5.0, 7.0)

	// growing the population must preserve existing locations
	assert.NoError(b.SetLogWeights([]float64{0.0, 0.0, 0.0}))
	assert.Equal(3, b.Size())

	loc, err := b.Location(0)
	assert.NoError(err)
	assert.InDelta(5.0, loc.AtVec(0), 1e-12)
	loc, err = b.Location(1)
	assert.NoError(err)
	assert.InDelta(7.0, loc.AtVec(0), 1e-12)
	loc, err = b.Location(2)
	assert.NoError(err)
	assert.InDelta(0.0, loc.AtVec(0), 1e-12)

	// shrinking keeps the prefix
	assert.NoError(b.SetLogWeights([]float64{0.0}))
	assert.Equal(1, b.Size())
	loc, err = b.Location(0)
	assert.NoError(err)
	assert.InDelta(5.0, loc.AtVec(0), 1e-12)
}

func TestAddLogWeights(t *testing.T) {
	assert := assert.New(t)

	b := newTestBelief(t, -1.0, 0.0, 1.0)

	assert.Error(b.AddLogWeights([]float64{0.0}))

	assert.NoError(b.AddLogWeights([]float64{0.0, 0.0, -100.0}))
	w := b.Weights()
	assert.InDelta(0.5, w.AtVec(0), 1e-9)
	assert.InDelta(0.5, w.AtVec(1), 1e-9)
	assert.InDelta(0.0, w.AtVec(2), 1e-9)
	assert.True(b.KLToUniform() > 0.0)
}

func TestLocation(t *testing.T) {
	assert := assert.New(t)

	b := newTestBelief(t, -1.0, 1.0)

	loc, err := b.Location(-1)
	assert.Nil(loc)
	assert.Error(err)

	loc, err = b.Location(2)
	assert.Nil(loc)
	assert.Error(err)

	loc, err = b.Location(1)
	assert.NoError(err)
	assert.InDelta(1.0, loc.AtVec(0), 1e-12)

	assert.Error(b.SetLocation(2, mat.NewVecDense(1, nil)))
	assert.Error(b.SetLocation(0, mat.NewVecDense(3, nil)))
	assert.NoError(b.SetLocation(0, mat.NewVecDense(1, []float64{3.0})))
	loc, err = b.Location(0)
	assert.NoError(err)
	assert.InDelta(3.0, loc.AtVec(0), 1e-12)
}

func TestMapStandardUniform(t *testing.T) {
	assert := assert.New(t)

	b := newTestBelief(t, -1.0, 0.0, 1.0)

	loc, err := b.MapStandardUniform(-0.1)
	assert.Nil(loc)
	assert.Error(err)

	loc, err = b.MapStandardUniform(1.0)
	assert.Nil(loc)
	assert.Error(err)

	// u = 0 maps to the first location
	loc, err = b.MapStandardUniform(0.0)
	assert.NoError(err)
	assert.InDelta(-1.0, loc.AtVec(0), 1e-12)

	// u approaching 1 maps to the last location
	loc, err = b.MapStandardUniform(0.999999)
	assert.NoError(err)
	assert.InDelta(1.0, loc.AtVec(0), 1e-12)

	// the mapped location is non-decreasing in u
	prev := math.Inf(-1)
	for u := 0.0; u < 1.0; u += 0.01 {
		loc, err := b.MapStandardUniform(u)
		assert.NoError(err)
		assert.True(loc.AtVec(0) >= prev)
		prev = loc.AtVec(0)
	}
}

func TestMapStandardNormal(t *testing.T) {
	assert := assert.New(t)

	b := newTestBelief(t, -1.0, 0.0, 1.0)

	loc, err := b.MapStandardNormal(-10.0)
	assert.NoError(err)
	assert.InDelta(-1.0, loc.AtVec(0), 1e-12)

	loc, err = b.MapStandardNormal(10.0)
	assert.NoError(err)
	assert.InDelta(1.0, loc.AtVec(0), 1e-12)

	// z = 0 maps to u = 0.5 which falls into the middle uniform bin
	loc, err = b.MapStandardNormal(0.0)
	assert.NoError(err)
	assert.InDelta(0.0, loc.AtVec(0), 1e-12)
}

func TestMoments(t *testing.T) {
	assert := assert.New(t)

	// on uniform weights moments equal the unweighted average/covariance
	b := newTestBelief(t, -1.0, 0.0, 1.0)
	assert.InDelta(0.0, b.Mean().AtVec(0), 1e-12)
	assert.InDelta(2.0/3.0, b.Cov().At(0, 0), 1e-12)

	// weighted mean follows the weights
	assert.NoError(b.AddLogWeights([]float64{0.0, 0.0, -100.0}))
	assert.InDelta(-0.5, b.Mean().AtVec(0), 1e-9)
	assert.InDelta(0.25, b.Cov().At(0, 0), 1e-9)
}

func TestMoments2D(t *testing.T) {
	assert := assert.New(t)

	b, err := New(2)
	assert.NoError(err)
	assert.NoError(b.SetUniform(2))
	assert.NoError(b.SetLocation(0, mat.NewVecDense(2, []float64{1.0, 0.0})))
	assert.NoError(b.SetLocation(1, mat.NewVecDense(2, []float64{-1.0, 0.0})))

	mean := b.Mean()
	assert.InDelta(0.0, mean.AtVec(0), 1e-12)
	assert.InDelta(0.0, mean.AtVec(1), 1e-12)

	cov := b.Cov()
	assert.InDelta(1.0, cov.At(0, 0), 1e-12)
	assert.InDelta(0.0, cov.At(0, 1), 1e-12)
	assert.InDelta(0.0, cov.At(1, 1), 1e-12)
}

func TestResampleFrom(t *testing.T) {
	assert := assert.New(t)

	rng := rand.New(rand.NewSource(7))

	src := newTestBelief(t, -1.0, 0.0, 1.0)
	// concentrate virtually all probability mass on the first particle
	assert.NoError(src.SetLogWeights([]float64{0.0, -50.0, -50.0}))

	b, err := New(1)
	assert.NoError(err)

	assert.Error(b.ResampleFrom(nil, 10, rng))
	assert.Error(b.ResampleFrom(src, 0, rng))

	assert.NoError(b.ResampleFrom(src, 100, rng))
	assert.Equal(100, b.Size())
	for i := 0; i < b.Size(); i++ {
		assert.InDelta(1.0/100.0, b.Weights().AtVec(i), 1e-9)
		loc, err := b.Location(i)
		assert.NoError(err)
		assert.InDelta(-1.0, loc.AtVec(0), 1e-12)
	}
	assert.InDelta(0.0, b.KLToUniform(), 1e-9)
}

func TestResampleFromDraws(t *testing.T) {
	assert := assert.New(t)

	src := newTestBelief(t, -1.0, 0.0, 1.0)
	assert.NoError(src.SetLogWeights([]float64{0.0, -1.0, -2.0}))

	// resampling draws its indices through rnd.RouletteDrawN:
	// equal seeds must select equal source locations
	indices, err := rnd.RouletteDrawN([]float64{
		src.Weights().AtVec(0),
		src.Weights().AtVec(1),
		src.Weights().AtVec(2),
	}, 50, rand.New(rand.NewSource(99)))
	assert.NoError(err)

	b, err := New(1)
	assert.NoError(err)
	assert.NoError(b.ResampleFrom(src, 50, rand.New(rand.NewSource(99))))
	assert.Equal(50, b.Size())

	for i, j := range indices {
		want, err := src.Location(j)
		assert.NoError(err)
		got, err := b.Location(i)
		assert.NoError(err)
		assert.InDelta(want.AtVec(0), got.AtVec(0), 1e-12)
	}
}

func TestResampleFromSelf(t *testing.T) {
	assert := assert.New(t)

	rng := rand.New(rand.NewSource(7))

	b := newTestBelief(t, -1.0, 0.0, 1.0)
	assert.NoError(b.SetLogWeights([]float64{0.0, -50.0, -50.0}))

	// resampling from itself must be safe: draws go into a fresh buffer
	assert.NoError(b.ResampleFrom(b, 3, rng))
	assert.Equal(3, b.Size())
	for i := 0; i < b.Size(); i++ {
		assert.InDelta(1.0/3.0, b.Weights().AtVec(i), 1e-9)
		loc, err := b.Location(i)
		assert.NoError(err)
		assert.InDelta(-1.0, loc.AtVec(0), 1e-12)
	}
}

func TestClone(t *testing.T) {
	assert := assert.New(t)

	b := newTestBelief(t, -1.0, 1.0)
	c := b.Clone()

	assert.NoError(c.SetLogWeights([]float64{0.0, -10.0}))
	assert.NoError(c.SetLocation(0, mat.NewVecDense(1, []float64{42.0})))

	// the original must remain untouched
	assert.InDelta(0.5, b.Weights().AtVec(0), 1e-12)
	loc, err := b.Location(0)
	assert.NoError(err)
	assert.InDelta(-1.0, loc.AtVec(0), 1e-12)
}

func TestLocations(t *testing.T) {
	assert := assert.New(t)

	b := newTestBelief(t, -1.0, 1.0)

	x := b.Locations()
	r, c := x.Dims()
	assert.Equal(1, r)
	assert.Equal(2, c)
	assert.InDelta(-1.0, x.At(0, 0), 1e-12)
	assert.InDelta(1.0, x.At(0, 1), 1e-12)
}
