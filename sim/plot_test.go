package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNew2DPlot(t *testing.T) {
	assert := assert.New(t)

	data := mat.NewDense(3, 2, []float64{0.0, 1.0, 1.0, 2.0, 2.0, 3.0})

	p, err := New2DPlot(nil, data, data)
	assert.Nil(p)
	assert.Error(err)

	p, err = New2DPlot(data, mat.NewDense(3, 1, nil), data)
	assert.Nil(p)
	assert.Error(err)

	p, err = New2DPlot(data, data, data)
	assert.NotNil(p)
	assert.NoError(err)
}
