package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	particle "github.com/milosgajdos/go-particle"
)

var (
	_ particle.ProcessModel     = (*Discrete)(nil)
	_ particle.ObservationModel = (*Measurement)(nil)
)

// System defines a linear model of a plant using
// the traditional matrices of modern control theory.
type System struct {
	// A is the state matrix
	A *mat.Dense
	// B is the control matrix
	B *mat.Dense
	// C is the output matrix
	C *mat.Dense
	// D is the feedthrough matrix
	D *mat.Dense
}

// Discrete is a linear discrete-time dynamical system:
//
//	x[n+1] = A*x[n] + B*u[n] + q[n]
//	y[n]   = C*x[n] + D*u[n] + r[n]
//
// It implements particle.ProcessModel: process noise q enters the
// state equation directly, so the noise dimension equals the state
// dimension.
type Discrete struct {
	System
}

// NewDiscrete creates a linear discrete-time model from the system matrices.
// It returns error if the state matrix A is not defined or not square.
func NewDiscrete(A, B, C, D *mat.Dense) (*Discrete, error) {
	if A == nil {
		return nil, fmt.Errorf("state matrix must be defined")
	}
	r, c := A.Dims()
	if r != c {
		return nil, fmt.Errorf("state matrix must be square: [%d x %d]", r, c)
	}

	return &Discrete{System: System{A: A, B: B, C: C, D: D}}, nil
}

// Propagate returns the next state of the system given state x, input u and
// process noise q. It returns error if the dimensions of x or u are invalid.
func (d *Discrete) Propagate(x, u, q mat.Vector) (mat.Vector, error) {
	nx := d.StateDim()
	if x.Len() != nx {
		return nil, fmt.Errorf("invalid state vector")
	}
	if u != nil && d.B != nil {
		_, nu := d.B.Dims()
		if u.Len() != nu {
			return nil, fmt.Errorf("invalid input vector")
		}
	}

	out := new(mat.Dense)
	out.Mul(d.A, x)

	if u != nil && d.B != nil {
		outU := new(mat.Dense)
		outU.Mul(d.B, u)
		out.Add(out, outU)
	}

	if q != nil && q.Len() == nx {
		out.Add(out, q)
	}

	return out.ColView(0), nil
}

// Observe returns the system output given state x, input u and measurement
// noise r. It returns error if the output matrix is not defined or if the
// dimensions of x or u are invalid.
func (d *Discrete) Observe(x, u, r mat.Vector) (mat.Vector, error) {
	if d.C == nil {
		return nil, fmt.Errorf("output matrix must be defined")
	}
	if x.Len() != d.StateDim() {
		return nil, fmt.Errorf("invalid state vector")
	}
	if u != nil && d.D != nil {
		_, nu := d.D.Dims()
		if u.Len() != nu {
			return nil, fmt.Errorf("invalid input vector")
		}
	}

	out := new(mat.Dense)
	out.Mul(d.C, x)

	if u != nil && d.D != nil {
		outU := new(mat.Dense)
		outU.Mul(d.D, u)
		out.Add(out, outU)
	}

	ny, _ := d.C.Dims()
	if r != nil && r.Len() == ny {
		out.Add(out, r)
	}

	return out.ColView(0), nil
}

// StateDim returns the dimension of the system state vector.
func (d *Discrete) StateDim() int {
	nx, _ := d.A.Dims()
	return nx
}

// NoiseDim returns the dimension of the process noise vector.
func (d *Discrete) NoiseDim() int {
	return d.StateDim()
}

// OutputDim returns the dimension of the system output vector.
func (d *Discrete) OutputDim() int {
	if d.C == nil {
		return 0
	}
	ny, _ := d.C.Dims()

	return ny
}

// Measurement implements particle.ObservationModel for a Discrete system:
// it scores measurements against particle states through the system output
// equation and a measurement error PDF.
type Measurement struct {
	// sys is the observed system
	sys *Discrete
	// pdf is measurement error PDF
	pdf distmv.LogProber
}

// NewMeasurement creates a new measurement model for system sys with
// measurement error PDF pdf; pdf must accept vectors of the system
// output dimension. It returns error if sys defines no output matrix
// or if nil pdf is given.
func NewMeasurement(sys *Discrete, pdf distmv.LogProber) (*Measurement, error) {
	if sys == nil || sys.C == nil {
		return nil, fmt.Errorf("observed system must define an output matrix")
	}
	if pdf == nil {
		return nil, fmt.Errorf("measurement error PDF must be defined")
	}

	return &Measurement{sys: sys, pdf: pdf}, nil
}

// LogLikelihoods returns the log-likelihood of measurement z for every
// particle state stored in the columns of x: the log-density of the
// innovation z - C*x[i] under the measurement error PDF.
// It returns error if the dimensions of z or x are invalid.
func (m *Measurement) LogLikelihoods(z mat.Vector, x mat.Matrix) ([]float64, error) {
	ny := m.sys.OutputDim()
	if z.Len() != ny {
		return nil, fmt.Errorf("invalid measurement size: %d", z.Len())
	}

	rows, cols := x.Dims()
	if rows != m.sys.StateDim() {
		return nil, fmt.Errorf("invalid particle state dimension: %d", rows)
	}

	y := new(mat.Dense)
	y.Mul(m.sys.C, x)

	inn := make([]float64, ny)
	ll := make([]float64, cols)
	for c := 0; c < cols; c++ {
		for r := 0; r < ny; r++ {
			inn[r] = z.AtVec(r) - y.At(r, c)
		}
		ll[c] = m.pdf.LogProb(inn)
	}

	return ll, nil
}

// NoiseDim returns the dimension of the measurement noise vector.
func (m *Measurement) NoiseDim() int {
	return m.sys.OutputDim()
}
