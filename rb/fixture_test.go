package rb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/frombs/rbeval/param"
)

// diagModel is an analytic full-order affine model with diagonal operators
// and identity inner product:
//
//	A(mu) = diag(a0) + mu[0]*diag(a1),  F fixed,  output l = e_1
//
// The reduced basis is the first unit vectors, so the model is hierarchical
// by construction and the true solution, error and residual norm all have
// closed forms.
type diagModel struct {
	a0, a1, f []float64
}

func (m diagModel) dim() int { return len(m.a0) }

func (m diagModel) expansion() *FuncExpansion {
	one := func(param.Vector) float64 { return 1 }
	return &FuncExpansion{
		A: []ThetaFunc{one, func(mu param.Vector) float64 { return mu[0] }},
		F: []ThetaFunc{one},
		Outputs: [][]ThetaFunc{
			{one},
		},
	}
}

func (m diagModel) trueSolution(mu param.Vector) []float64 {
	x := make([]float64, m.dim())
	for i := range x {
		x[i] = m.f[i] / (m.a0[i] + mu[0]*m.a1[i])
	}
	return x
}

// trueError is the full-order error norm of the size-N reduced solution.
func (m diagModel) trueError(mu param.Vector, n int) float64 {
	x := m.trueSolution(mu)
	var sq float64
	for i := n; i < len(x); i++ {
		sq += x[i] * x[i]
	}
	return math.Sqrt(sq)
}

func (m diagModel) alpha(mu param.Vector) float64 {
	a := math.Inf(1)
	for i := range m.a0 {
		a = math.Min(a, m.a0[i]+mu[0]*m.a1[i])
	}
	return a
}

// evaluation builds an Evaluation with nmax unit-vector basis functions and
// all operator and representor norm tensors filled from the closed forms.
func (m diagModel) evaluation(t *testing.T, nmax int, opts ...Option) *Evaluation {
	t.Helper()
	exp := m.expansion()
	e, err := New(append([]Option{
		WithStabilityBound(&MinThetaBound{Expansion: exp, MuBar: param.Vector{1}, AlphaBar: m.alpha(param.Vector{1})}),
	}, opts...)...)
	require.NoError(t, err)
	e.SetThetaExpansion(exp)
	require.NoError(t, e.ResizeDataStructures(nmax))
	for i := 0; i < nmax; i++ {
		bf := mat.NewVecDense(m.dim(), nil)
		bf.SetVec(i, 1)
		require.NoError(t, e.AppendBasisFunction(bf, param.Vector{1 + float64(i)*0.1}))
	}
	m.fillTensors(e, nmax)
	return e
}

// fillTensors populates operators and representor norms for basis indices
// below n. Values for indices already filled are rewritten with identical
// numbers, so it is safe to call again after a resize.
func (m diagModel) fillTensors(e *Evaluation, n int) {
	diag := func(q, i int) float64 {
		if q == 0 {
			return m.a0[i]
		}
		return m.a1[i]
	}
	for i := 0; i < n; i++ {
		e.InnerProduct.Set(i, i, 1)
		for q := 0; q < 2; q++ {
			e.AQ[q].Set(i, i, diag(q, i))
		}
		e.FQ[0].SetVec(i, m.f[i])
	}
	// output l = e_1
	e.OutputVectors[0][0].SetVec(0, 1)

	// representor inner products over the full-order space, X = identity:
	// C = F, L_{q,i} = -A_q e_i
	var ff float64
	for i := range m.f {
		ff += m.f[i] * m.f[i]
	}
	e.FqNorms[0] = ff
	for i := 0; i < n; i++ {
		for q := 0; q < 2; q++ {
			e.FqAqNorms[0][q][i] = -m.f[i] * diag(q, i)
		}
	}
	p := 0
	for q1 := 0; q1 < 2; q1++ {
		for q2 := q1; q2 < 2; q2++ {
			for i := 0; i < n; i++ {
				e.AqAqNorms[p][i][i] = diag(q1, i) * diag(q2, i)
			}
			p++
		}
	}
	e.OutputDualNorms[0][0] = 1 // (e_1, e_1)
}

func defaultDiagModel() diagModel {
	return diagModel{
		a0: []float64{2, 3, 4, 5, 6, 7},
		a1: []float64{1, 1, 2, 2, 3, 3},
		f:  []float64{1, 1, 0.5, 0.25, 2, 1},
	}
}

// newScenarioEvaluation is the single-term two-basis-function system
//
//	RB_A_1 = [[2,0],[0,3]], RB_F_1 = [1,1], theta = 1
//
// viewed as its own full-order problem with identity inner product.
func newScenarioEvaluation(t *testing.T) *Evaluation {
	t.Helper()
	one := func(param.Vector) float64 { return 1 }
	exp := &FuncExpansion{
		A:       []ThetaFunc{one},
		F:       []ThetaFunc{one},
		Outputs: [][]ThetaFunc{{one}},
	}
	e, err := New(WithStabilityBound(BoundFunc(func(param.Vector) (float64, error) { return 1, nil })))
	require.NoError(t, err)
	e.SetThetaExpansion(exp)
	require.NoError(t, e.ResizeDataStructures(2))
	for i := 0; i < 2; i++ {
		require.NoError(t, e.AppendBasisFunction(nil, param.Vector{float64(i)}))
	}
	e.AQ[0].Set(0, 0, 2)
	e.AQ[0].Set(1, 1, 3)
	e.FQ[0].SetVec(0, 1)
	e.FQ[0].SetVec(1, 1)
	e.OutputVectors[0][0].SetVec(0, 1)
	e.OutputVectors[0][0].SetVec(1, 1)
	e.InnerProduct.Set(0, 0, 1)
	e.InnerProduct.Set(1, 1, 1)

	// representors with X = identity: C = [1,1], L_i = -A e_i
	e.FqNorms[0] = 2
	e.FqAqNorms[0][0][0] = -2
	e.FqAqNorms[0][0][1] = -3
	e.AqAqNorms[0][0][0] = 4
	e.AqAqNorms[0][1][1] = 9
	e.OutputDualNorms[0][0] = 2
	return e
}
