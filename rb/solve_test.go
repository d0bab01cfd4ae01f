package rb

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frombs/rbeval/param"
)

func TestSolveScenario(t *testing.T) {
	e := newScenarioEvaluation(t)
	mu := param.Vector{0}

	bound, err := e.Solve(2, mu)
	require.NoError(t, err)
	sol := e.Solution()
	require.Equal(t, 2, sol.Len())
	assert.InDelta(t, 0.5, sol.AtVec(0), 1e-14)
	assert.InDelta(t, 1.0/3.0, sol.AtVec(1), 1e-14)
	// the reduced space resolves the full system exactly
	assert.InDelta(t, 0, bound, 1e-6)
	assert.InDelta(t, 5.0/6.0, e.Outputs()[0], 1e-14)

	bound, err = e.Solve(1, mu)
	require.NoError(t, err)
	require.Equal(t, 1, e.Solution().Len())
	assert.InDelta(t, 0.5, e.Solution().AtVec(0), 1e-14)
	// ||r||^2 = 2 - 2 + 1 = 1, alphaLB = 1
	assert.InDelta(t, 1.0, bound, 1e-12)

	bound, err = e.Solve(0, mu)
	require.NoError(t, err)
	assert.Equal(t, 0, e.Solution().Len())
	// forcing-only residual norm
	assert.InDelta(t, math.Sqrt(2), bound, 1e-12)
	assert.InDelta(t, 0, e.Outputs()[0], 1e-14)
}

func TestSolveInvalidSize(t *testing.T) {
	e := newScenarioEvaluation(t)
	_, err := e.Solve(3, param.Vector{0})
	require.ErrorIs(t, err, ErrInvalidSize)
	_, err = e.Solve(-1, param.Vector{0})
	require.ErrorIs(t, err, ErrInvalidSize)
}

func TestSolveUninitialized(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	_, err = e.Solve(0, param.Vector{0})
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestSolveSingular(t *testing.T) {
	e := newScenarioEvaluation(t)
	e.AQ[0].Set(0, 0, 0) // A_N = [[0]] at N=1
	_, err := e.Solve(1, param.Vector{0})
	require.ErrorIs(t, err, ErrSingular)
}

func TestSolveNoStabilityBound(t *testing.T) {
	one := func(param.Vector) float64 { return 1 }
	exp := &FuncExpansion{A: []ThetaFunc{one}, F: []ThetaFunc{one}}
	e, err := New()
	require.NoError(t, err)
	e.SetThetaExpansion(exp)
	require.NoError(t, e.ResizeDataStructures(1))
	_, err = e.Solve(0, param.Vector{0})
	require.ErrorIs(t, err, ErrNoStabilityBound)
}

func TestSolveErrorBoundDisabled(t *testing.T) {
	e := newScenarioEvaluation(t)
	// drop the collaborator entirely; with bounds disabled it must not be hit
	e.stability = nil
	e.evaluateErrorBound = false

	bound, err := e.Solve(1, param.Vector{0})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(bound))
	require.Len(t, e.OutputErrorBounds(), 1)
	assert.True(t, math.IsNaN(e.OutputErrorBounds()[0]))
	// outputs themselves are still evaluated
	assert.InDelta(t, 0.5, e.Outputs()[0], 1e-14)
}

func TestSolutionNorm(t *testing.T) {
	e := newScenarioEvaluation(t)
	_, err := e.Solve(2, param.Vector{0})
	require.NoError(t, err)
	want := math.Sqrt(0.25 + 1.0/9.0)
	assert.InDelta(t, want, e.SolutionNorm(), 1e-14)

	e.useInnerProductNorm = true // X = identity here, same value
	assert.InDelta(t, want, e.SolutionNorm(), 1e-14)

	_, err = e.Solve(0, param.Vector{0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, e.SolutionNorm())
}

func TestSolveTruncationConsistency(t *testing.T) {
	m := defaultDiagModel()
	e := m.evaluation(t, 6)
	mu := param.Vector{1.3}

	_, err := e.Solve(6, mu)
	require.NoError(t, err)
	full := make([]float64, 6)
	for i := range full {
		full[i] = e.Solution().AtVec(i)
	}

	// hierarchical basis: solving with N functions must reproduce the first
	// N coefficients of the full reduced solve
	for n := 0; n <= 6; n++ {
		_, err := e.Solve(n, mu)
		require.NoError(t, err)
		require.Equal(t, n, e.Solution().Len())
		for i := 0; i < n; i++ {
			assert.InDelta(t, full[i], e.Solution().AtVec(i), 1e-12, "N=%d i=%d", n, i)
		}
	}
}

func TestSolveAgainstTrueSolution(t *testing.T) {
	m := defaultDiagModel()
	e := m.evaluation(t, 6)
	mu := param.Vector{0.75}

	_, err := e.Solve(6, mu)
	require.NoError(t, err)
	want := m.trueSolution(mu)
	for i := 0; i < 6; i++ {
		assert.InDelta(t, want[i], e.Solution().AtVec(i), 1e-12)
	}
	// output l = e_1
	assert.InDelta(t, want[0], e.Outputs()[0], 1e-12)
}

// The certification property: for any parameter in the domain and any basis
// size, the computed bound must dominate the true full-order error.
func TestErrorBoundCertification(t *testing.T) {
	m := defaultDiagModel()
	e := m.evaluation(t, 6)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	properties.Property("bound >= true error", prop.ForAll(
		func(muVal float64, n int) bool {
			mu := param.Vector{muVal}
			bound, err := e.Solve(n, mu)
			if err != nil {
				return false
			}
			return bound >= m.trueError(mu, n)-1e-12
		},
		gen.Float64Range(0.5, 2.0),
		gen.IntRange(0, 6),
	))
	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// The residual dual norm computed from the representor tensors must match
// the analytic full-order residual norm of the diagonal model.
func TestResidualDualNormClosedForm(t *testing.T) {
	m := defaultDiagModel()
	e := m.evaluation(t, 4)

	for _, muVal := range []float64{0.5, 1, 1.7} {
		mu := param.Vector{muVal}
		for n := 0; n <= 4; n++ {
			_, err := e.Solve(n, mu)
			require.NoError(t, err)
			got, err := e.ResidualDualNorm(n, mu)
			require.NoError(t, err)

			// r_i = f_i for i >= n, 0 below (exact hierarchical solve)
			var sq float64
			for i := n; i < m.dim(); i++ {
				sq += m.f[i] * m.f[i]
			}
			assert.InDelta(t, math.Sqrt(sq), got, 1e-10, "mu=%g N=%d", muVal, n)
		}
	}
}

// Extending the capacity must not change residual norms already obtainable
// at smaller basis sizes: the tensors are extended, never recomputed.
func TestRepresentorNormIncrementalConsistency(t *testing.T) {
	m := defaultDiagModel()
	e := m.evaluation(t, 2)
	mu := param.Vector{1.2}

	boundBefore, err := e.Solve(2, mu)
	require.NoError(t, err)

	// grow capacity without touching the already-cached entries
	require.NoError(t, e.ResizeDataStructures(4))
	boundAfter, err := e.Solve(2, mu)
	require.NoError(t, err)
	assert.Equal(t, boundBefore, boundAfter)

	// filling the new entries and adding basis functions must still leave
	// size-2 values untouched
	for i := 2; i < 4; i++ {
		require.NoError(t, e.AppendBasisFunction(nil, param.Vector{1}))
	}
	m.fillTensors(e, 4)
	boundFilled, err := e.Solve(2, mu)
	require.NoError(t, err)
	assert.InDelta(t, boundBefore, boundFilled, 1e-14)

	_, err = e.Solve(4, mu)
	require.NoError(t, err)
}

func TestSolveExpansionMismatch(t *testing.T) {
	e := newScenarioEvaluation(t)
	one := func(param.Vector) float64 { return 1 }
	// swap in an expansion with a different number of affine terms
	e.SetThetaExpansion(&FuncExpansion{A: []ThetaFunc{one, one}, F: []ThetaFunc{one}})
	_, err := e.Solve(1, param.Vector{0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptData))
}
