// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package rb

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/frombs/rbeval/param"
)

// Solve performs the online reduced basis solve with the first N basis
// functions at parameter mu, with 0 <= N <= NbBasisFunctions.
//
// It assembles the N x N system from the theta coefficients and the cached
// projected operators, solves it by dense LU, evaluates every output, and,
// unless disabled with WithErrorBound(false), computes the certified
// a-posteriori error bound which it returns. With an empty reduced space
// (N=0) the solution is zero and the bound reflects the forcing terms alone.
//
// When error bound evaluation is disabled the returned bound and the output
// error bounds are NaN and must not be interpreted.
func (e *Evaluation) Solve(N int, mu param.Vector) (float64, error) {
	if e.expansion == nil {
		return 0, fmt.Errorf("%w: cannot solve", ErrNotInitialized)
	}
	if N < 0 || N > e.NbBasisFunctions() {
		return 0, fmt.Errorf("%w: N=%d not in [0, %d]", ErrInvalidSize, N, e.NbBasisFunctions())
	}
	if e.nmax > 0 && (e.expansion.QA() != e.qa || e.expansion.QF() != e.qf || e.expansion.NbOutputs() != len(e.ql)) {
		return 0, fmt.Errorf("%w: expansion has QA=%d QF=%d outputs=%d, operator data sized for QA=%d QF=%d outputs=%d",
			ErrCorruptData, e.expansion.QA(), e.expansion.QF(), e.expansion.NbOutputs(), e.qa, e.qf, len(e.ql))
	}
	start := time.Now()

	thetaA := e.thetasA(mu)
	thetaF := e.thetasF(mu)

	if N == 0 {
		e.solution = &mat.VecDense{}
	} else {
		var aN mat.Dense
		aN.Scale(thetaA[0], e.AQ[0].Slice(0, N, 0, N))
		var tmp mat.Dense
		for q := 1; q < e.qa; q++ {
			tmp.Scale(thetaA[q], e.AQ[q].Slice(0, N, 0, N))
			aN.Add(&aN, &tmp)
		}
		fN := mat.NewVecDense(N, nil)
		for q := 0; q < e.qf; q++ {
			fN.AddScaledVec(fN, thetaF[q], e.FQ[q].SliceVec(0, N))
		}

		var lu mat.LU
		lu.Factorize(&aN)
		sol := mat.NewVecDense(N, nil)
		if err := lu.SolveVecTo(sol, false, fN); err != nil {
			return 0, fmt.Errorf("%w: N=%d: %v", ErrSingular, N, err)
		}
		e.solution = sol
	}

	nOut := e.expansion.NbOutputs()
	e.outputs = make([]float64, nOut)
	e.outputBounds = make([]float64, nOut)
	for n := 0; n < nOut; n++ {
		e.outputs[n] = e.evalOutput(n, N, mu)
	}

	if !e.evaluateErrorBound {
		for n := range e.outputBounds {
			e.outputBounds[n] = math.NaN()
		}
		e.log.Debug().Int("N", N).Stringer("mu", mu).Dur("took", time.Since(start)).Msg("rb solve (no bound)")
		return math.NaN(), nil
	}

	if len(e.FqNorms) != packedLen(e.qf) || len(e.AqAqNorms) != packedLen(e.qa) || len(e.OutputDualNorms) != nOut {
		return 0, fmt.Errorf("%w: representor norm tensors not loaded; load a full snapshot or use WithErrorBound(false)", ErrNotInitialized)
	}
	resNorm := e.residualDualNorm(N, thetaA, thetaF)
	alphaLB, err := e.StabilityLowerBound(mu)
	if err != nil {
		return 0, err
	}
	denom := e.scaling(alphaLB)
	if denom <= 0 {
		return 0, fmt.Errorf("%w: residual scaling denominator %g from alphaLB=%g", ErrNoStabilityBound, denom, alphaLB)
	}
	bound := resNorm / denom
	for n := 0; n < nOut; n++ {
		e.outputBounds[n] = bound * e.outputDualNorm(n, mu)
	}

	e.log.Debug().
		Int("N", N).
		Stringer("mu", mu).
		Float64("bound", bound).
		Dur("took", time.Since(start)).
		Msg("rb solve")
	return bound, nil
}

// ResidualDualNorm computes the dual norm of the residual of the last
// reduced solution, for basis size N and the thetas at mu. The closed-form
// expansion uses only the precomputed representor norm tensors, so the cost
// is O(QA^2 N^2 + QF QA N + QF^2), independent of the full-order dimension.
func (e *Evaluation) ResidualDualNorm(N int, mu param.Vector) (float64, error) {
	if e.expansion == nil {
		return 0, fmt.Errorf("%w: cannot evaluate residual norm", ErrNotInitialized)
	}
	if N < 0 || N > e.NbBasisFunctions() {
		return 0, fmt.Errorf("%w: N=%d not in [0, %d]", ErrInvalidSize, N, e.NbBasisFunctions())
	}
	if e.solution == nil || e.solution.Len() < N {
		return 0, fmt.Errorf("%w: no stored solution of size >= %d", ErrInvalidSize, N)
	}
	if len(e.FqNorms) != packedLen(e.qf) || len(e.AqAqNorms) != packedLen(e.qa) {
		return 0, fmt.Errorf("%w: representor norm tensors not loaded", ErrNotInitialized)
	}
	return e.residualDualNorm(N, e.thetasA(mu), e.thetasF(mu)), nil
}

func (e *Evaluation) residualDualNorm(N int, thetaA, thetaF []float64) float64 {
	x := e.solution

	var sq float64

	// forcing-forcing terms, packed symmetric
	p := 0
	for q1 := 0; q1 < e.qf; q1++ {
		for q2 := q1; q2 < e.qf; q2++ {
			delta := 1.0
			if q2 > q1 {
				delta = 2.0
			}
			sq += delta * thetaF[q1] * thetaF[q2] * e.FqNorms[p]
			p++
		}
	}

	// forcing-operator cross terms
	for i := 0; i < N; i++ {
		xi := x.AtVec(i)
		for qf := 0; qf < e.qf; qf++ {
			for qa := 0; qa < e.qa; qa++ {
				sq += 2 * xi * thetaF[qf] * thetaA[qa] * e.FqAqNorms[qf][qa][i]
			}
		}
	}

	// operator-operator terms, packed symmetric in (qa1, qa2)
	p = 0
	for q1 := 0; q1 < e.qa; q1++ {
		for q2 := q1; q2 < e.qa; q2++ {
			delta := 1.0
			if q2 > q1 {
				delta = 2.0
			}
			norms := e.AqAqNorms[p]
			for i := 0; i < N; i++ {
				xi := x.AtVec(i)
				for j := 0; j < N; j++ {
					sq += delta * thetaA[q1] * thetaA[q2] * xi * x.AtVec(j) * norms[i][j]
				}
			}
			p++
		}
	}

	if sq < 0 {
		// cancellation can push the quadratic form slightly negative
		e.log.Warn().Float64("residualNormSq", sq).Msg("negative residual norm square, taking absolute value")
		sq = math.Abs(sq)
	}
	return math.Sqrt(sq)
}

// OutputDualNorm evaluates the dual norm of output functional n at mu from
// the cached output representor inner products. ErrNotInitialized when the
// output dual norm terms were not loaded, as in operator-only snapshots.
func (e *Evaluation) OutputDualNorm(n int, mu param.Vector) (float64, error) {
	if e.expansion == nil {
		return 0, fmt.Errorf("%w: cannot evaluate output dual norm", ErrNotInitialized)
	}
	if n < 0 || n >= len(e.ql) {
		return 0, fmt.Errorf("%w: output %d, have %d outputs", ErrOutOfRange, n, len(e.ql))
	}
	if len(e.OutputDualNorms) != len(e.ql) || len(e.OutputDualNorms[n]) != packedLen(e.ql[n]) {
		return 0, fmt.Errorf("%w: output dual norm terms not loaded", ErrNotInitialized)
	}
	return e.outputDualNorm(n, mu), nil
}

func (e *Evaluation) outputDualNorm(n int, mu param.Vector) float64 {
	var sq float64
	p := 0
	for q1 := 0; q1 < e.ql[n]; q1++ {
		for q2 := q1; q2 < e.ql[n]; q2++ {
			delta := 1.0
			if q2 > q1 {
				delta = 2.0
			}
			sq += delta * e.expansion.ThetaOutput(n, q1, mu) * e.expansion.ThetaOutput(n, q2, mu) * e.OutputDualNorms[n][p]
			p++
		}
	}
	return math.Sqrt(math.Abs(sq))
}

// StabilityLowerBound returns the lower bound on the stability constant at
// mu from the configured StabilityBound collaborator.
func (e *Evaluation) StabilityLowerBound(mu param.Vector) (float64, error) {
	if e.stability == nil {
		return 0, fmt.Errorf("%w: no StabilityBound configured, disable error bound evaluation or set one", ErrNoStabilityBound)
	}
	return e.stability.LowerBound(mu)
}

func (e *Evaluation) evalOutput(n, N int, mu param.Vector) float64 {
	if N == 0 {
		return 0
	}
	lN := mat.NewVecDense(N, nil)
	for q := 0; q < e.ql[n]; q++ {
		lN.AddScaledVec(lN, e.expansion.ThetaOutput(n, q, mu), e.OutputVectors[n][q].SliceVec(0, N))
	}
	return mat.Dot(lN, e.solution)
}

func (e *Evaluation) thetasA(mu param.Vector) []float64 {
	t := make([]float64, e.qa)
	for q := range t {
		t[q] = e.expansion.ThetaA(q, mu)
	}
	return t
}

func (e *Evaluation) thetasF(mu param.Vector) []float64 {
	t := make([]float64, e.qf)
	for q := range t {
		t[q] = e.expansion.ThetaF(q, mu)
	}
	return t
}
