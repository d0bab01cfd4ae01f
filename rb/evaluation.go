// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

// Package rb implements the online stage of a certified reduced basis method:
// assembly and solution of the parameter-dependent reduced system, output
// evaluation and rigorous a-posteriori error bounds, plus persistence of the
// offline-produced operator data.
package rb

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/frombs/rbeval/logger"
	"github.com/frombs/rbeval/param"
)

// Evaluation holds everything needed to evaluate a reduced basis model
// online: the basis bookkeeping, the mu-independent projected operators and
// representor norm tensors produced offline, and the per-solve result state.
//
// The tensor fields are populated either by an offline training process or
// by ReadOfflineData; they are read-only during online solves, so multiple
// evaluations may share them (see Sweep). The result state (solution,
// outputs, bounds) is owned per instance and overwritten by every Solve.
type Evaluation struct {
	log       zerolog.Logger
	expansion ThetaExpansion // shared handle, never owned
	stability StabilityBound
	scaling   ScalingFunc

	// evaluateErrorBound toggles the residual-norm and bound computation in
	// Solve. Disabling it skips the O(QA^2 N^2) online cost; bounds are then
	// reported as NaN.
	evaluateErrorBound bool
	// useInnerProductNorm selects the X-norm (via the inner product matrix)
	// instead of the Euclidean norm in SolutionNorm.
	useInnerProductNorm bool

	// Basis bookkeeping. BasisFunctions holds the full-order coefficient
	// vectors of the reduced basis (slots may be nil for operator-only
	// online deployments); GreedyParams records the parameter selected for
	// each basis function.
	BasisFunctions []*mat.VecDense
	GreedyParams   []param.Vector

	// InnerProduct is the nmax x nmax matrix of basis function X-inner
	// products. Close to identity, but stored explicitly since orthogonality
	// degrades as the basis grows.
	InnerProduct *mat.Dense

	// Projected affine operators, each truncatable to its leading N block.
	AQ            []*mat.Dense    // QA matrices, nmax x nmax
	FQ            []*mat.VecDense // QF vectors, length nmax
	OutputVectors [][]*mat.VecDense

	// Residual representor norm tensors. FqNorms and OutputDualNorms store
	// symmetric pairs packed row-major with q2 >= q1.
	FqNorms         []float64     // len QF(QF+1)/2
	FqAqNorms       [][][]float64 // [QF][QA][nmax]
	AqAqNorms       [][][]float64 // [QA(QA+1)/2][nmax][nmax]
	OutputDualNorms [][]float64   // per output, len QL(n)(QL(n)+1)/2

	// AqRepresentors holds the full-order Riesz representors of the A_q
	// terms while the norm tensors are still being assembled offline. Once
	// the norms are cached the representors can be dropped with
	// ClearRieszRepresentors to free full-order storage.
	AqRepresentors [][]*mat.VecDense // [basis index][QA]

	// capacity and affine term counts the tensors are currently sized for
	nmax int
	qa   int
	qf   int
	ql   []int

	// result state, overwritten by each Solve
	solution     *mat.VecDense
	outputs      []float64
	outputBounds []float64
}

// Option configures an Evaluation at construction.
type Option func(*Evaluation) error

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Evaluation) error {
		e.log = l
		return nil
	}
}

// WithStabilityBound sets the stability lower bound collaborator used by the
// error bound computation.
func WithStabilityBound(b StabilityBound) Option {
	return func(e *Evaluation) error {
		e.stability = b
		return nil
	}
}

// WithScaling sets the residual scaling denominator strategy. Defaults to
// ScaleLinear.
func WithScaling(s ScalingFunc) Option {
	return func(e *Evaluation) error {
		if s == nil {
			return fmt.Errorf("rb: nil scaling function")
		}
		e.scaling = s
		return nil
	}
}

// WithErrorBound enables or disables error bound evaluation during Solve.
// Enabled by default.
func WithErrorBound(enabled bool) Option {
	return func(e *Evaluation) error {
		e.evaluateErrorBound = enabled
		return nil
	}
}

// WithInnerProductNorm selects the X-norm, computed through the stored inner
// product matrix, for SolutionNorm. Defaults to the Euclidean coefficient
// norm.
func WithInnerProductNorm(enabled bool) Option {
	return func(e *Evaluation) error {
		e.useInnerProductNorm = enabled
		return nil
	}
}

// New returns an empty Evaluation. Operator data is populated by the offline
// stage or by ReadOfflineData; the theta expansion must be set before any
// online call.
func New(opts ...Option) (*Evaluation, error) {
	e := &Evaluation{
		log:                logger.Logger(),
		scaling:            ScaleLinear,
		evaluateErrorBound: true,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// SetThetaExpansion sets the affine expansion supplying the theta
// coefficient functions. The expansion is shared, possibly with other
// evaluations and the offline stage; the Evaluation never takes ownership.
func (e *Evaluation) SetThetaExpansion(x ThetaExpansion) {
	e.expansion = x
}

// ThetaExpansion returns the expansion handle, or nil if unset.
func (e *Evaluation) ThetaExpansion() ThetaExpansion { return e.expansion }

// IsInitialized reports whether a theta expansion has been set.
func (e *Evaluation) IsInitialized() bool { return e.expansion != nil }

// NbBasisFunctions returns the current number of basis functions.
func (e *Evaluation) NbBasisFunctions() int { return len(e.BasisFunctions) }

// NMax returns the capacity the data structures are currently sized for.
func (e *Evaluation) NMax() int { return e.nmax }

// BasisFunction returns the i-th basis function vector. The slot may be nil
// when only projected operators were loaded.
func (e *Evaluation) BasisFunction(i int) (*mat.VecDense, error) {
	if i < 0 || i >= len(e.BasisFunctions) {
		return nil, fmt.Errorf("%w: index %d, have %d basis functions", ErrOutOfRange, i, len(e.BasisFunctions))
	}
	return e.BasisFunctions[i], nil
}

// SetNbBasisFunctions truncates or extends the basis function slots to n
// without touching their content. Extended slots are nil. Used when loading
// partially trained bases.
func (e *Evaluation) SetNbBasisFunctions(n int) error {
	if n < 0 || n > e.nmax {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidSize, n, e.nmax)
	}
	for len(e.BasisFunctions) < n {
		e.BasisFunctions = append(e.BasisFunctions, nil)
	}
	e.BasisFunctions = e.BasisFunctions[:n]
	if len(e.GreedyParams) > n {
		e.GreedyParams = e.GreedyParams[:n]
	}
	return nil
}

// AppendBasisFunction adds a basis function and its greedy parameter
// provenance. The capacity must have been grown beforehand with
// ResizeDataStructures.
func (e *Evaluation) AppendBasisFunction(v *mat.VecDense, mu param.Vector) error {
	if len(e.BasisFunctions) >= e.nmax {
		return fmt.Errorf("%w: basis full at capacity %d, call ResizeDataStructures first", ErrInvalidSize, e.nmax)
	}
	e.BasisFunctions = append(e.BasisFunctions, v)
	e.GreedyParams = append(e.GreedyParams, mu.Clone())
	return nil
}

// ResizeDataStructures grows every per-basis-size structure to capacity
// nmax, preserving existing content and zero-filling new entries. It is the
// sole capacity mutator: the representor norm tensors are extended in place
// so that values already cached for smaller basis sizes stay untouched.
func (e *Evaluation) ResizeDataStructures(nmax int) error {
	if e.expansion == nil {
		return fmt.Errorf("%w: cannot size operator data", ErrNotInitialized)
	}
	if nmax < e.nmax {
		return fmt.Errorf("%w: resize to %d below current capacity %d", ErrInvalidSize, nmax, e.nmax)
	}
	qa, qf := e.expansion.QA(), e.expansion.QF()
	nOut := e.expansion.NbOutputs()
	ql := make([]int, nOut)
	for n := 0; n < nOut; n++ {
		ql[n] = e.expansion.QL(n)
	}
	e.resizeTo(nmax, qa, qf, ql)
	e.log.Debug().Int("nmax", nmax).Int("qa", qa).Int("qf", qf).Msg("resized rb data structures")
	return nil
}

func (e *Evaluation) resizeTo(nmax, qa, qf int, ql []int) {
	e.InnerProduct = growDense(e.InnerProduct, nmax)

	e.AQ = growSlice(e.AQ, qa)
	for q := range e.AQ {
		e.AQ[q] = growDense(e.AQ[q], nmax)
	}
	e.FQ = growSlice(e.FQ, qf)
	for q := range e.FQ {
		e.FQ[q] = growVec(e.FQ[q], nmax)
	}
	e.OutputVectors = growSlice(e.OutputVectors, len(ql))
	for n := range e.OutputVectors {
		e.OutputVectors[n] = growSlice(e.OutputVectors[n], ql[n])
		for q := range e.OutputVectors[n] {
			e.OutputVectors[n][q] = growVec(e.OutputVectors[n][q], nmax)
		}
	}

	e.FqNorms = growFloats(e.FqNorms, packedLen(qf))
	e.FqAqNorms = growSlice(e.FqAqNorms, qf)
	for i := range e.FqAqNorms {
		e.FqAqNorms[i] = growSlice(e.FqAqNorms[i], qa)
		for j := range e.FqAqNorms[i] {
			e.FqAqNorms[i][j] = growFloats(e.FqAqNorms[i][j], nmax)
		}
	}
	e.AqAqNorms = growSlice(e.AqAqNorms, packedLen(qa))
	for i := range e.AqAqNorms {
		e.AqAqNorms[i] = growSlice(e.AqAqNorms[i], nmax)
		for j := range e.AqAqNorms[i] {
			e.AqAqNorms[i][j] = growFloats(e.AqAqNorms[i][j], nmax)
		}
	}
	e.OutputDualNorms = growSlice(e.OutputDualNorms, len(ql))
	for n := range e.OutputDualNorms {
		e.OutputDualNorms[n] = growFloats(e.OutputDualNorms[n], packedLen(ql[n]))
	}

	e.AqRepresentors = growSlice(e.AqRepresentors, nmax)
	for i := range e.AqRepresentors {
		e.AqRepresentors[i] = growSlice(e.AqRepresentors[i], qa)
	}

	e.nmax, e.qa, e.qf, e.ql = nmax, qa, qf, ql
}

// Clear releases the basis function vectors, the greedy history and all
// operator data, returning the evaluation to its freshly constructed state.
// The theta expansion handle is kept.
func (e *Evaluation) Clear() {
	e.BasisFunctions = nil
	e.GreedyParams = nil
	e.InnerProduct = nil
	e.AQ = nil
	e.FQ = nil
	e.OutputVectors = nil
	e.FqNorms = nil
	e.FqAqNorms = nil
	e.AqAqNorms = nil
	e.OutputDualNorms = nil
	e.AqRepresentors = nil
	e.nmax, e.qa, e.qf, e.ql = 0, 0, 0, nil
	e.solution = nil
	e.outputs = nil
	e.outputBounds = nil
}

// ClearRieszRepresentors drops the full-order A_q representor vectors. Once
// the representor norm tensors are cached the representors are dead weight
// (O(N * QA) full-order vectors), so the offline stage calls this after the
// greedy loop completes.
func (e *Evaluation) ClearRieszRepresentors() {
	e.AqRepresentors = nil
}

// Solution returns the reduced solution coefficients of the last Solve. It
// has length N of that solve; length zero for N=0.
func (e *Evaluation) Solution() *mat.VecDense { return e.solution }

// SolutionNorm returns the norm of the last reduced solution: the X-norm
// through the inner product matrix when WithInnerProductNorm is set, the
// Euclidean coefficient norm otherwise.
func (e *Evaluation) SolutionNorm() float64 {
	if e.solution == nil || e.solution.Len() == 0 {
		return 0
	}
	if !e.useInnerProductNorm || e.InnerProduct == nil {
		return mat.Norm(e.solution, 2)
	}
	n := e.solution.Len()
	var xu mat.VecDense
	xu.MulVec(e.InnerProduct.Slice(0, n, 0, n), e.solution)
	return math.Sqrt(mat.Dot(&xu, e.solution))
}

// Outputs returns the output values of the last Solve.
func (e *Evaluation) Outputs() []float64 { return e.outputs }

// OutputErrorBounds returns the certified output error bounds of the last
// Solve. Entries are NaN when error bound evaluation is disabled.
func (e *Evaluation) OutputErrorBounds() []float64 { return e.outputBounds }

// packedLen returns the number of symmetric (q1, q2 >= q1) pairs.
func packedLen(q int) int { return q * (q + 1) / 2 }

func growSlice[T any](s []T, n int) []T {
	for len(s) < n {
		var zero T
		s = append(s, zero)
	}
	return s
}

func growFloats(s []float64, n int) []float64 {
	if len(s) >= n {
		return s
	}
	g := make([]float64, n)
	copy(g, s)
	return g
}

func growDense(m *mat.Dense, n int) *mat.Dense {
	if n == 0 {
		return m
	}
	if m == nil {
		return mat.NewDense(n, n, nil)
	}
	r, c := m.Dims()
	if r >= n && c >= n {
		return m
	}
	return m.Grow(n-r, n-c).(*mat.Dense)
}

func growVec(v *mat.VecDense, n int) *mat.VecDense {
	if n == 0 {
		return v
	}
	if v == nil {
		return mat.NewVecDense(n, nil)
	}
	if v.Len() >= n {
		return v
	}
	g := mat.NewVecDense(n, nil)
	g.CopyVec(v)
	return g
}
