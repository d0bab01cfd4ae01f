// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package rb

import (
	"fmt"

	"github.com/frombs/rbeval/param"
)

// ThetaExpansion supplies the scalar coefficient functions of the affine
// decomposition
//
//	A(mu) = sum_q thetaA_q(mu) A_q
//	F(mu) = sum_q thetaF_q(mu) F_q
//	l_n(mu) = sum_q thetaL_{n,q}(mu) l_{n,q}
//
// An expansion is shared between the offline stage and any number of
// Evaluation instances; implementations must be safe for concurrent reads.
type ThetaExpansion interface {
	// QA returns the number of affine terms of the bilinear form.
	QA() int
	// QF returns the number of affine terms of the right-hand side.
	QF() int
	// NbOutputs returns the number of output functionals.
	NbOutputs() int
	// QL returns the number of affine terms of output n.
	QL(n int) int

	ThetaA(q int, mu param.Vector) float64
	ThetaF(q int, mu param.Vector) float64
	ThetaOutput(n, q int, mu param.Vector) float64
}

// ThetaFunc evaluates one scalar coefficient at a parameter value.
type ThetaFunc func(mu param.Vector) float64

// FuncExpansion is a ThetaExpansion built from explicit coefficient
// functions.
type FuncExpansion struct {
	A       []ThetaFunc
	F       []ThetaFunc
	Outputs [][]ThetaFunc
}

func (e *FuncExpansion) QA() int        { return len(e.A) }
func (e *FuncExpansion) QF() int        { return len(e.F) }
func (e *FuncExpansion) NbOutputs() int { return len(e.Outputs) }

func (e *FuncExpansion) QL(n int) int {
	if n < 0 || n >= len(e.Outputs) {
		panic(fmt.Sprintf("rb: output index %d out of range (have %d outputs)", n, len(e.Outputs)))
	}
	return len(e.Outputs[n])
}

func (e *FuncExpansion) ThetaA(q int, mu param.Vector) float64 { return e.A[q](mu) }
func (e *FuncExpansion) ThetaF(q int, mu param.Vector) float64 { return e.F[q](mu) }

func (e *FuncExpansion) ThetaOutput(n, q int, mu param.Vector) float64 {
	return e.Outputs[n][q](mu)
}
