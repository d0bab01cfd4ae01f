// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package rb

import (
	"fmt"

	"github.com/frombs/rbeval/param"
)

// StabilityBound supplies a certified lower bound on the stability
// (coercivity or inf-sup) constant at a parameter value. Implementations
// typically wrap a successive constraint method or, for parametrically
// coercive problems, the min-theta approach.
type StabilityBound interface {
	LowerBound(mu param.Vector) (float64, error)
}

// BoundFunc adapts a plain function to the StabilityBound interface.
type BoundFunc func(mu param.Vector) (float64, error)

func (f BoundFunc) LowerBound(mu param.Vector) (float64, error) { return f(mu) }

// MinThetaBound is the min-theta coercivity lower bound
//
//	alpha_LB(mu) = alpha(muBar) * min_q thetaA_q(mu) / thetaA_q(muBar)
//
// valid for parametrically coercive problems where every thetaA_q is
// positive over the parameter domain.
type MinThetaBound struct {
	Expansion ThetaExpansion
	MuBar     param.Vector // reference parameter
	AlphaBar  float64      // coercivity constant at MuBar
}

func (b *MinThetaBound) LowerBound(mu param.Vector) (float64, error) {
	if b.Expansion == nil {
		return 0, fmt.Errorf("%w: min-theta bound has no expansion", ErrNoStabilityBound)
	}
	if b.AlphaBar <= 0 {
		return 0, fmt.Errorf("%w: nonpositive reference coercivity %g", ErrNoStabilityBound, b.AlphaBar)
	}
	minRatio := 0.0
	for q := 0; q < b.Expansion.QA(); q++ {
		ref := b.Expansion.ThetaA(q, b.MuBar)
		cur := b.Expansion.ThetaA(q, mu)
		if ref <= 0 || cur <= 0 {
			return 0, fmt.Errorf("%w: min-theta requires positive thetaA, term %d has theta(muBar)=%g theta(mu)=%g",
				ErrNoStabilityBound, q, ref, cur)
		}
		r := cur / ref
		if q == 0 || r < minRatio {
			minRatio = r
		}
	}
	return b.AlphaBar * minRatio, nil
}

// ScalingFunc maps a stability lower bound to the denominator of the
// a-posteriori error bound. The correct form depends on the problem class,
// so it is supplied at construction rather than fixed.
type ScalingFunc func(alphaLB float64) float64

// ScaleLinear divides the residual norm by alpha_LB. This is the default.
func ScaleLinear(alphaLB float64) float64 { return alphaLB }

// ScaleSquared divides the residual norm by alpha_LB^2, the form used for
// energy-norm bounds of symmetric coercive problems.
func ScaleSquared(alphaLB float64) float64 { return alphaLB * alphaLB }
