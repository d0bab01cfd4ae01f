// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package rb

import (
	"fmt"
	"math"

	"github.com/frombs/rbeval/param"
)

// Monomial is one term c * prod_i mu_i^p_i of a declarative theta
// coefficient. Powers may be shorter than the parameter dimension; missing
// entries are treated as zero.
type Monomial struct {
	Coeff  float64 `yaml:"coeff"`
	Powers []int   `yaml:"powers"`
}

// Eval evaluates the monomial at mu.
func (m Monomial) Eval(mu param.Vector) float64 {
	v := m.Coeff
	for i, p := range m.Powers {
		if p != 0 {
			v *= math.Pow(mu[i], float64(p))
		}
	}
	return v
}

// Theta is a polynomial coefficient function: a sum of monomials in mu.
type Theta []Monomial

// Eval evaluates the coefficient at mu.
func (t Theta) Eval(mu param.Vector) float64 {
	var v float64
	for _, m := range t {
		v += m.Eval(mu)
	}
	return v
}

// MonomialExpansion is a ThetaExpansion whose coefficients are polynomials
// in the parameter components. Being purely declarative, it can be loaded
// from a configuration file, which is how the rbeval CLI describes models.
type MonomialExpansion struct {
	A       []Theta   `yaml:"a"`
	F       []Theta   `yaml:"f"`
	Outputs [][]Theta `yaml:"outputs"`
}

// Validate checks that the expansion is non-empty and that no monomial
// references a parameter component beyond dim.
func (e *MonomialExpansion) Validate(dim int) error {
	if len(e.A) == 0 {
		return fmt.Errorf("rb: monomial expansion has no bilinear form terms")
	}
	if len(e.F) == 0 {
		return fmt.Errorf("rb: monomial expansion has no right-hand side terms")
	}
	check := func(kind string, q int, t Theta) error {
		for _, m := range t {
			if len(m.Powers) > dim {
				return fmt.Errorf("rb: monomial expansion %s term %d references %d parameter components, domain has %d",
					kind, q, len(m.Powers), dim)
			}
		}
		return nil
	}
	for q, t := range e.A {
		if err := check("A", q, t); err != nil {
			return err
		}
	}
	for q, t := range e.F {
		if err := check("F", q, t); err != nil {
			return err
		}
	}
	for n, terms := range e.Outputs {
		if len(terms) == 0 {
			return fmt.Errorf("rb: monomial expansion output %d has no terms", n)
		}
		for q, t := range terms {
			if err := check(fmt.Sprintf("output %d", n), q, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *MonomialExpansion) QA() int        { return len(e.A) }
func (e *MonomialExpansion) QF() int        { return len(e.F) }
func (e *MonomialExpansion) NbOutputs() int { return len(e.Outputs) }

func (e *MonomialExpansion) QL(n int) int { return len(e.Outputs[n]) }

func (e *MonomialExpansion) ThetaA(q int, mu param.Vector) float64 { return e.A[q].Eval(mu) }
func (e *MonomialExpansion) ThetaF(q int, mu param.Vector) float64 { return e.F[q].Eval(mu) }

func (e *MonomialExpansion) ThetaOutput(n, q int, mu param.Vector) float64 {
	return e.Outputs[n][q].Eval(mu)
}
