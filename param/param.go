// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

// Package param defines parameter vectors and parameter domains for
// parametrized reduced basis models.
package param

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Vector is a parameter value mu in R^p.
type Vector []float64

// Clone returns a deep copy of v.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

// EqualWithin reports whether v and o have the same dimension and
// component-wise |v_i - o_i| <= tol.
func (v Vector) EqualWithin(o Vector, tol float64) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if math.Abs(v[i]-o[i]) > tol {
			return false
		}
	}
	return true
}

func (v Vector) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}

// Domain is a box-constrained parameter domain [Min_i, Max_i]^p.
type Domain struct {
	Min Vector
	Max Vector
}

// Dim returns the parameter dimension p.
func (d Domain) Dim() int { return len(d.Min) }

// Validate checks that the bounds are consistent.
func (d Domain) Validate() error {
	if len(d.Min) != len(d.Max) {
		return fmt.Errorf("param: domain bounds dimension mismatch: min has %d components, max has %d", len(d.Min), len(d.Max))
	}
	if len(d.Min) == 0 {
		return errors.New("param: empty domain")
	}
	for i := range d.Min {
		if d.Min[i] > d.Max[i] {
			return fmt.Errorf("param: domain component %d: min %g > max %g", i, d.Min[i], d.Max[i])
		}
	}
	return nil
}

// Contains reports whether mu lies inside the domain.
func (d Domain) Contains(mu Vector) bool {
	if len(mu) != d.Dim() {
		return false
	}
	for i := range mu {
		if mu[i] < d.Min[i] || mu[i] > d.Max[i] {
			return false
		}
	}
	return true
}

// Grid returns a tensor-product grid over the domain with points[i] equally
// spaced values in dimension i. A dimension with a single point uses the
// midpoint of its range.
func (d Domain) Grid(points []int) ([]Vector, error) {
	if len(points) != d.Dim() {
		return nil, fmt.Errorf("param: grid has %d dimensions, domain has %d", len(points), d.Dim())
	}
	total := 1
	for i, n := range points {
		if n <= 0 {
			return nil, fmt.Errorf("param: grid dimension %d: nonpositive point count %d", i, n)
		}
		total *= n
	}
	grid := make([]Vector, 0, total)
	mu := make(Vector, d.Dim())
	var rec func(dim int)
	rec = func(dim int) {
		if dim == d.Dim() {
			grid = append(grid, mu.Clone())
			return
		}
		n := points[dim]
		for k := 0; k < n; k++ {
			if n == 1 {
				mu[dim] = 0.5 * (d.Min[dim] + d.Max[dim])
			} else {
				mu[dim] = d.Min[dim] + float64(k)*(d.Max[dim]-d.Min[dim])/float64(n-1)
			}
			rec(dim + 1)
		}
	}
	rec(0)
	return grid, nil
}

// State holds the current parameter value of an evaluation, validated
// against a domain.
type State struct {
	domain  Domain
	current Vector
}

// NewState returns a State over domain d, initially unset.
func NewState(d Domain) (*State, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &State{domain: d}, nil
}

// Set updates the current parameter. The value is rejected if it falls
// outside the domain.
func (s *State) Set(mu Vector) error {
	if !s.domain.Contains(mu) {
		return fmt.Errorf("param: value %s outside domain [%s, %s]", mu, s.domain.Min, s.domain.Max)
	}
	s.current = mu.Clone()
	return nil
}

// Current returns the current parameter, or nil if none was set.
func (s *State) Current() Vector { return s.current }

// Domain returns the domain the state validates against.
func (s *State) Domain() Domain { return s.domain }
