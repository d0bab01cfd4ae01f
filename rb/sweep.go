// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package rb

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/frombs/rbeval/param"
)

// Result is the outcome of one online solve within a Sweep.
type Result struct {
	Mu           param.Vector
	N            int
	Bound        float64
	Solution     []float64
	Outputs      []float64
	OutputBounds []float64
}

// SweepOption configures a Sweep call.
type SweepOption func(*sweepConfig) error

type sweepConfig struct {
	nbTasks int
}

// WithNbTasks sets the number of parallel workers used by Sweep. Defaults
// to runtime.NumCPU().
func WithNbTasks(nbTasks int) SweepOption {
	return func(cfg *sweepConfig) error {
		if nbTasks <= 0 {
			return fmt.Errorf("rb: invalid number of tasks: %d", nbTasks)
		}
		cfg.nbTasks = nbTasks
		return nil
	}
}

// Sweep runs independent online solves at every parameter in mus, all with
// basis size N. The operator tensors are shared read-only across workers;
// each worker owns its solution-state buffers, so no locking is needed.
// Results are returned in the order of mus. The first failing solve aborts
// the sweep.
func (e *Evaluation) Sweep(N int, mus []param.Vector, opts ...SweepOption) ([]Result, error) {
	cfg := sweepConfig{nbTasks: runtime.NumCPU()}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	results := make([]Result, len(mus))
	var g errgroup.Group
	g.SetLimit(cfg.nbTasks)
	for i, mu := range mus {
		i, mu := i, mu
		g.Go(func() error {
			w := e.cloneShared()
			bound, err := w.Solve(N, mu)
			if err != nil {
				return fmt.Errorf("rb: sweep at mu=%s: %w", mu, err)
			}
			results[i] = Result{
				Mu:           mu.Clone(),
				N:            N,
				Bound:        bound,
				Solution:     vecSlice(w.solution),
				Outputs:      w.outputs,
				OutputBounds: w.outputBounds,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// cloneShared returns an evaluation sharing all read-only operator data
// with e but owning fresh solution-state buffers.
func (e *Evaluation) cloneShared() *Evaluation {
	c := *e
	c.solution = nil
	c.outputs = nil
	c.outputBounds = nil
	return &c
}

func vecSlice(v *mat.VecDense) []float64 {
	if v == nil {
		return nil
	}
	s := make([]float64, v.Len())
	for i := range s {
		s[i] = v.AtVec(i)
	}
	return s
}
