// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

// Package rbeval implements the online stage of a certified reduced basis (RB)
// method for affinely parametrized PDEs.
//
// Given the dense operators and residual representor norms produced by an
// offline training stage, the engine solves the N x N reduced system at a new
// parameter value, evaluates scalar outputs and computes a rigorous
// a-posteriori error bound, at a cost independent of the full-order
// discretization size.
//
// The core lives in package rb; parameter vectors and domains in package
// param.
package rbeval

import (
	"github.com/blang/semver/v4"
)

// Version of the rbeval library.
var Version = semver.MustParse("0.1.0")
