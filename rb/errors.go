// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package rb

import "errors"

var (
	// ErrNotInitialized is returned when an online operation is attempted
	// before a theta expansion has been set.
	ErrNotInitialized = errors.New("rb: theta expansion not initialized")

	// ErrInvalidSize is returned when a requested reduced basis size N is
	// outside [0, current basis size].
	ErrInvalidSize = errors.New("rb: invalid reduced basis size")

	// ErrSingular is returned when the reduced dense system is singular or
	// too ill-conditioned to solve reliably.
	ErrSingular = errors.New("rb: singular or ill-conditioned reduced system")

	// ErrOutOfRange is returned on out-of-bounds basis function access.
	ErrOutOfRange = errors.New("rb: basis function index out of range")

	// ErrCorruptData is returned when persisted offline data is inconsistent
	// or unreadable.
	ErrCorruptData = errors.New("rb: corrupt offline data")

	// ErrNoStabilityBound is returned when an error bound is requested but no
	// usable stability lower bound is available at the current parameter.
	ErrNoStabilityBound = errors.New("rb: no stability lower bound available")
)
