// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

//go:build !debug

// Package debug toggles extra runtime checks via the "debug" build tag.
package debug

const Debug = false
