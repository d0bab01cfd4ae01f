// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package main

import "github.com/frombs/rbeval/cmd"

func main() {
	cmd.Execute()
}
