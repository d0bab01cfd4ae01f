// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

// Package cmd is the CLI for inspecting reduced basis offline data and
// running certified online parameter sweeps.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/frombs/rbeval"
)

var rootCmd = &cobra.Command{
	Use:     "rbeval",
	Short:   "certified reduced basis online evaluation",
	Version: rbeval.Version.String(),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
