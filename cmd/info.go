// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frombs/rbeval/rb"
)

var infoCmd = &cobra.Command{
	Use:   "info [data-dir]",
	Short: "print the metadata of an offline data snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	info, err := rb.ReadSnapshotInfo(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "schema version:      %d (%s)\n", info.Version, info.Extension)
	fmt.Fprintf(out, "basis functions:     %d (capacity %d)\n", info.N, info.NMax)
	fmt.Fprintf(out, "affine terms:        QA=%d QF=%d\n", info.QA, info.QF)
	fmt.Fprintf(out, "outputs:             %d QL=%v\n", len(info.QL), info.QL)
	fmt.Fprintf(out, "parameter dimension: %d\n", info.ParamDim)
	fmt.Fprintf(out, "inner product:       %v\n", info.HasInnerProduct)
	fmt.Fprintf(out, "greedy parameters:   %v\n", info.HasGreedyParams)
	fmt.Fprintf(out, "representor norms:   %v\n", info.HasRepresentorNorms)
	fmt.Fprintf(out, "output dual norms:   %v\n", info.HasOutputDualNorms)
	return nil
}
