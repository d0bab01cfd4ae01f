// Copyright 2026 The rbeval authors
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/frombs/rbeval/param"
	"github.com/frombs/rbeval/rb"
)

var solveCmd = &cobra.Command{
	Use:   "solve [data-dir]",
	Short: "run certified online solves over a parameter sweep",
	Long: `Loads an offline data snapshot, builds the affine expansion and the
min-theta stability lower bound from the model configuration file, and runs
an online solve at every parameter of the sweep, printing outputs and
certified error bounds.`,
	Args: cobra.ExactArgs(1),
	RunE: runSolve,
}

var (
	fConfigPath string
	fBasisSize  int
	fNbTasks    int
	fOutput     string
)

func init() {
	rootCmd.AddCommand(solveCmd)
	solveCmd.Flags().StringVar(&fConfigPath, "config", "", "model configuration file (YAML)")
	solveCmd.Flags().IntVar(&fBasisSize, "n", 0, "reduced basis size; 0 uses all available basis functions")
	solveCmd.Flags().IntVar(&fNbTasks, "tasks", 0, "number of parallel solves; 0 uses all CPUs")
	solveCmd.Flags().StringVar(&fOutput, "output", "table", "result format: table or json")
	_ = solveCmd.MarkFlagRequired("config")
}

// modelConfig is the YAML description of a parametrized model: the domain,
// the polynomial theta expansion, the stability bound reference and the
// sweep to evaluate.
type modelConfig struct {
	Domain struct {
		Min []float64 `yaml:"min"`
		Max []float64 `yaml:"max"`
	} `yaml:"domain"`
	Expansion rb.MonomialExpansion `yaml:"expansion"`
	Stability struct {
		MuBar []float64 `yaml:"muBar"`
		Alpha float64   `yaml:"alpha"`
	} `yaml:"stability"`
	Scaling string `yaml:"scaling"` // "linear" (default) or "squared"
	Sweep   struct {
		Grid []int       `yaml:"grid"`
		Mus  [][]float64 `yaml:"mus"`
	} `yaml:"sweep"`
}

func loadModelConfig(path string) (*modelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model config: %w", err)
	}
	var cfg modelConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse model config %s: %w", path, err)
	}
	dom := param.Domain{Min: cfg.Domain.Min, Max: cfg.Domain.Max}
	if err := dom.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Expansion.Validate(dom.Dim()); err != nil {
		return nil, err
	}
	switch cfg.Scaling {
	case "", "linear", "squared":
	default:
		return nil, fmt.Errorf("unknown scaling %q (want linear or squared)", cfg.Scaling)
	}
	if len(cfg.Sweep.Grid) == 0 && len(cfg.Sweep.Mus) == 0 {
		return nil, fmt.Errorf("model config %s: sweep has neither a grid nor explicit parameters", path)
	}
	return &cfg, nil
}

func (cfg *modelConfig) domain() param.Domain {
	return param.Domain{Min: cfg.Domain.Min, Max: cfg.Domain.Max}
}

func (cfg *modelConfig) scaling() rb.ScalingFunc {
	if cfg.Scaling == "squared" {
		return rb.ScaleSquared
	}
	return rb.ScaleLinear
}

func (cfg *modelConfig) sweepParameters() ([]param.Vector, error) {
	dom := cfg.domain()
	if len(cfg.Sweep.Mus) > 0 {
		mus := make([]param.Vector, len(cfg.Sweep.Mus))
		for i, mu := range cfg.Sweep.Mus {
			mus[i] = param.Vector(mu)
			if !dom.Contains(mus[i]) {
				return nil, fmt.Errorf("sweep parameter %d (%s) outside the domain", i, mus[i])
			}
		}
		return mus, nil
	}
	return dom.Grid(cfg.Sweep.Grid)
}

func runSolve(cmd *cobra.Command, args []string) error {
	if fOutput != "table" && fOutput != "json" {
		return fmt.Errorf("unknown output format %q (want table or json)", fOutput)
	}
	cfg, err := loadModelConfig(fConfigPath)
	if err != nil {
		return err
	}

	opts := []rb.Option{
		rb.WithScaling(cfg.scaling()),
		rb.WithStabilityBound(&rb.MinThetaBound{
			Expansion: &cfg.Expansion,
			MuBar:     cfg.Stability.MuBar,
			AlphaBar:  cfg.Stability.Alpha,
		}),
	}
	e, err := rb.New(opts...)
	if err != nil {
		return err
	}
	e.SetThetaExpansion(&cfg.Expansion)
	if err := e.ReadOfflineData(args[0]); err != nil {
		return err
	}

	n := fBasisSize
	if n == 0 {
		n = e.NbBasisFunctions()
	}
	mus, err := cfg.sweepParameters()
	if err != nil {
		return err
	}

	var sweepOpts []rb.SweepOption
	if fNbTasks > 0 {
		sweepOpts = append(sweepOpts, rb.WithNbTasks(fNbTasks))
	}
	results, err := e.Sweep(n, mus, sweepOpts...)
	if err != nil {
		return err
	}

	if fOutput == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "mu\tbound\toutputs\toutput bounds")
	for _, res := range results {
		fmt.Fprintf(w, "%s\t%.6e\t%v\t%v\n", res.Mu, res.Bound, res.Outputs, res.OutputBounds)
	}
	return w.Flush()
}
