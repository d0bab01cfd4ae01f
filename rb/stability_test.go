package rb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frombs/rbeval/param"
)

func TestMinThetaBound(t *testing.T) {
	one := func(param.Vector) float64 { return 1 }
	exp := &FuncExpansion{
		A: []ThetaFunc{one, func(mu param.Vector) float64 { return mu[0] }},
		F: []ThetaFunc{one},
	}
	b := &MinThetaBound{Expansion: exp, MuBar: param.Vector{1}, AlphaBar: 2}

	lb, err := b.LowerBound(param.Vector{0.5})
	require.NoError(t, err)
	assert.Equal(t, 1.0, lb) // 2 * min(1, 0.5)

	lb, err = b.LowerBound(param.Vector{3})
	require.NoError(t, err)
	assert.Equal(t, 2.0, lb) // ratio capped by the constant term

	_, err = b.LowerBound(param.Vector{-1})
	require.ErrorIs(t, err, ErrNoStabilityBound)
}

func TestMinThetaBoundMisconfigured(t *testing.T) {
	_, err := (&MinThetaBound{}).LowerBound(param.Vector{1})
	require.ErrorIs(t, err, ErrNoStabilityBound)

	one := func(param.Vector) float64 { return 1 }
	b := &MinThetaBound{
		Expansion: &FuncExpansion{A: []ThetaFunc{one}, F: []ThetaFunc{one}},
		MuBar:     param.Vector{1},
	}
	_, err = b.LowerBound(param.Vector{1}) // AlphaBar unset
	require.ErrorIs(t, err, ErrNoStabilityBound)
}

func TestScalingFuncs(t *testing.T) {
	assert.Equal(t, 0.5, ScaleLinear(0.5))
	assert.Equal(t, 0.25, ScaleSquared(0.5))
}

func TestBoundFuncAdapter(t *testing.T) {
	b := BoundFunc(func(mu param.Vector) (float64, error) { return mu[0] * 2, nil })
	lb, err := b.LowerBound(param.Vector{3})
	require.NoError(t, err)
	assert.Equal(t, 6.0, lb)
}
