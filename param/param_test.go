package param

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainValidate(t *testing.T) {
	assert.NoError(t, Domain{Min: Vector{0, 0}, Max: Vector{1, 2}}.Validate())
	assert.Error(t, Domain{Min: Vector{0}, Max: Vector{1, 2}}.Validate())
	assert.Error(t, Domain{Min: Vector{3}, Max: Vector{1}}.Validate())
	assert.Error(t, Domain{}.Validate())
}

func TestDomainContains(t *testing.T) {
	d := Domain{Min: Vector{0, -1}, Max: Vector{1, 1}}
	assert.True(t, d.Contains(Vector{0.5, 0}))
	assert.True(t, d.Contains(Vector{0, -1}))
	assert.False(t, d.Contains(Vector{1.5, 0}))
	assert.False(t, d.Contains(Vector{0.5}))
}

func TestDomainGrid(t *testing.T) {
	d := Domain{Min: Vector{0, 10}, Max: Vector{1, 10}}
	grid, err := d.Grid([]int{3, 1})
	require.NoError(t, err)
	require.Len(t, grid, 3)
	assert.Equal(t, Vector{0, 10}, grid[0])
	assert.Equal(t, Vector{0.5, 10}, grid[1])
	assert.Equal(t, Vector{1, 10}, grid[2])

	_, err = d.Grid([]int{3})
	assert.Error(t, err)
	_, err = d.Grid([]int{3, 0})
	assert.Error(t, err)
}

func TestState(t *testing.T) {
	s, err := NewState(Domain{Min: Vector{0}, Max: Vector{1}})
	require.NoError(t, err)
	assert.Nil(t, s.Current())

	require.NoError(t, s.Set(Vector{0.25}))
	assert.Equal(t, Vector{0.25}, s.Current())

	assert.Error(t, s.Set(Vector{2}))
	// rejected value must not clobber the current one
	assert.Equal(t, Vector{0.25}, s.Current())
}

func TestVectorClone(t *testing.T) {
	v := Vector{1, 2}
	c := v.Clone()
	c[0] = 7
	assert.Equal(t, Vector{1, 2}, v)
	assert.True(t, v.EqualWithin(Vector{1, 2 + 1e-12}, 1e-9))
	assert.False(t, v.EqualWithin(Vector{1, 3}, 1e-9))
}
