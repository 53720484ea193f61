package eeg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShapeUsesFirstSegment(t *testing.T) {
	e := Epochs{
		{{1, 2, 3}, {4, 5, 6}},
		{{1, 2}},
	}
	c, s := e.Shape()
	require.Equal(t, 2, c)
	require.Equal(t, 3, s)
	require.Error(t, e.CheckUniform())

	c, s = Epochs{}.Shape()
	require.Zero(t, c)
	require.Zero(t, s)
}

func TestConvert1DFlatten(t *testing.T) {
	flat := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	e := Convert1D(flat, 2, 3, 2)
	require.Len(t, e, 2)
	require.Equal(t, []float32{2, 3}, e[0][1])
	require.Equal(t, []float32{10, 11}, e[1][2])
	require.NoError(t, e.CheckUniform())
	require.Equal(t, []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, e.Flatten())
}

func TestClasses(t *testing.T) {
	require.Equal(t, []int{0, 1, 3}, Classes([]int{3, 1, 1, 0, 3}))
	require.Empty(t, Classes(nil))
}
