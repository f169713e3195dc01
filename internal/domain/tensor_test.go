package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplexTensor_GrowPreservesEntries(t *testing.T) {
	z := NewComplexTensor(2, 2, 2)
	z.Freq[0], z.Freq[1] = 10, 20
	z.Set(0, 0, 1, complex(1, 2))
	z.Set(1, 1, 0, complex(-3, 4))
	z.SetErr(1, 1, 0, 0.5)

	z.Grow(3)

	require.Equal(t, 3, z.Len())
	assert.Equal(t, []float64{10, 20, 0}, z.Freq)
	assert.Equal(t, complex(1, 2), z.At(0, 0, 1))
	assert.Equal(t, complex(-3, 4), z.At(1, 1, 0))
	assert.Equal(t, 0.5, z.ErrAt(1, 1, 0))
	assert.Equal(t, complex(0, 0), z.At(2, 1, 1))
}

func TestComplexTensor_GrowNeverTruncates(t *testing.T) {
	z := NewComplexTensor(1, 2, 3)
	z.Set(2, 0, 1, complex(7, 7))

	z.Grow(1)

	require.Equal(t, 3, z.Len())
	assert.Equal(t, complex(7, 7), z.At(2, 0, 1))
}

func TestComplexTensor_Normalize(t *testing.T) {
	z := NewComplexTensor(1, 2, 1)
	z.Set(0, 0, 0, complex(math.NaN(), 1))
	z.Set(0, 0, 1, complex(math.Inf(1), math.NaN()))
	z.SetErr(0, 0, 0, math.NaN())

	z.Normalize()

	assert.Equal(t, complex(0, 1), z.At(0, 0, 0))
	assert.Equal(t, complex(0, 0), z.At(0, 0, 1))
	assert.Equal(t, 0.0, z.ErrAt(0, 0, 0))
}
