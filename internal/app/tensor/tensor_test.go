package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/zmt/internal/domain"
)

func meas(f, mag, phz, pct float64) domain.FrequencyMeasurement {
	return domain.FrequencyMeasurement{Frequency: f, Magnitude: mag, Phase: phz, PercentError: pct}
}

func TestAssemble_ReversedCrossTermIsNegated(t *testing.T) {
	z, _ := Assemble(Batch{
		domain.TagZyx: {meas(10, 100, 0, 2)},
		domain.TagZxy: {meas(10, 100, 0, 2)},
	})
	require.Equal(t, 1, z.Len())
	assert.Equal(t, complex(-100, 0), z.At(0, 1, 0))
	assert.Equal(t, complex(100, 0), z.At(0, 0, 1))
	assert.InDelta(t, 0.01, z.ErrAt(0, 1, 0), 1e-12)
}

func TestToComplex_RoundTripMagnitude(t *testing.T) {
	for _, phz := range []float64{0, 250, 785, 1500, 3000, -700, 4000, 12345} {
		v := ToComplex(7.5, phz)
		assert.InDelta(t, 7.5, math.Hypot(real(v), imag(v)), 1e-9, "phase=%v", phz)
		assert.GreaterOrEqual(t, imag(v), 0.0, "折叠后相位应在 [0, π)")
	}
}

func TestToComplex_NegativePhaseFloorMod(t *testing.T) {
	// -1 rad 折叠到 π-1
	v := ToComplex(1, -1000)
	assert.InDelta(t, math.Cos(math.Pi-1), real(v), 1e-12)
	assert.InDelta(t, math.Sin(math.Pi-1), imag(v), 1e-12)
}

func TestAssembler_GrowthPreservesPriorValues(t *testing.T) {
	a := New()
	a.Add(Batch{domain.TagZxy: {meas(1, 10, 100, 1), meas(2, 20, 200, 1)}})
	before, _ := a.Result()
	require.Equal(t, 2, before.Len())

	a.Add(Batch{domain.TagZyx: {meas(1, 5, 0, 1), meas(2, 5, 0, 1), meas(4, 5, 0, 1)}})
	after, _ := a.Result()

	require.Equal(t, 3, after.Len())
	assert.Equal(t, []float64{1, 2, 4}, after.Freq)
	for k := 0; k < 2; k++ {
		assert.Equal(t, before.At(k, 0, 1), after.At(k, 0, 1))
		assert.Equal(t, before.ErrAt(k, 0, 1), after.ErrAt(k, 0, 1))
	}
	assert.Equal(t, complex128(0), after.At(2, 0, 1))
	assert.Equal(t, complex(-5, 0), after.At(2, 1, 0))
}

func TestAssembler_SameRoundedFrequencySharesIndex(t *testing.T) {
	z, _ := Assemble(
		Batch{domain.TagZxx: {meas(0.123456, 1, 0, 0)}},
		Batch{domain.TagZyy: {meas(0.1234567, 2, 0, 0)}},
	)
	require.Equal(t, 1, z.Len())
	assert.Equal(t, complex(1, 0), z.At(0, 0, 0))
	assert.Equal(t, complex(2, 0), z.At(0, 1, 1))
}

func TestAssemble_SeedIsComponentWithMostFrequencies(t *testing.T) {
	z, _ := Assemble(Batch{
		domain.TagZxx: {meas(8, 1, 0, 0)},
		domain.TagZxy: {meas(1, 1, 0, 0), meas(2, 1, 0, 0), meas(0, 0, 0, 0), meas(8, 1, 0, 0)},
	})
	assert.Equal(t, []float64{1, 2, 8}, z.Freq)
}

func TestAssemble_TipperMeanOfEqualContributions(t *testing.T) {
	one := Batch{domain.TagTzx: {meas(16, 0.3, 500, 4)}, domain.TagTzy: {meas(16, 0.2, 100, 4)}}
	_, single := Assemble(one)
	_, merged := Assemble(one, one)

	require.Equal(t, single.Len(), merged.Len())
	for j := 0; j < 2; j++ {
		assert.InDelta(t, real(single.At(0, 0, j)), real(merged.At(0, 0, j)), 1e-12)
		assert.InDelta(t, imag(single.At(0, 0, j)), imag(merged.At(0, 0, j)), 1e-12)
		assert.InDelta(t, single.ErrAt(0, 0, j), merged.ErrAt(0, 0, j), 1e-12)
	}
	assert.InDelta(t, 4*0.05*0.3, single.ErrAt(0, 0, 0), 1e-12)
}

func TestAssemble_TipperMeanOnlyWhereContributed(t *testing.T) {
	_, tip := Assemble(
		Batch{domain.TagTzx: {meas(1, 1, 0, 0), meas(2, 1, 0, 0)}},
		Batch{domain.TagTzx: {meas(2, 3, 0, 0)}},
	)
	assert.Equal(t, complex(1, 0), tip.At(0, 0, 0))
	assert.Equal(t, complex(2, 0), tip.At(1, 0, 0))
}

func TestAssemble_TipperRepeatedRowsCountOncePerFile(t *testing.T) {
	// 第一个文件重复给出同一频点的 tzx 行，仍只算一个文件的贡献
	repeated := Batch{domain.TagTzx: {meas(16, 1, 0, 2), meas(16, 1, 0, 2)}}
	other := Batch{domain.TagTzx: {meas(16, 3, 0, 2)}}

	_, tip := Assemble(repeated, other)
	require.Equal(t, 1, tip.Len())
	assert.InDelta(t, 2, real(tip.At(0, 0, 0)), 1e-12)
	assert.InDelta(t, (2*0.05*1+2*0.05*3)/2, tip.ErrAt(0, 0, 0), 1e-12)

	_, alone := Assemble(repeated)
	assert.InDelta(t, 1, real(alone.At(0, 0, 0)), 1e-12)
}

func TestAssemble_EmptyComponentStaysZero(t *testing.T) {
	z, tip := Assemble(Batch{
		domain.TagZxy: {meas(1, 1, 0, 0)},
		domain.TagZyx: nil,
	})
	assert.Equal(t, complex128(0), z.At(0, 1, 0))
	assert.Equal(t, 0, tip.Len())
}

func TestAssemble_NaNNormalizedToZero(t *testing.T) {
	z, _ := Assemble(Batch{domain.TagZxx: {meas(1, math.NaN(), 0, math.Inf(1))}})
	assert.Equal(t, complex128(0), z.At(0, 0, 0))
	assert.Equal(t, 0.0, z.ErrAt(0, 0, 0))
}
