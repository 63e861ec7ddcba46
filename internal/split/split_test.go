package split

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInt32(t *testing.T) {
	tests := []struct {
		name     string
		lo, hi   int32
		aLo, aHi int32
		bLo, bHi int32
	}{
		{name: "two values", lo: 0, hi: 1, aLo: 0, aHi: 0, bLo: 1, bHi: 1},
		{name: "even span", lo: 0, hi: 7, aLo: 0, aHi: 3, bLo: 4, bHi: 7},
		{name: "negative", lo: -8, hi: -1, aLo: -8, aHi: -5, bLo: -4, bHi: -1},
		{name: "odd span", lo: 0, hi: 2, aLo: 0, aHi: 1, bLo: 2, bHi: 2},
		{
			name: "full range",
			lo:   math.MinInt32,
			hi:   math.MaxInt32,
			aLo:  math.MinInt32,
			aHi:  -1,
			bLo:  0,
			bHi:  math.MaxInt32,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			aLo, aHi, bLo, bHi := Int32(test.lo, test.hi)
			require.Equal(t, test.aLo, aLo)
			require.Equal(t, test.aHi, aHi)
			require.Equal(t, test.bLo, bLo)
			require.Equal(t, test.bHi, bHi)
		})
	}
}

func TestInt32Coverage(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		lo := rnd.Int31n(1<<20) - 1<<19
		hi := lo + 1 + rnd.Int31n(1<<10)

		aLo, aHi, bLo, bHi := Int32(lo, hi)
		require.Equal(t, lo, aLo)
		require.Equal(t, aHi+1, bLo)
		require.Equal(t, hi, bHi)
		require.LessOrEqual(t, aLo, aHi)
		require.LessOrEqual(t, bLo, bHi)
	}
}

func TestFloat32(t *testing.T) {
	aLo, aHi, bLo, bHi := Float32(0, 2)
	require.Equal(t, float32(0), aLo)
	require.Equal(t, math.Nextafter32(1, 0), aHi)
	require.Equal(t, float32(1), bLo)
	require.Equal(t, float32(2), bHi)
	require.Less(t, aHi, bLo)
}

func TestFloat64Coverage(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		lo := rnd.Float64()*1000 - 500
		hi := lo + 2 + rnd.Float64()*100

		aLo, aHi, bLo, bHi := Float64(lo, hi)
		require.Equal(t, lo, aLo)
		require.Equal(t, hi, bHi)
		require.Less(t, aHi, bLo)
		require.Equal(t, bLo, math.Nextafter(aHi, math.Inf(1)))
	}
}

func TestInterval(t *testing.T) {
	aLo, aHi, bLo, bHi := Interval[int32](10, 13)
	require.Equal(t, []int32{10, 11, 12, 13}, []int32{aLo, aHi, bLo, bHi})

	fLo, fHi, gLo, gHi := Interval[float64](0, 4)
	require.Equal(t, 0.0, fLo)
	require.Equal(t, math.Nextafter(2, 0), fHi)
	require.Equal(t, 2.0, gLo)
	require.Equal(t, 4.0, gHi)
}

func TestSpan(t *testing.T) {
	require.Equal(t, 8.0, Span[int32](0, 7))
	require.Equal(t, 1.0, Span[int32](3, 3))
	require.Equal(t, float64(math.MaxUint32)+1, Span[int32](math.MinInt32, math.MaxInt32))
	require.Equal(t, 8.0, Span[float32](0, 8))
}

func TestExtent(t *testing.T) {
	require.Equal(t, 8.0, Extent[int32](0, 7))

	aLo, aHi, bLo, bHi := Float64(0, 128)
	require.Equal(t, 64.0, Extent(aLo, aHi))
	require.Greater(t, Extent(bLo, bHi), 64.0)
	require.Less(t, Extent(bLo, bHi), 64.0+1e-9)

	fLo, fHi, _, _ := Float32(0, 2)
	require.Equal(t, 1.0, Extent(fLo, fHi))
}

func TestHalvable(t *testing.T) {
	tests := []struct {
		name   string
		halves bool
		check  func() bool
	}{
		{name: "int32 two values", halves: true, check: func() bool { return Halvable[int32](0, 1) }},
		{name: "int32 single value", halves: false, check: func() bool { return Halvable[int32](3, 3) }},
		{name: "float32 small", halves: true, check: func() bool { return Halvable[float32](0, 2) }},
		{name: "float32 midpoint rounding onto lower bound", halves: false, check: func() bool { return Halvable[float32](3e7, 30000002) }},
		{name: "float32 zero width", halves: false, check: func() bool { return Halvable[float32](1e8, 1e8) }},
		{name: "float64 small", halves: true, check: func() bool { return Halvable[float64](-1, 1) }},
		{name: "float64 midpoint rounding onto lower bound", halves: false, check: func() bool { return Halvable[float64](1e16, 10000000000000002) }},
		{name: "float64 four ulps", halves: true, check: func() bool { return Halvable[float64](1e16, 10000000000000008) }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.halves, test.check())
		})
	}
}

func TestHalvableChildrenShrink(t *testing.T) {
	lo, hi := float32(3e7), float32(3e7+64)
	for Halvable(lo, hi) {
		aLo, aHi, bLo, bHi := Float32(lo, hi)
		require.LessOrEqual(t, aLo, aHi)
		require.LessOrEqual(t, bLo, bHi)
		require.Less(t, bHi-bLo, hi-lo)
		lo, hi = bLo, bHi
	}
	require.Less(t, hi-lo, float32(64))
}
