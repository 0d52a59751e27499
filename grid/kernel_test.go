package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sumDeltas folds deltas into a map keyed by offset.
func sumDeltas(ds []Delta) map[[2]int]float64 {
	out := make(map[[2]int]float64)
	for _, d := range ds {
		out[[2]int{d.DCol, d.DRow}] += d.Value
	}
	return out
}

func TestOrientationFor(t *testing.T) {
	tests := []struct {
		heading float64
		want    Orientation
	}{
		{0, Axial},
		{45, Axial},
		{46, Lateral},
		{90, Lateral},
		{134.9, Lateral},
		{135, Axial},
		{180, Axial},
		{-45, Axial},
		{-90, Lateral},
		{-135, Axial},
		{-180, Axial},
		{270, Axial},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OrientationFor(tt.heading), "heading %v", tt.heading)
	}
}

func TestLandmarkKernel_Axial(t *testing.T) {
	k := LandmarkKernel{}
	ds := k.Deltas(0)
	require.Len(t, ds, 1+5*17)

	sum := sumDeltas(ds)
	assert.InDelta(t, 1.3, sum[[2]int{0, 0}], 1e-9)
	assert.InDelta(t, 0.8, sum[[2]int{0, 8}], 1e-9)
	assert.InDelta(t, 0.8, sum[[2]int{2, -8}], 1e-9)
	assert.InDelta(t, 0.8, sum[[2]int{2, 5}], 1e-9, "far corner still gets the near weight")
	_, ok := sum[[2]int{3, 0}]
	assert.False(t, ok, "axial footprint is 5 columns wide")
	_, ok = sum[[2]int{0, 9}]
	assert.False(t, ok, "axial footprint is 17 rows tall")
}

func TestLandmarkKernel_Lateral(t *testing.T) {
	sum := sumDeltas(LandmarkKernel{}.Deltas(90))
	assert.InDelta(t, 1.3, sum[[2]int{0, 0}], 1e-9)
	assert.InDelta(t, 0.8, sum[[2]int{8, 0}], 1e-9)
	assert.InDelta(t, 0.8, sum[[2]int{-8, 2}], 1e-9)
	_, ok := sum[[2]int{0, 3}]
	assert.False(t, ok, "lateral footprint is 5 rows tall")
}

func TestLandmarkKernel_RadiusBound(t *testing.T) {
	k := LandmarkKernel{}
	for _, h := range []float64{0, 90, -90, 180} {
		for _, d := range k.Deltas(h) {
			if abs(d.DCol) > k.Radius() || abs(d.DRow) > k.Radius() {
				t.Fatalf("heading %v: delta %+v exceeds radius %d", h, d, k.Radius())
			}
		}
	}
}

func TestLocationKernel(t *testing.T) {
	k := LocationKernel{}
	ds := k.Deltas(123)
	require.Len(t, ds, 1+11*11)

	sum := sumDeltas(ds)
	tests := []struct {
		col, row int
		want     float64
	}{
		{0, 0, -1.0},
		{1, 0, -0.5},
		{-5, -5, -0.5},
		{3, 5, -0.5},
		{5, 3, -0.5},
		{4, 4, -0.2},
		{5, 5, -0.2},
		{4, 5, -0.2},
		{5, 4, -0.2},
		{-4, 5, -0.5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, sum[[2]int{tt.col, tt.row}], 1e-9, "offset (%d,%d)", tt.col, tt.row)
	}
	_, ok := sum[[2]int{6, 0}]
	assert.False(t, ok)
}

func TestLocationKernel_IgnoresHeading(t *testing.T) {
	k := LocationKernel{}
	assert.Equal(t, k.Deltas(0), k.Deltas(90))
}

func TestKernelSet_For(t *testing.T) {
	ks := DefaultKernels()
	assert.IsType(t, LandmarkKernel{}, ks.For(Observation{Value: 1}))
	assert.IsType(t, LocationKernel{}, ks.For(Observation{Value: 0}))
	assert.Equal(t, 10, ks.Margin())
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
