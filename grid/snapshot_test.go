package grid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_RejectsBadInput(t *testing.T) {
	_, err := Build(Store{{0, 0, 0, 0}}, 0, DefaultKernels())
	assert.Error(t, err)

	_, err = Build(Store{{0, 0, 0, 0.3}}, 20, DefaultKernels())
	assert.Error(t, err)
}

func TestBuild_RejectsOversizedExtent(t *testing.T) {
	tests := []struct {
		name  string
		store Store
		r     int
	}{
		{"wide", Store{{-2e9, 0, 0, 0}, {2e9, 0, 0, 0}}, 20},
		{"tall", Store{{0, 0, 0, 1}, {0, 5e8, 90, 1}}, 20},
		{"area", Store{{0, 0, 0, 0}, {1e5, 1e5, 0, 0}}, 20},
		{"fine resolution", Store{{0, 0, 0, 0}, {1e6, 0, 0, 0}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.store, tt.r, DefaultKernels())
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "err = %v", err)
			assert.Equal(t, "grid size", ve.Field)
		})
	}
}

func TestSnapshot_CountsAndStats(t *testing.T) {
	s, err := Build(Store{{0, 0, 0, 1}}, 20, DefaultKernels())
	require.NoError(t, err)

	cc := s.Counts()
	assert.Equal(t, 1, cc.Occupied)
	assert.Equal(t, 5*17-1, cc.LikelyOccupied)
	assert.Equal(t, 0, cc.Uncertain)
	assert.Equal(t, 400-85, cc.Free)

	st := s.Stats()
	assert.InDelta(t, 1.3, st.Max, 1e-9)
	assert.Equal(t, 0.0, st.Min)
	assert.Equal(t, 85, st.Touched)
	assert.InDelta(t, 85.0/400, st.OccupiedRatio, 1e-9)
	assert.InDelta(t, (0.8*85+0.5)/400, st.Mean, 1e-9)
}

func TestSnapshot_CellToWorld(t *testing.T) {
	s, err := Build(Store{{X: -40, Y: 60, Value: 0}}, 20, DefaultKernels())
	require.NoError(t, err)

	// Quantized (-2, 3) sits at (Margin, Margin+3) because MinY is 0.
	col, row, ok := s.WorldToCell(-40, 60)
	require.True(t, ok)
	assert.Equal(t, 10, col)
	assert.Equal(t, 13, row)

	x0, y0, x1, y1 := s.CellToWorld(col, row)
	assert.Equal(t, -40.0, x0)
	assert.Equal(t, 60.0, y0)
	assert.Equal(t, -20.0, x1)
	assert.Equal(t, 80.0, y1)

	_, _, ok = s.WorldToCell(10000, 0)
	assert.False(t, ok)
}

func TestSnapshot_AccumulatorIsCopy(t *testing.T) {
	s, _ := Build(Store{{0, 0, 0, 1}}, 20, DefaultKernels())
	acc := s.Accumulator()
	require.NoError(t, acc.Splat(0, 0, []Delta{{0, 0, 5}}))

	v, _ := s.Value(0, 0)
	assert.Equal(t, 0.0, v)
}
