package grid

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Validate(t *testing.T) {
	tests := []struct {
		name      string
		store     Store
		wantField string
		wantIndex int
	}{
		{"valid", Store{{0, 0, 0, 0}, {1, 2, 90, 1}}, "", 0},
		{"nan x", Store{{0, 0, 0, 0}, {math.NaN(), 0, 0, 0}}, "x", 1},
		{"inf y", Store{{0, math.Inf(1), 0, 0}}, "y", 0},
		{"inf heading", Store{{0, 0, math.Inf(-1), 0}}, "heading", 0},
		{"value out of set", Store{{0, 0, 0, 0.5}}, "value", 0},
		{"value two", Store{{0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 2}}, "value", 2},
		{"huge x", Store{{1e300, 0, 0, 0}}, "x", 0},
		{"huge y", Store{{0, 0, 0, 0}, {0, -3e9, 0, 1}}, "y", 1},
		{"x at limit", Store{{MaxCoordinate, -MaxCoordinate, 0, 0}}, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.store.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "err = %v", err)
			assert.Equal(t, tt.wantField, ve.Field)
			assert.Equal(t, tt.wantIndex, ve.Index)
		})
	}
}

func TestStore_Split(t *testing.T) {
	s := Store{{X: 1, Value: 0}, {X: 2, Value: 1}, {X: 3, Value: 0}}
	assert.Equal(t, Store{{X: 2, Value: 1}}, s.Landmarks())
	assert.Equal(t, Store{{X: 1}, {X: 3}}, s.Locations())

	c := s.Clone()
	c[0].X = 99
	assert.Equal(t, 1.0, s[0].X)
}

func TestCellClass_String(t *testing.T) {
	for _, c := range AllClasses {
		got, err := ParseCellClass(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCellClass("wall")
	assert.Error(t, err)
	assert.True(t, Occupied > LikelyOccupied && LikelyOccupied > Uncertain && Uncertain > Free)
}

func TestClassCounts(t *testing.T) {
	var cc ClassCounts
	for _, c := range []CellClass{Free, Free, Occupied, Uncertain, LikelyOccupied} {
		cc.Add(c)
	}
	assert.Equal(t, ClassCounts{Occupied: 1, LikelyOccupied: 1, Uncertain: 1, Free: 2}, cc)
	assert.Equal(t, 5, cc.Total())
	assert.Equal(t, 2, cc.Get(Free))
	assert.Equal(t, 1, cc.Get(LikelyOccupied))
}

func TestErrors(t *testing.T) {
	err := error(&EmptyStateError{Op: "snapshot"})
	assert.True(t, errors.Is(err, ErrEmpty))
	assert.Contains(t, err.Error(), "snapshot")

	assert.Equal(t, "invalid resolution: must be positive, got 0", settingError("resolution", 0).Error())
	assert.Contains(t, (&ValidationError{Field: "x", Index: 3, Reason: "bad"}).Error(), "observation 3")
	assert.Contains(t, (&BoundsError{Col: 1, Row: 2, SizeX: 3, SizeY: 4}).Error(), "(1,2)")
}
