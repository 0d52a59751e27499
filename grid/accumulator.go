package grid

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Accumulator is the dense sizeX x sizeY array of summed kernel
// contributions. Rows are indexed by row (y), columns by col (x).
type Accumulator struct {
	m            *mat.Dense
	sizeX, sizeY int
}

// NewAccumulator allocates a zero-filled accumulator.
func NewAccumulator(sizeX, sizeY int) (*Accumulator, error) {
	if sizeX <= 0 || sizeY <= 0 {
		return nil, &ValidationError{Field: "grid size", Index: -1, Reason: fmt.Sprintf("%dx%d is empty", sizeX, sizeY)}
	}
	return &Accumulator{
		m:     mat.NewDense(sizeY, sizeX, nil),
		sizeX: sizeX,
		sizeY: sizeY,
	}, nil
}

func (a *Accumulator) SizeX() int { return a.sizeX }
func (a *Accumulator) SizeY() int { return a.sizeY }

// InBounds reports whether (col, row) addresses a cell.
func (a *Accumulator) InBounds(col, row int) bool {
	return col >= 0 && col < a.sizeX && row >= 0 && row < a.sizeY
}

func (a *Accumulator) boundsError(col, row int) error {
	return &BoundsError{Col: col, Row: row, SizeX: a.sizeX, SizeY: a.sizeY}
}

// Splat adds every delta at (centerCol+DCol, centerRow+DRow). All targets
// are checked before anything is written: on a *BoundsError the
// accumulator is unchanged.
func (a *Accumulator) Splat(centerCol, centerRow int, deltas []Delta) error {
	for _, d := range deltas {
		col, row := centerCol+d.DCol, centerRow+d.DRow
		if !a.InBounds(col, row) {
			return a.boundsError(col, row)
		}
	}
	for _, d := range deltas {
		col, row := centerCol+d.DCol, centerRow+d.DRow
		a.m.Set(row, col, a.m.At(row, col)+d.Value)
	}
	return nil
}

// At returns the accumulated value of a cell.
func (a *Accumulator) At(col, row int) (float64, error) {
	if !a.InBounds(col, row) {
		return 0, a.boundsError(col, row)
	}
	return a.m.At(row, col), nil
}

// Classify returns the display class of a cell.
func (a *Accumulator) Classify(col, row int) (CellClass, error) {
	v, err := a.At(col, row)
	if err != nil {
		return Free, err
	}
	return ClassifyValue(v), nil
}

// Clone returns a deep copy.
func (a *Accumulator) Clone() *Accumulator {
	return &Accumulator{
		m:     mat.DenseCopyOf(a.m),
		sizeX: a.sizeX,
		sizeY: a.sizeY,
	}
}

// Equal reports whether both accumulators have the same size and
// bit-identical values.
func (a *Accumulator) Equal(b *Accumulator) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.sizeX != b.sizeX || a.sizeY != b.sizeY {
		return false
	}
	return mat.Equal(a.m, b.m)
}

// Values returns a row-major copy of all cell values.
func (a *Accumulator) Values() []float64 {
	out := make([]float64, 0, a.sizeX*a.sizeY)
	for row := 0; row < a.sizeY; row++ {
		out = append(out, a.m.RawRowView(row)...)
	}
	return out
}

// Row returns a copy of one row.
func (a *Accumulator) Row(row int) []float64 {
	return mat.Row(nil, row, a.m)
}
