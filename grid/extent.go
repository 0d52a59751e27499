package grid

import "fmt"

// MinMargin is the smallest margin ever used around the observed extent.
const MinMargin = 10

// MaxCells bounds the accumulator size. Larger extents are rejected before
// anything is allocated.
const MaxCells = 1 << 24

// Extent is the quantized bounding box of a store plus the margin added on
// every side. All values are in cell units. Extrema are seeded at zero, so
// the origin cell is always inside the grid.
type Extent struct {
	MinX   int `json:"minX"`
	MaxX   int `json:"maxX"`
	MinY   int `json:"minY"`
	MaxY   int `json:"maxY"`
	Margin int `json:"margin"`
}

// SizeX is the accumulator width in cells.
func (e Extent) SizeX() int { return e.MaxX - e.MinX + 2*e.Margin }

// SizeY is the accumulator height in cells.
func (e Extent) SizeY() int { return e.MaxY - e.MinY + 2*e.Margin }

// CellOf converts quantized coordinates into accumulator (col, row).
func (e Extent) CellOf(qx, qy int) (col, row int) {
	return qx - e.MinX + e.Margin, qy - e.MinY + e.Margin
}

// QuantizedOf is the inverse of CellOf.
func (e Extent) QuantizedOf(col, row int) (qx, qy int) {
	return col + e.MinX - e.Margin, row + e.MinY - e.Margin
}

// MarginFor returns the margin needed so that no kernel in ks writes outside
// the grid. The largest quantized coordinate maps to column
// sizeX-Margin, leaving Margin-1 cells to the right, hence radius+1.
func MarginFor(ks ...Kernel) int {
	m := MinMargin
	for _, k := range ks {
		if need := k.Radius() + 1; need > m {
			m = need
		}
	}
	return m
}

// ComputeExtent quantizes every observation at resolution r and returns the
// bounding box. Nothing is carried over between calls.
func ComputeExtent(store Store, r, margin int) Extent {
	e := Extent{Margin: margin}
	for _, o := range store {
		qx, qy := Quantize(o.X, r), Quantize(o.Y, r)
		if qx < e.MinX {
			e.MinX = qx
		}
		if qx > e.MaxX {
			e.MaxX = qx
		}
		if qy < e.MinY {
			e.MinY = qy
		}
		if qy > e.MaxY {
			e.MaxY = qy
		}
	}
	return e
}

// CheckSize rejects extents whose grid would exceed MaxCells.
func (e Extent) CheckSize() error {
	sx, sy := e.SizeX(), e.SizeY()
	if sx > MaxCells || sy > MaxCells || sx*sy > MaxCells {
		return &ValidationError{Field: "grid size", Index: -1,
			Reason: fmt.Sprintf("%dx%d exceeds %d cells; raise the resolution or drop outlying observations", sx, sy, MaxCells)}
	}
	return nil
}
