package grid

import "math"

// Quantize maps a world coordinate to a cell index at resolution r
// (world units per cell). The coordinate is rounded half up to an integer
// first, then divided with truncation toward zero, so -19 and 19 both land
// in cell 0 at r=20 while 20 lands in 1 and -20 in -1.
func Quantize(c float64, r int) int {
	return int(roundHalfUp(c)) / r
}

// roundHalfUp rounds to the nearest integer, ties toward positive infinity
// (-2.5 -> -2, 2.5 -> 3).
func roundHalfUp(c float64) int64 {
	return int64(math.Floor(c + 0.5))
}
