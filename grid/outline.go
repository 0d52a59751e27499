package grid

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// DefaultOutlineTolerance is the Douglas-Peucker threshold in cells.
const DefaultOutlineTolerance = 0.5

// edgeKey identifies a directed boundary edge by its start corner and
// direction.
type edgeKey struct {
	X, Y int
	Dir  int
}

// Edge directions in cell-corner space (row axis points down).
var edgeDirs = [4]struct{ dx, dy int }{
	{1, 0},  // 0: East
	{0, 1},  // 1: South
	{-1, 0}, // 2: West
	{0, -1}, // 3: North
}

// TraceOutlines returns the boundaries of every region whose cells are at
// least minClass, as closed rings in cell-corner coordinates (x = col,
// y = row). Outer boundaries run clockwise on screen, holes counter
// clockwise. Cells touching only at a corner belong to separate regions.
// tolerance <= 0 disables simplification.
func TraceOutlines(snap *Snapshot, minClass CellClass, tolerance float64) []orb.Ring {
	width, height := snap.SizeX(), snap.SizeY()
	mask := make([]bool, width*height)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			c, _ := snap.Classify(col, row)
			mask[row*width+col] = c >= minClass
		}
	}
	rings := traceMask(mask, width, height)
	if tolerance <= 0 {
		return rings
	}

	out := make([]orb.Ring, 0, len(rings))
	for _, r := range rings {
		s, ok := simplify.DouglasPeucker(tolerance).Simplify(r.Clone()).(orb.Ring)
		if !ok || len(s) < 4 {
			s = r
		}
		out = append(out, s)
	}
	return out
}

// traceMask follows cell borders between set and unset cells. Every set
// cell contributes one directed edge per unset (or off-grid) neighbour,
// oriented so the set cell lies to the right; edges are then chained into
// loops.
func traceMask(mask []bool, width, height int) []orb.Ring {
	isSet := func(x, y int) bool {
		if x < 0 || x >= width || y < 0 || y >= height {
			return false
		}
		return mask[y*width+x]
	}

	edges := make(map[edgeKey]bool)
	var order []edgeKey
	add := func(k edgeKey) {
		edges[k] = true
		order = append(order, k)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !isSet(x, y) {
				continue
			}
			if !isSet(x, y-1) {
				add(edgeKey{x, y, 0})
			}
			if !isSet(x+1, y) {
				add(edgeKey{x + 1, y, 1})
			}
			if !isSet(x, y+1) {
				add(edgeKey{x + 1, y + 1, 2})
			}
			if !isSet(x-1, y) {
				add(edgeKey{x, y + 1, 3})
			}
		}
	}

	var rings []orb.Ring
	for _, start := range order {
		if !edges[start] {
			continue
		}
		if r := followLoop(start, edges); len(r) >= 4 {
			rings = append(rings, r)
		}
	}
	return rings
}

// followLoop consumes edges from start until it returns to the start
// corner. At a corner shared by two loops the right turn is taken first,
// which keeps diagonal neighbours apart.
func followLoop(start edgeKey, edges map[edgeKey]bool) orb.Ring {
	var ring orb.Ring
	cur := start
	prevDir := -1
	for {
		delete(edges, cur)
		if cur.Dir != prevDir {
			ring = append(ring, orb.Point{float64(cur.X), float64(cur.Y)})
		}
		prevDir = cur.Dir

		nx, ny := cur.X+edgeDirs[cur.Dir].dx, cur.Y+edgeDirs[cur.Dir].dy
		if nx == start.X && ny == start.Y {
			break
		}

		found := false
		for _, turn := range [3]int{1, 0, 3} {
			k := edgeKey{nx, ny, (cur.Dir + turn) % 4}
			if edges[k] {
				cur = k
				found = true
				break
			}
		}
		if !found {
			break
		}
	}

	// Drop the start corner when the loop ends on the same heading.
	if len(ring) > 1 && prevDir == start.Dir {
		ring = ring[1:]
		ring = append(ring, ring[0])
		return ring
	}
	return append(ring, ring[0])
}
