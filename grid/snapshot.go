package grid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
)

// Snapshot is one fully built grid. It is never modified after Build
// returns, so it can be shared between goroutines without locking.
type Snapshot struct {
	ID               uuid.UUID `json:"id"`
	Resolution       int       `json:"resolution"`
	Extent           Extent    `json:"extent"`
	BuiltAt          time.Time `json:"builtAt"`
	ObservationCount int       `json:"observationCount"`

	acc *Accumulator
}

// Build quantizes the whole store at resolution r and replays every
// observation, in store order, through its kernel into a fresh accumulator.
func Build(store Store, r int, ks KernelSet) (*Snapshot, error) {
	if r <= 0 {
		return nil, settingError("resolution", r)
	}
	if err := store.Validate(); err != nil {
		return nil, err
	}

	ext := ComputeExtent(store, r, ks.Margin())
	if err := ext.CheckSize(); err != nil {
		return nil, err
	}
	acc, err := NewAccumulator(ext.SizeX(), ext.SizeY())
	if err != nil {
		return nil, err
	}

	for i, o := range store {
		col, row := ext.CellOf(Quantize(o.X, r), Quantize(o.Y, r))
		if err := acc.Splat(col, row, ks.For(o).Deltas(o.Heading)); err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
	}

	return &Snapshot{
		ID:               uuid.New(),
		Resolution:       r,
		Extent:           ext,
		BuiltAt:          time.Now(),
		ObservationCount: len(store),
		acc:              acc,
	}, nil
}

func (s *Snapshot) SizeX() int { return s.acc.SizeX() }
func (s *Snapshot) SizeY() int { return s.acc.SizeY() }

// Value returns the accumulated value of a cell.
func (s *Snapshot) Value(col, row int) (float64, error) {
	return s.acc.At(col, row)
}

// Classify returns the display class of a cell.
func (s *Snapshot) Classify(col, row int) (CellClass, error) {
	return s.acc.Classify(col, row)
}

// Accumulator returns a private copy of the underlying grid.
func (s *Snapshot) Accumulator() *Accumulator {
	return s.acc.Clone()
}

// Values returns a row-major copy of every cell value.
func (s *Snapshot) Values() []float64 {
	return s.acc.Values()
}

// Equal reports whether two snapshots hold the same grid, ignoring
// identity and build time.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Resolution == o.Resolution && s.Extent == o.Extent && s.acc.Equal(o.acc)
}

// Counts tallies cells per class.
func (s *Snapshot) Counts() ClassCounts {
	var cc ClassCounts
	for _, v := range s.acc.Values() {
		cc.Add(ClassifyValue(v))
	}
	return cc
}

// Stats summarises the accumulator.
type Stats struct {
	Min           float64     `json:"min"`
	Max           float64     `json:"max"`
	Mean          float64     `json:"mean"`
	Touched       int         `json:"touched"`
	OccupiedRatio float64     `json:"occupiedRatio"`
	Counts        ClassCounts `json:"counts"`
}

// Stats computes value range, mean and occupancy over all cells. Touched
// counts cells with a non-zero value.
func (s *Snapshot) Stats() Stats {
	vals := s.acc.Values()
	st := Stats{
		Min:    floats.Min(vals),
		Max:    floats.Max(vals),
		Mean:   floats.Sum(vals) / float64(len(vals)),
		Counts: s.Counts(),
	}
	for _, v := range vals {
		if v != 0 {
			st.Touched++
		}
	}
	st.OccupiedRatio = float64(st.Counts.Occupied+st.Counts.LikelyOccupied) / float64(len(vals))
	return st
}

// CellToWorld returns the nominal world-unit bounds of a cell:
// [q*r, (q+1)*r) on each axis where q is the quantized coordinate.
func (s *Snapshot) CellToWorld(col, row int) (x0, y0, x1, y1 float64) {
	qx, qy := s.Extent.QuantizedOf(col, row)
	r := float64(s.Resolution)
	x0, y0 = float64(qx)*r, float64(qy)*r
	return x0, y0, x0 + r, y0 + r
}

// WorldToCell returns the cell a world position falls in, and whether that
// cell lies inside the grid.
func (s *Snapshot) WorldToCell(x, y float64) (col, row int, ok bool) {
	col, row = s.Extent.CellOf(Quantize(x, s.Resolution), Quantize(y, s.Resolution))
	return col, row, s.acc.InBounds(col, row)
}

// Summary is the JSON description of a snapshot served over HTTP and MQTT.
type Summary struct {
	ID               uuid.UUID `json:"id"`
	Resolution       int       `json:"resolution"`
	Extent           Extent    `json:"extent"`
	SizeX            int       `json:"sizeX"`
	SizeY            int       `json:"sizeY"`
	BuiltAt          time.Time `json:"builtAt"`
	ObservationCount int       `json:"observationCount"`
	Stats            Stats     `json:"stats"`
}

func (s *Snapshot) Summary() Summary {
	return Summary{
		ID:               s.ID,
		Resolution:       s.Resolution,
		Extent:           s.Extent,
		SizeX:            s.SizeX(),
		SizeY:            s.SizeY(),
		BuiltAt:          s.BuiltAt,
		ObservationCount: s.ObservationCount,
		Stats:            s.Stats(),
	}
}
