package grid

import (
	"fmt"
	"math"
)

// Observation values. A landmark is something the robot detected at (X, Y);
// a location is a place the robot itself occupied.
const (
	LocationValue = 0
	LandmarkValue = 1
)

// MaxCoordinate bounds |X| and |Y| so quantized indices fit an int32.
const MaxCoordinate = math.MaxInt32

// Observation is a single robot report: world position, heading in degrees,
// and whether it marks a landmark (1) or the robot's own location (0).
type Observation struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
	Value   float64 `json:"value"`
}

// IsLandmark reports whether the observation marks a detected obstacle.
func (o Observation) IsLandmark() bool {
	return o.Value == LandmarkValue
}

// Validate checks that every field is finite, that X and Y are within
// MaxCoordinate and that Value is 0 or 1. idx is reported in the returned
// error.
func (o Observation) Validate(idx int) error {
	fields := []struct {
		name string
		v    float64
	}{
		{"x", o.X},
		{"y", o.Y},
		{"heading", o.Heading},
		{"value", o.Value},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &ValidationError{Field: f.name, Index: idx, Reason: fmt.Sprintf("not a finite number: %v", f.v)}
		}
	}
	for _, f := range fields[:2] {
		if math.Abs(f.v) > MaxCoordinate {
			return &ValidationError{Field: f.name, Index: idx, Reason: fmt.Sprintf("%v outside ±%d", f.v, MaxCoordinate)}
		}
	}
	if o.Value != LocationValue && o.Value != LandmarkValue {
		return &ValidationError{Field: "value", Index: idx, Reason: fmt.Sprintf("must be 0 or 1, got %v", o.Value)}
	}
	return nil
}

// Store is the ordered observation history. Replay order is store order.
type Store []Observation

// Validate returns the first invalid observation as a *ValidationError.
func (s Store) Validate() error {
	for i, o := range s {
		if err := o.Validate(i); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an independent copy.
func (s Store) Clone() Store {
	if s == nil {
		return nil
	}
	out := make(Store, len(s))
	copy(out, s)
	return out
}

// Landmarks returns the landmark observations in store order.
func (s Store) Landmarks() Store {
	var out Store
	for _, o := range s {
		if o.IsLandmark() {
			out = append(out, o)
		}
	}
	return out
}

// Locations returns the robot's own positions in store order (its path).
func (s Store) Locations() Store {
	var out Store
	for _, o := range s {
		if !o.IsLandmark() {
			out = append(out, o)
		}
	}
	return out
}

// CellClass is the display category of a cell. Classes are ordered by
// occupancy so callers can compare with >=.
type CellClass int

const (
	Free CellClass = iota
	Uncertain
	LikelyOccupied
	Occupied
)

// AllClasses lists every class from most to least occupied.
var AllClasses = []CellClass{Occupied, LikelyOccupied, Uncertain, Free}

func (c CellClass) String() string {
	switch c {
	case Occupied:
		return "occupied"
	case LikelyOccupied:
		return "likely-occupied"
	case Uncertain:
		return "uncertain"
	case Free:
		return "free"
	default:
		return fmt.Sprintf("CellClass(%d)", int(c))
	}
}

// ParseCellClass is the inverse of CellClass.String.
func ParseCellClass(s string) (CellClass, error) {
	for _, c := range AllClasses {
		if c.String() == s {
			return c, nil
		}
	}
	return Free, fmt.Errorf("unknown cell class %q", s)
}

// Classification thresholds on accumulated cell values.
const (
	OccupiedThreshold       = 1.0
	LikelyOccupiedThreshold = 0.5
)

// ClassifyValue maps an accumulated value to its display class.
func ClassifyValue(v float64) CellClass {
	switch {
	case v >= OccupiedThreshold:
		return Occupied
	case v >= LikelyOccupiedThreshold:
		return LikelyOccupied
	case v > 0:
		return Uncertain
	default:
		return Free
	}
}

// ClassCounts holds the number of cells per class.
type ClassCounts struct {
	Occupied       int `json:"occupied"`
	LikelyOccupied int `json:"likelyOccupied"`
	Uncertain      int `json:"uncertain"`
	Free           int `json:"free"`
}

// Add increments the counter for c.
func (cc *ClassCounts) Add(c CellClass) {
	switch c {
	case Occupied:
		cc.Occupied++
	case LikelyOccupied:
		cc.LikelyOccupied++
	case Uncertain:
		cc.Uncertain++
	default:
		cc.Free++
	}
}

// Get returns the counter for c.
func (cc ClassCounts) Get(c CellClass) int {
	switch c {
	case Occupied:
		return cc.Occupied
	case LikelyOccupied:
		return cc.LikelyOccupied
	case Uncertain:
		return cc.Uncertain
	default:
		return cc.Free
	}
}

// Total returns the number of cells counted.
func (cc ClassCounts) Total() int {
	return cc.Occupied + cc.LikelyOccupied + cc.Uncertain + cc.Free
}
