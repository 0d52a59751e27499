package grid

// Delta is one kernel contribution relative to the center cell.
type Delta struct {
	DCol  int
	DRow  int
	Value float64
}

// Orientation selects how the landmark footprint is laid out.
type Orientation int

const (
	// Axial: the long side of the footprint runs along rows (robot facing
	// roughly east or west).
	Axial Orientation = iota
	// Lateral: the long side runs along columns (facing roughly north or south).
	Lateral
)

func (o Orientation) String() string {
	if o == Lateral {
		return "lateral"
	}
	return "axial"
}

// OrientationFor derives the footprint orientation from a heading in degrees.
func OrientationFor(heading float64) Orientation {
	if (heading > -135 && heading < -45) || (heading > 45 && heading < 135) {
		return Lateral
	}
	return Axial
}

// Kernel turns a single observation into the cell deltas it contributes.
type Kernel interface {
	Deltas(heading float64) []Delta
	// Radius is the largest |DCol| or |DRow| the kernel can produce.
	Radius() int
}

// KernelSet picks the kernel for an observation by its value.
type KernelSet struct {
	Landmark Kernel
	Location Kernel
}

// DefaultKernels returns the built-in landmark and location kernels.
func DefaultKernels() KernelSet {
	return KernelSet{Landmark: LandmarkKernel{}, Location: LocationKernel{}}
}

// For returns the kernel that applies to o.
func (ks KernelSet) For(o Observation) Kernel {
	if o.IsLandmark() {
		return ks.Landmark
	}
	return ks.Location
}

// Margin is MarginFor over both kernels.
func (ks KernelSet) Margin() int {
	return MarginFor(ks.Landmark, ks.Location)
}

// Landmark footprint parameters.
const (
	landmarkCenter    = 0.5
	landmarkNear      = 0.8
	landmarkFar       = 0.5
	landmarkHalfShort = 2
	landmarkHalfLong  = 8
)

// LandmarkKernel marks a detected obstacle: a 5x17 block of +0.8 plus +0.5 on
// the center, the long side laid out according to the heading.
type LandmarkKernel struct{}

func (LandmarkKernel) Radius() int { return landmarkHalfLong }

func (LandmarkKernel) Deltas(heading float64) []Delta {
	orient := OrientationFor(heading)
	out := make([]Delta, 0, 1+(2*landmarkHalfShort+1)*(2*landmarkHalfLong+1))
	out = append(out, Delta{Value: landmarkCenter})
	for i := -landmarkHalfShort; i <= landmarkHalfShort; i++ {
		for j := -landmarkHalfLong; j <= landmarkHalfLong; j++ {
			v := landmarkFar
			// i <= landmarkHalfShort holds for every i, so the far weight
			// never applies.
			if i <= -landmarkHalfShort || j <= -4 || i <= landmarkHalfShort || j <= 4 {
				v = landmarkNear
			}
			d := Delta{DCol: i, DRow: j, Value: v}
			if orient == Lateral {
				d.DCol, d.DRow = j, i
			}
			out = append(out, d)
		}
	}
	return out
}

// Location footprint parameters.
const (
	locationCenter = -0.5
	locationNear   = -0.5
	locationCorner = -0.2
	locationHalf   = 5
)

// LocationKernel clears the area around the robot's own position: an 11x11
// block of -0.5 (-0.2 in the outer corner where both offsets are 4 or 5),
// plus an extra -0.5 on the center. Heading is ignored.
type LocationKernel struct{}

func (LocationKernel) Radius() int { return locationHalf }

func (LocationKernel) Deltas(float64) []Delta {
	out := make([]Delta, 0, 1+(2*locationHalf+1)*(2*locationHalf+1))
	out = append(out, Delta{Value: locationCenter})
	for i := -locationHalf; i <= locationHalf; i++ {
		for j := -locationHalf; j <= locationHalf; j++ {
			v := locationNear
			if i >= locationHalf-1 && j >= locationHalf-1 {
				v = locationCorner
			}
			out = append(out, Delta{DCol: j, DRow: i, Value: v})
		}
	}
	return out
}
