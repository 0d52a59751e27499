package grid

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Gray levels written to ROS map images. With negate=0 map_server reads
// values below 89 as occupied, above 205 as free and the rest as unknown.
const (
	rosOccupied       = 0
	rosLikelyOccupied = 64
	rosUnknown        = 205
	rosFree           = 254
)

// ROSMap is the map_server metadata file.
type ROSMap struct {
	Image          string    `yaml:"image"`
	Resolution     float64   `yaml:"resolution"`
	Origin         []float64 `yaml:"origin"`
	Negate         int       `yaml:"negate"`
	OccupiedThresh float64   `yaml:"occupied_thresh"`
	FreeThresh     float64   `yaml:"free_thresh"`
}

// RenderROSImage returns the grayscale map image. ROS images start at the
// top row (largest y), so rows are flipped relative to the accumulator.
func RenderROSImage(snap *Snapshot) *image.Gray {
	sx, sy := snap.SizeX(), snap.SizeY()
	img := image.NewGray(image.Rect(0, 0, sx, sy))
	for row := 0; row < sy; row++ {
		for col := 0; col < sx; col++ {
			v, _ := snap.Value(col, row)
			img.SetGray(col, sy-1-row, color.Gray{Y: rosGray(v)})
		}
	}
	return img
}

func rosGray(v float64) uint8 {
	if v == 0 {
		return rosUnknown
	}
	switch ClassifyValue(v) {
	case Occupied:
		return rosOccupied
	case LikelyOccupied:
		return rosLikelyOccupied
	case Uncertain:
		return rosUnknown
	default:
		return rosFree
	}
}

// ExportROSMap writes <name>.png and <name>.yaml into dir. unitsPerMeter
// converts world units to meters (1000 for millimetres).
func ExportROSMap(snap *Snapshot, dir, name string, unitsPerMeter float64) (*ROSMap, error) {
	if unitsPerMeter <= 0 {
		return nil, &ValidationError{Field: "unitsPerMeter", Index: -1, Reason: fmt.Sprintf("must be positive, got %v", unitsPerMeter)}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	imgName := name + ".png"
	f, err := os.Create(filepath.Join(dir, imgName))
	if err != nil {
		return nil, fmt.Errorf("creating map image: %w", err)
	}
	if err := png.Encode(f, RenderROSImage(snap)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("encoding map image: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing map image: %w", err)
	}

	x0, y0, _, _ := snap.CellToWorld(0, 0)
	meta := &ROSMap{
		Image:          imgName,
		Resolution:     float64(snap.Resolution) / unitsPerMeter,
		Origin:         []float64{x0 / unitsPerMeter, y0 / unitsPerMeter, 0},
		Negate:         0,
		OccupiedThresh: 0.65,
		FreeThresh:     0.196,
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling map YAML: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".yaml"), data, 0644); err != nil {
		return nil, fmt.Errorf("writing map YAML: %w", err)
	}
	return meta, nil
}
