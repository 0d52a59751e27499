package grid

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MaxImageSize caps the raster output on either axis.
const MaxImageSize = 4000

const legendHeight = 20

// Palette assigns a color to every cell class.
type Palette struct {
	Occupied       color.RGBA
	LikelyOccupied color.RGBA
	Uncertain      color.RGBA
	Free           color.RGBA
	Background     color.RGBA // untouched cells and legend strip
}

// DefaultPalette is black / dark gray / gray / white on light gray.
func DefaultPalette() Palette {
	return Palette{
		Occupied:       color.RGBA{0, 0, 0, 255},
		LikelyOccupied: color.RGBA{64, 64, 64, 255},
		Uncertain:      color.RGBA{128, 128, 128, 255},
		Free:           color.RGBA{255, 255, 255, 255},
		Background:     color.RGBA{192, 192, 192, 255},
	}
}

// PaletteFromConfig parses the configured hex colors.
func PaletteFromConfig(rc RenderConfig) (Palette, error) {
	var p Palette
	fields := []struct {
		name string
		hex  string
		dst  *color.RGBA
	}{
		{"occupied", rc.Occupied, &p.Occupied},
		{"likelyOccupied", rc.LikelyOccupied, &p.LikelyOccupied},
		{"uncertain", rc.Uncertain, &p.Uncertain},
		{"free", rc.Free, &p.Free},
		{"background", rc.Background, &p.Background},
	}
	for _, f := range fields {
		c, err := parseHexColor(f.hex)
		if err != nil {
			return Palette{}, fmt.Errorf("render.%s: %w", f.name, err)
		}
		*f.dst = c
	}
	return p, nil
}

// For returns the color of a class.
func (p Palette) For(c CellClass) color.RGBA {
	switch c {
	case Occupied:
		return p.Occupied
	case LikelyOccupied:
		return p.LikelyOccupied
	case Uncertain:
		return p.Uncertain
	default:
		return p.Free
	}
}

// RasterRenderer draws a snapshot as a PNG-ready image, one Scale x Scale
// block per cell, row 0 at the top.
//
// Colors follow Classify with one exception: a cell whose value is exactly
// zero was never reached by a kernel and is drawn in Palette.Background,
// not Palette.Free, even though Classify reports it as Free. Set
// Background equal to Free to get a strict class-to-color mapping.
type RasterRenderer struct {
	Snapshot   *Snapshot
	Scale      int
	Palette    Palette
	ShowLegend bool
}

// NewRasterRenderer creates a renderer with the default palette and legend.
func NewRasterRenderer(snap *Snapshot, scale int) *RasterRenderer {
	return &RasterRenderer{
		Snapshot:   snap,
		Scale:      scale,
		Palette:    DefaultPalette(),
		ShowLegend: true,
	}
}

// EffectiveScale is Scale reduced so neither side exceeds MaxImageSize.
func (r *RasterRenderer) EffectiveScale() int {
	scale := r.Scale
	if scale < 1 {
		scale = 1
	}
	sx, sy := r.Snapshot.SizeX(), r.Snapshot.SizeY()
	if sx*scale > MaxImageSize {
		scale = MaxImageSize / sx
	}
	if sy*scale > MaxImageSize {
		scale = MaxImageSize / sy
	}
	if scale < 1 {
		scale = 1
	}
	return scale
}

// Render draws every cell. Cells whose value is exactly zero were never
// touched by a kernel and keep the background color.
func (r *RasterRenderer) Render() *image.RGBA {
	scale := r.EffectiveScale()
	sx, sy := r.Snapshot.SizeX(), r.Snapshot.SizeY()
	width, height := sx*scale, sy*scale
	if r.ShowLegend {
		height += legendHeight
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fillRect(img, 0, 0, width, height, r.Palette.Background)

	for row := 0; row < sy; row++ {
		for col := 0; col < sx; col++ {
			v, _ := r.Snapshot.Value(col, row)
			if v == 0 {
				continue
			}
			fillRect(img, col*scale, row*scale, scale, scale, r.Palette.For(ClassifyValue(v)))
		}
	}

	if r.ShowLegend {
		r.drawLegend(img, sy*scale)
	}
	return img
}

// EncodePNG renders and writes the image as PNG.
func (r *RasterRenderer) EncodePNG(w io.Writer) error {
	return png.Encode(w, r.Render())
}

// SavePNG renders the snapshot to a file
func (r *RasterRenderer) SavePNG(path string) error {
	img := r.Render()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return png.Encode(f, img)
}

// drawLegend draws a swatch and label per class in the strip starting at top.
func (r *RasterRenderer) drawLegend(img *image.RGBA, top int) {
	x := 4
	for _, c := range AllClasses {
		fillRect(img, x, top+4, 12, 12, r.Palette.For(c))
		label := c.String()
		drawText(img, x+16, top+15, label, color.RGBA{0, 0, 0, 255})
		x += 16 + len(label)*7 + 10
	}
}

func fillRect(img *image.RGBA, x0, y0, w, h int, c color.RGBA) {
	b := img.Bounds()
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			if x >= 0 && x < b.Max.X && y >= 0 && y < b.Max.Y {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// parseHexColor parses a hex color string like "#FF6B6B" to color.RGBA
func parseHexColor(hex string) (color.RGBA, error) {
	s := hex
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", hex)
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	return color.RGBA{r, g, b, 255}, nil
}

// colorHex formats c as "#RRGGBB".
func colorHex(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}
