package grid

import (
	"image/color"
	"image/png"
	"io"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorRenderer draws a snapshot as vector graphics: one square per
// observed cell and the traced occupied outlines on top.
type VectorRenderer struct {
	Snapshot       *Snapshot
	Palette        Palette
	CellSize       float64 // canvas units (mm) per cell
	OutlineClass   CellClass
	OutlineWidth   float64
	OutlineColor   canvas.Paint
	Resolution     canvas.Resolution // Resolution for PNG output
	DrawBackground bool
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer(snap *Snapshot) *VectorRenderer {
	return &VectorRenderer{
		Snapshot:       snap,
		Palette:        DefaultPalette(),
		CellSize:       4.0,
		OutlineClass:   LikelyOccupied,
		OutlineWidth:   0.6,
		OutlineColor:   canvas.Paint{Color: color.RGBA{200, 30, 30, 255}},
		Resolution:     canvas.DPI(101.6), // 4 px per mm
		DrawBackground: true,
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

func (r *VectorRenderer) size() (float64, float64) {
	return float64(r.Snapshot.SizeX()) * r.CellSize, float64(r.Snapshot.SizeY()) * r.CellSize
}

// RenderToSVG writes the grid as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	width, height := r.size()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, height)
	return svgRenderer.Close()
}

// RenderToPNG rasterizes the vector drawing at r.Resolution.
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	width, height := r.size()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, height)
	return png.Encode(w, rast)
}

// renderToCanvas draws cells then outlines. Canvas y grows upward, so row 0
// is placed at the top edge.
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, height float64) {
	width, _ := r.size()
	if r.DrawBackground {
		bgStyle := canvas.DefaultStyle
		bgStyle.Fill = canvas.Paint{Color: r.Palette.Background}
		renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)
	}

	toCanvas := func(x, y float64) (float64, float64) {
		return x * r.CellSize, height - y*r.CellSize
	}

	// One path per class keeps the SVG small.
	paths := make(map[CellClass]*canvas.Path)
	sx, sy := r.Snapshot.SizeX(), r.Snapshot.SizeY()
	for row := 0; row < sy; row++ {
		for col := 0; col < sx; col++ {
			v, _ := r.Snapshot.Value(col, row)
			if v == 0 {
				continue
			}
			cls := ClassifyValue(v)
			p := paths[cls]
			if p == nil {
				p = &canvas.Path{}
				paths[cls] = p
			}
			x0, y0 := toCanvas(float64(col), float64(row+1))
			p.MoveTo(x0, y0)
			p.LineTo(x0+r.CellSize, y0)
			p.LineTo(x0+r.CellSize, y0+r.CellSize)
			p.LineTo(x0, y0+r.CellSize)
			p.Close()
		}
	}
	for _, cls := range []CellClass{Free, Uncertain, LikelyOccupied, Occupied} {
		p, ok := paths[cls]
		if !ok {
			continue
		}
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: r.Palette.For(cls)}
		style.Stroke = canvas.Paint{Color: canvas.Transparent}
		renderer.RenderPath(p, style, canvas.Identity)
	}

	if r.OutlineWidth <= 0 {
		return
	}
	outlineStyle := canvas.DefaultStyle
	outlineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	outlineStyle.Stroke = r.OutlineColor
	outlineStyle.StrokeWidth = r.OutlineWidth

	for _, ring := range TraceOutlines(r.Snapshot, r.OutlineClass, DefaultOutlineTolerance) {
		renderer.RenderPath(ringPath(ring, toCanvas), outlineStyle, canvas.Identity)
	}
}

func ringPath(ring orb.Ring, toCanvas func(x, y float64) (float64, float64)) *canvas.Path {
	cp := &canvas.Path{}
	for i, pt := range ring {
		cx, cy := toCanvas(pt[0], pt[1])
		if i == 0 {
			cp.MoveTo(cx, cy)
		} else {
			cp.LineTo(cx, cy)
		}
	}
	cp.Close()
	return cp
}
