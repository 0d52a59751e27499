package grid

import (
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// Feature layer names, stored in the "layer" property.
const (
	LayerCell      = "cell"
	LayerOutline   = "outline"
	LayerPath      = "path"
	LayerLandmarks = "landmarks"
)

// ToFeatureCollection exports a snapshot in world units: one polygon per
// Occupied or LikelyOccupied cell, the traced outlines of those regions, the
// robot path (location observations in order) and the landmark points.
// store may be nil, in which case path and landmarks are omitted.
func ToFeatureCollection(snap *Snapshot, store Store) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	r := float64(snap.Resolution)

	for row := 0; row < snap.SizeY(); row++ {
		for col := 0; col < snap.SizeX(); col++ {
			v, _ := snap.Value(col, row)
			cls := ClassifyValue(v)
			if cls < LikelyOccupied {
				continue
			}
			x0, y0, x1, y1 := snap.CellToWorld(col, row)
			poly := orb.Polygon{orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
			f := geojson.NewFeature(poly)
			f.Properties["layer"] = LayerCell
			f.Properties["class"] = cls.String()
			f.Properties["value"] = v
			f.Properties["col"] = col
			f.Properties["row"] = row
			fc.Append(f)
		}
	}

	for _, ring := range TraceOutlines(snap, LikelyOccupied, DefaultOutlineTolerance) {
		world := cornersToWorld(snap, ring)
		f := geojson.NewFeature(orb.Polygon{world})
		f.Properties["layer"] = LayerOutline
		f.Properties["area"] = math.Abs(planar.Area(world))
		fc.Append(f)
	}

	if path := robotPath(store, r/2); len(path) >= 2 {
		f := geojson.NewFeature(path)
		f.Properties["layer"] = LayerPath
		f.Properties["length"] = planar.Length(path)
		fc.Append(f)
	}

	if lm := store.Landmarks(); len(lm) > 0 {
		mp := make(orb.MultiPoint, len(lm))
		for i, o := range lm {
			mp[i] = orb.Point{o.X, o.Y}
		}
		f := geojson.NewFeature(mp)
		f.Properties["layer"] = LayerLandmarks
		f.Properties["count"] = len(mp)
		fc.Append(f)
	}

	fc.BBox = geojson.NewBBox(WorldBound(snap))
	fc.ExtraMembers = geojson.Properties{
		"snapshot":   snap.ID.String(),
		"resolution": snap.Resolution,
	}
	return fc
}

// WorldBound is the world-unit rectangle covered by the whole grid.
func WorldBound(snap *Snapshot) orb.Bound {
	x0, y0, _, _ := snap.CellToWorld(0, 0)
	_, _, x1, y1 := snap.CellToWorld(snap.SizeX()-1, snap.SizeY()-1)
	return orb.Bound{Min: orb.Point{x0, y0}, Max: orb.Point{x1, y1}}
}

// WriteGeoJSON encodes fc to w.
func WriteGeoJSON(w io.Writer, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling GeoJSON: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// cornersToWorld maps a ring of cell-corner coordinates to world units.
func cornersToWorld(snap *Snapshot, ring orb.Ring) orb.Ring {
	r := float64(snap.Resolution)
	out := make(orb.Ring, len(ring))
	for i, p := range ring {
		qx, qy := snap.Extent.QuantizedOf(int(p[0]), int(p[1]))
		out[i] = orb.Point{float64(qx) * r, float64(qy) * r}
	}
	return out
}

// robotPath returns the location observations as a simplified line.
func robotPath(store Store, tolerance float64) orb.LineString {
	locs := store.Locations()
	if len(locs) < 2 {
		return nil
	}
	ls := make(orb.LineString, len(locs))
	for i, o := range locs {
		ls[i] = orb.Point{o.X, o.Y}
	}
	return simplify.DouglasPeucker(tolerance).LineString(ls)
}
