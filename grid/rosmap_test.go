package grid

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRenderROSImage(t *testing.T) {
	snap := buildSnapshot(t, Store{{0, 0, 0, 1}, {0, -200, 0, 0}}, 20)
	img := RenderROSImage(snap)
	sy := snap.SizeY()

	col, row, ok := snap.WorldToCell(0, 0)
	require.True(t, ok)
	assert.Equal(t, uint8(rosOccupied), img.GrayAt(col, sy-1-row).Y)

	col, row, _ = snap.WorldToCell(0, -200)
	assert.Equal(t, uint8(rosFree), img.GrayAt(col, sy-1-row).Y)

	// Corner cell was never touched.
	assert.Equal(t, uint8(rosUnknown), img.GrayAt(0, 0).Y)
}

func TestExportROSMap(t *testing.T) {
	snap := buildSnapshot(t, Store{{0, 0, 0, 1}}, 20)
	dir := filepath.Join(t.TempDir(), "maps")

	meta, err := ExportROSMap(snap, dir, "lab", 1000)
	require.NoError(t, err)
	assert.Equal(t, "lab.png", meta.Image)
	assert.InDelta(t, 0.02, meta.Resolution, 1e-12)
	assert.InDeltaSlice(t, []float64{-0.2, -0.2, 0}, meta.Origin, 1e-12)

	data, err := os.ReadFile(filepath.Join(dir, "lab.yaml"))
	require.NoError(t, err)
	var back ROSMap
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, *meta, back)

	f, err := os.Open(filepath.Join(dir, "lab.png"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, snap.SizeX(), img.Bounds().Dx())

	_, err = ExportROSMap(snap, dir, "bad", 0)
	assert.Error(t, err)
}
