package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kwv/occugrid/grid"
	"go.uber.org/zap"
)

// maxObservationBody bounds POST /observations.
const maxObservationBody = 8 << 20

type server struct {
	tracker *grid.Tracker
	ctrl    *grid.Controller
	palette grid.Palette
	legend  bool
	logger  *zap.Logger
}

// newHTTPServer creates the router with all endpoints
func newHTTPServer(tracker *grid.Tracker, cfg *grid.Config, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	palette, err := grid.PaletteFromConfig(cfg.Render)
	if err != nil {
		logger.Warn("invalid render colors, using defaults", zap.Error(err))
		palette = grid.DefaultPalette()
	}
	s := &server{
		tracker: tracker,
		ctrl:    tracker.Controller(),
		palette: palette,
		legend:  cfg.Render.Legend,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(rateLimit(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst))

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/grid", s.handleGrid)
	r.Get("/grid/cells/{col}/{row}", s.handleCell)
	r.Get("/map.png", s.handleMapPNG)
	r.Get("/map.svg", s.handleMapSVG)
	r.Get("/map.geojson", s.handleGeoJSON)
	r.Get("/heatmap.html", s.handleHeatmap)
	r.Get("/histogram.png", s.handleHistogram)
	r.Post("/observations", s.handleAddObservations)
	r.Delete("/observations", s.handleClearObservations)
	r.Get("/settings", s.handleGetSettings)
	r.Put("/settings", s.handlePutSettings)
	return r
}

// ----------------------------------------------------------------------------
// Responses
// ----------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps grid errors to HTTP status codes.
func statusFor(err error) int {
	var ve *grid.ValidationError
	var be *grid.BoundsError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, grid.ErrEmpty):
		return http.StatusServiceUnavailable
	case errors.As(err, &be):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// snapshot returns the current grid or writes 503.
func (s *server) snapshot(w http.ResponseWriter) (*grid.Snapshot, bool) {
	snap, err := s.ctrl.Snapshot()
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return snap, true
}

// render buffers the body so a failed render still gets a clean error.
func (s *server) render(w http.ResponseWriter, contentType string, fn func(io.Writer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		s.logger.Error("render failed", zap.String("contentType", contentType), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, &grid.ValidationError{Field: key, Index: -1, Reason: fmt.Sprintf("must be a positive integer, got %q", v)}
	}
	return n, nil
}

// ----------------------------------------------------------------------------
// Handlers
// ----------------------------------------------------------------------------

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := struct {
		Status       string    `json:"status"`
		Timestamp    time.Time `json:"timestamp"`
		State        string    `json:"state"`
		Observations int       `json:"observations"`
	}{
		Status:       "ok",
		Timestamp:    time.Now(),
		State:        s.ctrl.State().String(),
		Observations: s.tracker.Len(),
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *server) handleGrid(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	etag := `"` + snap.ID.String() + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	resp := struct {
		grid.Summary
		DisplayScale int `json:"displayScale"`
	}{snap.Summary(), s.ctrl.DisplayScale()}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleCell(w http.ResponseWriter, r *http.Request) {
	col, errC := strconv.Atoi(chi.URLParam(r, "col"))
	row, errR := strconv.Atoi(chi.URLParam(r, "row"))
	if errC != nil || errR != nil {
		writeError(w, http.StatusBadRequest, errors.New("col and row must be integers"))
		return
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	v, err := snap.Value(col, row)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	cls, _ := snap.Classify(col, row)
	x0, y0, x1, y1 := snap.CellToWorld(col, row)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"col":      col,
		"row":      row,
		"value":    v,
		"class":    cls.String(),
		"world":    []float64{x0, y0, x1, y1},
		"snapshot": snap.ID.String(),
	})
}

func (s *server) handleMapPNG(w http.ResponseWriter, r *http.Request) {
	zoom, err := queryInt(r, "zoom", s.ctrl.DisplayScale())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	rr := grid.NewRasterRenderer(snap, zoom)
	rr.Palette = s.palette
	rr.ShowLegend = s.legend
	s.render(w, "image/png", rr.EncodePNG)
}

func (s *server) handleMapSVG(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	vr := grid.NewVectorRenderer(snap)
	vr.Palette = s.palette
	s.render(w, "image/svg+xml", vr.RenderToSVG)
}

func (s *server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	fc := grid.ToFeatureCollection(snap, s.ctrl.Store())
	s.render(w, "application/geo+json", func(w io.Writer) error { return grid.WriteGeoJSON(w, fc) })
}

func (s *server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	s.render(w, "text/html; charset=utf-8", func(w io.Writer) error { return grid.RenderHeatmap(w, snap) })
}

func (s *server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	bins, err := queryInt(r, "bins", 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	s.render(w, "image/png", func(w io.Writer) error { return grid.RenderHistogram(w, snap, bins) })
}

// handleAddObservations accepts a CSV table with header (text/csv) or a
// JSON object, JSON array or headerless CSV lines.
func (s *server) handleAddObservations(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxObservationBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	var store grid.Store
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		store, err = grid.ParseObservations(bytes.NewReader(body))
	} else {
		store, err = grid.DecodeObservations(body)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(store) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no observations in request"))
		return
	}

	if err := s.tracker.Add(r.Context(), store...); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{
		"added": len(store),
		"total": s.tracker.Len(),
	})
}

func (s *server) handleClearObservations(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.Reset(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type settings struct {
	Resolution   *int `json:"resolution,omitempty"`
	DisplayScale *int `json:"displayScale,omitempty"`
}

func (s *server) currentSettings() settings {
	r, z := s.ctrl.Resolution(), s.ctrl.DisplayScale()
	return settings{Resolution: &r, DisplayScale: &z}
}

func (s *server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentSettings())
}

// handlePutSettings applies resolution first so a rejected resolution leaves
// both settings untouched.
func (s *server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settings
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding settings: %w", err))
		return
	}
	if req.DisplayScale != nil && *req.DisplayScale <= 0 {
		writeError(w, http.StatusBadRequest, &grid.ValidationError{Field: "displayScale", Index: -1, Reason: fmt.Sprintf("must be positive, got %d", *req.DisplayScale)})
		return
	}

	if req.Resolution != nil {
		if err := s.ctrl.SetResolution(*req.Resolution); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}
	if req.DisplayScale != nil {
		if err := s.ctrl.SetDisplayScale(*req.DisplayScale); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.currentSettings())
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>occugrid</title>
<style>body{font-family:sans-serif;background:#eee}img{max-width:100%%;border:1px solid #999}</style>
</head>
<body>
<h1>occugrid</h1>
<p>%s</p>
<img src="/map.svg" alt="occupancy grid">
<p><a href="/map.png">PNG</a> | <a href="/map.geojson">GeoJSON</a> | <a href="/heatmap.html">heatmap</a> | <a href="/histogram.png">histogram</a> | <a href="/grid">summary</a></p>
</body>
</html>
`

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	status := "No observations yet."
	if snap, err := s.ctrl.Snapshot(); err == nil {
		status = fmt.Sprintf("%d observations, %dx%d cells at resolution %d.",
			snap.ObservationCount, snap.SizeX(), snap.SizeY(), snap.Resolution)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, indexHTML, status)
}
