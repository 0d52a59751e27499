package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/occugrid/grid"
	"go.uber.org/zap"
)

const defaultConfigFile = "config.yaml"

// App encapsulates the application state and dependencies
type App struct {
	out     io.Writer
	Options AppOptions

	Config     *grid.Config
	Logger     *zap.Logger
	Controller *grid.Controller
	Tracker    *grid.Tracker
	ObsLog     *grid.ObservationLog
	MQTTClient *grid.MQTTClient
	Publisher  *grid.Publisher
}

// NewApp creates an App that prints progress to out.
func NewApp(out io.Writer) *App {
	if out == nil {
		out = io.Discard
	}
	return &App{out: out}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.Options = opts
}

// loadConfig resolves the configuration: defaults, then the YAML file, then
// the environment, then command line flags. A missing default config file
// is not an error.
func (a *App) loadConfig() (*grid.Config, error) {
	if a.Options.EnvFile != "" {
		if err := grid.LoadEnvFiles(a.Options.EnvFile); err != nil {
			return nil, err
		}
	}

	cfg := grid.DefaultConfig()
	if path := a.Options.ConfigFile; path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := grid.LoadConfig(path)
			if err != nil {
				return nil, fmt.Errorf("loading config %s: %w", path, err)
			}
			cfg = loaded
		} else if path != defaultConfigFile {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	if err := grid.ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	o := a.Options
	if o.Resolution > 0 {
		cfg.Grid.Resolution = o.Resolution
	}
	if o.Zoom > 0 {
		cfg.Grid.DisplayScale = o.Zoom
	}
	if o.HttpPort > 0 {
		cfg.HTTP.Port = o.HttpPort
	}
	if o.SerialPort != "" {
		cfg.Serial.Port = o.SerialPort
	}
	if o.StorePath != "" {
		cfg.Store.Path = o.StorePath
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a.Config = cfg
	return cfg, nil
}

// setup loads the configuration and builds the logger and controller.
func (a *App) setup() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if a.Logger == nil {
		logger, err := grid.NewLogger(cfg.LogLevel, false)
		if err != nil {
			return err
		}
		a.Logger = logger
	}
	a.Controller = grid.NewController(
		grid.WithLogger(a.Logger),
		grid.WithResolution(cfg.Grid.Resolution),
		grid.WithDisplayScale(cfg.Grid.DisplayScale),
	)
	return nil
}

// loadGrid parses the input table and builds the grid from it.
func (a *App) loadGrid() (*grid.Snapshot, grid.Store, error) {
	if err := a.setup(); err != nil {
		return nil, nil, err
	}
	store, err := grid.ParseObservationsFile(a.Options.InputFile)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", a.Options.InputFile, err)
	}
	if err := a.Controller.Load(store); err != nil {
		return nil, nil, err
	}
	snap, err := a.Controller.Snapshot()
	if err != nil {
		return nil, nil, fmt.Errorf("%s holds no observations: %w", a.Options.InputFile, err)
	}
	return snap, store, nil
}

func (a *App) palette() grid.Palette {
	p, err := grid.PaletteFromConfig(a.Config.Render)
	if err != nil {
		a.Logger.Warn("invalid render colors, using defaults", zap.Error(err))
		return grid.DefaultPalette()
	}
	return p
}

func (a *App) outputPath(def string) string {
	if a.Options.OutputFile != "" {
		return a.Options.OutputFile
	}
	return def
}

// RunSummary prints the extent, size and class counts of the grid.
func (a *App) RunSummary() error {
	snap, store, err := a.loadGrid()
	if err != nil {
		return err
	}
	st := snap.Stats()
	ext := snap.Extent

	fmt.Fprintf(a.out, "=== %s ===\n", a.Options.InputFile)
	fmt.Fprintf(a.out, "Observations: %d (%d landmarks, %d locations)\n",
		len(store), len(store.Landmarks()), len(store.Locations()))
	fmt.Fprintf(a.out, "Resolution: %d units/cell\n", snap.Resolution)
	fmt.Fprintf(a.out, "Extent: x [%d, %d] y [%d, %d] margin %d\n",
		ext.MinX, ext.MaxX, ext.MinY, ext.MaxY, ext.Margin)
	fmt.Fprintf(a.out, "Grid Size: %dx%d (%d cells)\n", snap.SizeX(), snap.SizeY(), st.Counts.Total())
	fmt.Fprintf(a.out, "Values: min %.2f max %.2f mean %.4f, %d touched\n", st.Min, st.Max, st.Mean, st.Touched)
	for _, c := range grid.AllClasses {
		fmt.Fprintf(a.out, "  %-16s %d\n", c.String()+":", st.Counts.Get(c))
	}
	fmt.Fprintf(a.out, "Occupied ratio: %.2f%%\n", st.OccupiedRatio*100)
	return nil
}

// RunRender writes the grid image in the selected format.
func (a *App) RunRender() error {
	snap, _, err := a.loadGrid()
	if err != nil {
		return err
	}

	switch a.Options.Format {
	case "raster", "":
		return a.saveRaster(snap, a.outputPath("grid.png"))
	case "vector":
		return a.saveVector(snap, a.outputPath("grid.svg"))
	case "both":
		base := strings.TrimSuffix(a.outputPath("grid"), filepath.Ext(a.outputPath("grid")))
		if err := a.saveRaster(snap, base+".png"); err != nil {
			return err
		}
		return a.saveVector(snap, base+".svg")
	default:
		return fmt.Errorf("unknown render format %q: expected raster, vector, or both", a.Options.Format)
	}
}

func (a *App) saveRaster(snap *grid.Snapshot, path string) error {
	r := grid.NewRasterRenderer(snap, a.Controller.DisplayScale())
	r.Palette = a.palette()
	r.ShowLegend = a.Config.Render.Legend
	if err := r.SavePNG(path); err != nil {
		return err
	}
	scale := r.EffectiveScale()
	fmt.Fprintf(a.out, "Saved raster map to %s (%dx%d cells at %d px/cell)\n", path, snap.SizeX(), snap.SizeY(), scale)
	return nil
}

func (a *App) saveVector(snap *grid.Snapshot, path string) error {
	r := grid.NewVectorRenderer(snap)
	r.Palette = a.palette()
	err := writeFile(path, func(w io.Writer) error {
		if strings.EqualFold(filepath.Ext(path), ".png") {
			return r.RenderToPNG(w)
		}
		return r.RenderToSVG(w)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved vector map to %s\n", path)
	return nil
}

// RunExportGeoJSON writes cells, outlines, path and landmarks as GeoJSON.
func (a *App) RunExportGeoJSON() error {
	snap, store, err := a.loadGrid()
	if err != nil {
		return err
	}
	path := a.outputPath("grid.geojson")
	fc := grid.ToFeatureCollection(snap, store)
	if err := writeFile(path, func(w io.Writer) error { return grid.WriteGeoJSON(w, fc) }); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %d features to %s\n", len(fc.Features), path)
	return nil
}

// RunExportROS writes <name>.png and <name>.yaml for map_server. The output
// flag names the image; its directory and base name are used.
func (a *App) RunExportROS() error {
	snap, _, err := a.loadGrid()
	if err != nil {
		return err
	}
	path := a.outputPath("map.pgm")
	dir := filepath.Dir(path)
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	meta, err := grid.ExportROSMap(snap, dir, name, a.Options.UnitsPerMeter)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved ROS map %s (%.3f m/cell, origin %.3f, %.3f)\n",
		filepath.Join(dir, name+".yaml"), meta.Resolution, meta.Origin[0], meta.Origin[1])
	return nil
}

// RunHeatmap writes the accumulator heatmap page.
func (a *App) RunHeatmap() error {
	snap, _, err := a.loadGrid()
	if err != nil {
		return err
	}
	path := a.outputPath("heatmap.html")
	if err := writeFile(path, func(w io.Writer) error { return grid.RenderHeatmap(w, snap) }); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved heatmap to %s\n", path)
	return nil
}

// RunHistogram writes the cell value histogram.
func (a *App) RunHistogram() error {
	snap, _, err := a.loadGrid()
	if err != nil {
		return err
	}
	path := a.outputPath("histogram.png")
	if err := writeFile(path, func(w io.Writer) error { return grid.RenderHistogram(w, snap, a.Options.Bins) }); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved histogram to %s\n", path)
	return nil
}

// RunService runs the live grid until interrupted.
func (a *App) RunService() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.serve(ctx)
}

func (a *App) serve(ctx context.Context) error {
	fmt.Fprintln(a.out, "Starting occugrid service...")
	if err := a.setup(); err != nil {
		return err
	}
	cfg := a.Config
	logger := a.Logger
	defer func() { _ = logger.Sync() }()

	if cfg.Store.Path != "" {
		obsLog, err := grid.OpenObservationLog(cfg.Store.Path)
		if err != nil {
			return err
		}
		a.ObsLog = obsLog
		defer func() { _ = obsLog.Close() }()
		logger.Info("observation log opened", zap.String("path", cfg.Store.Path))
	}

	a.Tracker = grid.NewTracker(a.Controller, a.ObsLog, cfg.Rebuild.MinInterval, logger)
	if err := a.Tracker.Restore(ctx); err != nil {
		return fmt.Errorf("restoring observations: %w", err)
	}
	if err := a.preload(ctx); err != nil {
		return err
	}
	a.Tracker.Start()
	defer func() {
		if err := a.Tracker.Stop(); err != nil {
			logger.Warn("final flush failed", zap.Error(err))
		}
	}()

	handler := func(store grid.Store, err error) {
		if err != nil {
			return
		}
		if err := a.Tracker.Add(ctx, store...); err != nil {
			logger.Warn("rejected observations", zap.Int("count", len(store)), zap.Error(err))
		}
	}

	if a.Options.MqttMode {
		client, err := grid.InitMQTT(cfg.MQTT, handler, logger)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if client == nil {
			return errors.New("MQTT mode requires mqtt.broker (or MQTT_BROKER)")
		}
		a.MQTTClient = client
		defer client.Disconnect()

		a.Publisher = grid.NewPublisher(client.Client(), cfg.MQTT.PublishPrefix, logger)
		a.Publisher.SetPalette(a.palette(), cfg.Render.Legend)
		cancel := a.Controller.Subscribe(a.Publisher.HandleChange)
		defer cancel()
	}

	if cfg.Serial.Port != "" {
		opts, err := cfg.Serial.PortOptions()
		if err != nil {
			return fmt.Errorf("serial options: %w", err)
		}
		src, err := grid.OpenSerialSource(cfg.Serial.Port, opts, handler, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("serial source stopped", zap.Error(err))
			}
		}()
	}

	var srv *http.Server
	if a.Options.HttpMode {
		srv = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.HTTP.Port),
			Handler:           newHTTPServer(a.Tracker, cfg, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server starting", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", zap.Error(err))
			}
		}()
	}

	a.printServiceInfo()
	<-ctx.Done()

	fmt.Fprintln(a.out, "\nShutting down service...")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown", zap.Error(err))
		}
	}
	fmt.Fprintln(a.out, "Service stopped")
	return nil
}

// preload seeds an empty tracker from the input file when it exists.
func (a *App) preload(ctx context.Context) error {
	if a.Tracker.Len() > 0 || a.Options.InputFile == "" {
		return nil
	}
	if _, err := os.Stat(a.Options.InputFile); err != nil {
		return nil
	}
	store, err := grid.ParseObservationsFile(a.Options.InputFile)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", a.Options.InputFile, err)
	}
	if err := a.Tracker.Add(ctx, store...); err != nil {
		return err
	}
	if err := a.Tracker.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Loaded %d observations from %s\n", len(store), a.Options.InputFile)
	return nil
}

func (a *App) printServiceInfo() {
	cfg := a.Config
	fmt.Fprintln(a.out, "\nService Running")
	fmt.Fprintln(a.out, "===============")
	fmt.Fprintf(a.out, "Resolution: %d, display scale: %d\n", a.Controller.Resolution(), a.Controller.DisplayScale())

	if a.MQTTClient != nil {
		fmt.Fprintln(a.out, "\nMQTT:")
		fmt.Fprintf(a.out, "  Subscribed: %s\n", cfg.MQTT.ObservationTopic)
		fmt.Fprintf(a.out, "  Publishing: %s, %s\n", a.Publisher.GridTopic(), a.Publisher.MapTopic())
	}
	if cfg.Serial.Port != "" {
		fmt.Fprintf(a.out, "\nSerial: %s\n", cfg.Serial.Port)
	}
	if a.Options.HttpMode {
		fmt.Fprintf(a.out, "\nHTTP endpoints (port %d):\n", cfg.HTTP.Port)
		fmt.Fprintln(a.out, "  GET    /health                 - Health check")
		fmt.Fprintln(a.out, "  GET    /grid                   - Snapshot summary")
		fmt.Fprintln(a.out, "  GET    /grid/cells/{col}/{row} - Cell value and class")
		fmt.Fprintln(a.out, "  GET    /map.png /map.svg       - Rendered grid")
		fmt.Fprintln(a.out, "  GET    /map.geojson            - GeoJSON export")
		fmt.Fprintln(a.out, "  GET    /heatmap.html           - Accumulator heatmap")
		fmt.Fprintln(a.out, "  GET    /histogram.png          - Cell value histogram")
		fmt.Fprintln(a.out, "  POST   /observations           - Add observations")
		fmt.Fprintln(a.out, "  DELETE /observations           - Clear observations")
		fmt.Fprintln(a.out, "  GET    /settings PUT /settings - Resolution and display scale")
	}
	fmt.Fprintln(a.out, "\nPress Ctrl+C to stop")
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
