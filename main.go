package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line.
type AppOptions struct {
	ConfigFile    string
	EnvFile       string
	InputFile     string
	OutputFile    string
	Format        string
	Resolution    int
	Zoom          int
	Bins          int
	UnitsPerMeter float64
	LogLevel      string

	Summary       bool
	Render        bool
	ExportGeoJSON bool
	ExportROS     bool
	Heatmap       bool
	Histogram     bool

	Serve      bool
	MqttMode   bool
	HttpMode   bool
	HttpPort   int
	SerialPort string
	StorePath  string
}

// Runner is implemented by App; tests substitute a recorder.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunSummary() error
	RunRender() error
	RunExportGeoJSON() error
	RunExportROS() error
	RunHeatmap() error
	RunHistogram() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp(os.Stdout)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("occugrid", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.EnvFile, "env", ".env", "Environment file loaded before applying env overrides")
	fs.StringVar(&opts.InputFile, "input", "observations.csv", "Observation table (x, y, heading, value)")
	fs.StringVar(&opts.OutputFile, "output", "", "Output file (default depends on mode)")
	fs.StringVar(&opts.Format, "format", "raster", "Render format: raster, vector, or both")
	fs.IntVar(&opts.Resolution, "resolution", 0, "World units per cell (overrides config)")
	fs.IntVar(&opts.Zoom, "zoom", 0, "Pixels per cell for raster output (overrides config)")
	fs.IntVar(&opts.Bins, "bins", 20, "Histogram bin count (0 = automatic)")
	fs.Float64Var(&opts.UnitsPerMeter, "units-per-meter", 1000, "World units per meter for --export-ros")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	fs.BoolVar(&opts.Summary, "summary", false, "Parse observations, print extent and class counts, and exit")
	fs.BoolVar(&opts.Render, "render", false, "Render the grid image and exit")
	fs.BoolVar(&opts.ExportGeoJSON, "export-geojson", false, "Export occupied cells, outlines and path as GeoJSON and exit")
	fs.BoolVar(&opts.ExportROS, "export-ros", false, "Export a ROS map_server image and YAML and exit")
	fs.BoolVar(&opts.Heatmap, "heatmap", false, "Write an HTML heatmap of accumulator values and exit")
	fs.BoolVar(&opts.Histogram, "histogram", false, "Write a PNG histogram of cell values and exit")

	fs.BoolVar(&opts.Serve, "serve", false, "Run the live service")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Subscribe to observations and publish grids over MQTT")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable the HTTP server")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (overrides config)")
	fs.StringVar(&opts.SerialPort, "serial", "", "Serial device streaming observation lines")
	fs.StringVar(&opts.StorePath, "store", "", "SQLite observation log path (overrides config)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "occugrid version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.Summary:
		return app.RunSummary()
	case opts.Render:
		return app.RunRender()
	case opts.ExportGeoJSON:
		return app.RunExportGeoJSON()
	case opts.ExportROS:
		return app.RunExportROS()
	case opts.Heatmap:
		return app.RunHeatmap()
	case opts.Histogram:
		return app.RunHistogram()
	case opts.Serve || opts.MqttMode || opts.HttpMode || opts.SerialPort != "":
		return app.RunService()
	}

	fmt.Fprintln(out, "No mode selected.")
	fmt.Fprintln(out, "Use --summary to print grid extent and class counts")
	fmt.Fprintln(out, "Use --render [--format raster|vector|both] to write the grid image")
	fmt.Fprintln(out, "Use --export-geojson or --export-ros to export the grid")
	fmt.Fprintln(out, "Use --heatmap or --histogram for value charts")
	fmt.Fprintln(out, "Use --serve [--mqtt] [--http] [--serial DEV] to run the live service")
	return nil
}
