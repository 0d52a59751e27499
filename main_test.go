package main

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"
)

type mockApp struct {
	opts   AppOptions
	called map[string]bool
	err    error
}

func newMockApp() *mockApp {
	return &mockApp{
		called: make(map[string]bool),
	}
}

func (m *mockApp) record(name string) error {
	m.called[name] = true
	return m.err
}

func (m *mockApp) ApplyOptions(opts AppOptions) { m.opts = opts }
func (m *mockApp) RunSummary() error            { return m.record("RunSummary") }
func (m *mockApp) RunRender() error             { return m.record("RunRender") }
func (m *mockApp) RunExportGeoJSON() error      { return m.record("RunExportGeoJSON") }
func (m *mockApp) RunExportROS() error          { return m.record("RunExportROS") }
func (m *mockApp) RunHeatmap() error            { return m.record("RunHeatmap") }
func (m *mockApp) RunHistogram() error          { return m.record("RunHistogram") }
func (m *mockApp) RunService() error            { return m.record("RunService") }

func TestRun_Flags(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedCalled string
		verifyOpts     func(*testing.T, AppOptions)
	}{
		{
			name:           "Summary",
			args:           []string{"--summary", "--input", "/tmp/obs.csv", "--resolution", "25"},
			expectedCalled: "RunSummary",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.InputFile != "/tmp/obs.csv" {
					t.Errorf("expected InputFile /tmp/obs.csv, got %s", opts.InputFile)
				}
				if opts.Resolution != 25 {
					t.Errorf("expected Resolution 25, got %d", opts.Resolution)
				}
			},
		},
		{
			name:           "Render",
			args:           []string{"--render", "--output", "test.png", "--zoom", "4"},
			expectedCalled: "RunRender",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.OutputFile != "test.png" {
					t.Errorf("expected OutputFile test.png, got %s", opts.OutputFile)
				}
				if opts.Zoom != 4 {
					t.Errorf("expected Zoom 4, got %d", opts.Zoom)
				}
				if opts.Format != "raster" {
					t.Errorf("expected default Format raster, got %s", opts.Format)
				}
			},
		},
		{
			name:           "VectorRendering",
			args:           []string{"--render", "--format", "vector"},
			expectedCalled: "RunRender",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.Format != "vector" {
					t.Errorf("expected Format vector, got %s", opts.Format)
				}
			},
		},
		{
			name:           "ExportGeoJSON",
			args:           []string{"--export-geojson", "--output", "out.geojson"},
			expectedCalled: "RunExportGeoJSON",
		},
		{
			name:           "ExportROS",
			args:           []string{"--export-ros", "--units-per-meter", "100"},
			expectedCalled: "RunExportROS",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.UnitsPerMeter != 100 {
					t.Errorf("expected UnitsPerMeter 100, got %f", opts.UnitsPerMeter)
				}
			},
		},
		{
			name:           "Heatmap",
			args:           []string{"--heatmap"},
			expectedCalled: "RunHeatmap",
		},
		{
			name:           "Histogram",
			args:           []string{"--histogram", "--bins", "0"},
			expectedCalled: "RunHistogram",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.Bins != 0 {
					t.Errorf("expected Bins 0, got %d", opts.Bins)
				}
			},
		},
		{
			name:           "MqttMode",
			args:           []string{"--mqtt", "--http-port", "9090"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.MqttMode {
					t.Error("expected MqttMode true")
				}
				if opts.HttpPort != 9090 {
					t.Errorf("expected HttpPort 9090, got %d", opts.HttpPort)
				}
			},
		},
		{
			name:           "SerialImpliesService",
			args:           []string{"--serial", "/dev/ttyACM0", "--store", "obs.db"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.SerialPort != "/dev/ttyACM0" || opts.StorePath != "obs.db" {
					t.Errorf("unexpected serial/store options: %+v", opts)
				}
			},
		},
		{
			name:           "Serve",
			args:           []string{"--serve", "--http", "--config", "lab.yaml"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.HttpMode || opts.ConfigFile != "lab.yaml" {
					t.Errorf("unexpected options: %+v", opts)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newMockApp()
			var out bytes.Buffer
			err := run(tt.args, &out, app)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}

			if !app.called[tt.expectedCalled] {
				t.Errorf("expected %s to be called", tt.expectedCalled)
			}
			if len(app.called) != 1 {
				t.Errorf("expected exactly one mode, got %v", app.called)
			}

			if tt.verifyOpts != nil {
				tt.verifyOpts(t, app.opts)
			}
		})
	}
}

func TestRun_Help(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{"--help"}, &out, app)
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("expected flag.ErrHelp from --help, got %v", err)
	}
	if !strings.Contains(out.String(), "Usage of occugrid") {
		t.Errorf("expected usage info in output, got: %s", out.String())
	}
	if !strings.Contains(out.String(), "-mqtt") {
		t.Error("expected usage to document -mqtt")
	}
}

func TestRun_BadFlag(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"--resolution", "abc"}, &out, newMockApp()); err == nil {
		t.Error("expected error for non-integer resolution")
	}
}

func TestRun_ModeError(t *testing.T) {
	app := newMockApp()
	app.err = errors.New("boom")
	var out bytes.Buffer
	if err := run([]string{"--summary"}, &out, app); err == nil || err.Error() != "boom" {
		t.Errorf("expected mode error to propagate, got %v", err)
	}
}

func TestRun_Default(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{}, &out, app)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	expectedPrefix := "occugrid version: " + Version
	if !strings.Contains(out.String(), expectedPrefix) {
		t.Errorf("expected output to contain version, got: %s", out.String())
	}
	if !strings.Contains(out.String(), "No mode selected.") {
		t.Errorf("expected output to list modes, got: %s", out.String())
	}
	if len(app.called) != 0 {
		t.Errorf("expected no mode to run, got %v", app.called)
	}
}

func TestMain_Execute(t *testing.T) {
	// Smoke test to ensure version is set
	if Version == "" {
		t.Error("expected Version to be set")
	}
}
