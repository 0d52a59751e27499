package grid

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObservations(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Store
	}{
		{
			name:  "canonical header with spaces after commas",
			input: "x, y, heading, value\n0, 0, 0, 0\n40.5, -12, 90, 1\n",
			want:  Store{{0, 0, 0, 0}, {40.5, -12, 90, 1}},
		},
		{
			name:  "reordered header case insensitive",
			input: "Value,Heading,Y,X\n1,45,2,3\n",
			want:  Store{{X: 3, Y: 2, Heading: 45, Value: 1}},
		},
		{
			name:  "unknown header falls back to position",
			input: "a,b,c,d\n1,2,3,0\n",
			want:  Store{{1, 2, 3, 0}},
		},
		{
			name:  "extra columns ignored and blank lines skipped",
			input: "x,y,heading,value,ts\n\n1,2,3,1,1700000000\n\n",
			want:  Store{{1, 2, 3, 1}},
		},
		{
			name:  "header only",
			input: "x,y,heading,value\n",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseObservations(strings.NewReader(tt.input))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseObservations mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseObservations_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantSub string
	}{
		{"not a number", "x,y,heading,value\n0,0,0,0\n1,abc,0,0\n", "line 3"},
		{"too few columns", "x,y,heading,value\n1,2,3\n", "expected 4 columns"},
		{"value out of set", "x,y,heading,value\n1,2,3,7\n", "must be 0 or 1"},
		{"nan", "x,y,heading,value\nNaN,2,3,1\n", "not a finite number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseObservations(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantSub)
		})
	}

	_, err := ParseObservations(strings.NewReader("x,y,heading,value\n1,2,3,7\n"))
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve), "value error should unwrap to ValidationError")
}

func TestParseObservations_Empty(t *testing.T) {
	got, err := ParseObservations(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseObservationsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.csv")
	require.NoError(t, os.WriteFile(path, []byte("x,y,heading,value\n5,6,7,1\n"), 0644))

	got, err := ParseObservationsFile(path)
	require.NoError(t, err)
	assert.Equal(t, Store{{5, 6, 7, 1}}, got)

	_, err = ParseObservationsFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestFormatObservations_RoundTrip(t *testing.T) {
	store := Store{{0, 0, 0, 0}, {-12.25, 300, -90, 1}}
	var buf bytes.Buffer
	require.NoError(t, FormatObservations(&buf, store))

	got, err := ParseObservations(&buf)
	require.NoError(t, err)
	assert.Equal(t, store, got)
}

func TestParseLine(t *testing.T) {
	o, err := ParseLine("10, 20, 45, 1")
	require.NoError(t, err)
	assert.Equal(t, Observation{10, 20, 45, 1}, o)

	_, err = ParseLine("10,20")
	assert.Error(t, err)
	_, err = ParseLine("1,2,3,4")
	assert.Error(t, err)
}

func TestDecodeObservations(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Store
		wantErr bool
	}{
		{"json object", `{"x":1,"y":2,"heading":90,"value":1}`, Store{{1, 2, 90, 1}}, false},
		{"json array", `[{"x":1,"y":2,"heading":0,"value":0},{"x":3,"y":4,"heading":0,"value":1}]`, Store{{1, 2, 0, 0}, {3, 4, 0, 1}}, false},
		{"csv lines", "1, 2, 0, 0\n3,4,180,1\n", Store{{1, 2, 0, 0}, {3, 4, 180, 1}}, false},
		{"empty", "  ", nil, true},
		{"bad json", `{"x":`, nil, true},
		{"bad csv", "1,2,x,0", nil, true},
		{"invalid value", `{"x":1,"y":2,"heading":0,"value":0.5}`, nil, true},
		{"explicit zeros", `{"x":0,"y":0,"heading":0,"value":0}`, Store{{0, 0, 0, 0}}, false},
		{"null field", `{"x":1,"y":null,"heading":0,"value":0}`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeObservations([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeObservations_MissingFields(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantField string
		wantIndex int
	}{
		{"only x", `{"x":5}`, "y", 0},
		{"no value", `{"x":1,"y":2,"heading":0}`, "value", 0},
		{"no heading", `{"x":1,"y":2,"value":1}`, "heading", 0},
		{"second array entry", `[{"x":1,"y":2,"heading":0,"value":0},{"x":3,"heading":0,"value":1}]`, "y", 1},
		{"empty object", `{}`, "x", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeObservations([]byte(tt.payload))
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "err = %v", err)
			assert.Equal(t, tt.wantField, ve.Field)
			assert.Equal(t, tt.wantIndex, ve.Index)
			assert.Equal(t, "missing", ve.Reason)
		})
	}
}
