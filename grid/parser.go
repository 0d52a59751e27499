package grid

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var columnNames = [4]string{"x", "y", "heading", "value"}

// ParseObservationsFile reads and parses an observation table file
func ParseObservationsFile(path string) (Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseObservations(f)
}

// ParseObservations reads a comma separated table whose first row is a
// header. When the header names x, y, heading and value (any case, any
// order) those columns are used; otherwise the first four columns are taken
// in that order. Blank lines are skipped.
func ParseObservations(r io.Reader) (Store, error) {
	cr := newCSVReader(r)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Store{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := headerColumns(header)

	var store Store
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading observations: %w", err)
		}
		line, _ := cr.FieldPos(0)
		obs, err := parseRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := obs.Validate(len(store)); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		store = append(store, obs)
	}
	return store, nil
}

// ParseLine parses a single headerless "x, y, heading, value" record.
func ParseLine(line string) (Observation, error) {
	rec, err := newCSVReader(strings.NewReader(line)).Read()
	if err != nil {
		return Observation{}, fmt.Errorf("parsing line: %w", err)
	}
	obs, err := parseRecord(rec, [4]int{0, 1, 2, 3})
	if err != nil {
		return Observation{}, err
	}
	return obs, obs.Validate(0)
}

// DecodeObservations decodes a message payload holding a single JSON
// observation object, a JSON array of them, or headerless CSV lines.
func DecodeObservations(payload []byte) (Store, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var store Store
	switch trimmed[0] {
	case '{':
		var w jsonObservation
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
		o, err := w.observation(0)
		if err != nil {
			return nil, err
		}
		store = Store{o}
	case '[':
		var ws []jsonObservation
		if err := json.Unmarshal(trimmed, &ws); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
		store = make(Store, 0, len(ws))
		for i, w := range ws {
			o, err := w.observation(i)
			if err != nil {
				return nil, err
			}
			store = append(store, o)
		}
	default:
		cr := newCSVReader(bytes.NewReader(trimmed))
		for {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("parsing CSV: %w", err)
			}
			o, err := parseRecord(rec, [4]int{0, 1, 2, 3})
			if err != nil {
				line, _ := cr.FieldPos(0)
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			store = append(store, o)
		}
	}

	if err := store.Validate(); err != nil {
		return nil, err
	}
	return store, nil
}

// jsonObservation tells a missing key apart from an explicit zero.
type jsonObservation struct {
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	Heading *float64 `json:"heading"`
	Value   *float64 `json:"value"`
}

func (w jsonObservation) observation(idx int) (Observation, error) {
	fields := []struct {
		name string
		v    *float64
	}{
		{"x", w.X},
		{"y", w.Y},
		{"heading", w.Heading},
		{"value", w.Value},
	}
	for _, f := range fields {
		if f.v == nil {
			return Observation{}, &ValidationError{Field: f.name, Index: idx, Reason: "missing"}
		}
	}
	return Observation{X: *w.X, Y: *w.Y, Heading: *w.Heading, Value: *w.Value}, nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return cr
}

// headerColumns maps each observation field to its column index.
func headerColumns(header []string) [4]int {
	cols := [4]int{-1, -1, -1, -1}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		for f, want := range columnNames {
			if name == want && cols[f] < 0 {
				cols[f] = i
			}
		}
	}
	for _, c := range cols {
		if c < 0 {
			return [4]int{0, 1, 2, 3}
		}
	}
	return cols
}

func parseRecord(rec []string, cols [4]int) (Observation, error) {
	var vals [4]float64
	for f, c := range cols {
		if c >= len(rec) {
			return Observation{}, fmt.Errorf("expected %d columns, got %d", maxCol(cols)+1, len(rec))
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[c]), 64)
		if err != nil {
			return Observation{}, fmt.Errorf("column %s: %w", columnNames[f], err)
		}
		vals[f] = v
	}
	return Observation{X: vals[0], Y: vals[1], Heading: vals[2], Value: vals[3]}, nil
}

func maxCol(cols [4]int) int {
	m := cols[0]
	for _, c := range cols[1:] {
		if c > m {
			m = c
		}
	}
	return m
}

// FormatObservations writes the store as a table ParseObservations reads back.
func FormatObservations(w io.Writer, store Store) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columnNames[:]); err != nil {
		return err
	}
	for _, o := range store {
		rec := []string{
			strconv.FormatFloat(o.X, 'g', -1, 64),
			strconv.FormatFloat(o.Y, 'g', -1, 64),
			strconv.FormatFloat(o.Heading, 'g', -1, 64),
			strconv.FormatFloat(o.Value, 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
