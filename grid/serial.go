package grid

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// PortOptions describes the serial connection parameters.
type PortOptions struct {
	BaudRate int    `json:"baudRate"`
	DataBits int    `json:"dataBits"`
	StopBits int    `json:"stopBits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and fills in defaults (19200 8N1).
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 19200
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch parity := strings.TrimSpace(strings.ToUpper(opts.Parity)); parity {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	return opts, nil
}

// SerialMode converts the options into the mode passed to serial.Open.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{BaudRate: opts.BaudRate, DataBits: opts.DataBits, StopBits: serial.OneStopBit}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// OpenSerialSource opens the port at path and wraps it in a LineSource.
func OpenSerialSource(path string, opts PortOptions, handler ObservationHandler, logger *zap.Logger) (*LineSource, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", path, err)
	}
	return NewLineSource(port, handler, orNop(logger).With(zap.String("port", path))), nil
}

// LineSource reads newline-delimited observation records from a stream.
// A leading header line is used to map columns; malformed lines are logged
// and skipped. Each parsed observation is passed to the handler on its own.
type LineSource struct {
	rc      io.ReadCloser
	handler ObservationHandler
	logger  *zap.Logger

	cols      [4]int
	sawFirst  bool
	Forwarded int
	Skipped   int
}

func NewLineSource(rc io.ReadCloser, handler ObservationHandler, logger *zap.Logger) *LineSource {
	return &LineSource{
		rc:      rc,
		handler: handler,
		logger:  orNop(logger),
		cols:    [4]int{0, 1, 2, 3},
	}
}

// Run reads until the stream ends or ctx is cancelled. The stream is closed
// on return. End of stream returns nil; cancellation returns ctx.Err().
func (s *LineSource) Run(ctx context.Context) error {
	defer func() { _ = s.rc.Close() }()
	scan := bufio.NewScanner(s.rc)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErrChan:
			return fmt.Errorf("reading observation stream: %w", err)
		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return fmt.Errorf("reading observation stream: %w", err)
				default:
					return nil
				}
			}
			s.handleLine(line)
		}
	}
}

func (s *LineSource) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	rec, err := newCSVReader(strings.NewReader(line)).Read()
	if err != nil {
		s.skip(line, err)
		return
	}

	if !s.sawFirst {
		s.sawFirst = true
		if isHeader(rec) {
			s.cols = headerColumns(rec)
			s.logger.Debug("observation header", zap.Strings("columns", rec))
			return
		}
	}

	obs, err := parseRecord(rec, s.cols)
	if err == nil {
		err = obs.Validate(-1)
	}
	if err != nil {
		s.skip(line, err)
		return
	}
	s.Forwarded++
	if s.handler != nil {
		s.handler(Store{obs}, nil)
	}
}

func (s *LineSource) skip(line string, err error) {
	s.Skipped++
	s.logger.Warn("skipping malformed observation line", zap.String("line", line), zap.Error(err))
}

// isHeader reports whether the first field is not a number.
func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
	return err != nil
}
