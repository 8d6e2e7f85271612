package channel

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"go.bug.st/serial"

	poserrors "github.com/issac1998/pos-relay/internal/errors"
)

// Source opens the byte stream behind a channel. Finite sources end at
// EOF instead of being reopened.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Finite() bool
	String() string
}

type SerialOptions struct {
	BaudRate    int
	DataBits    int
	Parity      string
	StopBits    string
	ReadTimeout time.Duration
}

// NewSource picks a source from a device string: tcp://host:port,
// file://path, or a serial port name.
func NewSource(device string, opts SerialOptions) (Source, error) {
	switch {
	case strings.HasPrefix(device, "tcp://"):
		return &tcpSource{addr: strings.TrimPrefix(device, "tcp://")}, nil
	case strings.HasPrefix(device, "file://"):
		return NewFileSource(strings.TrimPrefix(device, "file://")), nil
	default:
		mode, err := serialMode(opts)
		if err != nil {
			return nil, err
		}
		timeout := opts.ReadTimeout
		if timeout <= 0 {
			timeout = time.Second
		}
		return &serialSource{port: device, mode: mode, readTimeout: timeout}, nil
	}
}

func serialMode(opts SerialOptions) (*serial.Mode, error) {
	mode := &serial.Mode{BaudRate: opts.BaudRate, DataBits: opts.DataBits}
	if mode.BaudRate == 0 {
		mode.BaudRate = 9600
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}

	switch strings.ToLower(opts.Parity) {
	case "", "none", "n":
		mode.Parity = serial.NoParity
	case "even", "e":
		mode.Parity = serial.EvenParity
	case "odd", "o":
		mode.Parity = serial.OddParity
	case "mark", "m":
		mode.Parity = serial.MarkParity
	case "space", "s":
		mode.Parity = serial.SpaceParity
	default:
		return nil, poserrors.Config(fmt.Sprintf("unknown parity %q", opts.Parity), nil)
	}

	switch opts.StopBits {
	case "", "1":
		mode.StopBits = serial.OneStopBit
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, poserrors.Config(fmt.Sprintf("unknown stop bits %q", opts.StopBits), nil)
	}
	return mode, nil
}

type serialSource struct {
	port        string
	mode        *serial.Mode
	readTimeout time.Duration
}

func (s *serialSource) Open(ctx context.Context) (io.ReadCloser, error) {
	port, err := serial.Open(s.port, s.mode)
	if err != nil {
		return nil, poserrors.Transport(fmt.Sprintf("open serial port %s", s.port), err)
	}
	if err := port.SetReadTimeout(s.readTimeout); err != nil {
		port.Close()
		return nil, poserrors.Transport(fmt.Sprintf("set read timeout on %s", s.port), err)
	}
	return &serialReader{ctx: ctx, port: port}, nil
}

func (s *serialSource) Finite() bool   { return false }
func (s *serialSource) String() string { return "serial:" + s.port }

// serialReader turns read timeouts, which the port reports as
// zero-byte reads, into blocking reads that still observe ctx.
type serialReader struct {
	ctx  context.Context
	port serial.Port
}

func (r *serialReader) Read(p []byte) (int, error) {
	for {
		n, err := r.port.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}
	}
}

func (r *serialReader) Close() error {
	return r.port.Close()
}

type tcpSource struct {
	addr string
}

func (s *tcpSource) Open(ctx context.Context) (io.ReadCloser, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, poserrors.Transport(fmt.Sprintf("dial %s", s.addr), err)
	}
	return conn, nil
}

func (s *tcpSource) Finite() bool   { return false }
func (s *tcpSource) String() string { return "tcp://" + s.addr }

// NewFileSource replays captured streams back to back, in order
func NewFileSource(paths ...string) Source {
	return &fileSource{paths: paths}
}

type fileSource struct {
	paths []string
}

func (s *fileSource) Open(context.Context) (io.ReadCloser, error) {
	m := &multiFile{}
	readers := make([]io.Reader, 0, len(s.paths))
	for _, path := range s.paths {
		f, err := os.Open(path)
		if err != nil {
			m.Close()
			return nil, poserrors.Transport(fmt.Sprintf("open capture %s", path), err)
		}
		m.files = append(m.files, f)
		readers = append(readers, f)
	}
	m.Reader = io.MultiReader(readers...)
	return m, nil
}

func (s *fileSource) Finite() bool   { return true }
func (s *fileSource) String() string { return "file://" + strings.Join(s.paths, ",") }

// multiFile reads its files in sequence
type multiFile struct {
	io.Reader
	files []*os.File
}

func (m *multiFile) Close() error {
	var first error
	for _, f := range m.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
