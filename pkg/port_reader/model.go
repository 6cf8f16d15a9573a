package port_reader

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	// Bound on a single device read. Keeps the caller responsive
	// to its own deadline while the device is silent.
	DeviceReadTimeout = 100 * time.Millisecond

	// Pending bytes without a newline beyond this length are dropped.
	MaxRecordLength = 4096
)

var (
	ErrNoData        = errors.New("no complete line before deadline")
	ErrNotConnected  = errors.New("serial port not connected")
	ErrUnknownDriver = errors.New("unknown serial driver")
)

type PortConfig struct {
	Device   string
	Baudrate uint
	// "jacobsa" (default) or "tarm"
	Driver string
}

// OpenError reports a device that could not be opened at startup.
type OpenError struct {
	Device   string
	Baudrate uint
	Err      error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("failed to open %q at %d baud: %v", e.Device, e.Baudrate, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// PortReader frames newline terminated records out of a serial byte stream.
// It is owned by a single goroutine; only Close may be called concurrently.
type PortReader struct {
	device   string
	baudrate uint
	port     io.ReadCloser
	chunk    []byte
	pending  []byte
	closeMu  sync.Mutex
	closed   bool
}
