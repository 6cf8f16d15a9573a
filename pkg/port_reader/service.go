package port_reader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	jacobsa "github.com/jacobsa/go-serial/serial"
	"github.com/tarm/serial"
)

// Open the serial device described by cfg.
// The device is assumed present at launch, a failure is not retried.
func Open(cfg PortConfig) (*PortReader, error) {
	var (
		port io.ReadWriteCloser
		err  error
	)
	switch cfg.Driver {
	case "", "jacobsa":
		port, err = openJacobsa(cfg)
	case "tarm":
		port, err = openTarm(cfg)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, &OpenError{Device: cfg.Device, Baudrate: cfg.Baudrate, Err: err}
	}

	return NewPortReader(cfg.Device, cfg.Baudrate, port), nil
}

// NewPortReader frames lines out of an already opened port.
// Reads from port should return after at most DeviceReadTimeout.
func NewPortReader(device string, baudrate uint, port io.ReadCloser) *PortReader {
	return &PortReader{
		device:   device,
		baudrate: baudrate,
		port:     port,
		chunk:    make([]byte, 256),
	}
}

func (p *PortReader) Device() string {
	return p.device
}

func (p *PortReader) Baudrate() uint {
	return p.baudrate
}

// ReadLine returns the next newline terminated record with surrounding
// whitespace removed. At least one device read is issued. When no complete
// line arrived by deadline the error matches ErrNoData; bytes of an
// incomplete line stay buffered for the next call.
//
// Device read failures other than timeouts are absorbed: the remaining time
// until deadline is waited out and the returned error matches ErrNoData.
func (p *PortReader) ReadLine(deadline time.Time) (string, error) {
	if p.port == nil || p.isClosed() {
		return "", ErrNotConnected
	}

	for {
		if line, ok := p.takeLine(); ok {
			return line, nil
		}

		n, err := p.port.Read(p.chunk)
		if n > 0 {
			p.pending = append(p.pending, p.chunk[:n]...)
			if line, ok := p.takeLine(); ok {
				return line, nil
			}
			if len(p.pending) > MaxRecordLength {
				// Runaway record, nothing in it can be a value
				p.pending = p.pending[:0]
			}
		}

		if err != nil && !isReadTimeout(err) {
			if wait := time.Until(deadline); wait > 0 {
				time.Sleep(wait)
			}
			return "", fmt.Errorf("%w: read %s: %w", ErrNoData, p.device, err)
		}

		if !time.Now().Before(deadline) {
			return "", ErrNoData
		}
	}
}

// Close releases the device. Safe to call multiple times.
func (p *PortReader) Close() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed || p.port == nil {
		return nil
	}
	p.closed = true
	return p.port.Close()
}

func (p *PortReader) isClosed() bool {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	return p.closed
}

func (p *PortReader) takeLine() (string, bool) {
	idx := bytes.IndexByte(p.pending, '\n')
	if idx < 0 {
		return "", false
	}
	line := strings.TrimSpace(string(p.pending[:idx]))
	p.pending = p.pending[idx+1:]
	return line, true
}

// Both drivers report an expired read timeout as a zero byte read,
// which surfaces as io.EOF from the underlying file.
func isReadTimeout(err error) bool {
	return errors.Is(err, io.EOF) || os.IsTimeout(err)
}

func openJacobsa(cfg PortConfig) (io.ReadWriteCloser, error) {
	options := jacobsa.OpenOptions{
		PortName:              cfg.Device,
		BaudRate:              cfg.Baudrate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: uint(DeviceReadTimeout / time.Millisecond),
	}
	return jacobsa.Open(options)
}

func openTarm(cfg PortConfig) (io.ReadWriteCloser, error) {
	portCfg := &serial.Config{
		Name:        cfg.Device,
		Baud:        int(cfg.Baudrate),
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: DeviceReadTimeout,
	}
	return serial.OpenPort(portCfg)
}
