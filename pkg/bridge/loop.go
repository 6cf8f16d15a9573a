// Package bridge runs the ingestion loop: read a line from the device, parse
// it as a value and publish it, while a watchdog bounds the time between
// valid values.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/NotCoffee418/tether_serial/pkg/interpreter"
	"github.com/NotCoffee418/tether_serial/pkg/metrics"
	"github.com/NotCoffee418/tether_serial/pkg/port_reader"
	"github.com/NotCoffee418/tether_serial/pkg/publisher"
	"github.com/NotCoffee418/tether_serial/pkg/watchdog"
)

const DefaultReadTimeout = port_reader.DeviceReadTimeout

// LineSource yields one trimmed record per call. An error matching
// port_reader.ErrNoData means nothing complete arrived before deadline.
type LineSource interface {
	ReadLine(deadline time.Time) (string, error)
	Close() error
}

// Sources that know their device, like port_reader.PortReader, are
// announced once opened.
type deviceSource interface {
	Device() string
	Baudrate() uint
}

// Opener opens the device. Called once per Run.
type Opener func() (LineSource, error)

// SerialOpener opens a serial port through port_reader.
func SerialOpener(cfg port_reader.PortConfig) Opener {
	return func() (LineSource, error) {
		reader, err := port_reader.Open(cfg)
		if err != nil {
			return nil, err
		}
		return reader, nil
	}
}

type Option func(*Loop)

// WithWatchdog ends the loop when no value was parsed for longer than limit.
// A limit <= 0 keeps the watchdog disabled.
func WithWatchdog(limit time.Duration) Option {
	return func(l *Loop) { l.watchdogLimit = limit }
}

func WithReadTimeout(timeout time.Duration) Option {
	return func(l *Loop) {
		if timeout > 0 {
			l.readTimeout = timeout
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

func WithMetrics(m *metrics.BridgeMetrics) Option {
	return func(l *Loop) { l.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// Loop owns the device connection and the watchdog for the whole run.
type Loop struct {
	open          Opener
	sink          publisher.Publisher
	destination   string
	watchdogLimit time.Duration
	readTimeout   time.Duration
	logger        *slog.Logger
	metrics       *metrics.BridgeMetrics
	now           func() time.Time

	state           atomic.Int32
	linesRead       atomic.Uint64
	valuesPublished atomic.Uint64
	linesDiscarded  atomic.Uint64
	emptyReads      atomic.Uint64
	readErrors      atomic.Uint64
	lastValidNanos  atomic.Int64
}

func NewLoop(open Opener, sink publisher.Publisher, destination string, opts ...Option) *Loop {
	l := &Loop{
		open:        open,
		sink:        sink,
		destination: destination,
		readTimeout: DefaultReadTimeout,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run opens the device and processes lines until a terminal condition:
// *DeviceOpenError, *watchdog.TimeoutError, *PublishError, ErrDeviceLost, or ctx.Err()
// when the context was cancelled. Run never returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.setState(StateIdle)

	source, err := l.open()
	if err != nil {
		l.setState(StateDeviceOpenFailed)
		l.logger.Error("Failed to open device", "error", err)
		return &DeviceOpenError{Err: err}
	}
	defer func() {
		if err := source.Close(); err != nil {
			l.logger.Warn("Closing device failed", "error", err)
		}
	}()

	if dev, ok := source.(deviceSource); ok {
		l.logger.Info(fmt.Sprintf("Receiving data on %s at %d baud...", dev.Device(), dev.Baudrate()))
	}

	dog := watchdog.New(l.watchdogLimit, l.now())
	l.lastValidNanos.Store(dog.LastReset().UnixNano())
	l.logger.Info("Ingestion loop started",
		"destination", l.destination,
		"watchdog_limit", dog.Limit(),
		"read_timeout", l.readTimeout)

	for {
		if err := ctx.Err(); err != nil {
			l.setState(StateStopped)
			return err
		}

		now := l.now()
		if l.metrics != nil {
			l.metrics.WatchdogElapsed.Set(dog.Elapsed(now).Seconds())
		}
		if err := dog.Check(now); err != nil {
			l.setState(StateTimedOut)
			var timeoutErr *watchdog.TimeoutError
			if errors.As(err, &timeoutErr) {
				l.logger.Error("Watchdog timed out",
					"elapsed", timeoutErr.Elapsed,
					"limit", timeoutErr.Limit)
			}
			return err
		}

		l.setState(StateReading)
		line, err := source.ReadLine(now.Add(l.readTimeout))
		if errors.Is(err, port_reader.ErrNotConnected) {
			// Closed under the loop, further reads cannot succeed
			l.setState(StateDeviceLost)
			l.logger.Error("Device connection lost", "error", err)
			return fmt.Errorf("%w: %w", ErrDeviceLost, err)
		}
		if err != nil {
			l.absorbReadError(err)
			l.setState(StateIdle)
			continue
		}
		l.linesRead.Add(1)
		l.inc(func(m *metrics.BridgeMetrics) { m.LinesRead.Inc() })
		l.logger.Debug("Line received", "line", line)

		value, ok := interpreter.ParseValue(line)
		if !ok {
			l.linesDiscarded.Add(1)
			l.inc(func(m *metrics.BridgeMetrics) { m.LinesDiscarded.Inc() })
			l.setState(StateIdle)
			continue
		}

		parsedAt := l.now()
		dog.Reset(parsedAt)
		l.lastValidNanos.Store(parsedAt.UnixNano())
		l.logger.Debug("Value parsed", "value", value)

		l.setState(StatePublishing)
		if err := l.sink.Publish(ctx, l.destination, value); err != nil {
			if ctx.Err() != nil {
				// Shutdown interrupted the publish, not a sink failure
				l.setState(StateStopped)
				return ctx.Err()
			}
			l.setState(StatePublishFailed)
			l.inc(func(m *metrics.BridgeMetrics) { m.PublishFailures.Inc() })
			l.logger.Error("Failed to publish",
				"destination", l.destination,
				"value", value,
				"error", err)
			return &PublishError{Destination: l.destination, Value: value, Err: err}
		}
		l.valuesPublished.Add(1)
		l.inc(func(m *metrics.BridgeMetrics) {
			m.ValuesPublished.Inc()
			m.LastValue.Set(float64(value))
		})
		l.setState(StateIdle)
	}
}

// Read errors are recoverable: a silent device or a failed read only means
// no value this iteration. A dead device is bounded by the watchdog.
func (l *Loop) absorbReadError(err error) {
	if err == port_reader.ErrNoData {
		l.emptyReads.Add(1)
		l.inc(func(m *metrics.BridgeMetrics) { m.EmptyReads.Inc() })
		return
	}
	l.readErrors.Add(1)
	l.inc(func(m *metrics.BridgeMetrics) { m.ReadErrors.Inc() })
	l.logger.Debug("Device read failed", "error", err)
}

func (l *Loop) inc(update func(m *metrics.BridgeMetrics)) {
	if l.metrics != nil {
		update(l.metrics)
	}
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) Destination() string {
	return l.destination
}

// Stats is safe to call while Run is active.
func (l *Loop) Stats() Stats {
	stats := Stats{
		LinesRead:       l.linesRead.Load(),
		ValuesPublished: l.valuesPublished.Load(),
		LinesDiscarded:  l.linesDiscarded.Load(),
		EmptyReads:      l.emptyReads.Load(),
		ReadErrors:      l.readErrors.Load(),
	}
	if last := l.lastValidNanos.Load(); last != 0 {
		stats.WatchdogElapsedMs = l.now().Sub(time.Unix(0, last)).Milliseconds()
	}
	return stats
}
