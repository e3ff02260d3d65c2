// Package usb implements the wired HID transport. It owns the device
// handle and a dedicated read goroutine performing blocking reads with a
// short timeout, so Stop can always interrupt the loop within that bound.
package usb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fnb-tools/fnbmon/internal/meter"
	"github.com/fnb-tools/fnbmon/internal/meter/wire"
)

const (
	// readTimeout bounds each blocking HID read. A timeout is an empty
	// poll, not an error.
	readTimeout = 50 * time.Millisecond

	// Keep-alive cadence. Without the packet the device stops streaming
	// after a few seconds; the fast-refresh models want it with nearly
	// every read, the FNB58 and FNB48S only about once a second.
	keepAliveInterval     = 3 * time.Millisecond
	keepAliveIntervalSlow = time.Second

	// sampleInterval is the nominal USB sampling period (about 100 Hz,
	// four samples per packet).
	sampleInterval = 10 * time.Millisecond
)

// Model is one known vendor/product pair. All models share the same
// packet format.
type Model struct {
	VendorID  uint16
	ProductID uint16
	Name      string

	// SlowRefresh marks models that stream at a reduced rate and expect
	// the relaxed keep-alive cadence.
	SlowRefresh bool
}

func (m Model) keepAliveInterval() time.Duration {
	if m.SlowRefresh {
		return keepAliveIntervalSlow
	}
	return keepAliveInterval
}

// SupportedModels lists the instruments this transport can claim, probed
// in order.
var SupportedModels = []Model{
	{VendorID: 0x2E3C, ProductID: 0x0049, Name: "FNB48P/S", SlowRefresh: true},
	{VendorID: 0x2E3C, ProductID: 0x5558, Name: "FNB58", SlowRefresh: true},
	{VendorID: 0x0483, ProductID: 0x003A, Name: "FNB48"},
	{VendorID: 0x0483, ProductID: 0x003B, Name: "C1"},
}

// hidDevice is the slice of the HID API the transport needs. The real
// implementation wraps sstallion/go-hid; tests substitute a fake.
type hidDevice interface {
	ReadWithTimeout(p []byte, timeout time.Duration) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// opener claims the HID interface for a model. It returns the device and
// its serial number, or an error wrapping meter.ErrDeviceNotFound when no
// such device is attached.
type opener func(m Model) (hidDevice, string, error)

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) func(*Transport) {
	return func(t *Transport) {
		t.logger = logger.With(slog.String("transport", string(meter.ConnectionUSB)))
	}
}

// Transport is the USB HID transport. Create with New, then Connect,
// Start, Stop, Close.
type Transport struct {
	logger *slog.Logger
	open   opener

	mu    sync.Mutex
	dev   hidDevice
	model Model
	info  meter.DeviceInfo

	streaming atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a disconnected USB transport.
func New(options ...func(*Transport)) *Transport {
	t := Transport{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		open:   openHID,
	}
	for _, option := range options {
		option(&t)
	}
	return &t
}

func (t *Transport) Type() meter.ConnectionType { return meter.ConnectionUSB }

func (t *Transport) SampleInterval() time.Duration { return sampleInterval }

func (t *Transport) Info() meter.DeviceInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// Connect probes the supported vendor/product pairs and claims the first
// attached instrument.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev != nil {
		return meter.ErrAlreadyConnected
	}

	var lastErr error
	for _, m := range SupportedModels {
		if err := ctx.Err(); err != nil {
			return err
		}

		dev, serial, err := t.open(m)
		if err != nil {
			if !errors.Is(err, meter.ErrDeviceNotFound) {
				lastErr = err
			}
			continue
		}

		t.dev = dev
		t.model = m
		t.info = meter.DeviceInfo{
			VendorID:  m.VendorID,
			ProductID: m.ProductID,
			Model:     m.Name,
			Serial:    serial,
		}
		t.logger.Info("claimed device",
			slog.String("model", m.Name),
			slog.String("serial", serial))
		return nil
	}

	if lastErr != nil {
		return lastErr
	}
	return meter.ErrDeviceNotFound
}

// Start spawns the read loop. Decoded readings are sent to the channel in
// packet order. The returned channel is closed when the loop exits; a
// value received from it is the fatal stream error.
func (t *Transport) Start(ctx context.Context, readings chan<- meter.Reading) (<-chan error, error) {
	t.mu.Lock()
	dev := t.dev
	t.mu.Unlock()

	if dev == nil {
		return nil, meter.ErrNotConnected
	}
	if !t.streaming.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("transport is already streaming")
	}

	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	stopped := make(chan error, 1)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(stopped)
		defer t.streaming.Store(false)

		if err := t.readLoop(ctx, dev, readings); err != nil {
			t.logger.Error(err.Error())
			stopped <- err
		}
	}()

	return stopped, nil
}

func (t *Transport) readLoop(ctx context.Context, dev hidDevice, readings chan<- meter.Reading) error {
	t.logger.Info("starting read loop")
	defer t.logger.Info("read loop stopped")

	t.mu.Lock()
	interval := t.model.keepAliveInterval()
	t.mu.Unlock()

	keepAlive := wire.KeepAlive()
	if _, err := dev.Write(keepAlive); err != nil {
		return fmt.Errorf("%w: writing initial keep-alive: %w", meter.ErrTransportIO, err)
	}
	nextKeepAlive := time.Now().Add(interval)

	buf := make([]byte, wire.PacketSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := dev.ReadWithTimeout(buf, readTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil // raced with Stop, not a stream failure
			}
			return fmt.Errorf("%w: reading packet: %w", meter.ErrTransportIO, err)
		}

		if n > 0 {
			decoded, err := wire.DecodePacket(buf[:n], time.Now())
			if err != nil {
				// Framing mismatch: drop the packet, keep the stream.
				t.logger.Warn("dropping packet", slog.Any("error", err))
			}
			for _, r := range decoded {
				select {
				case readings <- r:
				case <-ctx.Done():
					return nil
				}
			}
		}

		if now := time.Now(); now.After(nextKeepAlive) {
			nextKeepAlive = now.Add(interval)
			if _, err := dev.Write(keepAlive); err != nil {
				return fmt.Errorf("%w: writing keep-alive: %w", meter.ErrTransportIO, err)
			}
		}
	}
}

// Stop terminates the read loop and waits for it with the read timeout as
// the natural bound. Idempotent and safe from any goroutine.
func (t *Transport) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}

// Close stops streaming and releases the device handle.
func (t *Transport) Close() error {
	t.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		return nil
	}
	err := t.dev.Close()
	t.dev = nil
	t.info = meter.DeviceInfo{}
	return err
}
