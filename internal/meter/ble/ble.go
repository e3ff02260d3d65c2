// Package ble implements the Bluetooth LE transport. The meter exposes a
// UART-style GATT service: commands go to one characteristic, measurement
// notifications arrive on another. Notifications must be enabled before
// the start command is written or the instrument never begins streaming.
package ble

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fnb-tools/fnbmon/internal/meter"
	"github.com/fnb-tools/fnbmon/internal/meter/wire"
)

const (
	// UUIDWrite is the command characteristic.
	UUIDWrite = "0000ffe9-0000-1000-8000-00805f9b34fb"

	// UUIDNotify is the measurement notification characteristic.
	UUIDNotify = "0000ffe4-0000-1000-8000-00805f9b34fb"

	// scanTimeout bounds device discovery during Connect.
	scanTimeout = 10 * time.Second

	// sampleInterval is the nominal notification period (about 10 Hz,
	// one sample per notification).
	sampleInterval = 100 * time.Millisecond
)

// namePrefixes are the advertised local name prefixes the scanner accepts.
var namePrefixes = []string{"FNB58", "FNB48", "C1", "FNIRSI"}

// matchName reports whether an advertised name belongs to a supported
// instrument.
func matchName(name string) bool {
	for _, prefix := range namePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// gattClient is the slice of the GATT API the transport needs. The real
// implementation wraps go-ble/ble; tests substitute a fake.
type gattClient interface {
	// Subscribe enables notifications on the measurement characteristic
	// and delivers each notification payload to the handler.
	Subscribe(handler func(data []byte)) error

	// Write sends a command frame to the command characteristic.
	Write(data []byte) error

	// Disconnected is closed when the link drops.
	Disconnected() <-chan struct{}

	Name() string
	Addr() string
	CancelConnection() error
}

// dialer scans for a supported instrument and connects to it. When addr
// is non-empty only that peripheral is taken; otherwise the accept
// predicate decides which advertised names to take.
type dialer func(ctx context.Context, addr string, accept func(name string) bool) (gattClient, error)

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) func(*Transport) {
	return func(t *Transport) {
		t.logger = logger.With(slog.String("transport", string(meter.ConnectionBluetooth)))
	}
}

// WithAddress pins Connect to a specific peripheral address instead of
// scanning by name.
func WithAddress(addr string) func(*Transport) {
	return func(t *Transport) {
		t.addr = addr
	}
}

// Transport is the Bluetooth LE transport. Create with New, then Connect,
// Start, Stop, Close.
type Transport struct {
	logger *slog.Logger
	dial   dialer
	addr   string

	mu     sync.Mutex
	client gattClient
	info   meter.DeviceInfo

	streaming atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a disconnected Bluetooth transport.
func New(options ...func(*Transport)) *Transport {
	t := Transport{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		dial:   dialBLE,
	}
	for _, option := range options {
		option(&t)
	}
	return &t
}

func (t *Transport) Type() meter.ConnectionType { return meter.ConnectionBluetooth }

func (t *Transport) SampleInterval() time.Duration { return sampleInterval }

func (t *Transport) Info() meter.DeviceInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// Connect scans for an advertising instrument and establishes the link.
// Discovery is bounded by scanTimeout unless ctx expires first.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return meter.ErrAlreadyConnected
	}

	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	client, err := t.dial(ctx, t.addr, matchName)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: scan timed out", meter.ErrDeviceNotFound)
		}
		return fmt.Errorf("connecting: %w", err)
	}

	t.client = client
	t.info = meter.DeviceInfo{
		Model:   client.Name(),
		Address: client.Addr(),
	}
	t.logger.Info("connected",
		slog.String("name", client.Name()),
		slog.String("address", client.Addr()))
	return nil
}

// Start enables notifications, sends the initialization sequence and
// begins decoding measurement notifications into the channel. The
// returned channel is closed when streaming ends; a value received from
// it is the fatal stream error.
func (t *Transport) Start(ctx context.Context, readings chan<- meter.Reading) (<-chan error, error) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil {
		return nil, meter.ErrNotConnected
	}
	if !t.streaming.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("transport is already streaming")
	}

	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	// Notifications first: the instrument discards the start command if
	// nothing is listening on the measurement characteristic.
	err := client.Subscribe(func(data []byte) {
		r, ok := wire.DecodeNotification(data, time.Now())
		if !ok {
			return
		}
		select {
		case readings <- r:
		case <-ctx.Done():
		}
	})
	if err != nil {
		cancel()
		t.streaming.Store(false)
		return nil, fmt.Errorf("%w: enabling notifications: %w", meter.ErrTransportIO, err)
	}

	for _, cmd := range [][]byte{
		wire.Frame(wire.CmdGetInfo, nil),
		wire.Frame(wire.CmdGetStatus, nil),
		wire.Frame(wire.CmdStart, nil),
	} {
		if err := client.Write(cmd); err != nil {
			cancel()
			t.streaming.Store(false)
			return nil, fmt.Errorf("%w: writing init command: %w", meter.ErrTransportIO, err)
		}
	}

	stopped := make(chan error, 1)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(stopped)
		defer t.streaming.Store(false)

		t.logger.Info("streaming started")
		select {
		case <-ctx.Done():
			// Best effort: tell the instrument to stop sending.
			if err := client.Write(wire.Frame(wire.CmdStop, nil)); err != nil {
				t.logger.Warn("stop command failed", slog.Any("error", err))
			}
		case <-client.Disconnected():
			stopped <- fmt.Errorf("%w: link lost", meter.ErrTransportIO)
		}
		t.logger.Info("streaming stopped")
	}()

	return stopped, nil
}

// Stop terminates streaming. Idempotent and safe from any goroutine.
func (t *Transport) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}

// Close stops streaming and tears down the link.
func (t *Transport) Close() error {
	t.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil
	}
	err := t.client.CancelConnection()
	t.client = nil
	t.info = meter.DeviceInfo{}
	return err
}
