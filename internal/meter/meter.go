package meter

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAlreadyConnected is returned by Connect when a transport is already active.
	// Switching transports requires an explicit Disconnect first.
	ErrAlreadyConnected = errors.New("already connected to a device")

	// ErrNotConnected is returned by operations that require an active transport.
	ErrNotConnected = errors.New("device not connected")

	// ErrDeviceNotFound is returned when no known device is reachable.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrPermission is returned when the device exists but cannot be claimed.
	ErrPermission = errors.New("permission denied opening device")

	// ErrTransportIO wraps mid-stream I/O failures. They are fatal to the
	// current connection and surface as a transition to StateError.
	ErrTransportIO = errors.New("transport I/O failure")
)

const (
	ConnectionUSB       ConnectionType = "usb"
	ConnectionBluetooth ConnectionType = "bluetooth"
)

// ConnectionType identifies the physical transport of a connection.
type ConnectionType string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateStreaming    ConnectionState = "streaming"
	StateError        ConnectionState = "error"
)

// ConnectionState is the transport lifecycle state. A failed connection
// parks in StateError and stays there until an explicit Connect retry;
// there is no silent auto-reconnect.
type ConnectionState string

// Reading is one instantaneous sample from the meter. Readings are
// constructed by a transport's decode step and immutable afterwards.
//
// Timestamp is taken with time.Now at decode time and therefore carries
// both the wall clock and the monotonic clock reading.
// DP, DN and Temperature are nil when the active transport cannot supply
// them (Bluetooth reports voltage, current and power only).
type Reading struct {
	Timestamp   time.Time `json:"timestamp"`
	Voltage     float64   `json:"voltage"`               // volts
	Current     float64   `json:"current"`               // amps
	Power       float64   `json:"power"`                 // watts
	DP          *float64  `json:"dp,omitempty"`          // USB D+ line, volts
	DN          *float64  `json:"dn,omitempty"`          // USB D- line, volts
	Temperature *float64  `json:"temperature,omitempty"` // degrees Celsius
	Protocol    *Protocol `json:"protocol,omitempty"`
}

// Protocol is a charging protocol classification. Produced fresh per
// reading by Classify and never mutated.
type Protocol struct {
	Name        string `json:"name"`
	Mode        string `json:"mode"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// DeviceInfo describes the connected instrument.
type DeviceInfo struct {
	VendorID  uint16 `json:"vendorId,omitempty"`
	ProductID uint16 `json:"productId,omitempty"`
	Model     string `json:"model,omitempty"`
	Serial    string `json:"serial,omitempty"`
	Address   string `json:"address,omitempty"` // Bluetooth MAC
	Name      string `json:"name,omitempty"`
}

// Transport is a physical connection to the meter. Implementations own
// their device handle exclusively and deliver decoded readings, in decode
// order, to the channel passed to Start.
//
// Start returns a channel that is closed when the read path terminates;
// a non-nil value received from it is a fatal stream error (wrapping
// ErrTransportIO). Stop must be idempotent and safe to call from a
// goroutine other than the one that called Start.
type Transport interface {
	Connect(ctx context.Context) error
	Start(ctx context.Context, readings chan<- Reading) (<-chan error, error)
	Stop()
	Close() error

	Type() ConnectionType
	Info() DeviceInfo

	// SampleInterval is the nominal time between samples for this
	// transport. It is a property of the hardware path (roughly 100 Hz
	// over USB, 10 Hz over Bluetooth) and consumers integrating over
	// time must read it rather than assume a constant.
	SampleInterval() time.Duration
}
