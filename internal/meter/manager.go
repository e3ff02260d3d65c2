package meter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"
)

const (
	// defaultChannelCapacity bounds the fan-in channel between a transport
	// read loop and the dispatch goroutine.
	defaultChannelCapacity = 256

	// defaultBufferSize is the capacity of the manager's reading history.
	defaultBufferSize = 1000
)

// ConnectionMode selects which transport Connect tries.
type ConnectionMode string

const (
	ModeAuto      ConnectionMode = "auto"
	ModeUSB       ConnectionMode = "usb"
	ModeBluetooth ConnectionMode = "bluetooth"
)

// Status is a point-in-time snapshot of the manager.
type Status struct {
	State          ConnectionState `json:"state"`
	ConnectionType ConnectionType  `json:"connectionType,omitempty"`
	Device         DeviceInfo      `json:"device,omitempty"`
}

// Subscription is a handle to a reading feed. Readings arrive on C in
// dispatch order, each delivered exactly once. Delivery is synchronous: a
// subscriber that stops reading backpressures the dispatch loop until it
// catches up or unsubscribes.
type Subscription struct {
	C <-chan Reading

	id   int
	ch   chan Reading
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// push queues one reading, blocking until the subscriber makes room, the
// subscription is torn down or the stream stops.
func (s *Subscription) push(r Reading, cancel <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	case <-s.done:
	case <-cancel:
	}
}

func (s *Subscription) close() {
	close(s.done) // unblocks an in-flight push

	s.mu.Lock()
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
}

// WithManagerLogger sets the manager logger.
func WithManagerLogger(logger *slog.Logger) func(*Manager) {
	return func(m *Manager) {
		m.logger = logger.With(slog.String("component", "manager"))
	}
}

// WithBufferSize sets the capacity of the reading history buffer.
func WithBufferSize(size int) func(*Manager) {
	return func(m *Manager) {
		m.bufferSize = size
	}
}

// WithChannelCapacity sets the fan-in channel capacity.
func WithChannelCapacity(capacity int) func(*Manager) {
	return func(m *Manager) {
		m.channelCapacity = capacity
	}
}

// WithStateListener registers a callback invoked on every state
// transition. Callbacks run on the goroutine driving the transition and
// must not block.
func WithStateListener(fn func(old, new ConnectionState)) func(*Manager) {
	return func(m *Manager) {
		m.listeners = append(m.listeners, fn)
	}
}

// Manager owns at most one active transport at a time and fans decoded
// readings out to subscribers. Each reading is stamped with the detected
// charging protocol before dispatch.
type Manager struct {
	logger *slog.Logger
	usb    Transport
	ble    Transport

	bufferSize      int
	channelCapacity int
	listeners       []func(old, new ConnectionState)

	mu     sync.Mutex
	active Transport
	state  ConnectionState
	subs   []*Subscription
	nextID int

	buffer *ReadingBuffer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a Manager over the given transports. Either may be
// nil when the platform lacks that transport.
func NewManager(usb, ble Transport, options ...func(*Manager)) *Manager {
	m := Manager{
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		usb:             usb,
		ble:             ble,
		bufferSize:      defaultBufferSize,
		channelCapacity: defaultChannelCapacity,
		state:           StateDisconnected,
	}

	for _, option := range options {
		option(&m)
	}

	m.buffer = NewReadingBuffer(m.bufferSize)
	return &m
}

// setState must be called with m.mu held.
func (m *Manager) setState(state ConnectionState) {
	if m.state == state {
		return
	}
	old := m.state
	m.state = state
	m.logger.Info("state change",
		slog.String("from", string(old)),
		slog.String("to", string(state)))
	for _, fn := range m.listeners {
		fn(old, state)
	}
}

// State returns the current connection state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns the current state and, when connected, the active
// transport's identity.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{State: m.state}
	if m.active != nil {
		s.ConnectionType = m.active.Type()
		s.Device = m.active.Info()
	}
	return s
}

// Connect establishes a device connection using the requested mode. Auto
// tries Bluetooth first and falls back to USB. Connecting while a device
// is already connected returns ErrAlreadyConnected; disconnect first to
// switch transports.
func (m *Manager) Connect(ctx context.Context, mode ConnectionMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return ErrAlreadyConnected
	}

	var candidates []Transport
	switch mode {
	case ModeUSB:
		candidates = []Transport{m.usb}
	case ModeBluetooth:
		candidates = []Transport{m.ble}
	case ModeAuto, "":
		candidates = []Transport{m.ble, m.usb}
	default:
		return fmt.Errorf("unknown connection mode '%s'", mode)
	}

	m.setState(StateConnecting)

	var lastErr error
	for _, t := range candidates {
		if t == nil {
			continue
		}
		if err := t.Connect(ctx); err != nil {
			m.logger.Warn("transport connect failed",
				slog.String("transport", string(t.Type())),
				slog.Any("error", err))
			lastErr = err
			continue
		}

		m.active = t
		m.setState(StateConnected)
		return nil
	}

	m.setState(StateDisconnected)
	if lastErr != nil {
		return lastErr
	}
	return ErrDeviceNotFound
}

// Start begins streaming from the connected transport. Readings flow
// through a single dispatch goroutine which stamps the charging protocol,
// appends to the history buffer and fans out to subscribers in
// subscription order.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return ErrNotConnected
	}
	if m.state == StateStreaming {
		return fmt.Errorf("already streaming")
	}

	ctx, cancel := context.WithCancel(ctx)
	readings := make(chan Reading, m.channelCapacity)

	stopped, err := m.active.Start(ctx, readings)
	if err != nil {
		cancel()
		return fmt.Errorf("starting transport: %w", err)
	}

	m.cancel = cancel
	m.setState(StateStreaming)

	m.wg.Add(1)
	go m.dispatch(ctx, readings, stopped)

	return nil
}

func (m *Manager) dispatch(ctx context.Context, readings <-chan Reading, stopped <-chan error) {
	defer m.wg.Done()

	for {
		select {
		case r := <-readings:
			m.deliver(ctx, r)

		case err, ok := <-stopped:
			// Drain anything the transport managed to send before it
			// stopped.
			for {
				select {
				case r := <-readings:
					m.deliver(ctx, r)
					continue
				default:
				}
				break
			}

			m.mu.Lock()
			if ok && err != nil {
				m.logger.Error("stream failed", slog.Any("error", err))
				m.setState(StateError)
			} else if m.state == StateStreaming {
				m.setState(StateConnected)
			}
			m.mu.Unlock()
			return

		case <-ctx.Done():
			m.mu.Lock()
			if m.state == StateStreaming {
				m.setState(StateConnected)
			}
			m.mu.Unlock()
			return
		}
	}
}

// deliver stamps, buffers and fans out one reading.
func (m *Manager) deliver(ctx context.Context, r Reading) {
	if r.Protocol == nil {
		var dp, dn float64
		if r.DP != nil {
			dp = *r.DP
		}
		if r.DN != nil {
			dn = *r.DN
		}
		p := Classify(r.Voltage, dp, dn)
		r.Protocol = &p
	}

	m.buffer.Append(r)

	m.mu.Lock()
	subs := slices.Clone(m.subs)
	m.mu.Unlock()

	// Serial, synchronous fan-out in subscription order: every
	// subscriber sees every reading exactly once, and a stalled one
	// holds up the stream rather than losing samples.
	for _, sub := range subs {
		sub.push(r, ctx.Done())
	}
}

// Stop halts streaming but keeps the connection open.
func (m *Manager) Stop() {
	m.mu.Lock()
	active := m.active
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if active == nil {
		return
	}

	active.Stop()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Disconnect stops streaming and closes the active transport. Safe to
// call when already disconnected.
func (m *Manager) Disconnect() error {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil
	}

	err := m.active.Close()
	m.active = nil
	m.setState(StateDisconnected)
	return err
}

// Subscribe registers a reading feed with the given buffer capacity.
func (m *Manager) Subscribe(capacity int) *Subscription {
	if capacity <= 0 {
		capacity = defaultChannelCapacity
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Reading, capacity)
	sub := &Subscription{C: ch, id: m.nextID, ch: ch, done: make(chan struct{})}
	m.nextID++
	m.subs = append(m.subs, sub)
	return sub
}

// Unsubscribe removes the feed and closes its channel.
func (m *Manager) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	m.mu.Lock()
	for i, s := range m.subs {
		if s.id == sub.id {
			m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
			m.mu.Unlock()
			sub.close()
			return
		}
	}
	m.mu.Unlock()
}

// Latest returns the most recent reading, if any.
func (m *Manager) Latest() (Reading, bool) {
	return m.buffer.Latest()
}

// Recent returns up to n most recent readings, oldest first.
func (m *Manager) Recent(n int) []Reading {
	return m.buffer.Recent(n)
}

// SampleInterval returns the active transport's nominal sampling period,
// or zero when disconnected.
func (m *Manager) SampleInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return 0
	}
	return m.active.SampleInterval()
}
