package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"

	"github.com/fnb-tools/fnbmon/internal/meter"
)

var (
	hciOnce sync.Once
	hciErr  error
)

// initHCI opens the default HCI device once per process and installs it
// as the package-wide default for go-ble.
func initHCI() error {
	hciOnce.Do(func() {
		d, err := linux.NewDevice()
		if err != nil {
			hciErr = fmt.Errorf("opening HCI device: %w", err)
			return
		}
		ble.SetDefaultDevice(d)
	})
	return hciErr
}

// bleClient adapts a ble.Client to the gattClient interface.
type bleClient struct {
	client ble.Client
	write  *ble.Characteristic
	notify *ble.Characteristic
	name   string
}

func (c *bleClient) Subscribe(handler func(data []byte)) error {
	return c.client.Subscribe(c.notify, false, handler)
}

func (c *bleClient) Write(data []byte) error {
	return c.client.WriteCharacteristic(c.write, data, false)
}

func (c *bleClient) Disconnected() <-chan struct{} { return c.client.Disconnected() }

func (c *bleClient) Name() string { return c.name }

func (c *bleClient) Addr() string { return c.client.Addr().String() }

func (c *bleClient) CancelConnection() error { return c.client.CancelConnection() }

// dialBLE scans for and connects to an instrument, then resolves the two
// UART characteristics from its GATT profile.
func dialBLE(ctx context.Context, addr string, accept func(name string) bool) (gattClient, error) {
	if err := initHCI(); err != nil {
		return nil, err
	}

	var (
		cln  ble.Client
		name string
		err  error
	)
	if addr != "" {
		cln, err = ble.Dial(ctx, ble.NewAddr(addr))
	} else {
		var mu sync.Mutex
		cln, err = ble.Connect(ctx, func(a ble.Advertisement) bool {
			if !accept(a.LocalName()) {
				return false
			}
			mu.Lock()
			name = a.LocalName()
			mu.Unlock()
			return true
		})
	}
	if err != nil {
		return nil, err
	}

	profile, err := cln.DiscoverProfile(true)
	if err != nil {
		cln.CancelConnection()
		return nil, fmt.Errorf("discovering GATT profile: %w", err)
	}

	c := bleClient{client: cln, name: name}
	if c.name == "" {
		c.name = cln.Name()
	}
	for _, char := range []struct {
		uuid string
		dst  **ble.Characteristic
	}{
		{UUIDWrite, &c.write},
		{UUIDNotify, &c.notify},
	} {
		found := profile.FindCharacteristic(ble.NewCharacteristic(ble.MustParse(char.uuid)))
		if found == nil {
			cln.CancelConnection()
			return nil, fmt.Errorf("%w: characteristic %s missing",
				meter.ErrDeviceNotFound, strings.TrimSuffix(char.uuid, "-0000-1000-8000-00805f9b34fb"))
		}
		*char.dst = found
	}

	return &c, nil
}
