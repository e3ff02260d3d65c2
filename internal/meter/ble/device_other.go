//go:build !linux

package ble

import (
	"context"
	"fmt"
	"runtime"
)

// The HCI socket backend is linux-only.
func dialBLE(ctx context.Context, addr string, accept func(name string) bool) (gattClient, error) {
	return nil, fmt.Errorf("bluetooth is not supported on %s", runtime.GOOS)
}
