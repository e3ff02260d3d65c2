package usb

import (
	"fmt"
	"sync"

	"github.com/sstallion/go-hid"

	"github.com/fnb-tools/fnbmon/internal/meter"
)

var hidInitOnce sync.Once

// openHID is the production opener backed by hidapi via sstallion/go-hid.
func openHID(m Model) (hidDevice, string, error) {
	hidInitOnce.Do(func() { _ = hid.Init() })

	var path, serial string
	err := hid.Enumerate(m.VendorID, m.ProductID, func(info *hid.DeviceInfo) error {
		path = info.Path
		serial = info.SerialNbr
		return nil
	})
	if err != nil || path == "" {
		return nil, "", fmt.Errorf("%w: %s (%04x:%04x)",
			meter.ErrDeviceNotFound, m.Name, m.VendorID, m.ProductID)
	}

	dev, err := hid.OpenPath(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", meter.ErrPermission, m.Name, err)
	}
	return dev, serial, nil
}
