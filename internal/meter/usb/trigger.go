package usb

import (
	"encoding/binary"
	"fmt"

	"github.com/fnb-tools/fnbmon/internal/meter"
)

// Fast-charge trigger command prefix. Trigger commands bypass the framed
// command format: they are raw 3-4 byte sequences padded to a full HID
// report.
const triggerMarker byte = 0x5A

// triggerCommands maps protocol -> target volts -> command bytes.
var triggerCommands = map[string]map[int][]byte{
	"pd": {
		5:  {triggerMarker, 0x01, 0x05},
		9:  {triggerMarker, 0x01, 0x09},
		12: {triggerMarker, 0x01, 0x0C},
		15: {triggerMarker, 0x01, 0x0F},
		20: {triggerMarker, 0x01, 0x14},
	},
	"qc": {
		5:  {triggerMarker, 0x02, 0x05},
		9:  {triggerMarker, 0x02, 0x09},
		12: {triggerMarker, 0x02, 0x0C},
	},
	"afc": {
		5:  {triggerMarker, 0x03, 0x05},
		9:  {triggerMarker, 0x03, 0x09},
		12: {triggerMarker, 0x03, 0x0C},
	},
	"fcp": {
		5:  {triggerMarker, 0x04, 0x05},
		9:  {triggerMarker, 0x04, 0x09},
		12: {triggerMarker, 0x04, 0x0C},
	},
	"scp": {
		5:  {triggerMarker, 0x05, 0x05},
		9:  {triggerMarker, 0x05, 0x09},
		12: {triggerMarker, 0x05, 0x0C},
	},
	"vooc": {
		5:  {triggerMarker, 0x06, 0x05},
		10: {triggerMarker, 0x06, 0x0A},
	},
}

func pad64(cmd []byte) []byte {
	buf := make([]byte, 64)
	copy(buf, cmd)
	return buf
}

// Trigger requests the charger to switch to a fast-charge protocol at the
// given target voltage. Only available over USB.
func (t *Transport) Trigger(protocol string, voltage int) error {
	t.mu.Lock()
	dev := t.dev
	t.mu.Unlock()

	if dev == nil {
		return meter.ErrNotConnected
	}

	byVoltage, ok := triggerCommands[protocol]
	if !ok {
		return fmt.Errorf("unknown trigger protocol %q", protocol)
	}
	cmd, ok := byVoltage[voltage]
	if !ok {
		return fmt.Errorf("unsupported voltage %dV for %s", voltage, protocol)
	}

	if _, err := dev.Write(pad64(cmd)); err != nil {
		return fmt.Errorf("writing trigger command: %w", err)
	}
	t.logger.Info("triggered protocol voltage",
		"protocol", protocol, "voltage", voltage)
	return nil
}

// AdjustQC3 steps the QC 3.0 output voltage in fine increments. The valid
// range is 3.6V to 12.0V; the target is encoded as little-endian
// millivolts.
func (t *Transport) AdjustQC3(voltage float64) error {
	t.mu.Lock()
	dev := t.dev
	t.mu.Unlock()

	if dev == nil {
		return meter.ErrNotConnected
	}
	if voltage < 3.6 || voltage > 12.0 {
		return fmt.Errorf("QC 3.0 voltage %.2fV out of range [3.6, 12.0]", voltage)
	}

	cmd := []byte{triggerMarker, 0x02, 0, 0}
	binary.LittleEndian.PutUint16(cmd[2:], uint16(voltage*1000))

	if _, err := dev.Write(pad64(cmd)); err != nil {
		return fmt.Errorf("writing QC 3.0 adjustment: %w", err)
	}
	return nil
}
