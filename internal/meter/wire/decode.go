package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/fnb-tools/fnbmon/internal/meter"
)

// ErrMalformedPacket is returned when a USB packet does not match the
// expected framing. Callers drop the packet and keep the stream going.
var ErrMalformedPacket = errors.New("malformed packet")

const (
	// PacketSize is the fixed size of a USB HID report from the meter.
	PacketSize = 64

	// packetTypeData marks a packet carrying measurement samples. Other
	// type bytes (keep-alive echoes, status responses) are valid packets
	// that simply carry no readings.
	packetTypeData byte = 0x04
)

// sampleOffsets are the four fixed sample slots within a data packet.
var sampleOffsets = [4]int{1, 17, 33, 49}

// DecodePacket decodes one 64-byte USB HID packet into readings.
//
// A data packet yields exactly four readings in packet order; order is
// preserved because downstream aggregation assumes monotonic sample
// sequencing. A well-formed packet with a non-data type byte yields an
// empty result and a nil error: zero readings is a valid, ignorable
// outcome, not a failure.
//
// Each sample slot holds, little-endian: 4-byte voltage (1/100000 V),
// 4-byte current (1/100000 A), 2-byte D+ (1/1000 V), 2-byte D- (1/1000 V),
// one reserved byte, 2-byte temperature (1/10 degC). The instrument does
// not transmit power in this packet type; it is computed here.
func DecodePacket(raw []byte, now time.Time) ([]meter.Reading, error) {
	if len(raw) != PacketSize {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrMalformedPacket, len(raw), PacketSize)
	}
	if raw[0] != packetTypeData {
		return nil, nil
	}

	readings := make([]meter.Reading, 0, len(sampleOffsets))
	for _, off := range sampleOffsets {
		s := raw[off:]

		voltage := float64(binary.LittleEndian.Uint32(s[0:4])) / 100000
		current := float64(binary.LittleEndian.Uint32(s[4:8])) / 100000
		dp := float64(binary.LittleEndian.Uint16(s[8:10])) / 1000
		dn := float64(binary.LittleEndian.Uint16(s[10:12])) / 1000
		temp := float64(binary.LittleEndian.Uint16(s[13:15])) / 10

		readings = append(readings, meter.Reading{
			Timestamp:   now,
			Voltage:     voltage,
			Current:     current,
			Power:       voltage * current,
			DP:          &dp,
			DN:          &dn,
			Temperature: &temp,
		})
	}
	return readings, nil
}

const (
	// Bluetooth notification payload layout: three signed 32-bit
	// little-endian values (voltage, current, power) at a fixed offset,
	// scaled by 1/10000.
	notifyOffset = 21
	notifyScale  = 10000

	// Readings with a bus voltage outside this range are radio noise or
	// partial payloads and are discarded.
	notifyVoltageMin = 0.0
	notifyVoltageMax = 150.0
)

// DecodeNotification parses one Bluetooth notification payload. The
// Bluetooth path reports power directly and carries no D+/D-/temperature
// data, so those fields are left nil. The boolean is false when the
// payload is too short or fails the voltage sanity filter.
func DecodeNotification(data []byte, now time.Time) (meter.Reading, bool) {
	if len(data) < notifyOffset+12 {
		return meter.Reading{}, false
	}

	voltage := float64(int32(binary.LittleEndian.Uint32(data[notifyOffset:]))) / notifyScale
	current := float64(int32(binary.LittleEndian.Uint32(data[notifyOffset+4:]))) / notifyScale
	power := float64(int32(binary.LittleEndian.Uint32(data[notifyOffset+8:]))) / notifyScale

	if voltage < notifyVoltageMin || voltage > notifyVoltageMax {
		return meter.Reading{}, false
	}

	return meter.Reading{
		Timestamp: now,
		Voltage:   voltage,
		Current:   current,
		Power:     power,
	}, true
}
