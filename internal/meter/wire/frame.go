package wire

// Command bytes understood by the meter firmware.
const (
	CmdGetInfo   byte = 0x81
	CmdStart     byte = 0x82
	CmdKeepAlive byte = 0x83
	CmdStop      byte = 0x84
	CmdGetStatus byte = 0x85
	CmdTrigger   byte = 0x86
)

// frameMarker starts every command frame.
const frameMarker byte = 0xAA

// Frame builds a command frame: marker, command byte, payload length,
// payload, then a single trailing checksum byte.
//
// The checksum byte is the LOW byte of the CRC16-XMODEM over everything
// before it. Truncating the 16-bit CRC to one byte matches the meter
// firmware; sending the full CRC makes the device reject the frame, so
// this must not be "fixed".
func Frame(cmd byte, payload []byte) []byte {
	buf := make([]byte, 0, 4+len(payload))
	buf = append(buf, frameMarker, cmd, byte(len(payload)))
	buf = append(buf, payload...)
	return append(buf, byte(Checksum(buf)))
}

// KeepAlive returns the 64-byte keep-alive packet written to the USB
// endpoint about once per second. Some models stop streaming without it,
// so it is part of the protocol contract rather than housekeeping.
//
// The trailing 0x9E is a fixed value from the firmware's own framing,
// reproduced verbatim; it is not the CRC of the preceding bytes.
func KeepAlive() []byte {
	buf := make([]byte, 64)
	buf[0] = frameMarker
	buf[1] = CmdKeepAlive
	buf[63] = 0x9E
	return buf
}
