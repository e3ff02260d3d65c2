// Package wire implements the meter's binary protocols: the CRC-framed
// command format shared by the Bluetooth path, the 64-byte USB HID data
// packet layout, and the Bluetooth notification payload layout.
package wire

// Checksum computes CRC16-XMODEM: polynomial 0x1021, initial value 0,
// MSB-first bit processing, no reflection, no final XOR.
func Checksum(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
