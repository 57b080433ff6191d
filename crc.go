package rtu

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC returns the Modbus CRC-16 of b, low byte first as it goes on the wire.
func CRC(b []byte) [2]byte {
	cs := crc16.Checksum(b, crcTable)
	return [2]byte{byte(cs), byte(cs >> 8)}
}

// SetChecksum writes the CRC of b[:len(b)-2] into the last two bytes of b.
func SetChecksum(b []byte) {
	cs := crc16.Checksum(b[:len(b)-2], crcTable)
	b[len(b)-2] = byte(cs)
	b[len(b)-1] = byte(cs >> 8)
}

// ValidChecksum reports whether the last two bytes of b hold the CRC of
// the bytes before them. Both bytes must match.
func ValidChecksum(b []byte) bool {
	if len(b) < 3 {
		return false
	}
	cs := crc16.Checksum(b[:len(b)-2], crcTable)
	return b[len(b)-2] == byte(cs) && b[len(b)-1] == byte(cs>>8)
}

// NewFrame returns devAddr, fn and data followed by their CRC.
func NewFrame(devAddr, fn byte, data ...byte) []byte {
	b := make([]byte, len(data)+4)
	b[0] = devAddr
	b[1] = fn
	copy(b[2:], data)
	SetChecksum(b)
	return b
}
