package rtu

import (
	"fmt"
	"strconv"
)

// Function codes.
const (
	FnReadCoils   byte = 0x01
	FnReadHRegs   byte = 0x03
	FnReadIRegs   byte = 0x04
	FnWriteCoil   byte = 0x05
	FnWriteReg    byte = 0x06
	FnDiagnostics byte = 0x08
	FnWriteRegs   byte = 0x10

	exceptionBit = 0x80
)

const (
	MinDevAddr = 1
	MaxDevAddr = 247

	EchoTestSub  = 0x0000
	EchoTestData = 0xBEEF
)

// RegKind selects which register table a read addresses.
type RegKind byte

const (
	HoldingRegs = RegKind(FnReadHRegs)
	InputRegs   = RegKind(FnReadIRegs)
)

func (k RegKind) String() string {
	switch k {
	case HoldingRegs:
		return "holding"
	case InputRegs:
		return "input"
	default:
		return fmt.Sprintf("ERR:%d", byte(k))
	}
}

// Request is a framed master request. It is immutable once built.
type Request struct {
	frame  []byte
	expect int
	count  int
}

func (r *Request) DevAddr() byte {
	return r.frame[0]
}

func (r *Request) Function() byte {
	return r.frame[1]
}

// Payload returns the bytes between the function code and the CRC.
func (r *Request) Payload() []byte {
	return r.frame[2 : len(r.frame)-2]
}

// Frame returns the bytes to put on the wire.
func (r *Request) Frame() []byte {
	return r.frame
}

// ExpectedLen is the length of a complete normal response.
func (r *Request) ExpectedLen() int {
	return r.expect
}

// Addr is the first register or coil address the request refers to.
// It is the sub-function for diagnostics.
func (r *Request) Addr() uint16 {
	return word(r.frame[2:])
}

// Count is the number of registers or coils read or written.
func (r *Request) Count() int {
	return r.count
}

// Complete reports whether rx holds enough bytes to be parsed: either a
// full normal response or a 5-byte exception frame with a valid CRC.
func (r *Request) Complete(rx []byte) bool {
	if len(rx) >= r.expect {
		return true
	}
	return len(rx) >= 5 && rx[1] == r.Function()|exceptionBit &&
		ValidChecksum(rx[:5])
}

func (r *Request) String() string {
	b := strconv.AppendInt(make([]byte, 0, 32), int64(r.DevAddr()), 10)
	b = append(b, "<-"...)
	b = append(b, mnemonic(r.Function())...)
	b = append(b, ' ')
	p := r.Payload()
	switch r.Function() {
	case FnReadCoils, FnReadHRegs, FnReadIRegs:
		b = strconv.AppendInt(b, int64(r.Addr()), 10)
		b = append(b, ':')
		b = strconv.AppendInt(b, int64(r.count), 10)
	case FnWriteCoil:
		b = strconv.AppendInt(b, int64(r.Addr()), 10)
		b = strconv.AppendBool(append(b, ' '), p[2] == 0xFF)
	case FnWriteReg:
		b = strconv.AppendInt(b, int64(r.Addr()), 10)
		b = append(b, ' ')
		b = strconv.AppendInt(b, int64(word(p[2:])), 10)
	case FnWriteRegs:
		b = strconv.AppendInt(b, int64(r.Addr()), 10)
		b = append(b, ':')
		b = strconv.AppendInt(b, int64(r.count), 10)
		b = appendWords(b, p[5:])
	case FnDiagnostics:
		b = strconv.AppendInt(b, int64(r.Addr()), 10)
		b = appendHex(append(b, ' '), p[2:])
	}
	return string(b)
}

//----------------------------------------------------------------------

// NewReadRegsRequest reads count registers of the given kind from addr.
func NewReadRegsRequest(
	devAddr byte, kind RegKind, addr uint16, count uint16,
) *Request {
	if kind != HoldingRegs && kind != InputRegs {
		panic(fmt.Sprintf("invalid register kind: %d", byte(kind)))
	}
	checkDevAddr(devAddr, "read registers")
	checkRange(addr, count, 125)

	return &Request{
		frame:  NewFrame(devAddr, byte(kind), be(addr, count)...),
		expect: 5 + 2*int(count),
		count:  int(count),
	}
}

func NewReadHRegsRequest(devAddr byte, addr uint16, count uint16) *Request {
	return NewReadRegsRequest(devAddr, HoldingRegs, addr, count)
}

func NewReadIRegsRequest(devAddr byte, addr uint16, count uint16) *Request {
	return NewReadRegsRequest(devAddr, InputRegs, addr, count)
}

func NewReadCoilsRequest(devAddr byte, addr uint16, count uint16) *Request {
	checkDevAddr(devAddr, "read coils")
	checkRange(addr, count, 2000)

	return &Request{
		frame:  NewFrame(devAddr, FnReadCoils, be(addr, count)...),
		expect: 5 + coilBytes(int(count)),
		count:  int(count),
	}
}

func NewWriteRegRequest(devAddr byte, addr uint16, val uint16) *Request {
	checkDevAddr(devAddr, "write register")
	return &Request{
		frame:  NewFrame(devAddr, FnWriteReg, be(addr, val)...),
		expect: 8,
		count:  1,
	}
}

func NewWriteRegsRequest(devAddr byte, addr uint16, values []uint16) *Request {
	checkDevAddr(devAddr, "write registers")
	if len(values) > 123 {
		panic(fmt.Sprintf("count too many: %d", len(values)))
	}
	checkRange(addr, uint16(len(values)), 123)

	data := make([]byte, 5, 5+2*len(values))
	data[0] = byte(addr >> 8)
	data[1] = byte(addr)
	data[2] = byte(len(values) >> 8)
	data[3] = byte(len(values))
	data[4] = byte(2 * len(values))
	for _, v := range values {
		data = append(data, byte(v>>8), byte(v))
	}
	return &Request{
		frame:  NewFrame(devAddr, FnWriteRegs, data...),
		expect: 8,
		count:  len(values),
	}
}

func NewWriteCoilRequest(devAddr byte, addr uint16, val bool) *Request {
	checkDevAddr(devAddr, "write coil")
	var v uint16
	if val {
		v = 0xFF00
	}
	return &Request{
		frame:  NewFrame(devAddr, FnWriteCoil, be(addr, v)...),
		expect: 8,
		count:  1,
	}
}

// NewEchoRequest is a diagnostics request whose response must echo sub
// and data back unchanged.
func NewEchoRequest(devAddr byte, sub uint16, data ...byte) *Request {
	checkDevAddr(devAddr, "echo")
	if len(data) > 250 {
		panic(fmt.Sprintf("echo data too long: %d", len(data)))
	}

	p := make([]byte, 2, 2+len(data))
	p[0] = byte(sub >> 8)
	p[1] = byte(sub)
	p = append(p, data...)
	return &Request{
		frame:  NewFrame(devAddr, FnDiagnostics, p...),
		expect: 4 + 2 + len(data),
	}
}

// NewEchoTestRequest is the return-query-data probe every RTU device
// is expected to answer.
func NewEchoTestRequest(devAddr byte) *Request {
	return NewEchoRequest(devAddr, EchoTestSub,
		byte(EchoTestData>>8), byte(EchoTestData&0xFF))
}

//----------------------------------------------------------------------

func checkDevAddr(devAddr byte, what string) {
	if devAddr == 0 {
		panic("could not broadcast " + what)
	}
	if devAddr > MaxDevAddr {
		panic(fmt.Sprintf("invalid device address: %d", devAddr))
	}
}

func checkRange(addr, count, max uint16) {
	if count == 0 {
		panic("zero count")
	}
	if count > max {
		panic(fmt.Sprintf("count too many: %d", count))
	}
	if addr+count-1 < addr {
		panic(fmt.Sprintf("address overflow: %d, %d", addr, count))
	}
}

func be(a, b uint16) []byte {
	return []byte{byte(a >> 8), byte(a), byte(b >> 8), byte(b)}
}

func word(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func coilBytes(n int) int {
	return (n + 7) / 8
}

func mnemonic(fn byte) string {
	switch fn &^ exceptionBit {
	case FnReadCoils:
		return "RC "
	case FnReadHRegs:
		return "RHR"
	case FnReadIRegs:
		return "RIR"
	case FnWriteCoil:
		return "W1C"
	case FnWriteReg:
		return "W1R"
	case FnWriteRegs:
		return "WR "
	case FnDiagnostics:
		return "DIA"
	default:
		return "F" + strconv.Itoa(int(fn&^exceptionBit))
	}
}

func appendWords(b []byte, p []byte) []byte {
	b = append(b, '[')
	for i := 0; i+1 < len(p); i += 2 {
		if i > 0 {
			b = append(b, ' ')
		}
		b = strconv.AppendInt(b, int64(word(p[i:])), 10)
	}
	return append(b, ']')
}

func appendHex(b []byte, p []byte) []byte {
	const digits = "0123456789ABCDEF"
	b = append(b, '[')
	for i, x := range p {
		if i > 0 {
			b = append(b, ' ')
		}
		b = append(b, digits[x>>4], digits[x&0xF])
	}
	return append(b, ']')
}
