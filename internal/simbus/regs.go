package simbus

import (
	"bytes"
	"sync"

	rtu "github.com/bangzek/rtu-discovery"
)

// Regs is a slave backed by register and coil tables. Reads of missing
// addresses answer IllegalDataAddr.
type Regs struct {
	Holding map[uint16]uint16
	Input   map[uint16]uint16
	Coils   map[uint16]bool
	// NoEcho makes the slave reject diagnostics with IllegalFunction.
	NoEcho bool
	// Garble corrupts the CRC of every reply.
	Garble bool

	mu sync.Mutex
}

func NewRegs() *Regs {
	return &Regs{
		Holding: make(map[uint16]uint16),
		Input:   make(map[uint16]uint16),
		Coils:   make(map[uint16]bool),
	}
}

func (s *Regs) Reply(req []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.reply(req)
	if s.Garble && len(b) > 0 {
		b[len(b)-1] ^= 0xFF
	}
	return b
}

func (s *Regs) reply(req []byte) []byte {
	dev, fn, p := req[0], req[1], req[2:len(req)-2]
	switch fn {
	case rtu.FnReadHRegs, rtu.FnReadIRegs:
		if len(p) != 4 {
			return exception(dev, fn, rtu.IllegalDataValue)
		}
		table := s.Holding
		if fn == rtu.FnReadIRegs {
			table = s.Input
		}
		start, n := word(p), word(p[2:])
		data := []byte{byte(2 * n)}
		for i := uint16(0); i < n; i++ {
			v, ok := table[start+i]
			if !ok {
				return exception(dev, fn, rtu.IllegalDataAddr)
			}
			data = append(data, byte(v>>8), byte(v))
		}
		return rtu.NewFrame(dev, fn, data...)

	case rtu.FnReadCoils:
		if len(p) != 4 {
			return exception(dev, fn, rtu.IllegalDataValue)
		}
		start, n := word(p), word(p[2:])
		data := make([]byte, 1+(n+7)/8)
		data[0] = byte((n + 7) / 8)
		for i := uint16(0); i < n; i++ {
			v, ok := s.Coils[start+i]
			if !ok {
				return exception(dev, fn, rtu.IllegalDataAddr)
			}
			if v {
				data[1+i/8] |= 1 << (i % 8)
			}
		}
		return rtu.NewFrame(dev, fn, data...)

	case rtu.FnWriteReg:
		if len(p) != 4 {
			return exception(dev, fn, rtu.IllegalDataValue)
		}
		addr := word(p)
		if _, ok := s.Holding[addr]; !ok {
			return exception(dev, fn, rtu.IllegalDataAddr)
		}
		s.Holding[addr] = word(p[2:])
		return bytes.Clone(req)

	case rtu.FnWriteRegs:
		if len(p) < 5 {
			return exception(dev, fn, rtu.IllegalDataValue)
		}
		start, n := word(p), word(p[2:])
		if len(p) != 5+2*int(n) || int(p[4]) != 2*int(n) {
			return exception(dev, fn, rtu.IllegalDataValue)
		}
		for i := uint16(0); i < n; i++ {
			if _, ok := s.Holding[start+i]; !ok {
				return exception(dev, fn, rtu.IllegalDataAddr)
			}
		}
		for i := uint16(0); i < n; i++ {
			s.Holding[start+i] = word(p[5+2*i:])
		}
		return rtu.NewFrame(dev, fn, p[:4]...)

	case rtu.FnWriteCoil:
		if len(p) != 4 {
			return exception(dev, fn, rtu.IllegalDataValue)
		}
		addr := word(p)
		if _, ok := s.Coils[addr]; !ok {
			return exception(dev, fn, rtu.IllegalDataAddr)
		}
		s.Coils[addr] = p[2] == 0xFF
		return bytes.Clone(req)

	case rtu.FnDiagnostics:
		if s.NoEcho {
			return exception(dev, fn, rtu.IllegalFunction)
		}
		return bytes.Clone(req)

	default:
		return exception(dev, fn, rtu.IllegalFunction)
	}
}

func exception(dev, fn byte, code rtu.ModbusErr) []byte {
	return rtu.NewFrame(dev, fn|0x80, byte(code))
}

func word(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

// NewShihlinSL3 is a Shihlin SL3 inverter reporting model in register
// 10000, with a few writable parameters around it.
func NewShihlinSL3(model uint16) *Regs {
	s := NewRegs()
	s.Holding[10000] = model
	s.Holding[10001] = 12
	for a := uint16(10100); a <= 10112; a++ {
		s.Holding[a] = 0
	}
	s.Holding[10100] = 60
	return s
}

// NewSHT20 is an SHT20 sensor. Readings are in tenths.
func NewSHT20(temp int16, humidity uint16) *Regs {
	s := NewRegs()
	s.Input[0x0001] = uint16(temp)
	s.Input[0x0002] = humidity
	s.Holding[0x0101] = 1
	s.Holding[0x0102] = 0
	s.Holding[0x0103] = 0
	s.Holding[0x0104] = 0
	return s
}
