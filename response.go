package rtu

import (
	"bytes"
	"strconv"
)

// Outcome tags a parsed response.
type Outcome byte

const (
	OK Outcome = iota
	Exception
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "OK"
	case Exception:
		return "EXCEPTION"
	case Malformed:
		return "MALFORMED"
	default:
		return "ERR:" + strconv.Itoa(int(o))
	}
}

// Response is the result of parsing received bytes against the request
// that solicited them. Only the fields relevant to Outcome are set.
type Response struct {
	Outcome  Outcome
	DevAddr  byte
	Function byte
	// Data is everything between the function code and the CRC.
	Data   []byte
	Code   ModbusErr
	Reason Reason
	Rx     []byte

	req *Request
}

// Parse classifies rx as a response to r. rx is copied.
func (r *Request) Parse(rx []byte) *Response {
	res := &Response{Rx: bytes.Clone(rx), req: r}
	rx = res.Rx

	if len(rx) < 4 {
		return res.malformed(ReasonShort)
	}
	res.DevAddr = rx[0]
	res.Function = rx[1]

	fn := r.Function()
	if rx[1] == fn|exceptionBit {
		if len(rx) < 5 {
			return res.malformed(ReasonShort)
		}
		if !ValidChecksum(rx[:5]) {
			return res.malformed(ReasonCRC)
		}
		if rx[0] != r.DevAddr() {
			return res.malformed(ReasonAddress)
		}
		res.Outcome = Exception
		res.Data = rx[2:3]
		res.Code = ModbusErr(rx[2])
		return res
	}
	if rx[1] != fn {
		return res.malformed(ReasonFunction)
	}
	if len(rx) < r.expect {
		return res.malformed(ReasonShort)
	}
	if !ValidChecksum(rx) {
		return res.malformed(ReasonCRC)
	}
	if rx[0] != r.DevAddr() {
		return res.malformed(ReasonAddress)
	}

	res.Data = rx[2 : len(rx)-2]
	tx := r.Payload()
	switch fn {
	case FnReadHRegs, FnReadIRegs:
		if int(res.Data[0]) != 2*r.count || len(res.Data) != 1+2*r.count {
			return res.malformed(ReasonCount)
		}
	case FnReadCoils:
		n := coilBytes(r.count)
		if int(res.Data[0]) != n || len(res.Data) != 1+n {
			return res.malformed(ReasonCount)
		}
	case FnWriteCoil, FnWriteReg, FnDiagnostics:
		if !bytes.Equal(res.Data, tx) {
			return res.malformed(ReasonEcho)
		}
	case FnWriteRegs:
		if len(res.Data) != 4 || !bytes.Equal(res.Data, tx[:4]) {
			return res.malformed(ReasonEcho)
		}
	}
	res.Outcome = OK
	return res
}

func (res *Response) malformed(reason Reason) *Response {
	res.Outcome = Malformed
	res.Reason = reason
	res.Data = nil
	return res
}

// Err maps the outcome onto an error: nil, a ModbusErr or a *BadRxErr.
func (res *Response) Err() error {
	switch res.Outcome {
	case OK:
		return nil
	case Exception:
		return res.Code
	default:
		return &BadRxErr{res.Reason, res.Rx}
	}
}

// Regs returns the register values of a successful register read.
func (res *Response) Regs() []uint16 {
	if res.Outcome != OK ||
		(res.Function != FnReadHRegs && res.Function != FnReadIRegs) {
		return nil
	}
	p := res.Data[1:]
	regs := make([]uint16, len(p)/2)
	for i := range regs {
		regs[i] = word(p[2*i:])
	}
	return regs
}

// Coils returns the coil states of a successful coil read.
func (res *Response) Coils() []bool {
	if res.Outcome != OK || res.Function != FnReadCoils {
		return nil
	}
	p := res.Data[1:]
	coils := make([]bool, res.req.count)
	for i := range coils {
		b := byte(1 << (i % 8))
		coils[i] = p[i/8]&b == b
	}
	return coils
}

func (res *Response) String() string {
	if res.Outcome == Malformed {
		b := appendHex(make([]byte, 0, 3*len(res.Rx)+2), res.Rx)
		return string(b)
	}

	b := strconv.AppendInt(make([]byte, 0, 32), int64(res.DevAddr), 10)
	b = append(b, "->"...)
	b = append(b, mnemonic(res.Function)...)
	b = append(b, ' ')
	if res.Outcome == Exception {
		return string(append(b, res.Code.Error()...))
	}

	switch res.Function {
	case FnReadHRegs, FnReadIRegs:
		b = strconv.AppendInt(b, int64(res.req.count), 10)
		b = appendWords(b, res.Data[1:])
	case FnReadCoils:
		b = strconv.AppendInt(b, int64(res.req.count), 10)
		b = append(b, '[')
		for i, c := range res.Coils() {
			if i > 0 {
				b = append(b, ' ')
			}
			if c {
				b = append(b, '1')
			} else {
				b = append(b, '0')
			}
		}
		b = append(b, ']')
	case FnWriteCoil:
		b = strconv.AppendInt(b, int64(word(res.Data)), 10)
		b = strconv.AppendBool(append(b, ' '), res.Data[2] == 0xFF)
	case FnWriteReg:
		b = strconv.AppendInt(b, int64(word(res.Data)), 10)
		b = append(b, ' ')
		b = strconv.AppendInt(b, int64(word(res.Data[2:])), 10)
	case FnWriteRegs:
		b = strconv.AppendInt(b, int64(word(res.Data)), 10)
		b = append(b, ':')
		b = strconv.AppendInt(b, int64(word(res.Data[2:])), 10)
	case FnDiagnostics:
		b = strconv.AppendInt(b, int64(word(res.Data)), 10)
		b = appendHex(append(b, ' '), res.Data[2:])
	}
	return string(b)
}
