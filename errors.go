package rtu

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrTimeout is matched by every *TimeoutErr through errors.Is.
var ErrTimeout = errors.New("timeout")

// TimeoutErr is returned when no complete response arrived within Budget.
type TimeoutErr struct {
	Budget time.Duration
}

func (e *TimeoutErr) Error() string {
	return "timeout: no response within " + e.Budget.String()
}

func (e *TimeoutErr) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutErr) Timeout() bool { return true }

// IsTimeout reports whether err, or anything it wraps, is a timeout.
func IsTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

//----------------------------------------------------------------------

// ModbusErr is an exception code reported by the device itself.
type ModbusErr byte

const (
	IllegalFunction        ModbusErr = 0x01
	IllegalDataAddr        ModbusErr = 0x02
	IllegalDataValue       ModbusErr = 0x03
	SlaveDeviceFail        ModbusErr = 0x04
	Acknowledge            ModbusErr = 0x05
	SlaveDeviceBusy        ModbusErr = 0x06
	MemoryParityErr        ModbusErr = 0x08
	GatewayPathUnavailable ModbusErr = 0x0A
	GatewayTargetFailed    ModbusErr = 0x0B
)

func (e ModbusErr) Error() string {
	switch e {
	case IllegalFunction:
		return "Illegal Function"
	case IllegalDataAddr:
		return "Illegal Data Address"
	case IllegalDataValue:
		return "Illegal Data Value"
	case SlaveDeviceFail:
		return "Slave Device Failure"
	case Acknowledge:
		return "Acknowledge"
	case SlaveDeviceBusy:
		return "Slave Device Busy"
	case MemoryParityErr:
		return "Memory Parity Error"
	case GatewayPathUnavailable:
		return "Gateway Path Unavailable"
	case GatewayTargetFailed:
		return "Gateway Target Failed"
	default:
		return "Exception " + strconv.Itoa(int(e))
	}
}

//----------------------------------------------------------------------

// Reason tells why a response was rejected as malformed.
type Reason byte

const (
	ReasonShort Reason = iota + 1
	ReasonFunction
	ReasonCRC
	ReasonAddress
	ReasonCount
	ReasonEcho
)

func (r Reason) String() string {
	switch r {
	case ReasonShort:
		return "short frame"
	case ReasonFunction:
		return "function mismatch"
	case ReasonCRC:
		return "crc mismatch"
	case ReasonAddress:
		return "address mismatch"
	case ReasonCount:
		return "count mismatch"
	case ReasonEcho:
		return "echo mismatch"
	default:
		return fmt.Sprintf("ERR:%d", byte(r))
	}
}

// BadRxErr is a response that arrived but failed validation.
type BadRxErr struct {
	Reason Reason
	Rx     []byte
}

func (e *BadRxErr) Error() string {
	return fmt.Sprintf("invalid response (%s): [% X]", e.Reason, e.Rx)
}

//----------------------------------------------------------------------

// TransportErr is a failure of the underlying link during Op.
type TransportErr struct {
	Op  string
	Err error
}

func (e *TransportErr) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportErr) Unwrap() error {
	return e.Err
}
