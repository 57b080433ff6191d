package rtu

import (
	"io"
	"time"

	"github.com/albenik/go-serial/v2"
)

const (
	SERIAL_TIMEOUT = 30 * time.Millisecond
)

type OpenErr struct {
	Dev string
	Err error
}

func (e OpenErr) Error() string {
	return e.Err.Error() + " while opening " + e.Dev
}

func (e OpenErr) Unwrap() error {
	return e.Err
}

// SerialPort opens a plain serial device. Timeout is the per-read poll
// interval, not the response timeout.
type SerialPort struct {
	Dev      string
	Timeout  time.Duration
	Baudrate int
	// DataBits defaults to 8, StopBits to 1.
	DataBits int
	StopBits int
	Parity   Parity
}

func stopBits(n int) serial.StopBits {
	if n == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}

func (p *SerialPort) Open(repeat bool) (io.ReadWriteCloser, error) {
	if p.Dev == "" {
		panic("empty SerialPort.Dev")
	}
	if p.Timeout <= 0 {
		p.Timeout = SERIAL_TIMEOUT
	}
	if p.Baudrate <= 0 {
		p.Baudrate = BAUDRATE
	}
	if p.DataBits <= 0 {
		p.DataBits = 8
	}
	if p.StopBits <= 0 {
		p.StopBits = 1
	}

	if repeat {
		debugLog("Opening %s", p.Dev)
	} else {
		log("Opening %s", p.Dev)
	}
	port, err := serial.Open(p.Dev,
		serial.WithBaudrate(p.Baudrate),
		serial.WithDataBits(p.DataBits),
		serial.WithStopBits(stopBits(p.StopBits)),
		serial.WithParity(serial.Parity(p.Parity)),
		serial.WithReadTimeout(int(p.Timeout.Milliseconds())),
		serial.WithWriteTimeout(int(p.Timeout.Milliseconds())))
	if err != nil {
		return nil, OpenErr{p.Dev, err}
	}
	log("%s opened at %d %d%s%d", p.Dev, p.Baudrate,
		p.DataBits, p.Parity.Letter(), p.StopBits)
	return port, nil
}
