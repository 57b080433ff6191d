package rtu

import (
	"errors"
	"io"
	"time"

	"github.com/grid-x/serial"
)

// RS485Port opens a serial device in RS485 mode, with the driver toggling
// RTS around each transmission.
type RS485Port struct {
	Dev      string
	Baudrate int
	DataBits int
	StopBits int
	Parity   Parity
	// Timeout is the per-read poll interval.
	Timeout time.Duration
	RS485   serial.RS485Config
}

func (p *RS485Port) Open(repeat bool) (io.ReadWriteCloser, error) {
	if p.Dev == "" {
		panic("empty RS485Port.Dev")
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
	if p.Timeout <= 0 {
		p.Timeout = SERIAL_TIMEOUT
	}

	if repeat {
		debugLog("Opening %s", p.Dev)
	} else {
		log("Opening %s", p.Dev)
	}
	port, err := serial.Open(&serial.Config{
		Address:  p.Dev,
		BaudRate: p.Baudrate,
		DataBits: p.DataBits,
		StopBits: p.StopBits,
		Parity:   p.Parity.Letter(),
		Timeout:  p.Timeout,
		RS485:    p.RS485,
	})
	if err != nil {
		return nil, OpenErr{p.Dev, err}
	}
	log("%s opened at %d %d%s%d rs485=%t", p.Dev, p.Baudrate,
		p.DataBits, p.Parity.Letter(), p.StopBits, p.RS485.Enabled)
	return pollPort{port}, nil
}

// pollPort turns the driver's read timeout into an empty read so the
// Channel keeps polling until its own deadline.
type pollPort struct {
	io.ReadWriteCloser
}

func (p pollPort) Read(b []byte) (int, error) {
	n, err := p.ReadWriteCloser.Read(b)
	if errors.Is(err, serial.ErrTimeout) {
		return n, nil
	}
	return n, err
}
