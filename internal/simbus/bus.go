// Package simbus is an in-memory RS485 line with simulated slaves. It
// stands in for a serial port in tests and in the demo's sim mode.
package simbus

import (
	"io"
	"sync"
	"time"

	rtu "github.com/bangzek/rtu-discovery"
)

// Slave answers a request frame whose CRC is valid. A nil reply keeps
// the line silent.
type Slave interface {
	Reply(req []byte) []byte
}

// SlaveFunc adapts a function to Slave.
type SlaveFunc func(req []byte) []byte

func (f SlaveFunc) Reply(req []byte) []byte {
	return f(req)
}

// Bus implements rtu.PortOpener and the port it opens.
type Bus struct {
	// Chunk limits the bytes handed out per Read. Zero means no limit.
	Chunk int
	// Poll is how long an empty Read blocks, like a serial read timeout.
	Poll time.Duration

	mu     sync.Mutex
	slaves map[byte]Slave
	rx     []byte
	frames [][]byte
	opens  int
	open   bool
}

func New() *Bus {
	return &Bus{
		Poll:   time.Millisecond,
		slaves: make(map[byte]Slave),
	}
}

func (b *Bus) Attach(addr byte, s Slave) *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slaves[addr] = s
	return b
}

func (b *Bus) Detach(addr byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.slaves, addr)
}

func (b *Bus) Open(repeat bool) (io.ReadWriteCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens++
	b.open = true
	return b, nil
}

func (b *Bus) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return 0, io.ErrClosedPipe
	}
	frame := append([]byte(nil), p...)
	b.frames = append(b.frames, frame)
	if len(frame) < 4 || !rtu.ValidChecksum(frame) {
		return len(p), nil
	}
	if s := b.slaves[frame[0]]; s != nil {
		b.rx = append(b.rx, s.Reply(frame)...)
	}
	return len(p), nil
}

func (b *Bus) Read(p []byte) (int, error) {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if len(b.rx) == 0 {
		b.mu.Unlock()
		time.Sleep(b.Poll)
		return 0, nil
	}
	defer b.mu.Unlock()
	q := p
	if b.Chunk > 0 && len(q) > b.Chunk {
		q = q[:b.Chunk]
	}
	n := copy(q, b.rx)
	b.rx = b.rx[n:]
	return n, nil
}

func (b *Bus) ResetInputBuffer() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rx = nil
	return nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	return nil
}

// Frames returns every frame written so far.
func (b *Bus) Frames() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.frames...)
}

// Opens counts how many times the bus was opened.
func (b *Bus) Opens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}
