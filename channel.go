package rtu

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bangzek/clock"
	"golang.org/x/sync/semaphore"
)

const (
	BAUDRATE = 9600
	TIMEOUT  = time.Second

	// maxADU is the largest RTU frame on the wire.
	maxADU = 256
)

type nower interface {
	Now() time.Time
}

var (
	ctime nower = clock.New()
	sleep       = time.Sleep
)

// PortOpener opens the link a Channel talks over. repeat is true when
// the previous attempt failed too.
type PortOpener interface {
	Open(repeat bool) (io.ReadWriteCloser, error)
}

// FrameDelay is the silent interval required before a frame: the time
// needed to send 4 bytes at baud.
func FrameDelay(baud int) time.Duration {
	return 4 * time.Second / time.Duration(baud)
}

// RoundTrip is the wire time of tx bytes out and rx bytes back at baud.
func RoundTrip(baud, tx, rx int) time.Duration {
	return time.Duration(tx+rx) * time.Second / time.Duration(baud)
}

// Channel is a master session on one serial bus. Requests are admitted
// one at a time in arrival order.
type Channel struct {
	Port     PortOpener
	Baudrate int
	// Timeout is the margin allowed on top of the wire time.
	Timeout time.Duration

	once   sync.Once
	sem    *semaphore.Weighted
	port   io.ReadWriteCloser
	repeat bool
	buf    []byte

	stats struct {
		requests, timeouts, malformed, exceptions, transport atomic.Uint64
	}
}

// init applies the defaults once. Baudrate and Timeout must not be
// changed after the first call.
func (c *Channel) init() {
	c.once.Do(func() {
		c.sem = semaphore.NewWeighted(1)
		c.buf = make([]byte, 0, maxADU)
		if c.Baudrate <= 0 {
			c.Baudrate = BAUDRATE
		}
		if c.Timeout <= 0 {
			c.Timeout = TIMEOUT
		}
	})
}

func (c *Channel) acquire() {
	c.init()
	// Background never cancels, so Acquire only returns once admitted.
	_ = c.sem.Acquire(context.Background(), 1)
}

func (c *Channel) release() {
	c.sem.Release(1)
}

// Open opens the port if it is not open yet.
func (c *Channel) Open() error {
	c.acquire()
	defer c.release()
	return c.open()
}

// Close closes the port if it is open.
func (c *Channel) Close() error {
	c.acquire()
	defer c.release()
	return c.close()
}

func (c *Channel) IsOpen() bool {
	c.acquire()
	defer c.release()
	return c.port != nil
}

func (c *Channel) open() error {
	if c.port != nil {
		return nil
	}
	port, err := c.Port.Open(c.repeat)
	if err != nil {
		c.repeat = true
		return &TransportErr{"open", err}
	}
	c.repeat = false
	c.port = port
	return nil
}

func (c *Channel) close() error {
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}

// ResponseTimeout is the whole budget given to req: its wire time plus
// the Timeout margin.
func (c *Channel) ResponseTimeout(req *Request) time.Duration {
	c.init()
	return RoundTrip(c.Baudrate, len(req.Frame()), req.ExpectedLen()) +
		c.Timeout
}

// Request sends req and waits for its response. It blocks while another
// request is in flight.
//
// The returned error is nil only for an OK response. Exceptions are
// returned as ModbusErr together with the response, malformed responses
// as *BadRxErr. No response is returned on timeout (*TimeoutErr) or on a
// link failure (*TransportErr), after which the port is closed.
func (c *Channel) Request(req *Request) (*Response, error) {
	c.acquire()
	defer c.release()
	defer func() { c.buf = c.buf[:0] }()
	c.stats.requests.Add(1)

	if err := c.open(); err != nil {
		c.stats.transport.Add(1)
		return nil, err
	}
	c.flush()

	sleep(FrameDelay(c.Baudrate))
	budget := c.ResponseTimeout(req)
	deadline := ctime.Now().Add(budget)

	tx := req.Frame()
	debugLog("tx: % X", tx)
	debugLog("TX: %s", req)
	if n, err := c.port.Write(tx); err != nil {
		return nil, c.fail("write", err)
	} else if n != len(tx) {
		return nil, c.fail("write", io.ErrShortWrite)
	}

	var chunk [maxADU]byte
	for {
		n, err := c.port.Read(chunk[:])
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			if req.Complete(c.buf) {
				break
			}
		}
		if err != nil {
			if len(c.buf) > 0 {
				debugLog("rx: % X", c.buf)
			}
			return nil, c.fail("read", err)
		}
		if ctime.Now().After(deadline) {
			if len(c.buf) > 0 {
				debugLog("rx: % X", c.buf)
			}
			c.stats.timeouts.Add(1)
			return nil, &TimeoutErr{budget}
		}
	}

	debugLog("rx: % X", c.buf)
	res := req.Parse(c.buf)
	switch res.Outcome {
	case Malformed:
		c.stats.malformed.Add(1)
	case Exception:
		c.stats.exceptions.Add(1)
		debugLog("RX: %s", res)
	default:
		debugLog("RX: %s", res)
	}
	return res, res.Err()
}

func (c *Channel) fail(op string, err error) error {
	c.stats.transport.Add(1)
	c.close()
	return &TransportErr{op, err}
}

// flush drops anything left in the input buffer by a previous exchange.
func (c *Channel) flush() {
	if f, ok := c.port.(interface{ ResetInputBuffer() error }); ok {
		if err := f.ResetInputBuffer(); err != nil {
			debugLog("flush: %s", err)
		}
	}
	c.buf = c.buf[:0]
}

// Debugf reports through the debug log hook.
func (c *Channel) Debugf(f string, a ...any) {
	debugLog(f, a...)
}

// Errorf reports through the error log hook.
func (c *Channel) Errorf(f string, a ...any) {
	errorLog(f, a...)
}

// Stats counts the outcomes of every Request so far.
type Stats struct {
	Requests      uint64
	Timeouts      uint64
	Malformed     uint64
	Exceptions    uint64
	TransportErrs uint64
}

func (c *Channel) Stats() Stats {
	return Stats{
		Requests:      c.stats.requests.Load(),
		Timeouts:      c.stats.timeouts.Load(),
		Malformed:     c.stats.malformed.Load(),
		Exceptions:    c.stats.exceptions.Load(),
		TransportErrs: c.stats.transport.Load(),
	}
}
