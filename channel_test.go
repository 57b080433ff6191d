package rtu_test

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bangzek/clock"
	. "github.com/bangzek/rtu-discovery"
)

var _ = Describe("Channel", func() {
	const dsn = clock.DefaultScriptNow
	var sleeps *[]time.Duration
	BeforeEach(func() {
		var restore func()
		sleeps, restore = RecordSleeps()
		DeferCleanup(restore)
	})

	It("has wire timing", func() {
		Expect(FrameDelay(9600)).To(Equal(416666 * time.Nanosecond))
		Expect(FrameDelay(19200)).To(Equal(208333 * time.Nanosecond))
		Expect(RoundTrip(9600, 8, 7)).To(Equal(1562500 * time.Nanosecond))

		ch := &Channel{}
		Expect(ch.ResponseTimeout(NewReadHRegsRequest(17, 10000, 1))).
			To(Equal(TIMEOUT + 1562500*time.Nanosecond))
		Expect(ch.Baudrate).To(Equal(BAUDRATE))
	})

	Context("single request", func() {
		It("runs just fine", func() {
			req := NewReadCoilsRequest(3, 2, 1)
			rwc := &MockRwc{
				Writes: []WriteScript{
					{8, nil},
				},
				Reads: []ReadScript{
					{[]byte{3, 1, 1, 0b1, 0x91, 0xf0}, nil},
				},
			}
			port := &MockPort{
				Opens: []OpenScript{
					{rwc, nil},
				},
			}
			ch := &Channel{
				Port: port,
			}
			log := NewLog()
			res, err := ch.Request(req)
			Expect(err).To(Succeed())
			Expect(res.Coils()).To(HaveExactElements(true))
			Expect(ch.IsOpen()).To(BeTrue())
			Expect(ch.Close()).To(Succeed())
			Expect(ch.IsOpen()).To(BeFalse())
			Expect(port.Calls).To(Equal([]bool{false}))
			Expect(rwc.Calls).To(Equal([]string{
				"FLUSH",
				"WRITE [03 01 00 02 00 01 5D E8]",
				"READ",
				"CLOSE",
			}))
			Expect(*sleeps).To(HaveExactElements(FrameDelay(9600)))
			Expect(log.Msgs).To(Equal([]string{
				"D:tx: 03 01 00 02 00 01 5D E8",
				"D:TX: 3<-RC  2:1",
				"D:rx: 03 01 01 01 91 F0",
				"D:RX: 3->RC  1[1]",
			}))
		})
	})

	Context("partial reads", func() {
		It("accumulates until the frame is complete", func() {
			req := NewReadHRegsRequest(17, 10000, 1)
			rwc := &MockRwc{
				Writes: []WriteScript{
					{8, nil},
				},
				Reads: []ReadScript{
					{[]byte{0x11, 0x03, 0x02}, nil},
					{nil, nil},
					{[]byte{0x00, 0xCB, 0x38, 0x10}, nil},
				},
			}
			ch := &Channel{
				Port:     &MockPort{Opens: []OpenScript{{rwc, nil}}},
				Baudrate: 19200,
			}
			log := NewLog()
			res, err := ch.Request(req)
			Expect(err).To(Succeed())
			Expect(res.Regs()).To(HaveExactElements(uint16(203)))
			Expect(rwc.Calls).To(Equal([]string{
				"FLUSH",
				"WRITE [11 03 27 10 00 01 8D EB]",
				"READ",
				"READ",
				"READ",
			}))
			Expect(*sleeps).To(HaveExactElements(FrameDelay(19200)))
			Expect(log.Msgs).To(Equal([]string{
				"D:tx: 11 03 27 10 00 01 8D EB",
				"D:TX: 17<-RHR 10000:1",
				"D:rx: 11 03 02 00 CB 38 10",
				"D:RX: 17->RHR 1[203]",
			}))
		})

		It("returns an exception without waiting for the full length", func() {
			req := NewReadHRegsRequest(17, 10000, 1)
			rwc := &MockRwc{
				Writes: []WriteScript{
					{8, nil},
				},
				Reads: []ReadScript{
					{[]byte{0x11, 0x83}, nil},
					{[]byte{0x02, 0xC1, 0x34}, nil},
				},
			}
			ch := &Channel{
				Port: &MockPort{Opens: []OpenScript{{rwc, nil}}},
			}
			log := NewLog()
			res, err := ch.Request(req)
			Expect(err).To(MatchError(IllegalDataAddr))
			Expect(res.Outcome).To(Equal(Exception))
			Expect(res.Code).To(Equal(IllegalDataAddr))
			Expect(ch.IsOpen()).To(BeTrue())
			Expect(ch.Stats()).To(Equal(Stats{Requests: 1, Exceptions: 1}))
			Expect(log.Msgs).To(Equal([]string{
				"D:tx: 11 03 27 10 00 01 8D EB",
				"D:TX: 17<-RHR 10000:1",
				"D:rx: 11 83 02 C1 34",
				"D:RX: 17->RHR Illegal Data Address",
			}))
		})
	})

	Context("two requests", func() {
		It("reuses the port", func() {
			req1 := NewReadHRegsRequest(3, 2, 1)
			req2 := NewWriteCoilRequest(3, 258, true)
			rwc := &MockRwc{
				Writes: []WriteScript{
					{8, nil},
					{8, nil},
				},
				Reads: []ReadScript{
					{nil, nil},
					{[]byte{3, 3}, nil},
					{[]byte{2, 0x12, 0x34, 0xCC, 0xF3}, nil},
					{[]byte{3, 5, 1, 2, 0xFF, 0, 0x2D, 0xE4}, nil},
				},
			}
			port := &MockPort{
				Opens: []OpenScript{
					{rwc, nil},
				},
			}
			ch := &Channel{
				Port: port,
			}
			log := NewLog()
			res, err := ch.Request(req1)
			Expect(err).To(Succeed())
			Expect(res.Regs()).To(HaveExactElements(uint16(0x1234)))
			_, err = ch.Request(req2)
			Expect(err).To(Succeed())
			Expect(port.Calls).To(Equal([]bool{false}))
			Expect(rwc.Calls).To(Equal([]string{
				"FLUSH",
				"WRITE [03 03 00 02 00 01 24 28]",
				"READ",
				"READ",
				"READ",
				"FLUSH",
				"WRITE [03 05 01 02 FF 00 2D E4]",
				"READ",
			}))
			Expect(log.Msgs).To(Equal([]string{
				"D:tx: 03 03 00 02 00 01 24 28",
				"D:TX: 3<-RHR 2:1",
				"D:rx: 03 03 02 12 34 CC F3",
				"D:RX: 3->RHR 1[4660]",
				"D:tx: 03 05 01 02 FF 00 2D E4",
				"D:TX: 3<-W1C 258 true",
				"D:rx: 03 05 01 02 FF 00 2D E4",
				"D:RX: 3->W1C 258 true",
			}))
			Expect(ch.Stats()).To(Equal(Stats{Requests: 2}))
		})
	})

	Context("error on open", func() {
		It("returns that err", func() {
			req1 := NewReadHRegsRequest(3, 2, 1)
			err1 := errors.New("one")
			req2 := NewWriteCoilRequest(3, 258, true)
			err2 := errors.New("two")
			port := &MockPort{
				Opens: []OpenScript{
					{nil, err1},
					{nil, err2},
				},
			}
			ch := &Channel{
				Port: port,
			}
			log := NewLog()
			_, err := ch.Request(req1)
			Expect(err).To(MatchError(err1))
			Expect(err).To(MatchError("open: one"))
			_, err = ch.Request(req2)
			Expect(err).To(MatchError(err2))
			Expect(port.Calls).To(Equal([]bool{false, true}))
			Expect(ch.Stats()).To(Equal(Stats{Requests: 2, TransportErrs: 2}))
			Expect(log.Msgs).To(BeEmpty())
		})

		It("opens explicitly", func() {
			rwc := &MockRwc{}
			port := &MockPort{Opens: []OpenScript{{rwc, nil}}}
			ch := &Channel{Port: port}
			Expect(ch.Open()).To(Succeed())
			Expect(ch.Open()).To(Succeed())
			Expect(ch.IsOpen()).To(BeTrue())
			Expect(ch.Close()).To(Succeed())
			Expect(ch.Close()).To(Succeed())
			Expect(port.Calls).To(Equal([]bool{false}))
			Expect(rwc.Calls).To(Equal([]string{"CLOSE"}))
		})
	})

	Context("error on tx", func() {
		It("returns that err", func() {
			req1 := NewReadHRegsRequest(3, 2, 1)
			err1 := errors.New("one")
			req2 := NewWriteCoilRequest(3, 258, true)
			rwc1 := &MockRwc{Writes: []WriteScript{{8, err1}}}
			rwc2 := &MockRwc{Writes: []WriteScript{{5, nil}}}
			port := &MockPort{
				Opens: []OpenScript{
					{rwc1, nil},
					{rwc2, nil},
				},
			}
			ch := &Channel{
				Port: port,
			}
			log := NewLog()
			_, err := ch.Request(req1)
			Expect(err).To(MatchError(err1))
			var te *TransportErr
			Expect(errors.As(err, &te)).To(BeTrue())
			Expect(te.Op).To(Equal("write"))
			_, err = ch.Request(req2)
			Expect(err).To(MatchError(io.ErrShortWrite))
			Expect(port.Calls).To(Equal([]bool{false, false}))
			Expect(rwc1.Calls).To(Equal([]string{
				"FLUSH",
				"WRITE [03 03 00 02 00 01 24 28]",
				"CLOSE",
			}))
			Expect(rwc2.Calls).To(Equal([]string{
				"FLUSH",
				"WRITE [03 05 01 02 FF 00 2D E4]",
				"CLOSE",
			}))
			Expect(log.Msgs).To(Equal([]string{
				"D:tx: 03 03 00 02 00 01 24 28",
				"D:TX: 3<-RHR 2:1",
				"D:tx: 03 05 01 02 FF 00 2D E4",
				"D:TX: 3<-W1C 258 true",
			}))
		})
	})

	Context("error on rx", func() {
		It("returns that err", func() {
			req := NewReadCoilsRequest(3, 2, 1)
			err := errors.New("something")
			rwc := &MockRwc{
				Writes: []WriteScript{
					{8, nil},
				},
				Reads: []ReadScript{
					{[]byte{3, 1}, nil},
					{nil, err},
				},
			}
			port := &MockPort{
				Opens: []OpenScript{
					{rwc, nil},
				},
			}
			ch := &Channel{
				Port: port,
			}
			log := NewLog()
			res, rerr := ch.Request(req)
			Expect(res).To(BeNil())
			Expect(rerr).To(MatchError(err))
			Expect(rerr).To(MatchError("read: something"))
			Expect(IsTimeout(rerr)).To(BeFalse())
			Expect(ch.IsOpen()).To(BeFalse())
			Expect(rwc.Calls).To(Equal([]string{
				"FLUSH",
				"WRITE [03 01 00 02 00 01 5D E8]",
				"READ",
				"READ",
				"CLOSE",
			}))
			Expect(log.Msgs).To(Equal([]string{
				"D:tx: 03 01 00 02 00 01 5D E8",
				"D:TX: 3<-RC  2:1",
				"D:rx: 03 01",
			}))
		})
	})

	Context("bad rx", func() {
		It("returns BadRxErr", func() {
			rx := []byte{3, 1, 1, 0b1, 0x91, 0xf1}
			req := NewReadCoilsRequest(3, 2, 1)
			rwc := &MockRwc{
				Writes: []WriteScript{
					{8, nil},
				},
				Reads: []ReadScript{
					{rx, nil},
				},
			}
			port := &MockPort{
				Opens: []OpenScript{
					{rwc, nil},
				},
			}
			ch := &Channel{
				Port: port,
			}
			log := NewLog()
			res, err := ch.Request(req)
			Expect(err).To(MatchError(
				"invalid response (crc mismatch): [03 01 01 01 91 F1]"))
			Expect(res.Outcome).To(Equal(Malformed))
			Expect(res.Reason).To(Equal(ReasonCRC))
			Expect(port.Calls).To(Equal([]bool{false}))
			Expect(rwc.Calls).To(Equal([]string{
				"FLUSH",
				"WRITE [03 01 00 02 00 01 5D E8]",
				"READ",
			}))
			Expect(ch.Stats()).To(Equal(Stats{Requests: 1, Malformed: 1}))
			Expect(log.Msgs).To(Equal([]string{
				"D:tx: 03 01 00 02 00 01 5D E8",
				"D:TX: 3<-RC  2:1",
				"D:rx: 03 01 01 01 91 F1",
			}))
		})

		It("reports a function mismatch", func() {
			req := NewReadHRegsRequest(2, 0, 1)
			rwc := &MockRwc{
				Writes: []WriteScript{{8, nil}},
				Reads: []ReadScript{
					{[]byte{0x02, 0x07, 0x41, 0x12, 0, 0, 0}, nil},
				},
			}
			ch := &Channel{Port: &MockPort{Opens: []OpenScript{{rwc, nil}}}}
			_, err := ch.Request(req)
			var bad *BadRxErr
			Expect(errors.As(err, &bad)).To(BeTrue())
			Expect(bad.Reason).To(Equal(ReasonFunction))
		})
	})

	Context("timeout", func() {
		It("returns ErrTimeout", func() {
			t := time.Date(2024, time.March, 2, 10, 11, 12, 0, time.UTC)
			req := NewReadCoilsRequest(3, 2, 1)
			ch := &Channel{}
			budget := ch.ResponseTimeout(req)
			mc := new(clock.Mock)
			mc.NowScripts = []time.Duration{
				0, 0, budget,
			}
			DeferCleanup(SetClock(mc))
			mc.Start(t)
			rwc := &MockRwc{
				Writes: []WriteScript{
					{8, nil},
				},
				Reads: []ReadScript{
					{nil, nil},
				},
			}
			port := &MockPort{
				Opens: []OpenScript{
					{rwc, nil},
				},
			}
			ch.Port = port
			log := NewLog()
			res, err := ch.Request(req)
			Expect(res).To(BeNil())
			Expect(err).To(MatchError(ErrTimeout))
			Expect(IsTimeout(err)).To(BeTrue())
			Expect(err).To(Equal(&TimeoutErr{budget}))
			Expect(ch.IsOpen()).To(BeTrue())
			Expect(port.Calls).To(Equal([]bool{false}))
			Expect(rwc.Calls).To(Equal([]string{
				"FLUSH",
				"WRITE [03 01 00 02 00 01 5D E8]",
				"READ",
				"READ",
			}))
			mc.Stop()
			Expect(mc.Calls()).To(HaveExactElements(
				"now",
				"now",
				"now",
			))
			Expect(mc.Times()).To(HaveExactElements(
				t.Add(dsn),
				t.Add(2*dsn),
				t.Add(2*dsn+budget),
			))
			Expect(ch.Stats()).To(Equal(Stats{Requests: 1, Timeouts: 1}))
			Expect(log.Msgs).To(Equal([]string{
				"D:tx: 03 01 00 02 00 01 5D E8",
				"D:TX: 3<-RC  2:1",
			}))
		})

		It("does not restart the deadline on partial data", func() {
			t := time.Date(2024, time.March, 2, 10, 11, 12, 0, time.UTC)
			req := NewReadHRegsRequest(17, 10000, 1)
			ch := &Channel{Timeout: 50 * time.Millisecond}
			budget := ch.ResponseTimeout(req)
			mc := new(clock.Mock)
			mc.NowScripts = []time.Duration{
				0, budget / 2, budget,
			}
			DeferCleanup(SetClock(mc))
			mc.Start(t)
			rwc := &MockRwc{
				Writes: []WriteScript{{8, nil}},
				Reads: []ReadScript{
					{[]byte{0x11, 0x03}, nil},
					{[]byte{0x02, 0x00}, nil},
				},
			}
			ch.Port = &MockPort{Opens: []OpenScript{{rwc, nil}}}
			log := NewLog()
			_, err := ch.Request(req)
			Expect(err).To(MatchError(ErrTimeout))
			mc.Stop()
			Expect(mc.Calls()).To(HaveLen(3))
			Expect(log.Msgs).To(Equal([]string{
				"D:tx: 11 03 27 10 00 01 8D EB",
				"D:TX: 17<-RHR 10000:1",
				"D:rx: 11 03 02 00",
			}))
		})
	})

	Context("concurrent callers", func() {
		It("admits one request at a time", func() {
			bus := &echoRwc{}
			ch := &Channel{Port: &MockPort{Opens: []OpenScript{{bus, nil}}}}
			var wg sync.WaitGroup
			for i := 1; i <= 5; i++ {
				wg.Add(1)
				go func(addr byte) {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := ch.Request(NewEchoTestRequest(addr))
					Expect(err).To(Succeed())
				}(byte(i))
			}
			wg.Wait()
			Expect(bus.overlap).To(BeFalse())
			Expect(bus.frames).To(HaveLen(5))
			Expect(ch.Stats()).To(Equal(Stats{Requests: 5}))
		})

		It("applies the defaults once for every caller", func() {
			bus := &echoRwc{}
			ch := &Channel{Port: &MockPort{Opens: []OpenScript{{bus, nil}}}}
			req := NewEchoTestRequest(1)
			want := TIMEOUT + RoundTrip(BAUDRATE, 8, 8)
			budgets := make([]time.Duration, 4)
			var wg sync.WaitGroup
			for i := range budgets {
				wg.Add(2)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := ch.Request(NewEchoTestRequest(byte(i + 1)))
					Expect(err).To(Succeed())
				}(i)
				go func(i int) {
					defer wg.Done()
					budgets[i] = ch.ResponseTimeout(req)
				}(i)
			}
			wg.Wait()
			Expect(budgets).To(HaveEach(want))
			Expect(ch.Baudrate).To(Equal(BAUDRATE))
			Expect(ch.Timeout).To(Equal(TIMEOUT))
			Expect(bus.overlap).To(BeFalse())
		})
	})

	It("forwards reports to the log hooks", func() {
		log := NewLog()
		ch := &Channel{}
		ch.Debugf("skip %d", 3)
		ch.Errorf("fail %d", 4)
		Expect(log.Msgs).To(Equal([]string{"D:skip 3", "E:fail 4"}))
	})
})

type MockPort struct {
	Opens []OpenScript

	Calls []bool
	i     int
}

type OpenScript struct {
	Rwc io.ReadWriteCloser
	Err error
}

func (m *MockPort) Open(repeat bool) (rwc io.ReadWriteCloser, err error) {
	if m.i < len(m.Opens) {
		rwc = m.Opens[m.i].Rwc
		err = m.Opens[m.i].Err
	}
	m.i++
	m.Calls = append(m.Calls, repeat)
	return
}

type MockRwc struct {
	Writes []WriteScript
	Reads  []ReadScript

	Calls []string

	iWrite int
	iRead  int
}

type WriteScript struct {
	N   int
	Err error
}

type ReadScript struct {
	Bytes []byte
	Err   error
}

func (m *MockRwc) Write(b []byte) (n int, err error) {
	if m.iWrite < len(m.Writes) {
		n = m.Writes[m.iWrite].N
		err = m.Writes[m.iWrite].Err
	}
	m.Calls = append(m.Calls, fmt.Sprintf("WRITE [% X]", b))
	m.iWrite++
	return
}

func (m *MockRwc) Read(b []byte) (n int, err error) {
	if m.iRead < len(m.Reads) {
		s := m.Reads[m.iRead]
		if len(b) < len(s.Bytes) {
			panic(fmt.Sprintf("Invalid MockRwc.ReadScript[%d].Bytes %d>%d",
				m.iRead, len(s.Bytes), len(b)))
		}
		if len(s.Bytes) > 0 {
			copy(b, s.Bytes)
			n = len(s.Bytes)
		}
		err = s.Err
	}
	m.Calls = append(m.Calls, "READ")
	m.iRead++
	return
}

func (m *MockRwc) ResetInputBuffer() error {
	m.Calls = append(m.Calls, "FLUSH")
	return nil
}

func (m *MockRwc) Close() error {
	m.Calls = append(m.Calls, "CLOSE")
	return nil
}

// echoRwc answers every frame with itself after a short delay and
// notices when a second frame arrives before the first was read back.
type echoRwc struct {
	mu      sync.Mutex
	pending []byte
	frames  [][]byte
	overlap bool
}

func (e *echoRwc) Write(b []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) > 0 {
		e.overlap = true
	}
	e.pending = append([]byte(nil), b...)
	e.frames = append(e.frames, e.pending)
	return len(b), nil
}

func (e *echoRwc) Read(b []byte) (int, error) {
	time.Sleep(time.Millisecond)
	e.mu.Lock()
	defer e.mu.Unlock()
	n := copy(b, e.pending)
	e.pending = e.pending[n:]
	return n, nil
}

func (e *echoRwc) Close() error { return nil }
