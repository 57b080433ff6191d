package rtu

import (
	"fmt"
	"sync"
	"time"
)

type Log struct {
	mu   sync.Mutex
	Msgs []string
}

func (l *Log) add(prefix, f string, a ...any) {
	l.mu.Lock()
	l.Msgs = append(l.Msgs, prefix+fmt.Sprintf(f, a...))
	l.mu.Unlock()
}

// NewLog captures every log hook until the returned Log is replaced.
func NewLog() *Log {
	l := new(Log)
	InfoLogFunc = func(f string, a ...any) { l.add("I:", f, a...) }
	DebugLogFunc = func(f string, a ...any) { l.add("D:", f, a...) }
	ErrorLogFunc = func(f string, a ...any) { l.add("E:", f, a...) }
	return l
}

func ResetLog() {
	InfoLogFunc = nil
	DebugLogFunc = nil
	ErrorLogFunc = nil
}

func SetClock(c nower) (restore func()) {
	old := ctime
	ctime = c
	return func() { ctime = old }
}

// RecordSleeps replaces time.Sleep with a recorder.
func RecordSleeps() (sleeps *[]time.Duration, restore func()) {
	old := sleep
	sleeps = new([]time.Duration)
	sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	return sleeps, func() { sleep = old }
}

var StopBitsOf = stopBits
