package rtu

// Log hooks, printf style. A nil hook discards its messages.
var (
	InfoLogFunc  func(string, ...any)
	DebugLogFunc func(string, ...any)
	ErrorLogFunc func(string, ...any)
)

func log(f string, a ...any) {
	if InfoLogFunc != nil {
		InfoLogFunc(f, a...)
	}
}

func debugLog(f string, a ...any) {
	if DebugLogFunc != nil {
		DebugLogFunc(f, a...)
	}
}

func errorLog(f string, a ...any) {
	if ErrorLogFunc != nil {
		ErrorLogFunc(f, a...)
	}
}
