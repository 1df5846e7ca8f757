package monitoring

import "log"

// Logger is a printf-style log sink.
type Logger func(format string, v ...interface{})

// Logf is the sink every package logs through. It is log.Printf until
// SetLogger replaces it.
var Logf Logger = log.Printf

// SetLogger installs f as the sink and returns a func that reinstates the
// previous one, suitable for t.Cleanup. A nil f mutes logging.
func SetLogger(f Logger) (restore func()) {
	prev := Logf
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
	return func() { Logf = prev }
}

// Prefixed returns a Logger that tags each line with "prefix: ". The sink
// is resolved on every call, so a later SetLogger still applies.
func Prefixed(prefix string) Logger {
	return func(format string, v ...interface{}) {
		Logf(prefix+": "+format, v...)
	}
}
