// Package log defines the logger used across autopy.
//
// Components receive a Logger through their config struct and fall back to
// Noop when none is set. The production implementation lives in
// internal/log/logrus.
package log

// Kv is a set of structured key/value fields attached to log lines.
type Kv = map[string]any

// Logger is the logging interface used by every component.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
	WithValues(values Kv) Logger
}

// Noop discards all log output.
const Noop = noop(0)

type noop int

func (n noop) Debugf(format string, args ...any)   {}
func (n noop) Infof(format string, args ...any)    {}
func (n noop) Warningf(format string, args ...any) {}
func (n noop) Errorf(format string, args ...any)   {}
func (n noop) WithValues(_ Kv) Logger              { return n }
