// Package log provides a logger interface for logger libraries
// so that this module does not depend on any of them directly.
package log

// Logger serves as an adapter interface for logger libraries
// so that callers are not forced into a particular logging library.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Nop is a Logger that discards everything. It is the default used by
// Config when no Logger is supplied.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Debug(args ...interface{})                 {}
func (nopLogger) Info(args ...interface{})                  {}
func (nopLogger) Warn(args ...interface{})                  {}
func (nopLogger) Error(args ...interface{})                 {}
func (nopLogger) Debugf(format string, args ...interface{}) {}
func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Warnf(format string, args ...interface{})  {}
func (nopLogger) Errorf(format string, args ...interface{}) {}
