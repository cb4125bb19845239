package logger

import (
	"github.com/pion/logging"
)

// PionFactory adapts Logger to pion's logging.LoggerFactory so ICE/DTLS/SCTP
// diagnostics land in the same stream as the rest of the client.
type PionFactory struct {
	base *Logger
}

// NewPionFactory returns a factory whose loggers are children of base
func NewPionFactory(base *Logger) *PionFactory {
	return &PionFactory{base: base}
}

// NewLogger implements logging.LoggerFactory
func (f *PionFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{l: f.base.Named("pion/" + scope)}
}

type pionLogger struct {
	l *Logger
}

// pion is chatty at info; demote it one level so it only shows up when debugging
func (p *pionLogger) Trace(msg string)                          {}
func (p *pionLogger) Tracef(format string, args ...interface{}) {}
func (p *pionLogger) Debug(msg string)                          { p.l.Debug("%s", msg) }
func (p *pionLogger) Debugf(format string, args ...interface{}) { p.l.Debug(format, args...) }
func (p *pionLogger) Info(msg string)                           { p.l.Debug("%s", msg) }
func (p *pionLogger) Infof(format string, args ...interface{})  { p.l.Debug(format, args...) }
func (p *pionLogger) Warn(msg string)                           { p.l.Warn("%s", msg) }
func (p *pionLogger) Warnf(format string, args ...interface{})  { p.l.Warn(format, args...) }
func (p *pionLogger) Error(msg string)                          { p.l.Error("%s", msg) }
func (p *pionLogger) Errorf(format string, args ...interface{}) { p.l.Error(format, args...) }

var _ logging.LoggerFactory = (*PionFactory)(nil)
