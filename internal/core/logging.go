package core

import "github.com/golang/glog"

// Logger records the conditions the store contains instead of returning:
// listener panics, persistence and broadcast failures, malformed entries.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// GlogLogger forwards to github.com/golang/glog. Debug output is emitted at
// glog verbosity Verbosity (default 2).
type GlogLogger struct {
	Verbosity glog.Level
}

func (l GlogLogger) level() glog.Level {
	if l.Verbosity == 0 {
		return 2
	}
	return l.Verbosity
}

// Debugf implements Logger.
func (l GlogLogger) Debugf(format string, args ...any) {
	glog.V(l.level()).Infof("[state] "+format, args...)
}

// Warnf implements Logger.
func (l GlogLogger) Warnf(format string, args ...any) {
	glog.Warningf("[state] "+format, args...)
}

// Errorf implements Logger.
func (l GlogLogger) Errorf(format string, args ...any) {
	glog.Errorf("[state] "+format, args...)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}
