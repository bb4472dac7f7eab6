package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"mfestate/pkg/domain"
)

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) add(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, args...))
}

func (l *captureLogger) Debugf(format string, args ...any) { l.add("debug", format, args...) }
func (l *captureLogger) Warnf(format string, args ...any)  { l.add("warn", format, args...) }
func (l *captureLogger) Errorf(format string, args ...any) { l.add("error", format, args...) }

func (l *captureLogger) has(level, fragment string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.HasPrefix(line, level+" ") && strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

// localStore builds a non-persistent, non-synced store with a fixed clock.
func localStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	base := []Option{
		WithLogger(NopLogger{}),
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
	}
	s := NewStore(Config{}, append(base, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// eventLog collects events from a global listener.
type eventLog struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (e *eventLog) listen(ev domain.ChangeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) all() []domain.ChangeEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.ChangeEvent(nil), e.events...)
}

func (e *eventLog) sources() []string {
	var out []string
	for _, ev := range e.all() {
		out = append(out, ev.Source)
	}
	return out
}
