package core

import (
	"io"
	"time"

	"mfestate/pkg/domain"
)

// Option customises a Store at construction.
type Option func(*Store)

// WithLogger replaces the default glog-backed logger. nil installs NopLogger.
func WithLogger(logger Logger) Option {
	return func(s *Store) {
		if logger == nil {
			s.logger = NopLogger{}
			return
		}
		s.logger = logger
	}
}

// WithPersister supplies the durable backend. Without it a persistent store
// falls back to a process-local memory persister.
func WithPersister(p domain.Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithChannel supplies the broadcast transport. Without it a cross-instance
// store has nobody to talk to and only commits locally.
func WithChannel(ch domain.Channel) Option {
	return func(s *Store) { s.channel = ch }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source used for event timestamps and meta.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithInstanceID fixes the instance identity instead of a random uuid.
func WithInstanceID(id string) Option {
	return func(s *Store) {
		if id != "" {
			s.instanceID = id
		}
	}
}

// WithDevtoolsWriter streams devtools entries as JSON lines to w. It only has
// an effect when Config.Devtools is set.
func WithDevtoolsWriter(w io.Writer) Option {
	return func(s *Store) { s.devtoolsOut = w }
}

// withOwned hands resources to the store; Close closes them.
func withOwned(closers ...io.Closer) Option {
	return func(s *Store) { s.owned = append(s.owned, closers...) }
}
