package core

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"mfestate/pkg/domain"
)

// persistenceAdapter maps store keys onto "<prefix>:<key>" entries of a
// Persister. Failures are logged and counted, never returned: the in-memory
// write has already happened.
type persistenceAdapter struct {
	backend domain.Persister
	prefix  string
	logger  Logger
	metrics MetricsRecorder
}

func newPersistenceAdapter(backend domain.Persister, prefix string, logger Logger, metrics MetricsRecorder) *persistenceAdapter {
	return &persistenceAdapter{
		backend: backend,
		prefix:  prefix + ":",
		logger:  logger,
		metrics: metrics,
	}
}

func (p *persistenceAdapter) storageKey(key string) string {
	return p.prefix + key
}

// load returns every decodable entry under the prefix. Malformed entries are
// skipped with a warning.
func (p *persistenceAdapter) load(ctx context.Context) map[string]any {
	out := make(map[string]any)
	entries, err := p.backend.Entries(ctx, p.prefix)
	if err != nil {
		p.logger.Warnf("load persisted state under %q: %v", p.prefix, err)
		return out
	}
	for _, e := range entries {
		key, ok := strings.CutPrefix(e.Key, p.prefix)
		if !ok || key == "" {
			continue
		}
		var v any
		if err := json.Unmarshal(e.Payload, &v); err != nil {
			p.logger.Warnf("skip malformed persisted entry %q: %v", e.Key, err)
			continue
		}
		out[key] = v
	}
	return out
}

func (p *persistenceAdapter) save(ctx context.Context, key string, value any) {
	p.do(ctx, "save", key, func() error {
		return p.backend.Save(ctx, p.storageKey(key), Encode(value))
	})
}

func (p *persistenceAdapter) remove(ctx context.Context, key string) {
	p.do(ctx, "remove", key, func() error {
		return p.backend.Remove(ctx, p.storageKey(key))
	})
}

func (p *persistenceAdapter) clear(ctx context.Context) {
	p.do(ctx, "clear", p.prefix+"*", func() error {
		return p.backend.Clear(ctx, p.prefix)
	})
}

func (p *persistenceAdapter) do(ctx context.Context, op, key string, fn func() error) {
	started := time.Now()
	err := fn()
	if err != nil {
		p.logger.Warnf("persist %s %q: %v", op, key, err)
	}
	p.metrics.Observe(ctx, "persist", err == nil, time.Since(started))
}
