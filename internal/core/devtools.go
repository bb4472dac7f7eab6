package core

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"mfestate/pkg/domain"
)

// DevtoolsEntry is one committed change as seen by the devtools recorder.
// Values are sanitized so the entry can always be encoded.
type DevtoolsEntry struct {
	Key           string    `json:"key"`
	Value         any       `json:"value"`
	PreviousValue any       `json:"previousValue"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
}

// DevtoolsRecorder retains every committed change and optionally writes each
// one as a JSON line.
type DevtoolsRecorder struct {
	mu      sync.Mutex
	entries []DevtoolsEntry
	enc     *json.Encoder
}

// NewDevtoolsRecorder constructs a recorder writing JSON lines to w. A nil
// writer only retains entries for inspection via Entries.
func NewDevtoolsRecorder(w io.Writer) *DevtoolsRecorder {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &DevtoolsRecorder{enc: enc}
}

// Entries returns a copy of all recorded changes.
func (d *DevtoolsRecorder) Entries() []DevtoolsEntry {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DevtoolsEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

func (d *DevtoolsRecorder) record(ev domain.ChangeEvent) {
	if d == nil {
		return
	}
	entry := DevtoolsEntry{
		Key:           ev.Key,
		Value:         Sanitize(ev.Value),
		PreviousValue: Sanitize(ev.PreviousValue),
		Source:        ev.Source,
		Timestamp:     ev.Timestamp,
	}
	d.mu.Lock()
	d.entries = append(d.entries, entry)
	if d.enc != nil {
		_ = d.enc.Encode(entry)
	}
	d.mu.Unlock()
}
