package blob

import "mfestate/internal/infra/blob/memory"

// NewMemory returns a process-local object store.
func NewMemory() Store { return memory.New() }
