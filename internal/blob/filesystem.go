package blob

import "mfestate/internal/infra/blob/fs"

// NewFilesystem stores objects as files under root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
