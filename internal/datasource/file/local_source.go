package file

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Local reads a single snapshot file from the local filesystem. Each ingest
// worker holds its own Local, one per discovered snapshot, so concurrent
// opens never share state.
type Local struct{ path string }

// NewLocal binds a source to the given snapshot path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Open returns the snapshot's contents as an io.ReadCloser. A context that
// is already done short-circuits before the filesystem is touched. Open
// failures wrap the path and keep the underlying cause visible to errors.Is,
// notably os.ErrNotExist for snapshots that disappeared after discovery.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", l.path, err)
	}
	return f, nil
}
