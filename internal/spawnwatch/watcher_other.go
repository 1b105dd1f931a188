//go:build !linux

package spawnwatch

import "github.com/spf13/afero"

// Options configures Start.
type Options struct {
	Fs           afero.Fs
	TracefsRoots []string
	MaxEntries   uint32
}

// Watcher is unavailable on this platform.
type Watcher struct{}

// Start always fails with ErrUnsupported.
func Start(Options) (*Watcher, error) {
	return nil, ErrUnsupported
}

// Spawned returns nothing.
func (*Watcher) Spawned() ([]Spawn, error) {
	return nil, nil
}

// Close is a no-op.
func (*Watcher) Close() error {
	return nil
}
