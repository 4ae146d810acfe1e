package scanlog

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/lidarsim/internal/fsutil"
	"github.com/banshee-data/lidarsim/internal/lidar/storage"
	"github.com/banshee-data/lidarsim/internal/monitoring"
)

// ErrEmptyPath is returned when no file path is given.
var ErrEmptyPath = errors.New("scanlog: empty path")

// LoadTask is an in-flight load. Parsing runs on its own goroutine and
// cannot be cancelled; a caller that loses interest simply ignores the
// result.
type LoadTask struct {
	path string
	done chan struct{}
	res  Result
	err  error
}

// Load opens path and parses it in the background. Errors opening the file
// are returned immediately.
func Load(fsys fsutil.FileSystem, path string) (*LoadTask, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scan log: %w", err)
	}
	t := &LoadTask{path: path, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer f.Close()
		t.res, t.err = Decode(f)
		if t.err != nil {
			monitoring.Opsf("scanlog: %s: %v", path, t.err)
		}
		if t.res.Skipped > 0 {
			monitoring.Opsf("scanlog: %s: skipped %d of %d lines", path, t.res.Skipped, t.res.Lines)
		}
		monitoring.Diagf("scanlog: loaded %s: %d records under %d keys", path, t.res.Records, len(t.res.Data))
	}()
	return t, nil
}

// Path returns the file being loaded.
func (t *LoadTask) Path() string { return t.path }

// Done is closed when parsing has finished.
func (t *LoadTask) Done() <-chan struct{} { return t.done }

// Wait blocks until parsing finishes and returns the result.
func (t *LoadTask) Wait() (Result, error) {
	<-t.done
	return t.res, t.err
}

// LoadInto waits for the task and replaces store's contents with the
// decoded data. A read error leaves store untouched.
func (t *LoadTask) LoadInto(store *storage.Store) (Result, error) {
	res, err := t.Wait()
	if err != nil {
		return res, err
	}
	store.ReplaceAll(res.Data)
	return res, nil
}

// Save writes store's contents to path, creating parent directories.
// It returns the number of coordinates written.
func Save(fsys fsutil.FileSystem, path string, store *storage.Store) (n int, err error) {
	if path == "" {
		return 0, ErrEmptyPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	w, err := fsys.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create scan log: %w", err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close scan log: %w", cerr)
		}
	}()

	n, err = Encode(w, store.Snapshot())
	if err != nil {
		return n, err
	}
	monitoring.Opsf("scanlog: saved %d coordinates to %s", n, path)
	return n, nil
}
