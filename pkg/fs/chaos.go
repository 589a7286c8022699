package fs

import (
	"os"
	"sync"
)

// FaultOp names an [FS] or [File] operation that [Chaos] can be told to fail.
type FaultOp string

// Operations that [Chaos.Fail] can target.
const (
	OpOpen     FaultOp = "open"
	OpCreate   FaultOp = "create"
	OpOpenFile FaultOp = "open_file"
	OpReadDir  FaultOp = "read_dir"
	OpRemove   FaultOp = "remove"
	OpWrite    FaultOp = "write"
	OpRead     FaultOp = "read"
)

// Chaos wraps an [FS] and deterministically fails specific operations on
// specific paths, for exercising error-handling paths that are otherwise
// impossible to trigger against a real filesystem (disk full, permission
// denied, a read that dies mid-record).
//
// Unlike a probabilistic fault injector, every fault is exact and
// consumed exactly once: call [Chaos.Fail] to queue a failure, and the
// next matching call returns it and the queue advances. This keeps tests
// deterministic instead of flaky.
type Chaos struct {
	under FS

	mu     sync.Mutex
	faults map[FaultOp]map[string][]error
}

// NewChaos wraps under with fault-injection behavior. Calls that don't
// match a queued fault pass straight through to under.
func NewChaos(under FS) *Chaos {
	return &Chaos{
		under:  under,
		faults: make(map[FaultOp]map[string][]error),
	}
}

// Fail queues err to be returned the next time op is attempted on path.
// Faults are FIFO per (op, path) pair.
func (c *Chaos) Fail(op FaultOp, path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byPath, ok := c.faults[op]
	if !ok {
		byPath = make(map[string][]error)
		c.faults[op] = byPath
	}

	byPath[path] = append(byPath[path], err)
}

// take returns and consumes the next queued fault for (op, path), if any.
func (c *Chaos) take(op FaultOp, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	byPath, ok := c.faults[op]
	if !ok {
		return nil
	}

	queue, ok := byPath[path]
	if !ok || len(queue) == 0 {
		return nil
	}

	err := queue[0]
	byPath[path] = queue[1:]

	return err
}

func (c *Chaos) Open(path string) (File, error) {
	if err := c.take(OpOpen, path); err != nil {
		return nil, err
	}

	f, err := c.under.Open(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{under: f, chaos: c, path: path}, nil
}

func (c *Chaos) Create(path string) (File, error) {
	if err := c.take(OpCreate, path); err != nil {
		return nil, err
	}

	f, err := c.under.Create(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{under: f, chaos: c, path: path}, nil
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := c.take(OpOpenFile, path); err != nil {
		return nil, err
	}

	f, err := c.under.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{under: f, chaos: c, path: path}, nil
}

func (c *Chaos) ReadFile(path string) ([]byte, error) {
	if err := c.take(OpRead, path); err != nil {
		return nil, err
	}

	return c.under.ReadFile(path)
}

func (c *Chaos) WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := c.take(OpWrite, path); err != nil {
		return err
	}

	return c.under.WriteFile(path, data, perm)
}

func (c *Chaos) ReadDir(path string) ([]os.DirEntry, error) {
	if err := c.take(OpReadDir, path); err != nil {
		return nil, err
	}

	return c.under.ReadDir(path)
}

func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	return c.under.MkdirAll(path, perm)
}

func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	return c.under.Stat(path)
}

func (c *Chaos) Exists(path string) (bool, error) {
	return c.under.Exists(path)
}

func (c *Chaos) Remove(path string) error {
	if err := c.take(OpRemove, path); err != nil {
		return err
	}

	return c.under.Remove(path)
}

func (c *Chaos) RemoveAll(path string) error {
	return c.under.RemoveAll(path)
}

func (c *Chaos) Rename(oldpath, newpath string) error {
	return c.under.Rename(oldpath, newpath)
}

// chaosFile wraps a [File] so queued write/read faults on its path still
// apply once the file is open (the common case: store opens-for-write and
// the injected failure happens on the write call itself, not the open).
type chaosFile struct {
	under File
	chaos *Chaos
	path  string
}

func (f *chaosFile) Read(p []byte) (int, error) {
	if err := f.chaos.take(OpRead, f.path); err != nil {
		return 0, err
	}

	return f.under.Read(p)
}

func (f *chaosFile) Write(p []byte) (int, error) {
	if err := f.chaos.take(OpWrite, f.path); err != nil {
		return 0, err
	}

	return f.under.Write(p)
}

func (f *chaosFile) Close() error {
	return f.under.Close()
}

func (f *chaosFile) Seek(offset int64, whence int) (int64, error) {
	return f.under.Seek(offset, whence)
}

func (f *chaosFile) Fd() uintptr {
	return f.under.Fd()
}

func (f *chaosFile) Stat() (os.FileInfo, error) {
	return f.under.Stat()
}

func (f *chaosFile) Sync() error {
	return f.under.Sync()
}

func (f *chaosFile) Chmod(mode os.FileMode) error {
	return f.under.Chmod(mode)
}

// Compile-time interface checks.
var (
	_ FS   = (*Chaos)(nil)
	_ File = (*chaosFile)(nil)
)
