package storage

import (
	"os"

	"github.com/calvinalkan/spacepost/pkg/fs"
)

// filePerm is the mode new record files are created with.
const filePerm = 0o640

// Config bundles the values NewEngine needs beyond the FS and directory
// root, all defaulted in [DefaultConfig].
type Config struct {
	FileExt    string
	HistoryCap uint32
	BatchCap   uint32
	MaxTextLen uint32
	Moderator  Moderator
}

// DefaultConfig returns the configuration spec §6's constant table
// describes.
func DefaultConfig() Config {
	return Config{
		FileExt:    DefaultFileExt,
		HistoryCap: DefaultHistoryCap,
		BatchCap:   DefaultBatchCap,
		MaxTextLen: DefaultMaxTextLen,
		Moderator:  AllowAll{},
	}
}

// Engine orchestrates store/load/loadLastN/initialize over a single
// storage directory (spec §4.4). It is not safe for concurrent use — the
// surrounding application is expected to serialize calls on a single
// executor (spec §5).
type Engine struct {
	fsys      fs.FS
	dir       *StorageDirectory
	codec     *RecordCodec
	alloc     *IndexAllocator
	moderator Moderator
	batchCap  uint32

	Telemetry Telemetry
	Events    chan Event
}

// eventBuffer sizes the Events channel so a single Store/Load call — which
// emits at most two events (a terminal one plus an incidental wraparound
// or cleanup-failure event) — never blocks waiting for a reader. Callers
// that expect bursts should still drain it promptly.
const eventBuffer = 8

// NewEngine constructs an Engine rooted at dirPath.
func NewEngine(fsys fs.FS, dirPath string, cfg Config) *Engine {
	moderator := cfg.Moderator
	if moderator == nil {
		moderator = AllowAll{}
	}

	return &Engine{
		fsys:      fsys,
		dir:       NewStorageDirectory(fsys, dirPath, cfg.FileExt),
		codec:     NewRecordCodec(cfg.MaxTextLen),
		alloc:     NewIndexAllocator(cfg.HistoryCap),
		moderator: moderator,
		batchCap:  cfg.BatchCap,
		Telemetry: Telemetry{NextStorageIndex: InitialIndex},
		Events:    make(chan Event, eventBuffer),
	}
}

func (e *Engine) emit(ev Event) {
	e.Events <- ev
}

// Initialize scans the storage directory and restores allocator state from
// whatever record files already exist (spec §4.4.4). It must be called
// once before Store/Load/LoadLastN are used against a pre-existing
// directory.
func (e *Engine) Initialize() error {
	result := e.dir.EnsureExists()
	if !result.Existed {
		e.emit(Event{Kind: EventStorageDirectoryWarning, Index: NoIndex, Path: result.Path, Created: result.Created, Err: result.Err})
	}

	indices, err := e.dir.Enumerate()
	if err != nil {
		e.emit(Event{Kind: EventIndexRestoreFailed, Index: NoIndex, Err: err})
		return err
	}

	e.alloc.Seed(indices)
	e.Telemetry.NextStorageIndex = e.alloc.NextIndex()

	e.emit(Event{Kind: EventIndexRestoreComplete, Index: e.Telemetry.NextStorageIndex})

	return nil
}

// Store persists post as a new record and returns the index it was
// assigned (spec §4.4.1). On any failure the index is still consumed (the
// allocator never hands it out again) but no file is left behind: Store
// attempts to delete whatever partial file it created before returning.
func (e *Engine) Store(post SpacePost) (uint32, error) {
	e.Telemetry.StoreAttempts++

	if !e.moderator.Allow(post) {
		e.emit(Event{Kind: EventMessageRejected, Index: NoIndex})
		return 0, nil
	}

	idx, wrapped := e.alloc.Allocate()
	e.Telemetry.NextStorageIndex = e.alloc.NextIndex()

	path := e.dir.PathFor(idx)

	if err := e.doStore(idx, path, post); err != nil {
		e.emit(Event{Kind: EventMessageStoreFailed, Index: idx, Path: path, Err: err})
		return idx, err
	}

	e.alloc.Remember(idx)

	e.emit(Event{Kind: EventMessageStoreComplete, Index: idx, Path: path})

	if wrapped {
		e.emit(Event{Kind: EventIndexWrapAround, Index: idx})
	}

	return idx, nil
}

// doStore performs the filesystem half of Store: the FILE_EXISTS probe,
// exclusive create, encode, and cleanup-on-failure (spec §4.4.1).
func (e *Engine) doStore(idx uint32, path string, post SpacePost) error {
	exists, err := e.fsys.Exists(path)
	if err != nil {
		return &WriteError{Stage: WriteStageFileExists, Code: ioStatusCode(err), Err: err}
	}

	if exists {
		return &WriteError{Stage: WriteStageFileExists, Code: statusUnknown, Err: os.ErrExist}
	}

	f, err := e.fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return &WriteError{Stage: WriteStageOpen, Code: ioStatusCode(err), Err: err}
	}

	encErr := e.codec.Encode(f, post)

	syncErr := f.Sync()
	closeErr := f.Close()

	if encErr != nil {
		e.cleanup(idx, path, encErr)
		return encErr
	}

	if syncErr != nil {
		werr := &WriteError{Stage: WriteStageMessageContentWrite, Code: ioStatusCode(syncErr), Err: syncErr}
		e.cleanup(idx, path, werr)
		return werr
	}

	if closeErr != nil {
		werr := &WriteError{Stage: WriteStageMessageContentWrite, Code: ioStatusCode(closeErr), Err: closeErr}
		e.cleanup(idx, path, werr)
		return werr
	}

	return nil
}

// cleanup deletes a partially-written file after original (the cause of
// the failed store) has already been decided. If the delete itself fails,
// a second, distinct event is emitted carrying a CLEANUP_DELETE-staged
// WriteError — it never replaces or masks original (spec §4.4.1).
func (e *Engine) cleanup(idx uint32, path string, original error) {
	if err := e.dir.Remove(path); err != nil {
		cleanupErr := &WriteError{Stage: WriteStageCleanupDelete, Code: ioStatusCode(err), Err: err}
		e.emit(Event{Kind: EventMessageStoreFailed, Index: idx, Path: path, Err: cleanupErr})
	}
}

// Load reads and decodes the record at idx (spec §4.4.2).
func (e *Engine) Load(idx uint32) (SpacePost, error) {
	e.Telemetry.LoadAttempts++

	path := e.dir.PathFor(idx)

	post, err := e.doLoad(path)
	if err != nil {
		e.emit(Event{Kind: EventMessageLoadFailed, Index: idx, Path: path, Err: err})
		return SpacePost{}, err
	}

	e.emit(Event{Kind: EventMessageLoadComplete, Index: idx, Path: path})

	return post, nil
}

func (e *Engine) doLoad(path string) (SpacePost, error) {
	f, err := e.fsys.Open(path)
	if err != nil {
		return SpacePost{}, &ReadError{Stage: ReadStageOpen, Code: ioStatusCode(err), Err: err}
	}
	defer f.Close()

	return e.codec.Decode(f)
}

// LoadResult pairs a loaded record's index with its outcome, for
// LoadLastN's ordered batch result.
type LoadResult struct {
	Index uint32
	Post  SpacePost
	Err   error
}

// LoadLastN loads up to n of the most recently stored records, newest
// first, capped at the configured BatchCap (spec §4.4.3). A failure
// loading one record does not stop the batch; it's reported in that
// entry's Err and the next index is still attempted.
func (e *Engine) LoadLastN(n uint32) []LoadResult {
	if n > e.batchCap {
		n = e.batchCap
	}

	results := make([]LoadResult, 0, n)

	e.alloc.RecentNewestFirst(func(idx uint32) bool {
		if uint32(len(results)) >= n {
			return false
		}

		post, err := e.Load(idx)
		results = append(results, LoadResult{Index: idx, Post: post, Err: err})

		return true
	})

	return results
}
