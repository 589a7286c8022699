package storage

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/calvinalkan/spacepost/pkg/fs"
)

// collectEvents drains e.Events in the background for the lifetime of the
// test and returns an accessor for what's been collected so far. The
// goroutine is left running past test completion (the channel is never
// closed) which is harmless: it just blocks forever on an unused channel.
func collectEvents(e *Engine) func() []Event {
	var (
		mu  sync.Mutex
		got []Event
	)

	go func() {
		for ev := range e.Events {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		}
	}()

	return func() []Event {
		mu.Lock()
		defer mu.Unlock()

		out := make([]Event, len(got))
		copy(out, got)

		return out
	}
}

func newTestEngine(t *testing.T) (*Engine, func() []Event) {
	t.Helper()

	root := t.TempDir()
	e := NewEngine(fs.NewReal(), root, DefaultConfig())

	events := collectEvents(e)

	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	return e, events
}

func lastKind(events []Event) EventKind {
	if len(events) == 0 {
		return EventKind(255)
	}

	return events[len(events)-1].Kind
}

func TestEngine_InitializeOnFreshDirectoryStartsAtInitialIndex(t *testing.T) {
	e, _ := newTestEngine(t)

	if e.Telemetry.NextStorageIndex != InitialIndex {
		t.Fatalf("NextStorageIndex = %d, want %d", e.Telemetry.NextStorageIndex, InitialIndex)
	}
}

func TestEngine_StoreThenLoadRoundTrip(t *testing.T) {
	e, events := newTestEngine(t)

	idx, err := e.Store(SpacePost{Text: "hello"})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	if idx != 0 {
		t.Fatalf("Store() idx = %d, want 0", idx)
	}

	got, err := e.Load(idx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got.Text != "hello" {
		t.Fatalf("Load().Text = %q, want %q", got.Text, "hello")
	}

	if e.Telemetry.StoreAttempts != 1 {
		t.Fatalf("StoreAttempts = %d, want 1", e.Telemetry.StoreAttempts)
	}

	if e.Telemetry.LoadAttempts != 1 {
		t.Fatalf("LoadAttempts = %d, want 1", e.Telemetry.LoadAttempts)
	}

	if e.Telemetry.NextStorageIndex != 1 {
		t.Fatalf("NextStorageIndex = %d, want 1", e.Telemetry.NextStorageIndex)
	}

	if lastKind(events()) != EventMessageLoadComplete {
		t.Fatalf("last event = %v, want MESSAGE_LOAD_COMPLETE", lastKind(events()))
	}
}

func TestEngine_StoreIndicesAreSequential(t *testing.T) {
	e, _ := newTestEngine(t)

	for want := uint32(0); want < 5; want++ {
		idx, err := e.Store(SpacePost{Text: "x"})
		if err != nil {
			t.Fatalf("Store() error = %v", err)
		}

		if idx != want {
			t.Fatalf("Store() idx = %d, want %d", idx, want)
		}
	}
}

func TestEngine_StoreFailsWhenFileAlreadyExists(t *testing.T) {
	e, events := newTestEngine(t)

	path := e.dir.PathFor(0)
	if err := e.fsys.WriteFile(path, []byte("stray"), filePerm); err != nil {
		t.Fatalf("seed stray file: %v", err)
	}

	_, err := e.Store(SpacePost{Text: "hello"})

	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("Store() error = %v, want *WriteError", err)
	}

	if werr.Stage != WriteStageFileExists {
		t.Fatalf("Store() stage = %s, want FILE_EXISTS", werr.Stage)
	}

	if lastKind(events()) != EventMessageStoreFailed {
		t.Fatalf("last event = %v, want MESSAGE_STORE_FAILED", lastKind(events()))
	}
}

func TestEngine_FailedStoreStillAdvancesNextStorageIndexTelemetry(t *testing.T) {
	e, _ := newTestEngine(t)

	path := e.dir.PathFor(0)
	if err := e.fsys.WriteFile(path, []byte("stray"), filePerm); err != nil {
		t.Fatalf("seed stray file: %v", err)
	}

	if _, err := e.Store(SpacePost{Text: "hello"}); err == nil {
		t.Fatal("Store() error = nil, want an error for a colliding file")
	}

	if e.Telemetry.NextStorageIndex != 1 {
		t.Fatalf("NextStorageIndex = %d, want 1 immediately after a failed Store consumed index 0", e.Telemetry.NextStorageIndex)
	}
}

func TestEngine_StoreCleansUpPartialFileOnEncodeFailure(t *testing.T) {
	root := t.TempDir()
	chaos := fs.NewChaos(fs.NewReal())

	e := NewEngine(chaos, root, DefaultConfig())
	_ = collectEvents(e)

	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	path := e.dir.PathFor(0)
	chaos.Fail(fs.OpWrite, path, errors.New("no space left on device"))

	_, err := e.Store(SpacePost{Text: "hello"})

	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("Store() error = %v, want *WriteError", err)
	}

	if werr.Stage != WriteStageDelimiterWrite {
		t.Fatalf("Store() stage = %s, want DELIMITER_WRITE", werr.Stage)
	}

	exists, existsErr := chaos.Exists(path)
	if existsErr != nil {
		t.Fatalf("Exists() error = %v", existsErr)
	}

	if exists {
		t.Fatal("partial file still exists after a failed store")
	}
}

func TestEngine_StoreReportsCleanupFailureSeparately(t *testing.T) {
	root := t.TempDir()
	chaos := fs.NewChaos(fs.NewReal())

	e := NewEngine(chaos, root, DefaultConfig())
	events := collectEvents(e)

	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	path := e.dir.PathFor(0)
	chaos.Fail(fs.OpWrite, path, errors.New("no space left on device"))
	chaos.Fail(fs.OpRemove, path, errors.New("permission denied"))

	_, err := e.Store(SpacePost{Text: "hello"})
	if err == nil {
		t.Fatal("Store() error = nil, want a WriteError")
	}

	storeFailedCount := 0

	for _, ev := range events() {
		if ev.Kind == EventMessageStoreFailed {
			storeFailedCount++
		}
	}

	if storeFailedCount != 2 {
		t.Fatalf("MESSAGE_STORE_FAILED count = %d, want 2 (original + cleanup)", storeFailedCount)
	}
}

func TestEngine_RejectedMessageNeverTouchesDisk(t *testing.T) {
	root := t.TempDir()
	e := NewEngine(fs.NewReal(), root, Config{
		FileExt:    DefaultFileExt,
		HistoryCap: DefaultHistoryCap,
		BatchCap:   DefaultBatchCap,
		MaxTextLen: DefaultMaxTextLen,
		Moderator:  rejectAll{},
	})
	events := collectEvents(e)

	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	idx, err := e.Store(SpacePost{Text: "nope"})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	if idx != 0 {
		t.Fatalf("Store() idx = %d, want 0 (rejected store still returns the zero value)", idx)
	}

	exists, err := e.fsys.Exists(e.dir.PathFor(0))
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}

	if exists {
		t.Fatal("rejected message was written to disk")
	}

	if lastKind(events()) != EventMessageRejected {
		t.Fatalf("last event = %v, want MESSAGE_REJECTED", lastKind(events()))
	}
}

type rejectAll struct{}

func (rejectAll) Allow(SpacePost) bool { return false }

func TestEngine_LoadLastNReturnsNewestFirstCappedToBatch(t *testing.T) {
	e, _ := newTestEngine(t)

	const n = 5
	for i := 0; i < n; i++ {
		if _, err := e.Store(SpacePost{Text: "x"}); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}

	results := e.LoadLastN(3)

	wantIdx := []uint32{4, 3, 2}
	if len(results) != len(wantIdx) {
		t.Fatalf("LoadLastN() returned %d results, want %d", len(results), len(wantIdx))
	}

	for i, want := range wantIdx {
		if results[i].Index != want {
			t.Fatalf("results[%d].Index = %d, want %d", i, results[i].Index, want)
		}

		if results[i].Err != nil {
			t.Fatalf("results[%d].Err = %v, want nil", i, results[i].Err)
		}
	}
}

func TestEngine_LoadLastNCapsAtConfiguredBatch(t *testing.T) {
	root := t.TempDir()
	e := NewEngine(fs.NewReal(), root, Config{
		FileExt:    DefaultFileExt,
		HistoryCap: 10,
		BatchCap:   2,
		MaxTextLen: DefaultMaxTextLen,
	})
	_ = collectEvents(e)

	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := e.Store(SpacePost{Text: "x"}); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}

	results := e.LoadLastN(10)
	if len(results) != 2 {
		t.Fatalf("LoadLastN(10) returned %d results, want 2 (batch cap)", len(results))
	}
}

func TestEngine_InitializeRestoresStateFromExistingDirectory(t *testing.T) {
	root := t.TempDir()
	real := fs.NewReal()

	seed := NewEngine(real, root, DefaultConfig())
	_ = collectEvents(seed)

	if err := seed.Initialize(); err != nil {
		t.Fatalf("seed Initialize() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := seed.Store(SpacePost{Text: "x"}); err != nil {
			t.Fatalf("seed Store() error = %v", err)
		}
	}

	restored := NewEngine(real, root, DefaultConfig())
	_ = collectEvents(restored)

	if err := restored.Initialize(); err != nil {
		t.Fatalf("restored Initialize() error = %v", err)
	}

	if restored.Telemetry.NextStorageIndex != 3 {
		t.Fatalf("NextStorageIndex = %d, want 3", restored.Telemetry.NextStorageIndex)
	}

	idx, err := restored.Store(SpacePost{Text: "y"})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	if idx != 3 {
		t.Fatalf("Store() idx = %d, want 3", idx)
	}
}

func TestEngine_InitializeSkipsUnrelatedFilesAndCountsCorruptRecords(t *testing.T) {
	root := t.TempDir()
	real := fs.NewReal()

	if err := real.WriteFile(root+"/not-a-record.bin", []byte("junk"), filePerm); err != nil {
		t.Fatalf("seed stray file: %v", err)
	}

	if err := real.WriteFile(root+"/5.spaceposts", []byte{Delimiter, 0, 0, 0}, filePerm); err != nil {
		t.Fatalf("seed truncated record: %v", err)
	}

	e := NewEngine(real, root, DefaultConfig())
	_ = collectEvents(e)

	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if e.Telemetry.NextStorageIndex != 6 {
		t.Fatalf("NextStorageIndex = %d, want 6 (restored past the one recognized record)", e.Telemetry.NextStorageIndex)
	}
}

func TestEngine_LoadMissingRecordFails(t *testing.T) {
	e, events := newTestEngine(t)

	_, err := e.Load(999)

	var rerr *ReadError
	if !errors.As(err, &rerr) {
		t.Fatalf("Load() error = %v, want *ReadError", err)
	}

	if rerr.Stage != ReadStageOpen {
		t.Fatalf("Load() stage = %s, want OPEN", rerr.Stage)
	}

	if lastKind(events()) != EventMessageLoadFailed {
		t.Fatalf("last event = %v, want MESSAGE_LOAD_FAILED", lastKind(events()))
	}
}

func TestEngine_InitializeOnPreExistingDirectoryEmitsNoWarning(t *testing.T) {
	_, events := newTestEngine(t)

	for _, ev := range events() {
		if ev.Kind == EventStorageDirectoryWarning {
			t.Fatalf("unexpected STORAGE_DIRECTORY_WARNING for a pre-existing directory: %+v", ev)
		}
	}
}

func TestEngine_InitializeOnMissingDirectoryWarnsWithCreatedTrue(t *testing.T) {
	root := t.TempDir()
	dirPath := filepath.Join(root, "posts")

	e := NewEngine(fs.NewReal(), dirPath, DefaultConfig())
	events := collectEvents(e)

	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	var warning *Event

	for _, ev := range events() {
		if ev.Kind == EventStorageDirectoryWarning {
			ev := ev
			warning = &ev

			break
		}
	}

	if warning == nil {
		t.Fatal("expected a STORAGE_DIRECTORY_WARNING event for a newly created directory")
	}

	if !warning.Created {
		t.Fatalf("warning.Created = false, want true for a newly created directory")
	}

	if warning.Err != nil {
		t.Fatalf("warning.Err = %v, want nil for a successful creation", warning.Err)
	}
}
