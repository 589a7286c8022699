package storage

// EventKind distinguishes the telemetry events the Engine emits on its
// event channel (spec §6). Every operation reports exactly one terminal
// event; STORAGE_DIRECTORY_WARNING and INDEX_WRAP_AROUND are incidental
// and can accompany a terminal event for the same call. A failed store
// whose partial-file cleanup also fails reports a second
// MESSAGE_STORE_FAILED carrying the CLEANUP_DELETE stage.
type EventKind uint8

const (
	EventMessageStoreComplete EventKind = iota
	EventMessageStoreFailed
	EventMessageLoadComplete
	EventMessageLoadFailed
	EventMessageRejected
	EventIndexRestoreComplete
	EventIndexRestoreFailed
	EventIndexWrapAround
	EventStorageDirectoryWarning
)

func (k EventKind) String() string {
	switch k {
	case EventMessageStoreComplete:
		return "MESSAGE_STORE_COMPLETE"
	case EventMessageStoreFailed:
		return "MESSAGE_STORE_FAILED"
	case EventMessageLoadComplete:
		return "MESSAGE_LOAD_COMPLETE"
	case EventMessageLoadFailed:
		return "MESSAGE_LOAD_FAILED"
	case EventMessageRejected:
		return "MESSAGE_REJECTED"
	case EventIndexRestoreComplete:
		return "INDEX_RESTORE_COMPLETE"
	case EventIndexRestoreFailed:
		return "INDEX_RESTORE_FAILED"
	case EventIndexWrapAround:
		return "INDEX_WRAP_AROUND"
	case EventStorageDirectoryWarning:
		return "STORAGE_DIRECTORY_WARNING"
	default:
		return "UNKNOWN_EVENT"
	}
}

// Event is a single telemetry record sent on the Engine's event channel.
// Fields not relevant to Kind are left zero; Index is 0xFFFFFFFF when not
// applicable to avoid colliding with a real index 0. Created is only
// meaningful on EventStorageDirectoryWarning: true when the directory had
// to be created, false when creating it also failed (spec §6).
type Event struct {
	Kind    EventKind
	Index   uint32
	Path    string
	Created bool
	Err     error
}

// NoIndex marks an Event.Index as not applicable to Kind.
const NoIndex uint32 = 0xFFFFFFFF

// Telemetry holds the running counters spec §6 requires alongside the
// event stream: store_attempts, load_attempts, and next_storage_index.
// It is not safe for concurrent use, matching the Engine's single-executor
// model (spec §5).
type Telemetry struct {
	StoreAttempts    uint64
	LoadAttempts     uint64
	NextStorageIndex uint32
}
