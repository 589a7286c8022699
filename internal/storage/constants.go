package storage

// Delimiter is the fixed sanity-check byte at record offset 0 (spec §3, §6).
const Delimiter byte = 0xD9

// On-disk field widths, in byte order (spec §3 table).
const (
	delimiterFieldSize = 1
	messageLengthSize  = 4 // u32 BE, offset 1
	// payloadLengthSize (u16 BE, offset 5) is declared in message.go —
	// it's the payload's own field, not the record's.
	recordHeaderSize = delimiterFieldSize + messageLengthSize + payloadLengthSize // = 7, offset of text
)

// InitialIndex is the index the allocator starts at on a fresh directory.
const InitialIndex uint32 = 0

// DefaultFileExt is the on-disk record filename suffix (spec §6).
const DefaultFileExt = ".spaceposts"

// DefaultHistoryCap is the default size of the recent-index deque, which
// doubles as the default loadLastN batch size (spec §3: "HISTORY_CAP
// equals the batch size used by loadLastN").
const DefaultHistoryCap = 32

// DefaultBatchCap bounds a single loadLastN call (spec §6 BATCH_CAP).
const DefaultBatchCap = DefaultHistoryCap

// DefaultMaxTextLen bounds SpacePost.Text. It must fit in the payload's
// uint16 length prefix; this default leaves headroom well under that
// ceiling for a "short text message".
const DefaultMaxTextLen = 4096

// maxFilenameDigits is the longest decimal representation of a uint32
// index this engine will recognize (spec §6: "maximum stem 10 digits").
const maxFilenameDigits = 10
