package storagetest

// Model is an in-memory oracle for the observable behavior of
// [storage.Engine]: what index a store should receive, and what
// loadLastN should return, without touching a filesystem. Tests that
// exercise the real Engine against a real or chaos filesystem can diff
// its outcomes against Model's to check they agree.
//
// Design mirrors the Engine's own documented semantics (spec §4.1, §4.4)
// rather than re-deriving them: Model does no misuse checking and never
// tries to simulate I/O failures — that's what the real Engine and
// pkg/fs.Chaos are for.
type Model struct {
	historyCap uint32
	batchCap   uint32

	nextIndex uint32
	stored    map[uint32]string
	recent    []uint32
}

// NewModel returns a Model configured like a fresh storage directory.
func NewModel(historyCap, batchCap uint32) *Model {
	return &Model{
		historyCap: historyCap,
		batchCap:   batchCap,
		stored:     make(map[uint32]string),
	}
}

// Store records text at the next index and returns it, exactly like a
// successful [storage.Engine.Store] call would.
func (m *Model) Store(text string) uint32 {
	idx := m.nextIndex
	m.nextIndex++

	m.stored[idx] = text
	m.recent = append(m.recent, idx)

	if uint32(len(m.recent)) > m.historyCap {
		m.recent = m.recent[1:]
	}

	return idx
}

// Load returns the text stored at idx and whether anything is stored
// there at all.
func (m *Model) Load(idx uint32) (string, bool) {
	text, ok := m.stored[idx]
	return text, ok
}

// LoadLastN returns up to n indices, newest first, capped at batchCap —
// the same ordering and cap [storage.Engine.LoadLastN] promises.
func (m *Model) LoadLastN(n uint32) []uint32 {
	if n > m.batchCap {
		n = m.batchCap
	}

	out := make([]uint32, 0, n)

	for i := len(m.recent) - 1; i >= 0 && uint32(len(out)) < n; i-- {
		out = append(out, m.recent[i])
	}

	return out
}

// NextIndex reports the index the next Store call will assign.
func (m *Model) NextIndex() uint32 {
	return m.nextIndex
}
