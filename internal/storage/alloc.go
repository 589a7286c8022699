package storage

// IndexAllocator hands out monotonically increasing indices and remembers
// the most recently stored ones, bounded to HistoryCap entries (spec §4.1).
//
// Not safe for concurrent use — see spec §5: the Engine serializes all
// access on a single executor.
type IndexAllocator struct {
	historyCap uint32
	nextIndex  uint32
	recent     []uint32 // oldest at front, newest at back; len <= historyCap
}

// NewIndexAllocator returns an allocator seeded to [InitialIndex] with an
// empty history, bounded to historyCap entries.
func NewIndexAllocator(historyCap uint32) *IndexAllocator {
	return &IndexAllocator{
		historyCap: historyCap,
		nextIndex:  InitialIndex,
	}
}

// Allocate returns the index to use for the next store, then advances the
// counter. A wraparound past [math.MaxUint32] is reported via wrapped so
// the Engine can emit INDEX_WRAP_AROUND; the allocator itself does not
// refuse to hand out the colliding index (spec §4.1, §9 open question 1).
func (a *IndexAllocator) Allocate() (idx uint32, wrapped bool) {
	idx = a.nextIndex
	a.nextIndex++

	return idx, a.nextIndex == 0
}

// NextIndex reports the index that the next Allocate call will return —
// mirrors the next_storage_index telemetry value (spec §3, §6).
func (a *IndexAllocator) NextIndex() uint32 {
	return a.nextIndex
}

// Remember records idx as successfully stored, evicting the oldest entry
// if the history would exceed historyCap. Idempotence is not required
// (spec §4.1): calling it twice with the same index duplicates it.
func (a *IndexAllocator) Remember(idx uint32) {
	a.recent = append(a.recent, idx)

	if uint32(len(a.recent)) > a.historyCap {
		a.recent = a.recent[1:]
	}
}

// RecentNewestFirst yields remembered indices from the most recently
// stored to the least recently stored (back to front of the deque).
func (a *IndexAllocator) RecentNewestFirst(yield func(uint32) bool) {
	for i := len(a.recent) - 1; i >= 0; i-- {
		if !yield(a.recent[i]) {
			return
		}
	}
}

// Seed restores allocator state from a sorted-ascending list of indices
// discovered on disk at startup (spec §4.1, §4.4.4, §9 open question 4).
//
// next_index becomes last+1 (or InitialIndex if existing is empty); recent
// becomes the ascending-order tail of existing, capped at historyCap
// entries, so RecentNewestFirst still yields the newest store first.
func (a *IndexAllocator) Seed(existingSorted []uint32) {
	a.recent = a.recent[:0]

	if len(existingSorted) == 0 {
		a.nextIndex = InitialIndex
		return
	}

	a.nextIndex = existingSorted[len(existingSorted)-1] + 1

	tailStart := 0
	if uint32(len(existingSorted)) > a.historyCap {
		tailStart = len(existingSorted) - int(a.historyCap)
	}

	a.recent = append(a.recent, existingSorted[tailStart:]...)
}
