package storagetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_StoreAssignsSequentialIndices(t *testing.T) {
	m := NewModel(4, 4)

	for want := uint32(0); want < 3; want++ {
		require.Equal(t, want, m.Store("x"), "Store should assign sequential indices")
	}
}

func TestModel_LoadLastNNewestFirstCapped(t *testing.T) {
	m := NewModel(10, 2)

	for i := 0; i < 5; i++ {
		m.Store("x")
	}

	got := m.LoadLastN(10)

	assert.Equal(t, []uint32{4, 3}, got, "LoadLastN should be newest-first and capped to batchCap")
}

func TestModel_LoadReportsMissingIndex(t *testing.T) {
	m := NewModel(4, 4)

	_, ok := m.Load(0)
	assert.False(t, ok, "Load should report ok=false for an empty model")
}
