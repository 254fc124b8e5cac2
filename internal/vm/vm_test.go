package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justanotherdot/ukernel/internal/config"
	"github.com/justanotherdot/ukernel/internal/hw"
	"github.com/justanotherdot/ukernel/internal/metrics"
)

func smallConfig(maxPages int) *config.Config {
	c := config.Default()
	c.MaxPhysicalPages = maxPages
	return c
}

func TestPageTableMapUnmapTranslateRoundTrip(t *testing.T) {
	pool := NewFramePool(0x100000, 4096)
	tbl := NewTables(pool)

	tbl.Map(0x400000, 0x200000, true, true)
	paddr, ok := tbl.Translate(0x400000)
	require.True(t, ok)
	assert.Equal(t, uintptr(0x200000), paddr)

	tbl.Unmap(0x400000)
	_, ok = tbl.Translate(0x400000)
	assert.False(t, ok)
}

func TestTranslateUnmappedAddressFails(t *testing.T) {
	pool := NewFramePool(0x100000, 4096)
	tbl := NewTables(pool)
	_, ok := tbl.Translate(0x401000)
	assert.False(t, ok)
}

func TestHandlePageFaultOnFirstTouchAllocates(t *testing.T) {
	cfg := smallConfig(4)
	m := New(cfg, hw.NewRegisters(), metrics.New())

	err := m.HandlePageFault(cfg.UserBase)
	require.NoError(t, err)
	assert.Equal(t, 1, m.DescriptorCount())

	_, ok := m.Translate(cfg.PageAlign(cfg.UserBase))
	assert.True(t, ok)
}

func TestHandlePageFaultOutsideUserRangeIsFatal(t *testing.T) {
	cfg := smallConfig(4)
	m := New(cfg, hw.NewRegisters(), metrics.New())

	err := m.HandlePageFault(cfg.KernelBase)
	require.Error(t, err)
	var fatal *FatalFault
	assert.ErrorAs(t, err, &fatal)
}

func TestHandlePageFaultOnAlreadyMappedPageRefreshesLRU(t *testing.T) {
	cfg := smallConfig(4)
	m := New(cfg, hw.NewRegisters(), metrics.New())
	page := cfg.PageAlign(cfg.UserBase)

	require.NoError(t, m.HandlePageFault(page))
	firstOrdinal := m.descriptors[0].LastAccess

	require.NoError(t, m.HandlePageFault(page))
	assert.Equal(t, 1, m.DescriptorCount(), "re-touching a mapped page must not allocate a second frame")
	assert.Greater(t, m.descriptors[0].LastAccess, firstOrdinal)
}

func TestEvictionPicksLeastRecentlyUsed(t *testing.T) {
	cfg := smallConfig(2)
	m := New(cfg, hw.NewRegisters(), metrics.New())

	pageA := cfg.PageAlign(cfg.UserBase)
	pageB := pageA + cfg.PageSize
	pageC := pageB + cfg.PageSize

	require.NoError(t, m.HandlePageFault(pageA))
	require.NoError(t, m.HandlePageFault(pageB))
	// Touch A again so B becomes the least recently used of the two.
	require.NoError(t, m.HandlePageFault(pageA))

	// A third distinct page forces an eviction since capacity is 2.
	require.NoError(t, m.HandlePageFault(pageC))

	assert.Equal(t, 2, m.DescriptorCount())
	_, aMapped := m.Translate(pageA)
	_, bMapped := m.Translate(pageB)
	_, cMapped := m.Translate(pageC)
	assert.True(t, aMapped, "recently touched page must survive eviction")
	assert.False(t, bMapped, "least recently used page must be evicted")
	assert.True(t, cMapped)
}

func TestEvictOneOnEmptyDescriptorSetErrors(t *testing.T) {
	cfg := smallConfig(4)
	m := New(cfg, hw.NewRegisters(), metrics.New())
	err := m.EvictOne()
	require.Error(t, err)
}

func TestReadWriteByteRoundTripAndZeroFill(t *testing.T) {
	cfg := smallConfig(4)
	m := New(cfg, hw.NewRegisters(), metrics.New())
	page := cfg.PageAlign(cfg.UserBase)

	require.NoError(t, m.HandlePageFault(page))

	b, ok := m.ReadByte(page)
	require.True(t, ok)
	assert.Equal(t, byte(0), b, "a freshly allocated frame must be zero-filled")

	require.True(t, m.WriteByte(page, 0x42))
	b, ok = m.ReadByte(page)
	require.True(t, ok)
	assert.Equal(t, byte(0x42), b)
}

func TestMetricsCountFaultsAndEvictions(t *testing.T) {
	cfg := smallConfig(1)
	met := metrics.New()
	m := New(cfg, hw.NewRegisters(), met)

	pageA := cfg.PageAlign(cfg.UserBase)
	pageB := pageA + cfg.PageSize

	require.NoError(t, m.HandlePageFault(pageA))
	require.NoError(t, m.HandlePageFault(pageB))

	snap := met.Snapshot()
	assert.Equal(t, uint64(2), snap.PageFaults)
	assert.Equal(t, uint64(1), snap.Evictions)
}
