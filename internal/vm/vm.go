// Package vm implements demand-paged virtual memory: the frame pool, the
// four-level page-table tree, and the VM manager that resolves page
// faults by allocating a fresh frame or, once the tracked working set is
// full, evicting the least-recently-used page first.
package vm

import (
	"fmt"
	"sync"

	"github.com/justanotherdot/ukernel/internal/config"
	"github.com/justanotherdot/ukernel/internal/hw"
	"github.com/justanotherdot/ukernel/internal/kernelerr"
	"github.com/justanotherdot/ukernel/internal/metrics"
)

// Descriptor is one live user-page mapping tracked for LRU purposes:
// virtual address, physical address, Dirty/Accessed bits, and an LRU
// ordinal.
type Descriptor struct {
	VAddr      uintptr
	PAddr      uintptr
	Dirty      bool
	Accessed   bool
	LastAccess uint64
}

// FatalFault is returned by HandlePageFault when the fault cannot be
// resolved by allocation or eviction: an access outside the user range,
// or an allocate-after-evict that still fails. The kernel's panic path
// (internal/kernel) treats this as unrecoverable: a second failure right
// after an eviction means the working set genuinely cannot shrink.
type FatalFault struct {
	Addr   uintptr
	Reason string
}

func (f *FatalFault) Error() string {
	return fmt.Sprintf("fatal page fault at %#x: %s", f.Addr, f.Reason)
}

// Manager owns the frame pool, the page-table tree for one address
// space, and the descriptor set of currently-mapped user pages.
type Manager struct {
	mu   sync.Mutex
	cfg  *config.Config
	pool *FramePool
	tbl  *Tables
	regs *hw.Registers

	// descriptors is dense: order carries no meaning, and eviction
	// removes an element by swapping in the last one, matching the
	// frame pool's own no-reclaim, no-compaction discipline.
	descriptors []Descriptor
	ordinal     uint64

	metrics *metrics.Metrics
}

// New constructs a Manager backed by a fresh frame pool and empty page
// table tree, sharing regs with the rest of the kernel so allocation and
// eviction can reload CR3 the way a real TLB flush would.
func New(cfg *config.Config, regs *hw.Registers, m *metrics.Metrics) *Manager {
	pool := NewFramePool(cfg.KernelBase, cfg.PageSize)
	return &Manager{
		cfg:         cfg,
		pool:        pool,
		tbl:         NewTables(pool),
		regs:        regs,
		descriptors: make([]Descriptor, 0, cfg.MaxPhysicalPages),
		metrics:     m,
	}
}

func (m *Manager) nextOrdinal() uint64 {
	m.ordinal++
	return m.ordinal
}

func (m *Manager) findDescriptor(vaddr uintptr) int {
	for i := range m.descriptors {
		if m.descriptors[i].VAddr == vaddr {
			return i
		}
	}
	return -1
}

// allocateLocked claims a fresh frame for page, maps it Present+User+
// Writable, and records a descriptor. Returns kernelerr.ErrExhausted if
// the descriptor set is already at MaxPhysicalPages.
func (m *Manager) allocateLocked(page uintptr) error {
	if len(m.descriptors) >= cap(m.descriptors) {
		return kernelerr.New("vm_allocate", kernelerr.CodeExhausted, "descriptor set full")
	}
	frame := m.pool.Claim()
	m.tbl.Map(page, uintptr(frame), true, true)
	m.regs.ReloadCR3()
	m.descriptors = append(m.descriptors, Descriptor{
		VAddr:      page,
		PAddr:      uintptr(frame),
		Accessed:   true,
		LastAccess: m.nextOrdinal(),
	})
	if m.metrics != nil {
		m.metrics.FramesClaimed.Add(1)
	}
	return nil
}

// Allocate is the exported, locking form of allocateLocked, used by
// tests and by callers outside the fault path that want to pre-fault a
// page (e.g. boot-time mappings).
func (m *Manager) Allocate(vaddr uintptr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocateLocked(m.cfg.PageAlign(vaddr))
}

// evictOneLocked unmaps the descriptor with the smallest LastAccess
// ordinal -- the least-recently-used page -- and drops it from the
// descriptor set. The underlying physical frame is not reclaimed: it
// simply becomes unreachable, matching the frame pool's documented
// leak-on-evict policy.
func (m *Manager) evictOneLocked() error {
	if len(m.descriptors) == 0 {
		return kernelerr.New("vm_evict", kernelerr.CodeExhausted, "nothing to evict")
	}
	victim := 0
	for i := range m.descriptors {
		if m.descriptors[i].LastAccess < m.descriptors[victim].LastAccess {
			victim = i
		}
	}
	d := m.descriptors[victim]
	m.tbl.Unmap(d.VAddr)
	m.regs.ReloadCR3()

	last := len(m.descriptors) - 1
	m.descriptors[victim] = m.descriptors[last]
	m.descriptors = m.descriptors[:last]

	if m.metrics != nil {
		m.metrics.Evictions.Add(1)
	}
	return nil
}

// EvictOne is the exported, locking form of evictOneLocked.
func (m *Manager) EvictOne() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictOneLocked()
}

// HandlePageFault resolves a fault at addr: a hit refreshes the
// descriptor's Accessed bit and LRU ordinal; a miss allocates a new
// frame, evicting the least-recently-used page first if the descriptor
// set is full. A fault outside the user region, or an allocation that
// still fails immediately after an eviction, is reported as a
// *FatalFault.
func (m *Manager) HandlePageFault(addr uintptr) error {
	page := m.cfg.PageAlign(addr)
	if !m.cfg.InUserRange(page) {
		return &FatalFault{Addr: addr, Reason: "access outside user region"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.PageFaults.Add(1)
	}

	if idx := m.findDescriptor(page); idx >= 0 {
		m.descriptors[idx].Accessed = true
		m.descriptors[idx].LastAccess = m.nextOrdinal()
		return nil
	}

	if err := m.allocateLocked(page); err != nil {
		if evictErr := m.evictOneLocked(); evictErr != nil {
			return &FatalFault{Addr: addr, Reason: "descriptor set full and nothing to evict"}
		}
		if err := m.allocateLocked(page); err != nil {
			return &FatalFault{Addr: addr, Reason: "allocate failed immediately after eviction"}
		}
	}
	return nil
}

// Translate reports the physical address a virtual address currently
// maps to, for tests and for a future MMIO/debug path.
func (m *Manager) Translate(vaddr uintptr) (uintptr, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tbl.Translate(vaddr)
}

// Touch marks page as accessed without faulting, for callers that
// already know a translation exists (e.g. a syscall copying into a
// buffer it has already faulted in).
func (m *Manager) Touch(vaddr uintptr) {
	page := m.cfg.PageAlign(vaddr)
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx := m.findDescriptor(page); idx >= 0 {
		m.descriptors[idx].Accessed = true
		m.descriptors[idx].LastAccess = m.nextOrdinal()
	}
}

// ReadByte and WriteByte exercise the simulated physical memory backing
// a mapped page, for tests that want to observe zero-fill and
// write-through end to end rather than just checking Present bits.
func (m *Manager) ReadByte(vaddr uintptr) (byte, bool) {
	m.mu.Lock()
	paddr, ok := m.tbl.Translate(vaddr)
	m.mu.Unlock()
	if !ok {
		return 0, false
	}
	var buf [1]byte
	off := int(vaddr % m.cfg.PageSize)
	if n := m.pool.Read(Frame(paddr), off, buf[:]); n == 0 {
		return 0, false
	}
	return buf[0], true
}

func (m *Manager) WriteByte(vaddr uintptr, b byte) bool {
	m.mu.Lock()
	paddr, ok := m.tbl.Translate(vaddr)
	if ok {
		if idx := m.findDescriptor(m.cfg.PageAlign(vaddr)); idx >= 0 {
			m.descriptors[idx].Dirty = true
		}
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	off := int(vaddr % m.cfg.PageSize)
	return m.pool.Write(Frame(paddr), off, []byte{b}) == 1
}

// DescriptorCount reports the number of currently-live descriptors
// (test/diagnostic use, for the "descriptor set never exceeds
// MaxPhysicalPages" invariant).
func (m *Manager) DescriptorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.descriptors)
}
