package vm

// Tables is the four-level PML4 -> PDPT -> PD -> PT tree. Each leaf entry
// carries Present, Writable, User, Global, and NX flags plus a physical
// frame number. Intermediate levels are allocated lazily from the frame
// pool on first touch and never freed individually.
//
// There is no real physical RAM backing this prototype, so each
// allocated table page is kept in a Go-side map keyed by its simulated
// physical Frame address rather than being dereferenced through a
// pointer -- the map stands in for "physical memory holding page-table
// pages," mirroring how the frame pool stands in for RAM generally.
type Tables struct {
	pool *FramePool
	mem  map[Frame]*pageTable
	root Frame
}

type pte struct {
	present  bool
	writable bool
	user     bool
	global   bool
	nx       bool
	frame    Frame
}

type pageTable struct {
	entries [512]pte
}

// NewTables allocates a fresh PML4 from pool and returns the empty tree.
func NewTables(pool *FramePool) *Tables {
	root := pool.Claim()
	t := &Tables{pool: pool, mem: make(map[Frame]*pageTable), root: root}
	t.mem[root] = &pageTable{}
	return t
}

func pml4Index(v uintptr) int { return int((v >> 39) & 0x1FF) }
func pdptIndex(v uintptr) int { return int((v >> 30) & 0x1FF) }
func pdIndex(v uintptr) int   { return int((v >> 21) & 0x1FF) }
func ptIndex(v uintptr) int   { return int((v >> 12) & 0x1FF) }

// walk descends PML4->PDPT->PD, allocating missing intermediate tables
// when alloc is true, and returns the leaf PT entry for vaddr. It
// returns nil if alloc is false and any level along the way is absent.
func (t *Tables) walk(vaddr uintptr, alloc bool, user bool) *pte {
	cur := t.root
	for _, idx := range [3]int{pml4Index(vaddr), pdptIndex(vaddr), pdIndex(vaddr)} {
		table := t.mem[cur]
		e := &table.entries[idx]
		if !e.present {
			if !alloc {
				return nil
			}
			nf := t.pool.Claim()
			t.mem[nf] = &pageTable{}
			e.present = true
			e.writable = true
			e.user = user
			e.frame = nf
		}
		cur = e.frame
	}
	return &t.mem[cur].entries[ptIndex(vaddr)]
}

// Map installs a Present leaf mapping from vaddr to paddr, lazily
// allocating any missing intermediate table.
func (t *Tables) Map(vaddr, paddr uintptr, user, writable bool) {
	e := t.walk(vaddr, true, user)
	e.present = true
	e.writable = writable
	e.user = user
	e.global = !user
	e.nx = !user
	e.frame = Frame(paddr)
}

// Unmap clears the leaf entry for vaddr, if present. Intermediate tables
// are left allocated (never freed individually, matching the frame
// pool's no-reclaim policy).
func (t *Tables) Unmap(vaddr uintptr) {
	e := t.walk(vaddr, false, false)
	if e == nil {
		return
	}
	*e = pte{}
}

// Translate returns the physical address vaddr currently maps to, and
// whether a Present mapping exists at all.
func (t *Tables) Translate(vaddr uintptr) (uintptr, bool) {
	e := t.walk(vaddr, false, false)
	if e == nil || !e.present {
		return 0, false
	}
	return uintptr(e.frame), true
}
