// Package task owns the task control block table: the fixed-size slot
// array of TCBs, PID assignment, and the lifecycle state machine shared
// by the scheduler and IPC. The scheduler and IPC packages reference
// tasks by slot index rather than by pointer, so neither package holds a
// pointer into the other's state across a dispatch.
package task

import (
	"fmt"

	"github.com/justanotherdot/ukernel/internal/kernelerr"
)

// State is one of the four lifecycle states a TCB may occupy.
type State int

const (
	// Zombie is both the terminal state after exit and the "free slot"
	// state before a task has ever occupied it.
	Zombie State = iota
	Ready
	Running
	Blocked
)

func (s State) String() string {
	switch s {
	case Zombie:
		return "zombie"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// MaxNameLen is the longest task name accepted.
const MaxNameLen = 31

// Context is the machine context restored on a context switch: the
// instruction pointer, stack pointer, flags register, and the
// address-space root (page-table base) to load if it differs from the
// outgoing task's.
type Context struct {
	IP    uintptr
	SP    uintptr
	Flags uint64
	CR3   uintptr
}

// FlagsIF0 is the flags value for a freshly created task: interrupts
// enabled, IOPL 0.
const FlagsIF0 uint64 = 0x202

// TCB is one task control block. PID 0 is reserved and never assigned.
type TCB struct {
	PID   uint64
	Name  string
	State State

	// Priority is reserved by the current FIFO round-robin policy.
	Priority int

	Context Context

	StackBase uintptr
	StackSize uintptr

	// wake is signaled unconditionally by the scheduler's dispatch step
	// the moment this task is actually chosen to run again, whether that
	// is its very first dispatch, a resumption after a voluntary yield,
	// or an unblock after a blocking recv -- see internal/ipc and
	// internal/sched for the protocol this implements: sending a message
	// never itself performs a context switch, it only makes the receiver
	// eligible to run again.
	wake chan struct{}
}

// Wake returns the task's wake channel. Exposed for internal/ipc,
// internal/sched, and internal/kernel; other callers should not need it.
func (t *TCB) Wake() chan struct{} { return t.wake }

// Table is the fixed-capacity array of TCBs plus PID issuance. All
// mutation happens with the caller already holding whatever
// interrupts-masked scope owns the table (internal/sched.Scheduler in
// practice); Table itself does no locking, relying entirely on that
// single-flow-of-control discipline once wrapped by that scope.
type Table struct {
	slots   []TCB
	nextPID uint64
}

// NewTable allocates a table with the given slot capacity.
func NewTable(capacity int) *Table {
	return &Table{
		slots:   make([]TCB, capacity),
		nextPID: 1, // PID 0 is reserved/invalid
	}
}

// Capacity returns the table's slot count (MAX_TASKS).
func (t *Table) Capacity() int { return len(t.slots) }

// Get returns the TCB at slot, or nil if out of range.
func (t *Table) Get(slot int) *TCB {
	if slot < 0 || slot >= len(t.slots) {
		return nil
	}
	return &t.slots[slot]
}

// FindByPID linearly scans for a non-Zombie task with the given PID.
// The task table is small enough (a handful of slots) that a linear
// scan is the right trade-off over a secondary index.
func (t *Table) FindByPID(pid uint64) (slot int, ok bool) {
	for i := range t.slots {
		if t.slots[i].State != Zombie && t.slots[i].PID == pid {
			return i, true
		}
	}
	return 0, false
}

// Create finds a free (Zombie) slot, assigns the next PID, and
// initializes a fresh TCB in Ready state with the given machine context.
// It does not touch the ready queue -- the caller (internal/sched) is
// responsible for enqueueing.
func (t *Table) Create(name string, ctx Context, stackBase, stackSize uintptr) (slot int, err error) {
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	for i := range t.slots {
		if t.slots[i].State == Zombie {
			t.slots[i] = TCB{
				PID:       t.nextPID,
				Name:      name,
				State:     Ready,
				Context:   ctx,
				StackBase: stackBase,
				StackSize: stackSize,
				wake:      make(chan struct{}, 1),
			}
			t.nextPID++
			return i, nil
		}
	}
	return 0, kernelerr.New("create_task", kernelerr.CodeNoSlot, fmt.Sprintf("no free slot among %d", len(t.slots)))
}

// Exit transitions slot's task to Zombie, freeing it for reuse. The PID
// itself is never reused even though the slot is.
func (t *Table) Exit(slot int) {
	tcb := t.Get(slot)
	if tcb == nil {
		return
	}
	tcb.State = Zombie
}
