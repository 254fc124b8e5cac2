// Package sched implements the strict round-robin scheduler: the bounded
// ready-queue ring buffer, task creation, yield/exit/block/unblock, and
// the timer-driven preemption entry. All mutation happens inside
// withIRQsMasked, the Go stand-in for masking interrupts for the
// duration of an operation, encapsulating shared state behind an
// explicit guarded scope rather than ad-hoc globals.
package sched

import (
	"sync"

	"github.com/justanotherdot/ukernel/internal/klog"
	"github.com/justanotherdot/ukernel/internal/metrics"
	"github.com/justanotherdot/ukernel/internal/task"
)

// noTask marks the absence of a current task.
const noTask = -1

// ringQueue is the bounded FIFO of task-table slot indices used for the
// ready queue: capacity equals the task table's capacity, and ordering
// is strict insertion order, expressed as an explicit head/tail/count
// ring buffer.
type ringQueue struct {
	slots      []int
	head, tail, count int
}

func newRingQueue(capacity int) *ringQueue {
	return &ringQueue{slots: make([]int, capacity)}
}

func (q *ringQueue) Len() int      { return q.count }
func (q *ringQueue) Empty() bool   { return q.count == 0 }
func (q *ringQueue) Full() bool    { return q.count == len(q.slots) }

func (q *ringQueue) Push(slot int) bool {
	if q.Full() {
		return false
	}
	q.slots[q.tail] = slot
	q.tail = (q.tail + 1) % len(q.slots)
	q.count++
	return true
}

func (q *ringQueue) Pop() (int, bool) {
	if q.Empty() {
		return 0, false
	}
	slot := q.slots[q.head]
	q.head = (q.head + 1) % len(q.slots)
	q.count--
	return slot, true
}

// Contains reports whether slot is currently enqueued (used only by
// tests to check the "ready queue contains exactly the Ready tasks, each
// once" invariant).
func (q *ringQueue) Contains(slot int) bool {
	for i := 0; i < q.count; i++ {
		if q.slots[(q.head+i)%len(q.slots)] == slot {
			return true
		}
	}
	return false
}

// SwitchHook is invoked synchronously on every context switch, after
// bookkeeping but before execution resumes in the incoming task; tests
// and internal/kernel use it to observe/drive address-space reloads.
type SwitchHook func(outgoing, incoming *task.TCB)

// Scheduler owns the task table and ready queue and is the sole mutator
// of task State transitions.
type Scheduler struct {
	irqMask sync.Mutex

	table   *task.Table
	ready   *ringQueue
	current int

	onSwitch SwitchHook

	metrics *metrics.Metrics
	log     *klog.Logger
}

// New constructs a Scheduler over a fresh task table of the given
// capacity.
func New(capacity int, m *metrics.Metrics, log *klog.Logger) *Scheduler {
	if log == nil {
		log = klog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Scheduler{
		table:   task.NewTable(capacity),
		ready:   newRingQueue(capacity),
		current: noTask,
		metrics: m,
		log:     log,
	}
}

// SetSwitchHook installs the callback invoked on every dispatch.
func (s *Scheduler) SetSwitchHook(h SwitchHook) {
	s.irqMask.Lock()
	defer s.irqMask.Unlock()
	s.onSwitch = h
}

func (s *Scheduler) withIRQsMasked(f func()) {
	s.irqMask.Lock()
	defer s.irqMask.Unlock()
	f()
}

// Table exposes the underlying task table for packages (internal/ipc,
// internal/kernel) that need to resolve a PID to a TCB; they must only ever
// mutate it while holding the scheduler's own masked scope, which
// internal/trap's dispatch guarantees by routing every syscall through
// Scheduler-owned entry points.
func (s *Scheduler) Table() *task.Table { return s.table }

// Current returns the currently Running TCB, or nil if the CPU is idle.
func (s *Scheduler) Current() *task.TCB {
	s.irqMask.Lock()
	defer s.irqMask.Unlock()
	return s.currentLocked()
}

func (s *Scheduler) currentLocked() *task.TCB {
	if s.current == noTask {
		return nil
	}
	return s.table.Get(s.current)
}

// CreateTask finds a Zombie slot, assigns the next PID, initializes the
// task's machine context so a first dispatch resumes at entry with a
// clean register file and flags = 0x202, and enqueues it Ready.
func (s *Scheduler) CreateTask(name string, entry uintptr, priority int, stackBase, stackSize uintptr) (uint64, error) {
	var pid uint64
	var createErr error
	s.withIRQsMasked(func() {
		ctx := task.Context{IP: entry, SP: stackBase + stackSize, Flags: task.FlagsIF0}
		slot, err := s.table.Create(name, ctx, stackBase, stackSize)
		if err != nil {
			createErr = err
			return
		}
		t := s.table.Get(slot)
		t.Priority = priority
		s.ready.Push(slot)
		pid = t.PID
		s.metrics.TasksCreated.Add(1)
		s.log.Debug("task created", "pid", pid, "name", name, "slot", slot)
	})
	return pid, createErr
}

// dispatchLocked picks the next task to run, applying the scheduler's
// redesign to a single shared primitive used by Yield, Preempt,
// BlockCurrent's post-block dispatch, and Exit. Callers must already
// hold irqMask and must have already updated the outgoing task's State
// (Ready/Blocked/Zombie) and, if Ready, pushed it onto the ready queue,
// before calling this.
func (s *Scheduler) dispatchLocked() {
	next, ok := s.ready.Pop()
	if !ok {
		// Ready queue empty. If the current task is still Running, nothing
		// to do: it continues. If it is not Running (blocked/exited), there
		// is nothing to run: the CPU halts until the next interrupt,
		// modeled here as current going idle.
		if s.current != noTask {
			cur := s.table.Get(s.current)
			if cur.State != task.Running {
				s.current = noTask
			}
		}
		return
	}

	outgoing := s.currentLocked()
	s.current = next
	incoming := s.table.Get(next)
	incoming.State = task.Running

	s.metrics.ContextSwitches.Add(1)

	// Every task goroutine parks on its own wake channel the instant it
	// stops running (after its initial dispatch, after Yield, after
	// blocking in recv) and resumes only once dispatched back into
	// Running here: sending a message never itself context-switches,
	// it only moves a task Blocked->Ready; the goroutine actually
	// resumes later, from this call, exactly when the scheduler picks
	// it.
	select {
	case incoming.Wake() <- struct{}{}:
	default:
	}

	if s.onSwitch != nil {
		s.onSwitch(outgoing, incoming)
	}
}

// Boot performs the kernel's first scheduling decision: with no task yet
// Running, it dequeues the ready queue's head and dispatches it. It is a
// no-op if a task is already Running.
func (s *Scheduler) Boot() {
	s.withIRQsMasked(func() {
		if s.current != noTask {
			return
		}
		s.dispatchLocked()
	})
}

// Yield demotes the current Running task to Ready, enqueues it, and
// dispatches the next ready task.
func (s *Scheduler) Yield() {
	s.withIRQsMasked(func() {
		s.demoteCurrentToReady()
		s.dispatchLocked()
	})
}

// YieldLocked is Yield for callers that already hold the scheduler's
// lock via WithLock (internal/ipc composes scheduling decisions with its
// own mailbox mutations inside a single masked scope).
func (s *Scheduler) YieldLocked() {
	s.demoteCurrentToReady()
	s.dispatchLocked()
}

func (s *Scheduler) demoteCurrentToReady() {
	if s.current == noTask {
		return
	}
	cur := s.table.Get(s.current)
	if cur.State == task.Running {
		cur.State = task.Ready
		s.ready.Push(s.current)
	}
}

// Preempt is the timer IRQ's preemption entry: it is exactly Yield's
// operation on whatever is current, callable from interrupt context.
func (s *Scheduler) Preempt() {
	s.withIRQsMasked(func() {
		s.metrics.TimerTicks.Add(1)
		s.demoteCurrentToReady()
		s.dispatchLocked()
	})
}

// Exit marks the current task Zombie (freeing its slot for reuse) and
// dispatches the next ready task. If none remains, the CPU halts.
func (s *Scheduler) Exit(code int) {
	s.withIRQsMasked(func() {
		if s.current == noTask {
			return
		}
		pid := s.table.Get(s.current).PID
		s.table.Exit(s.current)
		s.metrics.TasksExited.Add(1)
		s.log.Debug("task exited", "pid", pid, "code", code)
		s.dispatchLocked()
	})
}

// BlockCurrent transitions the current Running task to Blocked (without
// re-enqueueing it -- a Blocked task is not in the ready queue) and
// dispatches the next ready task. Callers (internal/ipc) are responsible
// for recording the task in whatever wait set it is blocked on before
// calling this.
func (s *Scheduler) BlockCurrent() {
	s.withIRQsMasked(func() {
		s.blockCurrentLocked()
	})
}

func (s *Scheduler) blockCurrentLocked() {
	if s.current == noTask {
		return
	}
	s.table.Get(s.current).State = task.Blocked
	s.dispatchLocked()
}

// BlockCurrentNoDispatchLocked transitions the current Running task to
// Blocked without dispatching a replacement. internal/ipc's recv path
// uses this: it marks the caller Blocked and records it in the IPC
// blocked list, then yields to the scheduler itself via a separate
// DispatchLocked call so the two steps stay independently testable.
// Callers must hold the lock via WithLock.
func (s *Scheduler) BlockCurrentNoDispatchLocked() {
	if s.current == noTask {
		return
	}
	s.table.Get(s.current).State = task.Blocked
}

// Unblock transitions slot from Blocked to Ready and enqueues it at the
// ready queue's tail. It does not itself dispatch -- the scheduler only
// switches on yield/preempt/exit.
func (s *Scheduler) Unblock(slot int) {
	s.withIRQsMasked(func() {
		s.unblockLocked(slot)
	})
}

func (s *Scheduler) unblockLocked(slot int) {
	t := s.table.Get(slot)
	if t == nil || t.State != task.Blocked {
		return
	}
	t.State = task.Ready
	s.ready.Push(slot)
}

// UnblockLocked is Unblock for callers already holding the lock via
// WithLock.
func (s *Scheduler) UnblockLocked(slot int) {
	s.unblockLocked(slot)
}

// WithLock runs f with the scheduler's interrupt-masked scope held. It
// is exposed so internal/ipc and internal/kernel -- which must mutate shared
// task state as part of a single masked operation -- compose with the
// same critical section rather than taking a second, racing lock.
func (s *Scheduler) WithLock(f func()) {
	s.withIRQsMasked(f)
}

// ReadyLen reports the number of Ready tasks (test/diagnostic use).
func (s *Scheduler) ReadyLen() int {
	s.irqMask.Lock()
	defer s.irqMask.Unlock()
	return s.ready.Len()
}

// ReadyContains reports whether slot is currently in the ready queue
// (test use, for the "ready queue contains exactly the Ready tasks"
// invariant).
func (s *Scheduler) ReadyContains(slot int) bool {
	s.irqMask.Lock()
	defer s.irqMask.Unlock()
	return s.ready.Contains(slot)
}

// CurrentSlotLocked returns the current task's slot index; callers must
// hold the scheduler's lock via WithLock.
func (s *Scheduler) CurrentSlotLocked() int { return s.current }

// DispatchLocked exposes dispatchLocked to internal/ipc's blocking recv
// path, which must demote nothing (the blocked task is already marked
// Blocked and excluded from the ready queue) but does need the next
// ready task, if any, to be chosen. Callers must hold the lock via
// WithLock.
func (s *Scheduler) DispatchLocked() {
	s.dispatchLocked()
}

// Halted reports whether the CPU has nothing to run.
func (s *Scheduler) Halted() bool {
	s.irqMask.Lock()
	defer s.irqMask.Unlock()
	return s.current == noTask
}
