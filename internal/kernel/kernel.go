// Package kernel wires the scheduler, IPC manager, VM manager, hardware
// stand-ins, and trap dispatcher into one bootable system, and owns the
// task-body goroutine model that gives each TCB an actual Go call stack
// to suspend and resume.
package kernel

import (
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/justanotherdot/ukernel/internal/abi"
	"github.com/justanotherdot/ukernel/internal/config"
	"github.com/justanotherdot/ukernel/internal/hw"
	"github.com/justanotherdot/ukernel/internal/ipc"
	"github.com/justanotherdot/ukernel/internal/klog"
	"github.com/justanotherdot/ukernel/internal/metrics"
	"github.com/justanotherdot/ukernel/internal/sched"
	"github.com/justanotherdot/ukernel/internal/task"
	"github.com/justanotherdot/ukernel/internal/trap"
	"github.com/justanotherdot/ukernel/internal/vm"
)

// TaskBody is the entry point of a user task, expressed as ordinary Go
// code that calls back into Syscalls to send/recv/yield. Each TaskBody
// runs on its own goroutine, parked on its TCB's wake channel whenever it
// is not the scheduler's chosen task -- the Go expression of a real task
// being not currently on the CPU.
type TaskBody func(sys *Syscalls)

// Syscalls is the only handle a TaskBody gets: it can send, recv, yield,
// or exit, and nothing else, matching the syscall-only boundary between
// user code and the kernel core.
type Syscalls struct {
	k    *Kernel
	pid  uint64
	slot int
}

func (s *Syscalls) Send(dstPID uint64, payload []byte) (int, error) {
	return s.k.ipc.Send(dstPID, payload, len(payload))
}

func (s *Syscalls) Recv(buf []byte) (int, error) {
	return s.k.ipc.Recv(buf)
}

// Yield parks this goroutine on its own wake channel after telling the
// scheduler to demote it back to Ready -- the goroutine only returns from
// Yield once dispatchLocked signals it again.
func (s *Syscalls) Yield() {
	wake := s.wakeChan()
	s.k.sched.Yield()
	<-wake
}

func (s *Syscalls) Exit(code int) {
	s.k.sched.Exit(code)
	s.k.log.Debug("task goroutine exiting", "pid", s.pid, "code", code)
}

func (s *Syscalls) wakeChan() chan struct{} {
	var ch chan struct{}
	s.k.sched.WithLock(func() {
		t := s.k.sched.Table().Get(s.slot)
		if t != nil {
			ch = t.Wake()
		}
	})
	return ch
}

// Kernel is the fully-wired system: every subsystem plus the trap
// dispatcher that routes into them.
type Kernel struct {
	cfg     *config.Config
	sched   *sched.Scheduler
	ipc     *ipc.Manager
	vm      *vm.Manager
	timer   *hw.Timer
	pic     *hw.PIC
	regs    *hw.Registers
	console *hw.Console
	trap    *trap.Dispatcher
	metrics *metrics.Metrics
	log     *klog.Logger

	// tasks tracks every spawned TaskBody goroutine so Wait can block
	// until the whole workload has actually run to completion, instead of
	// the caller having to poll scheduler state from outside.
	tasks errgroup.Group

	halted bool
}

// New wires a complete kernel from a config, constructing every
// subsystem and installing the scheduler's switch hook so every context
// switch reloads CR3 when the incoming task's address space differs
// from the current one.
func New(cfg *config.Config) *Kernel {
	if cfg == nil {
		cfg = config.Default()
	}
	m := metrics.New()
	log := klog.New(os.Stderr)

	regs := hw.NewRegisters()
	k := &Kernel{
		cfg:     cfg,
		sched:   sched.New(cfg.MaxTasks, m, log),
		timer:   hw.NewTimer(cfg.TimerHz),
		pic:     hw.NewPIC(),
		regs:    regs,
		console: hw.NewConsole(),
		metrics: m,
		log:     log,
	}
	k.vm = vm.New(cfg, regs, m)
	k.ipc = ipc.New(k.sched, cfg.MaxIPCMessages, m)
	k.trap = trap.New(k.sched, k.ipc, k.vm, regs, k.pic, m, log)
	k.trap.OnFatal(k.Panic)

	k.sched.SetSwitchHook(func(outgoing, incoming *task.TCB) {
		if outgoing != nil && outgoing.Context.CR3 == incoming.Context.CR3 {
			return
		}
		regs.SetCR3(incoming.Context.CR3)
	})

	return k
}

// Metrics exposes the shared metrics instance for tests and diagnostics.
func (k *Kernel) Metrics() *metrics.Metrics { return k.metrics }

// Scheduler, IPC, VM expose the underlying subsystems for tests that want
// to drive or assert on them directly rather than only through TaskBody
// goroutines.
func (k *Kernel) Scheduler() *sched.Scheduler { return k.sched }
func (k *Kernel) IPC() *ipc.Manager           { return k.ipc }
func (k *Kernel) VM() *vm.Manager             { return k.vm }
func (k *Kernel) Console() *hw.Console        { return k.console }

// Spawn creates a task-table entry for body and launches its goroutine,
// which immediately parks on the new TCB's wake channel until the
// scheduler actually dispatches it -- mirroring a freshly created task
// sitting Ready until its first turn on the CPU.
func (k *Kernel) Spawn(name string, body TaskBody, priority int) (uint64, error) {
	stackSize := k.cfg.UserStackSize
	pid, err := k.sched.CreateTask(name, 0, priority, 0, stackSize)
	if err != nil {
		return 0, err
	}

	var wake chan struct{}
	var slot int
	k.sched.WithLock(func() {
		slot, _ = k.sched.Table().FindByPID(pid)
		wake = k.sched.Table().Get(slot).Wake()
	})

	k.tasks.Go(func() error {
		<-wake
		body(&Syscalls{k: k, pid: pid, slot: slot})
		return nil
	})

	return pid, nil
}

// Wait blocks until every spawned task goroutine has returned, the
// go-idiomatic stand-in for "the workload has run to completion" -- a
// real kernel has no such call since it never returns, but a host
// process embedding this one needs a way to know the simulated
// workload is done.
func (k *Kernel) Wait() error {
	return k.tasks.Wait()
}

// Boot performs the scheduler's first dispatch, waking whichever spawned
// task's goroutine is chosen to run first.
func (k *Kernel) Boot() {
	k.sched.Boot()
}

// RunTimerOnce drains a single pending timer tick, if any, and invokes
// the timer IRQ path -- used by callers (cmd/ukernel's tick loop) that
// want to control when preemption runs rather than racing the real
// ticker.
func (k *Kernel) RunTimerOnce() bool {
	select {
	case <-k.timer.Ticks():
		k.trap.HandleTimerIRQ()
		return true
	default:
		return false
	}
}

// HandlePageFault drives the page-fault IRQ path directly, for callers
// (tests, or a future user-mode memory-access trap) that have already
// recorded the faulting address in Registers.
func (k *Kernel) HandlePageFault(tf *abi.TrapFrame) {
	k.trap.HandlePageFaultIRQ(tf)
}

// Shutdown stops the background timer goroutine.
func (k *Kernel) Shutdown() {
	k.timer.Stop()
}

// Panic is the kernel's halt path: it logs the reason, writes a
// diagnostic line to the console, marks the kernel halted, and stops the
// timer so no further preemption ticks arrive. It does not call os.Exit
// and does not stop the scheduler: task goroutines that are still
// running can keep yielding, sending and exiting, and the caller decides
// how to unwind.
func (k *Kernel) Panic(reason string, tf *abi.TrapFrame) {
	k.halted = true
	k.log.Panic("kernel panic", "reason", reason)
	fmt.Fprintf(k.console, "PANIC: %s\n", reason)
	k.timer.Stop()
}

// Halted reports whether Panic has fired.
func (k *Kernel) Halted() bool { return k.halted }
