// Package trap routes incoming traps -- syscalls from userspace and
// hardware interrupt vectors -- to the scheduler, IPC, and VM manager.
// It is the only place that reads/writes a TrapFrame directly; every
// other package works in terms of its own domain types.
package trap

import (
	"github.com/justanotherdot/ukernel/internal/abi"
	"github.com/justanotherdot/ukernel/internal/hw"
	"github.com/justanotherdot/ukernel/internal/ipc"
	"github.com/justanotherdot/ukernel/internal/kernelerr"
	"github.com/justanotherdot/ukernel/internal/klog"
	"github.com/justanotherdot/ukernel/internal/metrics"
	"github.com/justanotherdot/ukernel/internal/sched"
	"github.com/justanotherdot/ukernel/internal/vm"
)

// Dispatcher owns the wiring between trap vectors/syscall numbers and
// the subsystems that actually handle them.
type Dispatcher struct {
	sched   *sched.Scheduler
	ipc     *ipc.Manager
	vm      *vm.Manager
	regs    *hw.Registers
	pic     *hw.PIC
	metrics *metrics.Metrics
	log     *klog.Logger

	// onFatal is invoked (if set) when a trap cannot be resolved, e.g. a
	// FatalFault from the VM manager or an unknown syscall number.
	onFatal func(reason string, tf *abi.TrapFrame)
}

// New constructs a Dispatcher over already-constructed subsystems.
func New(s *sched.Scheduler, i *ipc.Manager, v *vm.Manager, regs *hw.Registers, pic *hw.PIC, m *metrics.Metrics, log *klog.Logger) *Dispatcher {
	if log == nil {
		log = klog.Default()
	}
	return &Dispatcher{sched: s, ipc: i, vm: v, regs: regs, pic: pic, metrics: m, log: log}
}

// OnFatal installs the callback invoked when a trap is unrecoverable.
func (d *Dispatcher) OnFatal(f func(reason string, tf *abi.TrapFrame)) {
	d.onFatal = f
}

// HandleSyscall decodes num/arg1/arg2/arg3 out of tf (per abi.SyscallArgs'
// RAX/RDI/RSI/RDX convention), performs the requested operation, and
// writes the return value back into tf's RAX, mapping any error to its
// fixed negative errno.
func (d *Dispatcher) HandleSyscall(tf *abi.TrapFrame, userBuf []byte) {
	num, arg1, arg2, _ := abi.SyscallArgs(tf)

	switch num {
	case abi.SYS_SEND:
		dstPID := uint64(arg1)
		length := int(arg2)
		n, err := d.ipc.Send(dstPID, userBuf, length)
		if err != nil {
			abi.SetReturn(tf, kernelerr.Errno(err))
			return
		}
		abi.SetReturn(tf, int64(n))

	case abi.SYS_RECV:
		n, err := d.ipc.Recv(userBuf)
		if err != nil {
			abi.SetReturn(tf, kernelerr.Errno(err))
			return
		}
		abi.SetReturn(tf, int64(n))

	case abi.SYS_YIELD:
		d.sched.Yield()
		abi.SetReturn(tf, 0)

	case abi.SYS_EXIT:
		d.sched.Exit(int(arg1))
		abi.SetReturn(tf, 0)

	default:
		d.log.Warn("unknown syscall", "num", num)
		abi.SetReturn(tf, -1)
		if d.onFatal != nil {
			d.onFatal("unknown syscall number", tf)
		}
	}
}

// HandleTimerIRQ is the vector-0x20 entry: send EOI to the interrupt
// controller, then invoke the scheduler's preemption entry on whatever
// is currently running.
func (d *Dispatcher) HandleTimerIRQ() {
	d.pic.EOI(0)
	d.sched.Preempt()
}

// HandlePageFaultIRQ is the vector-0x0E entry: read the faulting address
// out of CR2 and hand it to the VM manager. A *vm.FatalFault is reported
// via onFatal rather than returned, since a page fault has no caller to
// return to in the usual sense.
func (d *Dispatcher) HandlePageFaultIRQ(tf *abi.TrapFrame) {
	addr := d.regs.CR2()
	if err := d.vm.HandlePageFault(addr); err != nil {
		d.log.Error("unresolved page fault", "addr", addr, "err", err)
		if d.onFatal != nil {
			d.onFatal(err.Error(), tf)
		}
	}
}
