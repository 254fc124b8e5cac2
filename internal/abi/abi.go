// Package abi defines the syscall numbering, trap-frame layout, and wire
// message format that make up the kernel's external contract. Fixed-
// layout structs carry a size assertion, checked in init() when the
// package loads, in the style of go-ublk's internal/uapi structs, so a
// layout change is caught at startup rather than at the hardware
// boundary.
package abi

import "unsafe"

// Syscall numbers dispatched by the trap 0x80 / SYSCALL vector.
const (
	SYS_SEND  = 1
	SYS_RECV  = 2
	SYS_YIELD = 3
	SYS_EXIT  = 4
)

// Interrupt vectors.
const (
	VectorTimer     = 0x20
	VectorPageFault = 0x0E
	VectorSyscall   = 0x80
)

// TrapFrame is the architectural register file saved on entry to any
// trap handler, in a layout compatible with the context-switch contract.
// Field order mirrors the standard x86_64 callee/caller-saved + segment
// + iret frame shape; values are simulated uintptrs rather than real
// register contents.
type TrapFrame struct {
	// Callee-saved
	RBX, RBP, R12, R13, R14, R15 uintptr
	// Caller-saved / argument registers
	RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11 uintptr
	// Trap metadata
	TrapNo, ErrorCode uintptr
	// Hardware-pushed iret frame
	RIP, CS, RFLAGS, RSP, SS uintptr
}

// TFSIZE is the number of uintptr-sized slots in a TrapFrame.
const TFSIZE = int(unsafe.Sizeof(TrapFrame{}) / unsafe.Sizeof(uintptr(0)))

// SyscallArgs extracts the conventional argument registers from a trap
// frame: syscall number in RAX, arg1/arg2/arg3 in RDI/RSI/RDX.
func SyscallArgs(tf *TrapFrame) (num, arg1, arg2, arg3 uintptr) {
	return tf.RAX, tf.RDI, tf.RSI, tf.RDX
}

// SetReturn writes a syscall's result back into the frame's result
// register (RAX), per the ABI: non-negative on success, negative on
// error.
func SetReturn(tf *TrapFrame, ret int64) {
	tf.RAX = uintptr(ret)
}

// MaxMessageSize mirrors config.Default().MaxMessageSize; it is
// duplicated here as an untyped constant only for the wire struct's
// array size, since Go array lengths must be constant.
const MaxMessageSize = 256

// WireMessage is the fixed-size on-the-wire representation of a single
// mailbox message: sender, receiver, length, and payload.
type WireMessage struct {
	Sender  uint64
	Receiver uint64
	Length  uint32
	_       uint32 // padding to keep Payload 8-byte aligned
	Payload [MaxMessageSize]byte
}

// wireMessageSize is asserted at init time rather than via a `var _
// [N]byte = ...` array-literal trick, since MaxMessageSize plus the two
// PIDs and length/padding fields is computed, not a magic literal.
func init() {
	const want = 8 + 8 + 4 + 4 + MaxMessageSize
	if unsafe.Sizeof(WireMessage{}) != want {
		panic("abi: WireMessage layout drifted from its declared size")
	}
}
