// Package metrics tracks kernel-wide operational counters, in the same
// atomic-counter style as go-ublk's Metrics struct.
package metrics

import "sync/atomic"

// Metrics holds lock-free counters updated from trap/syscall context.
type Metrics struct {
	// Scheduler
	ContextSwitches atomic.Uint64
	TimerTicks      atomic.Uint64
	TasksCreated    atomic.Uint64
	TasksExited     atomic.Uint64

	// IPC
	MessagesSent      atomic.Uint64
	MessagesDelivered atomic.Uint64
	MailboxFullDrops  atomic.Uint64
	RecvBlocks        atomic.Uint64

	// VM
	PageFaults    atomic.Uint64
	FramesClaimed atomic.Uint64
	Evictions     atomic.Uint64
}

// New returns a zeroed Metrics instance.
func New() *Metrics {
	return &Metrics{}
}

// Snapshot is a point-in-time copy of every counter, useful for assertions
// in tests and for diagnostic dumps.
type Snapshot struct {
	ContextSwitches   uint64
	TimerTicks        uint64
	TasksCreated      uint64
	TasksExited       uint64
	MessagesSent      uint64
	MessagesDelivered uint64
	MailboxFullDrops  uint64
	RecvBlocks        uint64
	PageFaults        uint64
	FramesClaimed     uint64
	Evictions         uint64
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		ContextSwitches:   m.ContextSwitches.Load(),
		TimerTicks:        m.TimerTicks.Load(),
		TasksCreated:      m.TasksCreated.Load(),
		TasksExited:       m.TasksExited.Load(),
		MessagesSent:      m.MessagesSent.Load(),
		MessagesDelivered: m.MessagesDelivered.Load(),
		MailboxFullDrops:  m.MailboxFullDrops.Load(),
		RecvBlocks:        m.RecvBlocks.Load(),
		PageFaults:        m.PageFaults.Load(),
		FramesClaimed:     m.FramesClaimed.Load(),
		Evictions:         m.Evictions.Load(),
	}
}
