// Package hw models the hardware boundary the kernel core traps into:
// the programmable interval timer, the interrupt controller's EOI
// protocol, the CR2/CR3 register pair, and the text-mode console used
// for panic diagnostics. Real bring-up of these devices (GDT/IDT, the
// boot trampoline) is an external collaborator and is not reimplemented
// here -- these types expose exactly the interface the kernel core
// needs from them.
package hw

import (
	"sync"
	"time"
)

// Timer is a software stand-in for PIT channel 0 programmed to a fixed
// rate (divisor 1193180/hz). Ticks is read by the driver loop that
// invokes the scheduler's preemption entry on each firing.
type Timer struct {
	hz     int
	ticker *time.Ticker
	ticks  chan struct{}
	stop   chan struct{}
	once   sync.Once
}

// NewTimer starts a timer firing at hz ticks per second.
func NewTimer(hz int) *Timer {
	if hz <= 0 {
		hz = 100
	}
	t := &Timer{
		hz:     hz,
		ticker: time.NewTicker(time.Second / time.Duration(hz)),
		ticks:  make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	go t.pump()
	return t
}

func (t *Timer) pump() {
	for {
		select {
		case <-t.ticker.C:
			select {
			case t.ticks <- struct{}{}:
			default:
				// previous tick not yet consumed; coalesce.
			}
		case <-t.stop:
			return
		}
	}
}

// Ticks is the channel a driver loop selects on to learn a timer IRQ is
// pending.
func (t *Timer) Ticks() <-chan struct{} { return t.ticks }

// Stop halts the timer permanently.
func (t *Timer) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.stop)
	})
}

// PIC is the interrupt controller stand-in: it only needs to track EOI
// acknowledgement counts per IRQ line for diagnostics/tests, mirroring
// the irq_eoi/irq_unmask pairing a real 8259 driver exposes.
type PIC struct {
	mu   sync.Mutex
	eois map[int]uint64
}

// NewPIC returns a ready-to-use PIC stand-in.
func NewPIC() *PIC {
	return &PIC{eois: make(map[int]uint64)}
}

// EOI acknowledges the interrupt controller for the given IRQ line.
func (p *PIC) EOI(irq int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eois[irq]++
}

// EOICount reports how many EOIs have been sent for irq (test/diagnostic
// use only).
func (p *PIC) EOICount(irq int) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eois[irq]
}

// Registers holds the two architectural registers the kernel core reads
// directly: CR2 (faulting address, read by the page-fault handler) and
// CR3 (current address-space root, written on every address-space
// switch and reloaded to flush stale translations).
type Registers struct {
	mu  sync.Mutex
	cr2 uintptr
	cr3 uintptr
}

func NewRegisters() *Registers { return &Registers{} }

func (r *Registers) SetCR2(addr uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cr2 = addr
}

func (r *Registers) CR2() uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cr2
}

// SetCR3 writes a new address-space root. Callers that only need a
// flush call ReloadCR3 instead.
func (r *Registers) SetCR3(root uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cr3 = root
}

func (r *Registers) CR3() uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cr3
}

// ReloadCR3 writes CR3 with its current value, the stand-in for issuing
// an address-space reload (TLB shootdown is unnecessary without SMP).
func (r *Registers) ReloadCR3() {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.cr3 // writing CR3 with its current value flushes non-global TLB entries
}

// Console is the 80x25 [attr:8][char:8] text framebuffer at the
// simulated 0xB8000 base address, used for panic diagnostics.
type Console struct {
	mu    sync.Mutex
	cells [80 * 25]uint16
	log   []string // scrollback of Write()s, for tests/diagnostics
}

func NewConsole() *Console { return &Console{} }

// Write appends a diagnostic line, satisfying io.Writer so it composes
// with klog output multiplexing.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, string(p))
	return len(p), nil
}

// Lines returns the console's scrollback (test/diagnostic use).
func (c *Console) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.log))
	copy(out, c.log)
	return out
}

// PutCell writes a single [attr:char] cell, e.g. for a future text UI;
// unused by the kernel core itself but part of the framebuffer's
// documented interface.
func (c *Console) PutCell(row, col int, attr, ch uint8) {
	if row < 0 || row >= 25 || col < 0 || col >= 80 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cells[row*80+col] = uint16(attr)<<8 | uint16(ch)
}
