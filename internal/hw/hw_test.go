package hw

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerTicksAtConfiguredRate(t *testing.T) {
	tm := NewTimer(1000) // 1ms period, fast enough for a short test
	defer tm.Stop()

	select {
	case <-tm.Ticks():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timer never ticked")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	tm := NewTimer(100)
	tm.Stop()
	assert.NotPanics(t, func() { tm.Stop() })
}

func TestPICCountsEOIsPerIRQ(t *testing.T) {
	p := NewPIC()
	p.EOI(0)
	p.EOI(0)
	p.EOI(1)
	assert.Equal(t, uint64(2), p.EOICount(0))
	assert.Equal(t, uint64(1), p.EOICount(1))
}

func TestRegistersRoundTrip(t *testing.T) {
	r := NewRegisters()
	r.SetCR2(0xdead)
	r.SetCR3(0xbeef)
	assert.Equal(t, uintptr(0xdead), r.CR2())
	assert.Equal(t, uintptr(0xbeef), r.CR3())
}

func TestConsoleWriteAppendsScrollback(t *testing.T) {
	c := NewConsole()
	c.Write([]byte("line one"))
	c.Write([]byte("line two"))
	lines := c.Lines()
	assert.Equal(t, []string{"line one", "line two"}, lines)
}

func TestPutCellIgnoresOutOfBounds(t *testing.T) {
	c := NewConsole()
	assert.NotPanics(t, func() {
		c.PutCell(-1, 0, 0, 'x')
		c.PutCell(0, 999, 0, 'x')
	})
}
