package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justanotherdot/ukernel/internal/kernelerr"
)

func TestCreateAssignsIncrementingPIDs(t *testing.T) {
	tbl := NewTable(4)

	slot1, err := tbl.Create("a", Context{}, 0, 4096)
	require.NoError(t, err)
	slot2, err := tbl.Create("b", Context{}, 0, 4096)
	require.NoError(t, err)

	t1 := tbl.Get(slot1)
	t2 := tbl.Get(slot2)
	assert.Equal(t, uint64(1), t1.PID)
	assert.Equal(t, uint64(2), t2.PID)
	assert.Equal(t, Ready, t1.State)
}

func TestCreateTruncatesLongNames(t *testing.T) {
	tbl := NewTable(1)
	long := ""
	for i := 0; i < 50; i++ {
		long += "x"
	}
	slot, err := tbl.Create(long, Context{}, 0, 4096)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(tbl.Get(slot).Name), MaxNameLen)
}

func TestCreateFailsWhenTableFull(t *testing.T) {
	tbl := NewTable(2)
	_, err := tbl.Create("a", Context{}, 0, 4096)
	require.NoError(t, err)
	_, err = tbl.Create("b", Context{}, 0, 4096)
	require.NoError(t, err)

	_, err = tbl.Create("c", Context{}, 0, 4096)
	require.Error(t, err)
	assert.True(t, kernelerr.Is(err, kernelerr.CodeNoSlot))
}

func TestExitFreesSlotButNotPID(t *testing.T) {
	tbl := NewTable(1)
	slot, err := tbl.Create("a", Context{}, 0, 4096)
	require.NoError(t, err)
	firstPID := tbl.Get(slot).PID

	tbl.Exit(slot)
	assert.Equal(t, Zombie, tbl.Get(slot).State)

	newSlot, err := tbl.Create("b", Context{}, 0, 4096)
	require.NoError(t, err)
	assert.Equal(t, slot, newSlot, "slot should be reused")
	assert.Greater(t, tbl.Get(newSlot).PID, firstPID, "PID must never be reused")
}

func TestFindByPIDSkipsZombies(t *testing.T) {
	tbl := NewTable(2)
	slot, _ := tbl.Create("a", Context{}, 0, 4096)
	pid := tbl.Get(slot).PID

	_, ok := tbl.FindByPID(pid)
	assert.True(t, ok)

	tbl.Exit(slot)
	_, ok = tbl.FindByPID(pid)
	assert.False(t, ok, "an exited task's PID must not resolve")
}

func TestWakeChannelIsBufferedAndNonBlocking(t *testing.T) {
	tbl := NewTable(1)
	slot, _ := tbl.Create("a", Context{}, 0, 4096)
	wake := tbl.Get(slot).Wake()

	select {
	case wake <- struct{}{}:
	default:
		t.Fatal("wake channel should accept one buffered signal without a receiver")
	}
}
