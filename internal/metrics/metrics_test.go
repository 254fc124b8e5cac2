package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotReflectsCounters(t *testing.T) {
	m := New()
	m.ContextSwitches.Add(3)
	m.PageFaults.Add(1)
	m.Evictions.Add(2)

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.ContextSwitches)
	assert.Equal(t, uint64(1), snap.PageFaults)
	assert.Equal(t, uint64(2), snap.Evictions)
	assert.Equal(t, uint64(0), snap.TasksCreated)
}

func TestNewIsZeroed(t *testing.T) {
	snap := New().Snapshot()
	assert.Equal(t, Snapshot{}, snap)
}
