package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageAlignRoundsDown(t *testing.T) {
	c := Default()
	assert.Equal(t, c.UserBase, c.PageAlign(c.UserBase+17))
	assert.Equal(t, c.UserBase, c.PageAlign(c.UserBase))
}

func TestInUserRangeBoundaries(t *testing.T) {
	c := Default()
	assert.True(t, c.InUserRange(c.UserBase))
	assert.True(t, c.InUserRange(c.UserStackTop-1))
	assert.False(t, c.InUserRange(c.UserStackTop))
	assert.False(t, c.InUserRange(c.UserBase-1))
	assert.False(t, c.InUserRange(c.KernelBase))
}
