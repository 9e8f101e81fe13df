package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_InitialReadIsNaN(t *testing.T) {
	c := NewClock(nil)
	assert.True(t, math.IsNaN(c.Read()))
	assert.EqualValues(t, -1, c.Serial())
	assert.Equal(t, 1.0, c.Speed())
}

func TestClock_SetAnchorsReadingToPTS(t *testing.T) {
	c := NewClock(nil)
	c.Set(10.0, 3)

	// Elapsed wall time between Set and Read is negligible at speed 1.0.
	assert.InDelta(t, 10.0, c.Read(), 0.01)
	assert.EqualValues(t, 3, c.Serial())
}

func TestClock_PausedReadReturnsFrozenPTS(t *testing.T) {
	c := NewClock(nil)
	c.SetAt(5.0, 1, 0)
	c.SetPaused(true)
	assert.Equal(t, 5.0, c.Read())
	assert.True(t, c.Paused())
}

func TestClock_ReadReturnsNaNWhenQueueSerialDiverges(t *testing.T) {
	currentSerial := int64(0)
	c := NewClock(func() int64 { return currentSerial })
	c.SetAt(1.0, 0, 0)
	assert.False(t, math.IsNaN(c.Read()))

	currentSerial = 1
	assert.True(t, math.IsNaN(c.Read()))
}

func TestClock_SetSpeedPreservesCurrentReading(t *testing.T) {
	c := NewClock(nil)
	c.SetAt(2.0, 0, 0)
	c.SetPaused(true)

	before := c.Read()
	c.SetSpeed(2.0)
	after := c.Read()

	assert.Equal(t, before, after)
	assert.Equal(t, 2.0, c.Speed())
}

func TestClock_SyncToSnapsBeyondThreshold(t *testing.T) {
	a := NewClock(nil)
	b := NewClock(nil)
	a.SetAt(0, 0, 0)
	a.SetPaused(true)
	b.SetAt(NoSyncThreshold+5, 7, 0)
	b.SetPaused(true)

	a.SyncTo(b)
	assert.InDelta(t, NoSyncThreshold+5, a.Read(), 1e-9)
	assert.EqualValues(t, 7, a.Serial())
}

func TestClock_SyncToLeavesSmallDivergenceAlone(t *testing.T) {
	a := NewClock(nil)
	b := NewClock(nil)
	a.SetAt(10.0, 0, 0)
	a.SetPaused(true)
	b.SetAt(10.05, 7, 0)
	b.SetPaused(true)

	a.SyncTo(b)
	assert.InDelta(t, 10.0, a.Read(), 1e-9)
	assert.EqualValues(t, 0, a.Serial())
}

func TestClock_SyncToIgnoresNaNPeer(t *testing.T) {
	a := NewClock(nil)
	b := NewClock(nil)
	a.SetAt(10.0, 0, 0)
	a.SetPaused(true)
	// b never anchored: Read() is NaN.

	a.SyncTo(b)
	assert.InDelta(t, 10.0, a.Read(), 1e-9)
}
