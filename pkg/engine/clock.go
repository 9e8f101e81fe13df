package engine

import (
	"math"
	"sync"

	"mediaengine/pkg/codecfacade"
)

// NoSyncThreshold is the maximum clock divergence sync_to tolerates before
// snapping rather than drift-correcting (§4.3).
const NoSyncThreshold = 10.0

func monotonicSeconds() float64 {
	return float64(codecfacade.Monotonic()) / 1e6
}

// Clock is a drift-corrected wall-clock mapping from presentation
// timestamps to real time (§3, §4.3).
type Clock struct {
	mu             sync.Mutex
	pts            float64
	ptsDrift       float64
	lastUpdated    float64
	speed          float64
	serial         int64
	paused         bool
	queueSerialRef func() int64
}

// NewClock creates a clock anchored to nothing (pts=NaN, serial=-1), tied to
// the PacketQueue whose serial invalidates stale reads.
func NewClock(queueSerialRef func() int64) *Clock {
	return &Clock{
		pts:            math.NaN(),
		ptsDrift:       math.NaN(),
		speed:          1.0,
		serial:         -1,
		queueSerialRef: queueSerialRef,
	}
}

// Read returns the clock's current presentation time in seconds, or NaN if
// the clock has no anchor or if the referenced queue's serial has advanced
// past the clock's own serial.
func (c *Clock) Read() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked()
}

func (c *Clock) readLocked() float64 {
	if c.queueSerialRef != nil && c.queueSerialRef() != c.serial {
		return math.NaN()
	}
	if c.paused {
		return c.pts
	}
	now := monotonicSeconds()
	return c.ptsDrift + now - (now-c.lastUpdated)*(1-c.speed)
}

// SetAt records a new anchor at the given wall-clock time.
func (c *Clock) SetAt(pts float64, serial int64, at float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setAtLocked(pts, serial, at)
}

func (c *Clock) setAtLocked(pts float64, serial int64, at float64) {
	c.pts = pts
	c.lastUpdated = at
	c.ptsDrift = pts - at
	c.serial = serial
}

// Set anchors the clock at the current monotonic time.
func (c *Clock) Set(pts float64, serial int64) {
	c.SetAt(pts, serial, monotonicSeconds())
}

// SetSpeed changes playback speed, reading the current time first so the
// drift anchor is preserved across the change (§4.3).
func (c *Clock) SetSpeed(speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pts := c.readLocked()
	serial := c.serial
	now := monotonicSeconds()
	c.speed = speed
	c.setAtLocked(pts, serial, now)
}

// Speed returns the current speed multiplier.
func (c *Clock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// SetPaused toggles the paused flag without moving pts.
func (c *Clock) SetPaused(paused bool) {
	c.mu.Lock()
	c.paused = paused
	c.mu.Unlock()
}

// Paused reports the current paused flag.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Serial returns the clock's anchor serial.
func (c *Clock) Serial() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serial
}

// SyncTo snaps this clock to other when they have diverged beyond
// NoSyncThreshold, or when this clock has no valid reading (§4.3).
func (c *Clock) SyncTo(other *Clock) {
	self := c.Read()
	peer := other.Read()
	if math.IsNaN(peer) {
		return
	}
	if math.IsNaN(self) || math.Abs(self-peer) > NoSyncThreshold {
		c.Set(peer, other.Serial())
	}
}
