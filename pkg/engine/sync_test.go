package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestPlayerState() *PlayerState {
	return &PlayerState{
		syncType:         SyncExternalClock,
		videoClock:       NewClock(nil),
		audioClock:       NewClock(nil),
		externalClock:    NewClock(nil),
		maxFrameDuration: 10.0,
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, clamp(0.5, 1.0, 2.0))
	assert.Equal(t, 2.0, clamp(2.5, 1.0, 2.0))
	assert.Equal(t, 1.5, clamp(1.5, 1.0, 2.0))
}

func TestFrameDuration_DifferentSerialFallsBackToADuration(t *testing.T) {
	p := newTestPlayerState()
	a := &Frame{Serial: 1, PTS: 1.0, Duration: 0.04}
	b := &Frame{Serial: 2, PTS: 1.5, Duration: 0.04}
	assert.Equal(t, a.Duration, p.frameDuration(a, b))
}

func TestFrameDuration_NormalGapUsesPTSDelta(t *testing.T) {
	p := newTestPlayerState()
	a := &Frame{Serial: 1, PTS: 1.0, Duration: 0.04}
	b := &Frame{Serial: 1, PTS: 1.04, Duration: 0.04}
	assert.InDelta(t, 0.04, p.frameDuration(a, b), 1e-9)
}

func TestFrameDuration_NegativeOrOversizedGapFallsBackToADuration(t *testing.T) {
	p := newTestPlayerState()
	a := &Frame{Serial: 1, PTS: 1.0, Duration: 0.04}

	negative := &Frame{Serial: 1, PTS: 0.5, Duration: 0.04}
	assert.Equal(t, a.Duration, p.frameDuration(a, negative))

	tooLarge := &Frame{Serial: 1, PTS: 100.0, Duration: 0.04}
	assert.Equal(t, a.Duration, p.frameDuration(a, tooLarge))

	nanPTS := &Frame{Serial: 1, PTS: math.NaN(), Duration: 0.04}
	assert.Equal(t, a.Duration, p.frameDuration(a, nanPTS))
}

func TestComputeVideoDelay_InSyncReturnsLastDuration(t *testing.T) {
	p := newTestPlayerState()
	p.videoClock.Set(1.0, 0)
	p.externalClock.Set(1.0, 0)
	assert.InDelta(t, 0.04, p.computeVideoDelay(0.04), 1e-9)
}

func TestComputeVideoDelay_BehindMasterSpeedsUp(t *testing.T) {
	p := newTestPlayerState()
	p.videoClock.Set(0.5, 0) // video is 0.5s behind the external clock
	p.externalClock.Set(1.0, 0)
	delay := p.computeVideoDelay(0.04)
	assert.Less(t, delay, 0.04)
	assert.GreaterOrEqual(t, delay, 0.0)
}

func TestComputeVideoDelay_AheadOfMasterSlowsDownOrDuplicates(t *testing.T) {
	p := newTestPlayerState()
	p.videoClock.Set(2.0, 0) // video is ahead of the external clock
	p.externalClock.Set(1.0, 0)

	shortFrame := p.computeVideoDelay(0.04)
	assert.Greater(t, shortFrame, 0.04)

	longFrame := p.computeVideoDelay(0.2)
	assert.Greater(t, longFrame, 0.2)
}

func TestComputeVideoDelay_VideoMasterIsUnaffectedByDrift(t *testing.T) {
	p := newTestPlayerState()
	p.video = &StreamContext{} // masterSyncType only checks p.video != nil here
	p.syncType = SyncVideoMaster
	p.videoClock.Set(0, 0)
	p.externalClock.Set(100.0, 0)
	assert.Equal(t, 0.04, p.computeVideoDelay(0.04))
}
