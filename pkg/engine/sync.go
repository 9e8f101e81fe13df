package engine

import "math"

// AV sync thresholds from §4.6/§4.7, named after the source's constants.
const (
	avSyncThresholdMin        = 0.04
	avSyncThresholdMax        = 0.1
	avSyncFramedupThreshold   = 0.1
	externalClockMinFrames    = 2
	externalClockMaxFrames    = 10
	externalClockSpeedMin     = 0.900
	externalClockSpeedMax     = 1.010
	externalClockSpeedStep    = 0.001
)

// frameDuration computes b.pts - a.pts when the two frames share a serial
// and the gap is sane, else falls back to a's own duration (§4.6 step 7).
func (p *PlayerState) frameDuration(a, b *Frame) float64 {
	if a.Serial != b.Serial {
		return a.Duration
	}
	d := b.PTS - a.PTS
	if math.IsNaN(d) || d <= 0 || d > p.maxFrameDuration {
		return a.Duration
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// computeVideoDelay implements §4.6 step 8.
func (p *PlayerState) computeVideoDelay(lastDuration float64) float64 {
	if p.masterSyncType() == SyncVideoMaster {
		return lastDuration
	}
	diff := p.videoClock.Read() - p.masterClock().Read()
	threshold := clamp(lastDuration, avSyncThresholdMin, avSyncThresholdMax)
	if math.IsNaN(diff) || math.Abs(diff) >= p.maxFrameDuration {
		return lastDuration
	}
	switch {
	case diff <= -threshold:
		return math.Max(0, lastDuration+diff)
	case diff >= threshold && lastDuration > avSyncFramedupThreshold:
		return lastDuration + diff
	case diff >= threshold:
		return 2 * lastDuration
	default:
		return lastDuration
	}
}

func (p *PlayerState) updateVideoClock(pts float64, serial int64) {
	p.videoClock.Set(pts, serial)
	p.externalClock.SyncTo(p.videoClock)
}

// VideoRefresh is the main-thread scheduler called at a baseline 10ms
// cadence (§4.6). remainingTime, if non-nil, is shrunk to the wait the
// caller should observe before calling again. It returns the frame the
// caller should present, or nil if nothing is ready to show yet.
func (p *PlayerState) VideoRefresh(remainingTime *float64) *Frame {
	if p.masterSyncType() == SyncExternalClock && p.realtime {
		p.updateExternalClockSpeed()
	}
	if p.video == nil {
		return nil
	}

	for {
		if p.video.Frames.Remaining() == 0 {
			return nil
		}

		lastvp := p.video.Frames.PeekLast()
		vp := p.video.Frames.PeekCurrent()

		// Stale frame (step 4).
		if vp.Serial != p.video.Packets.Serial() {
			p.video.Frames.AdvanceRead()
			continue
		}

		// Serial boundary (step 5).
		if lastvp.Serial != vp.Serial {
			p.frameTimer = monotonicSeconds()
		}

		if p.Paused() {
			return p.video.Frames.PeekLast()
		}

		lastDuration := p.frameDuration(lastvp, vp)
		delay := p.computeVideoDelay(lastDuration)

		now := monotonicSeconds()
		if now < p.frameTimer+delay {
			if remainingTime != nil {
				rt := p.frameTimer + delay - now
				if rt < *remainingTime {
					*remainingTime = rt
				}
			}
			return p.video.Frames.PeekLast()
		}

		p.frameTimer += delay
		if delay > 0 && now-p.frameTimer > avSyncFramedupThreshold {
			p.frameTimer = now
		}

		if !math.IsNaN(vp.PTS) {
			p.updateVideoClock(vp.PTS, vp.Serial)
		}

		if p.video.Frames.Remaining() > 1 {
			nextvp := p.video.Frames.PeekNext()
			if now > p.frameTimer+p.frameDuration(vp, nextvp) {
				p.frameDropsLate.Add(1)
				if p.met != nil {
					p.met.FrameDropsTotal.WithLabelValues("late").Inc()
				}
				p.video.Frames.AdvanceRead()
				continue
			}
		}

		p.video.Frames.AdvanceRead()
		p.forceRefresh = true
		return p.video.Frames.PeekLast()
	}
}
