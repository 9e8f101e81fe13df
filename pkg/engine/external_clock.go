package engine

// updateExternalClockSpeed implements §4.7: when the external clock is
// master and the source is realtime, slow it down while the thinnest active
// packet queue is starved, speed it up while every queue is well stocked,
// and otherwise nudge its speed back toward 1.0, so a slow network feed
// doesn't let the external clock run away from what's actually buffered.
func (p *PlayerState) updateExternalClockSpeed() {
	minPackets := int64(-1)
	for _, sc := range p.streams() {
		n := sc.Packets.NbPackets()
		if minPackets == -1 || n < minPackets {
			minPackets = n
		}
	}

	speed := p.externalClock.Speed()
	switch {
	case minPackets >= 0 && minPackets <= externalClockMinFrames:
		speed = clamp(speed-externalClockSpeedStep, externalClockSpeedMin, externalClockSpeedMax)
	case minPackets < 0 || minPackets > externalClockMaxFrames:
		speed = clamp(speed+externalClockSpeedStep, externalClockSpeedMin, externalClockSpeedMax)
	default:
		target := 1.0
		if speed != target {
			diff := target - speed
			step := externalClockSpeedStep
			if diff < 0 {
				step = -step
			}
			if (step < 0 && diff < step) || (step > 0 && diff > step) {
				speed += step
			} else {
				speed = target
			}
		}
	}
	p.externalClock.SetSpeed(speed)
}
