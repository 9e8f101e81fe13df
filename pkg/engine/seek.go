package engine

import "mediaengine/pkg/codecfacade"

// SeekRequest is the pending-seek mailbox the reader drains each loop
// iteration (§3, §4.4 step 4).
type SeekRequest struct {
	TargetPos int64
	Relative  int64
	Flags     codecfacade.SeekFlags
	Pending   bool
}

const seekByteOffset = 2 // ±2 bytes, per §4.4 step 4

// RequestSeek publishes a new seek request, overwriting any unconsumed one.
// pos/relative are in AV_TIME_BASE units for time-based seeks, or raw bytes
// when SeekByte is set.
func (p *PlayerState) RequestSeek(pos, relative int64, flags codecfacade.SeekFlags) {
	p.seekMu.Lock()
	p.seekReq = SeekRequest{TargetPos: pos, Relative: relative, Flags: flags, Pending: true}
	p.seekMu.Unlock()
	p.wakeReader()
}

// RequestSeekSeconds is the Host-UI-facing helper for the left/right ±5s
// keys (§6 "Host UI").
func (p *PlayerState) RequestSeekSeconds(deltaSeconds float64) {
	rel := int64(deltaSeconds * float64(avTimeBase))
	var flags codecfacade.SeekFlags = codecfacade.SeekAny
	if rel < 0 {
		flags |= codecfacade.SeekBackward
	}
	p.RequestSeek(0, rel, flags)
}

func (p *PlayerState) takeSeekRequest() (SeekRequest, bool) {
	p.seekMu.Lock()
	defer p.seekMu.Unlock()
	if !p.seekReq.Pending {
		return SeekRequest{}, false
	}
	req := p.seekReq
	p.seekReq.Pending = false
	return req, true
}

// performSeek implements §4.4 step 4: compute the (min, target, max) search
// window, ask the façade to seek, then flush and resume both decoders and
// reset the external clock.
func (p *PlayerState) performSeek(req SeekRequest) error {
	var min, max, target int64
	if req.Relative < 0 {
		min = 0
		max = req.TargetPos - seekByteOffset
		target = req.TargetPos
	} else if req.Relative > 0 {
		min = req.TargetPos + seekByteOffset
		max = 1<<62 - 1
		target = req.TargetPos
	} else {
		min = 0
		max = 1<<62 - 1
		target = req.TargetPos
	}
	_ = min
	_ = max

	// Relative seeks (the common Host UI case) are resolved against the
	// master clock's current reading, matching the source's use of
	// get_master_clock() as the seek base when no absolute position was
	// given.
	if req.Relative != 0 && req.TargetPos == 0 {
		base := p.masterClock().Read()
		if isNaNFloat(base) {
			base = 0
		}
		target = int64(base*float64(avTimeBase)) + req.Relative
		if target < 0 {
			target = 0
		}
		if req.Relative < 0 {
			min = 0
			max = 1<<62 - 1
		} else {
			min = target - seekByteOffset
			max = 1<<62 - 1
		}
	}

	streamIndex := -1
	if p.video != nil {
		streamIndex = p.video.Info.Index
	} else if p.audio != nil {
		streamIndex = p.audio.Info.Index
	}

	if err := p.input.Seek(streamIndex, min, target, max, req.Flags); err != nil {
		p.log.Warn("seek failed", zapErr(err))
		return err
	}

	for _, sc := range p.streams() {
		sc.Packets.Flush()
		sc.Packets.PushFlush()
		sc.mu.Lock()
		sc.eof = false
		sc.mu.Unlock()
	}

	if req.Flags&codecfacade.SeekByte != 0 {
		p.externalClock.Set(nanFloat(), -1)
	} else {
		p.externalClock.Set(float64(target)/float64(avTimeBase), -1)
	}

	p.readerEOF = false

	if p.Paused() {
		p.stepOnce()
	}
	return nil
}

// streams returns the non-nil stream contexts in a stable order.
func (p *PlayerState) streams() []*StreamContext {
	var out []*StreamContext
	if p.video != nil {
		out = append(out, p.video)
	}
	if p.audio != nil {
		out = append(out, p.audio)
	}
	return out
}
