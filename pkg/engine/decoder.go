package engine

import (
	"context"
	"time"

	"mediaengine/pkg/codecfacade"
	"mediaengine/pkg/config"
)

const decoderEOFSleep = 10 * time.Millisecond

// decodeLoop is the parameterised decoder thread loop (§4.5), run once per
// stream with its own clock.
func (p *PlayerState) decodeLoop(ctx context.Context, sc *StreamContext, clock *Clock) error {
	log := p.log.With("decoder").WithStream(sc.Info.Index)

	for {
		if sc.abort.Load() || ctx.Err() != nil {
			return nil
		}

		sc.mu.Lock()
		eof := sc.eof
		sc.mu.Unlock()
		if eof && sc.Info.Kind == codecfacade.MediaVideo {
			time.Sleep(decoderEOFSleep)
			continue
		}

		decodeStart := time.Now()
		frame, isEOS, err := p.decodeOne(sc)
		if p.onDecode != nil {
			p.onDecode(time.Since(decodeStart))
		}
		if err != nil {
			log.Warn("decode failed", zapErr(err))
			return err
		}
		if isEOS {
			sc.mu.Lock()
			sc.eof = true
			sc.mu.Unlock()
			continue
		}
		if frame == nil {
			if sc.abort.Load() {
				return nil
			}
			continue
		}

		if sc.Info.Kind == codecfacade.MediaVideo && p.shouldDropEarly(frame, sc, clock) {
			frame.Release()
			p.frameDropsEarly.Add(1)
			if p.met != nil {
				p.met.FrameDropsTotal.WithLabelValues("early").Inc()
			}
			continue
		}

		slot, ok := sc.Frames.PeekWritable()
		if !ok {
			frame.Release()
			return nil
		}
		*slot = *frame
		sc.Frames.CommitWrite()
	}
}

// decodeOne implements §4.5 step 3: pull a ready frame if the codec has
// one buffered, otherwise feed packets (pending-first) until it does, the
// codec reports end of stream, or the queue is aborted. Flush and null
// sentinels are handled in place and the loop continues.
func (p *PlayerState) decodeOne(sc *StreamContext) (*Frame, bool, error) {
	for {
		fref, result := sc.Decoder.ReceiveFrame()
		switch result {
		case codecfacade.DecodeOK:
			return p.wrapFrame(sc, fref), false, nil
		case codecfacade.DecodeEOF:
			sc.mu.Lock()
			sc.finishedSerial = sc.pktSerial
			sc.mu.Unlock()
			sc.Decoder.Flush()
			return nil, true, nil
		}

		var pkt *Packet
		if sc.pendingPacket != nil {
			pkt = sc.pendingPacket
			sc.pendingPacket = nil
		} else {
			got, ok := sc.Packets.Pop()
			if !ok {
				return nil, false, nil
			}
			pkt = got
		}

		sc.mu.Lock()
		pktSerial := sc.pktSerial
		sc.mu.Unlock()

		if pkt.Kind != PacketFlush && pkt.Serial != pktSerial {
			pkt.Release()
			continue
		}

		switch pkt.Kind {
		case PacketFlush:
			sc.Decoder.Flush()
			sc.mu.Lock()
			sc.pktSerial = pkt.Serial
			sc.finishedSerial = 0
			sc.nextPTS = 0
			sc.mu.Unlock()
			continue
		case PacketNull:
			sc.Decoder.SendPacket(nil)
			continue
		}

		facadePkt := &codecfacade.Packet{
			StreamIndex: pkt.StreamIndex,
			PTS:         pkt.PTS,
			DTS:         pkt.DTS,
			Duration:    pkt.Duration,
			Ref:         pkt.Ref,
		}
		sendResult := sc.Decoder.SendPacket(facadePkt)
		if sendResult == codecfacade.DecodeTryAgain {
			sc.pendingPacket = pkt
			continue
		}
		pkt.Release()
	}
}

// wrapFrame attaches presentation metadata to a freshly decoded frame
// (§4.5 step 3 video/audio branches, step 5 metadata attach).
func (p *PlayerState) wrapFrame(sc *StreamContext, fref codecfacade.FrameRef) *Frame {
	sc.mu.Lock()
	serial := sc.pktSerial
	sc.mu.Unlock()

	f := &Frame{Ref: fref, Serial: serial}

	if fref.IsVideo() {
		var rawPTS int64
		if p.cfg.ReorderPTS == config.ReorderPTSOff {
			rawPTS = fref.PktDTS()
		} else {
			rawPTS = fref.BestEffortTimestamp()
		}
		if rawPTS == noPTSValue {
			f.PTS = nanFloat()
		} else {
			f.PTS = sc.Info.TimeBase.ToSeconds(rawPTS)
		}
		f.Width = fref.Width()
		f.Height = fref.Height()
		f.PixelFormat = fref.PixelFormat()
		f.SAR = fref.SampleAspectRatio()
		if sc.Info.FrameRate.Num != 0 && sc.Info.FrameRate.Den != 0 {
			f.Duration = 1.0 / sc.Info.FrameRate.ToFloat()
		}
		return f
	}

	tb := codecfacade.Rational{Num: 1, Den: fref.SampleRate()}
	sc.mu.Lock()
	rawPTS := fref.BestEffortTimestamp()
	var ptsSeconds float64
	if rawPTS != noPTSValue {
		ptsSeconds = tb.ToSeconds(rawPTS)
	} else {
		ptsSeconds = sc.nextPTS
	}
	sc.nextPTS = ptsSeconds + float64(fref.NumSamples())/float64(fref.SampleRate())
	sc.mu.Unlock()

	f.PTS = ptsSeconds
	f.NumSamples = fref.NumSamples()
	f.SampleRate = fref.SampleRate()
	f.Channels = fref.Channels()
	f.Duration = float64(fref.NumSamples()) / float64(fref.SampleRate())
	return f
}

// shouldDropEarly implements §4.5 step 4.
func (p *PlayerState) shouldDropEarly(frame *Frame, sc *StreamContext, clock *Clock) bool {
	masterType := p.masterSyncType()
	dropEnabled := p.cfg.FrameDrop == config.FrameDropOn ||
		(p.cfg.FrameDrop == config.FrameDropAuto && masterType != SyncVideoMaster)
	if !dropEnabled {
		return false
	}
	if isNaNFloat(frame.PTS) {
		return false
	}
	masterNow := p.masterClock().Read()
	if isNaNFloat(masterNow) {
		return false
	}
	diff := frame.PTS - masterNow
	return diff < 0 && frame.Serial == clock.Serial() && sc.Packets.NbPackets() > 0
}
