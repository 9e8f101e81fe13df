package engine

import (
	"context"
	"io"
	"time"

	"mediaengine/pkg/codecfacade"
)

const readerBackpressureSleep = 10 * time.Millisecond
const readerEOFSleep = 10 * time.Millisecond

// readerLoop is the single-threaded state machine over
// {Running, Paused, Seeking, EOF, Stopping} described in §4.4.
func (p *PlayerState) readerLoop(ctx context.Context) error {
	log := p.log.With("reader")

	for {
		if p.stop.Load() || ctx.Err() != nil {
			return nil
		}

		// 3. Pause transition.
		paused := p.Paused()
		if paused != p.lastPaused {
			p.lastPaused = paused
			var err error
			if paused {
				err = p.input.Pause()
			} else {
				err = p.input.Play()
			}
			if err != nil {
				log.Warn("pause/play transition failed", zapErr(err))
			}
		}

		// 4. Seek.
		if req, ok := p.takeSeekRequest(); ok {
			if err := p.performSeek(req); err != nil {
				log.Warn("seek failed", zapErr(err))
			}
		}

		// 5. Backpressure.
		if p.shouldThrottle() {
			p.sleepOrWake(readerBackpressureSleep)
			continue
		}

		// 6. Loop / auto-exit on drained EOF.
		if !paused && p.readerEOF && p.allStreamsDrained() {
			if p.cfg.Loop != 0 {
				if p.cfg.Loop > 0 {
					p.cfg.Loop--
				}
				p.RequestSeek(0, 0, codecfacade.SeekAny)
				continue
			}
			return nil
		}

		// 7. Read one packet.
		pkt, err := p.input.ReadFrame()
		if err == io.EOF {
			if p.video != nil {
				p.video.Packets.PushNull(p.video.Info.Index)
			}
			if p.audio != nil {
				p.audio.Packets.PushNull(p.audio.Info.Index)
			}
			p.readerEOF = true
			p.sleepOrWake(readerEOFSleep)
			continue
		}
		if err != nil {
			log.Warn("read_frame failed", zapErr(err))
			return err
		}

		// 8. Route.
		p.route(pkt)
	}
}

func (p *PlayerState) shouldThrottle() bool {
	total := 0
	if p.video != nil {
		total += p.video.Packets.Size()
	}
	if p.audio != nil {
		total += p.audio.Packets.Size()
	}
	if total > p.cfg.MaxPacketQueueBytes {
		return true
	}
	if p.cfg.InfiniteBuffer {
		return false
	}

	enough := true
	if p.video != nil {
		enough = enough && p.video.hasEnoughPackets(p.video.Info.TimeBase)
	}
	if p.audio != nil {
		enough = enough && p.audio.hasEnoughPackets(p.audio.Info.TimeBase)
	}
	return (p.video != nil || p.audio != nil) && enough
}

func (p *PlayerState) allStreamsDrained() bool {
	for _, sc := range p.streams() {
		sc.mu.Lock()
		drained := sc.Packets.NbPackets() == 0 && sc.finishedSerial == sc.pktSerial
		sc.mu.Unlock()
		if !drained {
			return false
		}
	}
	return true
}

// route decides whether pkt falls inside the configured play range and
// forwards it to the matching decoder queue, or discards it (§4.4 step 8).
func (p *PlayerState) route(pkt *codecfacade.Packet) {
	var sc *StreamContext
	var tb codecfacade.Rational
	switch {
	case p.video != nil && pkt.StreamIndex == p.video.Info.Index:
		sc = p.video
		tb = p.video.Info.TimeBase
	case p.audio != nil && pkt.StreamIndex == p.audio.Info.Index:
		sc = p.audio
		tb = p.audio.Info.TimeBase
	default:
		if pkt.Ref != nil {
			pkt.Ref.Release()
		}
		return
	}

	if pkt.PTS != noPTSValue {
		seconds := tb.ToSeconds(pkt.PTS)
		if !p.timeInRange(seconds) {
			if pkt.Ref != nil {
				pkt.Ref.Release()
			}
			return
		}
	}

	sc.Packets.Push(&Packet{
		Kind:        PacketData,
		StreamIndex: pkt.StreamIndex,
		PTS:         pkt.PTS,
		DTS:         pkt.DTS,
		Duration:    pkt.Duration,
		Ref:         pkt.Ref,
	})
}

func (p *PlayerState) sleepOrWake(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.resumeSignal:
	case <-t.C:
	}
}

// noPTSValue mirrors AV_NOPTS_VALUE.
const noPTSValue = int64(-9223372036854775808)
