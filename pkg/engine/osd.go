package engine

// Snapshot is a read-only point-in-time view of playback state, for a host
// UI's on-screen status line. It carries data only; no layout or text
// rendering lives in this package (SPEC_FULL.md "SUPPLEMENTED FEATURES").
type Snapshot struct {
	PositionSeconds float64
	DurationSeconds float64
	Paused          bool
	MasterSync      SyncType
	AVDiffSeconds   float64 // audio pts minus video pts, NaN if either is absent
	FrameDropsEarly int64
	FrameDropsLate  int64
	VideoCodec      string
	AudioCodec      string
}

// Snapshot captures the current state for display.
func (p *PlayerState) Snapshot() Snapshot {
	s := Snapshot{
		Paused:          p.Paused(),
		MasterSync:      p.masterSyncType(),
		AVDiffSeconds:   nanFloat(),
		FrameDropsEarly: p.frameDropsEarly.Load(),
		FrameDropsLate:  p.frameDropsLate.Load(),
	}
	s.PositionSeconds = p.masterClock().Read()

	if p.video != nil {
		s.VideoCodec = p.video.Info.CodecName
	}
	if p.audio != nil {
		s.AudioCodec = p.audio.Info.CodecName
	}
	if p.video != nil && p.audio != nil {
		v := p.videoClock.Read()
		a := p.audioClock.Read()
		if !isNaNFloat(v) && !isNaNFloat(a) {
			s.AVDiffSeconds = a - v
		}
	}

	info := p.input.Info()
	s.DurationSeconds = float64(info.DurationUs) / 1e6
	return s
}
