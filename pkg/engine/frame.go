package engine

import "mediaengine/pkg/codecfacade"

// Frame is a decoded picture or audio window, stamped with the serial of
// the packet it was decoded from.
type Frame struct {
	Ref        codecfacade.FrameRef
	PTS        float64 // seconds; NaN if unknown
	Duration   float64 // seconds
	Pos        int64   // source byte offset, for byte-seek bookkeeping
	Width      int
	Height     int
	PixelFormat int32
	NumSamples int
	SampleRate int
	Channels   int
	SAR        codecfacade.Rational
	Serial     int64
	IsUploaded bool
}

// Release returns the underlying codec-owned buffer, if any.
func (f *Frame) Release() {
	if f.Ref != nil {
		f.Ref.Release()
		f.Ref = nil
	}
	f.IsUploaded = false
}
