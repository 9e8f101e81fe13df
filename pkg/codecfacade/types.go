// Package codecfacade is the engine's sole window onto the demuxer, the
// per-stream decoders, the audio resampler and the picture scaler. Nothing
// outside this package links against FFmpeg directly; pkg/engine only ever
// calls through the interfaces declared here.
package codecfacade

import "time"

// SampleFormat mirrors the device/PCM formats the façade and the audio
// device agree on.
type SampleFormat int

const (
	SampleFormatU8 SampleFormat = iota
	SampleFormatS16
	SampleFormatS32
	SampleFormatS64
	SampleFormatF32
	SampleFormatF64
)

// DecodeResult is the three-valued outcome of send-packet/receive-frame.
type DecodeResult int

const (
	DecodeOK DecodeResult = iota
	DecodeTryAgain
	DecodeEOF
)

// MediaKind is the type of elementary stream a MediaStream serves.
type MediaKind int

const (
	MediaVideo MediaKind = iota
	MediaAudio
)

// Rational is a stream time base or sample-aspect-ratio numerator/denominator.
type Rational struct {
	Num, Den int
}

// ToSeconds converts a timestamp expressed in this rational's units to
// seconds.
func (r Rational) ToSeconds(ts int64) float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(ts) * float64(r.Num) / float64(r.Den)
}

// ToFloat returns the rational as a plain float (e.g. a frame rate).
func (r Rational) ToFloat() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// PacketRef is a codec-owned compressed-packet buffer. Release must be
// called exactly once, whether the packet was consumed or discarded.
type PacketRef interface {
	Bytes() []byte
	Release()
}

// FrameRef is a codec-owned decoded picture or audio buffer.
type FrameRef interface {
	// IsVideo reports whether this is a picture (true) or audio samples (false).
	IsVideo() bool
	Width() int
	Height() int
	PixelFormat() int32 // raw AVPixelFormat id, for Scaler construction
	SampleAspectRatio() Rational
	NumSamples() int
	SampleRate() int
	Channels() int
	SampleFormat() int32 // raw AVSampleFormat id, for Resampler construction
	PktDTS() int64
	BestEffortTimestamp() int64
	Release()
}

// StreamInfo is the demuxer-reported metadata for one elementary stream.
type StreamInfo struct {
	Index     int
	Kind      MediaKind
	CodecName string
	TimeBase  Rational
	FrameRate Rational
	Disposition
}

// Disposition carries the subset of AVStream disposition flags the engine
// reasons about.
type Disposition struct {
	AttachedPic bool
}

// FormatFlags mirrors the subset of AVFormatContext/AVIOContext flags the
// reader's seek and backpressure logic consult.
type FormatFlags struct {
	Discontinuous bool // AVFMT_TS_DISCONT
	NoBinSearch   bool
	NoByteSeek    bool
	NoGenSearch   bool
}

// InputInfo describes an opened container.
type InputInfo struct {
	FormatName  string
	URL         string
	DurationUs  int64
	Streams     []StreamInfo
	Flags       FormatFlags
}

// SeekFlags selects the search direction/unit for Input.Seek.
type SeekFlags uint8

const (
	SeekAny SeekFlags = 1 << iota
	SeekByte
	SeekBackward
)

// Input is an opened demuxer context, one per PlayerState.
type Input interface {
	Info() InputInfo
	ReadFrame() (*Packet, error) // io.EOF at end of stream
	Seek(streamIndex int, min, target, max int64, flags SeekFlags) error
	Pause() error
	Play() error
	Close() error
	// OpenDecoder opens a decoder for one of the streams reported by Info,
	// trying hardware candidates before falling back to software.
	OpenDecoder(streamIndex int) (Decoder, error)
}

// Packet is the façade-level read from the demuxer, before the engine wraps
// it with serial/queue bookkeeping.
type Packet struct {
	StreamIndex int
	PTS         int64
	DTS         int64
	Duration    int64
	Ref         PacketRef
}

// Decoder is a per-stream decode context.
type Decoder interface {
	SendPacket(pkt *Packet) DecodeResult
	ReceiveFrame() (FrameRef, DecodeResult)
	Flush()
	Close()
}

// Resampler converts decoded audio into the audio device's fixed format.
type Resampler interface {
	Convert(in FrameRef, wantedSamples int) ([]byte, error)
	Close()
}

// Scaler converts decoded pictures into a fixed RGBA destination.
type Scaler interface {
	Scale(in FrameRef) ([]byte, int, error) // bytes, stride
	Close()
}

// monotonicOrigin anchors Monotonic; time.Since on it uses Go's monotonic
// clock reading, so wall-clock adjustments do not affect the result.
var monotonicOrigin = time.Now()

// Monotonic returns the façade's monotonic clock in microseconds, matching
// the source's av_gettime_relative.
func Monotonic() int64 {
	return time.Since(monotonicOrigin).Microseconds()
}
