package engine

import (
	"math"

	"mediaengine/pkg/codecfacade"
)

// Constants named after the source's audio sync tuning (§4.8).
const (
	avAudioDiffAvgNb             = 20
	avSampleCorrectionPercentMax = 10
	audioDiffThreshold           = 0.1
)

var audioDiffEMACoef = math.Exp(math.Log(0.01) / avAudioDiffAvgNb)

// AudioDeviceFormat is what the host platform's opened audio device settled
// on; the callback state resamples every decoded frame to this format
// regardless of what the source encoded (§6 "audio device format").
type AudioDeviceFormat struct {
	SampleRate int
	Channels   int
	Format     codecfacade.SampleFormat

	// BufferSizeBytes is the device's own buffer size (frames-per-callback
	// times frame size), used to estimate hardware latency when anchoring
	// the audio clock (§4.8 step 3).
	BufferSizeBytes int
}

// bytesPerSample returns the byte width of one PCM sample in fmt.
func bytesPerSample(fmt codecfacade.SampleFormat) int {
	switch fmt {
	case codecfacade.SampleFormatU8:
		return 1
	case codecfacade.SampleFormatS16:
		return 2
	case codecfacade.SampleFormatS32, codecfacade.SampleFormatF32:
		return 4
	case codecfacade.SampleFormatS64, codecfacade.SampleFormatF64:
		return 8
	default:
		return 2
	}
}

// audioCallbackState is the pull-callback side of the audio stage (§4.8):
// it owns the resampler, the conversion-buffer leftover from the previous
// callback, and the EMA used to stretch or shrink each frame's sample count
// to keep the audio clock close to the chosen master.
type audioCallbackState struct {
	p *PlayerState

	device    AudioDeviceFormat
	resampler codecfacade.Resampler

	buf      []byte
	bufIndex int
}

func newAudioCallbackState(p *PlayerState) *audioCallbackState {
	return &audioCallbackState{p: p}
}

// ConfigureAudioDevice binds the engine's audio stage to the format the host
// platform actually opened the device with (§6 "audio device format").
func (p *PlayerState) ConfigureAudioDevice(format AudioDeviceFormat) error {
	if p.audioCallback == nil {
		return nil
	}
	return p.audioCallback.ConfigureDevice(format)
}

// FillAudio is the host platform's pull hook: it writes up to len(out)
// bytes of device-format PCM and returns how many it actually wrote.
func (p *PlayerState) FillAudio(out []byte) int {
	if p.audioCallback == nil {
		return 0
	}
	return p.audioCallback.Callback(out)
}

// ConfigureDevice binds the callback to the concrete device format the host
// platform actually opened. The resampler is built later, by resamplerFor,
// from the first decoded frame.
func (a *audioCallbackState) ConfigureDevice(format AudioDeviceFormat) error {
	a.device = format
	return nil
}

// Callback fills out with up to len(out) bytes of device-format PCM,
// returning the number of bytes written (fewer than len(out) whenever no
// decoded frame is ready). The host platform's queue-mode pump calls it
// through FillAudio (§4.8, §6 "audio device").
func (a *audioCallbackState) Callback(out []byte) int {
	written := 0
	for written < len(out) {
		if a.bufIndex >= len(a.buf) {
			if !a.fillBuffer() {
				break
			}
		}
		n := copy(out[written:], a.buf[a.bufIndex:])
		a.bufIndex += n
		written += n
	}
	return written
}

// fillBuffer decodes, resamples and clock-corrects one audio frame into
// a.buf, skipping stale-serial frames (§4.8 step 1-4). It returns false
// when no frame is currently available.
func (a *audioCallbackState) fillBuffer() bool {
	p := a.p
	sc := p.audio
	if sc == nil {
		return false
	}

	for {
		fr, ok := sc.Frames.TryPeekReadable()
		if !ok {
			return false
		}
		frame := *fr
		if frame.Serial != sc.Packets.Serial() {
			sc.Frames.AdvanceRead()
			continue
		}

		wanted := a.synchronizeAudio(frame)

		res, err := a.resamplerFor(frame)
		if err != nil {
			p.log.Warn("resample failed", zapErr(err))
			frame.Release()
			sc.Frames.AdvanceRead()
			continue
		}
		data, err := res.Convert(frame.Ref, wanted)
		frame.Release()
		sc.Frames.AdvanceRead()
		if err != nil {
			p.log.Warn("swr_convert failed", zapErr(err))
			continue
		}

		if !isNaNFloat(frame.PTS) {
			pts := frame.PTS + frame.Duration - a.bufferedLatencySeconds(len(data))
			p.audioClock.Set(pts, frame.Serial)
			p.externalClock.SyncTo(p.audioClock)
		}

		a.buf = data
		a.bufIndex = 0
		if len(a.buf) == 0 {
			continue
		}
		return true
	}
}

// resamplerFor lazily builds the one resampler reused for the life of the
// stream, matched to the first decoded frame's source layout; FFmpeg's
// swr_convert tolerates a fixed source format across calls since every
// frame from a given stream decoder reports the same one.
func (a *audioCallbackState) resamplerFor(frame Frame) (codecfacade.Resampler, error) {
	if a.resampler != nil {
		return a.resampler, nil
	}
	rate := a.device.SampleRate
	ch := a.device.Channels
	fmtOut := a.device.Format
	if rate == 0 {
		rate = frame.SampleRate
	}
	if ch == 0 {
		ch = 2
	}
	res, err := codecfacade.NewResampler(frame.SampleRate, frame.Channels, frame.Ref.SampleFormat(), rate, ch, codecfacade.AVSampleFormatFor(fmtOut))
	if err != nil {
		return nil, err
	}
	a.resampler = res
	return res, nil
}

// synchronizeAudio implements the source's synchronize_audio: it compares
// the audio clock's own trajectory against the master clock, folds each
// diff into an exponential moving average and, once avAudioDiffAvgNb diffs
// have been accumulated and the average lies outside [-threshold,
// threshold], nudges the wanted sample count by at most
// avSampleCorrectionPercentMax% to let the resampler stretch or compress
// the frame instead of letting drift accumulate (§4.8).
func (p *PlayerState) synchronizeAudio(frame Frame) int {
	wanted := frame.NumSamples
	if p.masterSyncType() == SyncAudioMaster {
		return wanted
	}

	diff := p.audioClock.Read() - p.masterClock().Read()
	if isNaNFloat(diff) || math.Abs(diff) >= NoSyncThreshold {
		p.audioDiffAvgCount = 0
		p.audioDiffCum = 0
		return wanted
	}

	p.audioDiffCum = diff + audioDiffEMACoef*p.audioDiffCum
	if p.audioDiffAvgCount < avAudioDiffAvgNb {
		p.audioDiffAvgCount++
		return wanted
	}

	avgDiff := p.audioDiffCum * (1.0 - audioDiffEMACoef)
	if math.Abs(avgDiff) < audioDiffThreshold {
		return wanted
	}

	wantedSamples := float64(wanted) + diff*float64(frame.SampleRate)
	minSamples := float64(wanted) * (100 - avSampleCorrectionPercentMax) / 100
	maxSamples := float64(wanted) * (100 + avSampleCorrectionPercentMax) / 100
	wantedSamples = clamp(wantedSamples, minSamples, maxSamples)
	return int(wantedSamples)
}

func (a *audioCallbackState) synchronizeAudio(frame Frame) int {
	return a.p.synchronizeAudio(frame)
}

// bufferedLatencySeconds estimates how much device-format audio is sitting
// unplayed at the moment this frame's bytes are produced: two periods of the
// device's own hardware buffer plus the newBytes just converted, matching
// the source's `pts -= (2*audio_hw_buf_size + audio_write_buf_size) /
// bytes_per_sec` compensation (§4.8 step 3). In queue mode there is no
// per-callback "now"; this frame's own bytes stand in for the leftover
// write buffer the source tracks.
func (a *audioCallbackState) bufferedLatencySeconds(newBytes int) float64 {
	bytesPerSec := a.device.SampleRate * a.device.Channels * bytesPerSample(a.device.Format)
	if bytesPerSec <= 0 {
		return 0
	}
	bufferedBytes := 2*a.device.BufferSizeBytes + newBytes
	return float64(bufferedBytes) / float64(bytesPerSec)
}

// Close releases the resampler, if one was built.
func (a *audioCallbackState) Close() {
	if a.resampler != nil {
		a.resampler.Close()
		a.resampler = nil
	}
}
