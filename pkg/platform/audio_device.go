package platform

import (
	"fmt"

	"github.com/veandco/go-sdl2/sdl"

	"mediaengine/pkg/codecfacade"
	"mediaengine/pkg/engine"
)

// audioDeviceSamples is the device buffer size in frames, matching the
// source's SDL_AUDIO_BUFFER_SIZE.
const audioDeviceSamples = 1024

// AudioDevice wraps an SDL audio output opened in queue mode: rather than a
// cgo pull callback, a goroutine tops off SDL's internal queue from the
// engine's FillAudio, which keeps the hot path on the Go side.
type AudioDevice struct {
	id       sdl.AudioDeviceID
	spec     sdl.AudioSpec
	player   *engine.PlayerState
	stopChan chan struct{}
}

// OpenAudioDevice opens the default output device at the given requested
// format and binds it to player's audio stage (§6 "audio device format").
func OpenAudioDevice(player *engine.PlayerState, sampleRate, channels int) (*AudioDevice, error) {
	want := sdl.AudioSpec{
		Freq:     int32(sampleRate),
		Format:   sdl.AUDIO_S16SYS,
		Channels: uint8(channels),
		Samples:  audioDeviceSamples,
	}
	var got sdl.AudioSpec
	id, err := sdl.OpenAudioDevice("", false, &want, &got, sdl.AUDIO_ALLOW_FREQUENCY_CHANGE|sdl.AUDIO_ALLOW_CHANNELS_CHANGE)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}

	bytesPerFrame := int(got.Channels) * sdlFormatBytes(got.Format)
	if err := player.ConfigureAudioDevice(engine.AudioDeviceFormat{
		SampleRate:      int(got.Freq),
		Channels:        int(got.Channels),
		Format:          sampleFormatFromSDL(got.Format),
		BufferSizeBytes: int(got.Samples) * bytesPerFrame,
	}); err != nil {
		sdl.CloseAudioDevice(id)
		return nil, err
	}

	d := &AudioDevice{id: id, spec: got, player: player, stopChan: make(chan struct{})}
	sdl.PauseAudioDevice(id, false)
	go d.pump()
	return d, nil
}

// pump keeps SDL's queue topped up a little ahead of the device consuming
// it, asking the engine to fill whatever's missing.
func (d *AudioDevice) pump() {
	const targetQueued = audioDeviceSamples * 4
	buf := make([]byte, audioDeviceSamples*2*int(d.spec.Channels))
	ticker := sdl.GetTicks()
	_ = ticker

	for {
		select {
		case <-d.stopChan:
			return
		default:
		}

		queued := sdl.GetQueuedAudioSize(d.id)
		if int(queued) >= targetQueued {
			sdl.Delay(5)
			continue
		}
		n := d.player.FillAudio(buf)
		if n == 0 {
			sdl.Delay(5)
			continue
		}
		if err := sdl.QueueAudio(d.id, buf[:n]); err != nil {
			sdl.Delay(5)
		}
	}
}

func sdlFormatBytes(format sdl.AudioFormat) int {
	switch format {
	case sdl.AUDIO_U8:
		return 1
	case sdl.AUDIO_S32SYS, sdl.AUDIO_F32SYS:
		return 4
	default:
		return 2
	}
}

func sampleFormatFromSDL(format sdl.AudioFormat) codecfacade.SampleFormat {
	switch format {
	case sdl.AUDIO_U8:
		return codecfacade.SampleFormatU8
	case sdl.AUDIO_S32SYS:
		return codecfacade.SampleFormatS32
	case sdl.AUDIO_F32SYS:
		return codecfacade.SampleFormatF32
	default:
		return codecfacade.SampleFormatS16
	}
}

// Close stops the pump goroutine and releases the device.
func (d *AudioDevice) Close() {
	close(d.stopChan)
	sdl.CloseAudioDevice(d.id)
}
