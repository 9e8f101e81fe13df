// Package platform is the host-facing collaborator (§6 "Host UI"): it owns
// the SDL2 window, renderer, audio device and keyboard/resize events, and
// knows nothing about demuxing or decoding. It talks to pkg/engine only
// through PlayerState's public ConfigureAudioDevice/FillAudio/SetViewport/
// TogglePause/RequestSeekSeconds surface.
package platform

import (
	"fmt"
	"runtime"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"mediaengine/pkg/telemetry"
)

// linuxVideoDrivers is the fallback chain tried on Linux before giving up;
// darwin tries cocoa, then dummy.
var linuxVideoDrivers = []string{"kmsdrm", "drm", "wayland", "x11", "fbcon", "software", "dummy"}

// Window owns the SDL2 window, renderer and the single streaming texture the
// video scaler's RGBA output is uploaded into.
type Window struct {
	log *telemetry.Logger

	win      *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	texW     int32
	texH     int32
}

// Open tries each candidate video driver in turn, matching the teacher's
// multi-driver fallback, then creates a resizable window and a hardware
// renderer (falling back to software).
func Open(title string, log *telemetry.Logger) (*Window, error) {
	var drivers []string
	if runtime.GOOS == "darwin" {
		drivers = []string{"cocoa", "dummy"}
	} else {
		drivers = linuxVideoDrivers
	}

	var lastErr error
	for _, driver := range drivers {
		if err := tryInit(driver); err != nil {
			lastErr = err
			log.Warn("video driver init failed", zap.String("driver", driver), zap.Error(err))
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, fmt.Errorf("all video drivers failed: %w", lastErr)
	}

	win, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		1280, 720, sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}

	renderer, err := sdl.CreateRenderer(win, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		log.Warn("hardware renderer failed, falling back to software", zap.Error(err))
		renderer, err = sdl.CreateRenderer(win, -1, sdl.RENDERER_SOFTWARE)
		if err != nil {
			win.Destroy()
			return nil, fmt.Errorf("create renderer: %w", err)
		}
	}
	renderer.SetDrawBlendMode(sdl.BLENDMODE_BLEND)

	return &Window{log: log, win: win, renderer: renderer}, nil
}

func tryInit(driver string) error {
	sdl.Quit()
	time.Sleep(50 * time.Millisecond)
	sdl.SetHint(sdl.HINT_VIDEODRIVER, driver)
	sdl.SetHint(sdl.HINT_RENDER_BATCHING, "1")
	sdl.SetHint(sdl.HINT_VIDEO_MINIMIZE_ON_FOCUS_LOSS, "0")
	if driver == "kmsdrm" || driver == "drm" {
		sdl.SetHint(sdl.HINT_RENDER_DRIVER, "opengles2")
	} else if driver == "cocoa" {
		sdl.SetHint(sdl.HINT_RENDER_DRIVER, "opengl")
	} else {
		sdl.SetHint(sdl.HINT_RENDER_DRIVER, "software")
	}
	return sdl.Init(sdl.INIT_VIDEO)
}

// ensureTexture (re)allocates the streaming texture when the decoded
// picture's dimensions change.
func (w *Window) ensureTexture(width, height int) error {
	if w.texture != nil && int32(width) == w.texW && int32(height) == w.texH {
		return nil
	}
	if w.texture != nil {
		w.texture.Destroy()
	}
	tex, err := w.renderer.CreateTexture(sdl.PIXELFORMAT_ABGR8888, sdl.TEXTUREACCESS_STREAMING, int32(width), int32(height))
	if err != nil {
		return err
	}
	w.texture = tex
	w.texW, w.texH = int32(width), int32(height)
	return nil
}

// PresentRGBA uploads a packed RGBA buffer (as produced by
// codecfacade.Scaler.Scale) and draws it letterboxed into the window.
func (w *Window) PresentRGBA(rgba []byte, stride, width, height int) error {
	if err := w.ensureTexture(width, height); err != nil {
		return err
	}
	if err := w.texture.Update(nil, rgba, stride); err != nil {
		return err
	}

	winW, winH := w.win.GetSize()
	dst := letterbox(width, height, int(winW), int(winH))

	w.renderer.Clear()
	if err := w.renderer.Copy(w.texture, nil, dst); err != nil {
		return err
	}
	w.renderer.Present()
	return nil
}

// letterbox centers a width x height source inside a winW x winH viewport
// without distorting its aspect ratio.
func letterbox(width, height, winW, winH int) *sdl.Rect {
	if width == 0 || height == 0 || winW == 0 || winH == 0 {
		return &sdl.Rect{W: int32(winW), H: int32(winH)}
	}
	srcAspect := float64(width) / float64(height)
	winAspect := float64(winW) / float64(winH)

	var w, h int32
	if srcAspect > winAspect {
		w = int32(winW)
		h = int32(float64(winW) / srcAspect)
	} else {
		h = int32(winH)
		w = int32(float64(winH) * srcAspect)
	}
	return &sdl.Rect{X: int32(winW-int(w)) / 2, Y: int32(winH-int(h)) / 2, W: w, H: h}
}

// Size returns the current window client size.
func (w *Window) Size() (int, int) {
	ww, wh := w.win.GetSize()
	return int(ww), int(wh)
}

// Close tears down the texture, renderer and window.
func (w *Window) Close() {
	if w.texture != nil {
		w.texture.Destroy()
	}
	if w.renderer != nil {
		w.renderer.Destroy()
	}
	if w.win != nil {
		w.win.Destroy()
	}
	sdl.Quit()
}
