package platform

import (
	"github.com/veandco/go-sdl2/sdl"

	"mediaengine/pkg/engine"
)

// KeyPressTracker distinguishes a fresh key-down from a held key, adapted
// from the teacher's input tracker for the engine's four-key contract (§6
// "Host UI": space, F, left/right, resize).
type KeyPressTracker struct {
	pressed map[sdl.Scancode]bool
}

func NewKeyPressTracker() KeyPressTracker {
	return KeyPressTracker{pressed: make(map[sdl.Scancode]bool)}
}

func (kpt *KeyPressTracker) IsPressed(keyState []uint8, scancode sdl.Scancode) bool {
	isCurrentlyPressed := keyState[scancode] != 0
	wasPressed := kpt.pressed[scancode]
	kpt.pressed[scancode] = isCurrentlyPressed
	return isCurrentlyPressed && !wasPressed
}

// PumpEvents drains pending SDL events and applies the Host UI key/resize
// contract to player and win. It returns false when the window was closed.
func PumpEvents(tracker *KeyPressTracker, player *engine.PlayerState, win *Window) bool {
	keyState := sdl.GetKeyboardState()

	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			return false
		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_RESIZED || e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
				w, h := win.Size()
				player.SetViewport(w, h)
			}
		}
	}

	if tracker.IsPressed(keyState, sdl.SCANCODE_SPACE) {
		player.TogglePause()
	}
	if tracker.IsPressed(keyState, sdl.SCANCODE_F) {
		toggleFullscreen(win)
	}
	if tracker.IsPressed(keyState, sdl.SCANCODE_LEFT) {
		player.RequestSeekSeconds(-5)
	}
	if tracker.IsPressed(keyState, sdl.SCANCODE_RIGHT) {
		player.RequestSeekSeconds(5)
	}

	return true
}

func toggleFullscreen(win *Window) {
	flags := win.win.GetFlags()
	if flags&sdl.WINDOW_FULLSCREEN_DESKTOP != 0 {
		win.win.SetFullscreen(0)
	} else {
		win.win.SetFullscreen(sdl.WINDOW_FULLSCREEN_DESKTOP)
	}
}
