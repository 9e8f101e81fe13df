package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mediaengine/pkg/codecfacade"
	"mediaengine/pkg/config"
	"mediaengine/pkg/diagnostics"
	"mediaengine/pkg/engine"
	"mediaengine/pkg/platform"
	"mediaengine/pkg/telemetry"
)

const targetFPS = 60

func main() {
	// CRITICAL: SDL2 requires every windowing/event/render call to happen on
	// the same OS thread it was initialized on.
	runtime.LockOSThread()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: .env not found: %v\n", err)
	}

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: engine <media-path-or-url>")
		os.Exit(2)
	}
	mediaPath := os.Args[1]

	cfg := config.Load()
	log := telemetry.NewLogger(os.Getenv("VERBOSE") != "")
	defer log.Sync()
	met := telemetry.NewMetrics()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := telemetry.Serve(cfg.MetricsAddr); err != nil {
				log.Warn("metrics server stopped")
			}
		}()
	}

	code := run(mediaPath, cfg, log, met)
	os.Exit(code)
}

func run(mediaPath string, cfg *config.Config, log *telemetry.Logger, met *telemetry.Metrics) int {
	player, err := engine.Open(mediaPath, cfg, log, met)
	if err != nil {
		log.Fatal("open failed", err)
		return 1
	}
	defer player.Close()

	win, err := platform.Open(cfg.WindowTitle, log)
	if err != nil {
		log.Fatal("window init failed", err)
		return 1
	}
	defer win.Close()

	var audioDevice *platform.AudioDevice
	if !cfg.AudioDisabled {
		audioDevice, err = platform.OpenAudioDevice(player, 48000, 2)
		if err != nil {
			log.Warn("audio device init failed, continuing video-only")
		} else {
			defer audioDevice.Close()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	monitor := diagnostics.NewMonitor(120)
	player.SetDecodeHook(monitor.RecordDecode)

	player.Start(ctx)

	w, h := win.Size()
	player.SetViewport(w, h)

	return runRenderLoop(ctx, player, win, monitor)
}

// runRenderLoop is the main-thread game loop (teacher's runGameLoop):
// events, a video-refresh tick, and a present, paced to targetFPS while the
// sync scheduler's own remainingTime still governs when a new frame is
// actually due.
func runRenderLoop(ctx context.Context, player *engine.PlayerState, win *platform.Window, monitor *diagnostics.Monitor) int {
	tracker := platform.NewKeyPressTracker()
	frameInterval := time.Second / targetFPS

	var scaler codecfacade.Scaler
	defer func() {
		if scaler != nil {
			scaler.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			return 0
		}
		if player.AutoExit() && player.Finished() {
			return 0
		}
		if !platform.PumpEvents(&tracker, player, win) {
			return 0
		}

		remaining := float64(frameInterval) / float64(time.Second)
		frame := player.VideoRefresh(&remaining)
		if frame != nil && frame.Ref != nil {
			renderStart := time.Now()
			if err := presentFrame(&scaler, frame, win); err != nil {
				return 1
			}
			monitor.RecordRender(time.Since(renderStart))
		}

		sleep := time.Duration(remaining * float64(time.Second))
		if sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

// presentFrame lazily (re)builds the Scaler to match the decoded picture's
// source format/size, scales to packed RGBA, and uploads it to the window.
func presentFrame(scaler *codecfacade.Scaler, frame *engine.Frame, win *platform.Window) error {
	if *scaler == nil {
		s, err := codecfacade.NewScaler(frame.Width, frame.Height, frame.PixelFormat)
		if err != nil {
			return err
		}
		*scaler = s
	}
	rgba, stride, err := (*scaler).Scale(frame.Ref)
	if err != nil {
		return err
	}
	return win.PresentRGBA(rgba, stride, frame.Width, frame.Height)
}
