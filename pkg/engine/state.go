package engine

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"mediaengine/pkg/codecfacade"
	"mediaengine/pkg/config"
	"mediaengine/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const avTimeBase = 1000000

const (
	videoFrameQueueCapacity = 4
	audioFrameQueueCapacity = 8
	videoKeepLast           = true
	audioKeepLast           = false
)

func isNaNFloat(f float64) bool { return math.IsNaN(f) }
func nanFloat() float64         { return math.NaN() }
func zapErr(err error) zap.Field { return zap.Error(err) }

// StreamContext is the per-stream decode state (§3 "DecoderContext"),
// bundling the stream's decoder with its upstream PacketQueue/downstream
// FrameQueue and the bookkeeping the decode loop needs across calls.
type StreamContext struct {
	Info    codecfacade.StreamInfo
	Decoder codecfacade.Decoder
	Packets *PacketQueue
	Frames  *FrameQueue

	abort *atomic.Bool

	mu              sync.Mutex
	pktSerial       int64
	finishedSerial  int64
	nextPTS         float64
	nextPTSTimeBase codecfacade.Rational
	eof             bool
	pendingPacket   *Packet
}

func newStreamContext(info codecfacade.StreamInfo, dec codecfacade.Decoder) *StreamContext {
	abort := atomic.NewBool(false)
	pq := NewPacketQueue(abort)
	cap := audioFrameQueueCapacity
	keepLast := audioKeepLast
	if info.Kind == codecfacade.MediaVideo {
		cap = videoFrameQueueCapacity
		keepLast = videoKeepLast
	}
	fq := NewFrameQueue(cap, keepLast, abort, pq)
	return &StreamContext{Info: info, Decoder: dec, Packets: pq, Frames: fq, abort: abort}
}

func (s *StreamContext) stop() {
	s.abort.Store(true)
	s.Packets.Wake()
	s.Frames.Wake()
}

// hasEnoughPackets implements the reader's per-stream backpressure
// heuristic (§4.4 step 5).
func (s *StreamContext) hasEnoughPackets(timeBase codecfacade.Rational) bool {
	if s.Info.Disposition.AttachedPic {
		return true
	}
	n := s.Packets.NbPackets()
	if n <= 25 {
		return false
	}
	durationSeconds := timeBase.ToSeconds(s.Packets.Duration())
	return durationSeconds > 1.0
}

// PlayerState owns the reader, the two decoders, the three clocks, the seek
// mailbox, settings, viewport and master-sync selection (§3).
type PlayerState struct {
	cfg *config.Config
	log *telemetry.Logger
	met *telemetry.Metrics

	sessionID string

	input codecfacade.Input
	video *StreamContext
	audio *StreamContext

	videoClock    *Clock
	audioClock    *Clock
	externalClock *Clock
	syncType      SyncType
	realtime      bool

	seekMu  sync.Mutex
	seekReq SeekRequest

	pauseMu    sync.Mutex
	paused     bool
	lastPaused bool

	frameTimer       float64
	forceRefresh     bool
	maxFrameDuration float64

	frameDropsEarly atomic.Int64
	frameDropsLate  atomic.Int64

	audioDiffAvgCount int
	audioDiffCum      float64

	viewportMu sync.Mutex
	viewportW  int
	viewportH  int

	stop         *atomic.Bool
	resumeSignal chan struct{}
	eg           *errgroup.Group
	egCtx        context.Context
	cancel       context.CancelFunc

	readerEOF   bool
	stopRequest bool

	audioCallback *audioCallbackState

	onDecode func(time.Duration)
}

// SetDecodeHook registers a callback invoked after every decodeOne call with
// its wall-clock duration, letting a host-side diagnostics monitor collect
// decode timing without the engine package depending on it.
func (p *PlayerState) SetDecodeHook(fn func(time.Duration)) { p.onDecode = fn }

// Open opens the input, resolves the audio/video streams it will play, and
// prepares (but does not yet start) the pipeline. At most one of video or
// audio may be absent.
func Open(url string, cfg *config.Config, log *telemetry.Logger, met *telemetry.Metrics) (*PlayerState, error) {
	in, err := codecfacade.OpenInput(url)
	if err != nil {
		return nil, errors.Wrapf(err, "open %q", url)
	}

	p := &PlayerState{
		cfg:          cfg,
		log:          log,
		met:          met,
		sessionID:    uuid.NewString(),
		input:        in,
		stop:         atomic.NewBool(false),
		resumeSignal: make(chan struct{}, 1),
		maxFrameDuration: 10.0,
	}

	info := in.Info()
	p.realtime = isRealTime(info, cfg.RealtimeSchemes)
	if info.Flags.Discontinuous {
		p.maxFrameDuration = 10.0
	} else {
		p.maxFrameDuration = 3600.0
	}

	for _, st := range info.Streams {
		if st.Kind == codecfacade.MediaVideo && p.video == nil && !cfg.VideoDisabled {
			dec, err := in.OpenDecoder(st.Index)
			if err != nil {
				log.Warn("open video decoder failed", zapErr(err))
				continue
			}
			p.video = newStreamContext(st, dec)
		}
		if st.Kind == codecfacade.MediaAudio && p.audio == nil && !cfg.AudioDisabled {
			dec, err := in.OpenDecoder(st.Index)
			if err != nil {
				log.Warn("open audio decoder failed", zapErr(err))
				continue
			}
			p.audio = newStreamContext(st, dec)
		}
	}

	if p.video == nil && p.audio == nil {
		in.Close()
		return nil, errors.New("no playable audio or video stream")
	}

	p.videoClock = NewClock(func() int64 {
		if p.video == nil {
			return -1
		}
		return p.video.Packets.Serial()
	})
	p.audioClock = NewClock(func() int64 {
		if p.audio == nil {
			return -1
		}
		return p.audio.Packets.Serial()
	})
	p.externalClock = NewClock(nil)

	p.syncType = resolveSyncTypePreference(cfg.SyncTypeDefault)

	if p.video != nil {
		p.video.Packets.Start()
	}
	if p.audio != nil {
		p.audio.Packets.Start()
	}

	if p.audio != nil {
		p.audioCallback = newAudioCallbackState(p)
	}

	return p, nil
}

func resolveSyncTypePreference(v string) SyncType {
	switch strings.ToLower(v) {
	case "video":
		return SyncVideoMaster
	case "external":
		return SyncExternalClock
	default:
		return SyncAudioMaster
	}
}

// Start launches the reader and decoder goroutines under an errgroup so an
// init-fatal error in any of them cancels the others (SPEC_FULL.md domain
// stack: golang.org/x/sync/errgroup, replacing the source's raw thread
// create/join).
func (p *PlayerState) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	eg, egCtx := errgroup.WithContext(ctx)
	p.eg = eg
	p.egCtx = egCtx

	eg.Go(func() error { return p.readerLoop(egCtx) })
	if p.video != nil {
		eg.Go(func() error { return p.decodeLoop(egCtx, p.video, p.videoClock) })
	}
	if p.audio != nil {
		eg.Go(func() error { return p.decodeLoop(egCtx, p.audio, p.audioClock) })
	}
}

// Close requests every goroutine to stop and waits for them to unwind.
func (p *PlayerState) Close() error {
	p.stop.Store(true)
	if p.cancel != nil {
		p.cancel()
	}
	if p.video != nil {
		p.video.stop()
	}
	if p.audio != nil {
		p.audio.stop()
	}
	p.wakeReader()

	var err error
	if p.eg != nil {
		err = p.eg.Wait()
	}
	if p.video != nil {
		p.video.Decoder.Close()
	}
	if p.audio != nil {
		p.audio.Decoder.Close()
	}
	if p.audioCallback != nil {
		p.audioCallback.Close()
	}
	if p.input != nil {
		p.input.Close()
	}
	_ = p.log.Sync()
	return err
}

func (p *PlayerState) wakeReader() {
	select {
	case p.resumeSignal <- struct{}{}:
	default:
	}
}

// SetPaused toggles pause for every owned clock and the reader's pause
// transition (§4.4 step 3).
func (p *PlayerState) SetPaused(paused bool) {
	p.pauseMu.Lock()
	p.paused = paused
	p.pauseMu.Unlock()

	if paused {
		p.frameTimer += monotonicSeconds() - p.videoClock.lastUpdated
	}
	p.externalClock.SetPaused(paused)
	p.videoClock.SetPaused(paused)
	p.audioClock.SetPaused(paused)
	p.wakeReader()
}

// TogglePause flips the paused flag.
func (p *PlayerState) TogglePause() { p.SetPaused(!p.Paused()) }

// Paused reports the current pause state.
func (p *PlayerState) Paused() bool {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	return p.paused
}

// stepOnce lets a paused user see the new position after a seek by
// unpausing playback and forcing a refresh. Playback stays unpaused
// afterwards; it does not stop again after one frame.
func (p *PlayerState) stepOnce() {
	p.SetPaused(false)
	p.forceRefresh = true
}

// SetViewport records the current window size and forces a re-render (§6
// "Host UI": window resize). Letterboxing itself is done by the platform
// window from its own size.
func (p *PlayerState) SetViewport(w, h int) {
	p.viewportMu.Lock()
	p.viewportW, p.viewportH = w, h
	p.viewportMu.Unlock()
	p.forceRefresh = true
}

func (p *PlayerState) viewport() (int, int) {
	p.viewportMu.Lock()
	defer p.viewportMu.Unlock()
	return p.viewportW, p.viewportH
}

// AutoExit reports the configured auto_exit policy (§6 "CLI surface").
func (p *PlayerState) AutoExit() bool { return p.cfg.AutoExit }

// Finished reports whether the input has hit EOF, every stream has drained
// its packet queue, and both frame queues are empty — the condition under
// which auto_exit should end the process cleanly (§6 "CLI surface").
func (p *PlayerState) Finished() bool {
	if !p.readerEOF || !p.allStreamsDrained() {
		return false
	}
	for _, sc := range p.streams() {
		if sc.Frames.Remaining() > 0 {
			return false
		}
	}
	return true
}

// isRealTime resolves Open Question #1: the fixed scheme/format list, plus
// whatever the caller's config appended via REALTIME_SCHEMES.
func isRealTime(info codecfacade.InputInfo, schemes []string) bool {
	name := strings.ToLower(info.FormatName)
	for _, s := range schemes {
		s = strings.ToLower(s)
		if strings.HasSuffix(s, ":") {
			if strings.HasPrefix(strings.ToLower(info.URL), s) {
				return true
			}
			continue
		}
		if name == s {
			return true
		}
	}
	return false
}

// timeInRange reports whether timeInSeconds is at or before the end of the
// configured play window, StartTime + Duration (§4.4 step 8); times before
// StartTime are not rejected. It fixes the dimensional bug
// flagged in spec.md §9 (Open Question #2): both sides are compared in
// seconds, not pts_time/AV_TIME_BASE against a raw setting.
func (p *PlayerState) timeInRange(timeInSeconds float64) bool {
	if p.cfg.Duration <= 0 {
		return true
	}
	startSeconds := p.cfg.StartTime.Seconds()
	durationSeconds := p.cfg.Duration.Seconds()
	return timeInSeconds <= startSeconds+durationSeconds
}
