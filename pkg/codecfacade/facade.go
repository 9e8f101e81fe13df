package codecfacade

/*
#cgo pkg-config: libavformat libavcodec libavutil libswscale libswresample

#include <stdlib.h>
#include <string.h>
#include <libavformat/avformat.h>
#include <libavcodec/avcodec.h>
#include <libavutil/imgutils.h>
#include <libavutil/opt.h>
#include <libswscale/swscale.h>
#include <libswresample/swresample.h>
#include <libavutil/log.h>

// openInputCtx opens the container and resolves stream info; the per-stream
// decoder is opened separately via openDecoderCtx so that video and audio
// can be opened independently and closed independently.
static int openInputCtx(const char *url, AVFormatContext **fmt) {
    av_log_set_level(AV_LOG_ERROR);
    *fmt = NULL;
    if (avformat_open_input(fmt, url, NULL, NULL) != 0) {
        return -1;
    }
    if (avformat_find_stream_info(*fmt, NULL) < 0) {
        return -2;
    }
    return 0;
}

// priorityDecoders fills candidates (caller-allocated, cap entries of
// length 63) with a hardware-then-software search order for the given codec
// id, mirroring the teacher's per-codec switch. Returns the number filled.
static int priorityDecoders(enum AVCodecID id, char candidates[][64], int cap) {
    int n = 0;
#define ADD(name) do { if (n < cap) { strncpy(candidates[n], name, 63); n++; } } while (0)
    switch (id) {
    case AV_CODEC_ID_HEVC:
#ifdef __linux__
        ADD("hevc_rkmpp"); ADD("hevc_vaapi"); ADD("hevc_nvdec");
#endif
#ifdef __APPLE__
        ADD("hevc_videotoolbox");
#endif
        ADD("hevc");
        break;
    case AV_CODEC_ID_H264:
#ifdef __linux__
        ADD("h264_rkmpp"); ADD("h264_vaapi"); ADD("h264_nvdec"); ADD("h264_cuvid");
#endif
#ifdef __APPLE__
        ADD("h264_videotoolbox");
#endif
        ADD("h264");
        break;
    case AV_CODEC_ID_VP9:
#ifdef __linux__
        ADD("vp9_v4l2m2m"); ADD("vp9_vaapi");
#endif
        ADD("vp9");
        break;
    case AV_CODEC_ID_VP8:
#ifdef __linux__
        ADD("vp8_v4l2m2m"); ADD("vp8_vaapi");
#endif
        ADD("vp8");
        break;
    case AV_CODEC_ID_AV1:
#ifdef __linux__
        ADD("av1_v4l2m2m"); ADD("av1_vaapi");
#endif
        ADD("av1");
        break;
    case AV_CODEC_ID_MPEG2VIDEO:
#ifdef __linux__
        ADD("mpeg2_vaapi");
#endif
        ADD("mpeg2video"); ADD("mpeg2");
        break;
    case AV_CODEC_ID_MPEG4:
#ifdef __linux__
        ADD("mpeg4_v4l2m2m"); ADD("mpeg4_vaapi");
#endif
        ADD("mpeg4");
        break;
    default:
        break;
    }
#undef ADD
    return n;
}

// openDecoderCtx tries the priority list for codecpar->codec_id, falling
// back to avcodec_find_decoder, exactly the teacher's init_decoder sequence
// generalized to any stream (not only the first video stream).
static int openDecoderCtx(AVCodecParameters *par, AVCodecContext **ctxOut, char *chosenName, int chosenNameCap) {
    char candidates[16][64];
    int n = priorityDecoders(par->codec_id, candidates, 16);

    for (int i = 0; i < n; i++) {
        const AVCodec *cand = avcodec_find_decoder_by_name(candidates[i]);
        if (!cand || cand->id != par->codec_id) {
            continue;
        }
        AVCodecContext *ctx = avcodec_alloc_context3(cand);
        if (!ctx) {
            continue;
        }
        avcodec_parameters_to_context(ctx, par);
        ctx->thread_type = FF_THREAD_FRAME;
        ctx->thread_count = 0;
        if (avcodec_open2(ctx, cand, NULL) >= 0) {
            *ctxOut = ctx;
            if (chosenName && chosenNameCap > 0) {
                strncpy(chosenName, cand->name, chosenNameCap - 1);
            }
            return 0;
        }
        avcodec_free_context(&ctx);
    }

    const AVCodec *def = avcodec_find_decoder(par->codec_id);
    if (!def) {
        return -1;
    }
    AVCodecContext *ctx = avcodec_alloc_context3(def);
    if (!ctx) {
        return -2;
    }
    avcodec_parameters_to_context(ctx, par);
    ctx->thread_type = FF_THREAD_FRAME;
    ctx->thread_count = 0;
    if (avcodec_open2(ctx, def, NULL) < 0) {
        avcodec_free_context(&ctx);
        return -3;
    }
    *ctxOut = ctx;
    if (chosenName && chosenNameCap > 0) {
        strncpy(chosenName, def->name, chosenNameCap - 1);
    }
    return 0;
}
*/
import "C"

import (
	"io"
	"unsafe"

	"github.com/pkg/errors"
)

// input is the cgo-backed Input implementation.
type input struct {
	fmtCtx  *C.AVFormatContext
	info    InputInfo
	paused  bool
}

// OpenInput opens a media file or URL and resolves stream metadata. It does
// not open any decoder; callers open the streams they actually want via
// OpenDecoder.
func OpenInput(url string) (Input, error) {
	cURL := C.CString(url)
	defer C.free(unsafe.Pointer(cURL))

	in := &input{}
	if ret := C.openInputCtx(cURL, &in.fmtCtx); ret != 0 {
		return nil, errors.Errorf("open input %q failed (code=%d)", url, int(ret))
	}

	nbStreams := int(in.fmtCtx.nb_streams)
	streams := make([]StreamInfo, 0, nbStreams)
	streamsArr := (*[1 << 16]*C.AVStream)(unsafe.Pointer(in.fmtCtx.streams))
	for i := 0; i < nbStreams; i++ {
		st := streamsArr[i]
		par := st.codecpar
		var kind MediaKind
		switch par.codec_type {
		case C.AVMEDIA_TYPE_VIDEO:
			kind = MediaVideo
		case C.AVMEDIA_TYPE_AUDIO:
			kind = MediaAudio
		default:
			continue
		}
		codec := C.avcodec_find_decoder(par.codec_id)
		name := "unknown"
		if codec != nil {
			name = C.GoString(codec.name)
		}
		fr := C.av_guess_frame_rate(in.fmtCtx, st, nil)
		streams = append(streams, StreamInfo{
			Index:     i,
			Kind:      kind,
			CodecName: name,
			TimeBase:  Rational{Num: int(st.time_base.num), Den: int(st.time_base.den)},
			FrameRate: Rational{Num: int(fr.num), Den: int(fr.den)},
			Disposition: Disposition{
				AttachedPic: st.disposition&C.AV_DISPOSITION_ATTACHED_PIC != 0,
			},
		})
	}

	flags := FormatFlags{
		Discontinuous: in.fmtCtx.iformat.flags&C.AVFMT_TS_DISCONT != 0,
		NoBinSearch:   in.fmtCtx.iformat.flags&C.AVFMT_NOBINSEARCH != 0,
		NoByteSeek:    in.fmtCtx.iformat.flags&C.AVFMT_NO_BYTE_SEEK != 0,
		NoGenSearch:   in.fmtCtx.iformat.flags&C.AVFMT_NOGENSEARCH != 0,
	}

	in.info = InputInfo{
		FormatName: C.GoString(in.fmtCtx.iformat.name),
		URL:        url,
		DurationUs: int64(in.fmtCtx.duration),
		Streams:    streams,
		Flags:      flags,
	}
	return in, nil
}

func (in *input) Info() InputInfo { return in.info }

func (in *input) ReadFrame() (*Packet, error) {
	var pkt C.AVPacket
	ret := C.av_read_frame(in.fmtCtx, &pkt)
	if ret == C.AVERROR_EOF {
		return nil, io.EOF
	}
	if ret < 0 {
		return nil, errors.Errorf("av_read_frame failed (code=%d)", int(ret))
	}
	ref := &cPacketRef{pkt: pkt}
	return &Packet{
		StreamIndex: int(pkt.stream_index),
		PTS:         int64(pkt.pts),
		DTS:         int64(pkt.dts),
		Duration:    int64(pkt.duration),
		Ref:         ref,
	}, nil
}

func (in *input) Seek(streamIndex int, min, target, max int64, flags SeekFlags) error {
	var cflags C.int
	if flags&SeekByte != 0 {
		cflags |= C.AVSEEK_FLAG_BYTE
	}
	if flags&SeekBackward != 0 {
		cflags |= C.AVSEEK_FLAG_BACKWARD
	}
	if flags&SeekAny != 0 {
		cflags |= C.AVSEEK_FLAG_ANY
	}
	ret := C.avformat_seek_file(in.fmtCtx, C.int(streamIndex), C.int64_t(min), C.int64_t(target), C.int64_t(max), cflags)
	if ret < 0 {
		return errors.Errorf("avformat_seek_file failed (code=%d)", int(ret))
	}
	return nil
}

func (in *input) Pause() error {
	if in.paused {
		return nil
	}
	in.paused = true
	if C.av_read_pause(in.fmtCtx) < 0 {
		return errors.New("av_read_pause failed")
	}
	return nil
}

func (in *input) Play() error {
	if !in.paused {
		return nil
	}
	in.paused = false
	if C.av_read_play(in.fmtCtx) < 0 {
		return errors.New("av_read_play failed")
	}
	return nil
}

func (in *input) Close() error {
	if in.fmtCtx != nil {
		C.avformat_close_input(&in.fmtCtx)
	}
	return nil
}

// cPacketRef owns one AVPacket's reference count.
type cPacketRef struct {
	pkt  C.AVPacket
	data []byte
}

func (r *cPacketRef) Bytes() []byte {
	if r.data == nil && r.pkt.size > 0 {
		r.data = C.GoBytes(unsafe.Pointer(r.pkt.data), r.pkt.size)
	}
	return r.data
}

func (r *cPacketRef) Release() {
	C.av_packet_unref(&r.pkt)
}

// decoder is the cgo-backed Decoder for one stream.
type decoder struct {
	ctx       *C.AVCodecContext
	frame     *C.AVFrame
	chosenName string
}

// OpenDecoder opens a decoder for the given stream index of this input.
func (in *input) OpenDecoder(streamIndex int) (Decoder, error) {
	streamsArr := (*[1 << 16]*C.AVStream)(unsafe.Pointer(in.fmtCtx.streams))
	st := streamsArr[streamIndex]

	var ctx *C.AVCodecContext
	nameBuf := make([]byte, 64)
	ret := C.openDecoderCtx(st.codecpar, &ctx, (*C.char)(unsafe.Pointer(&nameBuf[0])), C.int(len(nameBuf)))
	if ret != 0 {
		return nil, errors.Errorf("open decoder for stream %d failed (code=%d)", streamIndex, int(ret))
	}
	return &decoder{
		ctx:        ctx,
		frame:      C.av_frame_alloc(),
		chosenName: C.GoString((*C.char)(unsafe.Pointer(&nameBuf[0]))),
	}, nil
}

func (d *decoder) SendPacket(pkt *Packet) DecodeResult {
	var cpkt *C.AVPacket
	if pkt != nil {
		if ref, ok := pkt.Ref.(*cPacketRef); ok {
			cpkt = &ref.pkt
		}
	}
	ret := C.avcodec_send_packet(d.ctx, cpkt)
	switch {
	case ret == 0:
		return DecodeOK
	case ret == C.int(-C.EAGAIN):
		return DecodeTryAgain
	case ret == C.AVERROR_EOF:
		return DecodeEOF
	default:
		return DecodeTryAgain
	}
}

func (d *decoder) ReceiveFrame() (FrameRef, DecodeResult) {
	ret := C.avcodec_receive_frame(d.ctx, d.frame)
	switch {
	case ret == 0:
		out := C.av_frame_alloc()
		C.av_frame_move_ref(out, d.frame)
		isVideo := d.ctx.codec_type == C.AVMEDIA_TYPE_VIDEO
		return &cFrameRef{frame: out, isVideo: isVideo}, DecodeOK
	case ret == C.int(-C.EAGAIN):
		return nil, DecodeTryAgain
	case ret == C.AVERROR_EOF:
		return nil, DecodeEOF
	default:
		return nil, DecodeTryAgain
	}
}

func (d *decoder) Flush() {
	C.avcodec_flush_buffers(d.ctx)
}

func (d *decoder) Close() {
	if d.frame != nil {
		C.av_frame_free(&d.frame)
	}
	if d.ctx != nil {
		C.avcodec_free_context(&d.ctx)
	}
}

// cFrameRef wraps one decoded AVFrame.
type cFrameRef struct {
	frame   *C.AVFrame
	isVideo bool
}

func (f *cFrameRef) IsVideo() bool      { return f.isVideo }
func (f *cFrameRef) Width() int         { return int(f.frame.width) }
func (f *cFrameRef) Height() int        { return int(f.frame.height) }
func (f *cFrameRef) PixelFormat() int32 { return int32(f.frame.format) }
func (f *cFrameRef) SampleAspectRatio() Rational {
	return Rational{Num: int(f.frame.sample_aspect_ratio.num), Den: int(f.frame.sample_aspect_ratio.den)}
}
func (f *cFrameRef) NumSamples() int          { return int(f.frame.nb_samples) }
func (f *cFrameRef) SampleRate() int          { return int(f.frame.sample_rate) }
func (f *cFrameRef) Channels() int            { return int(f.frame.channels) }
func (f *cFrameRef) SampleFormat() int32      { return int32(f.frame.format) }
func (f *cFrameRef) PktDTS() int64            { return int64(f.frame.pkt_dts) }
func (f *cFrameRef) BestEffortTimestamp() int64 { return int64(f.frame.best_effort_timestamp) }
func (f *cFrameRef) Release() {
	C.av_frame_free(&f.frame)
}

// scaler is the cgo-backed Scaler (sws_scale to RGBA).
type scaler struct {
	sws    *C.struct_SwsContext
	w, h   int
	buf    *C.uint8_t
	dst    *C.AVFrame
}

// NewScaler allocates a converter from srcPixFmt at (w,h) to packed RGBA.
func NewScaler(w, h int, srcPixFmt int32) (Scaler, error) {
	sws := C.sws_getContext(C.int(w), C.int(h), C.enum_AVPixelFormat(srcPixFmt),
		C.int(w), C.int(h), C.AV_PIX_FMT_RGBA, C.SWS_BILINEAR, nil, nil, nil)
	if sws == nil {
		return nil, errors.New("sws_getContext failed")
	}
	dst := C.av_frame_alloc()
	numBytes := C.av_image_get_buffer_size(C.AV_PIX_FMT_RGBA, C.int(w), C.int(h), 1)
	buf := (*C.uint8_t)(C.av_malloc(C.size_t(numBytes)))
	C.av_image_fill_arrays(&dst.data[0], &dst.linesize[0], buf, C.AV_PIX_FMT_RGBA, C.int(w), C.int(h), 1)
	return &scaler{sws: sws, w: w, h: h, buf: buf, dst: dst}, nil
}

func (s *scaler) Scale(in FrameRef) ([]byte, int, error) {
	cf, ok := in.(*cFrameRef)
	if !ok {
		return nil, 0, errors.New("scaler: not a codecfacade frame")
	}
	C.sws_scale(s.sws, &cf.frame.data[0], &cf.frame.linesize[0], 0, C.int(s.h), &s.dst.data[0], &s.dst.linesize[0])
	stride := int(s.dst.linesize[0])
	out := C.GoBytes(unsafe.Pointer(s.dst.data[0]), C.int(stride*s.h))
	return out, stride, nil
}

func (s *scaler) Close() {
	if s.buf != nil {
		C.av_free(unsafe.Pointer(s.buf))
	}
	if s.dst != nil {
		C.av_frame_free(&s.dst)
	}
	if s.sws != nil {
		C.sws_freeContext(s.sws)
	}
}

// resampler is the cgo-backed Resampler (swr_convert to the device format).
type resampler struct {
	swr     *C.struct_SwrContext
	srcRate int
	dstRate int
	dstCh   int
	dstFmt  int32
}

// NewResampler builds a converter to the fixed device format.
func NewResampler(srcRate, srcCh int, srcFmt int32, dstRate, dstCh int, dstFmt int32) (Resampler, error) {
	swr := C.swr_alloc_set_opts(nil,
		cChannelLayoutFor(dstCh), C.enum_AVSampleFormat(dstFmt), C.int(dstRate),
		cChannelLayoutFor(srcCh), C.enum_AVSampleFormat(srcFmt), C.int(srcRate),
		0, nil)
	if swr == nil {
		return nil, errors.New("swr_alloc_set_opts failed")
	}
	if C.swr_init(swr) < 0 {
		return nil, errors.New("swr_init failed")
	}
	return &resampler{swr: swr, srcRate: srcRate, dstRate: dstRate, dstCh: dstCh, dstFmt: dstFmt}, nil
}

// Convert resamples in to the destination format, stretching or compressing
// toward wantedSamples via swr_set_compensation when the caller's drift
// correction (§4.8's synchronizeAudio) asked for a sample count different
// from what the decoder actually produced — matching the source's
// audio_decode_frame compensation call.
func (r *resampler) Convert(in FrameRef, wantedSamples int) ([]byte, error) {
	cf, ok := in.(*cFrameRef)
	if !ok {
		return nil, errors.New("resampler: not a codecfacade frame")
	}
	nbSamples := int(cf.frame.nb_samples)
	if wantedSamples != nbSamples && r.srcRate > 0 {
		sampleDelta := (wantedSamples - nbSamples) * r.dstRate / r.srcRate
		compensationDistance := wantedSamples * r.dstRate / r.srcRate
		if C.swr_set_compensation(r.swr, C.int(sampleDelta), C.int(compensationDistance)) < 0 {
			return nil, errors.New("swr_set_compensation failed")
		}
	}
	maxOut := C.swr_get_out_samples(r.swr, cf.frame.nb_samples)
	bytesPerSample := sampleFormatSize(r.dstFmt)
	outBuf := make([]byte, int(maxOut)*r.dstCh*bytesPerSample)
	outPtr := (*C.uint8_t)(unsafe.Pointer(&outBuf[0]))
	n := C.swr_convert(r.swr, &outPtr, maxOut, &cf.frame.data[0], cf.frame.nb_samples)
	if n < 0 {
		return nil, errors.New("swr_convert failed")
	}
	return outBuf[:int(n)*r.dstCh*bytesPerSample], nil
}

func (r *resampler) Close() {
	if r.swr != nil {
		C.swr_free(&r.swr)
	}
}

// AVSampleFormatFor maps the engine's device-format enum to the interleaved
// AV_SAMPLE_FMT id swr_alloc_set_opts needs as a destination format. The two
// enums don't share numeric values (engine's SampleFormatF32=4 is
// AV_SAMPLE_FMT_FLT=3, SampleFormatS64=3 is AV_SAMPLE_FMT_S64=10, etc.), so
// this must be an explicit table, not a cast.
func AVSampleFormatFor(fmt SampleFormat) int32 {
	switch fmt {
	case SampleFormatU8:
		return int32(C.AV_SAMPLE_FMT_U8)
	case SampleFormatS16:
		return int32(C.AV_SAMPLE_FMT_S16)
	case SampleFormatS32:
		return int32(C.AV_SAMPLE_FMT_S32)
	case SampleFormatS64:
		return int32(C.AV_SAMPLE_FMT_S64)
	case SampleFormatF32:
		return int32(C.AV_SAMPLE_FMT_FLT)
	case SampleFormatF64:
		return int32(C.AV_SAMPLE_FMT_DBL)
	default:
		return int32(C.AV_SAMPLE_FMT_S16)
	}
}

func sampleFormatSize(fmt int32) int {
	switch fmt {
	case C.AV_SAMPLE_FMT_U8:
		return 1
	case C.AV_SAMPLE_FMT_S16:
		return 2
	case C.AV_SAMPLE_FMT_S32, C.AV_SAMPLE_FMT_FLT:
		return 4
	case C.AV_SAMPLE_FMT_S64, C.AV_SAMPLE_FMT_DBL:
		return 8
	default:
		return 2
	}
}

func cChannelLayoutFor(channels int) C.int64_t {
	switch channels {
	case 1:
		return C.AV_CH_LAYOUT_MONO
	default:
		return C.AV_CH_LAYOUT_STEREO
	}
}
