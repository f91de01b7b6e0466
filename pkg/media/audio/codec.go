package audio

import (
	"gopkg.in/hraban/opus.v2"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
)

const (
	// SampleRate is the fixed rate named in §4.11 ("a fixed-rate (48 kHz)
	// mono float32 stream").
	SampleRate = 48000
	// Channels is fixed at mono per §4.11.
	Channels = 1
	// FrameMs is the wire frame duration named in §4.11.
	FrameMs = 20
	// FrameSamples is 20 ms at 48 kHz (960 samples), per §4.11.
	FrameSamples = SampleRate * FrameMs / 1000
	// maxOpusFrameBytes bounds a single encoded 20 ms frame comfortably
	// above Opus's practical worst case at any bitrate this core uses.
	maxOpusFrameBytes = 4000
)

// Encoder wraps gopkg.in/hraban/opus.v2 for the capture pipeline's 20 ms
// float32 frames (§4.11's capture-side Opus packing).
type Encoder struct {
	enc *opus.Encoder
}

// NewEncoder constructs an Opus encoder tuned for voice (VoIP application
// profile trades bandwidth for low-latency perceptual quality, matching a
// conferencing workload rather than music).
func NewEncoder() (*Encoder, error) {
	enc, err := opus.NewEncoder(SampleRate, Channels, opus.AppVoIP)
	if err != nil {
		return nil, errs.Wrap(errs.KindMediaEncode, err, "create opus encoder")
	}
	return &Encoder{enc: enc}, nil
}

// EncodeFrame encodes exactly one FrameSamples-length float32 buffer into
// an Opus packet.
func (e *Encoder) EncodeFrame(pcm []float32) ([]byte, error) {
	if len(pcm) != FrameSamples {
		return nil, errs.New(errs.KindMediaEncode, "opus frame must be %d samples, got %d", FrameSamples, len(pcm))
	}
	out := make([]byte, maxOpusFrameBytes)
	n, err := e.enc.EncodeFloat32(pcm, out)
	if err != nil {
		return nil, errs.Wrap(errs.KindMediaEncode, err, "opus encode")
	}
	return out[:n], nil
}

// Decoder wraps gopkg.in/hraban/opus.v2 for the playback pipeline's Opus
// decode step (§4.11's receive-side decode).
type Decoder struct {
	dec *opus.Decoder
}

// NewDecoder constructs an Opus decoder matching NewEncoder's parameters.
func NewDecoder() (*Decoder, error) {
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, errs.Wrap(errs.KindMediaDecode, err, "create opus decoder")
	}
	return &Decoder{dec: dec}, nil
}

// DecodeFrame decodes one Opus packet into a FrameSamples-length float32
// buffer.
func (d *Decoder) DecodeFrame(opusData []byte) ([]float32, error) {
	out := make([]float32, FrameSamples)
	n, err := d.dec.DecodeFloat32(opusData, out)
	if err != nil {
		return nil, errs.Wrap(errs.KindMediaDecode, err, "opus decode")
	}
	return out[:n], nil
}
