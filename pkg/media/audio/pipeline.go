// Package audio implements the audio capture/playback pipeline of
// SPEC_FULL.md §4.11: Opus encode/decode, SPSC ring buffers at the device
// boundary, a reordering jitter buffer on playback, and an echo-cancellation
// render-reference hook fed only from the output callback. Grounded on
// pkg/rtp/h264.go's processor-with-callback shape (OnFrame here becomes
// Playback.OnPacket) and pkg/bridge/pacer.go's ring/drain-on-a-timer idiom.
package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zfogg/ascii-chat-core/pkg/protocol"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
)

// EchoCanceller optionally removes the far-end signal (the render
// reference) from a near-end capture buffer before encoding. Concrete AEC
// DSP is out of scope per spec.md's webcam/PortAudio driver-specifics
// Non-goal; this is the integration point a real implementation plugs into.
type EchoCanceller interface {
	// UpdateRenderReference is called only from the playback output
	// callback (never from the decode path, per §4.11's invariant), with
	// the exact samples about to be played out.
	UpdateRenderReference(samples []float32)
	// Process removes the render reference's estimated echo from capture
	// samples in place.
	Process(capture []float32)
}

// Capture drains the capture ring buffer, packs 20 ms Opus frames, and
// posts them to the session transport (§4.11's capture side).
type Capture struct {
	ring    *Ring
	enc     *Encoder
	t       transport.Transport
	logger  *slog.Logger
	aec     EchoCanceller
	seq     uint32
	tickerD time.Duration
}

// NewCapture constructs a capture pipeline over ring, sending encoded
// frames on t. aec may be nil to disable echo cancellation.
func NewCapture(ring *Ring, enc *Encoder, t transport.Transport, aec EchoCanceller, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{ring: ring, enc: enc, t: t, aec: aec, logger: logger, tickerD: FrameMs * time.Millisecond}
}

// WriteSamples feeds microphone samples into the capture ring; this is the
// input device callback's only job, per §4.11's SPSC invariant.
func (c *Capture) WriteSamples(samples []float32) {
	c.ring.Write(samples)
}

// Run drains one FrameSamples-sized chunk every FrameMs and transmits it,
// until ctx is cancelled or the transport fails.
func (c *Capture) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.tickerD)
	defer ticker.Stop()

	buf := make([]float32, FrameSamples)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if c.ring.Available() < FrameSamples {
				continue // not enough samples buffered yet; wait for the next tick
			}
			c.ring.Read(buf)
			if c.aec != nil {
				c.aec.Process(buf)
			}

			data, err := c.enc.EncodeFrame(buf)
			if err != nil {
				c.logger.Warn("opus encode failed, dropping frame", "error", err)
				continue
			}

			msg := protocol.AudioOpus{
				Sequence:   c.seq,
				SampleRate: SampleRate,
				FrameMs:    FrameMs,
				FrameSizes: []uint16{uint16(len(data))},
				OpusData:   data,
			}
			c.seq++

			if err := c.t.Send(msg.Kind(), msg.Encode()); err != nil {
				return err
			}
		}
	}
}

// Playback decodes incoming AudioOpus packets through a jitter buffer and
// exposes Pull for the output device callback (§4.11's playback side).
type Playback struct {
	dec    *Decoder
	jb     *JitterBuffer
	logger *slog.Logger
	aec    EchoCanceller

	mu         sync.Mutex
	lastPulled []float32
}

// NewPlayback constructs a playback pipeline releasing frames within
// margin of their target sequence, using strategy on underrun.
func NewPlayback(dec *Decoder, margin time.Duration, strategy UnderrunStrategy, aec EchoCanceller, logger *slog.Logger) *Playback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Playback{
		dec:    dec,
		jb:     NewJitterBuffer(margin, strategy, 0),
		aec:    aec,
		logger: logger,
	}
}

// OnPacket decodes one incoming AudioOpus packet and pushes it into the
// jitter buffer, keyed by its wire sequence number. Intended as a
// pkg/dispatch.Handler.
func (p *Playback) OnPacket(kind protocol.Kind, payload []byte) {
	msg, err := protocol.DecodeAudioOpus(payload)
	if err != nil {
		p.logger.Warn("malformed audio packet, dropping", "error", err)
		return
	}
	samples, err := p.dec.DecodeFrame(msg.OpusData)
	if err != nil {
		p.logger.Warn("opus decode failed, dropping frame", "error", err)
		return
	}
	p.jb.Push(msg.Sequence, samples)
}

// Pull is called by the output device callback once per FrameMs tick. It
// updates the AEC render reference (the only place that update may happen,
// per §4.11) and returns the next frame to play.
func (p *Playback) Pull() []float32 {
	frame := p.jb.Pull()
	if p.aec != nil {
		p.aec.UpdateRenderReference(frame)
	}
	p.mu.Lock()
	p.lastPulled = frame
	p.mu.Unlock()
	return frame
}

// UnderrunCount exposes the jitter buffer's running underrun total for
// rate-limited logging (§4.11).
func (p *Playback) UnderrunCount() int64 {
	return p.jb.UnderrunCount()
}
