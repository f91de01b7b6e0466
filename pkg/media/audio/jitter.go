package audio

import (
	"sync"
	"time"
)

// UnderrunStrategy selects what Pull returns when the buffer cannot
// produce the next expected frame within the target margin (§4.11).
type UnderrunStrategy int

const (
	UnderrunSilence UnderrunStrategy = iota
	UnderrunExtrapolateLastFrame
)

// JitterBuffer reassembles out-of-order Opus-decoded frames into a
// strictly ordered, contiguous stream (§4.11, §8's jitter buffer
// invariant). Frames are keyed by the AudioOpus packet's Sequence field,
// since the unreliable WebRTC data channel does not preserve arrival
// order. Grounded on the spec's own description of margin-based release;
// no pack example implements reordering jitter buffering directly, so the
// buffering/release shape here is original to this package, built from
// first principles against the stated invariant.
type JitterBuffer struct {
	mu sync.Mutex

	margin   time.Duration
	strategy UnderrunStrategy

	pending      map[uint32][]float32
	nextExpected uint32
	waitingSince time.Time
	haveWaited   bool

	lastFrame []float32

	underrunCount int64
}

// NewJitterBuffer constructs a buffer targeting the given margin (the
// maximum time §4.11 allows a reorder to resolve before an underrun is
// declared) using the given underrun strategy. startSeq is the first
// sequence number expected (ordinarily 0, the capture pipeline's first
// packet).
func NewJitterBuffer(margin time.Duration, strategy UnderrunStrategy, startSeq uint32) *JitterBuffer {
	return &JitterBuffer{
		margin:       margin,
		strategy:     strategy,
		pending:      make(map[uint32][]float32),
		nextExpected: startSeq,
	}
}

// Push buffers a decoded frame under its wire sequence number. Frames
// older than nextExpected (already released or already skipped as an
// underrun) are dropped.
func (j *JitterBuffer) Push(seq uint32, samples []float32) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if seqBefore(seq, j.nextExpected) {
		return
	}
	cp := make([]float32, len(samples))
	copy(cp, samples)
	j.pending[seq] = cp
}

// Pull is called once per playback tick (every FrameMs). It returns the
// frame for nextExpected if available; otherwise, once margin has elapsed
// since nextExpected was first awaited, it returns an underrun-strategy
// frame and advances past the gap.
func (j *JitterBuffer) Pull() []float32 {
	j.mu.Lock()
	defer j.mu.Unlock()

	if frame, ok := j.pending[j.nextExpected]; ok {
		delete(j.pending, j.nextExpected)
		j.nextExpected++
		j.haveWaited = false
		j.lastFrame = frame
		return frame
	}

	if !j.haveWaited {
		j.haveWaited = true
		j.waitingSince = time.Now()
		return j.underrunFrame()
	}

	if time.Since(j.waitingSince) >= j.margin {
		j.underrunCount++
		j.nextExpected++
		j.haveWaited = false
		return j.underrunFrame()
	}

	return j.underrunFrame()
}

func (j *JitterBuffer) underrunFrame() []float32 {
	switch j.strategy {
	case UnderrunExtrapolateLastFrame:
		if j.lastFrame != nil {
			return j.lastFrame
		}
	}
	return make([]float32, FrameSamples)
}

// UnderrunCount reports the running total of margin-expiry underruns,
// exposed so the keepalive/logging layer can rate-limit its warnings
// (§4.11: "repeated underruns are logged rate-limited").
func (j *JitterBuffer) UnderrunCount() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.underrunCount
}

// seqBefore reports whether a is strictly before b, accounting for
// uint32 wraparound (serial number arithmetic, RFC 1982 style).
func seqBefore(a, b uint32) bool {
	return int32(a-b) < 0
}
