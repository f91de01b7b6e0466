package audio

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/ascii-chat-core/pkg/protocol"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
)

func TestRingWriteReadRoundTrip(t *testing.T) {
	r := NewRing(16)
	in := []float32{1, 2, 3, 4}
	n := r.Write(in)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, r.Available())

	out := make([]float32, 4)
	got := r.Read(out)
	assert.Equal(t, 4, got)
	assert.Equal(t, in, out)
	assert.Equal(t, 0, r.Available())
}

func TestRingOverwritesOldestWhenFull(t *testing.T) {
	r := NewRing(4)
	r.Write([]float32{1, 2, 3, 4})
	r.Write([]float32{5, 6}) // overwrites 1,2

	out := make([]float32, 4)
	n := r.Read(out)
	require.Equal(t, 4, n)
	assert.Equal(t, []float32{3, 4, 5, 6}, out)
}

func TestRingReadPartialWhenUnderfilled(t *testing.T) {
	r := NewRing(16)
	r.Write([]float32{1, 2})
	out := make([]float32, 10)
	n := r.Read(out)
	assert.Equal(t, 2, n)
}

func TestJitterBufferReleasesInOrderDespiteReordering(t *testing.T) {
	jb := NewJitterBuffer(50*time.Millisecond, UnderrunSilence, 0)
	jb.Push(1, []float32{1})
	jb.Push(0, []float32{0})
	jb.Push(2, []float32{2})

	assert.Equal(t, []float32{0}, jb.Pull())
	assert.Equal(t, []float32{1}, jb.Pull())
	assert.Equal(t, []float32{2}, jb.Pull())
	assert.Equal(t, int64(0), jb.UnderrunCount())
}

func TestJitterBufferUnderrunAfterMarginExpires(t *testing.T) {
	jb := NewJitterBuffer(10*time.Millisecond, UnderrunSilence, 0)
	jb.Push(1, []float32{1}) // seq 0 is missing

	first := jb.Pull() // starts the wait clock, no frame yet for seq 0
	assert.Equal(t, make([]float32, FrameSamples), first)

	time.Sleep(15 * time.Millisecond)
	second := jb.Pull() // margin expired, skip seq 0
	assert.Equal(t, make([]float32, FrameSamples), second)
	assert.Equal(t, int64(1), jb.UnderrunCount())

	assert.Equal(t, []float32{1}, jb.Pull()) // now seq 1 releases
}

func TestJitterBufferExtrapolatesLastFrameOnUnderrun(t *testing.T) {
	jb := NewJitterBuffer(5*time.Millisecond, UnderrunExtrapolateLastFrame, 0)
	jb.Push(0, []float32{9, 9})
	assert.Equal(t, []float32{9, 9}, jb.Pull())

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, []float32{9, 9}, jb.Pull()) // seq 1 missing, extrapolate last
}

func TestSeqBeforeHandlesWraparound(t *testing.T) {
	assert.True(t, seqBefore(5, 10))
	assert.False(t, seqBefore(10, 5))
	assert.True(t, seqBefore(0xFFFFFFFF, 0)) // wraparound: max uint32 is "before" 0
}

type fakeAEC struct {
	renderUpdates int
	processCalls  int
}

func (f *fakeAEC) UpdateRenderReference(samples []float32) { f.renderUpdates++ }
func (f *fakeAEC) Process(capture []float32)               { f.processCalls++ }

func TestCaptureSendsAudioOpusPacketsWithIncrementingSequence(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	clientT := transport.NewTCPTransport(clientConn)
	serverT := transport.NewTCPTransport(serverConn)

	enc, err := NewEncoder()
	require.NoError(t, err)

	ring := NewRing(FrameSamples * 4)
	ring.Write(make([]float32, FrameSamples*2))

	aec := &fakeAEC{}
	cap := NewCapture(ring, enc, clientT, aec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = cap.Run(ctx) }()

	kind, payload, err := serverT.Receive()
	require.NoError(t, err)
	assert.Equal(t, protocol.KindAudioOpus, kind)

	msg, err := protocol.DecodeAudioOpus(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), msg.Sequence)
	assert.Equal(t, uint32(SampleRate), msg.SampleRate)

	kind, payload, err = serverT.Receive()
	require.NoError(t, err)
	msg2, err := protocol.DecodeAudioOpus(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), msg2.Sequence)

	assert.GreaterOrEqual(t, aec.processCalls, 1)
}

func TestPlaybackDecodesAndReleasesThroughJitterBuffer(t *testing.T) {
	enc, err := NewEncoder()
	require.NoError(t, err)
	dec, err := NewDecoder()
	require.NoError(t, err)

	aec := &fakeAEC{}
	pb := NewPlayback(dec, 20*time.Millisecond, UnderrunSilence, aec, nil)

	encoded, err := enc.EncodeFrame(make([]float32, FrameSamples))
	require.NoError(t, err)

	msg := protocol.AudioOpus{
		Sequence: 0, SampleRate: SampleRate, FrameMs: FrameMs,
		FrameSizes: []uint16{uint16(len(encoded))}, OpusData: encoded,
	}
	pb.OnPacket(msg.Kind(), msg.Encode())

	frame := pb.Pull()
	assert.Len(t, frame, FrameSamples)
	assert.Equal(t, 1, aec.renderUpdates)
}
