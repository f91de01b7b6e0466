package video

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/ascii-chat-core/pkg/protocol"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
)

type stubSource struct {
	frames []Frame
	idx    int
	fps    float64
	err    error
}

func (s *stubSource) Read() (Frame, error) {
	if s.err != nil {
		return Frame{}, s.err
	}
	if s.idx >= len(s.frames) {
		return Frame{}, errors.New("source exhausted")
	}
	f := s.frames[s.idx]
	s.idx++
	return f, nil
}

func (s *stubSource) ProbedFPS() (float64, bool) {
	if s.fps <= 0 {
		return 0, false
	}
	return s.fps, true
}

func (s *stubSource) Close() error { return nil }

func solidFrame(w, h int) Frame {
	return Frame{Width: w, Height: h, Pixels: make([]byte, w*h*4)}
}

func TestFitToBoundsDownscalesPreservingAspect(t *testing.T) {
	f := solidFrame(1600, 900)
	out := fitToBounds(f, MaxWidth, MaxHeight)
	assert.LessOrEqual(t, out.Width, MaxWidth)
	assert.LessOrEqual(t, out.Height, MaxHeight)
	// 1600x900 is 16:9; fit-to-800x600 should bind on width (800x450).
	assert.Equal(t, 800, out.Width)
	assert.Equal(t, 450, out.Height)
}

func TestFitToBoundsLeavesSmallFrameUnchanged(t *testing.T) {
	f := solidFrame(320, 240)
	out := fitToBounds(f, MaxWidth, MaxHeight)
	assert.Equal(t, 320, out.Width)
	assert.Equal(t, 240, out.Height)
}

func TestValidateFrameRejectsMismatchedBufferSize(t *testing.T) {
	f := Frame{Width: 10, Height: 10, Pixels: make([]byte, 10)}
	assert.Error(t, validateFrame(f))
}

func TestCaptureSendsFramesAsVideoFramePackets(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	clientT := transport.NewTCPTransport(clientConn)
	serverT := transport.NewTCPTransport(serverConn)

	src := &stubSource{frames: []Frame{solidFrame(64, 48)}, fps: 1000}
	cap := New(src, clientT, Config{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = cap.Run(ctx)
	}()

	kind, payload, err := serverT.Receive()
	require.NoError(t, err)
	assert.Equal(t, protocol.KindVideoFrame, kind)

	decoded, err := protocol.DecodeVideoFrame(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(64), decoded.Width)
	assert.Equal(t, uint32(48), decoded.Height)
}

func TestCaptureReportsSourceFailure(t *testing.T) {
	clientConn, _ := net.Pipe()
	clientT := transport.NewTCPTransport(clientConn)

	src := &stubSource{err: errors.New("device unplugged")}
	failed := make(chan error, 1)
	cap := New(src, clientT, Config{}, func(err error) { failed <- err }, nil)

	err := cap.Run(context.Background())
	assert.Error(t, err)

	select {
	case got := <-failed:
		assert.EqualError(t, got, "device unplugged")
	case <-time.After(time.Second):
		t.Fatal("onDisconnect never called")
	}
}
