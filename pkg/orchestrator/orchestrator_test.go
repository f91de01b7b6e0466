package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/ascii-chat-core/pkg/protocol"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
)

type stubTransport struct{ name string }

func (s *stubTransport) Send(protocol.Kind, []byte) error                     { return nil }
func (s *stubTransport) Receive() (protocol.Kind, []byte, error)              { return 0, nil, nil }
func (s *stubTransport) Close() error                                        { return nil }
func (s *stubTransport) SetEncryption(transport.Envelope)                    {}
func (s *stubTransport) Name() string                                        { return s.name }

func TestStageOrderDefault(t *testing.T) {
	o := New(Flags{}, nil, nil)
	assert.Equal(t, []Stage{StageDirectTCP, StageWebRTCSTUN, StageWebRTCTURN}, o.stageOrder())
}

func TestStageOrderPreferWebRTC(t *testing.T) {
	o := New(Flags{PreferWebRTC: true}, nil, nil)
	assert.Equal(t, []Stage{StageWebRTCSTUN, StageWebRTCTURN, StageDirectTCP}, o.stageOrder())
}

func TestStageOrderNoWebRTC(t *testing.T) {
	o := New(Flags{NoWebRTC: true}, nil, nil)
	assert.Equal(t, []Stage{StageDirectTCP}, o.stageOrder())
}

func TestStageOrderSkipsDisabled(t *testing.T) {
	o := New(Flags{SkipSTUN: true, DisableTURN: true}, nil, nil)
	assert.Equal(t, []Stage{StageDirectTCP}, o.stageOrder())
}

func TestConnectFallsBackThroughStages(t *testing.T) {
	var attempted []Stage
	dialers := map[Stage]StageDialer{
		StageDirectTCP: func(ctx context.Context) (transport.Transport, error) {
			attempted = append(attempted, StageDirectTCP)
			return nil, errors.New("refused")
		},
		StageWebRTCSTUN: func(ctx context.Context) (transport.Transport, error) {
			attempted = append(attempted, StageWebRTCSTUN)
			return nil, errors.New("stun timeout")
		},
		StageWebRTCTURN: func(ctx context.Context) (transport.Transport, error) {
			attempted = append(attempted, StageWebRTCTURN)
			return &stubTransport{name: "webrtc-datachannel"}, nil
		},
	}

	o := New(Flags{}, dialers, nil)
	tr, err := o.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageDirectTCP, StageWebRTCSTUN, StageWebRTCTURN}, attempted)
	assert.Equal(t, "webrtc-datachannel", tr.Name())
	assert.Equal(t, StateConnected, o.State())
	assert.Equal(t, int64(2), o.StageFailures())
}

func TestConnectAllStagesFail(t *testing.T) {
	dialers := map[Stage]StageDialer{
		StageDirectTCP: func(ctx context.Context) (transport.Transport, error) {
			return nil, errors.New("refused")
		},
	}
	o := New(Flags{NoWebRTC: true}, dialers, nil)
	_, err := o.Connect(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateFailed, o.State())
}

func TestConnectRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dialers := map[Stage]StageDialer{
		StageDirectTCP: func(ctx context.Context) (transport.Transport, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	o := New(Flags{NoWebRTC: true}, dialers, nil)
	_, err := o.Connect(ctx)
	assert.Error(t, err)
}

func TestStageTimeoutValues(t *testing.T) {
	assert.Equal(t, 3*time.Second, stageTimeout(StageDirectTCP))
	assert.Equal(t, 8*time.Second, stageTimeout(StageWebRTCSTUN))
	assert.Equal(t, 15*time.Second, stageTimeout(StageWebRTCTURN))
}
