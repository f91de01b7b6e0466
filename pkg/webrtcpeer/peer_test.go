package webrtcpeer

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/ascii-chat-core/pkg/protocol"
)

type fakeSignal struct {
	sdpType uint8
	sdp     string
	ice     []string
}

func (f *fakeSignal) SendSDP(sdpType uint8, sdp string) error {
	f.sdpType, f.sdp = sdpType, sdp
	return nil
}

func (f *fakeSignal) SendICE(candidate, sdpMid string, sdpMLineIndex uint16) error {
	f.ice = append(f.ice, candidate)
	return nil
}

func TestNewPeerManagerOffererCreatesDataChannel(t *testing.T) {
	sig := &fakeSignal{}
	pm, err := NewPeerManager(RoleOfferer, nil, nil, nil, sig, nil)
	require.NoError(t, err)
	defer pm.Close()

	assert.NotNil(t, pm.dc)
	assert.Equal(t, webrtc.PeerConnectionStateNew, pm.ConnectionState())
}

func TestNewPeerManagerAnswererWaitsForDataChannel(t *testing.T) {
	sig := &fakeSignal{}
	pm, err := NewPeerManager(RoleAnswerer, nil, nil, nil, sig, nil)
	require.NoError(t, err)
	defer pm.Close()

	assert.Nil(t, pm.dc)
}

func TestNewPeerManagerAppendsTurnServer(t *testing.T) {
	sig := &fakeSignal{}
	turn := &TurnServer{URLs: []string{"turn:example.com:3478"}, Username: "u", Password: "p"}
	pm, err := NewPeerManager(RoleOfferer, []string{"stun:stun.example.com:3478"}, turn, nil, sig, nil)
	require.NoError(t, err)
	defer pm.Close()

	servers := pm.pc.GetConfiguration().ICEServers
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, servers[0].URLs)
	assert.Equal(t, []string{"turn:example.com:3478"}, servers[1].URLs)
	assert.Equal(t, "u", servers[1].Username)
}

func TestSDPTypeConversionRoundTrips(t *testing.T) {
	assert.Equal(t, protocol.SDPTypeOffer, sdpTypeOf(webrtc.SDPTypeOffer))
	assert.Equal(t, protocol.SDPTypeAnswer, sdpTypeOf(webrtc.SDPTypeAnswer))
	assert.Equal(t, webrtc.SDPTypeOffer, webrtcSDPType(protocol.SDPTypeOffer))
	assert.Equal(t, webrtc.SDPTypeAnswer, webrtcSDPType(protocol.SDPTypeAnswer))
}
