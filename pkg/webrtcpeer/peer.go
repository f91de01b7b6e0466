// Package webrtcpeer drives ICE/DTLS/SCTP negotiation for the WebRTC
// fallback stages of SPEC_FULL.md §4.6 and presents the resulting data
// channel as a pkg/transport.Transport. It is grounded on the teacher's
// pkg/bridge/bridge.go (PeerConnection construction, GatheringCompletePromise
// with timeout, the cached-connection-state RWMutex pattern) and
// LanternOps-breeze's desktop/webrtc.go parseICEServers/data-channel config
// shape, retargeted from media RTP tracks to a single reliable, ordered
// data channel carrying this module's own framed packets - no MediaEngine,
// no audio/video tracks are registered at this layer.
package webrtcpeer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
)

// Role mirrors the handshake roles: the offerer creates the data channel
// and the offer, the answerer waits for both.
type Role int

const (
	RoleOfferer Role = iota
	RoleAnswerer
)

const iceGatherTimeout = 10 * time.Second

// TurnServer carries credentials handed back by SessionJoined when a
// session requires relay (Stage 3, §4.6).
type TurnServer struct {
	URLs     []string
	Username string
	Password string
}

// SignalSender is how the peer manager emits local SDP/ICE for the caller
// to relay through the discovery service (pkg/discovery); the peer manager
// has no transport of its own to the signalling service.
type SignalSender interface {
	SendSDP(sdpType uint8, sdp string) error
	SendICE(candidate, sdpMid string, sdpMLineIndex uint16) error
}

// PeerManager owns exactly one *webrtc.PeerConnection and the single data
// channel carried over it.
type PeerManager struct {
	role   Role
	logger *slog.Logger
	signal SignalSender

	onTransportReady func(transport.Transport)

	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	connStateMu     sync.RWMutex
	cachedConnState webrtc.PeerConnectionState
}

// NewPeerManager constructs the underlying PeerConnection and (for the
// offerer) the data channel, but does not start negotiation - call Connect
// to do that.
func NewPeerManager(role Role, stunServers []string, turn *TurnServer, onTransportReady func(transport.Transport), signal SignalSender, logger *slog.Logger) (*PeerManager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	iceServers := []webrtc.ICEServer{}
	if len(stunServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stunServers})
	} else {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{"stun:stun.l.google.com:19302"}})
	}
	if turn != nil {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:           turn.URLs,
			Username:       turn.Username,
			Credential:     turn.Password,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, errs.Wrap(errs.KindNetworkConnect, err, "create peer connection")
	}

	pm := &PeerManager{
		role:            role,
		logger:          logger,
		signal:          signal,
		onTransportReady: onTransportReady,
		pc:              pc,
		cachedConnState: webrtc.PeerConnectionStateNew,
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		pm.connStateMu.Lock()
		pm.cachedConnState = state
		pm.connStateMu.Unlock()
		pm.logger.Info("peer connection state changed", "state", state.String())
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		mLineIndex := uint16(0)
		if init.SDPMLineIndex != nil {
			mLineIndex = *init.SDPMLineIndex
		}
		mid := ""
		if init.SDPMid != nil {
			mid = *init.SDPMid
		}
		if err := pm.signal.SendICE(init.Candidate, mid, mLineIndex); err != nil {
			pm.logger.Warn("failed to relay local ICE candidate", "error", err)
		}
	})

	if role == RoleOfferer {
		dc, err := pc.CreateDataChannel("ascii-chat", &webrtc.DataChannelInit{
			Ordered: boolPtr(true),
		})
		if err != nil {
			return nil, errs.Wrap(errs.KindNetworkConnect, err, "create data channel")
		}
		pm.attachDataChannel(dc)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			pm.attachDataChannel(dc)
		})
	}

	return pm, nil
}

func boolPtr(b bool) *bool { return &b }

func (pm *PeerManager) attachDataChannel(dc *webrtc.DataChannel) {
	pm.dc = dc
	dc.OnOpen(func() {
		pm.logger.Info("data channel open")
		if pm.onTransportReady != nil {
			pm.onTransportReady(transport.NewDataChannelTransport(dc, 64))
		}
	})
}

// ConnectionState returns the cached connection state without blocking on
// the PeerConnection's internal lock.
func (pm *PeerManager) ConnectionState() webrtc.PeerConnectionState {
	pm.connStateMu.RLock()
	defer pm.connStateMu.RUnlock()
	return pm.cachedConnState
}

// Connect drives local SDP creation (offer for RoleOfferer, nothing until
// a remote offer arrives for RoleAnswerer) and waits for ICE gathering to
// complete before relaying the local description through signal.
func (pm *PeerManager) Connect(ctx context.Context) error {
	if pm.role != RoleOfferer {
		return nil
	}

	offer, err := pm.pc.CreateOffer(nil)
	if err != nil {
		return errs.Wrap(errs.KindNetworkConnect, err, "create offer")
	}
	if err := pm.pc.SetLocalDescription(offer); err != nil {
		return errs.Wrap(errs.KindNetworkConnect, err, "set local description")
	}

	if err := pm.waitGatherComplete(ctx); err != nil {
		return err
	}

	local := pm.pc.LocalDescription()
	return pm.signal.SendSDP(sdpTypeOf(local.Type), local.SDP)
}

func (pm *PeerManager) waitGatherComplete(ctx context.Context) error {
	gatherComplete := webrtc.GatheringCompletePromise(pm.pc)
	select {
	case <-gatherComplete:
		return nil
	case <-time.After(iceGatherTimeout):
		return errs.New(errs.KindNetworkConnect, "ICE gathering timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnRemoteSDP applies a remote offer or answer. For the answerer this also
// creates and relays the local answer.
func (pm *PeerManager) OnRemoteSDP(ctx context.Context, sdpType uint8, sdp string) error {
	desc := webrtc.SessionDescription{Type: webrtcSDPType(sdpType), SDP: sdp}
	if err := pm.pc.SetRemoteDescription(desc); err != nil {
		return errs.Wrap(errs.KindNetworkConnect, err, "set remote description")
	}

	if pm.role == RoleAnswerer && desc.Type == webrtc.SDPTypeOffer {
		answer, err := pm.pc.CreateAnswer(nil)
		if err != nil {
			return errs.Wrap(errs.KindNetworkConnect, err, "create answer")
		}
		if err := pm.pc.SetLocalDescription(answer); err != nil {
			return errs.Wrap(errs.KindNetworkConnect, err, "set local description")
		}
		if err := pm.waitGatherComplete(ctx); err != nil {
			return err
		}
		local := pm.pc.LocalDescription()
		return pm.signal.SendSDP(sdpTypeOf(local.Type), local.SDP)
	}
	return nil
}

// OnRemoteICE adds a remote ICE candidate as it is relayed in from the
// signalling path.
func (pm *PeerManager) OnRemoteICE(candidate, sdpMid string, sdpMLineIndex uint16) error {
	init := webrtc.ICECandidateInit{
		Candidate:     candidate,
		SDPMid:        &sdpMid,
		SDPMLineIndex: &sdpMLineIndex,
	}
	if err := pm.pc.AddICECandidate(init); err != nil {
		return errs.Wrap(errs.KindNetworkConnect, err, "add ICE candidate")
	}
	return nil
}

// Close tears down the peer connection and its data channel.
func (pm *PeerManager) Close() error {
	if pm.dc != nil {
		_ = pm.dc.Close()
	}
	return pm.pc.Close()
}

func sdpTypeOf(t webrtc.SDPType) uint8 {
	if t == webrtc.SDPTypeAnswer {
		return protocol.SDPTypeAnswer
	}
	return protocol.SDPTypeOffer
}

func webrtcSDPType(t uint8) webrtc.SDPType {
	if t == protocol.SDPTypeAnswer {
		return webrtc.SDPTypeAnswer
	}
	return webrtc.SDPTypeOffer
}
