package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/zfogg/ascii-chat-core/pkg/config"
	"github.com/zfogg/ascii-chat-core/pkg/crypto"
	"github.com/zfogg/ascii-chat-core/pkg/discovery"
	"github.com/zfogg/ascii-chat-core/pkg/handshake"
	"github.com/zfogg/ascii-chat-core/pkg/hosts"
	"github.com/zfogg/ascii-chat-core/pkg/keepalive"
	"github.com/zfogg/ascii-chat-core/pkg/logging"
	"github.com/zfogg/ascii-chat-core/pkg/orchestrator"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
	"github.com/zfogg/ascii-chat-core/pkg/session"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
	"github.com/zfogg/ascii-chat-core/pkg/webrtcpeer"
)

func main() {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	configPath := fs.String("config", ".ascii-chat.conf", "path to the client configuration file")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "ascii-chat client - connects to a session and streams video/audio\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.NewConfig()
	if lvl, err := logging.ParseLevel(string(cfg.LogLevel)); err == nil {
		logCfg.Level = lvl
	}
	if cfg.LogFile != "" {
		logCfg.OutputFile = cfg.LogFile
	}

	log, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logging.SetDefault(log)

	log.Info("starting ascii-chat client", "config", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	identity, err := crypto.GenerateIdentityKeyPair()
	if err != nil {
		log.Error("failed to generate identity keypair", "error", err)
		os.Exit(1)
	}

	var knownHosts *hosts.KnownHosts
	if cfg.KnownHostsPath != "" {
		knownHosts, err = hosts.LoadKnownHosts(cfg.KnownHostsPath)
		if err != nil {
			log.Error("failed to load known hosts", "error", err)
			os.Exit(1)
		}
	}

	joined, err := joinSession(ctx, cfg)
	if err != nil {
		log.Error("failed to join session", "error", err)
		os.Exit(1)
	}
	hostPort := fmt.Sprintf("%s:%d", joined.ServerAddress, joined.ServerPort)
	log.Info("session joined", "server", hostPort)

	dialers := buildDialers(cfg, joined, hostPort)

	o := orchestrator.New(orchestrator.Flags{
		NoWebRTC:     cfg.NoWebRTC,
		PreferWebRTC: cfg.PreferWebRTC,
		SkipSTUN:     cfg.WebRTCSkipSTUN,
		DisableTURN:  cfg.WebRTCDisableTURN,
	}, dialers, log.With("component", "orchestrator").Logger)

	t, err := o.Connect(ctx)
	if err != nil {
		log.Error("failed to establish a connection", "error", err, "stage_failures", o.StageFailures())
		os.Exit(1)
	}
	log.Info("connection established", "state", o.State().String())

	sess := session.New(session.Config{
		Handshake: handshake.Config{
			Role:              handshake.RoleInitiator,
			EncryptEnabled:    cfg.EncryptEnabled && !cfg.NoEncrypt,
			Identity:          identity,
			HostPort:          hostPort,
			KnownHosts:        knownHosts,
			Password:          cfg.Password,
			AllowFirstContact: cfg.ServerKey == "",
		},
		DisplayName: os.Getenv("USER"),
		Keepalive:   keepalive.Config{},
	}, t, log.With("component", "session").Logger)

	if err := sess.Start(ctx); err != nil {
		log.Error("failed to start session", "error", err)
		os.Exit(1)
	}
	log.Info("session active", "handshake_state", sess.Handshake().State().String())

	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	fmt.Println("connected - press Ctrl+C to disconnect")

	for {
		select {
		case <-ctx.Done():
			if err := sess.Stop(); err != nil {
				log.Error("error during shutdown", "error", err)
			}
			log.Info("graceful shutdown complete")
			return
		case <-statsTicker.C:
			log.Info("session statistics", "active_clients", sess.ActiveClients())
		}
	}
}

// joinSession dials the discovery server named by the configuration and
// exchanges SessionJoin/SessionJoined, returning the relay address (and,
// if the session requires it, TURN credentials) the orchestrator's stages
// dial next.
func joinSession(ctx context.Context, cfg *config.Config) (protocol.SessionJoined, error) {
	discAddr := cfg.DiscoveryServer
	if discAddr == "" {
		discAddr = cfg.Address
	}
	discPort := cfg.DiscoveryPort
	if discPort == 0 {
		discPort = cfg.Port
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", discAddr, discPort))
	if err != nil {
		return protocol.SessionJoined{}, fmt.Errorf("dial discovery server: %w", err)
	}

	client := discovery.New(transport.NewTCPTransport(conn), nil)
	return client.Join(ctx, cfg.SessionString, cfg.Password)
}

// buildDialers maps each orchestrator stage to a dialer closure per §4.6:
// Direct TCP dials the relay address returned by SessionJoined directly;
// the two WebRTC stages negotiate a peer connection, signalling over a
// fresh connection to the same discovery server.
func buildDialers(cfg *config.Config, joined protocol.SessionJoined, hostPort string) map[orchestrator.Stage]orchestrator.StageDialer {
	dialers := map[orchestrator.Stage]orchestrator.StageDialer{
		orchestrator.StageDirectTCP: func(ctx context.Context) (transport.Transport, error) {
			d := net.Dialer{}
			conn, err := d.DialContext(ctx, "tcp", hostPort)
			if err != nil {
				return nil, err
			}
			return transport.NewTCPTransport(conn), nil
		},
	}

	webrtcDialer := func(useTurn bool) orchestrator.StageDialer {
		return func(ctx context.Context) (transport.Transport, error) {
			return dialWebRTC(ctx, cfg, joined, useTurn)
		}
	}
	dialers[orchestrator.StageWebRTCSTUN] = webrtcDialer(false)
	dialers[orchestrator.StageWebRTCTURN] = webrtcDialer(true)

	return dialers
}

// dialWebRTC opens a fresh signalling connection to the discovery server,
// re-joins the session to learn the relay's participant ID, then drives a
// PeerManager through offer/answer and ICE exchange until its data channel
// opens or ctx expires.
func dialWebRTC(ctx context.Context, cfg *config.Config, joined protocol.SessionJoined, useTurn bool) (transport.Transport, error) {
	discAddr := cfg.DiscoveryServer
	if discAddr == "" {
		discAddr = cfg.Address
	}
	discPort := cfg.DiscoveryPort
	if discPort == 0 {
		discPort = cfg.Port
	}
	signalConn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", discAddr, discPort))
	if err != nil {
		return nil, fmt.Errorf("dial signalling connection: %w", err)
	}
	signalClient := discovery.New(transport.NewTCPTransport(signalConn), nil)
	rejoined, err := signalClient.Join(ctx, cfg.SessionString, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("re-join session for signalling: %w", err)
	}

	var turn *webrtcpeer.TurnServer
	if useTurn && joined.HasTurn {
		turn = &webrtcpeer.TurnServer{URLs: cfg.TURNServers, Username: joined.Turn.Username, Password: joined.Turn.Password}
	}

	ready := make(chan transport.Transport, 1)
	adapter := &signalAdapter{client: signalClient, sessionID: rejoined.SessionID, recipientID: rejoined.ParticipantID}

	pm, err := webrtcpeer.NewPeerManager(webrtcpeer.RoleOfferer, cfg.STUNServers, turn, func(t transport.Transport) {
		ready <- t
	}, adapter, nil)
	if err != nil {
		return nil, fmt.Errorf("create peer manager: %w", err)
	}

	go pumpSignalling(ctx, signalClient, pm)

	if err := pm.Connect(ctx); err != nil {
		return nil, fmt.Errorf("negotiate webrtc peer: %w", err)
	}

	select {
	case t := <-ready:
		return t, nil
	case <-ctx.Done():
		pm.Close()
		return nil, ctx.Err()
	}
}

// pumpSignalling relays inbound WebRtcSdp/WebRtcIce packets from the
// signalling connection into the PeerManager until ctx is cancelled or the
// connection fails.
func pumpSignalling(ctx context.Context, client *discovery.Client, pm *webrtcpeer.PeerManager) {
	for {
		if ctx.Err() != nil {
			return
		}
		kind, payload, err := client.Next()
		if err != nil {
			return
		}
		switch kind {
		case protocol.KindWebRtcSdp:
			sdp, err := protocol.DecodeWebRtcSdp(payload)
			if err == nil {
				pm.OnRemoteSDP(ctx, sdp.SDPType, sdp.SDP)
			}
		case protocol.KindWebRtcIce:
			ice, err := protocol.DecodeWebRtcIce(payload)
			if err == nil {
				pm.OnRemoteICE(ice.Candidate, ice.SDPMid, ice.SDPMLineIndex)
			}
		}
	}
}

// signalAdapter binds a discovery.Client and a fixed session/recipient
// pair to satisfy webrtcpeer.SignalSender, which deals only in bare
// SDP/ICE values.
type signalAdapter struct {
	client      *discovery.Client
	sessionID   [16]byte
	recipientID [16]byte
}

func (a *signalAdapter) SendSDP(sdpType uint8, sdp string) error {
	return a.client.SendSDP(uuid.UUID(a.sessionID), uuid.UUID(a.recipientID), sdpType, sdp)
}

func (a *signalAdapter) SendICE(candidate, sdpMid string, sdpMLineIndex uint16) error {
	return a.client.SendICE(uuid.UUID(a.sessionID), uuid.UUID(a.recipientID), candidate, sdpMid, sdpMLineIndex)
}
