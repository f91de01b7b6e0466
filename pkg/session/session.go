// Package session ties the connection, handshake, dispatch, media, and
// keepalive packages together into the per-connection worker topology of
// SPEC_FULL.md §5: one receive/dispatch pair, one keepalive goroutine, and
// (when media sources are configured) one video capture goroutine and one
// audio capture goroutine, all joined on disconnect. Grounded on the
// teacher's pkg/relay/relay.go CameraRelay: a lifecycle struct owning
// ctx/cancel/wg, atomic stat counters, and disconnect callback fields,
// generalized from a single fixed RTSP→WebRTC pipeline to this module's
// handshake→dispatch→media pipeline.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zfogg/ascii-chat-core/pkg/dispatch"
	"github.com/zfogg/ascii-chat-core/pkg/handshake"
	"github.com/zfogg/ascii-chat-core/pkg/keepalive"
	"github.com/zfogg/ascii-chat-core/pkg/media/audio"
	"github.com/zfogg/ascii-chat-core/pkg/media/video"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
)

// Media optionally wires the capture/playback pipelines onto a Session.
// Any field left nil disables that half of the pipeline (e.g. a
// video-only client leaves the audio fields nil).
type Media struct {
	VideoSource   video.Source
	VideoConfig   video.Config
	AudioCapture  *audio.Capture
	AudioPlayback *audio.Playback
}

// Config carries what a Session needs beyond the transport and handshake
// state: the handshake policy to run, optional media wiring, and the
// display name/terminal size to announce once the handshake settles.
type Config struct {
	Handshake   handshake.Config
	Media       Media
	DisplayName string
	Keepalive   keepalive.Config
}

// Session owns one connected peer: it drives the handshake to completion,
// switches the transport into encrypted mode, then runs the dispatch,
// keepalive, and media goroutines until Stop or a transport failure.
type Session struct {
	cfg    Config
	t      transport.Transport
	hs     *handshake.Handshake
	disp   *dispatch.Dispatcher
	keep   *keepalive.Scheduler
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time

	activeClients atomic.Uint32

	// OnDisconnect is invoked at most once, when any pipeline goroutine
	// observes the transport has failed (mirrors CameraRelay's
	// OnRTSPDisconnect/OnWebRTCDisconnect callback fields).
	OnDisconnect func(error)

	disconnectOnce sync.Once
}

// New constructs a Session bound to t. The handshake role/policy comes
// from cfg.Handshake; logger may be nil.
func New(cfg Config, t transport.Transport, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		cfg:       cfg,
		t:         t,
		hs:        handshake.New(cfg.Handshake, t, logger.With("component", "handshake")),
		logger:    logger,
		startTime: time.Now(),
	}
	s.disp = dispatch.New(t, 0, s.notifyDisconnect, logger.With("component", "dispatch"))
	return s
}

// Handshake exposes the underlying handshake state machine, mainly so
// callers can read State()/SessionCrypto() before or after Start.
func (s *Session) Handshake() *handshake.Handshake { return s.hs }

// Start runs the handshake, switches the transport to encrypted mode (if
// the handshake reached Ready rather than Disabled), and launches the
// dispatch/keepalive/media goroutines. It returns once the handshake
// completes; the spawned goroutines continue until ctx is cancelled or
// the transport fails.
func (s *Session) Start(ctx context.Context) error {
	if err := s.hs.Run(ctx); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	if crypt := s.hs.SessionCrypto(); crypt != nil {
		s.t.SetEncryption(crypt)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.registerHandlers()
	s.disp.Start()

	if crypt := s.hs.SessionCrypto(); crypt != nil {
		s.keep = keepalive.New(s.cfg.Keepalive, s.t, crypt, s.hs, s.logger.With("component", "keepalive"))
		s.wg.Add(1)
		go s.runKeepalive()
	}

	if s.cfg.Media.VideoSource != nil {
		s.wg.Add(1)
		go s.runVideoCapture()
	}
	if s.cfg.Media.AudioCapture != nil {
		s.wg.Add(1)
		go s.runAudioCapture()
	}

	if s.cfg.DisplayName != "" {
		join := protocol.ClientJoin{DisplayName: s.cfg.DisplayName}
		if err := s.t.Send(join.Kind(), join.Encode()); err != nil {
			s.logger.Warn("failed to send client join", "error", err)
		}
	}

	return nil
}

// registerHandlers wires the dispatcher's default packet handlers:
// playback for AudioOpus (if configured), participant-count tracking for
// ServerState, and a debug log for Pong. VideoFrame receipt is intended
// for a render-handoff goroutine outside this package's scope (§1's
// ASCII-rendering Non-goal), so callers wanting to observe inbound video
// frames should call Dispatcher().Handle themselves before Start.
func (s *Session) registerHandlers() {
	s.disp.Handle(protocol.KindPong, func(_ protocol.Kind, _ []byte) {
		s.logger.Debug("received keepalive pong")
	})
	s.disp.Handle(protocol.KindServerState, func(_ protocol.Kind, payload []byte) {
		st, err := protocol.DecodeServerState(payload)
		if err != nil {
			s.logger.Warn("malformed server state", "error", err)
			return
		}
		s.activeClients.Store(st.ActiveClientCount)
	})
	if s.cfg.Media.AudioPlayback != nil {
		s.disp.Handle(protocol.KindAudioOpus, s.cfg.Media.AudioPlayback.OnPacket)
	}
}

// Dispatcher exposes the packet dispatcher so a caller can register
// additional handlers (e.g. VideoFrame render handoff, or ClientJoin on
// a server-side session) any time before Start launches its goroutines.
// Registering after Start races with the dispatch goroutine.
func (s *Session) Dispatcher() *dispatch.Dispatcher { return s.disp }

// ActiveClients reports the most recently announced server participant
// count (§6's ServerState packet).
func (s *Session) ActiveClients() uint32 { return s.activeClients.Load() }

// Stop cancels all session goroutines, waits for them to exit, and closes
// the dispatcher and transport.
func (s *Session) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.disp != nil {
		s.disp.Stop()
	}
	s.wg.Wait()

	s.logger.Info("session stopped", "duration", time.Since(s.startTime))

	return s.t.Close()
}

func (s *Session) runKeepalive() {
	defer s.wg.Done()
	if err := s.keep.Run(s.ctx); err != nil && s.ctx.Err() == nil {
		s.logger.Warn("keepalive scheduler exited", "error", err)
		s.notifyDisconnect(err)
	}
}

func (s *Session) runVideoCapture() {
	defer s.wg.Done()
	cap := video.New(s.cfg.Media.VideoSource, s.t, s.cfg.Media.VideoConfig, s.notifyDisconnect, s.logger.With("component", "video"))
	if err := cap.Run(s.ctx); err != nil && s.ctx.Err() == nil {
		s.logger.Warn("video capture exited", "error", err)
	}
}

func (s *Session) runAudioCapture() {
	defer s.wg.Done()
	if err := s.cfg.Media.AudioCapture.Run(s.ctx); err != nil && s.ctx.Err() == nil {
		s.logger.Warn("audio capture exited", "error", err)
		s.notifyDisconnect(err)
	}
}

func (s *Session) notifyDisconnect(err error) {
	s.disconnectOnce.Do(func() {
		if s.OnDisconnect != nil {
			s.OnDisconnect(err)
		}
	})
}
