// Package handshake drives the authenticated key-exchange and session
// handshake state machine of SPEC_FULL.md §4.5 over any pkg/transport
// implementation. It is grounded on the teacher's pkg/nest/queue.go
// worker-loop shape (a single goroutine-owned state machine, state exposed
// to other goroutines through a cached, RWMutex-guarded snapshot) and
// pkg/bridge/bridge.go's cachedConnState pattern.
package handshake

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zfogg/ascii-chat-core/pkg/crypto"
	"github.com/zfogg/ascii-chat-core/pkg/errs"
	"github.com/zfogg/ascii-chat-core/pkg/hosts"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
)

// State is a position in the handshake state machine. Only Failed is
// reachable from every other state; all other transitions move strictly
// forward.
type State int

const (
	StateInit State = iota
	StateKeyExchange
	StateAuthenticating
	StateReady
	StateFailed
	// StateDisabled is the terminal state for a handshake run with
	// encryption turned off: version/capabilities still exchange (so both
	// sides log what the peer could have supported) but no key material is
	// derived and no auth challenge is issued.
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateKeyExchange:
		return "key_exchange"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Role distinguishes which side of the wire sequence a Handshake plays.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// Selected algorithm identifiers, carried in CryptoCapabilities/Parameters.
const (
	KexX25519          uint8 = 0
	AuthPasswordOrKey   uint8 = 0
	CipherXSalsa20Poly1305 uint8 = 0
)

// Config carries everything a Handshake needs that isn't learned over the
// wire: identity material, known-hosts/whitelist policy, and the
// requirements this side imposes on its peer.
type Config struct {
	Role Role

	// EncryptEnabled, when false, runs the version/capability exchange only
	// and settles in StateDisabled (§8 scenario 1, no_encrypt=true).
	EncryptEnabled bool

	// Identity is this side's long-term Ed25519 keypair. Nil means this
	// side never asserts an identity (anonymous client).
	Identity *crypto.IdentityKeyPair

	// HostPort is the known-hosts lookup key ("host:port"), used by an
	// initiator to verify the responder's identity fingerprint.
	HostPort string
	// KnownHosts is consulted (initiator) to verify the server's identity
	// fingerprint, recording it on first contact.
	KnownHosts *hosts.KnownHosts

	// Whitelist is consulted (responder) when RequireClientKey is set, to
	// check the initiator's asserted identity key.
	Whitelist *hosts.Whitelist

	// RequirePassword / RequireClientKey set the bits this side's
	// AuthChallenge advertises (responder) or what it must satisfy
	// (initiator, informed by the received AuthChallenge).
	RequirePassword  bool
	RequireClientKey bool
	Password         string

	// AllowFirstContact permits an initiator to record an unknown server
	// fingerprint rather than failing. False implements strict pinning
	// (expected fingerprint must already be present or supplied out of
	// band).
	AllowFirstContact bool
}

// Handshake runs one handshake attempt over a single transport.Transport.
// It is not reusable across attempts; construct a fresh Handshake per
// connection.
type Handshake struct {
	cfg       Config
	transport transport.Transport
	logger    *slog.Logger

	mu    sync.RWMutex
	state State

	ephemeral *crypto.EphemeralKeyPair
	crypt     *crypto.SessionCrypto

	peerIdentity []byte
	peerFP       [32]byte
}

// New constructs a Handshake bound to t. logger may be nil, in which case
// slog.Default() is used.
func New(cfg Config, t transport.Transport, logger *slog.Logger) *Handshake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handshake{cfg: cfg, transport: t, logger: logger, state: StateInit}
}

// State returns the current state without blocking on the handshake's own
// goroutine, mirroring bridge.go's cachedConnState accessor.
func (h *Handshake) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Handshake) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// SessionCrypto returns the derived envelope once the handshake reaches
// Ready; nil before that.
func (h *Handshake) SessionCrypto() *crypto.SessionCrypto {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.crypt
}

// Run drives the handshake to completion, returning nil only if the final
// state is Ready or Disabled. Any other outcome is returned as an error and
// the state is left at Failed.
func (h *Handshake) Run(ctx context.Context) error {
	var err error
	if h.cfg.Role == RoleInitiator {
		err = h.runInitiator(ctx)
	} else {
		err = h.runResponder(ctx)
	}
	if err != nil {
		h.setState(StateFailed)
		_ = h.transport.Close()
		return err
	}
	return nil
}

func (h *Handshake) send(msg protocol.Message) error {
	return h.transport.Send(msg.Kind(), msg.Encode())
}

// recvKind blocks for the next packet and verifies it has the expected
// kind; AuthFailed and SessionError are surfaced as errors regardless of
// what was expected, since they can arrive in place of any response.
func (h *Handshake) recvKind(want protocol.Kind) ([]byte, error) {
	kind, payload, err := h.transport.Receive()
	if err != nil {
		return nil, err
	}
	if kind == protocol.KindAuthFailed {
		af, decodeErr := protocol.DecodeAuthFailed(payload)
		if decodeErr == nil {
			return nil, errs.New(errs.KindCryptoAuth, "peer sent auth failed: %s", af.Reason)
		}
		return nil, errs.New(errs.KindCryptoAuth, "peer sent auth failed")
	}
	if kind != want {
		return nil, errs.New(errs.KindProtocolUnexpected, "expected packet kind %s, got %s", want, kind)
	}
	return payload, nil
}
