// Package discovery implements the client side of the discovery-service RPC
// subset used during connection setup (SPEC_FULL.md §4.7): SessionLookup,
// SessionJoin, WebRtcSdp, WebRtcIce. It is grounded on the teacher's
// pkg/cloudflare/client.go - a small typed client wrapping one connection,
// exponential backoff with context-cancellation checks between retries, and
// structured slog logging of each outcome - retargeted from HTTP/JSON round
// trips to request/blocking-receive pairs over pkg/transport.
package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
)

// Client is a thin RPC wrapper over an already-connected transport to a
// discovery service.
type Client struct {
	t      transport.Transport
	logger *slog.Logger
}

// New wraps an established transport to the discovery service. The caller
// is responsible for running the handshake (§4.5) over t first if the
// service advertises encryption.
func New(t transport.Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{t: t, logger: logger}
}

// Lookup resolves a session string to its participant count without
// joining, via SessionLookup/SessionInfo.
func (c *Client) Lookup(ctx context.Context, sessionString string) (protocol.SessionInfo, error) {
	var info protocol.SessionInfo
	err := c.roundTrip(ctx, protocol.SessionLookup{SessionString: sessionString}, func(kind protocol.Kind, payload []byte) error {
		switch kind {
		case protocol.KindSessionInfo:
			decoded, err := protocol.DecodeSessionInfo(payload)
			if err != nil {
				return err
			}
			info = decoded
			return nil
		case protocol.KindSessionError:
			return sessionErr(payload)
		default:
			return errs.New(errs.KindProtocolUnexpected, "unexpected response to SessionLookup: %s", kind)
		}
	})
	return info, err
}

// Join joins the named session, optionally with a password, via
// SessionJoin/SessionJoined.
func (c *Client) Join(ctx context.Context, sessionString, password string) (protocol.SessionJoined, error) {
	var joined protocol.SessionJoined
	err := c.roundTrip(ctx, protocol.SessionJoin{
		SessionString: sessionString,
		HasPassword:   password != "",
		Password:      password,
	}, func(kind protocol.Kind, payload []byte) error {
		switch kind {
		case protocol.KindSessionJoined:
			decoded, err := protocol.DecodeSessionJoined(payload)
			if err != nil {
				return err
			}
			joined = decoded
			return nil
		case protocol.KindSessionError:
			return sessionErr(payload)
		default:
			return errs.New(errs.KindProtocolUnexpected, "unexpected response to SessionJoin: %s", kind)
		}
	})
	return joined, err
}

// SendSDP relays a local SDP offer/answer through the discovery service to
// recipientID (the broadcast zero-UUID for "anyone joining").
func (c *Client) SendSDP(sessionID, recipientID uuid.UUID, sdpType uint8, sdp string) error {
	msg := protocol.WebRtcSdp{SDPType: sdpType, SDP: sdp}
	copy(msg.SessionID[:], sessionID[:])
	copy(msg.RecipientID[:], recipientID[:])
	return c.t.Send(msg.Kind(), msg.Encode())
}

// SendICE relays a local ICE candidate.
func (c *Client) SendICE(sessionID, recipientID uuid.UUID, candidate, sdpMid string, sdpMLineIndex uint16) error {
	msg := protocol.WebRtcIce{
		Candidate:     candidate,
		SDPMid:        sdpMid,
		SDPMLineIndex: sdpMLineIndex,
	}
	copy(msg.SessionID[:], sessionID[:])
	copy(msg.RecipientID[:], recipientID[:])
	return c.t.Send(msg.Kind(), msg.Encode())
}

// Next blocks for the next inbound signalling packet (WebRtcSdp or
// WebRtcIce), used by cmd/client's pumpSignalling relay loop (§4.6).
func (c *Client) Next() (protocol.Kind, []byte, error) {
	return c.t.Receive()
}

// roundTrip sends req and waits for exactly one reply, with retry/backoff
// on transport-level send errors, following AddTracksWithRetry's shape.
// Decode errors and SessionError replies are not retried - they are
// authoritative responses, not transient failures.
func (c *Client) roundTrip(ctx context.Context, req protocol.Message, handle func(protocol.Kind, []byte) error) error {
	const maxRetries = 3
	backoff := 100 * time.Millisecond
	const maxBackoff = 2 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.t.Send(req.Kind(), req.Encode()); err != nil {
			lastErr = err

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if attempt < maxRetries-1 {
				c.logger.Warn("retrying discovery request",
					"kind", req.Kind(), "attempt", attempt+1, "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(min(backoff, maxBackoff)):
				}
				backoff *= 2
			}
			continue
		}

		kind, payload, err := c.t.Receive()
		if err != nil {
			return err
		}
		return handle(kind, payload)
	}

	return errs.Wrap(errs.KindNetworkConnect, lastErr, "discovery request %s: max retries exceeded", req.Kind())
}

func sessionErr(payload []byte) error {
	se, err := protocol.DecodeSessionError(payload)
	if err != nil {
		return errs.New(errs.KindProtocolUnexpected, "malformed SessionError")
	}
	return errs.New(errs.KindNetworkConnect, "session error: %s", se.Reason)
}

func min(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
