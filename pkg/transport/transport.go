// Package transport provides the uniform send/receive/close contract over
// TCP, WebSocket, and WebRTC data-channel connections described in
// SPEC_FULL.md §4.3. All three implementations move the same framed bytes
// produced by pkg/protocol; only how a "message" is delimited on the wire
// differs (explicit length header for TCP, message boundary for WebSocket
// and data channel).
package transport

import (
	"bytes"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
)

// Envelope is the minimal crypto hook a Transport needs: given a packet
// kind and plaintext payload, return the encrypted envelope payload to send
// instead; given an encrypted envelope payload, return the decrypted
// plaintext. pkg/crypto's SessionCrypto satisfies this interface. Keeping
// the interface here means pkg/transport does not import pkg/crypto.
type Envelope interface {
	Seal(kind protocol.Kind, plaintext []byte) (payload []byte, err error)
	Open(envelopePayload []byte) (plaintext []byte, err error)
}

// Transport is the uniform contract every connection variant presents to
// the rest of the client core.
type Transport interface {
	// Send frames and writes kind/payload. Atomic from the peer's
	// perspective; partial sends are retried internally.
	Send(kind protocol.Kind, payload []byte) error

	// Receive blocks until a full packet is available. Returns
	// protocol.ErrDisconnected on clean close.
	Receive() (protocol.Kind, []byte, error)

	// Close shuts down the underlying channel. Later Send calls return a
	// KindNetworkClosed error. Later Receive calls may still return
	// packets that were already buffered; after that, the WebSocket and
	// data-channel transports return protocol.ErrDisconnected and the TCP
	// transport returns a KindNetworkClosed error.
	Close() error

	// SetEncryption installs (or clears, with nil) the envelope used to
	// wrap outbound packets and unwrap inbound ones. Packets whose kind is
	// in protocol.PreHandshakeKinds are never wrapped.
	SetEncryption(env Envelope)

	// Name identifies the transport in logs ("tcp", "websocket",
	// "webrtc-datachannel").
	Name() string
}

// shouldEncrypt reports whether an outbound packet of the given kind should
// be wrapped in an encrypted envelope given the currently installed
// Envelope, per §4.3's pre-handshake whitelist.
func shouldEncrypt(env Envelope, kind protocol.Kind) bool {
	if env == nil {
		return false
	}
	return !protocol.PreHandshakeKinds[kind]
}

// sealIfNeeded wraps payload in an encrypted envelope when encryption is
// active and kind is not in the pre-handshake whitelist, returning the
// (possibly rewritten) kind/payload pair to actually transmit.
func sealIfNeeded(env Envelope, kind protocol.Kind, payload []byte) (protocol.Kind, []byte, error) {
	if !shouldEncrypt(env, kind) {
		return kind, payload, nil
	}
	sealed, err := env.Seal(kind, payload)
	if err != nil {
		return 0, nil, err
	}
	return protocol.KindEncryptedEnvelope, sealed, nil
}

// openIfEnvelope decrypts and re-enters the codec on an encrypted envelope
// message, per §4.2: "the receive loop must decrypt, then re-enter the
// codec on the plaintext to obtain the real packet." Non-envelope packets
// pass through unchanged.
func openIfEnvelope(env Envelope, kind protocol.Kind, payload []byte) (protocol.Kind, []byte, error) {
	if kind != protocol.KindEncryptedEnvelope {
		return kind, payload, nil
	}
	if env == nil {
		return 0, nil, errs.New(errs.KindProtocolUnexpected, "received encrypted envelope with no session key installed")
	}
	plaintext, err := env.Open(payload)
	if err != nil {
		return 0, nil, err
	}
	innerKind, innerPayload, err := protocol.ReadFrom(bytes.NewReader(plaintext), len(plaintext))
	if err != nil {
		return 0, nil, err
	}
	return innerKind, innerPayload, nil
}
