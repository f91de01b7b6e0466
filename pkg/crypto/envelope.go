package crypto

import (
	"bytes"
	"sync"
	"time"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
)

// SessionCrypto implements transport.Envelope (structurally; pkg/transport
// doesn't import this package). It
// pairs a send key and a receive key, since the handshake derives distinct
// keys per direction (§4.5) so a replayed packet can never be bounced back
// at its sender under the same key.
type SessionCrypto struct {
	mu   sync.RWMutex
	send *SessionKey
	recv *SessionKey
}

// NewSessionCrypto wraps a send/receive SessionKey pair produced by the
// handshake's key derivation step.
func NewSessionCrypto(send, recv *SessionKey) *SessionCrypto {
	return &SessionCrypto{send: send, recv: recv}
}

// Rekey swaps in a fresh send/receive key pair, following the RCU-style
// double-buffer policy of §5: callers must ensure no concurrent Seal/Open is
// using the old keys' wiped memory, which in practice means the handshake's
// rekey-complete step swaps keys before wiping the retired ones.
func (sc *SessionCrypto) Rekey(send, recv *SessionKey) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.send, sc.recv = send, recv
}

// RekeyRecv swaps only the receive key, leaving the send key untouched.
// Used by a rekey responder (§4.5): it must accept RekeyComplete under the
// new receive key while still sending on the old key until the round-trip
// commits.
func (sc *SessionCrypto) RekeyRecv(recv *SessionKey) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.recv = recv
}

// SendKeyStats reports the current send key's cumulative bytes sealed and
// its age, so the keepalive scheduler (§4.12) can decide whether either
// rekey threshold has been crossed without reaching into key internals.
func (sc *SessionCrypto) SendKeyStats() (bytesSent uint64, age time.Duration) {
	sc.mu.RLock()
	sendKey := sc.send
	sc.mu.RUnlock()
	return sendKey.BytesSent(), sendKey.Age()
}

// Seal frames kind/plaintext into a single packet, encrypts it under the
// current send key, and returns the EncryptedEnvelope payload to transmit.
func (sc *SessionCrypto) Seal(kind protocol.Kind, plaintext []byte) ([]byte, error) {
	sc.mu.RLock()
	sendKey := sc.send
	sc.mu.RUnlock()

	var inner bytes.Buffer
	if err := protocol.WriteTo(&inner, kind, plaintext); err != nil {
		return nil, err
	}

	nonce, ciphertext, err := sendKey.Seal(inner.Bytes())
	if err != nil {
		return nil, err
	}

	env := protocol.EncryptedEnvelope{Nonce: nonce, Ciphertext: ciphertext}
	return env.Encode(), nil
}

// Open decrypts an EncryptedEnvelope payload under the current receive key,
// returning the inner framed packet bytes for the transport to re-parse.
func (sc *SessionCrypto) Open(envelopePayload []byte) ([]byte, error) {
	env, err := protocol.DecodeEncryptedEnvelope(envelopePayload)
	if err != nil {
		return nil, err
	}

	sc.mu.RLock()
	recvKey := sc.recv
	sc.mu.RUnlock()

	plaintext, err := recvKey.Open(env.Nonce, env.Ciphertext)
	if err != nil {
		return nil, errs.Wrap(errs.KindCryptoVerification, err, "open encrypted envelope")
	}
	return plaintext, nil
}
