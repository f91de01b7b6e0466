// Package crypto wraps the libsodium-equivalent primitives the handshake
// and transport layers need: X25519 ECDH, Ed25519 signatures,
// XSalsa20-Poly1305 AEAD, Argon2id password derivation, HMAC-SHA256
// challenge-response, and BLAKE2b fingerprints. See SPEC_FULL.md §4.4.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"golang.org/x/crypto/curve25519"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
)

// EphemeralKeySize and IdentitySignatureSize are the sizes carried in
// CryptoParameters.kex_pubkey_size / signature_size.
const (
	EphemeralKeySize      = 32
	IdentityPubkeySize    = ed25519.PublicKeySize
	IdentitySignatureSize = ed25519.SignatureSize
)

// EphemeralKeyPair is a per-session X25519 keypair. It is generated fresh
// for every connection attempt and wiped on teardown; it never touches
// disk.
type EphemeralKeyPair struct {
	Public  [EphemeralKeySize]byte
	private [EphemeralKeySize]byte
}

// GenerateEphemeralKeyPair creates a new X25519 keypair.
func GenerateEphemeralKeyPair() (*EphemeralKeyPair, error) {
	kp := &EphemeralKeyPair{}
	if _, err := rand.Read(kp.private[:]); err != nil {
		return nil, errs.Wrap(errs.KindCryptoInit, err, "generate ephemeral private key")
	}
	pub, err := curve25519.X25519(kp.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, errs.Wrap(errs.KindCryptoInit, err, "derive ephemeral public key")
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// SharedSecret computes the X25519 Diffie-Hellman shared secret with a
// peer's ephemeral public key. The result must be fed through a KDF (see
// DeriveSessionKey) before use as a symmetric key.
func (kp *EphemeralKeyPair) SharedSecret(peerPublic [EphemeralKeySize]byte) ([]byte, error) {
	secret, err := curve25519.X25519(kp.private[:], peerPublic[:])
	if err != nil {
		return nil, errs.Wrap(errs.KindCryptoInit, err, "compute shared secret")
	}
	return secret, nil
}

// Wipe zeroes the private key. Called on session teardown and immediately
// after a rekey cycle retires the keypair it replaced.
func (kp *EphemeralKeyPair) Wipe() {
	for i := range kp.private {
		kp.private[i] = 0
	}
}

// IdentityKeyPair is a long-term Ed25519 identity keypair, loaded from disk
// or an agent (loading mechanism is an external collaborator; this package
// only operates on the raw key bytes once loaded).
type IdentityKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateIdentityKeyPair creates a new Ed25519 identity keypair. Used for
// first-run provisioning; ordinarily a keypair is loaded from disk.
func GenerateIdentityKeyPair() (*IdentityKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errs.Wrap(errs.KindCryptoInit, err, "generate identity keypair")
	}
	return &IdentityKeyPair{Public: pub, Private: priv}, nil
}

// Sign produces an Ed25519 signature over message.
func (kp *IdentityKeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.Private, message)
}

// VerifySignature checks an Ed25519 signature by a given public key.
func VerifySignature(pub ed25519.PublicKey, message, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, message, signature)
}

// SigningContext builds the "ephemeral || role" message the handshake signs
// over during KeyExchangeInit/Resp (§4.5 step 4/5).
func SigningContext(ephemeralPublic []byte, role string) []byte {
	msg := make([]byte, 0, len(ephemeralPublic)+len(role))
	msg = append(msg, ephemeralPublic...)
	msg = append(msg, role...)
	return msg
}
