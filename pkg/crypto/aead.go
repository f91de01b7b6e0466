package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
)

const (
	// NonceSize matches the envelope's 24-byte nonce (§3, §4.4): a random
	// 16-byte prefix followed by an 8-byte big-endian counter.
	NonceSize     = 24
	noncePrefix   = 16
	keySize       = 32
	// MaxMessagesPerKey is the 2^48 message cap per key before a rekey is
	// mandatory (§4.4).
	MaxMessagesPerKey = 1 << 48
)

// SessionKey is a derived symmetric key with its own nonce counter. Each
// rekey epoch gets a fresh SessionKey; the nonce counter always restarts at
// zero for a new key.
type SessionKey struct {
	key       [keySize]byte
	prefix    [noncePrefix]byte
	counter   atomic.Uint64
	bytesSent atomic.Uint64
	createdAt time.Time
}

// DeriveSessionKey runs the X25519 shared secret through HKDF-SHA256 to
// produce the symmetric session key, matching the "derive a session key"
// step after KeyExchangeResp in §4.5.
func DeriveSessionKey(sharedSecret []byte, salt []byte, info string) (*SessionKey, error) {
	kdf := hkdf.New(sha256.New, sharedSecret, salt, []byte(info))
	sk := &SessionKey{createdAt: time.Now()}
	if _, err := io.ReadFull(kdf, sk.key[:]); err != nil {
		return nil, errs.Wrap(errs.KindCryptoInit, err, "derive session key")
	}
	if _, err := rand.Read(sk.prefix[:]); err != nil {
		return nil, errs.Wrap(errs.KindCryptoInit, err, "generate nonce prefix")
	}
	return sk, nil
}

// nextNonce returns the next nonce to use for sending, incrementing the
// counter. Returns an error once MaxMessagesPerKey is reached, signalling
// the caller (the handshake's rekey scheduler) that a rekey is mandatory.
func (sk *SessionKey) nextNonce() ([NonceSize]byte, error) {
	n := sk.counter.Add(1) - 1
	if n >= MaxMessagesPerKey {
		return [NonceSize]byte{}, errs.New(errs.KindCryptoInit, "nonce counter exhausted key, rekey required")
	}
	var nonce [NonceSize]byte
	copy(nonce[:noncePrefix], sk.prefix[:])
	binary.BigEndian.PutUint64(nonce[noncePrefix:], n)
	return nonce, nil
}

// Seal encrypts plaintext under this key, returning the nonce and
// ciphertext for an EncryptedEnvelope packet.
func (sk *SessionKey) Seal(plaintext []byte) (nonce [NonceSize]byte, ciphertext []byte, err error) {
	nonce, err = sk.nextNonce()
	if err != nil {
		return nonce, nil, err
	}
	ciphertext = secretbox.Seal(nil, plaintext, &nonce, &sk.key)
	sk.bytesSent.Add(uint64(len(ciphertext)))
	return nonce, ciphertext, nil
}

// BytesSent reports the cumulative ciphertext bytes sealed under this key,
// used by the keepalive scheduler's byte-threshold rekey check (§4.12).
func (sk *SessionKey) BytesSent() uint64 {
	return sk.bytesSent.Load()
}

// Age reports how long this key has been in service, used by the keepalive
// scheduler's time-threshold rekey check (§4.12).
func (sk *SessionKey) Age() time.Duration {
	return time.Since(sk.createdAt)
}

// Open decrypts ciphertext under this key and the given nonce. Any
// single-bit mutation of ciphertext or nonce makes this fail without
// releasing any plaintext, satisfying the AEAD tamper-detection property of
// SPEC_FULL.md §8.
func (sk *SessionKey) Open(nonce [NonceSize]byte, ciphertext []byte) ([]byte, error) {
	plaintext, ok := secretbox.Open(nil, ciphertext, &nonce, &sk.key)
	if !ok {
		return nil, errs.New(errs.KindCryptoVerification, "AEAD open failed")
	}
	return plaintext, nil
}

// Raw exposes the underlying key bytes. Used only where the protocol
// itself requires signing over the session key (AuthResponse's optional
// Ed25519 signature over challenge||session_key, §4.5 step 7); prefer
// Seal/Open/HMAC helpers everywhere else.
func (sk *SessionKey) Raw() [keySize]byte {
	return sk.key
}

// Equal reports whether two session keys hold the same key material,
// independent of nonce counter state. Used to assert both sides of a
// handshake derived identical keys.
func (sk *SessionKey) Equal(other *SessionKey) bool {
	if sk == nil || other == nil {
		return sk == other
	}
	return sk.key == other.key
}

// Wipe zeroes the symmetric key. Called once a rekey commits and all
// in-flight operations on the old key have drained (§5's RCU-style
// double-buffer policy).
func (sk *SessionKey) Wipe() {
	for i := range sk.key {
		sk.key[i] = 0
	}
}

// HMACChallenge computes HMAC-SHA256(sessionKey, challenge || context ||
// optionalPwKey), used by AuthResponse (§4.5 step 7).
func HMACChallenge(sessionKey *SessionKey, challenge []byte, context string, pwKey []byte) []byte {
	mac := hmac.New(sha256.New, sessionKey.key[:])
	mac.Write(challenge)
	mac.Write([]byte(context))
	if pwKey != nil {
		mac.Write(pwKey)
	}
	return mac.Sum(nil)
}

// HMACNonce computes HMAC-SHA256(sessionKey, nonce), used for the mutual
// auth nonce verification in AuthSuccess (§4.5).
func HMACNonce(sessionKey *SessionKey, nonce []byte) []byte {
	mac := hmac.New(sha256.New, sessionKey.key[:])
	mac.Write(nonce)
	return mac.Sum(nil)
}

// VerifyHMAC does a constant-time comparison of an HMAC tag.
func VerifyHMAC(expected, actual []byte) bool {
	return hmac.Equal(expected, actual)
}

// Fingerprint computes the BLAKE2b fingerprint of an identity public key,
// used for known-hosts and whitelist matching (§4.5).
func Fingerprint(pubkey []byte) ([32]byte, error) {
	return blake2b.Sum256(pubkey), nil
}
