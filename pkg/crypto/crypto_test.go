package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/ascii-chat-core/pkg/protocol"
)

func TestEphemeralKeyExchangeProducesSharedSecret(t *testing.T) {
	alice, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)
	bob, err := GenerateEphemeralKeyPair()
	require.NoError(t, err)

	aliceSecret, err := alice.SharedSecret(bob.Public)
	require.NoError(t, err)
	bobSecret, err := bob.SharedSecret(alice.Public)
	require.NoError(t, err)

	assert.Equal(t, aliceSecret, bobSecret)
}

func TestIdentitySignAndVerify(t *testing.T) {
	kp, err := GenerateIdentityKeyPair()
	require.NoError(t, err)

	msg := SigningContext([]byte("ephemeral-pubkey"), "client")
	sig := kp.Sign(msg)

	assert.True(t, VerifySignature(kp.Public, msg, sig))
	assert.False(t, VerifySignature(kp.Public, msg, append([]byte{}, sig[1:]...)))

	other, err := GenerateIdentityKeyPair()
	require.NoError(t, err)
	assert.False(t, VerifySignature(other.Public, msg, sig))
}

func TestDeriveSessionKeyIsDeterministicGivenSameInputs(t *testing.T) {
	secret := []byte("shared-secret-bytes-shared-secret")
	salt := []byte("salt-value")

	a, err := deriveKeyOnly(secret, salt, "session-send")
	require.NoError(t, err)
	b, err := deriveKeyOnly(secret, salt, "session-send")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

// deriveKeyOnly derives just the key bytes (ignoring the random nonce
// prefix) so the test can assert HKDF determinism without depending on
// SessionKey's unexported fields from outside the package... this lives in
// the package itself so it can reach them directly.
func deriveKeyOnly(secret, salt []byte, info string) ([32]byte, error) {
	sk, err := DeriveSessionKey(secret, salt, info)
	if err != nil {
		return [32]byte{}, err
	}
	return sk.key, nil
}

func TestSessionKeySealOpenRoundTrip(t *testing.T) {
	secret := []byte("another-shared-secret-for-testing")
	sk, err := DeriveSessionKey(secret, []byte("salt"), "test")
	require.NoError(t, err)

	plaintext := []byte("hello session")
	nonce, ciphertext, err := sk.Seal(plaintext)
	require.NoError(t, err)

	opened, err := sk.Open(nonce, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSessionKeyOpenRejectsTamperedCiphertext(t *testing.T) {
	secret := []byte("yet-another-shared-secret-value")
	sk, err := DeriveSessionKey(secret, []byte("salt"), "test")
	require.NoError(t, err)

	nonce, ciphertext, err := sk.Seal([]byte("authentic"))
	require.NoError(t, err)

	tampered := append([]byte{}, ciphertext...)
	tampered[0] ^= 0xFF

	_, err = sk.Open(nonce, tampered)
	assert.Error(t, err)
}

func TestSessionKeyNonceCounterMonotonic(t *testing.T) {
	secret := []byte("monotonic-counter-shared-secret!")
	sk, err := DeriveSessionKey(secret, []byte("salt"), "test")
	require.NoError(t, err)

	n1, _, err := sk.Seal([]byte("first"))
	require.NoError(t, err)
	n2, _, err := sk.Seal([]byte("second"))
	require.NoError(t, err)

	assert.NotEqual(t, n1, n2)
	assert.Equal(t, n1[:16], n2[:16], "nonce prefix must stay fixed for a key's lifetime")
}

func TestSessionKeyEqual(t *testing.T) {
	secret := []byte("equality-check-shared-secret-val")
	a, err := DeriveSessionKey(secret, []byte("salt"), "ctx")
	require.NoError(t, err)
	b, err := DeriveSessionKey(secret, []byte("salt"), "ctx")
	require.NoError(t, err)

	assert.True(t, a.Equal(b))

	c, err := DeriveSessionKey(secret, []byte("different-salt"), "ctx")
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
}

func TestHMACChallengeVerification(t *testing.T) {
	secret := []byte("hmac-challenge-shared-secret-val")
	sk, err := DeriveSessionKey(secret, []byte("salt"), "ctx")
	require.NoError(t, err)

	challenge := []byte("server-nonce")
	tag := HMACChallenge(sk, challenge, "auth-response", nil)

	assert.True(t, VerifyHMAC(tag, HMACChallenge(sk, challenge, "auth-response", nil)))
	assert.False(t, VerifyHMAC(tag, HMACChallenge(sk, challenge, "auth-response", []byte("pw"))))
}

func TestFingerprintIsStableAndDistinct(t *testing.T) {
	kp1, err := GenerateIdentityKeyPair()
	require.NoError(t, err)
	kp2, err := GenerateIdentityKeyPair()
	require.NoError(t, err)

	fp1a, err := Fingerprint(kp1.Public)
	require.NoError(t, err)
	fp1b, err := Fingerprint(kp1.Public)
	require.NoError(t, err)
	fp2, err := Fingerprint(kp2.Public)
	require.NoError(t, err)

	assert.Equal(t, fp1a, fp1b)
	assert.NotEqual(t, fp1a, fp2)
}

func TestDerivePasswordKeyDeterministic(t *testing.T) {
	params, err := DefaultArgon2Params()
	require.NoError(t, err)

	a := DerivePasswordKey("hunter2", params)
	b := DerivePasswordKey("hunter2", params)
	c := DerivePasswordKey("different", params)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSessionCryptoSealOpenRoundTrip(t *testing.T) {
	secretAB := []byte("a-to-b-shared-secret-bytes-here!")
	secretBA := []byte("b-to-a-shared-secret-bytes-here!")

	aSend, err := DeriveSessionKey(secretAB, []byte("salt"), "a->b")
	require.NoError(t, err)
	aRecv, err := DeriveSessionKey(secretBA, []byte("salt"), "b->a")
	require.NoError(t, err)
	bSend, err := DeriveSessionKey(secretBA, []byte("salt"), "b->a")
	require.NoError(t, err)
	bRecv, err := DeriveSessionKey(secretAB, []byte("salt"), "a->b")
	require.NoError(t, err)

	a := NewSessionCrypto(aSend, aRecv)
	b := NewSessionCrypto(bSend, bRecv)

	payload := []byte("ping payload")
	envelope, err := a.Seal(protocol.KindPing, payload)
	require.NoError(t, err)

	plaintext, err := b.Open(envelope)
	require.NoError(t, err)

	kind, innerPayload, err := protocol.ReadFrom(bytes.NewReader(plaintext), len(plaintext))
	require.NoError(t, err)
	assert.Equal(t, protocol.KindPing, kind)
	assert.Equal(t, payload, innerPayload)
}

func TestSessionCryptoRekeySwapsKeys(t *testing.T) {
	secret1 := []byte("rekey-test-shared-secret-value-1")
	secret2 := []byte("rekey-test-shared-secret-value-2")

	send1, err := DeriveSessionKey(secret1, []byte("salt"), "ctx")
	require.NoError(t, err)
	recv1, err := DeriveSessionKey(secret1, []byte("salt"), "ctx")
	require.NoError(t, err)
	sc := NewSessionCrypto(send1, recv1)

	envelope1, err := sc.Seal(protocol.KindPing, []byte("before rekey"))
	require.NoError(t, err)

	send2, err := DeriveSessionKey(secret2, []byte("salt"), "ctx")
	require.NoError(t, err)
	recv2, err := DeriveSessionKey(secret2, []byte("salt"), "ctx")
	require.NoError(t, err)
	sc.Rekey(send2, recv2)

	_, err = sc.Open(envelope1)
	assert.Error(t, err, "old-key envelope must not decrypt under the new key")

	envelope2, err := sc.Seal(protocol.KindPing, []byte("after rekey"))
	require.NoError(t, err)
	plaintext, err := sc.Open(envelope2)
	require.NoError(t, err)
	assert.NotEmpty(t, plaintext)
}
