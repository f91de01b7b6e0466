package handshake

import (
	"context"

	"github.com/zfogg/ascii-chat-core/pkg/crypto"
	"github.com/zfogg/ascii-chat-core/pkg/errs"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
)

func (h *Handshake) runInitiator(ctx context.Context) error {
	h.setState(StateInit)

	if err := h.send(protocol.ProtocolVersion{
		Version:  protocol.ProtocolVersionMajor,
		Revision: protocol.ProtocolVersionMinor,
	}); err != nil {
		return err
	}
	pvPayload, err := h.recvKind(protocol.KindProtocolVersion)
	if err != nil {
		return err
	}
	if _, err := protocol.DecodeProtocolVersion(pvPayload); err != nil {
		return err
	}

	caps := protocol.CryptoCapabilities{
		KexBitmap:    1 << KexX25519,
		AuthBitmap:   1 << AuthPasswordOrKey,
		CipherBitmap: 1 << CipherXSalsa20Poly1305,
	}
	if h.cfg.Identity != nil {
		caps.RequiresVerification = 1
	}
	if err := h.send(caps); err != nil {
		return err
	}
	if _, err := h.recvKind(protocol.KindCryptoCapabilities); err != nil {
		return err
	}

	if !h.cfg.EncryptEnabled {
		h.setState(StateDisabled)
		return nil
	}

	h.setState(StateKeyExchange)

	paramsPayload, err := h.recvKind(protocol.KindCryptoParameters)
	if err != nil {
		return err
	}
	params, err := protocol.DecodeCryptoParameters(paramsPayload)
	if err != nil {
		return err
	}

	initPayload, err := h.recvKind(protocol.KindKeyExchangeInit)
	if err != nil {
		return err
	}
	responderKex, err := protocol.DecodeKeyExchange(initPayload, int(params.KexPubkeySize))
	if err != nil {
		return err
	}
	if err := h.verifyPeerIdentity(responderKex, "responder"); err != nil {
		return err
	}

	h.ephemeral, err = crypto.GenerateEphemeralKeyPair()
	if err != nil {
		return err
	}
	defer h.ephemeral.Wipe()

	resp := protocol.KeyExchangeResp{KeyExchange: protocol.KeyExchange{
		EphemeralPubkey: h.ephemeral.Public[:],
	}}
	if h.cfg.Identity != nil {
		msg := crypto.SigningContext(h.ephemeral.Public[:], "initiator")
		resp.IdentityPubkey = h.cfg.Identity.Public
		resp.Signature = h.cfg.Identity.Sign(msg)
	}
	if err := h.send(resp); err != nil {
		return err
	}

	var peerPub [crypto.EphemeralKeySize]byte
	copy(peerPub[:], responderKex.EphemeralPubkey)
	shared, err := h.ephemeral.SharedSecret(peerPub)
	if err != nil {
		return err
	}
	defer zero(shared)

	sendKey, err := crypto.DeriveSessionKey(shared, nil, "initiator->responder")
	if err != nil {
		return err
	}
	recvKey, err := crypto.DeriveSessionKey(shared, nil, "responder->initiator")
	if err != nil {
		return err
	}
	h.crypt = crypto.NewSessionCrypto(sendKey, recvKey)
	h.transport.SetEncryption(h.crypt)

	h.setState(StateAuthenticating)

	challengePayload, err := h.recvKind(protocol.KindAuthChallenge)
	if err != nil {
		return err
	}
	challenge, err := protocol.DecodeAuthChallenge(challengePayload)
	if err != nil {
		return err
	}

	var authResp protocol.AuthResponse
	if challenge.Requirements&protocol.AuthRequirePassword != 0 {
		pwKey := crypto.DerivePasswordKey(h.cfg.Password, pwParamsFrom(params.Argon2))
		authResp.HMAC = crypto.HMACChallenge(sendKey, challenge.Nonce[:], "auth", pwKey)
	}
	if challenge.Requirements&protocol.AuthRequireClientKey != 0 {
		if h.cfg.Identity == nil {
			return errs.New(errs.KindCryptoAuth, "server requires client identity key but none configured")
		}
		authResp.IdentityPubkey = h.cfg.Identity.Public
		rawKey := sendKey.Raw()
		sigMsg := append(append([]byte{}, challenge.Nonce[:]...), rawKey[:]...)
		authResp.Signature = h.cfg.Identity.Sign(sigMsg)
	}
	if err := h.send(authResp); err != nil {
		return err
	}

	successPayload, err := h.recvKind(protocol.KindAuthSuccess)
	if err != nil {
		return err
	}
	success, err := protocol.DecodeAuthSuccess(successPayload)
	if err != nil {
		return err
	}
	expectedServerHMAC := crypto.HMACNonce(recvKey, challenge.Nonce[:])
	if !crypto.VerifyHMAC(expectedServerHMAC, success.ServerHMAC[:]) {
		return errs.New(errs.KindCryptoVerification, "server HMAC verification failed")
	}

	h.setState(StateReady)
	return nil
}

// verifyPeerIdentity checks the peer's asserted identity signature (if
// present) and, for an initiator, cross-references the known-hosts
// fingerprint (§4.5's "client side" rule).
func (h *Handshake) verifyPeerIdentity(kex protocol.KeyExchange, role string) error {
	if len(kex.IdentityPubkey) == 0 {
		return nil
	}
	msg := crypto.SigningContext(kex.EphemeralPubkey, role)
	if !crypto.VerifySignature(kex.IdentityPubkey, msg, kex.Signature) {
		return errs.New(errs.KindCryptoVerification, "peer identity signature invalid")
	}
	h.peerIdentity = kex.IdentityPubkey

	if h.cfg.Role != RoleInitiator || h.cfg.KnownHosts == nil {
		return nil
	}

	fp, err := crypto.Fingerprint(kex.IdentityPubkey)
	if err != nil {
		return err
	}
	h.peerFP = fp

	matched, known := h.cfg.KnownHosts.Verify(h.cfg.HostPort, "ed25519", fp[:])
	if known && !matched {
		h.logger.Error("SERVER KEY MISMATCH", "host_port", h.cfg.HostPort)
		return errs.New(errs.KindCryptoVerification, "server key mismatch for %s", h.cfg.HostPort)
	}
	if !known {
		if !h.cfg.AllowFirstContact {
			return errs.New(errs.KindCryptoVerification, "unknown server fingerprint for %s, first contact not permitted", h.cfg.HostPort)
		}
		if err := h.cfg.KnownHosts.Add(h.cfg.HostPort, "ed25519", fp[:], ""); err != nil {
			return err
		}
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func pwParamsFrom(p protocol.Argon2Params) crypto.Argon2Params {
	return crypto.Argon2Params{
		TimeCost:    p.TimeCost,
		MemoryCost:  p.MemoryCost,
		Parallelism: p.Parallelism,
		Salt:        p.Salt,
	}
}
