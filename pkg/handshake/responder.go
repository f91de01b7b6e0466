package handshake

import (
	"context"
	"crypto/rand"

	"github.com/zfogg/ascii-chat-core/pkg/crypto"
	"github.com/zfogg/ascii-chat-core/pkg/errs"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
)

func (h *Handshake) runResponder(ctx context.Context) error {
	h.setState(StateInit)

	pvPayload, err := h.recvKind(protocol.KindProtocolVersion)
	if err != nil {
		return err
	}
	if _, err := protocol.DecodeProtocolVersion(pvPayload); err != nil {
		return err
	}
	if err := h.send(protocol.ProtocolVersion{
		Version:  protocol.ProtocolVersionMajor,
		Revision: protocol.ProtocolVersionMinor,
	}); err != nil {
		return err
	}

	if _, err := h.recvKind(protocol.KindCryptoCapabilities); err != nil {
		return err
	}
	caps := protocol.CryptoCapabilities{
		KexBitmap:    1 << KexX25519,
		AuthBitmap:   1 << AuthPasswordOrKey,
		CipherBitmap: 1 << CipherXSalsa20Poly1305,
	}
	if h.cfg.RequireClientKey {
		caps.RequiresVerification = 1
	}
	if err := h.send(caps); err != nil {
		return err
	}

	if !h.cfg.EncryptEnabled {
		h.setState(StateDisabled)
		return nil
	}

	h.setState(StateKeyExchange)

	argon2Params, err := crypto.DefaultArgon2Params()
	if err != nil {
		return err
	}
	params := protocol.CryptoParameters{
		SelectedKex:    KexX25519,
		SelectedAuth:   AuthPasswordOrKey,
		SelectedCipher: CipherXSalsa20Poly1305,
		KexPubkeySize:  crypto.EphemeralKeySize,
		SignatureSize:  crypto.IdentitySignatureSize,
		Argon2: protocol.Argon2Params{
			TimeCost:    argon2Params.TimeCost,
			MemoryCost:  argon2Params.MemoryCost,
			Parallelism: argon2Params.Parallelism,
			Salt:        argon2Params.Salt,
		},
	}
	if err := h.send(params); err != nil {
		return err
	}

	h.ephemeral, err = crypto.GenerateEphemeralKeyPair()
	if err != nil {
		return err
	}
	defer h.ephemeral.Wipe()

	initMsg := protocol.KeyExchangeInit{KeyExchange: protocol.KeyExchange{
		EphemeralPubkey: h.ephemeral.Public[:],
	}}
	if h.cfg.Identity != nil {
		msg := crypto.SigningContext(h.ephemeral.Public[:], "responder")
		initMsg.IdentityPubkey = h.cfg.Identity.Public
		initMsg.Signature = h.cfg.Identity.Sign(msg)
	}
	if err := h.send(initMsg); err != nil {
		return err
	}

	respPayload, err := h.recvKind(protocol.KindKeyExchangeResp)
	if err != nil {
		return err
	}
	initiatorKex, err := protocol.DecodeKeyExchange(respPayload, int(params.KexPubkeySize))
	if err != nil {
		return err
	}
	if err := h.verifyPeerIdentity(initiatorKex, "initiator"); err != nil {
		return err
	}

	var peerPub [crypto.EphemeralKeySize]byte
	copy(peerPub[:], initiatorKex.EphemeralPubkey)
	shared, err := h.ephemeral.SharedSecret(peerPub)
	if err != nil {
		return err
	}
	defer zero(shared)

	recvKey, err := crypto.DeriveSessionKey(shared, nil, "initiator->responder")
	if err != nil {
		return err
	}
	sendKey, err := crypto.DeriveSessionKey(shared, nil, "responder->initiator")
	if err != nil {
		return err
	}
	h.crypt = crypto.NewSessionCrypto(sendKey, recvKey)
	h.transport.SetEncryption(h.crypt)

	h.setState(StateAuthenticating)

	var requirements uint8
	if h.cfg.RequirePassword {
		requirements |= protocol.AuthRequirePassword
	}
	if h.cfg.RequireClientKey {
		requirements |= protocol.AuthRequireClientKey
	}
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return errs.Wrap(errs.KindCryptoInit, err, "generate auth challenge nonce")
	}
	if err := h.send(protocol.AuthChallenge{Requirements: requirements, Nonce: nonce}); err != nil {
		return err
	}

	authPayload, err := h.recvKind(protocol.KindAuthResponse)
	if err != nil {
		return err
	}
	authResp, err := protocol.DecodeAuthResponse(authPayload)
	if err != nil {
		return err
	}

	if h.cfg.RequirePassword {
		pwKey := crypto.DerivePasswordKey(h.cfg.Password, pwParamsFrom(params.Argon2))
		expected := crypto.HMACChallenge(recvKey, nonce[:], "auth", pwKey)
		if !crypto.VerifyHMAC(expected, authResp.HMAC) {
			return h.authFailed("password verification failed")
		}
	}
	if h.cfg.RequireClientKey {
		if h.cfg.Whitelist == nil || !h.cfg.Whitelist.Allowed("ed25519", authResp.IdentityPubkey) {
			return h.authFailed("client identity key not in whitelist")
		}
		rawKey := recvKey.Raw()
		sigMsg := append(append([]byte{}, nonce[:]...), rawKey[:]...)
		if !crypto.VerifySignature(authResp.IdentityPubkey, sigMsg, authResp.Signature) {
			return h.authFailed("client identity signature invalid")
		}
		h.peerIdentity = authResp.IdentityPubkey
	}

	serverHMAC := crypto.HMACNonce(sendKey, nonce[:])
	var success protocol.AuthSuccess
	copy(success.ServerHMAC[:], serverHMAC)
	if err := h.send(success); err != nil {
		return err
	}

	h.setState(StateReady)
	return nil
}

func (h *Handshake) authFailed(reason string) error {
	_ = h.send(protocol.AuthFailed{Reason: reason})
	return errs.New(errs.KindCryptoAuth, "%s", reason)
}
