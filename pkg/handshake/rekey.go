package handshake

import (
	"github.com/zfogg/ascii-chat-core/pkg/crypto"
	"github.com/zfogg/ascii-chat-core/pkg/errs"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
)

// rekeyRequesterToResponder / rekeyResponderToRequester label the two
// derived keys so the requester's send key is always the responder's
// receive key, regardless of which original handshake role (initiator or
// responder) happens to notice the rekey threshold first.
const (
	rekeyRequesterToResponder = "rekey-requester->responder"
	rekeyResponderToRequester = "rekey-responder->requester"
)

// RekeyAsRequester drives one rekey round as the side that noticed a
// threshold trip (§4.5 "Rekeying", driven by pkg/keepalive). It generates a
// fresh ephemeral keypair and exchanges it for the peer's, then commits both
// new session keys and sends RekeyComplete sealed under the new send key. It
// does not wait for a reply; the responder keeps its old send key until that
// RekeyComplete opens under its new receive key.
func (h *Handshake) RekeyAsRequester() error {
	if h.State() != StateReady {
		return errs.New(errs.KindProtocolUnexpected, "rekey requested while handshake not ready")
	}

	fresh, err := crypto.GenerateEphemeralKeyPair()
	if err != nil {
		return err
	}
	defer fresh.Wipe()

	if err := h.send(protocol.RekeyRequest{EphemeralPubkey: fresh.Public[:]}); err != nil {
		return err
	}

	payload, err := h.recvKind(protocol.KindRekeyResponse)
	if err != nil {
		return err
	}
	peerPubkey, err := protocol.DecodeRekeyKey(payload, crypto.EphemeralKeySize)
	if err != nil {
		return err
	}

	var peerPub [crypto.EphemeralKeySize]byte
	copy(peerPub[:], peerPubkey)
	shared, err := fresh.SharedSecret(peerPub)
	if err != nil {
		return err
	}
	defer zero(shared)

	newSend, err := crypto.DeriveSessionKey(shared, nil, rekeyRequesterToResponder)
	if err != nil {
		return err
	}
	newRecv, err := crypto.DeriveSessionKey(shared, nil, rekeyResponderToRequester)
	if err != nil {
		return err
	}

	// Commit both keys before sending RekeyComplete so it is sealed under
	// the new send key, matching what RekeyAsResponder decrypts it with.
	h.crypt.Rekey(newSend, newRecv)

	if err := h.send(protocol.RekeyComplete{}); err != nil {
		return err
	}

	return nil
}

// RekeyAsResponder handles an incoming RekeyRequest: per §4.5, the
// responder switches its *receive* key to the fresh one immediately but
// keeps sending on the old key until RekeyComplete arrives decrypted
// correctly under the new key, at which point both directions commit.
func (h *Handshake) RekeyAsResponder() error {
	if h.State() != StateReady {
		return errs.New(errs.KindProtocolUnexpected, "rekey received while handshake not ready")
	}

	payload, err := h.recvKind(protocol.KindRekeyRequest)
	if err != nil {
		return err
	}
	peerPubkey, err := protocol.DecodeRekeyKey(payload, crypto.EphemeralKeySize)
	if err != nil {
		return err
	}

	fresh, err := crypto.GenerateEphemeralKeyPair()
	if err != nil {
		return err
	}
	defer fresh.Wipe()

	if err := h.send(protocol.RekeyResponse{EphemeralPubkey: fresh.Public[:]}); err != nil {
		return err
	}

	var peerPub [crypto.EphemeralKeySize]byte
	copy(peerPub[:], peerPubkey)
	shared, err := fresh.SharedSecret(peerPub)
	if err != nil {
		return err
	}
	defer zero(shared)

	newSend, err := crypto.DeriveSessionKey(shared, nil, rekeyResponderToRequester)
	if err != nil {
		return err
	}
	newRecv, err := crypto.DeriveSessionKey(shared, nil, rekeyRequesterToResponder)
	if err != nil {
		return err
	}

	// Swap the receive key now so RekeyComplete, which arrives encrypted
	// under the new key, decrypts; the send key still in use is replaced
	// only once RekeyComplete is verified.
	h.crypt.RekeyRecv(newRecv)

	if _, err := h.recvKind(protocol.KindRekeyComplete); err != nil {
		return err
	}

	h.crypt.Rekey(newSend, newRecv)
	return nil
}
