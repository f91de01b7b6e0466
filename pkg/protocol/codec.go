package protocol

import "github.com/zfogg/ascii-chat-core/pkg/errs"

// Message is implemented by every typed packet payload. Encode/Decode are
// pure functions of the payload bytes, matching the redesign note in §9
// that replaces untyped memcpy+ntohl dispatch with a typed sum-type codec.
type Message interface {
	Kind() Kind
	Encode() []byte
}

// --- Control ---------------------------------------------------------------

type Ping struct{}

func (Ping) Kind() Kind     { return KindPing }
func (Ping) Encode() []byte { return nil }

type Pong struct{}

func (Pong) Kind() Kind     { return KindPong }
func (Pong) Encode() []byte { return nil }

type ClientJoin struct {
	DisplayName  string
	Capabilities uint32
}

func (ClientJoin) Kind() Kind { return KindClientJoin }
func (m ClientJoin) Encode() []byte {
	w := &writer{}
	w.lp16([]byte(m.DisplayName))
	w.u32(m.Capabilities)
	return w.bytes()
}
func DecodeClientJoin(payload []byte) (ClientJoin, error) {
	r := newReader(payload)
	name, err := r.lp16()
	if err != nil {
		return ClientJoin{}, err
	}
	caps, err := r.u32()
	if err != nil {
		return ClientJoin{}, err
	}
	if err := r.done(); err != nil {
		return ClientJoin{}, err
	}
	return ClientJoin{DisplayName: string(name), Capabilities: caps}, nil
}

type TerminalSize struct {
	Width, Height uint16
	Flags         uint32
}

func (TerminalSize) Kind() Kind { return KindTerminalSize }
func (m TerminalSize) Encode() []byte {
	w := &writer{}
	w.u16(m.Width)
	w.u16(m.Height)
	w.u32(m.Flags)
	return w.bytes()
}
func DecodeTerminalSize(payload []byte) (TerminalSize, error) {
	r := newReader(payload)
	width, err := r.u16()
	if err != nil {
		return TerminalSize{}, err
	}
	height, err := r.u16()
	if err != nil {
		return TerminalSize{}, err
	}
	flags, err := r.u32()
	if err != nil {
		return TerminalSize{}, err
	}
	return TerminalSize{Width: width, Height: height, Flags: flags}, r.done()
}

type ServerState struct {
	ActiveClientCount uint32
}

func (ServerState) Kind() Kind { return KindServerState }
func (m ServerState) Encode() []byte {
	w := &writer{}
	w.u32(m.ActiveClientCount)
	return w.bytes()
}
func DecodeServerState(payload []byte) (ServerState, error) {
	r := newReader(payload)
	count, err := r.u32()
	if err != nil {
		return ServerState{}, err
	}
	return ServerState{ActiveClientCount: count}, r.done()
}

type StreamStart struct{ StreamType uint32 }

func (StreamStart) Kind() Kind       { return KindStreamStart }
func (m StreamStart) Encode() []byte { w := &writer{}; w.u32(m.StreamType); return w.bytes() }

type StreamStop struct{ StreamType uint32 }

func (StreamStop) Kind() Kind       { return KindStreamStop }
func (m StreamStop) Encode() []byte { w := &writer{}; w.u32(m.StreamType); return w.bytes() }

func decodeStreamType(payload []byte) (uint32, error) {
	r := newReader(payload)
	v, err := r.u32()
	if err != nil {
		return 0, err
	}
	return v, r.done()
}

func DecodeStreamStart(payload []byte) (StreamStart, error) {
	v, err := decodeStreamType(payload)
	return StreamStart{StreamType: v}, err
}

func DecodeStreamStop(payload []byte) (StreamStop, error) {
	v, err := decodeStreamType(payload)
	return StreamStop{StreamType: v}, err
}

// --- Media -------------------------------------------------------------

type VideoFrame struct {
	Width, Height  uint32
	CompressedFlag uint32
	Pixels         []byte
}

func (VideoFrame) Kind() Kind { return KindVideoFrame }
func (m VideoFrame) Encode() []byte {
	w := &writer{}
	w.u32(m.Width)
	w.u32(m.Height)
	w.u32(m.CompressedFlag)
	w.u32(uint32(len(m.Pixels)))
	w.raw(m.Pixels)
	return w.bytes()
}
func DecodeVideoFrame(payload []byte) (VideoFrame, error) {
	r := newReader(payload)
	width, err := r.u32()
	if err != nil {
		return VideoFrame{}, err
	}
	height, err := r.u32()
	if err != nil {
		return VideoFrame{}, err
	}
	flag, err := r.u32()
	if err != nil {
		return VideoFrame{}, err
	}
	size, err := r.u32()
	if err != nil {
		return VideoFrame{}, err
	}
	pixels, err := r.raw(int(size))
	if err != nil {
		return VideoFrame{}, err
	}
	if err := r.done(); err != nil {
		return VideoFrame{}, err
	}
	return VideoFrame{Width: width, Height: height, CompressedFlag: flag, Pixels: pixels}, nil
}

type AudioOpus struct {
	// Sequence increments once per packet sent by the capture pipeline.
	// The jitter buffer (§4.11) orders frames and detects gaps by this
	// field rather than by the transport's delivery order.
	Sequence   uint32
	SampleRate uint32
	FrameMs    uint16
	FrameSizes []uint16
	OpusData   []byte
}

func (AudioOpus) Kind() Kind { return KindAudioOpus }
func (m AudioOpus) Encode() []byte {
	w := &writer{}
	w.u32(m.Sequence)
	w.u32(m.SampleRate)
	w.u16(m.FrameMs)
	w.u16(uint16(len(m.FrameSizes)))
	for _, sz := range m.FrameSizes {
		w.u16(sz)
	}
	w.raw(m.OpusData)
	return w.bytes()
}
func DecodeAudioOpus(payload []byte) (AudioOpus, error) {
	r := newReader(payload)
	seq, err := r.u32()
	if err != nil {
		return AudioOpus{}, err
	}
	rate, err := r.u32()
	if err != nil {
		return AudioOpus{}, err
	}
	frameMs, err := r.u16()
	if err != nil {
		return AudioOpus{}, err
	}
	count, err := r.u16()
	if err != nil {
		return AudioOpus{}, err
	}
	sizes := make([]uint16, count)
	var total int
	for i := range sizes {
		sz, err := r.u16()
		if err != nil {
			return AudioOpus{}, err
		}
		sizes[i] = sz
		total += int(sz)
	}
	data, err := r.raw(total)
	if err != nil {
		return AudioOpus{}, err
	}
	if err := r.done(); err != nil {
		return AudioOpus{}, err
	}
	return AudioOpus{Sequence: seq, SampleRate: rate, FrameMs: frameMs, FrameSizes: sizes, OpusData: data}, nil
}

// --- Crypto / handshake --------------------------------------------------

type ProtocolVersion struct {
	Version             uint16
	Revision            uint16
	SupportsEncryption  uint8
	CompressionBitmap   uint16
	Threshold           uint32
	FeatureFlags        uint32
}

func (ProtocolVersion) Kind() Kind { return KindProtocolVersion }
func (m ProtocolVersion) Encode() []byte {
	w := &writer{}
	w.u16(m.Version)
	w.u16(m.Revision)
	w.u8(m.SupportsEncryption)
	w.u16(m.CompressionBitmap)
	w.u32(m.Threshold)
	w.u32(m.FeatureFlags)
	return w.bytes()
}
func DecodeProtocolVersion(payload []byte) (ProtocolVersion, error) {
	r := newReader(payload)
	var m ProtocolVersion
	var err error
	if m.Version, err = r.u16(); err != nil {
		return m, err
	}
	if m.Revision, err = r.u16(); err != nil {
		return m, err
	}
	if m.SupportsEncryption, err = r.u8(); err != nil {
		return m, err
	}
	if m.CompressionBitmap, err = r.u16(); err != nil {
		return m, err
	}
	if m.Threshold, err = r.u32(); err != nil {
		return m, err
	}
	if m.FeatureFlags, err = r.u32(); err != nil {
		return m, err
	}
	return m, r.done()
}

type CryptoCapabilities struct {
	KexBitmap            uint16
	AuthBitmap           uint16
	CipherBitmap         uint16
	RequiresVerification uint8
	PreferredKex         uint8
	PreferredAuth        uint8
	PreferredCipher      uint8
}

func (CryptoCapabilities) Kind() Kind { return KindCryptoCapabilities }
func (m CryptoCapabilities) Encode() []byte {
	w := &writer{}
	w.u16(m.KexBitmap)
	w.u16(m.AuthBitmap)
	w.u16(m.CipherBitmap)
	w.u8(m.RequiresVerification)
	w.u8(m.PreferredKex)
	w.u8(m.PreferredAuth)
	w.u8(m.PreferredCipher)
	return w.bytes()
}
func DecodeCryptoCapabilities(payload []byte) (CryptoCapabilities, error) {
	r := newReader(payload)
	var m CryptoCapabilities
	var err error
	if m.KexBitmap, err = r.u16(); err != nil {
		return m, err
	}
	if m.AuthBitmap, err = r.u16(); err != nil {
		return m, err
	}
	if m.CipherBitmap, err = r.u16(); err != nil {
		return m, err
	}
	if m.RequiresVerification, err = r.u8(); err != nil {
		return m, err
	}
	if m.PreferredKex, err = r.u8(); err != nil {
		return m, err
	}
	if m.PreferredAuth, err = r.u8(); err != nil {
		return m, err
	}
	if m.PreferredCipher, err = r.u8(); err != nil {
		return m, err
	}
	return m, r.done()
}

type Argon2Params struct {
	TimeCost    uint32
	MemoryCost  uint32
	Parallelism uint8
	Salt        []byte
}

type CryptoParameters struct {
	SelectedKex      uint8
	SelectedAuth     uint8
	SelectedCipher   uint8
	KexPubkeySize    uint16
	SignatureSize    uint16
	Argon2           Argon2Params
}

func (CryptoParameters) Kind() Kind { return KindCryptoParameters }
func (m CryptoParameters) Encode() []byte {
	w := &writer{}
	w.u8(m.SelectedKex)
	w.u8(m.SelectedAuth)
	w.u8(m.SelectedCipher)
	w.u16(m.KexPubkeySize)
	w.u16(m.SignatureSize)
	w.u32(m.Argon2.TimeCost)
	w.u32(m.Argon2.MemoryCost)
	w.u8(m.Argon2.Parallelism)
	w.lp16(m.Argon2.Salt)
	return w.bytes()
}
func DecodeCryptoParameters(payload []byte) (CryptoParameters, error) {
	r := newReader(payload)
	var m CryptoParameters
	var err error
	if m.SelectedKex, err = r.u8(); err != nil {
		return m, err
	}
	if m.SelectedAuth, err = r.u8(); err != nil {
		return m, err
	}
	if m.SelectedCipher, err = r.u8(); err != nil {
		return m, err
	}
	if m.KexPubkeySize, err = r.u16(); err != nil {
		return m, err
	}
	if m.SignatureSize, err = r.u16(); err != nil {
		return m, err
	}
	if m.Argon2.TimeCost, err = r.u32(); err != nil {
		return m, err
	}
	if m.Argon2.MemoryCost, err = r.u32(); err != nil {
		return m, err
	}
	if m.Argon2.Parallelism, err = r.u8(); err != nil {
		return m, err
	}
	if m.Argon2.Salt, err = r.lp16(); err != nil {
		return m, err
	}
	return m, r.done()
}

// KeyExchange carries both KeyExchangeInit and KeyExchangeResp; the
// identity fields are empty when identity is not being asserted this step.
type KeyExchange struct {
	EphemeralPubkey []byte
	IdentityPubkey  []byte // optional
	Signature       []byte // optional
}

func (m KeyExchange) encodeAs(k Kind) []byte {
	w := &writer{}
	w.raw(m.EphemeralPubkey)
	if len(m.IdentityPubkey) > 0 || len(m.Signature) > 0 {
		w.lp16(m.IdentityPubkey)
		w.lp16(m.Signature)
	}
	return w.bytes()
}

type KeyExchangeInit struct{ KeyExchange }

func (KeyExchangeInit) Kind() Kind         { return KindKeyExchangeInit }
func (m KeyExchangeInit) Encode() []byte   { return m.encodeAs(KindKeyExchangeInit) }

type KeyExchangeResp struct{ KeyExchange }

func (KeyExchangeResp) Kind() Kind       { return KindKeyExchangeResp }
func (m KeyExchangeResp) Encode() []byte { return m.encodeAs(KindKeyExchangeResp) }

// DecodeKeyExchange decodes the shared KeyExchangeInit/Resp shape given the
// negotiated ephemeral public key size from CryptoParameters.
func DecodeKeyExchange(payload []byte, kexPubkeySize int) (KeyExchange, error) {
	r := newReader(payload)
	eph, err := r.raw(kexPubkeySize)
	if err != nil {
		return KeyExchange{}, err
	}
	var m KeyExchange
	m.EphemeralPubkey = eph
	if r.remaining() > 0 {
		identity, err := r.lp16()
		if err != nil {
			return KeyExchange{}, err
		}
		sig, err := r.lp16()
		if err != nil {
			return KeyExchange{}, err
		}
		m.IdentityPubkey = identity
		m.Signature = sig
	}
	return m, r.done()
}

type AuthChallenge struct {
	Requirements uint8
	Nonce        [32]byte
}

func (AuthChallenge) Kind() Kind { return KindAuthChallenge }
func (m AuthChallenge) Encode() []byte {
	w := &writer{}
	w.u8(m.Requirements)
	w.raw(m.Nonce[:])
	return w.bytes()
}
func DecodeAuthChallenge(payload []byte) (AuthChallenge, error) {
	r := newReader(payload)
	reqs, err := r.u8()
	if err != nil {
		return AuthChallenge{}, err
	}
	nonce, err := r.raw(32)
	if err != nil {
		return AuthChallenge{}, err
	}
	var m AuthChallenge
	m.Requirements = reqs
	copy(m.Nonce[:], nonce)
	return m, r.done()
}

type AuthResponse struct {
	HMAC           []byte // 32 bytes, present iff password auth was required
	IdentityPubkey []byte
	Signature      []byte
}

func (AuthResponse) Kind() Kind { return KindAuthResponse }
func (m AuthResponse) Encode() []byte {
	w := &writer{}
	w.lp16(m.HMAC)
	w.lp16(m.IdentityPubkey)
	w.lp16(m.Signature)
	return w.bytes()
}
func DecodeAuthResponse(payload []byte) (AuthResponse, error) {
	r := newReader(payload)
	hmacBytes, err := r.lp16()
	if err != nil {
		return AuthResponse{}, err
	}
	identity, err := r.lp16()
	if err != nil {
		return AuthResponse{}, err
	}
	sig, err := r.lp16()
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{HMAC: hmacBytes, IdentityPubkey: identity, Signature: sig}, r.done()
}

type AuthSuccess struct{ ServerHMAC [32]byte }

func (AuthSuccess) Kind() Kind { return KindAuthSuccess }
func (m AuthSuccess) Encode() []byte {
	w := &writer{}
	w.raw(m.ServerHMAC[:])
	return w.bytes()
}
func DecodeAuthSuccess(payload []byte) (AuthSuccess, error) {
	r := newReader(payload)
	h, err := r.raw(32)
	if err != nil {
		return AuthSuccess{}, err
	}
	var m AuthSuccess
	copy(m.ServerHMAC[:], h)
	return m, r.done()
}

type AuthFailed struct{ Reason string }

func (AuthFailed) Kind() Kind { return KindAuthFailed }
func (m AuthFailed) Encode() []byte {
	w := &writer{}
	w.lp16([]byte(m.Reason))
	return w.bytes()
}
func DecodeAuthFailed(payload []byte) (AuthFailed, error) {
	r := newReader(payload)
	reason, err := r.lp16()
	if err != nil {
		return AuthFailed{}, err
	}
	return AuthFailed{Reason: string(reason)}, r.done()
}

type RekeyRequest struct{ EphemeralPubkey []byte }

func (RekeyRequest) Kind() Kind       { return KindRekeyRequest }
func (m RekeyRequest) Encode() []byte { w := &writer{}; w.raw(m.EphemeralPubkey); return w.bytes() }

type RekeyResponse struct{ EphemeralPubkey []byte }

func (RekeyResponse) Kind() Kind       { return KindRekeyResponse }
func (m RekeyResponse) Encode() []byte { w := &writer{}; w.raw(m.EphemeralPubkey); return w.bytes() }

func DecodeRekeyKey(payload []byte, kexPubkeySize int) ([]byte, error) {
	r := newReader(payload)
	key, err := r.raw(kexPubkeySize)
	if err != nil {
		return nil, err
	}
	return key, r.done()
}

type RekeyComplete struct{}

func (RekeyComplete) Kind() Kind     { return KindRekeyComplete }
func (RekeyComplete) Encode() []byte { return nil }

// --- Envelope ------------------------------------------------------------

type EncryptedEnvelope struct {
	Nonce      [24]byte
	Ciphertext []byte
}

func (EncryptedEnvelope) Kind() Kind { return KindEncryptedEnvelope }
func (m EncryptedEnvelope) Encode() []byte {
	w := &writer{}
	w.raw(m.Nonce[:])
	w.raw(m.Ciphertext)
	return w.bytes()
}
func DecodeEncryptedEnvelope(payload []byte) (EncryptedEnvelope, error) {
	r := newReader(payload)
	nonce, err := r.raw(24)
	if err != nil {
		return EncryptedEnvelope{}, err
	}
	ct, err := r.raw(r.remaining())
	if err != nil {
		return EncryptedEnvelope{}, err
	}
	var m EncryptedEnvelope
	copy(m.Nonce[:], nonce)
	m.Ciphertext = ct
	return m, nil
}

// --- Signalling ------------------------------------------------------------

type SessionLookup struct{ SessionString string }

func (SessionLookup) Kind() Kind { return KindSessionLookup }
func (m SessionLookup) Encode() []byte {
	w := &writer{}
	w.lp16([]byte(m.SessionString))
	return w.bytes()
}
func DecodeSessionLookup(payload []byte) (SessionLookup, error) {
	r := newReader(payload)
	s, err := r.lp16()
	if err != nil {
		return SessionLookup{}, err
	}
	return SessionLookup{SessionString: string(s)}, r.done()
}

type SessionJoin struct {
	SessionString string
	HasPassword   bool
	Password      string
}

func (SessionJoin) Kind() Kind { return KindSessionJoin }
func (m SessionJoin) Encode() []byte {
	w := &writer{}
	w.lp16([]byte(m.SessionString))
	if m.HasPassword {
		w.u8(1)
	} else {
		w.u8(0)
	}
	w.lp16([]byte(m.Password))
	return w.bytes()
}
func DecodeSessionJoin(payload []byte) (SessionJoin, error) {
	r := newReader(payload)
	s, err := r.lp16()
	if err != nil {
		return SessionJoin{}, err
	}
	hasPw, err := r.u8()
	if err != nil {
		return SessionJoin{}, err
	}
	pw, err := r.lp16()
	if err != nil {
		return SessionJoin{}, err
	}
	return SessionJoin{SessionString: string(s), HasPassword: hasPw != 0, Password: string(pw)}, r.done()
}

type TurnCredentials struct {
	Username string
	Password string
	TTL      uint32
}

type SessionJoined struct {
	SessionID     [16]byte
	ParticipantID [16]byte
	ServerAddress string
	ServerPort    uint16
	HasTurn       bool
	Turn          TurnCredentials
}

func (SessionJoined) Kind() Kind { return KindSessionJoined }
func (m SessionJoined) Encode() []byte {
	w := &writer{}
	w.raw(m.SessionID[:])
	w.raw(m.ParticipantID[:])
	w.lp16([]byte(m.ServerAddress))
	w.u16(m.ServerPort)
	if m.HasTurn {
		w.u8(1)
		w.lp16([]byte(m.Turn.Username))
		w.lp16([]byte(m.Turn.Password))
		w.u32(m.Turn.TTL)
	} else {
		w.u8(0)
	}
	return w.bytes()
}
func DecodeSessionJoined(payload []byte) (SessionJoined, error) {
	r := newReader(payload)
	var m SessionJoined
	sid, err := r.raw(16)
	if err != nil {
		return m, err
	}
	pid, err := r.raw(16)
	if err != nil {
		return m, err
	}
	addr, err := r.lp16()
	if err != nil {
		return m, err
	}
	port, err := r.u16()
	if err != nil {
		return m, err
	}
	hasTurn, err := r.u8()
	if err != nil {
		return m, err
	}
	copy(m.SessionID[:], sid)
	copy(m.ParticipantID[:], pid)
	m.ServerAddress = string(addr)
	m.ServerPort = port
	if hasTurn != 0 {
		user, err := r.lp16()
		if err != nil {
			return m, err
		}
		pass, err := r.lp16()
		if err != nil {
			return m, err
		}
		ttl, err := r.u32()
		if err != nil {
			return m, err
		}
		m.HasTurn = true
		m.Turn = TurnCredentials{Username: string(user), Password: string(pass), TTL: ttl}
	}
	return m, r.done()
}

// SessionInfo answers SessionLookup; it is a read-only preview of
// SessionJoined without committing the caller as a participant.
type SessionInfo struct {
	SessionID   [16]byte
	ParticipantCount uint32
}

func (SessionInfo) Kind() Kind { return KindSessionInfo }
func (m SessionInfo) Encode() []byte {
	w := &writer{}
	w.raw(m.SessionID[:])
	w.u32(m.ParticipantCount)
	return w.bytes()
}
func DecodeSessionInfo(payload []byte) (SessionInfo, error) {
	r := newReader(payload)
	sid, err := r.raw(16)
	if err != nil {
		return SessionInfo{}, err
	}
	count, err := r.u32()
	if err != nil {
		return SessionInfo{}, err
	}
	var m SessionInfo
	copy(m.SessionID[:], sid)
	m.ParticipantCount = count
	return m, r.done()
}

// SessionError is returned by the discovery service for SessionLookup or
// SessionJoin failures (unknown session string, wrong password, full room).
type SessionError struct{ Reason string }

func (SessionError) Kind() Kind { return KindSessionError }
func (m SessionError) Encode() []byte {
	w := &writer{}
	w.lp16([]byte(m.Reason))
	return w.bytes()
}
func DecodeSessionError(payload []byte) (SessionError, error) {
	r := newReader(payload)
	reason, err := r.lp16()
	if err != nil {
		return SessionError{}, err
	}
	return SessionError{Reason: string(reason)}, r.done()
}

const (
	SDPTypeOffer  uint8 = 0
	SDPTypeAnswer uint8 = 1
)

type WebRtcSdp struct {
	SessionID   [16]byte
	RecipientID [16]byte
	SDPType     uint8
	SDP         string
}

func (WebRtcSdp) Kind() Kind { return KindWebRtcSdp }
func (m WebRtcSdp) Encode() []byte {
	w := &writer{}
	w.raw(m.SessionID[:])
	w.raw(m.RecipientID[:])
	w.u8(m.SDPType)
	w.lp32([]byte(m.SDP))
	return w.bytes()
}
func DecodeWebRtcSdp(payload []byte) (WebRtcSdp, error) {
	r := newReader(payload)
	var m WebRtcSdp
	sid, err := r.raw(16)
	if err != nil {
		return m, err
	}
	rid, err := r.raw(16)
	if err != nil {
		return m, err
	}
	typ, err := r.u8()
	if err != nil {
		return m, err
	}
	sdp, err := r.lp32()
	if err != nil {
		return m, err
	}
	copy(m.SessionID[:], sid)
	copy(m.RecipientID[:], rid)
	m.SDPType = typ
	m.SDP = string(sdp)
	return m, r.done()
}

type WebRtcIce struct {
	SessionID     [16]byte
	RecipientID   [16]byte
	Candidate     string
	SDPMid        string
	SDPMLineIndex uint16
}

func (WebRtcIce) Kind() Kind { return KindWebRtcIce }
func (m WebRtcIce) Encode() []byte {
	w := &writer{}
	w.raw(m.SessionID[:])
	w.raw(m.RecipientID[:])
	w.lp16([]byte(m.Candidate))
	w.lp16([]byte(m.SDPMid))
	w.u16(m.SDPMLineIndex)
	return w.bytes()
}
func DecodeWebRtcIce(payload []byte) (WebRtcIce, error) {
	r := newReader(payload)
	var m WebRtcIce
	sid, err := r.raw(16)
	if err != nil {
		return m, err
	}
	rid, err := r.raw(16)
	if err != nil {
		return m, err
	}
	cand, err := r.lp16()
	if err != nil {
		return m, err
	}
	mid, err := r.lp16()
	if err != nil {
		return m, err
	}
	idx, err := r.u16()
	if err != nil {
		return m, err
	}
	copy(m.SessionID[:], sid)
	copy(m.RecipientID[:], rid)
	m.Candidate = string(cand)
	m.SDPMid = string(mid)
	m.SDPMLineIndex = idx
	return m, r.done()
}

// UnknownKind is a catch-all error helper for dispatchers that need to
// decide log-and-drop versus fatal for a packet kind they don't recognize.
func UnknownKind(k Kind) error {
	return errs.New(errs.KindProtocolUnexpected, "unrecognized packet kind %d", uint16(k))
}
