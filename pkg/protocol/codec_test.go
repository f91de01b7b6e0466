package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
)

func TestClientJoinRoundTrip(t *testing.T) {
	m := ClientJoin{DisplayName: "alice", Capabilities: 0x7}
	got, err := DecodeClientJoin(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestTerminalSizeRoundTrip(t *testing.T) {
	m := TerminalSize{Width: 80, Height: 24, Flags: 1}
	got, err := DecodeTerminalSize(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestServerStateRoundTrip(t *testing.T) {
	m := ServerState{ActiveClientCount: 3}
	got, err := DecodeServerState(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestStreamStartStopRoundTrip(t *testing.T) {
	start, err := DecodeStreamStart(StreamStart{StreamType: StreamTypeAudio}.Encode())
	require.NoError(t, err)
	assert.Equal(t, StreamStart{StreamType: StreamTypeAudio}, start)

	stop, err := DecodeStreamStop(StreamStop{StreamType: StreamTypeVideo}.Encode())
	require.NoError(t, err)
	assert.Equal(t, StreamStop{StreamType: StreamTypeVideo}, stop)
}

func TestVideoFrameRoundTrip(t *testing.T) {
	m := VideoFrame{Width: 4, Height: 2, CompressedFlag: CompressNone, Pixels: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	got, err := DecodeVideoFrame(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestAudioOpusRoundTrip(t *testing.T) {
	m := AudioOpus{
		Sequence:   42,
		SampleRate: 48000,
		FrameMs:    20,
		FrameSizes: []uint16{3, 5, 2},
		OpusData:   []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x01, 0x02, 0x03, 0x0a},
	}
	got, err := DecodeAudioOpus(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestProtocolVersionRoundTrip(t *testing.T) {
	m := ProtocolVersion{
		Version:            1,
		Revision:           2,
		SupportsEncryption: 1,
		CompressionBitmap:  0x3,
		Threshold:          1000,
		FeatureFlags:       FeatureRLEEncoding | FeatureDeltaFrames,
	}
	got, err := DecodeProtocolVersion(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestCryptoCapabilitiesRoundTrip(t *testing.T) {
	m := CryptoCapabilities{
		KexBitmap:            1,
		AuthBitmap:           2,
		CipherBitmap:         4,
		RequiresVerification: 1,
		PreferredKex:         1,
		PreferredAuth:        1,
		PreferredCipher:      1,
	}
	got, err := DecodeCryptoCapabilities(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestCryptoParametersRoundTrip(t *testing.T) {
	m := CryptoParameters{
		SelectedKex:    1,
		SelectedAuth:   1,
		SelectedCipher: 1,
		KexPubkeySize:  32,
		SignatureSize:  64,
		Argon2: Argon2Params{
			TimeCost:    3,
			MemoryCost:  65536,
			Parallelism: 4,
			Salt:        []byte("some-salt-bytes"),
		},
	}
	got, err := DecodeCryptoParameters(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestKeyExchangeRoundTripWithAndWithoutIdentity(t *testing.T) {
	bare := KeyExchangeInit{KeyExchange{EphemeralPubkey: []byte("0123456789abcdef0123456789abcdef")}}
	got, err := DecodeKeyExchange(bare.Encode(), len(bare.EphemeralPubkey))
	require.NoError(t, err)
	assert.Equal(t, bare.KeyExchange, got)

	signed := KeyExchangeResp{KeyExchange{
		EphemeralPubkey: []byte("0123456789abcdef0123456789abcdef"),
		IdentityPubkey:  []byte("identity-pubkey"),
		Signature:       []byte("a-signature-blob"),
	}}
	got, err = DecodeKeyExchange(signed.Encode(), len(signed.EphemeralPubkey))
	require.NoError(t, err)
	assert.Equal(t, signed.KeyExchange, got)
}

func TestAuthChallengeRoundTrip(t *testing.T) {
	var m AuthChallenge
	m.Requirements = AuthRequirePassword | AuthRequireClientKey
	for i := range m.Nonce {
		m.Nonce[i] = byte(i)
	}
	got, err := DecodeAuthChallenge(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestAuthResponseRoundTrip(t *testing.T) {
	m := AuthResponse{
		HMAC:           []byte("thirty-two-byte-hmac-value-here"),
		IdentityPubkey: []byte("identity-pubkey"),
		Signature:      []byte("a-signature-blob"),
	}
	got, err := DecodeAuthResponse(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestAuthSuccessRoundTrip(t *testing.T) {
	var m AuthSuccess
	for i := range m.ServerHMAC {
		m.ServerHMAC[i] = byte(255 - i)
	}
	got, err := DecodeAuthSuccess(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestAuthFailedRoundTrip(t *testing.T) {
	m := AuthFailed{Reason: "bad password"}
	got, err := DecodeAuthFailed(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestRekeyKeyRoundTrip(t *testing.T) {
	req := RekeyRequest{EphemeralPubkey: []byte("0123456789abcdef0123456789abcdef")}
	got, err := DecodeRekeyKey(req.Encode(), len(req.EphemeralPubkey))
	require.NoError(t, err)
	assert.Equal(t, req.EphemeralPubkey, got)
}

func TestEncryptedEnvelopeRoundTrip(t *testing.T) {
	var m EncryptedEnvelope
	for i := range m.Nonce {
		m.Nonce[i] = byte(i)
	}
	m.Ciphertext = []byte("ciphertext-bytes-go-here")
	got, err := DecodeEncryptedEnvelope(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestSessionLookupRoundTrip(t *testing.T) {
	m := SessionLookup{SessionString: "adjective-noun-1234"}
	got, err := DecodeSessionLookup(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestSessionJoinRoundTrip(t *testing.T) {
	m := SessionJoin{SessionString: "adjective-noun-1234", HasPassword: true, Password: "hunter2"}
	got, err := DecodeSessionJoin(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)

	noPw := SessionJoin{SessionString: "adjective-noun-1234"}
	got, err = DecodeSessionJoin(noPw.Encode())
	require.NoError(t, err)
	assert.Equal(t, noPw, got)
}

func TestSessionJoinedRoundTripWithAndWithoutTurn(t *testing.T) {
	var m SessionJoined
	for i := range m.SessionID {
		m.SessionID[i] = byte(i)
	}
	for i := range m.ParticipantID {
		m.ParticipantID[i] = byte(i + 1)
	}
	m.ServerAddress = "relay.example.com"
	m.ServerPort = 9443
	got, err := DecodeSessionJoined(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)

	m.HasTurn = true
	m.Turn = TurnCredentials{Username: "turnuser", Password: "turnpass", TTL: 600}
	got, err = DecodeSessionJoined(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestSessionInfoRoundTrip(t *testing.T) {
	var m SessionInfo
	for i := range m.SessionID {
		m.SessionID[i] = byte(i)
	}
	m.ParticipantCount = 5
	got, err := DecodeSessionInfo(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestSessionErrorRoundTrip(t *testing.T) {
	m := SessionError{Reason: "session full"}
	got, err := DecodeSessionError(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestWebRtcSdpRoundTrip(t *testing.T) {
	var m WebRtcSdp
	for i := range m.SessionID {
		m.SessionID[i] = byte(i)
	}
	for i := range m.RecipientID {
		m.RecipientID[i] = byte(i + 1)
	}
	m.SDPType = SDPTypeOffer
	m.SDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"
	got, err := DecodeWebRtcSdp(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestWebRtcIceRoundTrip(t *testing.T) {
	var m WebRtcIce
	for i := range m.SessionID {
		m.SessionID[i] = byte(i)
	}
	for i := range m.RecipientID {
		m.RecipientID[i] = byte(i + 1)
	}
	m.Candidate = "candidate:1 1 UDP 2130706431 192.0.2.1 5000 typ host"
	m.SDPMid = "0"
	m.SDPMLineIndex = 0
	got, err := DecodeWebRtcIce(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	payload := append(ServerState{ActiveClientCount: 1}.Encode(), 0xff)
	_, err := DecodeServerState(payload)
	assert.True(t, errs.Is(err, errs.KindProtocolUnexpected))
}
