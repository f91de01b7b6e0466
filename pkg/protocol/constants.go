// Package protocol implements the framed, length-prefixed packet wire format
// and the typed codec for every packet kind the client core exchanges with a
// server or discovery service.
package protocol

// Protocol version, carried forward from the original implementation's
// protocol_constants.h for wire compatibility.
const (
	ProtocolVersionMajor uint16 = 1
	ProtocolVersionMinor uint16 = 0
)

// Feature bitmap flags (ProtocolVersion.feature_flags).
const (
	FeatureRLEEncoding  uint32 = 0x01
	FeatureDeltaFrames  uint32 = 0x02
)

// Compression algorithm enum (VideoFrame compressed_flag / capabilities).
const (
	CompressNone uint32 = 0x00
	CompressZlib uint32 = 0x01
	CompressLZ4  uint32 = 0x02
	CompressZstd uint32 = 0x03
)

// Video-frame flag bits.
const (
	FrameFlagHasColor      uint32 = 0x01
	FrameFlagIsCompressed  uint32 = 0x02
	FrameFlagRLECompressed uint32 = 0x04
	FrameFlagIsStretched   uint32 = 0x08
)

// Pixel format enum.
const (
	PixelFormatRGB  uint32 = 0
	PixelFormatRGBA uint32 = 1
	PixelFormatBGR  uint32 = 2
	PixelFormatBGRA uint32 = 3
)

// Auth requirement bitmap (AuthChallenge.requirements).
const (
	AuthRequirePassword  uint8 = 0x01
	AuthRequireClientKey uint8 = 0x02
)

// Frame header size (type + length + crc32) and size bounds.
const (
	HeaderSize     = 2 + 4 + 4
	MinPacketSize  = HeaderSize
	MaxPacketSize  = 10 * 1024 * 1024 // 10 MiB; comfortably above an 800x600 RGBA frame
)

// Stream types for StreamStart/StreamStop.
const (
	StreamTypeVideo uint32 = 0
	StreamTypeAudio uint32 = 1
)

// Kind identifies a packet's payload type. Values are stable across the
// wire and must not be renumbered once a server depends on them.
type Kind uint16

const (
	KindPing Kind = iota + 1
	KindPong
	KindClientJoin
	KindTerminalSize
	KindServerState
	KindStreamStart
	KindStreamStop

	KindVideoFrame
	KindAudioOpus

	KindProtocolVersion
	KindCryptoCapabilities
	KindCryptoParameters
	KindKeyExchangeInit
	KindKeyExchangeResp
	KindAuthChallenge
	KindAuthResponse
	KindAuthSuccess
	KindAuthFailed
	KindRekeyRequest
	KindRekeyResponse
	KindRekeyComplete

	KindEncryptedEnvelope

	KindSessionLookup
	KindSessionJoin
	KindSessionInfo
	KindSessionJoined
	KindSessionError
	KindWebRtcSdp
	KindWebRtcIce
)

// PreHandshakeKinds is the whitelist of packet kinds that are never wrapped
// in an encrypted envelope, because the handshake itself must exchange them
// in the clear to establish the session key. See SPEC_FULL.md §9 (Design
// Notes) for why this exact set was chosen.
var PreHandshakeKinds = map[Kind]bool{
	KindProtocolVersion:    true,
	KindCryptoCapabilities: true,
	KindCryptoParameters:   true,
	KindKeyExchangeInit:    true,
	KindKeyExchangeResp:    true,
	KindAuthChallenge:      true,
	KindAuthResponse:       true,
	KindAuthSuccess:        true,
	KindAuthFailed:         true,
}

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	case KindClientJoin:
		return "ClientJoin"
	case KindTerminalSize:
		return "TerminalSize"
	case KindServerState:
		return "ServerState"
	case KindStreamStart:
		return "StreamStart"
	case KindStreamStop:
		return "StreamStop"
	case KindVideoFrame:
		return "VideoFrame"
	case KindAudioOpus:
		return "AudioOpus"
	case KindProtocolVersion:
		return "ProtocolVersion"
	case KindCryptoCapabilities:
		return "CryptoCapabilities"
	case KindCryptoParameters:
		return "CryptoParameters"
	case KindKeyExchangeInit:
		return "KeyExchangeInit"
	case KindKeyExchangeResp:
		return "KeyExchangeResp"
	case KindAuthChallenge:
		return "AuthChallenge"
	case KindAuthResponse:
		return "AuthResponse"
	case KindAuthSuccess:
		return "AuthSuccess"
	case KindAuthFailed:
		return "AuthFailed"
	case KindRekeyRequest:
		return "RekeyRequest"
	case KindRekeyResponse:
		return "RekeyResponse"
	case KindRekeyComplete:
		return "RekeyComplete"
	case KindEncryptedEnvelope:
		return "EncryptedEnvelope"
	case KindSessionLookup:
		return "SessionLookup"
	case KindSessionJoin:
		return "SessionJoin"
	case KindSessionInfo:
		return "SessionInfo"
	case KindSessionJoined:
		return "SessionJoined"
	case KindSessionError:
		return "SessionError"
	case KindWebRtcSdp:
		return "WebRtcSdp"
	case KindWebRtcIce:
		return "WebRtcIce"
	default:
		return "Unknown"
	}
}
