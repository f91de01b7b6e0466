// Package config loads the connection/transport/media subsystem's
// configuration (§6): the field subset this core consumes, independent of
// how a caller obtained it (CLI flags, an interactive prompt, or — as
// implemented here — a flat key=value file). Flag parsing and a help/
// version surface are out of scope per spec.md §1; this loader is the
// ambient plumbing underneath whatever surface a caller builds.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// AudioSource selects which capture path feeds the encoder.
type AudioSource string

const (
	AudioSourceAuto  AudioSource = "auto"
	AudioSourceMic   AudioSource = "mic"
	AudioSourceMedia AudioSource = "media"
	AudioSourceBoth  AudioSource = "both"
)

// LogLevel mirrors §6's enum; CLI parsing of it is out of scope, but the
// config value itself is consumed by whatever constructs pkg/logging.Config.
type LogLevel string

const (
	LogLevelDev   LogLevel = "dev"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// Config is the full field subset of §6 this core consumes.
type Config struct {
	// Endpoint selection.
	Address string
	Port    uint16

	// Discovery.
	SessionString       string
	DiscoveryServer     string
	DiscoveryPort       uint16
	DiscoveryServiceKey string // optional expected fingerprint

	// WebRTC fallback.
	STUNServers       []string
	TURNServers       []string
	TURNUsername      string
	TURNCredential    string
	PreferWebRTC      bool
	NoWebRTC          bool
	WebRTCSkipSTUN    bool
	WebRTCDisableTURN bool
	WebRTCICETimeoutMs uint32

	// Media.
	FPS             uint32 // 0 = probe
	WebcamIndex     uint32
	MicrophoneIndex int32
	SpeakersIndex   int32
	AudioEnabled    bool
	AudioSource     AudioSource

	// Crypto.
	EncryptEnabled bool
	NoEncrypt      bool
	Password       string
	EncryptKey     string // path or gpg:keyid
	ServerKey      string // expected fingerprint
	KnownHostsPath string
	ClientKeysPath string

	// Reconnection.
	ReconnectAttempts int32 // -1 unlimited, 0 none, N attempts
	ReconnectDelayMs  uint32

	// Logging.
	LogFile  string
	LogLevel LogLevel
}

// Default returns a Config with the spec's stated defaults for fields that
// have one (log level, reconnection, audio source); fields with no stated
// default are left zero-valued for Load/the caller to fill in.
func Default() *Config {
	return &Config{
		AudioSource:       AudioSourceAuto,
		ReconnectAttempts: -1,
		ReconnectDelayMs:  1000,
		LogLevel:          LogLevelInfo,
	}
}

// Load reads a flat key=value configuration file, the way the teacher's
// pkg/config/config.go reads its .env file: bufio.Scanner line parsing,
// url.QueryUnescape'd values, a switch-based key router, comments (#) and
// blank lines skipped, ending in a Validate() pass.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		decoded, err := url.QueryUnescape(value)
		if err != nil {
			decoded = value
		}

		if err := cfg.set(key, decoded); err != nil {
			return nil, fmt.Errorf("config line %q: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) set(key, value string) error {
	switch key {
	case "address":
		c.Address = value
	case "port":
		return setU16(&c.Port, value)
	case "session_string":
		c.SessionString = value
	case "discovery_server":
		c.DiscoveryServer = value
	case "discovery_port":
		return setU16(&c.DiscoveryPort, value)
	case "discovery_service_key":
		c.DiscoveryServiceKey = value
	case "stun_servers":
		c.STUNServers = splitList(value)
	case "turn_servers":
		c.TURNServers = splitList(value)
	case "turn_username":
		c.TURNUsername = value
	case "turn_credential":
		c.TURNCredential = value
	case "prefer_webrtc":
		return setBool(&c.PreferWebRTC, value)
	case "no_webrtc":
		return setBool(&c.NoWebRTC, value)
	case "webrtc_skip_stun":
		return setBool(&c.WebRTCSkipSTUN, value)
	case "webrtc_disable_turn":
		return setBool(&c.WebRTCDisableTURN, value)
	case "webrtc_ice_timeout_ms":
		return setU32(&c.WebRTCICETimeoutMs, value)
	case "fps":
		return setU32(&c.FPS, value)
	case "webcam_index":
		return setU32(&c.WebcamIndex, value)
	case "microphone_index":
		return setI32(&c.MicrophoneIndex, value)
	case "speakers_index":
		return setI32(&c.SpeakersIndex, value)
	case "audio_enabled":
		return setBool(&c.AudioEnabled, value)
	case "audio_source":
		c.AudioSource = AudioSource(value)
	case "encrypt_enabled":
		return setBool(&c.EncryptEnabled, value)
	case "no_encrypt":
		return setBool(&c.NoEncrypt, value)
	case "password":
		c.Password = value
	case "encrypt_key":
		c.EncryptKey = value
	case "server_key":
		c.ServerKey = value
	case "known_hosts_path":
		c.KnownHostsPath = value
	case "client_keys_path":
		c.ClientKeysPath = value
	case "reconnect_attempts":
		return setI32(&c.ReconnectAttempts, value)
	case "reconnect_delay_ms":
		return setU32(&c.ReconnectDelayMs, value)
	case "log_file":
		c.LogFile = value
	case "log_level":
		c.LogLevel = LogLevel(value)
	}
	// Unknown keys are ignored, matching the teacher's forward-compatible
	// switch-with-no-default loader.
	return nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setBool(dst *bool, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setU16(dst *uint16, value string) error {
	n, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return err
	}
	*dst = uint16(n)
	return nil
}

func setU32(dst *uint32, value string) error {
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return err
	}
	*dst = uint32(n)
	return nil
}

func setI32(dst *int32, value string) error {
	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return err
	}
	*dst = int32(n)
	return nil
}

// Validate checks the field combinations §6/§4.6 require to make sense
// together: a reachable endpoint one way or another, and mutually
// exclusive WebRTC-disabling flags aren't self-contradictory.
func (c *Config) Validate() error {
	if c.Address == "" && c.SessionString == "" {
		return fmt.Errorf("config: either address or session_string must be set")
	}
	if c.Address != "" && c.Port == 0 {
		return fmt.Errorf("config: port is required when address is set")
	}
	if c.NoWebRTC && c.PreferWebRTC {
		return fmt.Errorf("config: no_webrtc and prefer_webrtc are mutually exclusive")
	}
	if c.EncryptEnabled && c.NoEncrypt {
		return fmt.Errorf("config: encrypt_enabled and no_encrypt are mutually exclusive")
	}
	if c.ReconnectAttempts < -1 {
		return fmt.Errorf("config: reconnect_attempts must be -1, 0, or positive")
	}
	switch c.AudioSource {
	case AudioSourceAuto, AudioSourceMic, AudioSourceMedia, AudioSourceBoth:
	default:
		return fmt.Errorf("config: invalid audio_source %q", c.AudioSource)
	}
	return nil
}
