// Package keepalive implements the per-connection PING cadence and
// rekey-threshold scheduler of SPEC_FULL.md §4.12: a single goroutine per
// session that keeps the transport alive and notices when the active
// session key has carried too much traffic or lived too long.
package keepalive

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/zfogg/ascii-chat-core/pkg/crypto"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
)

const (
	// PingInterval is the PING cadence. The server's read timeout is 5s, so
	// this gives a 2s margin (§4.12).
	PingInterval = 3 * time.Second

	// DefaultByteThreshold is REKEY_BYTE_THRESHOLD: a rekey is triggered once
	// the active send key has sealed this many ciphertext bytes.
	DefaultByteThreshold uint64 = 1 << 30 // 1 GiB

	// DefaultTimeThreshold is REKEY_TIME_THRESHOLD: a rekey is triggered once
	// the active send key has been in service this long.
	DefaultTimeThreshold = 1 * time.Hour

	// wakeInterval bounds how long Run can block between checks, so
	// shutdown via ctx is observed promptly (§4.12, §5's "checked at least
	// every 1s" suspension-point requirement).
	wakeInterval = 1 * time.Second
)

// Rekeyer is the subset of handshake.Handshake the scheduler needs. It is an
// interface so this package never imports pkg/handshake, keeping the
// dependency direction the same as webrtcpeer.SignalSender /
// orchestrator.StageDialer.
type Rekeyer interface {
	RekeyAsRequester() error
}

// CryptoStats is the subset of crypto.SessionCrypto the scheduler reads to
// evaluate rekey thresholds.
type CryptoStats interface {
	SendKeyStats() (bytesSent uint64, age time.Duration)
}

var _ CryptoStats = (*crypto.SessionCrypto)(nil)

// Config tunes the scheduler's thresholds. Zero values fall back to the
// package defaults.
type Config struct {
	ByteThreshold uint64
	TimeThreshold time.Duration
}

func (c Config) withDefaults() Config {
	if c.ByteThreshold == 0 {
		c.ByteThreshold = DefaultByteThreshold
	}
	if c.TimeThreshold == 0 {
		c.TimeThreshold = DefaultTimeThreshold
	}
	return c
}

// Scheduler is the keepalive goroutine for one connected session: it sends
// periodic PINGs and triggers a rekey when either threshold trips.
type Scheduler struct {
	cfg     Config
	t       transport.Transport
	crypt   CryptoStats
	rekeyer Rekeyer
	logger  *slog.Logger

	limiter  *rate.Limiter
	rekeying atomic.Bool
}

// New constructs a Scheduler. t is the session's transport (used to send
// PINGs); crypt and rekeyer are typically the same *handshake.Handshake's
// SessionCrypto() and the handshake itself, respectively. logger may be nil.
func New(cfg Config, t transport.Transport, crypt CryptoStats, rekeyer Rekeyer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:     cfg,
		t:       t,
		crypt:   crypt,
		rekeyer: rekeyer,
		logger:  logger,
		// Burst of 1 and a period matching PingInterval: PING cadence is
		// gated independent of how often Run's wake loop itself fires.
		limiter: rate.NewLimiter(rate.Every(PingInterval), 1),
	}
}

// Run blocks, sending PINGs and checking rekey thresholds, until ctx is
// cancelled or the transport fails. It sleeps in wakeInterval chunks rather
// than parking for a full PingInterval so shutdown is observed promptly.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(wakeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.limiter.Allow() {
				if err := s.sendPing(); err != nil {
					return err
				}
			}
			s.checkRekey()
		}
	}
}

func (s *Scheduler) sendPing() error {
	msg := protocol.Ping{}
	if err := s.t.Send(msg.Kind(), msg.Encode()); err != nil {
		return err
	}
	s.logger.Debug("sent keepalive ping")
	return nil
}

// checkRekey asks the crypto context whether either threshold has been
// crossed and, if so, kicks off a rekey round. A rekey already in flight is
// not restarted; the next wake after it completes (and the session key's
// age/byte-count reset) will naturally stop tripping the threshold.
func (s *Scheduler) checkRekey() {
	bytesSent, age := s.crypt.SendKeyStats()
	if bytesSent < s.cfg.ByteThreshold && age < s.cfg.TimeThreshold {
		return
	}
	if !s.rekeying.CompareAndSwap(false, true) {
		return // already in flight
	}

	s.logger.Info("rekey threshold crossed, requesting rekey",
		"bytes_sent", bytesSent, "age", age)

	go func() {
		defer s.rekeying.Store(false)
		if err := s.rekeyer.RekeyAsRequester(); err != nil {
			s.logger.Warn("rekey attempt failed", "error", err)
		}
	}()
}
