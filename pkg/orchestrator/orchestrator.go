// Package orchestrator implements the three-stage connection fallback
// machine of SPEC_FULL.md §4.6: direct TCP, then WebRTC over STUN, then
// WebRTC over TURN. It is grounded on the teacher's pkg/relay/relay.go
// lifecycle shape (ctx/cancel/wg, start time, disconnect callbacks) and
// pkg/cloudflare/client.go's per-attempt deadline handling.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
)

// Stage identifies one of the three fallback paths.
type Stage int

const (
	StageDirectTCP Stage = iota
	StageWebRTCSTUN
	StageWebRTCTURN
)

func (s Stage) String() string {
	switch s {
	case StageDirectTCP:
		return "direct_tcp"
	case StageWebRTCSTUN:
		return "webrtc_stun"
	case StageWebRTCTURN:
		return "webrtc_turn"
	default:
		return "unknown"
	}
}

// Per-stage timeout budget (§4.6's table).
const (
	TimeoutDirectTCP  = 3 * time.Second
	TimeoutWebRTCSTUN = 8 * time.Second
	TimeoutWebRTCTURN = 15 * time.Second
)

// State is the terminal/overall orchestrator status, independent of which
// stage produced it.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateSignalling
	StateConnected
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateSignalling:
		return "signalling"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Flags mirror the CLI flags named in §4.6; parsing them from argv is out
// of scope, so callers populate this struct directly.
type Flags struct {
	NoWebRTC     bool
	PreferWebRTC bool
	SkipSTUN     bool
	DisableTURN  bool
}

// StageDialer attempts to establish a transport for one stage. DirectTCP
// dials a fixed address; the WebRTC stages additionally need the discovery
// client and peer manager, which is why they are modeled as closures rather
// than a fixed interface - the orchestrator doesn't need to know their
// internals, only whether they succeeded within the stage deadline.
type StageDialer func(ctx context.Context) (transport.Transport, error)

// Orchestrator runs the fallback sequence once per connection attempt.
type Orchestrator struct {
	logger *slog.Logger
	flags  Flags

	dialers map[Stage]StageDialer

	mu    sync.RWMutex
	state State
	stage Stage

	stageFailures atomic.Int64
}

// New constructs an Orchestrator. dialers maps each stage this attempt is
// willing to try to a function that performs it; a stage absent from the
// map is treated as unavailable (equivalent to it always failing fast).
func New(flags Flags, dialers map[Stage]StageDialer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{flags: flags, dialers: dialers, logger: logger, state: StateIdle}
}

func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State, stage Stage) {
	o.mu.Lock()
	o.state = s
	o.stage = stage
	o.mu.Unlock()
}

func (o *Orchestrator) StageFailures() int64 { return o.stageFailures.Load() }

// stageOrder computes the sequence of stages to try given the flags, per
// §4.6's algorithm table.
func (o *Orchestrator) stageOrder() []Stage {
	if o.flags.NoWebRTC {
		return []Stage{StageDirectTCP}
	}

	var order []Stage
	if o.flags.PreferWebRTC {
		order = []Stage{StageWebRTCSTUN, StageWebRTCTURN, StageDirectTCP}
	} else {
		order = []Stage{StageDirectTCP, StageWebRTCSTUN, StageWebRTCTURN}
	}

	filtered := order[:0]
	for _, s := range order {
		if s == StageWebRTCSTUN && o.flags.SkipSTUN {
			continue
		}
		if s == StageWebRTCTURN && o.flags.DisableTURN {
			continue
		}
		filtered = append(filtered, s)
	}
	return filtered
}

func stageTimeout(s Stage) time.Duration {
	switch s {
	case StageDirectTCP:
		return TimeoutDirectTCP
	case StageWebRTCSTUN:
		return TimeoutWebRTCSTUN
	case StageWebRTCTURN:
		return TimeoutWebRTCTURN
	default:
		return TimeoutDirectTCP
	}
}

// Connect runs the fallback sequence, returning the first transport that
// connects within its stage's deadline. ctx cancellation aborts the
// in-progress stage without advancing to the next one (graceful shutdown,
// §4.6).
func (o *Orchestrator) Connect(ctx context.Context) (transport.Transport, error) {
	for _, stage := range o.stageOrder() {
		select {
		case <-ctx.Done():
			o.setState(StateFailed, stage)
			return nil, ctx.Err()
		default:
		}

		dialer, ok := o.dialers[stage]
		if !ok {
			o.logger.Debug("stage has no dialer configured, skipping", "stage", stage)
			o.stageFailures.Add(1)
			continue
		}

		o.setState(StateAttempting, stage)
		o.logger.Info("attempting connection stage", "stage", stage, "timeout", stageTimeout(stage))

		stageCtx, cancel := context.WithTimeout(ctx, stageTimeout(stage))
		t, err := dialer(stageCtx)
		cancel()

		if err == nil {
			o.setState(StateConnected, stage)
			o.logger.Info("connection stage succeeded", "stage", stage)
			return t, nil
		}

		if ctx.Err() != nil {
			o.setState(StateFailed, stage)
			return nil, ctx.Err()
		}

		o.logger.Warn("connection stage failed", "stage", stage, "error", err)
		o.stageFailures.Add(1)
	}

	o.setState(StateFailed, 0)
	return nil, errs.New(errs.KindNetworkConnect, "all connection stages exhausted, %d failures", o.stageFailures.Load())
}
