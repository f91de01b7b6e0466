// Package video implements the capture-side pipeline of SPEC_FULL.md
// §4.10: select a source, pace reads to a target frame interval, resize to
// fit within the protocol's pixel bounds, and transmit each frame as a
// Video-Frame packet. Grounded on cmd/relay/main.go's
// probe-then-run-a-paced-loop shape and pkg/bridge/pacer.go's drift-aware
// "advance the next deadline, sleep the remainder" pacing calculation,
// retargeted from RTP/H.264 packetization to the spec's raw-pixel
// Video-Frame packet.
package video

import (
	"context"
	"log/slog"
	"time"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
	"github.com/zfogg/ascii-chat-core/pkg/protocol"
	"github.com/zfogg/ascii-chat-core/pkg/transport"
)

// Frame is one raw RGBA capture from a Source.
type Frame struct {
	Width, Height int
	Pixels        []byte // len == Width*Height*4
}

// Source abstracts the four capture origins named in §4.10 (URL, file,
// test pattern, webcam). Concrete source implementations (ffmpeg pipe,
// webcam/PortAudio driver glue) are out of scope per spec.md's Non-goals;
// this package only defines the contract and the paced loop that drives it.
type Source interface {
	// Read blocks until the next frame is available.
	Read() (Frame, error)
	// ProbedFPS returns the source's native frame rate, if known.
	ProbedFPS() (fps float64, ok bool)
	Close() error
}

const (
	// DefaultFPS is used when no override is configured and the source
	// cannot report its own rate (§4.10 step 2).
	DefaultFPS = 60.0

	// MaxWidth/MaxHeight bound the fit-to-bounds resize (§4.10 step 4).
	MaxWidth  = 800
	MaxHeight = 600
)

// Config tunes one Capture run.
type Config struct {
	// TargetFPS overrides the source's probed rate; zero means "use the
	// probe, falling back to DefaultFPS".
	TargetFPS float64
}

// Capture drives one capture thread: read, pace, resize, pack, send.
type Capture struct {
	src    Source
	t      transport.Transport
	cfg    Config
	logger *slog.Logger

	onDisconnect func(error)
}

// New constructs a Capture over an already-opened source and an active
// transport (ordinarily the session's active connection after the
// handshake completes).
func New(src Source, t transport.Transport, cfg Config, onDisconnect func(error), logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{src: src, t: t, cfg: cfg, onDisconnect: onDisconnect, logger: logger}
}

func (c *Capture) targetInterval() time.Duration {
	fps := c.cfg.TargetFPS
	if fps <= 0 {
		if probed, ok := c.src.ProbedFPS(); ok && probed > 0 {
			fps = probed
		} else {
			fps = DefaultFPS
		}
	}
	return time.Duration(float64(time.Second) / fps)
}

// Run executes the paced capture loop until ctx is cancelled or the source
// or transport fails. On any terminal error it calls onDisconnect once and
// returns.
func (c *Capture) Run(ctx context.Context) error {
	interval := c.targetInterval()
	next := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, err := c.src.Read()
		if err != nil {
			c.fail(err)
			return err
		}

		fitted := fitToBounds(frame, MaxWidth, MaxHeight)
		if err := validateFrame(fitted); err != nil {
			c.fail(err)
			return err
		}

		msg := protocol.VideoFrame{
			Width:          uint32(fitted.Width),
			Height:         uint32(fitted.Height),
			CompressedFlag: 0,
			Pixels:         fitted.Pixels,
		}
		if err := c.t.Send(msg.Kind(), msg.Encode()); err != nil {
			c.fail(err)
			return err
		}

		next = next.Add(interval)
		if sleep := time.Until(next); sleep > 0 {
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return ctx.Err()
			}
		} else {
			// Fell behind by more than one interval; resync the baseline
			// instead of free-running to catch up (matches the pacer's
			// catch-up-gradually rather than burst-drain philosophy).
			next = time.Now()
		}
	}
}

func (c *Capture) fail(err error) {
	if c.onDisconnect != nil {
		c.onDisconnect(err)
	}
}

func validateFrame(f Frame) error {
	if f.Width == 0 || f.Height == 0 {
		return errs.New(errs.KindProtocolOversize, "invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	want := f.Width * f.Height * 4
	if len(f.Pixels) != want {
		return errs.New(errs.KindProtocolOversize, "frame pixel buffer size %d does not match %dx%d RGBA (%d)", len(f.Pixels), f.Width, f.Height, want)
	}
	if len(f.Pixels) > protocol.MaxPacketSize {
		return errs.New(errs.KindProtocolOversize, "frame size %d exceeds max packet size %d", len(f.Pixels), protocol.MaxPacketSize)
	}
	return nil
}

// fitToBounds scales f down (never up) so it fits within maxW x maxH while
// preserving aspect ratio, using nearest-neighbor sampling. No third-party
// image-resize library appears anywhere in the retrieval pack, so this is
// one of the few places this module reaches for the standard library by
// necessity rather than preference (see DESIGN.md).
func fitToBounds(f Frame, maxW, maxH int) Frame {
	if f.Width <= maxW && f.Height <= maxH {
		return f
	}

	scale := float64(maxW) / float64(f.Width)
	if hs := float64(maxH) / float64(f.Height); hs < scale {
		scale = hs
	}

	newW := int(float64(f.Width) * scale)
	newH := int(float64(f.Height) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	out := make([]byte, newW*newH*4)
	for y := 0; y < newH; y++ {
		srcY := y * f.Height / newH
		for x := 0; x < newW; x++ {
			srcX := x * f.Width / newW
			srcOff := (srcY*f.Width + srcX) * 4
			dstOff := (y*newW + x) * 4
			copy(out[dstOff:dstOff+4], f.Pixels[srcOff:srcOff+4])
		}
	}
	return Frame{Width: newW, Height: newH, Pixels: out}
}
