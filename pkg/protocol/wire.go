package protocol

import (
	"encoding/binary"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
)

// writer builds a packet payload incrementally with big-endian integers and
// u16-length-prefixed byte strings, matching §6's "all length-prefixed with
// u16" rule for variable fields.
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *writer) lp16(b []byte) {
	w.u16(uint16(len(b)))
	w.raw(b)
}

func (w *writer) lp32(b []byte) {
	w.u32(uint32(len(b)))
	w.raw(b)
}

func (w *writer) bytes() []byte { return w.buf }

// reader parses a packet payload produced by writer, tracking position and
// surfacing bounds violations as KindProtocolTruncated errors instead of
// panicking, matching §4.2's "declared versus actual payload length"
// validation requirement.
type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader { return &reader{buf: buf} }

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) need(n int) error {
	if r.remaining() < n {
		return errs.New(errs.KindProtocolTruncated, "need %d bytes, have %d", n, r.remaining())
	}
	return nil
}

func (r *reader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) raw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// maxLPField caps length-prefixed fields at MaxPacketSize. A declared length
// beyond what remains of the payload is rejected by raw's bounds check, and
// raw slices the payload rather than allocating.
const maxLPField = MaxPacketSize

func (r *reader) lp16() ([]byte, error) {
	n, err := r.u16()
	if err != nil {
		return nil, err
	}
	if int(n) > maxLPField {
		return nil, errs.New(errs.KindProtocolOversize, "length-prefixed field %d exceeds max", n)
	}
	return r.raw(int(n))
}

func (r *reader) lp32() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if int(n) > maxLPField {
		return nil, errs.New(errs.KindProtocolOversize, "length-prefixed field %d exceeds max", n)
	}
	return r.raw(int(n))
}

func (r *reader) done() error {
	if r.remaining() != 0 {
		return errs.New(errs.KindProtocolUnexpected, "%d trailing bytes after decode", r.remaining())
	}
	return nil
}
