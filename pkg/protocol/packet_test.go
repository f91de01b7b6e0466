package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/ascii-chat-core/pkg/errs"
)

func TestWriteToReadFromRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello, framed world")

	require.NoError(t, WriteTo(&buf, KindPing, payload))

	kind, got, err := ReadFrom(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, KindPing, kind)
	assert.Equal(t, payload, got)
}

func TestWriteToReadFromRoundTripEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, KindPong, nil))

	kind, got, err := ReadFrom(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, KindPong, kind)
	assert.Empty(t, got)
}

func TestWriteToRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	err := WriteTo(&buf, KindVideoFrame, make([]byte, MaxPacketSize+1))
	assert.True(t, errs.Is(err, errs.KindProtocolOversize))
	assert.Zero(t, buf.Len())
}

func TestReadFromEmptyStreamReturnsDisconnected(t *testing.T) {
	_, _, err := ReadFrom(&bytes.Buffer{}, 0)
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestReadFromTruncatedHeaderReturnsTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, KindPing, []byte("x")))

	truncated := bytes.NewReader(buf.Bytes()[:HeaderSize-1])
	_, _, err := ReadFrom(truncated, 0)
	assert.True(t, errs.Is(err, errs.KindProtocolTruncated))
}

func TestReadFromTruncatedPayloadReturnsTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, KindPing, []byte("hello")))

	truncated := bytes.NewReader(buf.Bytes()[:HeaderSize+2])
	_, _, err := ReadFrom(truncated, 0)
	assert.True(t, errs.Is(err, errs.KindProtocolTruncated))
}

func TestReadFromDeclaredLengthOverMaxReturnsOversize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, KindPing, []byte("hello")))

	_, _, err := ReadFrom(&buf, 2)
	assert.True(t, errs.Is(err, errs.KindProtocolOversize))
}

func TestReadFromCorruptedPayloadReturnsCorrupt(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, KindPing, []byte("hello world")))

	frame := buf.Bytes()
	// Flip a single payload byte without touching the CRC, so the
	// checksum no longer matches what the header declares.
	frame[HeaderSize] ^= 0xff

	_, _, err := ReadFrom(bytes.NewReader(frame), 0)
	assert.True(t, errs.Is(err, errs.KindProtocolCorrupt))
}

func TestReadFromCorruptedHeaderCRCDetectedAsCorrupt(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, KindPing, []byte("hello world")))

	frame := buf.Bytes()
	// Flip a bit in the CRC field itself; the payload is untouched, so
	// the checksum computed on read no longer agrees with the header.
	frame[HeaderSize-1] ^= 0x01

	_, _, err := ReadFrom(bytes.NewReader(frame), 0)
	assert.True(t, errs.Is(err, errs.KindProtocolCorrupt))
}

func TestReadFromMultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, KindPing, []byte("one")))
	require.NoError(t, WriteTo(&buf, KindPong, []byte("two")))

	kind1, p1, err := ReadFrom(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, KindPing, kind1)
	assert.Equal(t, []byte("one"), p1)

	kind2, p2, err := ReadFrom(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, KindPong, kind2)
	assert.Equal(t, []byte("two"), p2)

	_, _, err = ReadFrom(&buf, 0)
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestGetPutPayloadBufferRoundTrip(t *testing.T) {
	buf := GetPayloadBuffer(128)
	assert.Len(t, buf, 128)
	PutPayloadBuffer(buf)

	buf2 := GetPayloadBuffer(4)
	assert.Len(t, buf2, 4)
}

// errReader always fails with a custom error, to exercise ReadFrom's
// fallback path for header read failures that are neither EOF nor
// io.ErrUnexpectedEOF.
type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestReadFromHeaderReadErrorIsWrapped(t *testing.T) {
	_, _, err := ReadFrom(errReader{}, 0)
	assert.True(t, errs.Is(err, errs.KindNetworkClosed))
}
