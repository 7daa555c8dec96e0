package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrameRoundTripUncompressed covers below-threshold payloads, which
// still carry the "0" uncompressed-length marker once compression is on.
func TestFrameRoundTripUncompressed(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	w.SetCompression(256, 6)

	payload := bytes.Repeat([]byte{0x42}, 10)
	require.NoError(t, w.WriteFrame(7, payload))

	r := NewFrameReader(&buf)
	r.SetCompression(256)
	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, int32(7), frame.ID)
	assert.Equal(t, payload, frame.Payload)
}

// TestFrameRoundTripCompressed covers above-threshold payloads, which are
// zlib-deflated with a real uncompressed-length prefix.
func TestFrameRoundTripCompressed(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	w.SetCompression(256, 6)

	payload := bytes.Repeat([]byte{0x7A}, 4000)
	require.NoError(t, w.WriteFrame(11, payload))

	r := NewFrameReader(&buf)
	r.SetCompression(256)
	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, int32(11), frame.ID)
	assert.Equal(t, payload, frame.Payload)
}

func TestFrameRoundTripNoCompression(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	payload := []byte("hello")
	require.NoError(t, w.WriteFrame(3, payload))

	r := NewFrameReader(&buf)
	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, int32(3), frame.ID)
	assert.Equal(t, payload, frame.Payload)
}

func TestFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteVarInt(&buf, MaxPacketLength+1))
	r := NewFrameReader(&buf)
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}
