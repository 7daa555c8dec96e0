package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarIntRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v := rng.Int31()
		if rng.Intn(2) == 0 {
			v = -v
		}
		var buf [5]byte
		n := PutVarInt(buf[:], v)
		got, err := ReadVarInt(bytes.NewReader(buf[:n]))
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, n, VarIntSize(v))
	}
}

func TestVarIntRejectsSixthByte(t *testing.T) {
	// five continuation bytes followed by a sixth: always invalid.
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}
	_, err := ReadVarInt(bytes.NewReader(buf))
	assert.ErrorIs(t, err, ErrVarIntTooBig)
}

func TestVarLongRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		v := rng.Int63()
		if rng.Intn(2) == 0 {
			v = -v
		}
		var buf [10]byte
		n := PutVarLong(buf[:], v)
		got, err := ReadVarLong(bytes.NewReader(buf[:n]))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestReaderWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.VarInt(-123456)
	w.VarLong(9223372036854775807)
	w.Bool(true)
	w.Byte(0xAB)
	w.Int16(-30000)
	w.Int32(-1)
	w.Int64(1<<40 + 7)
	w.Float32(3.25)
	w.Float64(-1.5)
	w.String("hello éè")
	w.Position(123, -45, 6789)
	w.UUID([16]byte{1, 2, 3})

	r := NewReader(w.Bytes())
	assert.Equal(t, int32(-123456), r.VarInt())
	assert.Equal(t, int64(9223372036854775807), r.VarLong())
	assert.Equal(t, true, r.Bool())
	assert.Equal(t, byte(0xAB), r.Byte())
	assert.Equal(t, int16(-30000), r.Int16())
	assert.Equal(t, int32(-1), r.Int32())
	assert.Equal(t, int64(1<<40+7), r.Int64())
	assert.InDelta(t, float32(3.25), r.Float32(), 0)
	assert.InDelta(t, -1.5, r.Float64(), 0)
	assert.Equal(t, "hello éè", r.String())
	x, y, z := r.Position()
	assert.Equal(t, int32(123), x)
	assert.Equal(t, int32(-45), y)
	assert.Equal(t, int32(6789), z)
	assert.Equal(t, [16]byte{1, 2, 3}, r.UUID())
	require.NoError(t, r.Err())
}

func TestClipChatMessageByteWithinLimit(t *testing.T) {
	s := "short message"
	assert.Equal(t, s, ClipChatMessage(s))
}

func TestClipChatMessageClipsFullwidthByDisplayWidth(t *testing.T) {
	// each fullwidth rune occupies two display cells, so the clipped prefix
	// should be half as many runes as the ascii-only cap.
	s := ""
	for i := 0; i < MaxServerBoundChatLength; i++ {
		s += "Ａ" // fullwidth 'A'
	}
	clipped := ClipChatMessage(s)
	assert.Less(t, len([]rune(clipped)), MaxServerBoundChatLength)
}
