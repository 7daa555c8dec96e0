package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janispritzkau/2b2proxy/internal/codec"
	"github.com/janispritzkau/2b2proxy/internal/proto"
)

func encodeMove(eid int32, rest []byte) []byte {
	w := codec.NewWriter()
	w.VarInt(eid)
	w.RawBytes(rest)
	return w.Bytes()
}

func decodeEid(payload []byte) int32 {
	r := codec.NewReader(payload)
	return r.VarInt()
}

// TestRewriteClientboundSubstitutesSelfEid covers §8 scenario 4: upstream
// sends an eid-bearing packet for selfEid; downstream must observe it
// rewritten to clientEid with every other byte unchanged.
func TestRewriteClientboundSubstitutesSelfEid(t *testing.T) {
	rest := []byte{0, 0, 1, 1}
	payload := encodeMove(1, rest)

	b := &Bridge{selfEid: 1, clientEid: 9_999_999}
	rewritten := b.rewriteClientbound(proto.CBEntityRelativeMove, payload)

	require.Equal(t, int32(9_999_999), decodeEid(rewritten))
	r := codec.NewReader(rewritten)
	r.VarInt()
	assert.Equal(t, rest, r.Remaining())
}

// TestRewriteClientboundLeavesOtherEidsAlone: a packet for any entity other
// than selfEid passes through unchanged.
func TestRewriteClientboundLeavesOtherEidsAlone(t *testing.T) {
	payload := encodeMove(42, []byte{9, 9})
	b := &Bridge{selfEid: 1, clientEid: 9_999_999}
	rewritten := b.rewriteClientbound(proto.CBEntityRelativeMove, payload)
	assert.Equal(t, payload, rewritten)
}

// TestRewriteIsInvolution covers §8's eid-bijection property: rewriting
// with selfEid/clientEid swapped undoes the first rewrite.
func TestRewriteIsInvolution(t *testing.T) {
	original := encodeMove(1, []byte{3, 1, 4})

	forward := &Bridge{selfEid: 1, clientEid: 9_999_999}
	rewritten := forward.rewriteClientbound(proto.CBEntityRelativeMove, original)
	require.NotEqual(t, original, rewritten)

	backward := &Bridge{selfEid: 9_999_999, clientEid: 1}
	roundTripped := backward.rewriteClientbound(proto.CBEntityRelativeMove, rewritten)

	assert.Equal(t, original, roundTripped)
}

func TestRewritePassengersRemapsOnlySelfEid(t *testing.T) {
	w := codec.NewWriter()
	w.VarInt(100) // vehicle
	w.VarInt(2)   // passenger count
	w.VarInt(1)   // selfEid
	w.VarInt(55)  // unrelated passenger
	payload := w.Bytes()

	b := &Bridge{selfEid: 1, clientEid: 9_999_999}
	rewritten := b.rewritePassengers(payload)

	r := codec.NewReader(rewritten)
	assert.Equal(t, int32(100), r.VarInt())
	assert.Equal(t, int32(2), r.VarInt())
	assert.Equal(t, int32(9_999_999), r.VarInt())
	assert.Equal(t, int32(55), r.VarInt())
}
