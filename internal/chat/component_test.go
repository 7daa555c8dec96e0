package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQueueExtractsPositionAndTime(t *testing.T) {
	q, ok := ParseQueue("queue: 42\nestimated time: 1h 30m")
	assert.True(t, ok)
	assert.Equal(t, Queue{Position: 42, Time: "1h 30m"}, q)
}

func TestParseQueueAbsent(t *testing.T) {
	_, ok := ParseQueue("just a regular tab list footer")
	assert.False(t, ok)
}

func TestParseQueueTakesRestOfLine(t *testing.T) {
	q, ok := ParseQueue("queue: 7 ... time: arriving soon, hang tight")
	assert.True(t, ok)
	assert.Equal(t, int32(7), q.Position)
	assert.Equal(t, "arriving soon, hang tight", q.Time)
}

func TestComponentJSONRoundTrip(t *testing.T) {
	c := Component{
		Text: "a",
		Extra: []Component{
			RunCommand("b", "/connect 1"),
			Translatable("multiplayer.disconnect.outdated_client", "1.12.2"),
		},
	}
	s, err := MarshalJSONString(c)
	assert.NoError(t, err)
	got, err := UnmarshalJSONString(s)
	assert.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestComponentPlainFlattensExtra(t *testing.T) {
	c := Component{Text: "hello ", Extra: []Component{{Text: "world"}}}
	assert.Equal(t, "hello world", c.Plain())
}
