package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janispritzkau/2b2proxy/internal/world"
)

// buildScenario3 constructs §8 scenario 3's exact fixture: JoinGame(eid=1,
// gm=0, dim=0, diff=2, lvl="default"), one player list entry for self, an
// empty 46-slot inventory, one full 16-section chunk at (0,0) with every
// block in section 0 set to 1, and player=(8.5, 65.0, 8.5, 0, 0).
func buildScenario3() *world.Mirror {
	m := world.New()
	m.EID = 1
	m.Gamemode = 0
	m.Dimension = 0
	m.Difficulty = 2
	m.LevelType = "default"
	m.Entities[1] = &world.Entity{EID: 1, Kind: world.KindPlayer}
	m.Player.X, m.Player.Y, m.Player.Z = 8.5, 65.0, 8.5
	m.Player.Yaw, m.Player.Pitch = 0, 0

	var self [16]byte
	m.Players[self] = &world.PlayerListItem{UUID: self, Name: "self", Gamemode: 0}

	sec0 := &world.ChunkSection{}
	for i := range sec0.Blocks {
		sec0.Blocks[i] = 1
	}
	var sky [2048]byte
	sec0.SkyLight = &sky
	chunk := &world.Chunk{X: 0, Z: 0}
	chunk.Sections[0] = sec0
	m.Chunks[0] = map[int32]*world.Chunk{0: chunk}

	return m
}

// TestReplayIdempotence covers §8's replay-idempotence property: emitting a
// snapshot and applying the result into a fresh mirror reproduces the same
// state, up to the local entity's eid being remapped to clientEid.
func TestReplayIdempotence(t *testing.T) {
	m := buildScenario3()
	const clientEid = int32(9_999_999)

	m.RLock()
	packets := Emit(m, clientEid, false)
	m.RUnlock()
	require.NotEmpty(t, packets)

	fresh := world.New()
	for _, p := range packets {
		err := fresh.Apply(p.ID, p.Payload, world.Hooks{})
		require.NoError(t, err)
	}

	assert.Equal(t, clientEid, fresh.EID)
	assert.Equal(t, m.Gamemode, fresh.Gamemode)
	assert.Equal(t, m.Dimension, fresh.Dimension)
	assert.Equal(t, m.Difficulty, fresh.Difficulty)
	assert.Equal(t, m.LevelType, fresh.LevelType)
	assert.Equal(t, m.Player, fresh.Player)

	require.Len(t, fresh.Players, 1)
	for _, pl := range fresh.Players {
		assert.Equal(t, "self", pl.Name)
	}

	for i := int32(0); i < 46; i++ {
		assert.Equal(t, world.EmptyItem, fresh.Inventory[i])
	}

	require.Contains(t, fresh.Chunks, int32(0))
	require.Contains(t, fresh.Chunks[0], int32(0))
	gotChunk := fresh.Chunks[0][0]
	require.NotNil(t, gotChunk.Sections[0])
	assert.Equal(t, m.Chunks[0][0].Sections[0].Blocks, gotChunk.Sections[0].Blocks)
}
