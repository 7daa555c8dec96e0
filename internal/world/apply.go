package world

import (
	"github.com/janispritzkau/2b2proxy/internal/chat"
	"github.com/janispritzkau/2b2proxy/internal/codec"
	"github.com/janispritzkau/2b2proxy/internal/nbt"
	"github.com/janispritzkau/2b2proxy/internal/proto"
)

// angle converts a protocol angle byte (256 units per revolution) to
// degrees.
func angle(b byte) float32 { return float32(b) * (360.0 / 256.0) }

func angleByte(deg float32) byte { return byte(int32(deg/(360.0/256.0)) & 0xFF) }

// Hooks lets a caller (the upstream session) observe specific mutations
// without the Mirror importing the profile/settings package: health-gate
// and spawn-notification decisions are a session-level policy (§3), the
// Mirror only reports the raw facts they're based on.
type Hooks struct {
	OnHealthUpdate   func(health float32)
	OnPlayerSpawn    func(name string, uuid [16]byte)
	OnGamemodeChange func(gamemode int32)
}

// Apply decodes and applies one clientbound Play packet to the mirror
// (§4.3's per-id handler table). The caller must already hold the session's
// single-writer discipline (§5); Apply itself does not lock, since spec's
// concurrency model serialises all mutation of a given Mirror on one
// scheduler — the upstream client's read loop holds the write lock around
// each call, and cross-goroutine readers take the read lock.
func (m *Mirror) Apply(id int32, payload []byte, h Hooks) error {
	r := codec.NewReader(payload)
	switch id {
	case proto.CBSpawnObject:
		m.applySpawnObject(r)
	case proto.CBSpawnOrb:
		m.applySpawnOrb(r)
	case proto.CBSpawnGlobalEntity:
		m.applySpawnGlobal(r)
	case proto.CBSpawnMob:
		m.applySpawnMob(r)
	case proto.CBSpawnPainting:
		m.applySpawnPainting(r)
	case proto.CBSpawnPlayer:
		m.applySpawnPlayer(r, h)
	case proto.CBUpdateBlockEntity:
		m.applyUpdateBlockEntity(r)
	case proto.CBBlockChange:
		m.applyBlockChange(r)
	case proto.CBBossBar:
		m.applyBossBar(r)
	case proto.CBChatMessage:
		m.applyChatMessage(r)
	case proto.CBMultiBlockChange:
		m.applyMultiBlockChange(r)
	case proto.CBWindowItems:
		m.applyWindowItems(r)
	case proto.CBSetSlot:
		m.applySetSlot(r)
	case proto.CBExplosion:
		m.applyExplosion(r)
	case proto.CBUnloadChunk:
		m.applyUnloadChunk(r)
	case proto.CBChangeGameState:
		m.applyChangeGameState(r, h)
	case proto.CBChunkData:
		m.applyChunkData(r)
	case proto.CBJoinGame:
		m.applyJoinGame(r)
	case proto.CBPlayerAbilities:
		m.applyPlayerAbilities(r)
	case proto.CBPlayerListItem:
		m.applyPlayerListItem(r)
	case proto.CBPlayerPosAndLook:
		m.applyPlayerPosAndLook(r)
	case proto.CBUnlockRecipes:
		m.applyUnlockRecipes(r)
	case proto.CBDestroyEntities:
		m.applyDestroyEntities(r)
	case proto.CBRespawn:
		m.applyRespawn(r)
	case proto.CBEntityRelativeMove:
		m.applyEntityRelativeMove(r, false)
	case proto.CBEntityLookAndRelMove:
		m.applyEntityRelativeMove(r, true)
	case proto.CBEntityLook:
		m.applyEntityLook(r)
	case proto.CBEntityVelocity:
		m.applyEntityVelocity(r)
	case proto.CBEntityTeleport:
		m.applyEntityTeleport(r)
	case proto.CBEntityHeadLook:
		m.applyEntityHeadLook(r)
	case proto.CBEntityMetadata:
		m.applyEntityMetadata(r)
	case proto.CBEntityEquipment:
		m.applyEntityEquipment(r)
	case proto.CBEntityProperties:
		m.applyEntityProperties(r)
	case proto.CBSetPassengers:
		m.applySetPassengers(r)
	case proto.CBAttachEntity:
		m.applyAttachEntity(r)
	case proto.CBCamera:
		m.Camera = r.VarInt()
		m.HasCamera = true
	case proto.CBHeldItemChange:
		m.HeldItem = int32(r.Byte())
	case proto.CBSetExperience:
		m.XPBar = r.Float32()
		m.Level = r.VarInt()
		m.TotalXP = r.VarInt()
	case proto.CBUpdateHealth:
		m.applyUpdateHealth(r, h)
	case proto.CBPlayerListHeaderFooter:
		m.applyTabListHeaderFooter(r)
	case proto.CBTeams:
		m.applyTeams(r)
	case proto.CBTimeUpdate:
		m.WorldAge = uint64(r.Int64())
		m.Time = uint64(r.Int64())
	case proto.CBSpawnPosition:
		m.SpawnX, m.SpawnY, m.SpawnZ = r.Position()
	}
	err := r.Err()
	if err == nil {
		m.markChanged()
	}
	return err
}

func (m *Mirror) applySpawnObject(r *codec.Reader) {
	eid := r.VarInt()
	u := r.UUID()
	objType := r.Int8()
	x, y, z := r.Float64(), r.Float64(), r.Float64()
	pitch, yaw := angle(r.Byte()), angle(r.Byte())
	data := r.Int32()
	var vx, vy, vz int16
	if data != 0 {
		vx, vy, vz = r.Int16(), r.Int16(), r.Int16()
	}
	m.Entities[eid] = &Entity{
		EID: eid, Kind: KindObject, UUID: u, ObjectType: objType, ObjectData: data,
		Position: Vec3{x, y, z}, Look: Look{Yaw: yaw, Pitch: pitch},
		Velocity: Vec3{float64(vx), float64(vy), float64(vz)},
	}
}

func (m *Mirror) applySpawnOrb(r *codec.Reader) {
	eid := r.VarInt()
	x, y, z := r.Float64(), r.Float64(), r.Float64()
	count := r.Int16()
	m.Entities[eid] = &Entity{EID: eid, Kind: KindOrb, Position: Vec3{x, y, z}, OrbCount: count}
}

func (m *Mirror) applySpawnGlobal(r *codec.Reader) {
	eid := r.VarInt()
	objType := r.Int8()
	x, y, z := r.Float64(), r.Float64(), r.Float64()
	m.Entities[eid] = &Entity{EID: eid, Kind: KindGlobal, ObjectType: objType, Position: Vec3{x, y, z}}
}

func (m *Mirror) applySpawnMob(r *codec.Reader) {
	eid := r.VarInt()
	u := r.UUID()
	mobType := r.VarInt()
	x, y, z := r.Float64(), r.Float64(), r.Float64()
	yaw, pitch, headPitch := angle(r.Byte()), angle(r.Byte()), r.Int8()
	vx, vy, vz := r.Int16(), r.Int16(), r.Int16()
	e := &Entity{
		EID: eid, Kind: KindMob, UUID: u, MobType: byte(mobType),
		Position: Vec3{x, y, z}, Look: Look{Yaw: yaw, Pitch: pitch}, HeadPitch: headPitch,
		Velocity: Vec3{float64(vx), float64(vy), float64(vz)},
	}
	e.Metadata = decodeMetadata(r)
	m.Entities[eid] = e
}

func (m *Mirror) applySpawnPainting(r *codec.Reader) {
	eid := r.VarInt()
	u := r.UUID()
	title := r.String()
	x, y, z := r.Position()
	dir := r.Int8()
	m.Entities[eid] = &Entity{
		EID: eid, Kind: KindPainting, UUID: u, PaintingTitle: title,
		PaintingX: x, PaintingY: y, PaintingZ: z, PaintingDirection: int32(dir),
	}
}

func (m *Mirror) applySpawnPlayer(r *codec.Reader, h Hooks) {
	eid := r.VarInt()
	u := r.UUID()
	x, y, z := r.Float64(), r.Float64(), r.Float64()
	yaw, pitch := angle(r.Byte()), angle(r.Byte())
	e := &Entity{EID: eid, Kind: KindPlayer, UUID: u, Position: Vec3{x, y, z}, Look: Look{Yaw: yaw, Pitch: pitch}}
	e.Metadata = decodeMetadata(r)
	m.Entities[eid] = e
	if h.OnPlayerSpawn != nil {
		name := ""
		if pl, ok := m.Players[u]; ok {
			name = pl.Name
		}
		h.OnPlayerSpawn(name, u)
	}
}

// decodeMetadata reads the 0xFF-terminated entity-metadata list shared by
// every spawn-with-metadata packet and the standalone 0x3C packet.
func decodeMetadata(r *codec.Reader) map[int32]MetadataEntry {
	out := map[int32]MetadataEntry{}
	for {
		index := r.Byte()
		if index == 0xFF {
			break
		}
		typ := r.VarInt()
		out[int32(index)] = MetadataEntry{Type: typ, Value: decodeMetadataValue(r, typ)}
	}
	return out
}

// decodeMetadataValue reads one metadata value by its declared type id
// (§4.1's typed-schema requirement: no raw offset skipping even here).
func decodeMetadataValue(r *codec.Reader, typ int32) interface{} {
	switch typ {
	case 0: // byte
		return r.Int8()
	case 1: // varint
		return r.VarInt()
	case 2: // float
		return r.Float32()
	case 3: // string
		return r.String()
	case 4: // chat
		s := r.String()
		c, _ := chat.UnmarshalJSONString(s)
		return c
	case 5: // optchat
		if r.Bool() {
			s := r.String()
			c, _ := chat.UnmarshalJSONString(s)
			return c
		}
		return nil
	case 6: // slot
		return r.Slot()
	case 7: // bool
		return r.Bool()
	case 8: // rotation (3 floats)
		return [3]float32{r.Float32(), r.Float32(), r.Float32()}
	case 9: // position
		x, y, z := r.Position()
		return [3]int32{x, y, z}
	case 10: // optposition
		if r.Bool() {
			x, y, z := r.Position()
			return [3]int32{x, y, z}
		}
		return nil
	case 11: // direction (varint)
		return r.VarInt()
	case 12: // optuuid
		if r.Bool() {
			return r.UUID()
		}
		return nil
	case 13: // optblockid (varint)
		return r.VarInt()
	case 14: // nbt
		return r.NBT()
	case 15: // particle (not needed further than skipping varint id; best-effort)
		return r.VarInt()
	default:
		return nil
	}
}

func (m *Mirror) applyUpdateBlockEntity(r *codec.Reader) {
	x, y, z := r.Position()
	_ = r.Byte() // action, not distinguishing add/update here
	tag := r.NBT()
	col := m.Chunks[x>>4]
	if col == nil {
		return
	}
	chunk := col[z>>4]
	if chunk == nil {
		return
	}
	for i, be := range chunk.BlockEntities {
		if beX, beY, beZ, ok := blockEntityPos(be); ok && beX == x && beY == y && beZ == z {
			chunk.BlockEntities[i] = tag
			return
		}
	}
	chunk.BlockEntities = append(chunk.BlockEntities, tag)
}

func blockEntityPos(t nbt.Tag) (x, y, z int32, ok bool) {
	if t.Compound == nil {
		return 0, 0, 0, false
	}
	xt, xok := t.Compound["x"]
	yt, yok := t.Compound["y"]
	zt, zok := t.Compound["z"]
	if !xok || !yok || !zok {
		return 0, 0, 0, false
	}
	return xt.Int, yt.Int, zt.Int, true
}

func (m *Mirror) blockIndex(x, y, z int32) (cx, cz int32, section *ChunkSection, idx int, ok bool) {
	cx, cz = x>>4, z>>4
	col := m.Chunks[cx]
	if col == nil {
		return
	}
	chunk := col[cz]
	if chunk == nil {
		return
	}
	s := y >> 4
	if s < 0 || s > 15 || chunk.Sections[s] == nil {
		return
	}
	section = chunk.Sections[s]
	idx = int(((y & 15) << 8) | ((z & 15) << 4) | (x & 15))
	ok = true
	return
}

func (m *Mirror) setBlock(x, y, z int32, newID uint16) {
	_, _, section, idx, ok := m.blockIndex(x, y, z)
	if !ok {
		return
	}
	section.Blocks[idx] = newID
	if newID == 0 {
		m.purgeBlockEntityAt(x, y, z)
	}
}

func (m *Mirror) purgeBlockEntityAt(x, y, z int32) {
	col := m.Chunks[x>>4]
	if col == nil {
		return
	}
	chunk := col[z>>4]
	if chunk == nil {
		return
	}
	out := chunk.BlockEntities[:0]
	for _, be := range chunk.BlockEntities {
		if bx, by, bz, ok := blockEntityPos(be); ok && bx == x && by == y && bz == z {
			continue
		}
		out = append(out, be)
	}
	chunk.BlockEntities = out
}

func (m *Mirror) applyBlockChange(r *codec.Reader) {
	x, y, z := r.Position()
	newID := r.VarInt()
	m.setBlock(x, y, z, uint16(newID))
}

func (m *Mirror) applyMultiBlockChange(r *codec.Reader) {
	chunkX, chunkZ := r.Int32(), r.Int32()
	count := int(r.VarInt())
	for i := 0; i < count; i++ {
		xz := r.Byte()
		y := int32(r.Byte())
		blockID := r.VarInt()
		x := chunkX*16 + int32(xz>>4)
		z := chunkZ*16 + int32(xz&0xF)
		m.setBlock(x, y, z, uint16(blockID))
	}
}

func (m *Mirror) applyBossBar(r *codec.Reader) {
	u := r.UUID()
	action := r.VarInt()
	switch action {
	case 0:
		s := r.String()
		c, _ := chat.UnmarshalJSONString(s)
		health := r.Float32()
		color := r.VarInt()
		style := r.VarInt()
		flags := r.Byte()
		m.BossBars[u] = &BossBar{UUID: u, Title: c, Health: health, Color: color, Style: style, Flags: flags}
	case 1:
		delete(m.BossBars, u)
	case 2:
		if b := m.BossBars[u]; b != nil {
			b.Health = r.Float32()
		}
	case 3:
		s := r.String()
		c, _ := chat.UnmarshalJSONString(s)
		if b := m.BossBars[u]; b != nil {
			b.Title = c
		}
	case 4:
		color := r.VarInt()
		style := r.VarInt()
		if b := m.BossBars[u]; b != nil {
			b.Color, b.Style = color, style
		}
	case 5:
		flags := r.Byte()
		if b := m.BossBars[u]; b != nil {
			b.Flags = flags
		}
	}
}

func (m *Mirror) applyChatMessage(r *codec.Reader) {
	s := r.String()
	_ = r.Byte() // position, not retained on the mirror side
	c, err := chat.UnmarshalJSONString(s)
	if err != nil {
		return
	}
	m.PushChat(c)
}

func (m *Mirror) applyWindowItems(r *codec.Reader) {
	windowID := r.Byte()
	count := int(r.Int16())
	slots := make([]codec.Slot, count)
	for i := range slots {
		slots[i] = r.Slot()
	}
	if windowID != 0 {
		return
	}
	for i, s := range slots {
		m.Inventory[int32(i)] = fromCodecSlot(s)
	}
}

func (m *Mirror) applySetSlot(r *codec.Reader) {
	windowID := r.Int8()
	slot := r.Int16()
	item := r.Slot()
	if windowID != 0 {
		return
	}
	m.Inventory[int32(slot)] = fromCodecSlot(item)
}

func fromCodecSlot(s codec.Slot) Item {
	return Item{ID: s.ID, Count: s.Count, Damage: s.Damage, Tag: s.Tag}
}

func toCodecSlot(i Item) codec.Slot {
	return codec.Slot{ID: i.ID, Count: i.Count, Damage: i.Damage, Tag: i.Tag}
}

func (m *Mirror) applyExplosion(r *codec.Reader) {
	x, y, z := r.Float32(), r.Float32(), r.Float32()
	_ = r.Float32() // radius, advisory only
	count := int(r.Int32())
	cx, cy, cz := int32(x), int32(y), int32(z)
	for i := 0; i < count; i++ {
		dx, dy, dz := r.Int8(), r.Int8(), r.Int8()
		m.setBlock(cx+int32(dx), cy+int32(dy), cz+int32(dz), 0)
	}
	_, _, _ = r.Float32(), r.Float32(), r.Float32() // player velocity, not tracked
}

func (m *Mirror) applyUnloadChunk(r *codec.Reader) {
	x, z := r.Int32(), r.Int32()
	col := m.Chunks[x]
	if col == nil {
		return
	}
	delete(col, z)
	if len(col) == 0 {
		delete(m.Chunks, x)
	}
}

func (m *Mirror) applyChangeGameState(r *codec.Reader, h Hooks) {
	reason := r.Byte()
	value := r.Float32()
	switch reason {
	case 1:
		m.Raining = false
	case 2:
		m.Raining = true
	case 3:
		m.Gamemode = int32(value)
		if h.OnGamemodeChange != nil {
			h.OnGamemodeChange(m.Gamemode)
		}
	case 7:
		m.FadeValue = value
	case 8:
		m.FadeTime = value
	}
}

func (m *Mirror) applyChunkData(r *codec.Reader) {
	x, z, fullChunk, sections, biomes, blockEntities := DecodeChunkColumn(r, m.Dimension)
	col := m.Chunks[x]
	if col == nil {
		col = map[int32]*Chunk{}
		m.Chunks[x] = col
	}
	chunk := col[z]
	if chunk == nil || fullChunk {
		chunk = &Chunk{X: x, Z: z}
		col[z] = chunk
	}
	for s, sec := range sections {
		if sec != nil {
			chunk.Sections[s] = sec
		}
	}
	if fullChunk {
		chunk.Biomes = biomes
		chunk.BlockEntities = blockEntities
	} else {
		chunk.BlockEntities = append(chunk.BlockEntities, blockEntities...)
	}
}

func (m *Mirror) applyJoinGame(r *codec.Reader) {
	eid := r.Int32()
	gamemode := r.Byte()
	dimension := r.Int32()
	difficulty := r.Byte()
	_ = r.Byte() // max players, legacy and unused
	levelType := r.String()
	_ = r.Bool() // reduced debug info

	m.EID = eid
	m.Gamemode = int32(gamemode & 0x7)
	m.Dimension = dimension
	m.Difficulty = int32(difficulty)
	m.LevelType = levelType
	m.Entities[eid] = &Entity{EID: eid, Kind: KindPlayer, Position: m.Player.Vec3, Look: m.Player.Look}
}

func (m *Mirror) applyPlayerAbilities(r *codec.Reader) {
	flags := r.Byte()
	m.Invulnerable = flags&0x01 != 0
	m.Flying = flags&0x02 != 0
	m.AllowFlying = flags&0x04 != 0
	m.CreativeMode = flags&0x08 != 0
	m.FlyingSpeed = r.Float32()
	m.FOV = r.Float32()
}

func (m *Mirror) applyPlayerListItem(r *codec.Reader) {
	action := r.VarInt()
	count := int(r.VarInt())
	for i := 0; i < count; i++ {
		u := r.UUID()
		switch action {
		case 0:
			name := r.String()
			numProps := int(r.VarInt())
			props := make([]GameProfileProperty, numProps)
			for j := range props {
				props[j].Name = r.String()
				props[j].Value = r.String()
				if r.Bool() {
					sig := r.String()
					props[j].Signature = &sig
				}
			}
			gamemode := r.VarInt()
			ping := r.VarInt()
			var displayName *chat.Component
			if r.Bool() {
				c, _ := chat.UnmarshalJSONString(r.String())
				displayName = &c
			}
			m.Players[u] = &PlayerListItem{UUID: u, Name: name, Properties: props, Gamemode: gamemode, Ping: ping, DisplayName: displayName}
		case 1:
			gamemode := r.VarInt()
			if pl := m.Players[u]; pl != nil {
				pl.Gamemode = gamemode
			}
		case 2:
			ping := r.VarInt()
			if pl := m.Players[u]; pl != nil {
				pl.Ping = ping
			}
		case 3:
			var displayName *chat.Component
			if r.Bool() {
				c, _ := chat.UnmarshalJSONString(r.String())
				displayName = &c
			}
			if pl := m.Players[u]; pl != nil {
				pl.DisplayName = displayName
			}
		case 4:
			delete(m.Players, u)
		}
	}
}

func (m *Mirror) applyPlayerPosAndLook(r *codec.Reader) {
	x, y, z := r.Float64(), r.Float64(), r.Float64()
	yaw, pitch := r.Float32(), r.Float32()
	flags := r.Byte()
	_ = r.VarInt() // teleport id; the upstream client echoes it, the mirror does not store it

	if flags&0x01 != 0 {
		m.Player.X += x
	} else {
		m.Player.X = x
	}
	if flags&0x02 != 0 {
		m.Player.Y += y
	} else {
		m.Player.Y = y
	}
	if flags&0x04 != 0 {
		m.Player.Z += z
	} else {
		m.Player.Z = z
	}
	if flags&0x08 != 0 {
		m.Player.Yaw += yaw
	} else {
		m.Player.Yaw = yaw
	}
	if flags&0x10 != 0 {
		m.Player.Pitch += pitch
	} else {
		m.Player.Pitch = pitch
	}
	if e := m.LocalPlayer(); e != nil {
		e.Position = m.Player.Vec3
		e.Look = m.Player.Look
	}
}

func (m *Mirror) applyUnlockRecipes(r *codec.Reader) {
	action := r.VarInt()
	_ = r.Bool() // crafting book open
	_ = r.Bool() // filtering craftable
	n1 := int(r.VarInt())
	for i := 0; i < n1; i++ {
		m.UnlockedRecipes[r.VarInt()] = struct{}{}
	}
	// Only action 0 (init) carries the second array.
	if r.Err() != nil || action != 0 {
		return
	}
	n2 := int(r.VarInt())
	for i := 0; i < n2; i++ {
		m.UnlockedRecipes[r.VarInt()] = struct{}{}
	}
}

func (m *Mirror) applyDestroyEntities(r *codec.Reader) {
	count := int(r.VarInt())
	for i := 0; i < count; i++ {
		delete(m.Entities, r.VarInt())
	}
}

func (m *Mirror) applyRespawn(r *codec.Reader) {
	dimension := r.Int32()
	difficulty := r.Byte()
	gamemode := r.Byte()
	levelType := r.String()

	if dimension != m.Dimension {
		local := m.Entities[m.EID]
		m.Entities = map[int32]*Entity{}
		if local != nil {
			m.Entities[m.EID] = local
		}
		m.Chunks = map[int32]map[int32]*Chunk{}
		m.Maps = map[int32]*MapData{}
	}
	m.Dimension = dimension
	m.Difficulty = int32(difficulty)
	m.Gamemode = int32(gamemode & 0x7)
	m.LevelType = levelType
}

func (m *Mirror) applyEntityRelativeMove(r *codec.Reader, withLook bool) {
	eid := r.VarInt()
	dx, dy, dz := r.Int16(), r.Int16(), r.Int16()
	var yaw, pitch float32
	if withLook {
		yaw, pitch = angle(r.Byte()), angle(r.Byte())
	}
	_ = r.Bool() // on ground
	e := m.Entities[eid]
	if e == nil {
		return
	}
	e.Position.X += float64(dx) / 4096
	e.Position.Y += float64(dy) / 4096
	e.Position.Z += float64(dz) / 4096
	if withLook {
		e.Look = Look{Yaw: yaw, Pitch: pitch}
	}
}

func (m *Mirror) applyEntityLook(r *codec.Reader) {
	eid := r.VarInt()
	yaw, pitch := angle(r.Byte()), angle(r.Byte())
	_ = r.Bool()
	if e := m.Entities[eid]; e != nil {
		e.Look = Look{Yaw: yaw, Pitch: pitch}
	}
}

func (m *Mirror) applyEntityVelocity(r *codec.Reader) {
	eid := r.VarInt()
	vx, vy, vz := r.Int16(), r.Int16(), r.Int16()
	if e := m.Entities[eid]; e != nil {
		e.Velocity = Vec3{float64(vx), float64(vy), float64(vz)}
	}
}

func (m *Mirror) applyEntityTeleport(r *codec.Reader) {
	eid := r.VarInt()
	x, y, z := r.Float64(), r.Float64(), r.Float64()
	yaw, pitch := angle(r.Byte()), angle(r.Byte())
	_ = r.Bool()
	if e := m.Entities[eid]; e != nil {
		e.Position = Vec3{x, y, z}
		e.Look = Look{Yaw: yaw, Pitch: pitch}
	}
}

func (m *Mirror) applyEntityHeadLook(r *codec.Reader) {
	eid := r.VarInt()
	headYaw := angle(r.Byte())
	if e := m.Entities[eid]; e != nil {
		e.HeadYaw = int8(angleByte(headYaw))
	}
}

func (m *Mirror) applyEntityMetadata(r *codec.Reader) {
	eid := r.VarInt()
	md := decodeMetadata(r)
	if e := m.Entities[eid]; e != nil {
		if e.Metadata == nil {
			e.Metadata = map[int32]MetadataEntry{}
		}
		for k, v := range md {
			e.Metadata[k] = v
		}
	}
}

func (m *Mirror) applyEntityEquipment(r *codec.Reader) {
	eid := r.VarInt()
	slot := r.VarInt()
	item := r.Slot()
	e := m.Entities[eid]
	if e == nil {
		return
	}
	if e.Equipment == nil {
		e.Equipment = map[int32]Item{}
	}
	e.Equipment[slot] = fromCodecSlot(item)
}

func (m *Mirror) applyEntityProperties(r *codec.Reader) {
	eid := r.VarInt()
	count := int(r.Int32())
	props := make([]EntityProperty, count)
	for i := range props {
		props[i].Key = r.String()
		props[i].Value = r.Float64()
		numMod := int(r.VarInt())
		props[i].Modifiers = make([]AttributeModifier, numMod)
		for j := range props[i].Modifiers {
			props[i].Modifiers[j].UUID = r.UUID()
			props[i].Modifiers[j].Amount = r.Float64()
			props[i].Modifiers[j].Operation = r.Int8()
		}
	}
	if e := m.Entities[eid]; e != nil {
		e.Properties = props
	}
}

func (m *Mirror) applySetPassengers(r *codec.Reader) {
	eid := r.VarInt()
	count := int(r.VarInt())
	passengers := make(map[int32]struct{}, count)
	for i := 0; i < count; i++ {
		passengers[r.VarInt()] = struct{}{}
	}
	if e := m.Entities[eid]; e != nil {
		e.Passengers = passengers
	}
	m.RecomputeRiding()
}

func (m *Mirror) applyAttachEntity(r *codec.Reader) {
	attached := r.Int32()
	holding := r.Int32()
	e := m.Entities[attached]
	if e == nil {
		return
	}
	if holding == -1 {
		e.HasAttached = false
		e.AttachedEid = 0
	} else {
		e.HasAttached = true
		e.AttachedEid = holding
	}
}

func (m *Mirror) applyUpdateHealth(r *codec.Reader, h Hooks) {
	health := r.Float32()
	food := r.VarInt()
	saturation := r.Float32()
	m.Health = health
	m.Food = food
	m.Saturation = saturation
	m.HealthInitialized = true
	if h.OnHealthUpdate != nil {
		h.OnHealthUpdate(health)
	}
}

// applyTeams tracks scoreboard teams (§3 Team data model; not named in
// §4.3's "key handlers" list but needed for §4.4 step 4's replay to be
// meaningful, since the Team struct otherwise never populates).
func (m *Mirror) applyTeams(r *codec.Reader) {
	name := r.String()
	mode := r.Byte()
	switch mode {
	case 0, 2:
		t := m.Teams[name]
		if t == nil {
			t = &Team{Name: name, Members: map[string]struct{}{}}
			m.Teams[name] = t
		}
		t.DisplayName = r.String()
		t.Prefix = r.String()
		t.Suffix = r.String()
		t.FriendlyFire = r.Int8()
		t.NameTagVisibility = r.String()
		t.CollisionRule = r.String()
		t.Color = r.Int8()
		if mode == 0 {
			count := int(r.VarInt())
			for i := 0; i < count; i++ {
				t.Members[r.String()] = struct{}{}
			}
		}
	case 1:
		delete(m.Teams, name)
	case 3, 4:
		t := m.Teams[name]
		count := int(r.VarInt())
		for i := 0; i < count; i++ {
			member := r.String()
			if t == nil {
				continue
			}
			if mode == 3 {
				t.Members[member] = struct{}{}
			} else {
				delete(t.Members, member)
			}
		}
	}
}

func (m *Mirror) applyTabListHeaderFooter(r *codec.Reader) {
	header := r.String()
	footer := r.String()
	hc, _ := chat.UnmarshalJSONString(header)
	fc, _ := chat.UnmarshalJSONString(footer)
	m.PlayerListHeader = &hc
	m.PlayerListFooter = &fc
	if q, ok := chat.ParseQueue(fc.Plain()); ok {
		m.Queue = &q
	}
}
