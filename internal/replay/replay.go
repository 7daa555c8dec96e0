// Package replay implements the ReplayEngine (§4.4): given a WorldMirror
// snapshot and a client-facing entity id, it produces the ordered
// clientbound packet sequence that reconstitutes a fresh client's view of
// that world.
package replay

import (
	"sort"

	"github.com/janispritzkau/2b2proxy/internal/chat"
	"github.com/janispritzkau/2b2proxy/internal/codec"
	"github.com/janispritzkau/2b2proxy/internal/nbt"
	"github.com/janispritzkau/2b2proxy/internal/proto"
	"github.com/janispritzkau/2b2proxy/internal/world"
)

// Packet is one emitted clientbound frame, ready to hand to a FrameWriter.
type Packet struct {
	ID      int32
	Payload []byte
}

// Emit builds the full replay sequence per §4.4's 12 numbered steps. The
// caller must hold at least a read lock on m for the duration of the call.
// If respawn is true, step 1 additionally emits a Respawn pair into a
// sentinel dimension and back, forcing the client to discard any stale
// world state before the real JoinGame/chunks arrive.
func Emit(m *world.Mirror, clientEid int32, respawn bool) []Packet {
	var out []Packet
	emit := func(id int32, payload []byte) { out = append(out, Packet{ID: id, Payload: payload}) }

	// 1. JoinGame, optionally preceded by a dimension-churning Respawn pair.
	if respawn {
		sentinel := int32(1)
		if m.Dimension == 1 {
			sentinel = 0
		}
		emit(proto.CBRespawn, encodeRespawn(sentinel, m.Difficulty, m.Gamemode, m.LevelType))
		emit(proto.CBRespawn, encodeRespawn(m.Dimension, m.Difficulty, m.Gamemode, m.LevelType))
	}
	emit(proto.CBJoinGame, encodeJoinGame(clientEid, m.Gamemode, m.Dimension, m.Difficulty, m.LevelType))

	// 2. PlayerAbilities
	emit(proto.CBPlayerAbilities, encodePlayerAbilities(m))

	// 3. PlayerListItem action=add, every cached player.
	if len(m.Players) > 0 {
		emit(proto.CBPlayerListItem, encodePlayerListAdd(m))
	}

	// 4. Teams
	for _, name := range sortedKeys(teamNames(m)) {
		emit(proto.CBTeams, encodeTeamCreate(m.Teams[name]))
	}

	// 5. WindowItems for window 0, exactly 46 slots.
	emit(proto.CBWindowItems, encodeWindowItems(m))

	// 6. Maps
	for _, id := range sortedMapIDs(m) {
		emit(proto.CBMap, encodeMap(m.Maps[id]))
	}

	// 7. Misc scalar state.
	emit(proto.CBHeldItemChange, encodeHeldItemChange(m.HeldItem))
	emit(proto.CBSetExperience, encodeSetExperience(m))
	if m.HealthInitialized {
		emit(proto.CBUpdateHealth, encodeUpdateHealth(m))
	}
	if m.PlayerListHeader != nil && m.PlayerListFooter != nil {
		emit(proto.CBPlayerListHeaderFooter, encodeHeaderFooter(*m.PlayerListHeader, *m.PlayerListFooter))
	}
	emit(proto.CBSpawnPosition, encodeSpawnPosition(m.SpawnX, m.SpawnY, m.SpawnZ))
	emit(proto.CBTimeUpdate, encodeTimeUpdate(m.WorldAge, m.Time))
	if m.Raining {
		emit(proto.CBChangeGameState, encodeChangeGameState(2, 0))
	} else {
		emit(proto.CBChangeGameState, encodeChangeGameState(1, 0))
	}
	if m.FadeValue != 0 {
		emit(proto.CBChangeGameState, encodeChangeGameState(7, m.FadeValue))
	}
	if m.FadeTime != 0 {
		emit(proto.CBChangeGameState, encodeChangeGameState(8, m.FadeTime))
	}

	// 8. UnlockRecipes
	emit(proto.CBUnlockRecipes, encodeUnlockRecipes(m))

	// 9. PlayerPositionAndLook, absolute, flags=0.
	emit(proto.CBPlayerPosAndLook, encodePlayerPosAndLook(m))

	// 10. Every entity except local: spawn + metadata + properties + equipment.
	// Local player: metadata only.
	for _, eid := range sortedEntityIDs(m) {
		e := m.Entities[eid]
		outEid := eid
		if eid == m.EID {
			outEid = clientEid
		}
		if eid != m.EID {
			if p := encodeSpawn(e, outEid); p != nil {
				emit(p.ID, p.Payload)
			}
		}
		if len(e.Metadata) > 0 {
			emit(proto.CBEntityMetadata, encodeMetadataPacket(outEid, e.Metadata))
		}
		if eid != m.EID {
			if len(e.Properties) > 0 {
				emit(proto.CBEntityProperties, encodeProperties(outEid, e.Properties))
			}
			for _, slot := range sortedEquipmentSlots(e.Equipment) {
				emit(proto.CBEntityEquipment, encodeEquipment(outEid, slot, e.Equipment[slot]))
			}
		}
	}

	// 11. Camera, passenger graph, attach.
	if m.HasCamera {
		emit(proto.CBCamera, encodeCamera(m.Camera))
	}
	for _, eid := range sortedEntityIDs(m) {
		e := m.Entities[eid]
		outEid := remapEid(eid, m.EID, clientEid)
		if len(e.Passengers) > 0 {
			emit(proto.CBSetPassengers, encodeSetPassengers(outEid, e.Passengers, m.EID, clientEid))
		}
		if e.HasAttached {
			emit(proto.CBAttachEntity, encodeAttachEntity(outEid, remapEid(e.AttachedEid, m.EID, clientEid)))
		}
	}

	// 12. All cached chunks, full-chunk re-encode.
	for _, cx := range sortedInt32Keys(m.Chunks) {
		col := m.Chunks[cx]
		for _, cz := range sortedInt32KeysI(col) {
			w := codec.NewWriter()
			world.EncodeChunkColumn(w, col[cz], m.Dimension)
			emit(proto.CBChunkData, w.Bytes())
		}
	}

	return out
}

func remapEid(eid, selfEid, clientEid int32) int32 {
	if eid == selfEid {
		return clientEid
	}
	return eid
}

func encodeRespawn(dimension, difficulty, gamemode int32, levelType string) []byte {
	w := codec.NewWriter()
	w.Int32(dimension)
	w.Byte(byte(difficulty))
	w.Byte(byte(gamemode) & 0x7) // strip the spectator bit, §6
	w.String(levelType)
	return w.Bytes()
}

func encodeJoinGame(eid, gamemode, dimension, difficulty int32, levelType string) []byte {
	w := codec.NewWriter()
	w.Int32(eid)
	w.Byte(byte(gamemode) & 0x7) // strip the spectator bit, §6
	w.Int32(dimension)
	w.Byte(byte(difficulty))
	w.Byte(0) // max players, legacy unused field
	w.String(levelType)
	w.Bool(false) // reduced debug info
	return w.Bytes()
}

func encodePlayerAbilities(m *world.Mirror) []byte {
	w := codec.NewWriter()
	var flags byte
	if m.Invulnerable {
		flags |= 0x01
	}
	if m.Flying {
		flags |= 0x02
	}
	if m.AllowFlying {
		flags |= 0x04
	}
	if m.CreativeMode {
		flags |= 0x08
	}
	w.Byte(flags)
	w.Float32(m.FlyingSpeed)
	w.Float32(m.FOV)
	return w.Bytes()
}

func encodePlayerListAdd(m *world.Mirror) []byte {
	w := codec.NewWriter()
	w.VarInt(0) // action: add
	w.VarInt(int32(len(m.Players)))
	for _, u := range sortedUUIDs(m.Players) {
		pl := m.Players[u]
		w.UUID(u)
		w.String(pl.Name)
		w.VarInt(int32(len(pl.Properties)))
		for _, prop := range pl.Properties {
			w.String(prop.Name)
			w.String(prop.Value)
			w.Bool(prop.Signature != nil)
			if prop.Signature != nil {
				w.String(*prop.Signature)
			}
		}
		w.VarInt(pl.Gamemode)
		w.VarInt(pl.Ping)
		w.Bool(pl.DisplayName != nil)
		if pl.DisplayName != nil {
			s, _ := chat.MarshalJSONString(*pl.DisplayName)
			w.String(s)
		}
	}
	return w.Bytes()
}

func encodeTeamCreate(t *world.Team) []byte {
	w := codec.NewWriter()
	w.String(t.Name)
	w.Byte(0) // mode: create
	w.String(t.DisplayName)
	w.String(t.Prefix)
	w.String(t.Suffix)
	w.Int8(t.FriendlyFire)
	w.String(t.NameTagVisibility)
	w.String(t.CollisionRule)
	w.Int8(t.Color)
	members := make([]string, 0, len(t.Members))
	for name := range t.Members {
		members = append(members, name)
	}
	sort.Strings(members)
	w.VarInt(int32(len(members)))
	for _, name := range members {
		w.String(name)
	}
	return w.Bytes()
}

func encodeWindowItems(m *world.Mirror) []byte {
	w := codec.NewWriter()
	w.Byte(0)
	w.Int16(46)
	for i := int32(0); i < 46; i++ {
		item, ok := m.Inventory[i]
		if !ok {
			item = world.EmptyItem
		}
		w.Slot(codec.Slot{ID: item.ID, Count: item.Count, Damage: item.Damage, Tag: item.Tag})
	}
	return w.Bytes()
}

func encodeMap(md *world.MapData) []byte {
	w := codec.NewWriter()
	w.VarInt(md.ID)
	w.Byte(md.Scale)
	w.Bool(md.TrackingPosition)
	w.VarInt(int32(len(md.Icons)))
	for _, icon := range md.Icons {
		w.Byte((icon.Direction << 4) | icon.Type)
		w.Int8(icon.X)
		w.Int8(icon.Z)
	}
	w.Byte(md.Columns)
	if md.Columns > 0 {
		w.Byte(md.Rows)
		w.Byte(md.X)
		w.Byte(md.Z)
		w.VarInt(int32(len(md.Data)))
		w.RawBytes(md.Data)
	}
	return w.Bytes()
}

func encodeHeldItemChange(slot int32) []byte {
	w := codec.NewWriter()
	w.Byte(byte(slot))
	return w.Bytes()
}

func encodeSetExperience(m *world.Mirror) []byte {
	w := codec.NewWriter()
	w.Float32(m.XPBar)
	w.VarInt(m.Level)
	w.VarInt(m.TotalXP)
	return w.Bytes()
}

func encodeUpdateHealth(m *world.Mirror) []byte {
	w := codec.NewWriter()
	w.Float32(m.Health)
	w.VarInt(m.Food)
	w.Float32(m.Saturation)
	return w.Bytes()
}

func encodeHeaderFooter(header, footer chat.Component) []byte {
	w := codec.NewWriter()
	hs, _ := chat.MarshalJSONString(header)
	fs, _ := chat.MarshalJSONString(footer)
	w.String(hs)
	w.String(fs)
	return w.Bytes()
}

func encodeSpawnPosition(x, y, z int32) []byte {
	w := codec.NewWriter()
	w.Position(x, y, z)
	return w.Bytes()
}

func encodeTimeUpdate(worldAge, time uint64) []byte {
	w := codec.NewWriter()
	w.Int64(int64(worldAge))
	w.Int64(int64(time))
	return w.Bytes()
}

func encodeChangeGameState(reason byte, value float32) []byte {
	w := codec.NewWriter()
	w.Byte(reason)
	w.Float32(value)
	return w.Bytes()
}

func encodeUnlockRecipes(m *world.Mirror) []byte {
	w := codec.NewWriter()
	w.VarInt(0) // action: init
	w.Bool(false)
	w.Bool(false)
	ids := make([]int32, 0, len(m.UnlockedRecipes))
	for id := range m.UnlockedRecipes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	w.VarInt(int32(len(ids)))
	for _, id := range ids {
		w.VarInt(id)
	}
	w.VarInt(int32(len(ids)))
	for _, id := range ids {
		w.VarInt(id)
	}
	return w.Bytes()
}

func encodePlayerPosAndLook(m *world.Mirror) []byte {
	w := codec.NewWriter()
	w.Float64(m.Player.X)
	w.Float64(m.Player.Y)
	w.Float64(m.Player.Z)
	w.Float32(m.Player.Yaw)
	w.Float32(m.Player.Pitch)
	w.Byte(0)
	w.VarInt(0)
	return w.Bytes()
}

func encodeSpawn(e *world.Entity, eid int32) *Packet {
	w := codec.NewWriter()
	switch e.Kind {
	case world.KindObject:
		w.VarInt(eid)
		w.UUID(e.UUID)
		w.Int8(e.ObjectType)
		w.Float64(e.Position.X)
		w.Float64(e.Position.Y)
		w.Float64(e.Position.Z)
		w.Byte(angleByte(e.Look.Pitch))
		w.Byte(angleByte(e.Look.Yaw))
		w.Int32(e.ObjectData)
		if e.ObjectData != 0 {
			w.Int16(int16(e.Velocity.X))
			w.Int16(int16(e.Velocity.Y))
			w.Int16(int16(e.Velocity.Z))
		}
		return &Packet{ID: proto.CBSpawnObject, Payload: w.Bytes()}
	case world.KindOrb:
		w.VarInt(eid)
		w.Float64(e.Position.X)
		w.Float64(e.Position.Y)
		w.Float64(e.Position.Z)
		w.Int16(e.OrbCount)
		return &Packet{ID: proto.CBSpawnOrb, Payload: w.Bytes()}
	case world.KindGlobal:
		w.VarInt(eid)
		w.Int8(e.ObjectType)
		w.Float64(e.Position.X)
		w.Float64(e.Position.Y)
		w.Float64(e.Position.Z)
		return &Packet{ID: proto.CBSpawnGlobalEntity, Payload: w.Bytes()}
	case world.KindMob:
		w.VarInt(eid)
		w.UUID(e.UUID)
		w.VarInt(int32(e.MobType))
		w.Float64(e.Position.X)
		w.Float64(e.Position.Y)
		w.Float64(e.Position.Z)
		w.Byte(angleByte(e.Look.Yaw))
		w.Byte(angleByte(e.Look.Pitch))
		w.Int8(e.HeadPitch)
		w.Int16(int16(e.Velocity.X))
		w.Int16(int16(e.Velocity.Y))
		w.Int16(int16(e.Velocity.Z))
		writeMetadata(w, e.Metadata)
		return &Packet{ID: proto.CBSpawnMob, Payload: w.Bytes()}
	case world.KindPainting:
		w.VarInt(eid)
		w.UUID(e.UUID)
		w.String(e.PaintingTitle)
		w.Position(e.PaintingX, e.PaintingY, e.PaintingZ)
		w.Int8(int8(e.PaintingDirection))
		return &Packet{ID: proto.CBSpawnPainting, Payload: w.Bytes()}
	case world.KindPlayer:
		w.VarInt(eid)
		w.UUID(e.UUID)
		w.Float64(e.Position.X)
		w.Float64(e.Position.Y)
		w.Float64(e.Position.Z)
		w.Byte(angleByte(e.Look.Yaw))
		w.Byte(angleByte(e.Look.Pitch))
		writeMetadata(w, e.Metadata)
		return &Packet{ID: proto.CBSpawnPlayer, Payload: w.Bytes()}
	}
	return nil
}

func angleByte(deg float32) byte { return byte(int32(deg/(360.0/256.0)) & 0xFF) }

func encodeMetadataPacket(eid int32, md map[int32]world.MetadataEntry) []byte {
	w := codec.NewWriter()
	w.VarInt(eid)
	writeMetadata(w, md)
	return w.Bytes()
}

func writeMetadata(w *codec.Writer, md map[int32]world.MetadataEntry) {
	indices := make([]int32, 0, len(md))
	for idx := range md {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	for _, idx := range indices {
		entry := md[idx]
		w.Byte(byte(idx))
		w.VarInt(entry.Type)
		writeMetadataValue(w, entry.Type, entry.Value)
	}
	w.Byte(0xFF)
}

func writeMetadataValue(w *codec.Writer, typ int32, value interface{}) {
	switch typ {
	case 0:
		w.Int8(value.(int8))
	case 1:
		w.VarInt(value.(int32))
	case 2:
		w.Float32(value.(float32))
	case 3:
		w.String(value.(string))
	case 4:
		c := value.(chat.Component)
		s, _ := chat.MarshalJSONString(c)
		w.String(s)
	case 5:
		if value == nil {
			w.Bool(false)
			return
		}
		c := value.(chat.Component)
		w.Bool(true)
		s, _ := chat.MarshalJSONString(c)
		w.String(s)
	case 6:
		w.Slot(value.(codec.Slot))
	case 7:
		w.Bool(value.(bool))
	case 8:
		v := value.([3]float32)
		w.Float32(v[0])
		w.Float32(v[1])
		w.Float32(v[2])
	case 9:
		v := value.([3]int32)
		w.Position(v[0], v[1], v[2])
	case 10:
		if value == nil {
			w.Bool(false)
			return
		}
		v := value.([3]int32)
		w.Bool(true)
		w.Position(v[0], v[1], v[2])
	case 11:
		w.VarInt(value.(int32))
	case 12:
		if value == nil {
			w.Bool(false)
			return
		}
		w.Bool(true)
		w.UUID(value.([16]byte))
	case 13:
		w.VarInt(value.(int32))
	case 14:
		w.NBT(value.(nbt.Tag))
	case 15:
		w.VarInt(value.(int32))
	}
}

func encodeProperties(eid int32, props []world.EntityProperty) []byte {
	w := codec.NewWriter()
	w.VarInt(eid)
	w.Int32(int32(len(props)))
	for _, p := range props {
		w.String(p.Key)
		w.Float64(p.Value)
		w.VarInt(int32(len(p.Modifiers)))
		for _, mod := range p.Modifiers {
			w.UUID(mod.UUID)
			w.Float64(mod.Amount)
			w.Int8(mod.Operation)
		}
	}
	return w.Bytes()
}

func encodeEquipment(eid, slot int32, item world.Item) []byte {
	w := codec.NewWriter()
	w.VarInt(eid)
	w.VarInt(slot)
	w.Slot(codec.Slot{ID: item.ID, Count: item.Count, Damage: item.Damage, Tag: item.Tag})
	return w.Bytes()
}

func encodeCamera(cameraID int32) []byte {
	w := codec.NewWriter()
	w.VarInt(cameraID)
	return w.Bytes()
}

func encodeSetPassengers(vehicleEid int32, passengers map[int32]struct{}, selfEid, clientEid int32) []byte {
	w := codec.NewWriter()
	w.VarInt(vehicleEid)
	w.VarInt(int32(len(passengers)))
	for _, eid := range sortedPassengerIDs(passengers) {
		w.VarInt(remapEid(eid, selfEid, clientEid))
	}
	return w.Bytes()
}

func encodeAttachEntity(attachedEid, holdingEid int32) []byte {
	w := codec.NewWriter()
	w.Int32(attachedEid)
	w.Int32(holdingEid)
	return w.Bytes()
}
