// Package world implements the WorldMirror (§3, §4.3): a structured
// snapshot of everything the proxy needs to later reconstitute a session,
// kept current by applying every packet the UpstreamClient receives.
package world

import (
	"github.com/janispritzkau/2b2proxy/internal/chat"
	"github.com/janispritzkau/2b2proxy/internal/nbt"
)

// Vec3 is a player/entity position.
type Vec3 struct{ X, Y, Z float64 }

// Look is a yaw/pitch pair.
type Look struct{ Yaw, Pitch float32 }

// PlayerState is the local player's position/orientation (§3 WorldMirror
// substructure `player`).
type PlayerState struct {
	Vec3
	Look
}

// Item is a single inventory/equipment slot payload (§3). ID == -1 encodes
// absence.
type Item struct {
	ID     int16
	Count  int8
	Damage int16
	Tag    nbt.Tag
}

// Empty reports whether this Item encodes an empty slot.
func (i Item) Empty() bool { return i.ID == -1 }

// EmptyItem is the canonical absent-item value.
var EmptyItem = Item{ID: -1, Tag: nbt.Nil}

// AttributeModifier is one modifier entry on an EntityProperty.
type AttributeModifier struct {
	UUID      [16]byte
	Amount    float64
	Operation int8
}

// EntityProperty is one attribute-key -> {value, modifiers[]} pair (§3).
type EntityProperty struct {
	Key       string
	Value     float64
	Modifiers []AttributeModifier
}

// EntityKind tags the variant of an Entity (§3).
type EntityKind int

const (
	KindObject EntityKind = iota
	KindOrb
	KindGlobal
	KindMob
	KindPainting
	KindPlayer
)

// Entity is the tagged-variant entity representation (§3). Fields not
// applicable to Kind are left zero-valued; Kind determines which fields a
// caller should read.
type Entity struct {
	EID  int32
	Kind EntityKind

	UUID [16]byte // object, mob, painting, player

	// object
	ObjectType int8
	ObjectData int32
	Velocity   Vec3

	Position Vec3
	Look     Look

	// mob
	MobType byte
	HeadPitch int8
	HeadYaw   int8 // from EntityHeadLook, independent of HeadPitch

	// painting
	PaintingTitle     string
	PaintingX, PaintingY, PaintingZ int32
	PaintingDirection int32

	// orb
	OrbCount int16

	// shared optional extras
	Properties []EntityProperty
	Equipment  map[int32]Item // slot -> item
	Passengers map[int32]struct{}
	AttachedEid int32 // 0 means none; use HasAttached
	HasAttached bool

	Metadata map[int32]MetadataEntry
}

// MetadataEntry is one raw decoded entity-metadata field (§4.5 CBEntityMetadata
// rewrite needs to inspect index/type/value).
type MetadataEntry struct {
	Type  int32
	Value interface{}
}

// Team is a scoreboard team (§3).
type Team struct {
	Name             string
	DisplayName      string
	Prefix, Suffix   string
	FriendlyFire     int8
	NameTagVisibility string
	CollisionRule    string
	Color            int8
	Members          map[string]struct{}
}

// BossBar tracks one boss-bar entity (§3, §4.3 0x0C handler).
type BossBar struct {
	UUID   [16]byte
	Title  chat.Component
	Health float32
	Color  int32
	Style  int32
	Flags  byte
}

// MapIcon is one icon drawn on a map.
type MapIcon struct {
	Direction byte // high nibble direction, low nibble type in wire form
	Type      byte
	X, Z      int8
}

// MapData is a cached map item's full render state (§3, §4.4 step 6).
type MapData struct {
	ID               int32
	Scale            byte
	TrackingPosition bool
	Icons            []MapIcon
	Columns, Rows    byte
	X, Z             byte
	Data             []byte // Columns*Rows bytes, empty if no columns
}

// ChunkSection is one 16x16x16 slab (§3).
type ChunkSection struct {
	Blocks     [4096]uint16
	BlockLight [2048]byte
	SkyLight   *[2048]byte // present iff dimension == 0
}

// Chunk is one loaded column (§3).
type Chunk struct {
	X, Z          int32
	Sections      [16]*ChunkSection
	Biomes        [256]byte
	BlockEntities []nbt.Tag
}

// PlayerListItem is one tab-list entry (§3).
type PlayerListItem struct {
	UUID        [16]byte
	Name        string
	Properties  []GameProfileProperty
	Gamemode    int32
	Ping        int32
	DisplayName *chat.Component
}

// GameProfileProperty is a single signed game-profile property (textures,
// etc.), carried verbatim through the replay (§4.4 step 3).
type GameProfileProperty struct {
	Name      string
	Value     string
	Signature *string
}

// Queue is re-exported for convenience; see chat.Queue.
type Queue = chat.Queue
