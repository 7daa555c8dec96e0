package world

import (
	"sort"

	"github.com/janispritzkau/2b2proxy/internal/chat"
	"github.com/janispritzkau/2b2proxy/internal/codec"
	"github.com/janispritzkau/2b2proxy/internal/nbt"
)

// DecodeMetadataForRewrite exposes the 0xFF-terminated entity-metadata
// decode to callers outside this package (the bridge's 0x3C firework
// rewrite needs to inspect and re-encode a metadata stream without
// otherwise mutating the Mirror).
func DecodeMetadataForRewrite(r *codec.Reader) map[int32]MetadataEntry {
	return decodeMetadata(r)
}

// EncodeMetadataForRewrite writes md back out in the same 0xFF-terminated
// form decodeMetadata reads, iterating indices in ascending order so the
// rewritten packet's byte layout is reproducible.
func EncodeMetadataForRewrite(w *codec.Writer, md map[int32]MetadataEntry) {
	indices := make([]int32, 0, len(md))
	for idx := range md {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	for _, idx := range indices {
		entry := md[idx]
		w.Byte(byte(idx))
		w.VarInt(entry.Type)
		encodeMetadataValue(w, entry.Type, entry.Value)
	}
	w.Byte(0xFF)
}

func encodeMetadataValue(w *codec.Writer, typ int32, value interface{}) {
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
		s, _ := chat.MarshalJSONString(value.(chat.Component))
		w.String(s)
	case 5:
		if value == nil {
			w.Bool(false)
			return
		}
		w.Bool(true)
		s, _ := chat.MarshalJSONString(value.(chat.Component))
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
		w.Bool(true)
		v := value.([3]int32)
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
