package world

import (
	"github.com/janispritzkau/2b2proxy/internal/codec"
	"github.com/janispritzkau/2b2proxy/internal/nbt"
)

// bitsPerBlockDirect is the fixed palette-less bits-per-block the
// ReplayEngine re-encodes chunks with (§4.4 step 12), reusing the mirror's
// block/light buffers directly as global-palette ids.
const bitsPerBlockDirect = 13

// packedLongs packs n values (each < 1<<bitsPerBlock) into the long array
// layout used by protocol revisions up to and including this one: a value
// may straddle two adjacent 64-bit longs (no per-long padding). The
// source's JS implementation splits each 64-bit long into two 32-bit halves
// to perform this arithmetic because JS bitwise operators are 32-bit; Go's
// native 64-bit integers make that split unnecessary; the packed bytes
// produced are identical either way.
func packedLongs(values []uint16, bitsPerBlock int) []int64 {
	totalBits := len(values) * bitsPerBlock
	numLongs := (totalBits + 63) / 64
	longs := make([]int64, numLongs)
	mask := uint64(1)<<uint(bitsPerBlock) - 1
	for i, v := range values {
		bitOffset := i * bitsPerBlock
		startLong := bitOffset / 64
		startBit := uint(bitOffset % 64)
		val := uint64(v) & mask
		longs[startLong] |= int64(val << startBit)
		if startBit+uint(bitsPerBlock) > 64 {
			longs[startLong+1] |= int64(val >> (64 - startBit))
		}
	}
	return longs
}

// unpackLongs is the inverse of packedLongs.
func unpackLongs(longs []int64, count, bitsPerBlock int) []uint16 {
	values := make([]uint16, count)
	mask := uint64(1)<<uint(bitsPerBlock) - 1
	for i := 0; i < count; i++ {
		bitOffset := i * bitsPerBlock
		startLong := bitOffset / 64
		startBit := uint(bitOffset % 64)
		lo := uint64(longs[startLong]) >> startBit
		var v uint64
		if startBit+uint(bitsPerBlock) > 64 && startLong+1 < len(longs) {
			hi := uint64(longs[startLong+1]) << (64 - startBit)
			v = (lo | hi) & mask
		} else {
			v = lo & mask
		}
		values[i] = uint16(v)
	}
	return values
}

// DecodeChunkColumn decodes one ChunkData packet's payload (§4.3 0x20) into
// per-section block/light/biome data, merging into or replacing existing
// as fullChunk dictates.
func DecodeChunkColumn(r *codec.Reader, dimension int32) (x, z int32, fullChunk bool, sections [16]*ChunkSection, biomes [256]byte, blockEntities []nbt.Tag) {
	x = r.Int32()
	z = r.Int32()
	fullChunk = r.Bool()
	primaryBitMask := r.VarInt()
	_ = r.VarInt() // declared payload size in bytes, redundant with the typed reads below

	for s := 0; s < 16; s++ {
		if primaryBitMask&(1<<uint(s)) == 0 {
			continue
		}
		bitsPerBlock := int(r.Byte())
		var palette []uint16
		if bitsPerBlock <= 8 {
			if bitsPerBlock < 4 {
				bitsPerBlock = 4
			}
			paletteLen := int(r.VarInt())
			palette = make([]uint16, paletteLen)
			for i := range palette {
				palette[i] = uint16(r.VarInt())
			}
		}
		longCount := int(r.VarInt())
		longs := make([]int64, longCount)
		for i := range longs {
			longs[i] = r.Int64()
		}
		indices := unpackLongs(longs, 4096, bitsPerBlock)

		section := &ChunkSection{}
		for i, idx := range indices {
			if palette != nil {
				if int(idx) < len(palette) {
					section.Blocks[i] = palette[idx]
				}
			} else {
				section.Blocks[i] = idx
			}
		}
		copy(section.BlockLight[:], r.Bytes(2048))
		if dimension == 0 {
			var sky [2048]byte
			copy(sky[:], r.Bytes(2048))
			section.SkyLight = &sky
		}
		sections[s] = section
	}

	if fullChunk {
		copy(biomes[:], r.Bytes(256))
	}

	numBlockEntities := int(r.VarInt())
	blockEntities = make([]nbt.Tag, 0, numBlockEntities)
	for i := 0; i < numBlockEntities; i++ {
		blockEntities = append(blockEntities, r.NBT())
	}
	return
}

// EncodeChunkColumn re-encodes a cached Chunk as a full-chunk ChunkData
// packet using the fixed direct bits-per-block the ReplayEngine specifies
// (§4.4 step 12): no palette, reusing the mirror's own block ids as global
// ids.
func EncodeChunkColumn(w *codec.Writer, c *Chunk, dimension int32) {
	w.Int32(c.X)
	w.Int32(c.Z)
	w.Bool(true) // full chunk

	var mask int32
	for s, sec := range c.Sections {
		if sec != nil {
			mask |= 1 << uint(s)
		}
	}
	w.VarInt(mask)

	var body codec.Writer
	bw := &body
	for s := 0; s < 16; s++ {
		sec := c.Sections[s]
		if sec == nil {
			continue
		}
		bw.Byte(bitsPerBlockDirect)
		longs := packedLongs(sec.Blocks[:], bitsPerBlockDirect)
		bw.VarInt(int32(len(longs)))
		for _, l := range longs {
			bw.Int64(l)
		}
		bw.RawBytes(sec.BlockLight[:])
		if dimension == 0 {
			if sec.SkyLight != nil {
				bw.RawBytes(sec.SkyLight[:])
			} else {
				var empty [2048]byte
				bw.RawBytes(empty[:])
			}
		}
	}
	bw.RawBytes(c.Biomes[:])

	w.VarInt(int32(len(bw.Bytes())))
	w.RawBytes(bw.Bytes())

	w.VarInt(int32(len(c.BlockEntities)))
	for _, be := range c.BlockEntities {
		w.NBT(be)
	}
}
