package codec

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/janispritzkau/2b2proxy/internal/nbt"
	"golang.org/x/text/width"
)

// MaxStringLength is the protocol's cap on a VarInt-prefixed string's byte
// length (32767 UTF-16 code units worst case, §4.1/ChickenIQ-VibeShitCraft
// parity).
const MaxStringLength = 32767 * 4

// MaxServerBoundChatLength is the serverbound chat message cap (§6), clipped
// by display width rather than byte count.
const MaxServerBoundChatLength = 256

// Reader provides typed, schema-driven field access over a packet's payload
// bytes. It replaces the source's "packet.offset += N" idiom (§9): every
// read call names the field's type and width explicitly.
type Reader struct {
	r   *bytes.Reader
	err error
}

// NewReader wraps payload (the packet bytes with the leading id VarInt
// already consumed) for typed field reads.
func NewReader(payload []byte) *Reader {
	return &Reader{r: bytes.NewReader(payload)}
}

// Err returns the first error encountered by any Read call.
func (p *Reader) Err() error { return p.err }

// Remaining returns the yet-unread tail of the payload, verbatim.
func (p *Reader) Remaining() []byte {
	buf := make([]byte, p.r.Len())
	_, _ = io.ReadFull(p.r, buf)
	return buf
}

func (p *Reader) fail(err error) {
	if p.err == nil && err != nil {
		p.err = err
	}
}

func (p *Reader) VarInt() int32 {
	if p.err != nil {
		return 0
	}
	v, err := ReadVarInt(p.r)
	p.fail(err)
	return v
}

func (p *Reader) VarLong() int64 {
	if p.err != nil {
		return 0
	}
	v, err := ReadVarLong(p.r)
	p.fail(err)
	return v
}

func (p *Reader) Bool() bool {
	return p.Byte() != 0
}

func (p *Reader) Byte() byte {
	if p.err != nil {
		return 0
	}
	b, err := p.r.ReadByte()
	p.fail(err)
	return b
}

func (p *Reader) Int8() int8 { return int8(p.Byte()) }

func (p *Reader) Int16() int16 {
	var buf [2]byte
	p.readFull(buf[:])
	return int16(uint16(buf[0])<<8 | uint16(buf[1]))
}

func (p *Reader) Uint16() uint16 { return uint16(p.Int16()) }

func (p *Reader) Int32() int32 {
	var buf [4]byte
	p.readFull(buf[:])
	return int32(uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]))
}

func (p *Reader) Int64() int64 {
	hi := uint64(uint32(p.Int32()))
	lo := uint64(uint32(p.Int32()))
	return int64(hi<<32 | lo)
}

func (p *Reader) Float32() float32 {
	return math.Float32frombits(uint32(p.Int32()))
}

func (p *Reader) Float64() float64 {
	return math.Float64frombits(uint64(p.Int64()))
}

func (p *Reader) readFull(buf []byte) {
	if p.err != nil {
		return
	}
	_, err := io.ReadFull(p.r, buf)
	p.fail(err)
}

func (p *Reader) Bytes(n int) []byte {
	buf := make([]byte, n)
	p.readFull(buf)
	return buf
}

func (p *Reader) String() string {
	n := int(p.VarInt())
	if p.err != nil {
		return ""
	}
	if n < 0 || n > MaxStringLength {
		p.fail(fmt.Errorf("codec: string length out of range: %d", n))
		return ""
	}
	buf := p.Bytes(n)
	return string(buf)
}

// UUID reads a 16-byte UUID.
func (p *Reader) UUID() [16]byte {
	var u [16]byte
	copy(u[:], p.Bytes(16))
	return u
}

// Position reads the packed block-position triple (§4.1), sign-extending
// x/y/z on read.
func (p *Reader) Position() (x, y, z int32) {
	v := p.Int64()
	x = int32(v >> 38)
	y = int32(v << 26 >> 52)
	z = int32(v << 38 >> 38)
	return
}

// Slot reads an item slot structure (§3 Item): id == -1 means absent, and
// no further bytes are read for an absent slot.
type Slot struct {
	ID     int16
	Count  int8
	Damage int16
	Tag    nbt.Tag
}

func (p *Reader) Slot() Slot {
	id := p.Int16()
	if id == -1 {
		return Slot{ID: -1, Tag: nbt.Nil}
	}
	count := p.Int8()
	damage := p.Int16()
	tag := p.NBT()
	return Slot{ID: id, Count: count, Damage: damage, Tag: tag}
}

// NBT reads one fully-named top-level NBT tag (a lone TagEnd byte reads as
// the absent nbt.Nil value).
func (p *Reader) NBT() nbt.Tag {
	if p.err != nil {
		return nbt.Nil
	}
	t, err := nbt.Read(p.r)
	p.fail(err)
	return t
}

// Writer builds a packet payload field by field, the write-side mirror
// of Reader.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) VarInt(v int32)  { _ = WriteVarInt(&w.buf, v) }
func (w *Writer) VarLong(v int64) { _ = WriteVarLong(&w.buf, v) }
func (w *Writer) Bool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}
func (w *Writer) Byte(v byte)   { w.buf.WriteByte(v) }
func (w *Writer) Int8(v int8)   { w.buf.WriteByte(byte(v)) }
func (w *Writer) Int16(v int16) { w.buf.Write([]byte{byte(v >> 8), byte(v)}) }
func (w *Writer) Uint16(v uint16) { w.Int16(int16(v)) }
func (w *Writer) Int32(v int32) {
	w.buf.Write([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
func (w *Writer) Int64(v int64) {
	w.Int32(int32(v >> 32))
	w.Int32(int32(v))
}
func (w *Writer) Float32(v float32) { w.Int32(int32(math.Float32bits(v))) }
func (w *Writer) Float64(v float64) { w.Int64(int64(math.Float64bits(v))) }
func (w *Writer) RawBytes(b []byte) { w.buf.Write(b) }

// String writes a VarInt-length-prefixed UTF-8 string verbatim. It does not
// clip; serverbound chat text is passed through ClipChatMessage first.
func (w *Writer) String(s string) {
	w.VarInt(int32(len(s)))
	w.buf.WriteString(s)
}

// ClipChatMessage clips s to MaxServerBoundChatLength display-width cells,
// returning a valid UTF-8 prefix. Fullwidth/CJK glyphs count as two cells.
func ClipChatMessage(s string) string {
	// A rune never occupies more cells than its UTF-8 byte length, so a
	// string this short in bytes is already within the cell limit.
	if len(s) <= MaxServerBoundChatLength {
		return s
	}
	var b []rune
	cells := 0
	for _, r := range s {
		w := 1
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			w = 2
		}
		if cells+w > MaxServerBoundChatLength {
			break
		}
		cells += w
		b = append(b, r)
	}
	return string(b)
}

func (w *Writer) UUID(u [16]byte) { w.buf.Write(u[:]) }

func (w *Writer) Position(x, y, z int32) {
	v := (int64(x&0x3FFFFFF) << 38) | (int64(y&0xFFF) << 26) | int64(z&0x3FFFFFF)
	w.Int64(v)
}

func (w *Writer) Slot(s Slot) {
	w.Int16(s.ID)
	if s.ID == -1 {
		return
	}
	w.Int8(s.Count)
	w.Int16(s.Damage)
	w.NBT(s.Tag)
}

func (w *Writer) NBT(t nbt.Tag) {
	_ = nbt.Write(&w.buf, t)
}
