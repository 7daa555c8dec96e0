// Package nbt implements the binary NBT (Named Binary Tag) format used for
// compound payloads embedded in item slots, block entities, and entity
// metadata (§4.1).
package nbt

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Tag type ids, per the binary NBT specification.
const (
	TagEnd byte = iota
	TagByte
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagByteArray
	TagString
	TagList
	TagCompound
	TagIntArray
	TagLongArray
)

// Tag is a single NBT value. Compound and List are represented as Go maps
// and slices of Tag; scalar payloads use the narrowest matching Go type.
type Tag struct {
	Type byte
	// Name is only meaningful for the outermost tag of a compound's entries;
	// nested list elements carry no name.
	Name string

	Byte      int8
	Short     int16
	Int       int32
	Long      int64
	Float     float32
	Double    float64
	ByteArray []byte
	Str       string
	List      []Tag
	ListElem  byte // element type, valid when Type == TagList
	Compound  map[string]Tag
	IntArray  []int32
	LongArray []int64
}

// Null reports whether this Tag is the TagEnd sentinel, used to represent
// an absent NBT payload (e.g. an Item with no tag, §3 Item.tag == null).
func (t Tag) Null() bool { return t.Type == TagEnd }

// Nil is the canonical absent-NBT value.
var Nil = Tag{Type: TagEnd}

// Read decodes a single fully-named top-level tag (as found after an Item's
// non-(-1) id, or as a block entity payload): tag type, name, payload.
func Read(r io.Reader) (Tag, error) {
	typ, err := readByte(r)
	if err != nil {
		return Tag{}, err
	}
	if typ == TagEnd {
		return Tag{Type: TagEnd}, nil
	}
	name, err := readString(r)
	if err != nil {
		return Tag{}, err
	}
	payload, err := readPayload(r, typ)
	if err != nil {
		return Tag{}, err
	}
	payload.Type = typ
	payload.Name = name
	return payload, nil
}

// Write encodes a fully-named top-level tag. Writing Nil writes a single
// TagEnd byte.
func Write(w io.Writer, t Tag) error {
	if t.Null() {
		_, err := w.Write([]byte{TagEnd})
		return err
	}
	if _, err := w.Write([]byte{t.Type}); err != nil {
		return err
	}
	if err := writeString(w, t.Name); err != nil {
		return err
	}
	return writePayload(w, t)
}

func readPayload(r io.Reader, typ byte) (Tag, error) {
	switch typ {
	case TagByte:
		b, err := readByte(r)
		return Tag{Byte: int8(b)}, err
	case TagShort:
		v, err := readInt16(r)
		return Tag{Short: v}, err
	case TagInt:
		v, err := readInt32(r)
		return Tag{Int: v}, err
	case TagLong:
		v, err := readInt64(r)
		return Tag{Long: v}, err
	case TagFloat:
		v, err := readInt32(r)
		return Tag{Float: math.Float32frombits(uint32(v))}, err
	case TagDouble:
		v, err := readInt64(r)
		return Tag{Double: math.Float64frombits(uint64(v))}, err
	case TagByteArray:
		n, err := readInt32(r)
		if err != nil {
			return Tag{}, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Tag{}, err
		}
		return Tag{ByteArray: buf}, nil
	case TagString:
		s, err := readString(r)
		return Tag{Str: s}, err
	case TagList:
		elemType, err := readByte(r)
		if err != nil {
			return Tag{}, err
		}
		n, err := readInt32(r)
		if err != nil {
			return Tag{}, err
		}
		list := make([]Tag, 0, max32(n))
		for i := int32(0); i < n; i++ {
			elem, err := readPayload(r, elemType)
			if err != nil {
				return Tag{}, err
			}
			elem.Type = elemType
			list = append(list, elem)
		}
		return Tag{List: list, ListElem: elemType}, nil
	case TagCompound:
		m := map[string]Tag{}
		for {
			childType, err := readByte(r)
			if err != nil {
				return Tag{}, err
			}
			if childType == TagEnd {
				break
			}
			name, err := readString(r)
			if err != nil {
				return Tag{}, err
			}
			child, err := readPayload(r, childType)
			if err != nil {
				return Tag{}, err
			}
			child.Type = childType
			child.Name = name
			m[name] = child
		}
		return Tag{Compound: m}, nil
	case TagIntArray:
		n, err := readInt32(r)
		if err != nil {
			return Tag{}, err
		}
		arr := make([]int32, n)
		for i := range arr {
			arr[i], err = readInt32(r)
			if err != nil {
				return Tag{}, err
			}
		}
		return Tag{IntArray: arr}, nil
	case TagLongArray:
		n, err := readInt32(r)
		if err != nil {
			return Tag{}, err
		}
		arr := make([]int64, n)
		for i := range arr {
			arr[i], err = readInt64(r)
			if err != nil {
				return Tag{}, err
			}
		}
		return Tag{LongArray: arr}, nil
	default:
		return Tag{}, fmt.Errorf("nbt: unknown tag type %d", typ)
	}
}

func writePayload(w io.Writer, t Tag) error {
	switch t.Type {
	case TagByte:
		return writeByte(w, byte(t.Byte))
	case TagShort:
		return writeInt16(w, t.Short)
	case TagInt:
		return writeInt32(w, t.Int)
	case TagLong:
		return writeInt64(w, t.Long)
	case TagFloat:
		return writeInt32(w, int32(math.Float32bits(t.Float)))
	case TagDouble:
		return writeInt64(w, int64(math.Float64bits(t.Double)))
	case TagByteArray:
		if err := writeInt32(w, int32(len(t.ByteArray))); err != nil {
			return err
		}
		_, err := w.Write(t.ByteArray)
		return err
	case TagString:
		return writeString(w, t.Str)
	case TagList:
		if err := writeByte(w, t.ListElem); err != nil {
			return err
		}
		if err := writeInt32(w, int32(len(t.List))); err != nil {
			return err
		}
		for _, elem := range t.List {
			elem.Type = t.ListElem
			if err := writePayload(w, elem); err != nil {
				return err
			}
		}
		return nil
	case TagCompound:
		for name, child := range t.Compound {
			child.Name = name
			if _, err := w.Write([]byte{child.Type}); err != nil {
				return err
			}
			if err := writeString(w, name); err != nil {
				return err
			}
			if err := writePayload(w, child); err != nil {
				return err
			}
		}
		_, err := w.Write([]byte{TagEnd})
		return err
	case TagIntArray:
		if err := writeInt32(w, int32(len(t.IntArray))); err != nil {
			return err
		}
		for _, v := range t.IntArray {
			if err := writeInt32(w, v); err != nil {
				return err
			}
		}
		return nil
	case TagLongArray:
		if err := writeInt32(w, int32(len(t.LongArray))); err != nil {
			return err
		}
		for _, v := range t.LongArray {
			if err := writeInt64(w, v); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("nbt: unknown tag type %d", t.Type)
	}
}

func max32(n int32) int32 {
	if n < 0 {
		return 0
	}
	return n
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return buf[0], err
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readInt16(r io.Reader) (int16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(buf[:])), nil
}

func writeInt16(w io.Writer, v int16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(v))
	_, err := w.Write(buf[:])
	return err
}

func readInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

func writeInt32(w io.Writer, v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

func readInt64(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

func writeInt64(w io.Writer, v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readInt16(r)
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("nbt: negative string length")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeString(w io.Writer, s string) error {
	if err := writeInt16(w, int16(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}
