// Package codec implements the framed, length-prefixed wire format of
// protocol revision 340 (§4.1): VarInts, fixed-width big-endian scalars,
// strings, the packed block-position triple, optional zlib compression,
// and the post-login AES/CFB8 stream cipher.
package codec

import (
	"errors"
	"io"
)

// ErrVarIntTooBig is returned when a VarInt would require a 6th byte.
var ErrVarIntTooBig = errors.New("codec: VarInt is too big")

// ErrVarLongTooBig is returned when a VarLong would require an 11th byte.
var ErrVarLongTooBig = errors.New("codec: VarLong is too big")

// ReadVarInt reads an unsigned 7-bit-group, MSB-continuation VarInt,
// rejecting a 6th continuation byte.
func ReadVarInt(r io.ByteReader) (int32, error) {
	var result int32
	for numRead := 0; ; numRead++ {
		if numRead >= 5 {
			return 0, ErrVarIntTooBig
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int32(b&0x7F) << (7 * numRead)
		if b&0x80 == 0 {
			return result, nil
		}
	}
}

// VarIntSize returns the number of bytes WriteVarInt would emit for value.
func VarIntSize(value int32) int {
	uval := uint32(value)
	size := 1
	for uval&^0x7F != 0 {
		uval >>= 7
		size++
	}
	return size
}

// PutVarInt encodes value into buf (which must have len >= 5) and returns
// the number of bytes written.
func PutVarInt(buf []byte, value int32) int {
	uval := uint32(value)
	n := 0
	for {
		if uval&^0x7F == 0 {
			buf[n] = byte(uval)
			return n + 1
		}
		buf[n] = byte(uval&0x7F) | 0x80
		n++
		uval >>= 7
	}
}

// WriteVarInt writes value to w.
func WriteVarInt(w io.Writer, value int32) error {
	var buf [5]byte
	n := PutVarInt(buf[:], value)
	_, err := w.Write(buf[:n])
	return err
}

// ReadVarLong reads a VarInt-style encoded int64, up to 10 bytes.
func ReadVarLong(r io.ByteReader) (int64, error) {
	var result int64
	for numRead := 0; ; numRead++ {
		if numRead >= 10 {
			return 0, ErrVarLongTooBig
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7F) << (7 * numRead)
		if b&0x80 == 0 {
			return result, nil
		}
	}
}

// PutVarLong encodes value into buf (len >= 10) and returns bytes written.
func PutVarLong(buf []byte, value int64) int {
	uval := uint64(value)
	n := 0
	for {
		if uval&^0x7F == 0 {
			buf[n] = byte(uval)
			return n + 1
		}
		buf[n] = byte(uval&0x7F) | 0x80
		n++
		uval >>= 7
	}
}

// WriteVarLong writes value to w.
func WriteVarLong(w io.Writer, value int64) error {
	var buf [10]byte
	n := PutVarLong(buf[:], value)
	_, err := w.Write(buf[:n])
	return err
}
