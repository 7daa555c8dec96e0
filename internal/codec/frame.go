package codec

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// ErrPacketTooLarge guards against a hostile or corrupt length prefix.
var ErrPacketTooLarge = errors.New("codec: packet length exceeds maximum")

// MaxPacketLength is the largest frame this proxy will allocate for, well
// above anything protocol 340 legitimately sends.
const MaxPacketLength = 2 * 1024 * 1024

// Frame is one decoded packet: its numeric id and the remaining payload
// bytes (id already stripped), ready for Reader.
type Frame struct {
	ID      int32
	Payload []byte
}

// FrameReader decodes length-prefixed, optionally-compressed, optionally-
// encrypted packet frames from a byte stream (§4.1).
type FrameReader struct {
	r           *bufio.Reader
	compression int // -1 disables compression framing
}

// NewFrameReader wraps r; compression starts disabled (threshold -1).
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r), compression: -1}
}

// SetCompression installs the compression threshold (§4.1); pass -1 to
// disable (frames carry no "uncompressed length" prefix).
func (f *FrameReader) SetCompression(threshold int) { f.compression = threshold }

// SetReader swaps the underlying reader, used when enabling the AES/CFB8
// stream cipher mid-connection (§4.1).
func (f *FrameReader) SetReader(r io.Reader) { f.r = bufio.NewReader(r) }

// ReadFrame reads one full frame off the wire.
func (f *FrameReader) ReadFrame() (Frame, error) {
	length, err := ReadVarInt(f.r)
	if err != nil {
		return Frame{}, err
	}
	if length < 0 || length > MaxPacketLength {
		return Frame{}, ErrPacketTooLarge
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		return Frame{}, err
	}

	payload := buf
	if f.compression >= 0 {
		br := bytes.NewReader(buf)
		uncompressedLen, err := ReadVarInt(br)
		if err != nil {
			return Frame{}, err
		}
		rest := buf[len(buf)-br.Len():]
		if uncompressedLen == 0 {
			payload = rest
		} else {
			zr, err := zlib.NewReader(bytes.NewReader(rest))
			if err != nil {
				return Frame{}, fmt.Errorf("codec: zlib: %w", err)
			}
			defer zr.Close()
			out := make([]byte, uncompressedLen)
			if _, err := io.ReadFull(zr, out); err != nil {
				return Frame{}, fmt.Errorf("codec: zlib: %w", err)
			}
			payload = out
		}
	}

	pr := bytes.NewReader(payload)
	id, err := ReadVarInt(pr)
	if err != nil {
		return Frame{}, err
	}
	return Frame{ID: id, Payload: payload[len(payload)-pr.Len():]}, nil
}

// FrameWriter encodes and optionally compresses/encrypts outgoing frames.
type FrameWriter struct {
	w           io.Writer
	compression int // -1 disables
	level       int
}

// NewFrameWriter wraps w; compression starts disabled.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w, compression: -1, level: zlib.DefaultCompression}
}

// SetCompression installs the compression threshold and zlib level.
func (f *FrameWriter) SetCompression(threshold, level int) {
	f.compression = threshold
	f.level = level
}

// SetWriter swaps the underlying writer (encryption enablement).
func (f *FrameWriter) SetWriter(w io.Writer) { f.w = w }

// WriteFrame encodes id+payload as one full wire frame.
func (f *FrameWriter) WriteFrame(id int32, payload []byte) error {
	var body bytes.Buffer
	_ = WriteVarInt(&body, id)
	body.Write(payload)

	var out []byte
	if f.compression < 0 {
		out = body.Bytes()
	} else if body.Len() < f.compression {
		var framed bytes.Buffer
		_ = WriteVarInt(&framed, 0)
		framed.Write(body.Bytes())
		out = framed.Bytes()
	} else {
		var compressed bytes.Buffer
		zw, err := zlib.NewWriterLevel(&compressed, f.level)
		if err != nil {
			return err
		}
		if _, err := zw.Write(body.Bytes()); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		var framed bytes.Buffer
		_ = WriteVarInt(&framed, int32(body.Len()))
		framed.Write(compressed.Bytes())
		out = framed.Bytes()
	}

	var lenPrefix [5]byte
	n := PutVarInt(lenPrefix[:], int32(len(out)))
	if _, err := f.w.Write(lenPrefix[:n]); err != nil {
		return err
	}
	_, err := f.w.Write(out)
	return err
}
