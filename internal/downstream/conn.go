package downstream

import (
	"net"

	"github.com/janispritzkau/2b2proxy/internal/codec"
)

// Conn is one accepted client socket, framed the same way the upstream side
// is (§4.1, §4.6). It satisfies bridge.Downstream and bridge.DownstreamReader
// directly.
type Conn struct {
	net.Conn
	reader *codec.FrameReader
	writer *codec.FrameWriter
}

func newConn(c net.Conn) *Conn {
	return &Conn{Conn: c, reader: codec.NewFrameReader(c), writer: codec.NewFrameWriter(c)}
}

func (c *Conn) ReadFrame() (codec.Frame, error) { return c.reader.ReadFrame() }

func (c *Conn) WriteFrame(id int32, payload []byte) error {
	return c.writer.WriteFrame(id, payload)
}

func (c *Conn) enableEncryption(secret []byte) error {
	dec, err := codec.NewDecryptReader(c.Conn, secret)
	if err != nil {
		return err
	}
	enc, err := codec.NewEncryptWriter(c.Conn, secret)
	if err != nil {
		return err
	}
	c.reader.SetReader(dec)
	c.writer.SetWriter(enc)
	return nil
}

func (c *Conn) enableCompression(threshold, level int) {
	c.reader.SetCompression(threshold)
	c.writer.SetCompression(threshold, level)
}
