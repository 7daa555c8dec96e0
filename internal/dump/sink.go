// Package dump implements the optional packet-dump sink (§6): a gzip
// stream of length-prefixed, direction-tagged, timestamped raw packet
// buffers, written when a profile's Settings.EnablePacketDumps is set.
package dump

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/janispritzkau/2b2proxy/internal/codec"
)

// Direction tags which side of the session a dumped packet travelled.
type Direction byte

const (
	Inbound  Direction = 0
	Outbound Direction = 1
)

// KeepAliveID is excluded from every dump (§6).
const KeepAliveID int32 = 0x1F

// Sink writes dump records to a gzip-compressed file. Safe for concurrent
// Write calls from a session's read and write sides.
type Sink struct {
	mu sync.Mutex
	f  *os.File
	gz *gzip.Writer
}

// Open creates dumps/<ISO-8601>.<profile-id>.dump.gz under dir (§6's file
// naming convention), truncating any stale file of the same name.
func Open(dir string, profileID uuid.UUID, now time.Time) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s.%s.dump.gz", now.UTC().Format(time.RFC3339), profileID.String())
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewWriterLevel(f, 4) // level 4, §6
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Sink{f: f, gz: gz}, nil
}

// Write appends one record: <u32 BE length><u8 direction><f64 BE unix-millis><length bytes packet buffer>,
// where the packet buffer is the raw, still-id-prefixed packet (its leading
// VarInt id followed by payload) and length is that buffer's byte count
// (§1, §6). id is also used, independent of the prefix, to apply the
// keep-alive exclusion.
func (s *Sink) Write(dir Direction, id int32, payload []byte, ts time.Time) error {
	if id == KeepAliveID {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var idBuf bytes.Buffer
	if err := codec.WriteVarInt(&idBuf, id); err != nil {
		return err
	}
	packetLen := idBuf.Len() + len(payload)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(packetLen))

	var header [1 + 8]byte
	header[0] = byte(dir)
	binary.BigEndian.PutUint64(header[1:], math.Float64bits(float64(ts.UnixMilli())))

	if _, err := s.gz.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := s.gz.Write(header[:]); err != nil {
		return err
	}
	if _, err := s.gz.Write(idBuf.Bytes()); err != nil {
		return err
	}
	_, err := s.gz.Write(payload)
	return err
}

// Close flushes and closes the underlying gzip stream and file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gz.Close(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}

var _ io.Closer = (*Sink)(nil)
