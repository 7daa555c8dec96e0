package codec

import (
	"crypto/aes"
	"crypto/rand"
	"fmt"
	"io"
)

// NewSharedSecret generates a fresh 16-byte shared secret for a login
// encryption handshake (§4.2).
func NewSharedSecret() ([]byte, error) {
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("codec: generating shared secret: %w", err)
	}
	return secret, nil
}

// cfb8Stream implements the legacy "AES/CFB8" convention this protocol
// revision uses for its post-login symmetric cipher (§4.1): each byte is
// encrypted by running the AES block cipher in single-block ECB mode over
// a rolling 16-byte state and XORing the result's first byte with the
// plaintext/ciphertext byte. This has no off-the-shelf Go implementation
// (crypto/cipher's CFB helpers are fixed at the block's own segment size,
// i.e. CFB-128, not CFB-8); it is hand-rolled here the same way
// udisondev-la2go's GameCrypt hand-rolls its own rolling keystream cipher.
type cfb8Stream struct {
	block     interface{ Encrypt(dst, src []byte) }
	shiftReg  [32]byte // 16-byte IV followed by a scratch block
	decrypt   bool
}

func newCFB8(key, iv []byte, decrypt bool) (*cfb8Stream, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	s := &cfb8Stream{block: block, decrypt: decrypt}
	copy(s.shiftReg[:16], iv)
	return s, nil
}

// xorByte processes a single byte in place, advancing the shift register.
func (s *cfb8Stream) xorByte(b byte) byte {
	var ks [16]byte
	s.block.Encrypt(ks[:], s.shiftReg[:16])

	var out byte
	var feedback byte
	if s.decrypt {
		out = b ^ ks[0]
		feedback = b
	} else {
		out = b ^ ks[0]
		feedback = out
	}

	copy(s.shiftReg[:15], s.shiftReg[1:16])
	s.shiftReg[15] = feedback
	return out
}

// XORKeyStream encrypts/decrypts src into dst byte-by-byte. dst and src may
// overlap exactly.
func (s *cfb8Stream) XORKeyStream(dst, src []byte) {
	for i, b := range src {
		dst[i] = s.xorByte(b)
	}
}

// cipherReader decrypts bytes read from the wrapped reader.
type cipherReader struct {
	r      io.Reader
	stream *cfb8Stream
}

// NewDecryptReader wraps r so every byte read through it is decrypted with
// the AES/CFB8 keystream keyed by secret (IV == secret, per this protocol
// revision's login convention).
func NewDecryptReader(r io.Reader, secret []byte) (io.Reader, error) {
	stream, err := newCFB8(secret, secret, true)
	if err != nil {
		return nil, err
	}
	return &cipherReader{r: r, stream: stream}, nil
}

func (c *cipherReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.stream.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

// cipherWriter encrypts bytes before forwarding them to the wrapped writer.
type cipherWriter struct {
	w      io.Writer
	stream *cfb8Stream
}

// NewEncryptWriter wraps w so every byte written through it is encrypted.
func NewEncryptWriter(w io.Writer, secret []byte) (io.Writer, error) {
	stream, err := newCFB8(secret, secret, false)
	if err != nil {
		return nil, err
	}
	return &cipherWriter{w: w, stream: stream}, nil
}

func (c *cipherWriter) Write(p []byte) (int, error) {
	out := make([]byte, len(p))
	c.stream.XORKeyStream(out, p)
	return c.w.Write(out)
}
