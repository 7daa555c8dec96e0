package proto

import (
	"github.com/janispritzkau/2b2proxy/internal/chat"
	"github.com/janispritzkau/2b2proxy/internal/codec"
)

// LoginStart is the serverbound packet carrying the connecting username.
type LoginStart struct {
	Username string
}

func DecodeLoginStart(payload []byte) (LoginStart, error) {
	r := codec.NewReader(payload)
	s := LoginStart{Username: r.String()}
	return s, r.Err()
}

func EncodeLoginStart(s LoginStart) []byte {
	w := codec.NewWriter()
	w.String(s.Username)
	return w.Bytes()
}

// EncryptionRequest (§4.2).
type EncryptionRequest struct {
	ServerID    string
	PublicKey   []byte
	VerifyToken []byte
}

func DecodeEncryptionRequest(payload []byte) (EncryptionRequest, error) {
	r := codec.NewReader(payload)
	req := EncryptionRequest{
		ServerID: r.String(),
	}
	keyLen := int(r.VarInt())
	req.PublicKey = r.Bytes(keyLen)
	tokenLen := int(r.VarInt())
	req.VerifyToken = r.Bytes(tokenLen)
	return req, r.Err()
}

func EncodeEncryptionRequest(req EncryptionRequest) []byte {
	w := codec.NewWriter()
	w.String(req.ServerID)
	w.VarInt(int32(len(req.PublicKey)))
	w.RawBytes(req.PublicKey)
	w.VarInt(int32(len(req.VerifyToken)))
	w.RawBytes(req.VerifyToken)
	return w.Bytes()
}

// EncryptionResponse (§4.2).
type EncryptionResponse struct {
	SharedSecret []byte
	VerifyToken  []byte
}

func DecodeEncryptionResponse(payload []byte) (EncryptionResponse, error) {
	r := codec.NewReader(payload)
	secretLen := int(r.VarInt())
	secret := r.Bytes(secretLen)
	tokenLen := int(r.VarInt())
	token := r.Bytes(tokenLen)
	return EncryptionResponse{SharedSecret: secret, VerifyToken: token}, r.Err()
}

func EncodeEncryptionResponse(resp EncryptionResponse) []byte {
	w := codec.NewWriter()
	w.VarInt(int32(len(resp.SharedSecret)))
	w.RawBytes(resp.SharedSecret)
	w.VarInt(int32(len(resp.VerifyToken)))
	w.RawBytes(resp.VerifyToken)
	return w.Bytes()
}

// SetCompression (§4.2).
type SetCompression struct {
	Threshold int32
}

func DecodeSetCompression(payload []byte) (SetCompression, error) {
	r := codec.NewReader(payload)
	sc := SetCompression{Threshold: r.VarInt()}
	return sc, r.Err()
}

func EncodeSetCompression(sc SetCompression) []byte {
	w := codec.NewWriter()
	w.VarInt(sc.Threshold)
	return w.Bytes()
}

// LoginSuccess (id 0x02 during login, §4.2) carries the UUID in either
// hyphenated or non-hyphenated form; the proxy normalises to non-hyphenated
// internally (§6).
type LoginSuccess struct {
	UUID     string
	Username string
}

func DecodeLoginSuccess(payload []byte) (LoginSuccess, error) {
	r := codec.NewReader(payload)
	ls := LoginSuccess{
		UUID:     NormalizeUUID(r.String()),
		Username: r.String(),
	}
	return ls, r.Err()
}

func EncodeLoginSuccess(ls LoginSuccess) []byte {
	w := codec.NewWriter()
	w.String(ls.UUID)
	w.String(ls.Username)
	return w.Bytes()
}

// NormalizeUUID strips hyphens from a UUID string, accepting either form.
func NormalizeUUID(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// LoginDisconnect carries a chat component reason, captured as the
// session's disconnectReason during login (§4.2, §7).
type LoginDisconnect struct {
	Reason chat.Component
}

func DecodeLoginDisconnect(payload []byte) (LoginDisconnect, error) {
	r := codec.NewReader(payload)
	s := r.String()
	if err := r.Err(); err != nil {
		return LoginDisconnect{}, err
	}
	c, err := chat.UnmarshalJSONString(s)
	return LoginDisconnect{Reason: c}, err
}

func EncodeLoginDisconnect(reason chat.Component) ([]byte, error) {
	s, err := chat.MarshalJSONString(reason)
	if err != nil {
		return nil, err
	}
	w := codec.NewWriter()
	w.String(s)
	return w.Bytes(), nil
}
