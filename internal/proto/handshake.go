package proto

import "github.com/janispritzkau/2b2proxy/internal/codec"

// Handshake is the first packet sent on every new connection (§4.1, §4.6).
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

func DecodeHandshake(payload []byte) (Handshake, error) {
	r := codec.NewReader(payload)
	h := Handshake{
		ProtocolVersion: r.VarInt(),
		ServerAddress:   r.String(),
		ServerPort:      r.Uint16(),
		NextState:       r.VarInt(),
	}
	return h, r.Err()
}

func EncodeHandshake(h Handshake) []byte {
	w := codec.NewWriter()
	w.VarInt(h.ProtocolVersion)
	w.String(h.ServerAddress)
	w.Uint16(h.ServerPort)
	w.VarInt(h.NextState)
	return w.Bytes()
}

// StatusRequest carries no fields.
type StatusRequest struct{}

// StatusResponse is the JSON status payload (§6 scenario 1).
type StatusResponse struct {
	JSON string
}

func EncodeStatusResponse(r StatusResponse) []byte {
	w := codec.NewWriter()
	w.String(r.JSON)
	return w.Bytes()
}

func DecodeStatusResponse(payload []byte) (StatusResponse, error) {
	r := codec.NewReader(payload)
	resp := StatusResponse{JSON: r.String()}
	return resp, r.Err()
}

// StatusPing/StatusPong echo an arbitrary i64 payload (§6 scenario 1).
type StatusPing struct{ Payload int64 }
type StatusPong struct{ Payload int64 }

func DecodeStatusPing(payload []byte) (StatusPing, error) {
	r := codec.NewReader(payload)
	p := StatusPing{Payload: r.Int64()}
	return p, r.Err()
}

func EncodeStatusPong(p StatusPong) []byte {
	w := codec.NewWriter()
	w.Int64(p.Payload)
	return w.Bytes()
}
