package downstream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janispritzkau/2b2proxy/internal/chat"
	"github.com/janispritzkau/2b2proxy/internal/codec"
	"github.com/janispritzkau/2b2proxy/internal/proto"
)

type fakeSessions struct{}

func (fakeSessions) ListProfiles() []ProfileInfo             { return nil }
func (fakeSessions) Resolve(string) (uuid.UUID, bool)        { return uuid.Nil, false }
func (fakeSessions) IsConnected(uuid.UUID) bool              { return false }
func (fakeSessions) Connect(context.Context, uuid.UUID) error { return nil }
func (fakeSessions) Disconnect(uuid.UUID)                    {}
func (fakeSessions) StatusLine(uuid.UUID) chat.Component     { return chat.Text("") }
func (fakeSessions) Attach(uuid.UUID) (AttachInfo, bool)     { return AttachInfo{}, false }
func (fakeSessions) Release(uuid.UUID)                       {}

type fakeOwner struct{}

func (fakeOwner) Owns(uuid.UUID, uuid.UUID) bool { return false }

func newTestListener(t *testing.T) *Listener {
	t.Helper()
	l, err := New(Config{
		Bind:     "127.0.0.1:0",
		MOTD:     "test",
		Sessions: fakeSessions{},
		Owner:    fakeOwner{},
	})
	require.NoError(t, err)
	return l
}

// TestStatusPing covers §8 scenario 1: a status handshake followed by
// Request/Ping yields a version-carrying Response and an exact Pong echo.
func TestStatusPing(t *testing.T) {
	l := newTestListener(t)
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		l.handle(context.Background(), newConn(server))
		close(done)
	}()

	c := newConn(client)
	require.NoError(t, c.WriteFrame(0x00, proto.EncodeHandshake(proto.Handshake{
		ProtocolVersion: proto.ProtocolVersion,
		ServerAddress:   "localhost",
		ServerPort:      25565,
		NextState:       proto.NextStateStatus,
	})))
	require.NoError(t, c.WriteFrame(proto.SBStatusRequest, nil))

	frame, err := c.ReadFrame()
	require.NoError(t, err)
	resp, err := proto.DecodeStatusResponse(frame.Payload)
	require.NoError(t, err)
	assert.Contains(t, resp.JSON, `"name":"1.12.2"`)
	assert.Contains(t, resp.JSON, `"protocol":340`)

	const payload = int64(0x0123456789ABCDEF)
	w := codec.NewWriter()
	w.Int64(payload)
	require.NoError(t, c.WriteFrame(proto.SBStatusPing, w.Bytes()))

	frame, err = c.ReadFrame()
	require.NoError(t, err)
	pong, err := proto.DecodeStatusPing(frame.Payload)
	require.NoError(t, err)
	assert.Equal(t, payload, pong.Payload)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handle did not return")
	}
}

// TestOutdatedClientRejected covers §8 scenario 2: an old protocol version
// is disconnected with the outdated_client translation and the socket
// closes without further packets.
func TestOutdatedClientRejected(t *testing.T) {
	l := newTestListener(t)
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		l.handle(context.Background(), newConn(server))
		close(done)
	}()

	c := newConn(client)
	require.NoError(t, c.WriteFrame(0x00, proto.EncodeHandshake(proto.Handshake{
		ProtocolVersion: 339,
		ServerAddress:   "localhost",
		ServerPort:      25565,
		NextState:       proto.NextStateLogin,
	})))

	frame, err := c.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, proto.CBLoginDisconnect, frame.ID)

	ld, err := proto.DecodeLoginDisconnect(frame.Payload)
	require.NoError(t, err)
	assert.Equal(t, "multiplayer.disconnect.outdated_client", ld.Reason.Translate)
	require.Len(t, ld.Reason.With, 1)
	assert.Equal(t, "1.12.2", ld.Reason.With[0].Text)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handle did not return")
	}
}
