package downstream

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/janispritzkau/2b2proxy/internal/bridge"
	"github.com/janispritzkau/2b2proxy/internal/chat"
	"github.com/janispritzkau/2b2proxy/internal/codec"
	"github.com/janispritzkau/2b2proxy/internal/proto"
)

// keepAliveInterval is independent of any upstream session: the client
// connection itself needs periodic keepalives regardless of attach state.
// While attached, the upstream server's keepalives also reach the client,
// since a Client passes every Play frame, keepalives included, to OnFrame.
const keepAliveInterval = 15 * time.Second

// servePlay drives one downstream client for the rest of its connection,
// from the synthetic lobby state through any number of attach/detach
// cycles to other profiles (§4.6).
func (l *Listener) servePlay(ctx context.Context, c *Conn, accountUUID uuid.UUID) {
	if err := l.writeLobbyJoinGame(c); err != nil {
		return
	}
	l.registerPlayConn(c)
	defer l.unregisterPlayConn(c)

	type frameOrErr struct {
		frame codec.Frame
		err   error
	}
	frames := make(chan frameOrErr, 8)
	go func() {
		for {
			f, err := c.ReadFrame()
			frames <- frameOrErr{f, err}
			if err != nil {
				return
			}
		}
	}()

	var attached attachedSession

	detach := func() {
		if !attached.active {
			return
		}
		l.cfg.Sessions.Release(attached.id)
		attached = attachedSession{}
		_ = l.writeLobbyJoinGame(c)
	}
	defer detach()

	listing := time.NewTicker(listingInterval)
	defer listing.Stop()
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	var keepAliveSeq int64

	for {
		var upstreamDone <-chan struct{}
		if attached.active {
			upstreamDone = attached.done
		}

		select {
		case <-ctx.Done():
			return

		case <-upstreamDone:
			detach()

		case <-keepAlive.C:
			keepAliveSeq++
			w := codec.NewWriter()
			w.Int64(keepAliveSeq)
			if err := c.WriteFrame(proto.CBKeepAlive, w.Bytes()); err != nil {
				return
			}

		case <-listing.C:
			if !attached.active {
				if err := l.broadcastListing(c, accountUUID); err != nil {
					return
				}
			}

		case fe := <-frames:
			if fe.err != nil {
				return
			}
			f := fe.frame

			if f.ID == proto.SBKeepAlive {
				continue
			}

			if f.ID == proto.SBChatMessage {
				r := codec.NewReader(f.Payload)
				text := r.String()
				if r.Err() != nil {
					continue
				}
				if cmd, ok := parseCommand(text); ok {
					attached = l.handleCommand(ctx, c, accountUUID, cmd, attached)
					continue
				}
			}

			if attached.active {
				if err := attached.bridge.HandleServerbound(f.ID, f.Payload); err != nil {
					l.log.Debug("serverbound rewrite failed", zap.Int32("id", f.ID), zap.Error(err))
				}
			}
		}
	}
}

// attachedSession is the listener's view of the profile it is currently
// bridging to, if any.
type attachedSession struct {
	active bool
	id     uuid.UUID
	bridge *bridge.Bridge
	done   <-chan struct{}
}

func (l *Listener) handleCommand(ctx context.Context, c *Conn, accountUUID uuid.UUID, cmd command, attached attachedSession) attachedSession {
	switch cmd.kind {
	case "connect":
		id, ok := l.cfg.Sessions.Resolve(cmd.key)
		if !ok || !l.cfg.Owner.Owns(accountUUID, id) {
			_ = c.WriteFrame(proto.CBChatMessage, encodeChatMessage(chat.Text("No such profile: "+cmd.key)))
			return attached
		}
		if attached.active {
			l.cfg.Sessions.Release(attached.id)
			attached = attachedSession{}
		}
		if err := l.cfg.Sessions.Connect(ctx, id); err != nil {
			_ = c.WriteFrame(proto.CBChatMessage, encodeChatMessage(chat.Text("Failed to connect: "+err.Error())))
			return attached
		}
		info, ok := l.cfg.Sessions.Attach(id)
		if !ok {
			_ = c.WriteFrame(proto.CBChatMessage, encodeChatMessage(chat.Text("Session not ready, try again")))
			return attached
		}
		b := bridge.New(info.Mirror, info.Upstream, c, info.SelfEID, proto.ClientEid)
		info.SetOnFrame(b.HandleClientbound)
		if err := b.Attach(true); err != nil {
			l.log.Debug("replay attach failed", zap.Error(err))
			l.cfg.Sessions.Release(id)
			return attachedSession{}
		}
		return attachedSession{active: true, id: id, bridge: b, done: info.Done}

	case "disconnect":
		var id uuid.UUID
		if cmd.key == "" {
			if !attached.active {
				return attached
			}
			id = attached.id
		} else {
			resolved, ok := l.cfg.Sessions.Resolve(cmd.key)
			if !ok || !l.cfg.Owner.Owns(accountUUID, resolved) {
				_ = c.WriteFrame(proto.CBChatMessage, encodeChatMessage(chat.Text("No such profile: "+cmd.key)))
				return attached
			}
			id = resolved
		}
		l.cfg.Sessions.Disconnect(id)
		if attached.active && attached.id == id {
			l.cfg.Sessions.Release(id)
			_ = l.writeLobbyJoinGame(c)
			return attachedSession{}
		}
		return attached
	}
	return attached
}

// broadcastListing sends the periodic unattached-state chat message listing
// the account's profiles with their connection state, each row clickable
// to run the matching "/connect <id>" (§4.6).
func (l *Listener) broadcastListing(c *Conn, accountUUID uuid.UUID) error {
	root := chat.Text("Your profiles:")
	for _, p := range l.cfg.Sessions.ListProfiles() {
		if !l.cfg.Owner.Owns(accountUUID, p.ID) {
			continue
		}
		status := l.statusLine(p.ID)
		row := chat.Text("\n  ")
		row.Extra = append(row.Extra, chat.RunCommand(p.Name, "/connect "+p.ID.String()), chat.Text(" - "), status)
		root.Extra = append(root.Extra, row)
	}
	return c.WriteFrame(proto.CBChatMessage, encodeChatMessage(root))
}

func encodeChatMessage(c chat.Component) []byte {
	s, err := chat.MarshalJSONString(c)
	if err != nil {
		s = `{"text":""}`
	}
	w := codec.NewWriter()
	w.String(s)
	w.Byte(1) // position: system message
	return w.Bytes()
}

// writeLobbyJoinGame places a not-yet-attached client into a minimal valid
// Play state so it can receive chat and issue "/connect" (§4.6).
func (l *Listener) writeLobbyJoinGame(c *Conn) error {
	join := codec.NewWriter()
	join.Int32(proto.ClientEid)
	join.Byte(0) // gamemode: survival
	join.Int32(0) // dimension: overworld
	join.Byte(0) // difficulty: peaceful
	join.Byte(0) // max players, legacy unused field
	join.String("default")
	join.Bool(false) // reduced debug info
	if err := c.WriteFrame(proto.CBJoinGame, join.Bytes()); err != nil {
		return err
	}

	pos := codec.NewWriter()
	pos.Float64(0)
	pos.Float64(64)
	pos.Float64(0)
	pos.Float32(0)
	pos.Float32(0)
	pos.Byte(0) // flags: all absolute
	pos.VarInt(0)
	return c.WriteFrame(proto.CBPlayerPosAndLook, pos.Bytes())
}
