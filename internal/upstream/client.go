// Package upstream implements UpstreamClient (§4.2): the durable
// proxy-to-game-server connection that drives Handshake -> Login -> Play
// and feeds every received packet to a WorldMirror and optional dump sink.
package upstream

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/janispritzkau/2b2proxy/internal/chat"
	"github.com/janispritzkau/2b2proxy/internal/codec"
	"github.com/janispritzkau/2b2proxy/internal/dump"
	"github.com/janispritzkau/2b2proxy/internal/profile"
	"github.com/janispritzkau/2b2proxy/internal/proto"
	"github.com/janispritzkau/2b2proxy/internal/world"
)

// Options configures a Connect call.
type Options struct {
	Host, Port     string
	AuthServer     string
	ConnectTimeout time.Duration
	CompressionThreshold int
	CompressionLevel     int
	DumpSink       *dump.Sink // nil disables packet dumps
	Log            *zap.Logger
}

// Client is one live upstream connection, past login and in the Play
// state. It owns the socket and drives WorldMirror mutation; callers read
// EID/disconnect state only after Run returns.
type Client struct {
	conn   net.Conn
	reader *codec.FrameReader
	writer *codec.FrameWriter

	mirror *world.Mirror
	hooks  world.Hooks
	dump   *dump.Sink
	log    *zap.Logger

	closed          atomic.Bool
	knownDisconnect atomic.Bool

	// DisconnectReason is set when a Play-phase Disconnect (0x1A) is
	// received (§4.2 failure semantics).
	DisconnectReason *chat.Component

	// OnFrame, if set, is invoked with every Play-phase frame this client
	// receives (after dump-sink recording), letting a ProxyBridge tap the
	// live clientbound stream for rewriting/forwarding without a second
	// socket read (§4.5).
	OnFrame func(id int32, payload []byte)
}

// Connect establishes TCP, drives the Handshake/Login state machine per
// §4.2, and returns a Client ready for Run. On a login-phase Disconnect, an
// error of type *ConnectError is returned.
func Connect(opts Options, p *profile.Profile, mirror *world.Mirror, hooks world.Hooks) (*Client, error) {
	log := opts.Log
	if log == nil {
		log = zap.L()
	}

	addr := net.JoinHostPort(opts.Host, opts.Port)
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("upstream: dial %s: %w", addr, err)
	}

	reader := codec.NewFrameReader(conn)
	writer := codec.NewFrameWriter(conn)

	port, _ := parsePort(opts.Port)
	hs := proto.Handshake{
		ProtocolVersion: proto.ProtocolVersion,
		ServerAddress:   opts.Host,
		ServerPort:      port,
		NextState:       proto.NextStateLogin,
	}
	if err := writer.WriteFrame(0x00, proto.EncodeHandshake(hs)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("upstream: write handshake: %w", err)
	}
	if err := writer.WriteFrame(proto.SBLoginStart, proto.EncodeLoginStart(proto.LoginStart{Username: p.Name})); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("upstream: write login start: %w", err)
	}

	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("upstream: read login frame: %w", err)
		}
		switch frame.ID {
		case proto.CBLoginDisconnect:
			ld, derr := proto.DecodeLoginDisconnect(frame.Payload)
			_ = conn.Close()
			if derr != nil {
				return nil, fmt.Errorf("upstream: decode login disconnect: %w", derr)
			}
			return nil, &ConnectError{Reason: ld.Reason}

		case proto.CBEncryptionRequest:
			req, derr := proto.DecodeEncryptionRequest(frame.Payload)
			if derr != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("upstream: decode encryption request: %w", derr)
			}
			secret, serr := codec.NewSharedSecret()
			if serr != nil {
				_ = conn.Close()
				return nil, serr
			}
			if err := joinSession(opts.AuthServer, p.AccessToken, p.ID.String(), req.ServerID, secret, req.PublicKey); err != nil {
				_ = conn.Close()
				return nil, err
			}
			encSecret, eerr := rsaEncrypt(req.PublicKey, secret)
			if eerr != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("upstream: encrypt shared secret: %w", eerr)
			}
			encToken, eerr := rsaEncrypt(req.PublicKey, req.VerifyToken)
			if eerr != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("upstream: encrypt verify token: %w", eerr)
			}
			resp := proto.EncryptionResponse{SharedSecret: encSecret, VerifyToken: encToken}
			if err := writer.WriteFrame(proto.SBEncryptionResponse, proto.EncodeEncryptionResponse(resp)); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("upstream: write encryption response: %w", err)
			}

			decReader, derr2 := codec.NewDecryptReader(conn, secret)
			if derr2 != nil {
				_ = conn.Close()
				return nil, derr2
			}
			encWriter, eerr2 := codec.NewEncryptWriter(conn, secret)
			if eerr2 != nil {
				_ = conn.Close()
				return nil, eerr2
			}
			reader.SetReader(decReader)
			writer.SetWriter(encWriter)

		case proto.CBSetCompression:
			sc, derr := proto.DecodeSetCompression(frame.Payload)
			if derr != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("upstream: decode set compression: %w", derr)
			}
			threshold := int(sc.Threshold)
			reader.SetCompression(threshold)
			level := opts.CompressionLevel
			if level == 0 {
				level = 6
			}
			writer.SetCompression(threshold, level)

		case proto.CBLoginSuccess:
			if _, derr := proto.DecodeLoginSuccess(frame.Payload); derr != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("upstream: decode login success: %w", derr)
			}
			c := &Client{
				conn: conn, reader: reader, writer: writer,
				mirror: mirror, hooks: hooks, dump: opts.DumpSink, log: log,
			}
			return c, nil

		default:
			// Ignore anything else encountered during login (plugin messages etc).
		}
	}
}

func parsePort(s string) (uint16, error) {
	var p int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("upstream: invalid port %q", s)
		}
		p = p*10 + int(c-'0')
	}
	return uint16(p), nil
}

// Run reads Play-phase packets until the connection ends, dispatching each
// to the WorldMirror and the optional dump sink (§4.2). It returns
// ErrSessionEnded on a clean peer close, *ConnectError is never returned
// here (login already completed), and any other error is a fatal parse
// failure (§7 kind 5).
func (c *Client) Run() error {
	for {
		frame, err := c.reader.ReadFrame()
		if err != nil {
			if c.closed.Load() {
				return ErrSessionEnded
			}
			if recoverable(err) {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return ErrSessionEnded
		}

		if c.dump != nil {
			_ = c.dump.Write(dump.Inbound, frame.ID, frame.Payload, time.Now())
		}

		if c.OnFrame != nil {
			c.OnFrame(frame.ID, frame.Payload)
		}

		if frame.ID == proto.CBKeepAlive {
			if err := c.writer.WriteFrame(proto.SBKeepAlive, frame.Payload); err != nil {
				return err
			}
			continue
		}

		if frame.ID == proto.CBDisconnectPlay {
			s := func() string {
				r := codec.NewReader(frame.Payload)
				return r.String()
			}()
			reason, _ := chat.UnmarshalJSONString(s)
			c.DisconnectReason = &reason
			_ = c.Close()
			return nil
		}

		c.mirror.Lock()
		applyErr := c.mirror.Apply(frame.ID, frame.Payload, c.hooks)
		c.mirror.Unlock()
		if applyErr != nil {
			c.log.Error("fatal error applying upstream packet, ending session", zap.Int32("id", frame.ID), zap.Error(applyErr))
			_ = c.Close()
			return applyErr
		}

		if frame.ID == proto.CBPlayerPosAndLook {
			r := codec.NewReader(frame.Payload)
			_, _, _ = r.Float64(), r.Float64(), r.Float64()
			_, _ = r.Float32(), r.Float32()
			_ = r.Byte()
			teleportID := r.VarInt()
			if r.Err() == nil {
				w := codec.NewWriter()
				w.VarInt(teleportID)
				if err := c.send(proto.SBTeleportConfirm, w.Bytes()); err != nil {
					return err
				}
			}
		}
	}
}

// SendChat sends a single serverbound chat message packet (§4.2).
func (c *Client) SendChat(text string) error {
	w := codec.NewWriter()
	w.String(codec.ClipChatMessage(text))
	return c.send(proto.SBChatMessage, w.Bytes())
}

func (c *Client) send(id int32, payload []byte) error {
	if c.dump != nil {
		_ = c.dump.Write(dump.Outbound, id, payload, time.Now())
	}
	return c.writer.WriteFrame(id, payload)
}

// WritePacket forwards an already-encoded payload (used by ProxyBridge's
// serverbound rewrite path).
func (c *Client) WritePacket(id int32, payload []byte) error { return c.send(id, payload) }

// Close ends the socket, marking this as a known (not spurious) disconnect.
func (c *Client) Close() error {
	c.knownDisconnect.Store(true)
	c.closed.Store(true)
	return c.conn.Close()
}

// CloseWithReason records reason as DisconnectReason before closing, for a
// locally-decided end to the session (e.g. §3's low-health auto-disconnect)
// that never received an actual upstream Disconnect packet.
func (c *Client) CloseWithReason(reason chat.Component) error {
	c.DisconnectReason = &reason
	return c.Close()
}
