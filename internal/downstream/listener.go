package downstream

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/janispritzkau/2b2proxy/internal/chat"
	"github.com/janispritzkau/2b2proxy/internal/proto"
)

// listingInterval is how often an unattached connection is sent a synthetic
// profile-listing chat message (§4.6).
const listingInterval = 10 * time.Second

// Config configures a Listener.
type Config struct {
	Bind                 string
	MOTD                 string
	FaviconPath          string
	AuthServer           string
	CompressionThreshold int
	CompressionLevel     int
	AcceptRateLimit      rate.Limit
	AcceptRateBurst      int

	Sessions Sessions
	Owner    OwnerVerifier
	Log      *zap.Logger
}

// Listener is the DownstreamListener (§4.6).
type Listener struct {
	cfg     Config
	log     *zap.Logger
	keys    *keyPair
	favicon string

	limiterMu sync.Mutex
	limiters  *lru.Cache // remote ip -> *rate.Limiter

	statusLineMu sync.Mutex
	statusLines  *lru.Cache // profile id -> cached chat.Component render

	playConnsMu sync.Mutex
	playConns   map[*Conn]struct{}
}

// New constructs a Listener, generating its RSA keypair and loading the
// optional favicon.
func New(cfg Config) (*Listener, error) {
	log := cfg.Log
	if log == nil {
		log = zap.L()
	}
	keys, err := newKeyPair()
	if err != nil {
		return nil, fmt.Errorf("downstream: generate keypair: %w", err)
	}
	l := &Listener{
		cfg:         cfg,
		log:         log,
		keys:        keys,
		limiters:    lru.New(4096),
		statusLines: lru.New(4096),
		playConns:   make(map[*Conn]struct{}),
	}
	if cfg.FaviconPath != "" {
		favicon, err := loadFavicon(cfg.FaviconPath)
		if err != nil {
			log.Warn("failed to load favicon", zap.Error(err))
		} else {
			l.favicon = favicon
		}
	}
	return l, nil
}

// Serve accepts connections until ctx is cancelled.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Bind)
	if err != nil {
		return fmt.Errorf("downstream: listen %s: %w", l.cfg.Bind, err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		if !l.allow(c.RemoteAddr()) {
			_ = c.Close()
			continue
		}
		go l.handle(ctx, newConn(c))
	}
}

func (l *Listener) allow(addr net.Addr) bool {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	burst := l.cfg.AcceptRateBurst
	if burst <= 0 {
		burst = 5
	}
	limit := l.cfg.AcceptRateLimit
	if limit <= 0 {
		limit = rate.Every(time.Second)
	}

	l.limiterMu.Lock()
	v, ok := l.limiters.Get(host)
	var lim *rate.Limiter
	if ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(limit, burst)
		l.limiters.Add(host, lim)
	}
	l.limiterMu.Unlock()

	return lim.Allow()
}

func (l *Listener) handle(ctx context.Context, c *Conn) {
	defer c.Close()

	frame, err := c.ReadFrame()
	if err != nil {
		return
	}
	hs, err := proto.DecodeHandshake(frame.Payload)
	if err != nil {
		return
	}

	switch hs.NextState {
	case proto.NextStateStatus:
		l.handleStatus(c)
	case proto.NextStateLogin:
		l.handleLogin(ctx, c, hs)
	}
}

func (l *Listener) handleStatus(c *Conn) {
	if _, err := c.ReadFrame(); err != nil { // StatusRequest
		return
	}
	online, total := l.sessionCounts()
	body, err := l.buildStatusJSON(online, total)
	if err != nil {
		return
	}
	if err := c.WriteFrame(proto.CBStatusResponse, proto.EncodeStatusResponse(proto.StatusResponse{JSON: body})); err != nil {
		return
	}

	frame, err := c.ReadFrame()
	if err != nil {
		return
	}
	ping, err := proto.DecodeStatusPing(frame.Payload)
	if err != nil {
		return
	}
	_ = c.WriteFrame(proto.CBStatusPong, proto.EncodeStatusPong(proto.StatusPong{Payload: ping.Payload}))
}

func (l *Listener) sessionCounts() (online, total int) {
	profiles := l.cfg.Sessions.ListProfiles()
	total = len(profiles)
	for _, p := range profiles {
		if l.cfg.Sessions.IsConnected(p.ID) {
			online++
		}
	}
	return
}

// disconnectLogin writes a login-phase Disconnect and closes the
// connection.
func (l *Listener) disconnectLogin(c *Conn, reason chat.Component) {
	payload, err := proto.EncodeLoginDisconnect(reason)
	if err != nil {
		return
	}
	_ = c.WriteFrame(proto.CBLoginDisconnect, payload)
}

func (l *Listener) handleLogin(ctx context.Context, c *Conn, hs proto.Handshake) {
	if hs.ProtocolVersion != proto.ProtocolVersion {
		if hs.ProtocolVersion < proto.ProtocolVersion {
			l.disconnectLogin(c, chat.Translatable("multiplayer.disconnect.outdated_client", proto.WireVersion))
		} else {
			l.disconnectLogin(c, chat.Translatable("multiplayer.disconnect.outdated_server", proto.WireVersion))
		}
		return
	}

	frame, err := c.ReadFrame()
	if err != nil {
		return
	}
	loginStart, err := proto.DecodeLoginStart(frame.Payload)
	if err != nil {
		return
	}

	verifyToken := make([]byte, 4)
	if _, err := rand.Read(verifyToken); err != nil {
		return
	}
	encReq := proto.EncryptionRequest{ServerID: "", PublicKey: l.keys.der, VerifyToken: verifyToken}
	if err := c.WriteFrame(proto.CBEncryptionRequest, proto.EncodeEncryptionRequest(encReq)); err != nil {
		return
	}

	frame, err = c.ReadFrame()
	if err != nil {
		return
	}
	encResp, err := proto.DecodeEncryptionResponse(frame.Payload)
	if err != nil {
		return
	}
	sharedSecret, err := l.keys.decrypt(encResp.SharedSecret)
	if err != nil {
		return
	}
	decodedToken, err := l.keys.decrypt(encResp.VerifyToken)
	if err != nil || subtle.ConstantTimeCompare(decodedToken, verifyToken) != 1 {
		return
	}

	accountUUID, err := verifyHasJoined(l.cfg.AuthServer, loginStart.Username, sharedSecret, l.keys.der)
	if err != nil {
		l.log.Debug("hasJoined verification failed", zap.String("username", loginStart.Username), zap.Error(err))
		return
	}
	if err := c.enableEncryption(sharedSecret); err != nil {
		return
	}

	var matched *ProfileInfo
	for _, p := range l.cfg.Sessions.ListProfiles() {
		if p.Name == loginStart.Username {
			p := p
			matched = &p
			break
		}
	}
	if matched == nil || !l.cfg.Owner.Owns(accountUUID, matched.ID) {
		l.disconnectLogin(c, chat.Text("You need to connect via one of your profiles"))
		return
	}

	threshold := l.cfg.CompressionThreshold
	if threshold <= 0 {
		threshold = proto.CompressionThreshold
	}
	level := l.cfg.CompressionLevel
	if level == 0 {
		level = 6
	}
	if err := c.WriteFrame(proto.CBSetCompression, proto.EncodeSetCompression(proto.SetCompression{Threshold: int32(threshold)})); err != nil {
		return
	}
	c.enableCompression(threshold, level)

	loginSuccess := proto.LoginSuccess{UUID: "00000000000000000000000000000000", Username: matched.Name}
	if err := c.WriteFrame(proto.CBLoginSuccess, proto.EncodeLoginSuccess(loginSuccess)); err != nil {
		return
	}

	l.servePlay(ctx, c, accountUUID)
}

// statusLineTTL bounds how stale a cached profile status line render can be
// before broadcastListing recomputes it; many unattached connections share
// one listener, so this avoids re-rendering the same row on every one of
// their independent 10s tickers.
const statusLineTTL = 2 * time.Second

type cachedLine struct {
	component chat.Component
	at        time.Time
}

func (l *Listener) statusLine(id uuid.UUID) chat.Component {
	l.statusLineMu.Lock()
	if v, ok := l.statusLines.Get(id); ok {
		line := v.(cachedLine)
		if time.Since(line.at) < statusLineTTL {
			l.statusLineMu.Unlock()
			return line.component
		}
	}
	l.statusLineMu.Unlock()

	c := l.cfg.Sessions.StatusLine(id)

	l.statusLineMu.Lock()
	l.statusLines.Add(id, cachedLine{component: c, at: time.Now()})
	l.statusLineMu.Unlock()

	return c
}

// registerPlayConn tracks c as reachable for Shutdown's broadcast, for the
// duration of servePlay.
func (l *Listener) registerPlayConn(c *Conn) {
	l.playConnsMu.Lock()
	l.playConns[c] = struct{}{}
	l.playConnsMu.Unlock()
}

func (l *Listener) unregisterPlayConn(c *Conn) {
	l.playConnsMu.Lock()
	delete(l.playConns, c)
	l.playConnsMu.Unlock()
}

// Shutdown sends reason as a Play-phase Disconnect to every client past the
// lobby state, mirroring gate's own shutdown broadcast. It does not close
// the sockets itself; callers cancel the Serve context afterwards so each
// servePlay loop tears its own connection down.
func (l *Listener) Shutdown(reason chat.Component) {
	payload, err := proto.EncodeLoginDisconnect(reason)
	if err != nil {
		return
	}

	l.playConnsMu.Lock()
	conns := make([]*Conn, 0, len(l.playConns))
	for c := range l.playConns {
		conns = append(conns, c)
	}
	l.playConnsMu.Unlock()

	for _, c := range conns {
		_ = c.WriteFrame(proto.CBDisconnectPlay, payload)
	}
}

