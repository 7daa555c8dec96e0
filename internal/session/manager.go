// Package session implements the SessionManager (§4.7): a profile-id
// keyed map of durable UpstreamSessions, their connect/disconnect
// lifecycle, and the auto-reconnect policy around an unexpected end.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/janispritzkau/2b2proxy/internal/chat"
	"github.com/janispritzkau/2b2proxy/internal/downstream"
	"github.com/janispritzkau/2b2proxy/internal/dump"
	"github.com/janispritzkau/2b2proxy/internal/profile"
	"github.com/janispritzkau/2b2proxy/internal/upstream"
	"github.com/janispritzkau/2b2proxy/internal/world"
)

// Options configures a Manager.
type Options struct {
	UpstreamHost, UpstreamPort string
	AuthServer                 string
	ConnectTimeout             time.Duration
	CompressionThreshold       int
	CompressionLevel           int
	DumpDir                    string

	ReconnectPerMinute float64
	ReconnectBurst     int

	Log *zap.Logger
}

// Refresher refreshes a profile's access token; owned by the excluded
// remote-auth collaborator (§1). Matches profile.RefreshFunc.
type Refresher = profile.RefreshFunc

// Manager owns one UpstreamSession per connected profile and implements
// downstream.Sessions for the DownstreamListener.
type Manager struct {
	opts     Options
	log      *zap.Logger
	refresh  Refresher
	profiles func() []profile.Profile

	mu       sync.Mutex
	sessions map[uuid.UUID]*entry

	reconnectLimiters sync.Map // profile id -> *rate.Limiter
	tokenGroup        singleflight.Group
}

type entry struct {
	profile profile.Profile
	mirror  *world.Mirror
	client  *upstream.Client
	done    chan struct{}

	attached         atomic.Bool
	userDisconnected atomic.Bool
}

// New constructs a Manager. profiles lists every cached profile currently
// known to the proxy; refresh refreshes a stale access token.
func New(opts Options, profiles func() []profile.Profile, refresh Refresher) *Manager {
	log := opts.Log
	if log == nil {
		log = zap.L()
	}
	return &Manager{
		opts:     opts,
		log:      log,
		refresh:  refresh,
		profiles: profiles,
		sessions: make(map[uuid.UUID]*entry),
	}
}

// ListProfiles implements downstream.Sessions.
func (m *Manager) ListProfiles() []downstream.ProfileInfo {
	profiles := m.profiles()
	out := make([]downstream.ProfileInfo, len(profiles))
	for i, p := range profiles {
		out[i] = downstream.ProfileInfo{ID: p.ID, Name: p.Name}
	}
	return out
}

// Resolve implements downstream.Sessions: key matches by id string first,
// then by exact profile name.
func (m *Manager) Resolve(key string) (uuid.UUID, bool) {
	if id, err := uuid.Parse(key); err == nil {
		return id, true
	}
	for _, p := range m.profiles() {
		if p.Name == key {
			return p.ID, true
		}
	}
	return uuid.Nil, false
}

// IsConnected implements downstream.Sessions.
func (m *Manager) IsConnected(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

// find returns the profile record for id, if cached.
func (m *Manager) find(id uuid.UUID) (profile.Profile, bool) {
	for _, p := range m.profiles() {
		if p.ID == id {
			return p, true
		}
	}
	return profile.Profile{}, false
}

// Connect implements downstream.Sessions and §4.7's connect(profile):
// refuses if already mapped, refreshes the token, constructs the
// UpstreamSession and inserts it into the map before the network
// round-trip so a concurrent Connect sees it immediately, and removes the
// entry again on failure.
func (m *Manager) Connect(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return nil
	}
	p, ok := m.find(id)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session: unknown profile %s", id)
	}

	e := &entry{profile: p, mirror: world.New(), done: make(chan struct{})}
	m.sessions[id] = e
	m.mu.Unlock()

	if err := m.refreshToken(&e.profile); err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return fmt.Errorf("session: refresh token: %w", err)
	}

	client, err := m.dial(e)
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return err
	}
	e.client = client

	go m.run(id, e)
	return nil
}

// refreshToken dedups concurrent refreshes of the same profile's token via
// singleflight, since Connect and the auto-reconnect path can race.
func (m *Manager) refreshToken(p *profile.Profile) error {
	if m.refresh == nil {
		return nil
	}
	_, err, _ := m.tokenGroup.Do(p.ID.String(), func() (interface{}, error) {
		if !m.refresh(p) {
			return nil, fmt.Errorf("token refresh failed")
		}
		return nil, nil
	})
	return err
}

func (m *Manager) dial(e *entry) (*upstream.Client, error) {
	opts := upstream.Options{
		Host:                 m.opts.UpstreamHost,
		Port:                 m.opts.UpstreamPort,
		AuthServer:           m.opts.AuthServer,
		ConnectTimeout:       m.opts.ConnectTimeout,
		CompressionThreshold: m.opts.CompressionThreshold,
		CompressionLevel:     m.opts.CompressionLevel,
		Log:                  m.log,
	}
	if e.profile.Settings.EnablePacketDumps && m.opts.DumpDir != "" {
		sink, err := dump.Open(m.opts.DumpDir, e.profile.ID, time.Now())
		if err != nil {
			m.log.Warn("failed to open packet dump", zap.String("profile", e.profile.ID.String()), zap.Error(err))
		} else {
			opts.DumpSink = sink
		}
	}
	return upstream.Connect(opts, &e.profile, e.mirror, world.Hooks{
		OnHealthUpdate: func(health float32) { m.checkHealthGate(e, health) },
	})
}

// checkHealthGate implements §3's low-health auto-disconnect: a health
// value strictly below the profile's configured threshold ends the session,
// unless a downstream client is currently watching and the profile has
// opted to suppress the gate while attended.
func (m *Manager) checkHealthGate(e *entry, health float32) {
	if !autoDisconnectDue(e.profile.Settings.AutoDisconnect, health, e.attached.Load()) {
		return
	}
	e.userDisconnected.Store(true)
	_ = e.client.CloseWithReason(chat.Text("Disconnected because of low health"))
}

// autoDisconnectDue is the pure decision behind checkHealthGate, split out
// so the policy is testable without a real *upstream.Client.
func autoDisconnectDue(ad profile.AutoDisconnect, health float32, attached bool) bool {
	if !ad.Enabled || health >= ad.Health {
		return false
	}
	if ad.DisableWhilePlaying && attached {
		return false
	}
	return true
}

// run drives one session's Client.Run to completion and applies §4.7's
// end-of-session policy.
func (m *Manager) run(id uuid.UUID, e *entry) {
	err := e.client.Run()
	close(e.done)

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if err != nil {
		m.log.Debug("upstream session ended with error", zap.String("profile", id.String()), zap.Error(err))
	}

	if e.userDisconnected.Load() {
		return
	}
	if !e.profile.Settings.AutoReconnect.Enabled {
		return
	}
	if !m.allowReconnect(id) {
		m.log.Warn("reconnect rate limit exceeded", zap.String("profile", id.String()))
		return
	}

	delay := e.profile.Settings.AutoReconnect.Delay
	time.AfterFunc(delay, func() {
		if err := m.Connect(context.Background(), id); err != nil {
			m.log.Warn("auto-reconnect failed", zap.String("profile", id.String()), zap.Error(err))
		}
	})
}

func (m *Manager) allowReconnect(id uuid.UUID) bool {
	burst := m.opts.ReconnectBurst
	if burst <= 0 {
		burst = 2
	}
	limit := rate.Limit(m.opts.ReconnectPerMinute / 60)
	if limit <= 0 {
		limit = rate.Every(15 * time.Second)
	}
	v, _ := m.reconnectLimiters.LoadOrStore(id, rate.NewLimiter(limit, burst))
	return v.(*rate.Limiter).Allow()
}

// Disconnect implements downstream.Sessions and §4.7's disconnect(profile):
// ends the socket and suppresses auto-reconnect.
func (m *Manager) Disconnect(id uuid.UUID) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	e.userDisconnected.Store(true)
	_ = e.client.Close()
}

// StatusLine implements downstream.Sessions: a one-line rendering of a
// profile's current connection state for the periodic listing (§4.6).
func (m *Manager) StatusLine(id uuid.UUID) chat.Component {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return chat.Text("disconnected")
	}
	if e.attached.Load() {
		return chat.Text("connected (attached)")
	}
	return chat.Text("connected")
}

// Attach implements downstream.Sessions: hands back everything a
// DownstreamListener needs to build an internal/bridge.Bridge against this
// session, and marks it exclusively attached. Only one downstream
// connection may view a session at a time (§4.5's single-writer
// discipline); a second Attach call fails until the first Releases.
func (m *Manager) Attach(id uuid.UUID) (downstream.AttachInfo, bool) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return downstream.AttachInfo{}, false
	}

	if !e.attached.CompareAndSwap(false, true) {
		return downstream.AttachInfo{}, false
	}

	e.mirror.RLock()
	selfEID := e.mirror.EID
	e.mirror.RUnlock()

	return downstream.AttachInfo{
		Mirror:     e.mirror,
		SelfEID:    selfEID,
		Upstream:   e.client,
		SetOnFrame: func(fn func(id int32, payload []byte)) { e.client.OnFrame = fn },
		Done:       e.done,
	}, true
}

// Release implements downstream.Sessions: detaches the current viewer
// without ending the upstream session.
func (m *Manager) Release(id uuid.UUID) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	e.client.OnFrame = nil
	e.attached.Store(false)
}

// Shutdown ends every live session without triggering auto-reconnect, for
// use during process shutdown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.userDisconnected.Store(true)
		_ = e.client.Close()
	}
}

// Count returns the number of currently connected sessions, for the
// connected-sessions metric that cmd/proxy polls.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
