package world

import (
	"strings"
	"sync"

	"github.com/janispritzkau/2b2proxy/internal/chat"
)

// ChunkColumn addresses chunks[x][z] (§3).
type ChunkColumn struct{ X, Z int32 }

// Mirror is the structured snapshot a session maintains from the upstream
// event bus (§3, §4.3). All mutation happens on the owning session's
// single scheduler (§5); Mirror itself only adds the RWMutex needed for a
// consumer (replay, bridge, ops) to take a consistent read snapshot from a
// different goroutine.
type Mirror struct {
	mu sync.RWMutex

	// scalar world fields
	EID              int32
	Gamemode         int32
	Dimension        int32
	Difficulty       int32
	LevelType        string
	Health           float32
	Food             int32
	Saturation       float32
	HealthInitialized bool
	XPBar            float32
	Level            int32
	TotalXP          int32
	PlayerListHeader *chat.Component
	PlayerListFooter *chat.Component
	Invulnerable     bool
	Flying           bool
	AllowFlying      bool
	CreativeMode     bool
	FlyingSpeed      float32
	FOV              float32
	WorldAge         uint64
	Time             uint64
	SpawnX, SpawnY, SpawnZ int32
	HeldItem         int32
	Raining          bool
	FadeValue        float32
	FadeTime         float32
	Camera           int32
	HasCamera        bool
	RidingEid        int32
	HasRiding        bool

	Player PlayerState

	Inventory map[int32]Item // slot -> item, 0..45

	Players map[[16]byte]*PlayerListItem
	Teams   map[string]*Team
	BossBars map[[16]byte]*BossBar
	Maps    map[int32]*MapData

	UnlockedRecipes map[int32]struct{}

	Entities map[int32]*Entity

	Chunks map[int32]map[int32]*Chunk

	Queue *chat.Queue

	lastChatMu     sync.Mutex
	lastChat       []chat.Component
	chatListenersMu sync.Mutex
	chatListeners  map[int]func(chat.Component)
	nextListenerID int

	changed chan struct{} // best-effort, non-blocking "state changed" signal
}

// chatHistoryCap and chatHistoryTrim implement §3's bounded ordered
// sequence: capped at 100, trimmed to 90 on overflow.
const (
	chatHistoryCap  = 100
	chatHistoryTrim = 90
)

// New returns an empty Mirror, ready to receive packets once a JoinGame
// packet seeds it (§3 invariant: local player entity exists once JoinGame
// has been processed).
func New() *Mirror {
	return &Mirror{
		Inventory:       map[int32]Item{},
		Players:         map[[16]byte]*PlayerListItem{},
		Teams:           map[string]*Team{},
		BossBars:        map[[16]byte]*BossBar{},
		Maps:            map[int32]*MapData{},
		UnlockedRecipes: map[int32]struct{}{},
		Entities:        map[int32]*Entity{},
		Chunks:          map[int32]map[int32]*Chunk{},
		chatListeners:   map[int]func(chat.Component){},
		changed:         make(chan struct{}, 1),
	}
}

// Lock/Unlock/RLock/RUnlock expose the mirror's mutex directly: handler
// dispatch (single-writer, §5) takes the write lock for the duration of
// applying one packet; replay/bridge/ops readers take the read lock for a
// consistent snapshot.
func (m *Mirror) Lock()    { m.mu.Lock() }
func (m *Mirror) Unlock()  { m.mu.Unlock() }
func (m *Mirror) RLock()   { m.mu.RLock() }
func (m *Mirror) RUnlock() { m.mu.RUnlock() }

// markChanged is the narrow "state changed" notification design note #9
// calls for: a non-blocking signal, debounced by the caller (§9), in place
// of the source's per-mutation reactive-store fan-out. The UI/ops adapter,
// not the core, is responsible for diffing.
func (m *Mirror) markChanged() {
	select {
	case m.changed <- struct{}{}:
	default:
	}
}

// Changed returns the channel that receives one signal per coalesced burst
// of mutations. Callers should debounce reads from it (§9 recommends
// 100ms).
func (m *Mirror) Changed() <-chan struct{} { return m.changed }

// PushChat appends a message to the bounded history and notifies listeners
// (§3, §4.3 0x0F handler). Clears Queue when the text contains
// chat.ConnectingMessage (§3 invariant). It runs inside Apply, so the
// caller already holds the mirror's write lock.
func (m *Mirror) PushChat(c chat.Component) {
	m.lastChatMu.Lock()
	m.lastChat = append(m.lastChat, c)
	if len(m.lastChat) > chatHistoryCap {
		drop := len(m.lastChat) - chatHistoryTrim
		m.lastChat = append([]chat.Component{}, m.lastChat[drop:]...)
	}
	m.lastChatMu.Unlock()

	if containsConnecting(c.Plain()) {
		m.Queue = nil
	}

	m.chatListenersMu.Lock()
	listeners := make([]func(chat.Component), 0, len(m.chatListeners))
	for _, l := range m.chatListeners {
		listeners = append(listeners, l)
	}
	m.chatListenersMu.Unlock()
	for _, l := range listeners {
		l(c)
	}
	m.markChanged()
}

func containsConnecting(s string) bool {
	return strings.Contains(s, chat.ConnectingMessage)
}

// LastChat returns a copy of the last 100 chat messages (newest last), for
// replaying to a fresh subscriber (§6 session boundary API).
func (m *Mirror) LastChat() []chat.Component {
	m.lastChatMu.Lock()
	defer m.lastChatMu.Unlock()
	out := make([]chat.Component, len(m.lastChat))
	copy(out, m.lastChat)
	return out
}

// Subscribe adds a chat listener and returns an unsubscribe func. Adding or
// removing a listener must be synchronised with the session loop by the
// caller (§5) — this method itself is goroutine-safe but does not imply
// ordering with concurrent PushChat calls from another goroutine, since on
// a correctly-pinned session PushChat only ever runs on the session's own
// scheduler.
func (m *Mirror) Subscribe(fn func(chat.Component)) (unsubscribe func()) {
	m.chatListenersMu.Lock()
	id := m.nextListenerID
	m.nextListenerID++
	m.chatListeners[id] = fn
	m.chatListenersMu.Unlock()
	return func() {
		m.chatListenersMu.Lock()
		delete(m.chatListeners, id)
		m.chatListenersMu.Unlock()
	}
}

// LocalPlayer returns the Entity with EID == m.EID, which the §3 invariant
// guarantees exists once JoinGame has been processed.
func (m *Mirror) LocalPlayer() *Entity {
	return m.Entities[m.EID]
}

// RecomputeRiding updates RidingEid/HasRiding to satisfy §3's invariant: non-null
// iff some Entity.Passengers contains self.EID. Callers recompute this
// after any SetPassengers mutation.
func (m *Mirror) RecomputeRiding() {
	for eid, e := range m.Entities {
		if _, ok := e.Passengers[m.EID]; ok {
			m.RidingEid = eid
			m.HasRiding = true
			return
		}
	}
	m.HasRiding = false
	m.RidingEid = 0
}
