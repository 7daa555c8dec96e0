// Package downstream implements the DownstreamListener (§4.6): the
// protocol server that accepts game clients, negotiates encryption and
// compression, matches a profile, and hands the connection off to a
// session's ProxyBridge.
package downstream

import (
	"context"

	"github.com/google/uuid"

	"github.com/janispritzkau/2b2proxy/internal/bridge"
	"github.com/janispritzkau/2b2proxy/internal/chat"
	"github.com/janispritzkau/2b2proxy/internal/world"
)

// ProfileInfo is the narrow profile summary the listener needs for name
// matching and the periodic listing broadcast (§4.6).
type ProfileInfo struct {
	ID   uuid.UUID
	Name string
}

// AttachInfo is what Sessions hands back for a profile the listener is
// about to attach a connection to.
type AttachInfo struct {
	Mirror     *world.Mirror
	SelfEID    int32
	Upstream   bridge.Upstream
	SetOnFrame func(fn func(id int32, payload []byte))
	// Done is closed when the underlying upstream session ends, so the
	// listener can fall the client back to the lobby (§5).
	Done <-chan struct{}
}

// Sessions is the narrow surface the listener needs from the session
// manager (§4.7); internal/session.Manager implements this.
type Sessions interface {
	ListProfiles() []ProfileInfo
	Resolve(key string) (uuid.UUID, bool) // by id string or by name
	IsConnected(id uuid.UUID) bool
	Connect(ctx context.Context, id uuid.UUID) error
	Disconnect(id uuid.UUID)
	StatusLine(id uuid.UUID) chat.Component
	Attach(id uuid.UUID) (AttachInfo, bool)
	Release(id uuid.UUID)
}

// OwnerVerifier is the narrow external predicate deciding whether the
// account that just completed online-mode login owns a given cached
// profile (§4.6's "a user owns that profile"). Account ownership records
// themselves live in the excluded web control plane (§1).
type OwnerVerifier interface {
	Owns(accountUUID, profileID uuid.UUID) bool
}
