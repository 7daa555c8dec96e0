// Package profile defines the narrow externally-owned contract the core
// consumes (§1, §3): profile records, their settings, and the token-refresh
// callback. Persistence, the web control plane, and remote auth-server
// token refresh itself all live outside the core.
package profile

import (
	"time"

	"github.com/google/uuid"
)

// Profile is an externally-owned game account record. The core only ever
// reads AccessToken (possibly refreshed via a RefreshFunc) and Settings.
type Profile struct {
	ID          uuid.UUID
	Name        string
	AccessToken string
	Settings    Settings
}

// RefreshFunc refreshes a stale access token for a profile, returning true
// on success. Owned by the excluded remote-auth-token-refresh collaborator.
type RefreshFunc func(p *Profile) (ok bool)

// AutoReconnect controls §3's reconnect-on-unexpected-end behaviour.
type AutoReconnect struct {
	Enabled bool
	Delay   time.Duration
}

// AutoDisconnect controls §3's low-health auto-disconnect behaviour.
type AutoDisconnect struct {
	Enabled            bool
	DisableWhilePlaying bool
	Health             float32
}

// NotifyPlayers controls §3's spawn-player notification behaviour.
type NotifyPlayers struct {
	Enabled             bool
	DisableWhilePlaying bool
	Ignore              map[string]struct{}
}

// Ignores reports whether name is in the ignore set.
func (n NotifyPlayers) Ignores(name string) bool {
	_, ok := n.Ignore[name]
	return ok
}

// Settings is the recognised subset of ProfileSettings (§3).
type Settings struct {
	AutoReconnect    AutoReconnect
	AutoDisconnect   AutoDisconnect
	NotifyPlayers    NotifyPlayers
	EnablePacketDumps bool
}

// DefaultSettings matches the conservative defaults implied by §3: nothing
// fires until a profile's owner opts in, except dumps which default off.
func DefaultSettings() Settings {
	return Settings{
		AutoReconnect:  AutoReconnect{Enabled: false, Delay: 5 * time.Second},
		AutoDisconnect: AutoDisconnect{Enabled: false, DisableWhilePlaying: true, Health: 6},
		NotifyPlayers:  NotifyPlayers{Enabled: false, DisableWhilePlaying: true, Ignore: map[string]struct{}{}},
	}
}
