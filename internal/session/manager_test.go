package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/janispritzkau/2b2proxy/internal/profile"
)

func TestAutoDisconnectDueDisabled(t *testing.T) {
	ad := profile.AutoDisconnect{Enabled: false, Health: 10}
	assert.False(t, autoDisconnectDue(ad, 0, false))
}

func TestAutoDisconnectDueAboveThreshold(t *testing.T) {
	ad := profile.AutoDisconnect{Enabled: true, Health: 6}
	assert.False(t, autoDisconnectDue(ad, 6, false))
	assert.False(t, autoDisconnectDue(ad, 10, false))
}

func TestAutoDisconnectDueBelowThreshold(t *testing.T) {
	ad := profile.AutoDisconnect{Enabled: true, Health: 6}
	assert.True(t, autoDisconnectDue(ad, 5.5, false))
}

func TestAutoDisconnectDueSuppressedWhileAttached(t *testing.T) {
	ad := profile.AutoDisconnect{Enabled: true, Health: 6, DisableWhilePlaying: true}
	assert.False(t, autoDisconnectDue(ad, 2, true))
	assert.True(t, autoDisconnectDue(ad, 2, false))
}

func TestAutoDisconnectDueIgnoresAttachedWhenNotDisabled(t *testing.T) {
	ad := profile.AutoDisconnect{Enabled: true, Health: 6, DisableWhilePlaying: false}
	assert.True(t, autoDisconnectDue(ad, 2, true))
}

// TestAllowReconnectBurstThenRateLimited exercises §8 scenario 6's
// suppression half indirectly: allowReconnect's per-profile limiter grants
// only the configured burst before throttling further attempts.
func TestAllowReconnectBurstThenRateLimited(t *testing.T) {
	m := &Manager{opts: Options{ReconnectPerMinute: 4, ReconnectBurst: 2}}
	id := uuid.New()

	assert.True(t, m.allowReconnect(id))
	assert.True(t, m.allowReconnect(id))
	assert.False(t, m.allowReconnect(id))
}

// TestAllowReconnectPerProfileIndependent confirms the limiter is keyed
// per profile id, not shared across the whole manager.
func TestAllowReconnectPerProfileIndependent(t *testing.T) {
	m := &Manager{opts: Options{ReconnectPerMinute: 4, ReconnectBurst: 1}}
	a, b := uuid.New(), uuid.New()

	assert.True(t, m.allowReconnect(a))
	assert.False(t, m.allowReconnect(a))
	assert.True(t, m.allowReconnect(b))
}
