package upstream

import (
	"errors"
	"net"

	"github.com/janispritzkau/2b2proxy/internal/chat"
)

// ConnectError is the typed login-phase failure (§7 kind 2): a Disconnect
// packet received during login carries a chat reason, distinguishable from
// a generic transport/protocol error.
type ConnectError struct {
	Reason chat.Component
}

func (e *ConnectError) Error() string { return "upstream disconnected during login: " + e.Reason.Plain() }

// ErrSessionEnded is reported to a session's end listener when the peer
// closed the socket with no disconnect reason (§4.2 "signalled as end with
// no reason").
var ErrSessionEnded = errors.New("upstream: session ended")

// ErrAuthFailed is fatal for one connect attempt and never auto-retried
// (§7 kind 3: retrying a bad token would spin).
var ErrAuthFailed = errors.New("upstream: session server rejected join")

// recoverable classifies a read error the way gate's handleReadErr does:
// only truly transient conditions get a caller-side retry; everything else
// ends the session (§7 kind 1).
func recoverable(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return netErr.Temporary()
	}
	return false
}
