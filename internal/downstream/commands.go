package downstream

import "regexp"

// connectCmd/disconnectCmd match the management chat sub-protocol (§4.6):
// "/connect <id-or-name>" attaches to another of the owner's sessions
// (detaching the current one first); "/disconnect <id-or-name>" ends a
// named session.
var (
	connectCmd    = regexp.MustCompile(`^/connect\s+(\S+)$`)
	disconnectCmd = regexp.MustCompile(`^/disconnect\s*(\S*)$`)
)

type command struct {
	kind string // "connect" or "disconnect"
	key  string
}

// parseCommand recognises the two management commands; ok is false for any
// other chat text, which the caller forwards upstream unchanged.
func parseCommand(text string) (cmd command, ok bool) {
	if m := connectCmd.FindStringSubmatch(text); m != nil {
		return command{kind: "connect", key: m[1]}, true
	}
	if m := disconnectCmd.FindStringSubmatch(text); m != nil {
		return command{kind: "disconnect", key: m[1]}, true
	}
	return command{}, false
}
