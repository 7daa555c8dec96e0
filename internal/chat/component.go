// Package chat carries the JSON chat-component tree (§4.1) and the queue
// status regex (§4.3, §8). The bounded chat history and its listeners
// live on internal/world.Mirror, not here.
package chat

import (
	"encoding/json"
	"regexp"
	"strings"

	mkcodec "go.minekube.com/common/minecraft/component/codec"
	mkcomponent "go.minekube.com/common/minecraft/component"
)

// Component is the recursive JSON chat component variant (§3, §4.1). It is
// intentionally a plain, directly JSON-(un)marshalable struct rather than
// an interface tree: every field the proxy actually inspects or
// reconstitutes (text, color, translate/with for disconnect reasons,
// nested extra) round-trips through encoding/json without a custom codec.
type Component struct {
	Text      string        `json:"text,omitempty"`
	Translate string        `json:"translate,omitempty"`
	With      []Component   `json:"with,omitempty"`
	Color     string        `json:"color,omitempty"`
	Bold      bool          `json:"bold,omitempty"`
	Italic    bool          `json:"italic,omitempty"`
	Extra     []Component   `json:"extra,omitempty"`

	// ClickEvent carries a run_command action for the management
	// sub-protocol's profile listing (§4.6).
	ClickEvent *ClickEvent `json:"clickEvent,omitempty"`
}

// ClickEvent mirrors vanilla's click event payload.
type ClickEvent struct {
	Action string `json:"action"`
	Value  string `json:"value"`
}

// Text constructs a simple text component.
func Text(s string) Component { return Component{Text: s} }

// RunCommand constructs a text component that runs cmd when clicked, used
// by the "/connect <id>" profile listing rows (§4.6).
func RunCommand(label, cmd string) Component {
	return Component{Text: label, ClickEvent: &ClickEvent{Action: "run_command", Value: cmd}}
}

// Translatable constructs a translate-key component with substitution args,
// used for the outdated_client/outdated_server disconnects (§4.6, §6).
func Translatable(key string, with ...string) Component {
	c := Component{Translate: key}
	for _, w := range with {
		c.With = append(c.With, Text(w))
	}
	return c
}

// Plain flattens a component tree to its visible text, ignoring formatting,
// for logging (mirrors gate's use of codec.Plain{} before logging a
// disconnect reason).
func (c Component) Plain() string {
	s := c.Text
	for _, e := range c.Extra {
		s += e.Plain()
	}
	return s
}

// MarshalJSONString is a convenience for encoding a Component to the
// length-prefixed JSON string the wire format expects (§4.1).
func MarshalJSONString(c Component) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalJSONString decodes a wire JSON chat payload.
func UnmarshalJSONString(s string) (Component, error) {
	var c Component
	err := json.Unmarshal([]byte(s), &c)
	return c, err
}

// queueRegex matches a tab-list footer of the form "queue: N ... time: T",
// taking the rest of the line for T (§9(c): preserves the observed
// "rest-of-line" semantics even though the source's "/s" dotall flag
// wouldn't, in general, stop at a literal newline).
var queueRegex = regexp.MustCompile(`(?s)queue:\s*(\d+).*time:\s*([^\n]+)`)

// Queue is the parsed §3 queue state.
type Queue struct {
	Position int32
	Time     string
}

// ParseQueue extracts queue position/time from a tab-list footer's plain
// text, per §4.3's handler for packet id 0x4A and §8's testable property.
func ParseQueue(footerPlainText string) (Queue, bool) {
	m := queueRegex.FindStringSubmatch(footerPlainText)
	if m == nil {
		return Queue{}, false
	}
	var pos int32
	for _, c := range m[1] {
		pos = pos*10 + int32(c-'0')
	}
	return Queue{Position: pos, Time: m[2]}, true
}

// ConnectingMessage is the chat substring that clears a pending queue
// (§3, §4.3).
const ConnectingMessage = "Connecting to the server"

// FromMinekube flattens a go.minekube.com/common component tree (used at
// the process-supervision boundary, e.g. the shutdown broadcast built in
// cmd/proxy) down to a plain-text wire Component, the same flattening gate
// itself performs before logging a disconnect reason.
func FromMinekube(c mkcomponent.Component) (Component, error) {
	var b strings.Builder
	if err := (&mkcodec.Plain{}).Marshal(&b, c); err != nil {
		return Component{}, err
	}
	return Text(b.String()), nil
}
