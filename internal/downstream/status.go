package downstream

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"os"

	"github.com/nfnt/resize"

	"github.com/janispritzkau/2b2proxy/internal/proto"
)

type statusVersion struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}

type statusPlayers struct {
	Max    int `json:"max"`
	Online int `json:"online"`
}

type statusDescription struct {
	Text string `json:"text"`
}

type statusJSON struct {
	Version statusVersion      `json:"version"`
	Players statusPlayers      `json:"players"`
	Description statusDescription `json:"description"`
	Favicon string             `json:"favicon,omitempty"`
}

// loadFavicon reads a PNG from path, resizes it to the 64x64 vanilla status
// response expects (via nfnt/resize), and returns it as a data URI. A
// feature the original implementation supported that spec.md's distillation
// dropped (§9 Open Question b); reinstated here.
func loadFavicon(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return "", fmt.Errorf("downstream: decode favicon: %w", err)
	}
	resized := resize.Resize(64, 64, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return "", fmt.Errorf("downstream: encode favicon: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// buildStatusJSON renders the status response body (§4.6 scenario 1):
// protocol 340, player count = open sessions, player max = total profiles.
func (l *Listener) buildStatusJSON(online, total int) (string, error) {
	s := statusJSON{
		Version:     statusVersion{Name: proto.WireVersion, Protocol: proto.ProtocolVersion},
		Players:     statusPlayers{Max: total, Online: online},
		Description: statusDescription{Text: l.cfg.MOTD},
		Favicon:     l.favicon,
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
