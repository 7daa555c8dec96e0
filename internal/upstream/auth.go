package upstream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/janispritzkau/2b2proxy/internal/mcauth"
)

type joinRequest struct {
	AccessToken     string `json:"accessToken"`
	SelectedProfile string `json:"selectedProfile"`
	ServerID        string `json:"serverId"`
}

// joinSession performs the client-side half of §4.2's login handshake:
// POST session.join with profile id, username hash, and shared secret,
// verifying this proxy's upstream connection to the remote auth server
// before responding to the server's EncryptionRequest.
func joinSession(authServer, accessToken, profileID, serverID string, sharedSecret, publicKey []byte) error {
	body, err := json.Marshal(joinRequest{
		AccessToken:     accessToken,
		SelectedProfile: profileID,
		ServerID:        mcauth.ServerHash(serverID, sharedSecret, publicKey),
	})
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(authServer + "/session/minecraft/join")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := fasthttp.DoTimeout(req, resp, 10*time.Second); err != nil {
		return fmt.Errorf("upstream: session.join request failed: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusNoContent && resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode())
	}
	return nil
}
